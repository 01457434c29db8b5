// Package resolver implements the Resolver Service lifecycle (spec.md
// §4.7): it owns one Event Ingestor per configured chain, the Timelock
// Scheduler, the Orchestrator, and the retention GC ticker supplemented
// for a complete deployment, and reports aggregate health the way
// stellar-live-source/go/server/server.go's EnterpriseMetrics reports
// per-stream health.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/ingest"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/orchestrator"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

// Config tunes the service-wide behavior not owned by any one
// collaborator: how often to poll for metrics/health and how
// aggressively to garbage-collect terminal records (spec.md §C
// "retention GC").
type Config struct {
	RetentionHorizon time.Duration
	GCInterval       time.Duration
	StatusInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetentionHorizon == 0 {
		c.RetentionHorizon = 7 * 24 * time.Hour
	}
	if c.GCInterval == 0 {
		c.GCInterval = time.Hour
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 15 * time.Second
	}
	return c
}

// ChainHealth is one chain's entry in Status, grounded on
// stellar-live-source/go/server/server.go's per-stream health block.
type ChainHealth struct {
	Chain            chainmodel.ChainID
	CheckpointHeight uint64
	LatestHeight     uint64
	Degraded         bool
	DegradedSince    time.Time
}

// Status is the Resolver Service's point-in-time health snapshot,
// returned by Service.Status and served at /status (spec.md §4.7).
type Status struct {
	InstanceID  string
	Uptime      time.Duration
	ActiveSwaps int
	Chains      []ChainHealth
}

// Service is the Resolver Service: the daemon's single composition root
// for the Ingestors, Scheduler, and Orchestrator, plus the supplemented
// retention-GC ticker (spec.md §C).
type Service struct {
	instanceID uuid.UUID
	startedAt  time.Time

	repo    swap.Repository
	secrets secretstore.Store
	sched   *timelock.Scheduler
	orch    *orchestrator.Orchestrator

	ingestors map[chainmodel.ChainID]*ingest.Ingestor
	latest    map[chainmodel.ChainID]HeightProbe

	metrics *Metrics
	logger  *zap.Logger
	cfg     Config

	wg sync.WaitGroup
}

// HeightProbe is a chain adapter's LatestHeight, used only to compute
// ingestor lag for Status/metrics; it never drives business logic.
type HeightProbe func(ctx context.Context) (uint64, error)

// New builds a Service. ingestors must contain one entry per chain the
// Orchestrator was built with adapters for; latestHeight supplies the
// lag probe per chain (typically the adapter's own LatestHeight).
func New(
	repo swap.Repository,
	secrets secretstore.Store,
	sched *timelock.Scheduler,
	orch *orchestrator.Orchestrator,
	ingestors map[chainmodel.ChainID]*ingest.Ingestor,
	latestHeight map[chainmodel.ChainID]HeightProbe,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		instanceID: uuid.New(),
		repo:       repo,
		secrets:    secrets,
		sched:      sched,
		orch:       orch,
		ingestors:  ingestors,
		latest:     latestHeight,
		metrics:    NewMetrics(),
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// Metrics exposes the service's Prometheus registry for the daemon's
// /metrics HTTP handler.
func (s *Service) Metrics() *Metrics { return s.metrics }

// InstanceID distinguishes this process from earlier and later runs: a
// fresh uuid is minted per Service rather than persisted, the way
// contract-data-processor/go/server/control_server.go mints one per
// session.
func (s *Service) InstanceID() string { return s.instanceID.String() }

// Start runs every collaborator's loop until ctx is cancelled, then
// waits for them to unwind before returning. Start is not safe to call
// twice on the same Service.
func (s *Service) Start(ctx context.Context) {
	s.startedAt = time.Now()
	s.logger.Info("resolver service starting",
		zap.String("instance_id", s.instanceID.String()),
		zap.Int("chains", len(s.ingestors)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sched.Run(ctx)
	}()

	for chain, ig := range s.ingestors {
		chain, ig := chain, ig
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("ingestor starting", zap.String("chain", string(chain)))
			ig.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStatusLoop(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runGCLoop(ctx)
	}()

	<-ctx.Done()
	s.logger.Info("resolver service stopping")
	s.wg.Wait()
	s.logger.Info("resolver service stopped")
}

// Status returns the current health snapshot (spec.md §4.7).
func (s *Service) Status(ctx context.Context) Status {
	active, err := s.repo.ActiveCount(ctx)
	if err != nil {
		s.logger.Warn("status: active swap count unavailable", zap.Error(err))
	}

	chains := make([]ChainHealth, 0, len(s.ingestors))
	for chain, ig := range s.ingestors {
		degraded, since := ig.IsDegraded()
		ch := ChainHealth{Chain: chain, Degraded: degraded, DegradedSince: since}
		if probe, ok := s.latest[chain]; ok {
			if h, err := probe(ctx); err == nil {
				ch.LatestHeight = h
			}
		}
		if h, err := ig.CheckpointHeight(ctx); err == nil {
			ch.CheckpointHeight = h
		}
		chains = append(chains, ch)
	}

	return Status{
		InstanceID:  s.instanceID.String(),
		Uptime:      time.Since(s.startedAt),
		ActiveSwaps: active,
		Chains:      chains,
	}
}

// runStatusLoop periodically refreshes the Prometheus gauges that
// Status's fields duplicate in metric form (active swap count, per-chain
// checkpoint height, ingestor lag — the domain-stack's metrics.go entry).
func (s *Service) runStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshMetrics(ctx)
		}
	}
}

func (s *Service) refreshMetrics(ctx context.Context) {
	for _, status := range []swap.Status{
		swap.StatusCreated, swap.StatusSourceDeployed, swap.StatusSourceFunded,
		swap.StatusDestinationDeployed, swap.StatusDestinationFunded,
		swap.StatusSecretRevealed, swap.StatusSourceWithdrawn, swap.StatusDestinationWithdrawn,
	} {
		swaps, err := s.repo.ListByStatus(ctx, status)
		if err != nil {
			continue
		}
		s.metrics.activeSwaps.WithLabelValues(status.String()).Set(float64(len(swaps)))
	}

	for chain, ig := range s.ingestors {
		degraded, _ := ig.IsDegraded()
		gauge := 0.0
		if degraded {
			gauge = 1.0
		}
		s.metrics.chainDegraded.WithLabelValues(string(chain)).Set(gauge)

		checkpoint, err := ig.CheckpointHeight(ctx)
		if err != nil {
			continue
		}
		s.metrics.checkpointHeight.WithLabelValues(string(chain)).Set(float64(checkpoint))

		if probe, ok := s.latest[chain]; ok {
			if latest, err := probe(ctx); err == nil && latest >= checkpoint {
				s.metrics.ingestorLagBlocks.WithLabelValues(string(chain)).Set(float64(latest - checkpoint))
			}
		}
	}
}

// runGCLoop periodically drops terminal swap and revealed-secret
// records older than the configured retention horizon — the retention
// GC feature supplemented beyond the distilled spec (spec.md §C).
func (s *Service) runGCLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGCOnce(ctx)
		}
	}
}

func (s *Service) runGCOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.RetentionHorizon)

	if n, err := s.repo.GC(ctx, cutoff); err != nil {
		s.logger.Warn("swap retention GC failed", zap.Error(err))
	} else if n > 0 {
		s.metrics.gcRemoved.WithLabelValues("swap").Add(float64(n))
		s.logger.Info("swap retention GC removed records", zap.Int("count", n))
	}

	if n, err := s.secrets.GC(ctx, cutoff); err != nil {
		s.logger.Warn("secret retention GC failed", zap.Error(err))
	} else if n > 0 {
		s.metrics.gcRemoved.WithLabelValues("secret").Add(float64(n))
		s.logger.Info("secret retention GC removed records", zap.Int("count", n))
	}
}
