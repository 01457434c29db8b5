package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
)

// Sink is the Orchestrator's event handler. It must be idempotent: the
// Ingestor delivers at-least-once (spec.md §4.4).
type Sink func(ctx context.Context, e events.EscrowEvent) error

// Config tunes one Ingestor instance (spec.md §6.4).
type Config struct {
	WindowSize       uint64        // W in spec.md §4.4 step 3; default 1
	PollInterval     time.Duration // default 5s
	ConfirmationDepth uint64
}

// DefaultConfig matches spec.md §4.4's stated defaults.
func DefaultConfig() Config {
	return Config{WindowSize: 1, PollInterval: 5 * time.Second}
}

// position is the (tx_id, log_index) pair the reorg detector compares
// against what it observed the last time it crossed a given height.
type position struct {
	txID     string
	logIndex uint32
}

// Ingestor runs the cooperative per-chain polling loop from spec.md §4.4.
type Ingestor struct {
	chain      chainmodel.ChainID
	adapter    chainadapter.ChainAdapter
	checkpoint CheckpointStore
	sink       Sink
	cfg        Config
	logger     *zap.Logger

	// lastSeen remembers the position observed at the last processed
	// height, keyed by height, for reorg detection. Only the tail within
	// confirmation depth needs to be retained; a bounded ring would do,
	// but a plain map keeps this honest without premature optimization.
	lastSeen map[uint64][]position

	degraded      bool
	degradedSince time.Time
}

// New builds an Ingestor for one chain.
func New(chain chainmodel.ChainID, adapter chainadapter.ChainAdapter, checkpoint CheckpointStore, sink Sink, cfg Config, logger *zap.Logger) *Ingestor {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 1
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Ingestor{
		chain:      chain,
		adapter:    adapter,
		checkpoint: checkpoint,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
		lastSeen:   make(map[uint64][]position),
	}
}

// IsDegraded reports whether the chain is currently paused after
// exhausting its retry budget (spec.md §4.4 "ChainUnavailable").
func (ig *Ingestor) IsDegraded() (bool, time.Time) { return ig.degraded, ig.degradedSince }

// CheckpointHeight returns the last height this Ingestor has durably
// recorded, for status/metrics reporting.
func (ig *Ingestor) CheckpointHeight(ctx context.Context) (uint64, error) {
	return ig.checkpoint.Load(ctx, ig.chain)
}

// Run drives the loop until ctx is cancelled, sleeping PollInterval
// after every iteration, whether or not it found new work.
func (ig *Ingestor) Run(ctx context.Context) {
	for {
		if err := ig.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			ig.logger.Warn("ingestor tick failed", zap.String("chain", string(ig.chain)), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(ig.cfg.PollInterval):
		}
	}
}

// tick performs one pass of steps 1–4 of spec.md §4.4: load checkpoint,
// compute target height, advance in bounded windows, deliver and
// checkpoint synchronously per window.
func (ig *Ingestor) tick(ctx context.Context) error {
	last, err := ig.checkpoint.Load(ctx, ig.chain)
	if err != nil {
		return err
	}

	target, err := ig.adapter.LatestHeight(ctx)
	if err != nil {
		if chainadapter.IsTransient(err) || errors.Is(err, chainadapter.ErrChainDegraded) {
			ig.markDegraded()
			return nil
		}
		return err
	}
	ig.clearDegraded()

	for last < target {
		windowEnd := last + ig.cfg.WindowSize
		if windowEnd > target {
			windowEnd = target
		}

		evs, err := ig.adapter.PollEvents(ctx, last+1, windowEnd)
		if err != nil {
			if chainadapter.IsTransient(err) || errors.Is(err, chainadapter.ErrChainDegraded) {
				ig.markDegraded()
				return nil
			}
			return err
		}

		if rewound, rewindTo := ig.detectReorg(evs); rewound {
			ig.logger.Error("reorg detected, rewinding checkpoint",
				zap.String("chain", string(ig.chain)), zap.Uint64("rewind_to", rewindTo))
			if err := ig.checkpoint.Rewind(ctx, ig.chain, rewindTo); err != nil {
				return err
			}
			return nil
		}

		for _, e := range evs {
			if err := ig.sink(ctx, e); err != nil {
				return err
			}
			ig.remember(e)
		}

		if err := ig.checkpoint.Save(ctx, ig.chain, windowEnd); err != nil {
			return err
		}
		last = windowEnd
	}
	return nil
}

func (ig *Ingestor) remember(e events.EscrowEvent) {
	txID, logIndex := e.Position()
	ig.lastSeen[e.Height] = append(ig.lastSeen[e.Height], position{txID, logIndex})
	// Bound retained history to the confirmation depth; anything older
	// can no longer reorg.
	floor := int64(e.Height) - int64(ig.cfg.ConfirmationDepth) - 1
	for h := range ig.lastSeen {
		if int64(h) < floor {
			delete(ig.lastSeen, h)
		}
	}
}

// detectReorg reports whether any event in evs occupies a height this
// Ingestor has already processed with a different (tx_id, log_index) —
// spec.md §4.4's mismatch-detection rule. On detection it returns the
// checkpoint to rewind to (current height minus confirmation depth).
func (ig *Ingestor) detectReorg(evs []events.EscrowEvent) (bool, uint64) {
	for _, e := range evs {
		seen, ok := ig.lastSeen[e.Height]
		if !ok {
			continue
		}
		txID, logIndex := e.Position()
		matched := false
		for _, p := range seen {
			if p.txID == txID && p.logIndex == logIndex {
				matched = true
				break
			}
		}
		if !matched {
			rewindTo := uint64(0)
			if e.Height > ig.cfg.ConfirmationDepth {
				rewindTo = e.Height - ig.cfg.ConfirmationDepth
			}
			return true, rewindTo
		}
	}
	return false, 0
}

func (ig *Ingestor) markDegraded() {
	if !ig.degraded {
		ig.degraded = true
		ig.degradedSince = time.Now()
		ig.logger.Warn("chain marked degraded", zap.String("chain", string(ig.chain)))
	}
}

func (ig *Ingestor) clearDegraded() {
	ig.degraded = false
	ig.degradedSince = time.Time{}
}
