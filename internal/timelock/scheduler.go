package timelock

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// Expired is the canonical event a Scheduler emits on a stage boundary.
type Expired struct {
	OrderHash chainmodel.OrderHash
	Stage     Stage
	At        time.Time
}

// Sink receives expired-stage events. Scheduler delivers at-least-once;
// the sink (the Orchestrator) is responsible for deduplication keyed by
// (OrderHash, Stage), per spec.md §4.2.
type Sink func(Expired)

const defaultTick = 5 * time.Second

type schedule struct {
	timelocks Timelocks
	emitted   map[Stage]bool
}

// Scheduler tracks one schedule per order hash and drives a periodic
// tick. It arms no per-stage timers: a stage is emitted by the first
// sweep at or after its deadline, so emission can trail the deadline by
// up to one tick.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[chainmodel.OrderHash]*schedule
	sink      Sink
	logger    *zap.Logger
	tick      time.Duration

	now func() time.Time
}

// New builds a Scheduler that delivers stage transitions to sink.
func New(logger *zap.Logger, sink Sink) *Scheduler {
	return &Scheduler{
		schedules: make(map[chainmodel.OrderHash]*schedule),
		sink:      sink,
		logger:    logger,
		tick:      defaultTick,
		now:       time.Now,
	}
}

// Register installs or replaces the schedule for an order hash.
// Per spec.md §4.2, registration is idempotent: a second call with the
// same deadlines is a no-op, and a call with different deadlines only
// replaces the schedule if every stage strictly advances.
func (s *Scheduler) Register(orderHash chainmodel.OrderHash, t Timelocks) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[orderHash]
	if !ok {
		s.schedules[orderHash] = &schedule{timelocks: t, emitted: make(map[Stage]bool)}
		return
	}
	if existing.timelocks == t {
		return
	}
	if existing.timelocks.StrictlyAdvances(t) {
		existing.timelocks = t
		existing.emitted = make(map[Stage]bool)
	}
}

// Remove drops the schedule for an order hash, cancelling any pending
// emissions for it.
func (s *Scheduler) Remove(orderHash chainmodel.OrderHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, orderHash)
}

// IsAllowed reports whether the deadline for the given action has been
// reached for the given order hash. Returns false if the order has no
// registered schedule.
func (s *Scheduler) IsAllowed(orderHash chainmodel.OrderHash, action Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[orderHash]
	if !ok {
		return false
	}
	return !s.now().Before(sch.timelocks.At(action))
}

// Run drives the periodic tick loop until ctx is cancelled. On first
// entry (including resumption after downtime) it synthesizes any stage
// whose deadline already passed, in ascending deadline order, before
// settling into the steady-state tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep emits every not-yet-emitted stage whose deadline has passed,
// across all registered schedules, ordered by deadline.
func (s *Scheduler) sweep() {
	type due struct {
		orderHash chainmodel.OrderHash
		stage     Stage
		at        time.Time
	}

	s.mu.Lock()
	now := s.now()
	var dueList []due
	for orderHash, sch := range s.schedules {
		for _, stg := range Stages() {
			if sch.emitted[stg] {
				continue
			}
			deadline := sch.timelocks.At(stg)
			if !now.Before(deadline) {
				dueList = append(dueList, due{orderHash, stg, deadline})
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(dueList, func(i, j int) bool { return dueList[i].at.Before(dueList[j].at) })

	for _, d := range dueList {
		s.mu.Lock()
		sch, ok := s.schedules[d.orderHash]
		if !ok || sch.emitted[d.stage] {
			s.mu.Unlock()
			continue
		}
		sch.emitted[d.stage] = true
		s.mu.Unlock()

		if s.logger != nil {
			s.logger.Debug("timelock stage expired",
				zap.String("order_hash", d.orderHash.String()),
				zap.String("stage", d.stage.String()),
			)
		}
		s.sink(Expired{OrderHash: d.orderHash, Stage: d.stage, At: d.at})
	}
}
