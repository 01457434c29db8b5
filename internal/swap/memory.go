package swap

import (
	"context"
	"sync"
	"time"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// MemoryRepository is an in-process Repository, used by orchestrator and
// ingestor tests and by single-process deployments.
type MemoryRepository struct {
	mu    sync.Mutex
	swaps map[chainmodel.OrderHash]*Swap
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{swaps: make(map[chainmodel.OrderHash]*Swap), now: time.Now}
}

func clone(s *Swap) *Swap {
	c := *s
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, s *Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.swaps[s.OrderHash]; ok {
		return ErrAlreadyExists
	}
	now := r.now()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.swaps[s.OrderHash] = clone(s)
	return nil
}

func (r *MemoryRepository) FindByOrderHash(ctx context.Context, orderHash chainmodel.OrderHash) (*Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.swaps[orderHash]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) Update(ctx context.Context, orderHash chainmodel.OrderHash, expectedUpdatedAt time.Time, mutate func(*Swap) error) (*Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.swaps[orderHash]
	if !ok {
		return nil, ErrNotFound
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, ErrStaleUpdate
	}

	working := clone(stored)
	priorStatus := working.Status
	if err := mutate(working); err != nil {
		return nil, err
	}
	if working.Status != priorStatus && !CanTransition(priorStatus, working.Status) {
		return nil, ErrBackwardTransition
	}
	working.UpdatedAt = r.now()
	r.swaps[orderHash] = clone(working)
	return clone(working), nil
}

func (r *MemoryRepository) ListByStatus(ctx context.Context, status Status) ([]*Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Swap
	for _, s := range r.swaps {
		if s.Status == status {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) ActiveCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.swaps {
		if !s.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) GC(ctx context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, s := range r.swaps {
		if s.Status.IsTerminal() && s.UpdatedAt.Before(olderThan) {
			delete(r.swaps, k)
			n++
		}
	}
	return n, nil
}

var _ Repository = (*MemoryRepository)(nil)
