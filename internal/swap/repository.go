package swap

import (
	"context"
	"time"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// Repository is the Swap Repository (spec.md §4.6). Update is
// compare-and-swap on status plus the expected UpdatedAt timestamp;
// concurrent updaters for one order hash are serialized by the
// Orchestrator's per-order lock, but the repository independently
// rejects a backward status transition as defense in depth.
type Repository interface {
	Create(ctx context.Context, s *Swap) error
	FindByOrderHash(ctx context.Context, orderHash chainmodel.OrderHash) (*Swap, error)

	// Update applies mutate to the current record and persists it if
	// mutate's returned status is a valid forward transition from the
	// stored status and expectedUpdatedAt still matches the stored
	// UpdatedAt. On success it returns the persisted record with a new
	// UpdatedAt. ErrStaleUpdate means someone else wrote first (should
	// not happen under the Orchestrator's locking discipline, but the
	// repository never trusts callers to uphold it alone).
	Update(ctx context.Context, orderHash chainmodel.OrderHash, expectedUpdatedAt time.Time, mutate func(*Swap) error) (*Swap, error)

	ListByStatus(ctx context.Context, status Status) ([]*Swap, error)
	ActiveCount(ctx context.Context) (int, error)

	// GC deletes swaps in a terminal status whose UpdatedAt is older
	// than olderThan, and returns how many were removed.
	GC(ctx context.Context, olderThan time.Time) (int, error)
}
