package swap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

func newTestSwap(orderHash chainmodel.OrderHash) *Swap {
	return &Swap{
		OrderHash:    orderHash,
		SrcChain:     chainmodel.ChainBase,
		DstChain:     chainmodel.ChainStellar,
		Maker:        "0xMaker",
		Taker:        "GTAKER",
		MakerAsset:   "USDC",
		TakerAsset:   "XLM",
		MakingAmount: money.FromUint64(1_000_000),
		TakingAmount: money.FromUint64(10_000_000),
		Hashlock:     chainmodel.Hashlock{0x01},
		Status:       StatusCreated,
	}
}

func TestMemoryRepositoryCreateRejectsDuplicate(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	s := newTestSwap(chainmodel.OrderHash{0x01})

	require.NoError(t, r.Create(ctx, s))
	err := r.Create(ctx, newTestSwap(chainmodel.OrderHash{0x01}))
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryRepositoryFindByOrderHashNotFound(t *testing.T) {
	r := NewMemoryRepository()
	_, err := r.FindByOrderHash(context.Background(), chainmodel.OrderHash{0x99})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryUpdateEnforcesCASAndMonotonicity(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	orderHash := chainmodel.OrderHash{0x02}
	require.NoError(t, r.Create(ctx, newTestSwap(orderHash)))

	stored, err := r.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)

	updated, err := r.Update(ctx, orderHash, stored.UpdatedAt, func(s *Swap) error {
		s.Status = StatusSourceDeployed
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusSourceDeployed, updated.Status)

	// Stale expectedUpdatedAt is rejected.
	_, err = r.Update(ctx, orderHash, stored.UpdatedAt, func(s *Swap) error {
		s.Status = StatusSourceFunded
		return nil
	})
	require.ErrorIs(t, err, ErrStaleUpdate)

	// Backward transition is rejected even with a fresh timestamp.
	_, err = r.Update(ctx, orderHash, updated.UpdatedAt, func(s *Swap) error {
		s.Status = StatusCreated
		return nil
	})
	require.ErrorIs(t, err, ErrBackwardTransition)
}

func TestMemoryRepositoryActiveCountExcludesTerminal(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	active := newTestSwap(chainmodel.OrderHash{0x03})
	require.NoError(t, r.Create(ctx, active))

	done := newTestSwap(chainmodel.OrderHash{0x04})
	done.Status = StatusCompleted
	require.NoError(t, r.Create(ctx, done))

	n, err := r.ActiveCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryRepositoryGCDropsOldTerminalOnly(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	old := newTestSwap(chainmodel.OrderHash{0x05})
	old.Status = StatusCompleted
	require.NoError(t, r.Create(ctx, old))

	r.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	active := newTestSwap(chainmodel.OrderHash{0x06})
	require.NoError(t, r.Create(ctx, active))

	n, err := r.GC(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = r.FindByOrderHash(ctx, chainmodel.OrderHash{0x05})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindByOrderHash(ctx, chainmodel.OrderHash{0x06})
	require.NoError(t, err)
}

func TestMemoryRepositoryListByStatus(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newTestSwap(chainmodel.OrderHash{0x07})))
	require.NoError(t, r.Create(ctx, newTestSwap(chainmodel.OrderHash{0x08})))

	got, err := r.ListByStatus(ctx, StatusCreated)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
