package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/mock"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/ingest"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/orchestrator"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

func newTestService(t *testing.T) (*Service, *mock.Adapter, *mock.Adapter) {
	t.Helper()
	repo := swap.NewMemoryRepository()
	secrets := secretstore.NewMemory()
	sched := timelock.New(zap.NewNop(), func(timelock.Expired) {})

	baseAdapter := mock.New(chainmodel.ChainBase)
	stellarAdapter := mock.New(chainmodel.ChainStellar)
	adapters := map[chainmodel.ChainID]chainadapter.ChainAdapter{
		chainmodel.ChainBase:    baseAdapter,
		chainmodel.ChainStellar: stellarAdapter,
	}
	orch := orchestrator.New(repo, secrets, sched, adapters, zap.NewNop())

	ingestors := map[chainmodel.ChainID]*ingest.Ingestor{
		chainmodel.ChainBase:    ingest.New(chainmodel.ChainBase, baseAdapter, ingest.NewMemoryCheckpointStore(), orch.HandleEvent, ingest.DefaultConfig(), zap.NewNop()),
		chainmodel.ChainStellar: ingest.New(chainmodel.ChainStellar, stellarAdapter, ingest.NewMemoryCheckpointStore(), orch.HandleEvent, ingest.DefaultConfig(), zap.NewNop()),
	}
	latest := map[chainmodel.ChainID]HeightProbe{
		chainmodel.ChainBase:    baseAdapter.LatestHeight,
		chainmodel.ChainStellar: stellarAdapter.LatestHeight,
	}

	svc := New(repo, secrets, sched, orch, ingestors, latest, Config{
		StatusInterval: 10 * time.Millisecond,
		GCInterval:     time.Hour,
	}, zap.NewNop())
	return svc, baseAdapter, stellarAdapter
}

func TestStatusReportsOneEntryPerChain(t *testing.T) {
	svc, base, _ := newTestService(t)
	base.AdvanceHeight(3)

	st := svc.Status(context.Background())
	require.Len(t, st.Chains, 2)
	require.NotEmpty(t, st.InstanceID)

	for _, c := range st.Chains {
		require.False(t, c.Degraded)
		if c.Chain == chainmodel.ChainBase {
			require.Equal(t, uint64(3), c.LatestHeight)
		}
	}
}

func TestStartStopsCleanlyOnContextCancel(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestRunGCOnceRemovesOnlyAgedTerminalSwaps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := &swap.Swap{
		OrderHash: chainmodel.OrderHash{0x1},
		SrcChain:  chainmodel.ChainBase,
		DstChain:  chainmodel.ChainStellar,
		Status:    swap.StatusCompleted,
	}
	require.NoError(t, svc.repo.Create(ctx, s))
	active := &swap.Swap{
		OrderHash: chainmodel.OrderHash{0x2},
		SrcChain:  chainmodel.ChainBase,
		DstChain:  chainmodel.ChainStellar,
		Status:    swap.StatusSourceFunded,
	}
	require.NoError(t, svc.repo.Create(ctx, active))

	svc.cfg.RetentionHorizon = time.Millisecond
	time.Sleep(5 * time.Millisecond)
	svc.runGCOnce(ctx)

	_, err := svc.repo.FindByOrderHash(ctx, s.OrderHash)
	require.Error(t, err)
	_, err = svc.repo.FindByOrderHash(ctx, active.OrderHash)
	require.NoError(t, err, "a non-terminal swap survives GC regardless of age")
}
