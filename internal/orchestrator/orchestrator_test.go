package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/mock"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

// newHarness wires an Orchestrator against in-memory collaborators and
// two mock chain adapters, matching spec.md §8's literal scenario setup.
func newHarness() (*Orchestrator, *swap.MemoryRepository, *mock.Adapter, *mock.Adapter) {
	repo := swap.NewMemoryRepository()
	secrets := secretstore.NewMemory()
	sched := timelock.New(zap.NewNop(), func(timelock.Expired) {})
	baseAdapter := mock.New(chainmodel.ChainBase)
	stellarAdapter := mock.New(chainmodel.ChainStellar)
	adapters := map[chainmodel.ChainID]chainadapter.ChainAdapter{
		chainmodel.ChainBase:    baseAdapter,
		chainmodel.ChainStellar: stellarAdapter,
	}
	orch := New(repo, secrets, sched, adapters, zap.NewNop())
	return orch, repo, baseAdapter, stellarAdapter
}

func tlocks(base time.Time) timelock.Timelocks {
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }
	return timelock.Timelocks{
		SrcWithdrawal: at(0), SrcPublicWithdrawal: at(1), SrcCancellation: at(2), SrcPublicCancellation: at(3),
		DstWithdrawal: at(0), DstPublicWithdrawal: at(1), DstCancellation: at(2), DstPublicCancellation: at(3),
	}
}

func preimage(b byte) chainmodel.Preimage {
	var p chainmodel.Preimage
	for i := range p {
		p[i] = b
	}
	return p
}

func mustOrderHash(b byte) chainmodel.OrderHash {
	var raw [32]byte
	raw[0] = b
	oh, err := chainmodel.OrderHashFromBytes(raw[:])
	if err != nil {
		panic(err)
	}
	return oh
}

// deploy seeds an escrow address on adapter the way a maker/resolver's
// own deploy transaction would, so a later Withdraw/Cancel call against
// that address finds a record in the mock's escrow map.
func deploy(t *testing.T, adapter *mock.Adapter, orderHash chainmodel.OrderHash) string {
	t.Helper()
	addr, _, err := adapter.DeployEscrow(context.Background(), chainadapter.DeployParams{OrderHash: orderHash})
	require.NoError(t, err)
	return addr
}

func TestHappyPathEvmToStellarCompletes(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, stellar := newHarness()

	orderHash := mustOrderHash(1)
	secret := preimage(0x11)
	hashlock := secretstore.Hash(secretstore.Keccak256, secret)

	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tlocks(time.Now()),
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.NotEmpty(t, got.DstEscrowAddress, "destination escrow should be deployed once source is created")
	dstEscrow := got.DstEscrowAddress

	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow, FundedAmount: money.FromUint64(1_000_000)}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow, FundedAmount: money.FromUint64(10_000_000)}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.SecretRevealed, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow, RevealedSecret: secret}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusSecretRevealed, got.Status)
	require.Contains(t, base.Submitted, "withdraw:"+srcEscrow)

	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusCompleted, got.Status)

	rec, err := orch.secrets.GetByOrder(ctx, orderHash)
	require.NoError(t, err)
	require.False(t, rec.RevealedAt.IsZero())

	require.Contains(t, stellar.Submitted, "deploy:"+dstEscrow)
}

func TestHappyPathStellarToEvmCompletes(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, stellar := newHarness()

	orderHash := mustOrderHash(7)
	secret := preimage(0x77)
	hashlock := secretstore.Hash(secretstore.SHA256, secret)

	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainStellar, DstChain: chainmodel.ChainBase,
		Maker: "GMAKER", Taker: "0xTaker", MakerAsset: "XLM", TakerAsset: "USDC",
		MakingAmount: money.FromUint64(10_000_000), TakingAmount: money.FromUint64(1_000_000),
		Hashlock: hashlock, Timelocks: tlocks(time.Now()),
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, stellar, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	dstEscrow := got.DstEscrowAddress
	require.NotEmpty(t, dstEscrow)
	require.Contains(t, base.Submitted, "deploy:"+dstEscrow)

	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: dstEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.SecretRevealed, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: dstEscrow, RevealedSecret: secret}))

	require.Contains(t, stellar.Submitted, "withdraw:"+srcEscrow)

	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: dstEscrow}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusCompleted, got.Status)
}

func TestDestinationNeverFundedCancels(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, stellar := newHarness()

	orderHash := mustOrderHash(2)
	hashlock := secretstore.Hash(secretstore.Keccak256, preimage(0x22))
	now := time.Now()
	tl := timelock.Timelocks{
		SrcWithdrawal: now.Add(time.Hour), SrcPublicWithdrawal: now.Add(2 * time.Hour),
		SrcCancellation: now.Add(3 * time.Hour), SrcPublicCancellation: now.Add(4 * time.Hour),
		DstWithdrawal: now.Add(-3 * time.Hour), DstPublicWithdrawal: now.Add(-2 * time.Hour),
		DstCancellation: now.Add(-time.Minute), DstPublicCancellation: now.Add(5 * time.Hour),
	}
	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tl,
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.NotEmpty(t, got.DstEscrowAddress)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: got.DstEscrowAddress}))

	// Destination's cancellation deadline has already passed (set in the
	// past above); drive the timer directly rather than waiting on the
	// Scheduler's own tick. Registration happens on Created(src), above.
	orch.HandleExpired(timelock.Expired{OrderHash: orderHash, Stage: timelock.DstCancellation, At: now})
	require.Contains(t, stellar.Submitted, "cancel:"+got.DstEscrowAddress)

	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Cancelled, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: got.DstEscrowAddress}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	// The source was funded, so the destination's cancellation alone is
	// not terminal (spec.md §4.5.2). Once src_cancellation passes (driven
	// directly again), the source is cancelled too and the swap is
	// CANCELLED.
	require.NotEqual(t, swap.StatusCancelled, got.Status)
	orch.HandleExpired(timelock.Expired{OrderHash: orderHash, Stage: timelock.SrcCancellation, At: now})
	require.Contains(t, base.Submitted, "cancel:"+srcEscrow)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Cancelled, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusCancelled, got.Status)
}

func TestLateRevealBeforeCancellationStillWithdraws(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, _ := newHarness()

	orderHash := mustOrderHash(4)
	secret := preimage(0x44)
	hashlock := secretstore.Hash(secretstore.Keccak256, secret)
	now := time.Now()
	tl := timelock.Timelocks{
		SrcWithdrawal: now.Add(-time.Hour), SrcPublicWithdrawal: now.Add(-30 * time.Minute),
		SrcCancellation: now.Add(time.Second), SrcPublicCancellation: now.Add(time.Hour),
		DstWithdrawal: now.Add(-2 * time.Hour), DstPublicWithdrawal: now.Add(-time.Hour),
		DstCancellation: now.Add(2 * time.Hour), DstPublicCancellation: now.Add(3 * time.Hour),
	}
	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tl,
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: got.DstEscrowAddress}))

	// One second before src_cancellation, the secret is revealed.
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.SecretRevealed, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: got.DstEscrowAddress, RevealedSecret: secret}))
	require.Contains(t, base.Submitted, "withdraw:"+srcEscrow)

	// Even if the src_cancellation timer now also fires, the swap must
	// not be cancelled underneath the in-flight withdrawal: SecretRevealed
	// already moved the swap to StatusSecretRevealed, so handleExpired's
	// SrcCancellation guard is a no-op.
	orch.HandleExpired(timelock.Expired{OrderHash: orderHash, Stage: timelock.SrcCancellation, At: now.Add(time.Second)})
	require.NotContains(t, base.Submitted, "cancel:"+srcEscrow)

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusSecretRevealed, got.Status)
}

func TestHashlockMismatchFailsSwapWithoutWithdrawing(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, _ := newHarness()

	orderHash := mustOrderHash(5)
	hashlock := secretstore.Hash(secretstore.Keccak256, preimage(0x55))
	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tlocks(time.Now()),
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)

	wrongSecret := preimage(0xde)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.SecretRevealed, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: got.DstEscrowAddress, RevealedSecret: wrongSecret}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusFailed, got.Status)
	require.Equal(t, "HashlockMismatch", got.LastError)
	require.NotContains(t, base.Submitted, "withdraw:"+srcEscrow)
}

func TestRestartReplaysToSameTerminalOutcome(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, stellar := newHarness()

	orderHash := mustOrderHash(6)
	secret := preimage(0x66)
	hashlock := secretstore.Hash(secretstore.Keccak256, secret)
	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tlocks(time.Now()),
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	dstEscrow := got.DstEscrowAddress
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow}))

	// Simulate a restart: rebuild the Orchestrator against the same
	// repository/secret-store/adapters, then redeliver the Created(src)
	// event the ingestor would redeliver per its at-least-once contract.
	sched := timelock.New(zap.NewNop(), func(timelock.Expired) {})
	adapters := map[chainmodel.ChainID]chainadapter.ChainAdapter{
		chainmodel.ChainBase:    base,
		chainmodel.ChainStellar: stellar,
	}
	restarted := New(repo, orch.secrets, sched, adapters, zap.NewNop())

	require.NoError(t, restarted.HandleEvent(ctx, events.EscrowEvent{Kind: events.Created, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, dstEscrow, got.DstEscrowAddress, "no duplicate destination deployment after restart")

	require.NoError(t, restarted.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow}))
	require.NoError(t, restarted.HandleEvent(ctx, events.EscrowEvent{Kind: events.SecretRevealed, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow, RevealedSecret: secret}))
	require.NoError(t, restarted.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow}))
	require.NoError(t, restarted.HandleEvent(ctx, events.EscrowEvent{Kind: events.Withdrawn, Chain: chainmodel.ChainStellar, OrderHash: orderHash, Escrow: dstEscrow}))

	got, err = repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.Equal(t, swap.StatusCompleted, got.Status)
}

func TestFundedBeforeCreatedStillRegistersSchedule(t *testing.T) {
	ctx := context.Background()
	orch, repo, base, _ := newHarness()

	orderHash := mustOrderHash(11)
	hashlock := secretstore.Hash(secretstore.Keccak256, preimage(0xbb))
	now := time.Now()
	tl := timelock.Timelocks{
		SrcWithdrawal: now.Add(-time.Hour), SrcPublicWithdrawal: now.Add(-30 * time.Minute),
		SrcCancellation: now.Add(-time.Minute), SrcPublicCancellation: now.Add(time.Hour),
		DstWithdrawal: now.Add(-2 * time.Hour), DstPublicWithdrawal: now.Add(2 * time.Hour),
		DstCancellation: now.Add(3 * time.Hour), DstPublicCancellation: now.Add(4 * time.Hour),
	}
	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: hashlock, Timelocks: tl,
	})
	require.NoError(t, err)

	srcEscrow := deploy(t, base, orderHash)
	// Funded(src) arrives with no preceding Created(src) delivery — the
	// reorg/out-of-order case onFunded's own comment calls out.
	require.NoError(t, orch.HandleEvent(ctx, events.EscrowEvent{Kind: events.Funded, Chain: chainmodel.ChainBase, OrderHash: orderHash, Escrow: srcEscrow, FundedAmount: money.FromUint64(1_000_000)}))

	require.True(t, orch.sched.IsAllowed(orderHash, timelock.SrcCancellation),
		"Funded(src) must register the timelock schedule just like Created(src) does")

	got, err := repo.FindByOrderHash(ctx, orderHash)
	require.NoError(t, err)
	require.NotEmpty(t, got.DstEscrowAddress)

	orch.HandleExpired(timelock.Expired{OrderHash: orderHash, Stage: timelock.SrcCancellation, At: now})
	require.Contains(t, base.Submitted, "cancel:"+srcEscrow,
		"the src escrow must be auto-cancellable once its deadline passes, even though Created(src) never arrived")
}

func TestCreateSwapRejectsUnsupportedChain(t *testing.T) {
	ctx := context.Background()
	orch, _, _, _ := newHarness()

	_, err := orch.CreateSwap(ctx, NewSwapRequest{
		OrderHash: mustOrderHash(9), SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainEthereum,
		Maker: "0xMaker", Taker: "0xTaker", MakerAsset: "USDC", TakerAsset: "USDC",
		MakingAmount: money.FromUint64(1), TakingAmount: money.FromUint64(1),
		Hashlock: secretstore.Hash(secretstore.Keccak256, preimage(0x99)), Timelocks: tlocks(time.Now()),
	})
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestCreateSwapRejectsDuplicateOrderHash(t *testing.T) {
	ctx := context.Background()
	orch, _, _, _ := newHarness()

	orderHash := mustOrderHash(10)
	req := NewSwapRequest{
		OrderHash: orderHash, SrcChain: chainmodel.ChainBase, DstChain: chainmodel.ChainStellar,
		Maker: "0xMaker", Taker: "GTAKER", MakerAsset: "USDC", TakerAsset: "XLM",
		MakingAmount: money.FromUint64(1_000_000), TakingAmount: money.FromUint64(10_000_000),
		Hashlock: secretstore.Hash(secretstore.Keccak256, preimage(0xaa)), Timelocks: tlocks(time.Now()),
	}
	_, err := orch.CreateSwap(ctx, req)
	require.NoError(t, err)

	_, err = orch.CreateSwap(ctx, req)
	require.ErrorIs(t, err, swap.ErrAlreadyExists)
}
