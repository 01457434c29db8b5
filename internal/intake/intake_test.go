package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/mock"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/orchestrator"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

const stellarAddr = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
const evmAddr = "0x0000000000000000000000000000000000000001"

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := swap.NewMemoryRepository()
	secrets := secretstore.NewMemory()
	sched := timelock.New(zap.NewNop(), func(timelock.Expired) {})
	adapters := map[chainmodel.ChainID]chainadapter.ChainAdapter{
		chainmodel.ChainBase:    mock.New(chainmodel.ChainBase),
		chainmodel.ChainStellar: mock.New(chainmodel.ChainStellar),
	}
	orch := orchestrator.New(repo, secrets, sched, adapters, zap.NewNop())
	return New(orch, repo, []chainmodel.ChainID{chainmodel.ChainBase, chainmodel.ChainStellar}, zap.NewNop())
}

func validTimelocks() TimelocksRequest {
	return TimelocksRequest{
		SrcWithdrawal:         1_700_000_000,
		SrcPublicWithdrawal:   1_700_003_600,
		SrcCancellation:       1_700_007_200,
		SrcPublicCancellation: 1_700_010_800,
		DstWithdrawal:         1_699_996_400,
		DstPublicWithdrawal:   1_700_000_400,
		DstCancellation:       1_700_003_600,
		DstPublicCancellation: 1_700_007_200,
	}
}

func validRequest() OrderRequest {
	return OrderRequest{
		SrcChain:     "base",
		DstChain:     "stellar",
		Maker:        evmAddr,
		Taker:        stellarAddr,
		MakerAsset:   "USDC",
		TakerAsset:   "XLM",
		MakingAmount: "1000000",
		TakingAmount: "10000000",
		Timelocks:    validTimelocks(),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, result.OrderHash)
	require.Equal(t, "CREATED", result.Status)
}

func TestSubmitIsDeterministicAndRejectsRetryAsDuplicate(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()

	first, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicateOrder)

	// The order hash is a pure function of the request fields.
	again := deriveOrderHash(req)
	require.Equal(t, first.OrderHash, again.String())
}

func TestSubmitRejectsUnsupportedChain(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.DstChain = "solana"
	_, err := svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestSubmitRejectsZeroAmount(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.MakingAmount = "0"
	_, err := svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestSubmitRejectsBadMakerAddress(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.Maker = "not-an-address"
	_, err := svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestSubmitRejectsTimelockInversion(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.Timelocks.SrcWithdrawal = req.Timelocks.SrcCancellation + 1
	_, err := svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestStatusReturnsSubmittedSwap(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	oh, err := chainmodel.ParseOrderHash(result.OrderHash)
	require.NoError(t, err)

	s, err := svc.Status(context.Background(), oh)
	require.NoError(t, err)
	require.Equal(t, oh, s.OrderHash)
}
