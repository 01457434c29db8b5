// Package intake implements Order Intake (spec.md §4.8/§6.1): the
// minimal ingress that validates a new swap request — supported chain
// pair, parseable arbitrary-precision amounts, timelock invariants,
// address syntax per side — and hands it to the Orchestrator. The HTTP
// transport in http.go is a thin wrapper grounded on
// stellar-query-api/go's gorilla/mux handler style; it is explicitly
// out of scope for elaboration per spec.md §1, so it stays minimal.
package intake

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/evm"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/stellar"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/orchestrator"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

// Sentinel errors from spec.md §6.1.
var (
	ErrInvalidOrder      = errors.New("intake: invalid order")
	ErrDuplicateOrder    = errors.New("intake: duplicate order hash")
	ErrUnsupportedChain  = errors.New("intake: unsupported chain")
	ErrServiceUnavailable = errors.New("intake: service unavailable")
)

// TimelocksRequest carries the eight deadlines as UNIX seconds, the
// wire shape spec.md §6.1 calls the "unpacked form".
type TimelocksRequest struct {
	SrcWithdrawal         int64
	SrcPublicWithdrawal   int64
	SrcCancellation       int64
	SrcPublicCancellation int64
	DstWithdrawal         int64
	DstPublicWithdrawal   int64
	DstCancellation       int64
	DstPublicCancellation int64
}

func (t TimelocksRequest) toTimelocks() timelock.Timelocks {
	return timelock.Timelocks{
		SrcWithdrawal:         time.Unix(t.SrcWithdrawal, 0).UTC(),
		SrcPublicWithdrawal:   time.Unix(t.SrcPublicWithdrawal, 0).UTC(),
		SrcCancellation:       time.Unix(t.SrcCancellation, 0).UTC(),
		SrcPublicCancellation: time.Unix(t.SrcPublicCancellation, 0).UTC(),
		DstWithdrawal:         time.Unix(t.DstWithdrawal, 0).UTC(),
		DstPublicWithdrawal:   time.Unix(t.DstPublicWithdrawal, 0).UTC(),
		DstCancellation:       time.Unix(t.DstCancellation, 0).UTC(),
		DstPublicCancellation: time.Unix(t.DstPublicCancellation, 0).UTC(),
	}
}

// OrderRequest is the inbound submit_order payload (spec.md §6.1).
type OrderRequest struct {
	SrcChain     string
	DstChain     string
	Maker        string
	Taker        string
	MakerAsset   string
	TakerAsset   string
	MakingAmount string
	TakingAmount string
	Hashlock     string // optional hex; resolver generates if empty
	Timelocks    TimelocksRequest
}

// SubmitResult is submit_order's synchronous reply (spec.md §6.1).
type SubmitResult struct {
	OrderHash string
	Status    string
}

// Service validates new-swap requests and hands them to the
// Orchestrator. It also serves status lookups for the HTTP transport.
type Service struct {
	orch             *orchestrator.Orchestrator
	repo             swap.Repository
	supportedChains  map[chainmodel.ChainID]bool
	logger           *zap.Logger
}

// New builds a Service. supportedChains is the configured chain set
// (spec.md §6.4); a request naming any other chain is rejected
// ErrUnsupportedChain before the Orchestrator ever sees it.
func New(orch *orchestrator.Orchestrator, repo swap.Repository, supportedChains []chainmodel.ChainID, logger *zap.Logger) *Service {
	set := make(map[chainmodel.ChainID]bool, len(supportedChains))
	for _, c := range supportedChains {
		set[c] = true
	}
	return &Service{orch: orch, repo: repo, supportedChains: set, logger: logger}
}

// Submit validates req and, if valid, hands it to the Orchestrator as
// a new-swap request (spec.md §4.5.1, §6.1).
func (s *Service) Submit(ctx context.Context, req OrderRequest) (SubmitResult, error) {
	srcChain := chainmodel.ChainID(strings.ToLower(req.SrcChain))
	dstChain := chainmodel.ChainID(strings.ToLower(req.DstChain))
	if !s.supportedChains[srcChain] {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.SrcChain)
	}
	if !s.supportedChains[dstChain] {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.DstChain)
	}
	if srcChain == dstChain {
		return SubmitResult{}, fmt.Errorf("%w: src_chain and dst_chain must differ", ErrInvalidOrder)
	}

	if err := validateAddress(srcChain, req.Maker); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: maker: %v", ErrInvalidOrder, err)
	}
	if err := validateAddress(dstChain, req.Taker); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: taker: %v", ErrInvalidOrder, err)
	}

	makingAmount, err := money.Parse(req.MakingAmount)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: making_amount: %v", ErrInvalidOrder, err)
	}
	takingAmount, err := money.Parse(req.TakingAmount)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: taking_amount: %v", ErrInvalidOrder, err)
	}
	if makingAmount.IsZero() || takingAmount.IsZero() {
		return SubmitResult{}, fmt.Errorf("%w: zero-amount swaps are rejected", ErrInvalidOrder)
	}

	tl := req.Timelocks.toTimelocks()
	if err := tl.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	var hashlock chainmodel.Hashlock
	if req.Hashlock != "" {
		hashlock, err = chainmodel.ParseHashlock(req.Hashlock)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("%w: hashlock: %v", ErrInvalidOrder, err)
		}
	}

	orderHash := deriveOrderHash(req)

	created, err := s.orch.CreateSwap(ctx, orchestrator.NewSwapRequest{
		OrderHash:    orderHash,
		SrcChain:     srcChain,
		DstChain:     dstChain,
		Maker:        req.Maker,
		Taker:        req.Taker,
		MakerAsset:   req.MakerAsset,
		TakerAsset:   req.TakerAsset,
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		Hashlock:     hashlock,
		Timelocks:    tl,
	})
	if err != nil {
		return SubmitResult{}, s.translateErr(err)
	}

	return SubmitResult{OrderHash: created.OrderHash.String(), Status: created.Status.String()}, nil
}

// Status returns the current swap record for orderHash, for the HTTP
// status route and any other status-reporting caller.
func (s *Service) Status(ctx context.Context, orderHash chainmodel.OrderHash) (*swap.Swap, error) {
	return s.repo.FindByOrderHash(ctx, orderHash)
}

func (s *Service) translateErr(err error) error {
	switch {
	case errors.Is(err, swap.ErrAlreadyExists):
		return fmt.Errorf("%w", ErrDuplicateOrder)
	case errors.Is(err, orchestrator.ErrInvalidOrder):
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	case errors.Is(err, orchestrator.ErrUnsupportedChain):
		return fmt.Errorf("%w: %v", ErrUnsupportedChain, err)
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

// validateAddress dispatches to the chain-family-appropriate syntax
// check (spec.md §4.5.1's "address syntax for each side").
func validateAddress(chain chainmodel.ChainID, addr string) error {
	if chain.Family() == chainmodel.FamilyStellar {
		return stellar.ValidateAddress(addr)
	}
	return evm.ValidateAddress(addr)
}

// deriveOrderHash computes a 32-byte order hash from the canonical
// serialization of the order intent (spec.md §3). It is a pure
// function of the request fields — no random salt — so that a client
// retrying an identical submission after a dropped response gets back
// the same order hash and is caught by the Orchestrator's
// DuplicateOrder check (spec.md §8's "round-trip / idempotence laws")
// rather than silently creating a second swap for the same intent.
func deriveOrderHash(req OrderRequest) chainmodel.OrderHash {
	canonical := strings.Join([]string{
		req.SrcChain, req.DstChain, req.Maker, req.Taker,
		req.MakerAsset, req.TakerAsset, req.MakingAmount, req.TakingAmount,
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	oh, _ := chainmodel.OrderHashFromBytes(sum[:])
	return oh
}
