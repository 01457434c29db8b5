// Package orchestrator implements the central state machine (spec.md
// §4.5): it consumes EscrowEvent and TimelockExpired signals and new-swap
// requests, invokes Chain Adapters, and drives each swap through its
// lifecycle under a per-order-hash exclusive lock (spec.md §5). It never
// holds a reference back to an Event Ingestor or the Scheduler's run
// loop — those push into the handler methods below, breaking the cyclic
// reference the source material has between the coordinator and its
// chain monitors (spec.md §9).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

// Sentinel errors surfaced to Order Intake (spec.md §6.1).
var (
	ErrInvalidOrder    = errors.New("orchestrator: invalid order")
	ErrUnsupportedChain = errors.New("orchestrator: unsupported chain")
)

// NewSwapRequest is the validated new-swap request handed to the
// Orchestrator by Order Intake (spec.md §4.5.1). Intake is responsible
// for syntax/amount/timelock validation; the Orchestrator still treats
// DuplicateOrder as its own concern because only it can see the
// Repository under the per-order lock.
type NewSwapRequest struct {
	OrderHash    chainmodel.OrderHash
	SrcChain     chainmodel.ChainID
	DstChain     chainmodel.ChainID
	Maker        string
	Taker        string
	MakerAsset   string
	TakerAsset   string
	MakingAmount money.Amount
	TakingAmount money.Amount
	Hashlock     chainmodel.Hashlock // zero => Orchestrator generates one
	Timelocks    timelock.Timelocks
}

// Orchestrator is the state machine described in spec.md §4.5. It holds
// chain adapters directly for outbound calls but never an Ingestor.
type Orchestrator struct {
	repo     swap.Repository
	secrets  secretstore.Store
	sched    *timelock.Scheduler
	adapters map[chainmodel.ChainID]chainadapter.ChainAdapter
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[chainmodel.OrderHash]*sync.Mutex
}

// New builds an Orchestrator wired to its collaborators. adapters must
// contain one entry per chain named in any swap this Orchestrator will
// ever see; missing an adapter for a chain surfaces ErrUnsupportedChain
// at the point a handler first needs it.
func New(repo swap.Repository, secrets secretstore.Store, sched *timelock.Scheduler, adapters map[chainmodel.ChainID]chainadapter.ChainAdapter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		secrets:  secrets,
		sched:    sched,
		adapters: adapters,
		logger:   logger,
		locks:    make(map[chainmodel.OrderHash]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(orderHash chainmodel.OrderHash) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[orderHash]
	if !ok {
		l = &sync.Mutex{}
		o.locks[orderHash] = l
	}
	return l
}

// withOrderLock is the async-aware per-order-hash mutex from spec.md §5:
// acquired at the top of every handler, released when it returns, even
// across the suspension points (chain calls, repository I/O) inside fn.
func (o *Orchestrator) withOrderLock(orderHash chainmodel.OrderHash, fn func() error) error {
	l := o.lockFor(orderHash)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (o *Orchestrator) adapterFor(chain chainmodel.ChainID) (chainadapter.ChainAdapter, error) {
	a, ok := o.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	return a, nil
}

// hashFuncFor reports which hash function a chain's escrow contracts
// expect a hashlock to be derived under (spec.md §6.2).
func (o *Orchestrator) hashFuncFor(chain chainmodel.ChainID) secretstore.HashFunc {
	if chain.Family() == chainmodel.FamilyStellar {
		return secretstore.SHA256
	}
	return secretstore.Keccak256
}

// escrowAddress returns the side of s that corresponds to chain.
func escrowAddress(s *swap.Swap, chain chainmodel.ChainID) string {
	if chain == s.SrcChain {
		return s.SrcEscrowAddress
	}
	return s.DstEscrowAddress
}

// updateSwap is a thin wrapper over Repository.Update pinned to s's
// currently-known UpdatedAt. Callers must thread the returned record
// forward into any subsequent updateSwap call within the same handler —
// the per-order lock guarantees no concurrent writer exists, but a
// stale UpdatedAt still trips the repository's CAS check.
func (o *Orchestrator) updateSwap(ctx context.Context, s *swap.Swap, mutate func(*swap.Swap) error) (*swap.Swap, error) {
	return o.repo.Update(ctx, s.OrderHash, s.UpdatedAt, mutate)
}

// advance moves w.Status forward to target along the linear progression
// (spec.md §4.5.6), and is a no-op if w.Status has already reached or
// passed target's rank — the idempotence every handler here needs under
// at-least-once delivery. It never moves status sideways or backward, so
// once one side of the commutative withdrawn pair is recorded, advancing
// to the other is a no-op. Handlers never pass it a terminal sink:
// COMPLETED, CANCELLED and FAILED are set directly on w.Status.
func advance(w *swap.Swap, target swap.Status) {
	if w.Status == target {
		return
	}
	tr, ok := swap.Rank(target)
	if !ok {
		return
	}
	if cr, ok := swap.Rank(w.Status); ok && cr >= tr {
		return
	}
	w.Status = target
}

// rankAtLeast reports whether status has reached or passed target's rank.
func rankAtLeast(status, target swap.Status) bool {
	cr, ok := swap.Rank(status)
	if !ok {
		return false
	}
	tr, ok := swap.Rank(target)
	return ok && cr >= tr
}

func (o *Orchestrator) recordLastError(ctx context.Context, s *swap.Swap, err error) {
	if _, uerr := o.updateSwap(ctx, s, func(w *swap.Swap) error {
		w.LastError = err.Error()
		return nil
	}); uerr != nil {
		o.logger.Warn("failed to record last error", zap.String("order_hash", s.OrderHash.String()), zap.Error(uerr))
	}
}

// CreateSwap handles a new-swap submission (spec.md §4.5.1): it persists
// the swap in CREATED, and if the order did not carry a hashlock,
// generates and binds one via the Secret Store. It does not wait for or
// trigger any chain action — that happens once the source escrow's
// Created event arrives via HandleEvent.
func (o *Orchestrator) CreateSwap(ctx context.Context, req NewSwapRequest) (*swap.Swap, error) {
	if req.OrderHash.IsZero() {
		return nil, fmt.Errorf("%w: order hash must be set", ErrInvalidOrder)
	}
	if _, err := o.adapterFor(req.SrcChain); err != nil {
		return nil, err
	}
	if _, err := o.adapterFor(req.DstChain); err != nil {
		return nil, err
	}
	if req.MakingAmount.IsZero() || req.TakingAmount.IsZero() {
		return nil, fmt.Errorf("%w: zero-amount swaps are rejected", ErrInvalidOrder)
	}
	if err := req.Timelocks.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	var result *swap.Swap
	err := o.withOrderLock(req.OrderHash, func() error {
		if _, err := o.repo.FindByOrderHash(ctx, req.OrderHash); err == nil {
			return swap.ErrAlreadyExists
		} else if !errors.Is(err, swap.ErrNotFound) {
			return err
		}

		s := &swap.Swap{
			OrderHash:    req.OrderHash,
			SrcChain:     req.SrcChain,
			DstChain:     req.DstChain,
			Maker:        req.Maker,
			Taker:        req.Taker,
			MakerAsset:   req.MakerAsset,
			TakerAsset:   req.TakerAsset,
			MakingAmount: req.MakingAmount,
			TakingAmount: req.TakingAmount,
			Hashlock:     req.Hashlock,
			Timelocks:    req.Timelocks,
			Status:       swap.StatusCreated,
		}

		if s.Hashlock.IsZero() {
			preimage, err := o.secrets.NewSecret(ctx)
			if err != nil {
				return err
			}
			hashlock := secretstore.Hash(o.hashFuncFor(req.SrcChain), preimage)
			if err := o.secrets.BindToOrder(ctx, req.OrderHash, preimage, hashlock); err != nil {
				return err
			}
			s.Preimage = preimage
			s.Hashlock = hashlock
		}

		if err := o.repo.Create(ctx, s); err != nil {
			return err
		}
		result = s
		return nil
	})
	return result, err
}

// HandleEvent is the ingest.Sink the Event Ingestor for every chain
// delivers into (spec.md §4.5.2). It must be idempotent: the Ingestor
// guarantees at-least-once delivery.
func (o *Orchestrator) HandleEvent(ctx context.Context, e events.EscrowEvent) error {
	return o.withOrderLock(e.OrderHash, func() error {
		s, err := o.repo.FindByOrderHash(ctx, e.OrderHash)
		if err != nil {
			if errors.Is(err, swap.ErrNotFound) {
				o.logger.Warn("event for unknown order hash, ignoring",
					zap.String("order_hash", e.OrderHash.String()), zap.String("kind", e.Kind.String()))
				return nil
			}
			return err
		}
		if s.Status.IsTerminal() {
			return nil
		}

		switch e.Kind {
		case events.Created:
			return o.onCreated(ctx, s, e)
		case events.Funded:
			return o.onFunded(ctx, s, e)
		case events.SecretRevealed:
			return o.onSecretRevealed(ctx, s, e)
		case events.Withdrawn:
			return o.onWithdrawn(ctx, s, e)
		case events.Cancelled:
			return o.onCancelled(ctx, s, e)
		default:
			return nil
		}
	})
}

func (o *Orchestrator) onCreated(ctx context.Context, s *swap.Swap, e events.EscrowEvent) error {
	switch e.Chain {
	case s.SrcChain:
		updated, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
			advance(w, swap.StatusSourceDeployed)
			if w.SrcEscrowAddress == "" {
				w.SrcEscrowAddress = e.Escrow
			}
			return nil
		})
		if err != nil {
			return err
		}
		o.sched.Register(e.OrderHash, updated.Timelocks)
		return o.ensureDestinationDeployed(ctx, updated)
	case s.DstChain:
		_, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
			advance(w, swap.StatusDestinationDeployed)
			if w.DstEscrowAddress == "" {
				w.DstEscrowAddress = e.Escrow
			}
			return nil
		})
		return err
	}
	return nil
}

func (o *Orchestrator) onFunded(ctx context.Context, s *swap.Swap, e events.EscrowEvent) error {
	switch e.Chain {
	case s.SrcChain:
		// Funded(src) coalesces with Created(src) per spec.md §4.5.2 if
		// the two arrive out of order.
		updated, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
			advance(w, swap.StatusSourceDeployed)
			advance(w, swap.StatusSourceFunded)
			if w.SrcEscrowAddress == "" {
				w.SrcEscrowAddress = e.Escrow
			}
			return nil
		})
		if err != nil {
			return err
		}
		o.sched.Register(e.OrderHash, updated.Timelocks)
		return o.ensureDestinationDeployed(ctx, updated)
	case s.DstChain:
		_, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
			advance(w, swap.StatusDestinationDeployed)
			advance(w, swap.StatusDestinationFunded)
			if w.DstEscrowAddress == "" {
				w.DstEscrowAddress = e.Escrow
			}
			return nil
		})
		return err
	}
	return nil
}

// ensureDestinationDeployed deploys the destination escrow once the
// source side is known (spec.md §4.5.1 step 3 / §4.5.2 "Created(src)").
// It is idempotent via the DstEscrowAddress guard, so a redelivered
// Created(src)/Funded(src) event never double-deploys.
func (o *Orchestrator) ensureDestinationDeployed(ctx context.Context, s *swap.Swap) error {
	if s.DstEscrowAddress != "" {
		return nil
	}

	rec, err := o.secrets.GetByOrder(ctx, s.OrderHash)
	switch {
	case errors.Is(err, secretstore.ErrNotFound):
		// The order carried its own hashlock and its preimage is not
		// known yet: deploy against s.Hashlock as-is.
		rec = secretstore.Record{}
	case err != nil:
		return err
	}

	dstAdapter, err := o.adapterFor(s.DstChain)
	if err != nil {
		return err
	}

	hashlock := s.Hashlock
	if !rec.Preimage.IsZero() {
		// Asymmetric-hash hazard (spec.md §7/§9): the destination chain
		// may expect the hashlock under a different hash function than
		// the source chain. Re-derive it from the known preimage rather
		// than reusing the source-side hashlock verbatim.
		hashlock = secretstore.Hash(o.hashFuncFor(s.DstChain), rec.Preimage)
	}

	// Counterpart parameter derivation (spec.md §4.5.5): sides swap,
	// because the destination escrow pays the user, not the resolver.
	params := chainadapter.DeployParams{
		OrderHash:       s.OrderHash,
		Hashlock:        hashlock,
		Maker:           s.Taker,
		Taker:           s.Maker,
		Asset:           s.TakerAsset,
		Amount:          s.TakingAmount,
		PackedTimelocks: s.Timelocks.Pack(s.CreatedAt),
	}

	addr, _, err := dstAdapter.DeployEscrow(ctx, params)
	if err != nil {
		o.recordLastError(ctx, s, err)
		return err
	}

	_, err = o.updateSwap(ctx, s, func(w *swap.Swap) error {
		if w.DstEscrowAddress == "" {
			w.DstEscrowAddress = addr
		}
		w.LastError = ""
		return nil
	})
	return err
}

func (o *Orchestrator) onSecretRevealed(ctx context.Context, s *swap.Swap, e events.EscrowEvent) error {
	rec, err := o.secrets.RecordReveal(ctx, e.OrderHash, e.RevealedSecret, s.Hashlock)
	if err != nil {
		if errors.Is(err, secretstore.ErrPreimageMismatch) {
			_, uerr := o.updateSwap(ctx, s, func(w *swap.Swap) error {
				w.Status = swap.StatusFailed
				w.LastError = "preimage mismatch with previously bound secret"
				return nil
			})
			return uerr
		}
		return err
	}

	// Invariant check (spec.md §4.5.2, §8 property 4): the revealed
	// preimage must hash, under the source chain's hash function, to
	// the stored hashlock before the resolver claims on source.
	srcHash := secretstore.Hash(o.hashFuncFor(s.SrcChain), rec.Preimage)
	if srcHash != s.Hashlock {
		_, uerr := o.updateSwap(ctx, s, func(w *swap.Swap) error {
			w.Status = swap.StatusFailed
			w.LastError = "HashlockMismatch"
			w.Preimage = rec.Preimage
			return nil
		})
		return uerr
	}

	updated, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
		advance(w, swap.StatusSecretRevealed)
		w.Preimage = rec.Preimage
		w.LastError = ""
		return nil
	})
	if err != nil {
		return err
	}
	return o.withdrawSide(ctx, s.SrcChain, updated)
}

func (o *Orchestrator) onWithdrawn(ctx context.Context, s *swap.Swap, e events.EscrowEvent) error {
	_, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
		switch e.Chain {
		case w.SrcChain:
			w.SrcWithdrawn = true
			advance(w, swap.StatusSourceWithdrawn)
		case w.DstChain:
			w.DstWithdrawn = true
			advance(w, swap.StatusDestinationWithdrawn)
		}
		if w.SrcWithdrawn && w.DstWithdrawn {
			w.Status = swap.StatusCompleted
		}
		w.LastError = ""
		return nil
	})
	return err
}

func (o *Orchestrator) onCancelled(ctx context.Context, s *swap.Swap, e events.EscrowEvent) error {
	updated, err := o.updateSwap(ctx, s, func(w *swap.Swap) error {
		switch e.Chain {
		case w.SrcChain:
			w.SrcCancelled = true
		case w.DstChain:
			w.DstCancelled = true
		}
		if isCancelTerminal(w) {
			w.Status = swap.StatusCancelled
		}
		return nil
	})
	if err != nil {
		return err
	}
	if updated.Status.IsTerminal() {
		return nil
	}

	// Mirror-cancel the other side once its own deadline has passed and
	// it is neither withdrawn nor cancelled (spec.md §4.5.2).
	other, otherWithdrawn, otherCancelled, deadline := otherSide(updated, e.Chain)
	if !otherWithdrawn && !otherCancelled && o.sched.IsAllowed(updated.OrderHash, deadline) {
		return o.cancelSide(ctx, other, updated)
	}
	return nil
}

func otherSide(s *swap.Swap, cancelledChain chainmodel.ChainID) (chain chainmodel.ChainID, withdrawn, cancelled bool, deadline timelock.Stage) {
	if cancelledChain == s.SrcChain {
		return s.DstChain, s.DstWithdrawn, s.DstCancelled, timelock.DstCancellation
	}
	return s.SrcChain, s.SrcWithdrawn, s.SrcCancelled, timelock.SrcCancellation
}

// isCancelTerminal reports whether w has reached the CANCELLED terminal
// condition from spec.md §4.5.2: both sides cancelled, or only one side
// was ever funded and that side is now cancelled.
func isCancelTerminal(w *swap.Swap) bool {
	if w.SrcCancelled && w.DstCancelled {
		return true
	}
	srcEverFunded := rankAtLeast(w.Status, swap.StatusSourceFunded) || w.SrcWithdrawn
	dstEverFunded := rankAtLeast(w.Status, swap.StatusDestinationFunded) || w.DstWithdrawn
	if srcEverFunded == dstEverFunded {
		return false // both or neither funded: need both cancellations
	}
	if srcEverFunded && w.SrcCancelled {
		return true
	}
	if dstEverFunded && w.DstCancelled {
		return true
	}
	return false
}

// HandleExpired is the timelock.Sink the Scheduler delivers into
// (spec.md §4.5.3). Emission is at-least-once; every branch below is
// idempotent via the same Withdrawn/Cancelled flags and status rank the
// event handlers maintain.
func (o *Orchestrator) HandleExpired(e timelock.Expired) {
	ctx := context.Background()
	if err := o.withOrderLock(e.OrderHash, func() error { return o.handleExpired(ctx, e) }); err != nil {
		o.logger.Warn("timelock handler failed",
			zap.String("order_hash", e.OrderHash.String()), zap.String("stage", e.Stage.String()), zap.Error(err))
	}
}

func (o *Orchestrator) handleExpired(ctx context.Context, e timelock.Expired) error {
	s, err := o.repo.FindByOrderHash(ctx, e.OrderHash)
	if err != nil {
		if errors.Is(err, swap.ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status.IsTerminal() {
		return nil
	}

	switch e.Stage {
	case timelock.SrcWithdrawal, timelock.DstWithdrawal:
		// The windows simply open; withdrawal is triggered by the other
		// chain's SecretRevealed, not by a timer (spec.md §4.5.3).
		return nil
	case timelock.SrcPublicWithdrawal:
		if !s.Preimage.IsZero() && !s.SrcWithdrawn {
			return o.withdrawSide(ctx, s.SrcChain, s)
		}
	case timelock.DstPublicWithdrawal:
		if !s.Preimage.IsZero() && !s.DstWithdrawn {
			return o.withdrawSide(ctx, s.DstChain, s)
		}
	case timelock.SrcCancellation:
		if !rankAtLeast(s.Status, swap.StatusSecretRevealed) && !s.SrcWithdrawn && !s.SrcCancelled {
			return o.cancelSide(ctx, s.SrcChain, s)
		}
	case timelock.DstCancellation:
		if !s.DstWithdrawn && !s.DstCancelled {
			return o.cancelSide(ctx, s.DstChain, s)
		}
	case timelock.SrcPublicCancellation:
		if !s.SrcWithdrawn && !s.SrcCancelled {
			return o.cancelSide(ctx, s.SrcChain, s)
		}
	case timelock.DstPublicCancellation:
		if !s.DstWithdrawn && !s.DstCancelled {
			return o.cancelSide(ctx, s.DstChain, s)
		}
	}
	return nil
}

// withdrawSide submits the claim transaction on chain (spec.md §4.5.4).
// It does not itself mark the swap withdrawn — that happens only once
// the resulting Withdrawn event is observed and handled by onWithdrawn,
// keeping the chain as the single source of truth for that transition.
func (o *Orchestrator) withdrawSide(ctx context.Context, chain chainmodel.ChainID, s *swap.Swap) error {
	escrow := escrowAddress(s, chain)
	if escrow == "" {
		return nil
	}
	adapter, err := o.adapterFor(chain)
	if err != nil {
		return err
	}
	_, err = adapter.Withdraw(ctx, escrow, s.Preimage)
	if err == nil || chainadapter.AlreadyWithdrawn(err) {
		return nil
	}
	if chainadapter.IsRevert(err) {
		o.logger.Error("withdraw reverted", zap.String("order_hash", s.OrderHash.String()),
			zap.String("chain", string(chain)), zap.Error(err))
		o.recordLastError(ctx, s, err)
		return nil
	}
	return err
}

// cancelSide submits the refund transaction on chain, mirroring
// withdrawSide's idempotent-revert handling (spec.md §4.5.3, §7).
func (o *Orchestrator) cancelSide(ctx context.Context, chain chainmodel.ChainID, s *swap.Swap) error {
	escrow := escrowAddress(s, chain)
	if escrow == "" {
		return nil
	}
	adapter, err := o.adapterFor(chain)
	if err != nil {
		return err
	}
	_, err = adapter.Cancel(ctx, escrow)
	if err == nil || chainadapter.AlreadyCancelled(err) {
		return nil
	}
	if chainadapter.IsRevert(err) {
		o.logger.Error("cancel reverted", zap.String("order_hash", s.OrderHash.String()),
			zap.String("chain", string(chain)), zap.Error(err))
		o.recordLastError(ctx, s, err)
		return nil
	}
	return err
}
