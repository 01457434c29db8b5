package chainadapter

import "errors"

// Transient transport errors: retried with bounded exponential backoff
// inside the adapter (spec.md §7). Surfaced only when the retry budget
// is exhausted, as ErrChainDegraded.
var (
	ErrRPCTimeout    = errors.New("chainadapter: rpc timeout")
	ErrCongestion    = errors.New("chainadapter: network congestion")
	ErrNonceConflict = errors.New("chainadapter: nonce/sequence conflict")
	ErrChainDegraded = errors.New("chainadapter: retry budget exhausted, chain degraded")
)

// EscrowReverted wraps an on-chain revert. Reverts are never retried by
// the adapter and never mark the swap FAILED by themselves — the
// Orchestrator re-evaluates on the next event or timer (spec.md §7).
type EscrowReverted struct {
	Reason string
}

func (e *EscrowReverted) Error() string { return "chainadapter: escrow reverted: " + e.Reason }

// AlreadyWithdrawn reports a revert whose reason indicates someone else
// already completed the withdrawal. Per spec.md §4.5.4 this is success,
// not failure, for an idempotent withdrawal handler.
func AlreadyWithdrawn(err error) bool {
	var reverted *EscrowReverted
	if !errors.As(err, &reverted) {
		return false
	}
	return reverted.Reason == "already withdrawn" || reverted.Reason == "already claimed"
}

// AlreadyCancelled reports a revert whose reason indicates the escrow
// was already refunded/cancelled by someone else.
func AlreadyCancelled(err error) bool {
	var reverted *EscrowReverted
	if !errors.As(err, &reverted) {
		return false
	}
	return reverted.Reason == "already cancelled" || reverted.Reason == "already refunded"
}

// IsRevert reports whether err is (or wraps) an on-chain revert.
func IsRevert(err error) bool {
	var reverted *EscrowReverted
	return errors.As(err, &reverted)
}

// IsTransient reports whether err is one of the transport-level errors
// that the retry helper should retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRPCTimeout) || errors.Is(err, ErrCongestion) || errors.Is(err, ErrNonceConflict)
}
