// Package chainadapter defines the uniform contract over any supported
// ledger (spec.md §4.3): watch events, deploy escrow, withdraw, cancel,
// read escrow state. Concrete adapters (evm, stellar) own their
// chain-specific wire format; the rest of the resolver treats this
// interface opaquely.
package chainadapter

import (
	"context"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

// EscrowState is the on-chain lifecycle state of one escrow instance.
type EscrowState int

const (
	StateUnknown EscrowState = iota
	StateCreated
	StateFunded
	StateWithdrawn
	StateCancelled
)

// DeployParams carries everything a ChainAdapter needs to create (or
// predict the address of) one escrow instance.
type DeployParams struct {
	OrderHash     chainmodel.OrderHash
	Hashlock      chainmodel.Hashlock
	Maker         string
	Taker         string
	Asset         string
	Amount        money.Amount
	SafetyDeposit money.Amount
	PackedTimelocks uint64
}

// EscrowInfo is returned by GetEscrowState: the contract's immutables
// plus its current lifecycle state.
type EscrowInfo struct {
	Params DeployParams
	State  EscrowState
}

// SubmissionID identifies an in-flight or confirmed transaction/ledger
// entry the adapter submitted, for logging and reconciliation.
type SubmissionID string

// ChainAdapter abstracts one ledger. Every operation is a suspension
// point (spec.md §5) and may fail with an error from this package's
// taxonomy (errors.go). Adapters own retry with bounded exponential
// backoff for transport errors but must surface on-chain reverts
// directly — never retry a revert.
type ChainAdapter interface {
	// ChainID reports which configured chain this adapter serves.
	ChainID() chainmodel.ChainID

	// LatestHeight returns the current confirmable height, already
	// discounted by the chain's configured confirmation depth.
	LatestHeight(ctx context.Context) (uint64, error)

	// PollEvents returns a bounded, ordered list of EscrowEvent in the
	// inclusive range [fromHeight, toHeight].
	PollEvents(ctx context.Context, fromHeight, toHeight uint64) ([]events.EscrowEvent, error)

	// PredictEscrow returns the address a successful DeployEscrow call
	// with the same params will produce, without submitting anything.
	PredictEscrow(ctx context.Context, params DeployParams) (string, error)

	// DeployEscrow submits a create-escrow transaction/invocation and
	// returns the escrow address plus the submission identifier.
	DeployEscrow(ctx context.Context, params DeployParams) (escrowAddress string, submission SubmissionID, err error)

	// FundEscrow moves asset to the escrow (EVM: approve+deposit;
	// Stellar: token transfer).
	FundEscrow(ctx context.Context, escrow string, amount money.Amount, asset string) (SubmissionID, error)

	// Withdraw submits the claim transaction; the chain contract
	// itself verifies the preimage.
	Withdraw(ctx context.Context, escrow string, preimage chainmodel.Preimage) (SubmissionID, error)

	// Cancel submits the refund transaction after the cancellation
	// deadline.
	Cancel(ctx context.Context, escrow string) (SubmissionID, error)

	// GetEscrowState reads the current immutables and lifecycle state
	// of an escrow.
	GetEscrowState(ctx context.Context, escrow string) (EscrowInfo, error)
}
