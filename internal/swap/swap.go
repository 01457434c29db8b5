// Package swap holds the Swap entity, its closed status enumeration, and
// the durable Swap Repository (spec.md §3, §4.6). Nothing here touches a
// chain; the Orchestrator is the only caller permitted to mutate a Swap,
// and always under its per-order-hash lock.
package swap

import (
	"errors"
	"fmt"
	"time"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

// Status is the closed enumeration from spec.md §4.5.6.
type Status int

const (
	StatusCreated Status = iota
	StatusSourceDeployed
	StatusSourceFunded
	StatusDestinationDeployed
	StatusDestinationFunded
	StatusSecretRevealed
	StatusSourceWithdrawn
	StatusDestinationWithdrawn
	StatusCompleted
	StatusCancelled
	StatusFailed

	statusCount
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusSourceDeployed:
		return "SOURCE_DEPLOYED"
	case StatusSourceFunded:
		return "SOURCE_FUNDED"
	case StatusDestinationDeployed:
		return "DESTINATION_DEPLOYED"
	case StatusDestinationFunded:
		return "DESTINATION_FUNDED"
	case StatusSecretRevealed:
		return "SECRET_REVEALED"
	case StatusSourceWithdrawn:
		return "SOURCE_WITHDRAWN"
	case StatusDestinationWithdrawn:
		return "DESTINATION_WITHDRAWN"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus decodes the repository's TEXT column back into a Status.
func ParseStatus(s string) (Status, error) {
	for st := Status(0); st < statusCount; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("swap: unknown status %q", s)
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Rank exposes a status's position in the linear CREATED..COMPLETED
// progression to callers outside this package (the Orchestrator's "has
// this milestone already been reached" checks), so they don't re-derive
// the ordering. ok is false only for CANCELLED and FAILED, which have no
// rank.
func Rank(s Status) (int, bool) {
	r, ok := rank[s]
	return r, ok
}

// rank gives every non-terminal status, plus COMPLETED, its position in
// the linear CREATED..COMPLETED progression from spec.md §4.5.6.
// SOURCE_WITHDRAWN and DESTINATION_WITHDRAWN are commutative (either may
// be observed first) so they share a rank; COMPLETED requires both.
var rank = map[Status]int{
	StatusCreated:              0,
	StatusSourceDeployed:       1,
	StatusSourceFunded:         2,
	StatusDestinationDeployed:  3,
	StatusDestinationFunded:    4,
	StatusSecretRevealed:       5,
	StatusSourceWithdrawn:      6,
	StatusDestinationWithdrawn: 6,
	StatusCompleted:            7,
}

// CanTransition reports whether moving from `from` to `to` is monotone
// under spec.md §3's invariant ("status advances monotonically ...
// backward transitions are forbidden except the explicit FAILED sink").
// FAILED is reachable from any non-terminal status; the other terminal
// sinks are reachable too, since cancellation/completion can follow any
// in-flight status. Once terminal, no further transition is allowed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	fr, ok1 := rank[from]
	tr, ok2 := rank[to]
	if !ok1 || !ok2 {
		return false
	}
	if from == StatusSourceWithdrawn && to == StatusDestinationWithdrawn {
		return true
	}
	if from == StatusDestinationWithdrawn && to == StatusSourceWithdrawn {
		return true
	}
	return tr > fr || (tr == fr && to != from)
}

// Swap is the central entity (spec.md §3).
type Swap struct {
	OrderHash chainmodel.OrderHash

	SrcChain, DstChain chainmodel.ChainID
	Maker, Taker       string
	MakerAsset         string
	TakerAsset         string
	MakingAmount       money.Amount
	TakingAmount       money.Amount

	Hashlock chainmodel.Hashlock
	Preimage chainmodel.Preimage // zero until known

	Timelocks timelock.Timelocks

	SrcEscrowAddress string
	DstEscrowAddress string

	// SrcWithdrawn/DstWithdrawn/SrcCancelled/DstCancelled track each
	// side's terminal on-chain outcome independently, since Status's
	// linear rank collapses SOURCE_WITHDRAWN and DESTINATION_WITHDRAWN
	// onto one rank (spec.md §4.5.6's commutative pair) and has no rank
	// at all for a lone-side cancellation. The Orchestrator derives
	// COMPLETED/CANCELLED from these flags rather than from Status alone.
	SrcWithdrawn  bool
	DstWithdrawn  bool
	SrcCancelled  bool
	DstCancelled  bool

	Status Status

	// LastError surfaces the most recent recoverable failure on the
	// status endpoint (supplemented feature, DESIGN.md). It is not part
	// of the persisted state machine's invariants: it is advisory only.
	// It is cleared when a destination deployment succeeds, a reveal is
	// accepted, or a withdrawal is observed; other status advances leave
	// it as it is.
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPreimage reports whether the preimage has been generated or observed.
func (s *Swap) HasPreimage() bool { return !s.Preimage.IsZero() }

var (
	ErrNotFound           = errors.New("swap: not found")
	ErrAlreadyExists       = errors.New("swap: order hash already exists")
	ErrBackwardTransition = errors.New("swap: backward status transition rejected")
	ErrStaleUpdate        = errors.New("swap: compare-and-swap failed, record changed concurrently")
)
