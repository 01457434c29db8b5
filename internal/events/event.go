// Package events defines the canonical EscrowEvent surfaced by the Event
// Ingestor to the Orchestrator: a closed sum type over the five escrow
// lifecycle variants named in spec.md §3.
package events

import (
	"fmt"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

// Kind is the tag of an EscrowEvent.
type Kind int

const (
	Created Kind = iota
	Funded
	SecretRevealed
	Withdrawn
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Funded:
		return "Funded"
	case SecretRevealed:
		return "SecretRevealed"
	case Withdrawn:
		return "Withdrawn"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// EscrowEvent is the canonical event emitted by a ChainAdapter's
// poll_events and consumed by the Orchestrator. At most one of the
// payload fields below is meaningful, selected by Kind — this is Go's
// idiomatic stand-in for a tagged union where the variants share most
// of their envelope fields (chain, escrow, order hash, position).
type EscrowEvent struct {
	Kind      Kind
	Chain     chainmodel.ChainID
	Escrow    string // chain-native escrow address
	OrderHash chainmodel.OrderHash

	// Height and TxID/LogIndex identify the event's position for
	// ordering, deduplication, and reorg detection.
	Height   uint64
	TxID     string
	LogIndex uint32

	// Payload fields; populated according to Kind.
	FundedAmount   money.Amount        // Funded
	RevealedSecret chainmodel.Preimage // SecretRevealed
}

// Position is the (TxID, LogIndex) pair the Event Ingestor uses to
// detect a reorg: a different event observed at an already-processed
// height.
func (e EscrowEvent) Position() (string, uint32) { return e.TxID, e.LogIndex }
