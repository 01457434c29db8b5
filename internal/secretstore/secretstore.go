// Package secretstore generates, persists, and surfaces the preimages and
// hashlocks behind every swap (spec.md §4.1). It supports lookup by either
// key, the order hash or the hashlock; the Orchestrator itself looks
// records up by order hash.
package secretstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// HashFunc names a chain-appropriate hash function over a preimage.
type HashFunc int

const (
	SHA256 HashFunc = iota
	Keccak256
)

// Hash derives the hashlock for a preimage under the named function.
func Hash(fn HashFunc, preimage chainmodel.Preimage) chainmodel.Hashlock {
	switch fn {
	case Keccak256:
		h := sha3.NewLegacyKeccak256()
		h.Write(preimage.Bytes())
		hl, _ := chainmodel.HashlockFromBytes(h.Sum(nil))
		return hl
	default:
		sum := sha256.Sum256(preimage.Bytes())
		hl, _ := chainmodel.HashlockFromBytes(sum[:])
		return hl
	}
}

// Record is one secret's full lifecycle: generated (or observed), bound to
// at most one order hash, and optionally revealed.
type Record struct {
	Hashlock   chainmodel.Hashlock
	Preimage   chainmodel.Preimage // zero value until known
	OrderHash  chainmodel.OrderHash
	RevealedAt time.Time // zero value until revealed
}

func (r Record) hasPreimage() bool { return !r.Preimage.IsZero() }
func (r Record) isRevealed() bool  { return !r.RevealedAt.IsZero() }

// Sentinel errors from spec.md §4.1/§7.
var (
	ErrEntropyUnavailable = errors.New("secretstore: entropy source unavailable")
	ErrAlreadyBound       = errors.New("secretstore: a different preimage is already bound to this order")
	ErrPreimageMismatch   = errors.New("secretstore: revealed preimage does not match the bound preimage")
	ErrNotFound           = errors.New("secretstore: no record for key")
)

// Store is the Secret Store contract (spec.md §4.1). Implementations must
// make bind_to_order atomic and every write idempotent.
type Store interface {
	// NewSecret fills 32 bytes from a CSPRNG and returns the preimage,
	// before it is bound to any order. Callers derive each side's
	// hashlock from the preimage via Hash, since which hash function
	// applies is a property of the chain, not of the secret itself.
	// Fails with ErrEntropyUnavailable if the source cannot deliver.
	NewSecret(ctx context.Context) (chainmodel.Preimage, error)

	// BindToOrder idempotently associates preimage with orderHash, indexed
	// for lookup under hashlock too. hashlock is the caller's concern to
	// derive (via Hash, under the chain-appropriate HashFunc) since the
	// Store itself never picks a hash function. A second call with the
	// same preimage is a no-op; a call with a different preimage for an
	// already-bound order fails ErrAlreadyBound.
	BindToOrder(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) error

	// GetByOrder returns the record bound to orderHash, or ErrNotFound.
	GetByOrder(ctx context.Context, orderHash chainmodel.OrderHash) (Record, error)

	// GetByHashlock returns the record for hashlock, or ErrNotFound.
	GetByHashlock(ctx context.Context, hashlock chainmodel.Hashlock) (Record, error)

	// RecordReveal marks preimage as publicly known for orderHash, indexed
	// under hashlock the same way BindToOrder is. If no record exists
	// yet, it creates one. A second call with the same preimage is a
	// no-op (revealed_at is set once). Fails ErrPreimageMismatch if
	// preimage differs from an already-known one.
	RecordReveal(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) (Record, error)

	// GC drops records whose RevealedAt is older than threshold. Records
	// that were never revealed are never dropped.
	GC(ctx context.Context, olderThan time.Time) (int, error)
}

func newPreimage() (chainmodel.Preimage, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return chainmodel.Preimage{}, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return chainmodel.PreimageFromBytes(b[:])
}
