// Package money implements arbitrary-precision, non-negative integer
// amounts in an asset's smallest unit. Amounts are never floating-point
// and never bare strings once past a handler boundary.
package money

import (
	"fmt"
	"math/big"
)

// Amount wraps math/big.Int and forbids negative values. The zero value
// is zero, which is a valid (if usually rejected-at-intake) amount.
type Amount struct {
	v big.Int
}

// Parse decodes a decimal-integer string in the asset's smallest unit.
// Returns an error if the string is not a valid non-negative integer.
func Parse(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("money: empty amount")
	}
	var v big.Int
	if _, ok := v.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("money: %q is not a valid base-10 integer", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("money: amount %q is negative", s)
	}
	return Amount{v: v}, nil
}

// FromUint64 builds an Amount from a native unsigned integer.
func FromUint64(u uint64) Amount {
	var v big.Int
	v.SetUint64(u)
	return Amount{v: v}
}

func (a Amount) String() string { return a.v.String() }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.v.Sign() == 0 }

// Big returns a copy of the underlying big.Int so callers cannot mutate
// the Amount through the pointer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(&a.v) }

// Cmp compares two amounts the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// MarshalJSON encodes the amount as a JSON string, never a JSON number,
// so large values never round-trip through a float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
