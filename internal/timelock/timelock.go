// Package timelock tracks the eight-stage HTLC timelock schedule for a
// swap and emits stage-transition events on wall-clock boundaries. It
// has no cryptography and no chain access.
package timelock

import (
	"fmt"
	"time"
)

// Stage names one of the eight timelock deadlines.
type Stage int

const (
	SrcWithdrawal Stage = iota
	SrcPublicWithdrawal
	SrcCancellation
	SrcPublicCancellation
	DstWithdrawal
	DstPublicWithdrawal
	DstCancellation
	DstPublicCancellation

	stageCount
)

func (s Stage) String() string {
	switch s {
	case SrcWithdrawal:
		return "src_withdrawal"
	case SrcPublicWithdrawal:
		return "src_public_withdrawal"
	case SrcCancellation:
		return "src_cancellation"
	case SrcPublicCancellation:
		return "src_public_cancellation"
	case DstWithdrawal:
		return "dst_withdrawal"
	case DstPublicWithdrawal:
		return "dst_public_withdrawal"
	case DstCancellation:
		return "dst_cancellation"
	case DstPublicCancellation:
		return "dst_public_cancellation"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Action is a chain-action gate checked via Scheduler.IsAllowed. It
// maps one-to-one onto the withdraw/cancel stages (the plain withdrawal
// stages don't gate an action by themselves — see spec.md §4.5.3).
type Action = Stage

// Timelocks holds the eight absolute UNIX-second deadlines for one swap,
// in their canonical unpacked form.
type Timelocks struct {
	SrcWithdrawal         time.Time
	SrcPublicWithdrawal   time.Time
	SrcCancellation       time.Time
	SrcPublicCancellation time.Time
	DstWithdrawal         time.Time
	DstPublicWithdrawal   time.Time
	DstCancellation       time.Time
	DstPublicCancellation time.Time
}

// At returns the deadline for a given stage.
func (t Timelocks) At(s Stage) time.Time {
	switch s {
	case SrcWithdrawal:
		return t.SrcWithdrawal
	case SrcPublicWithdrawal:
		return t.SrcPublicWithdrawal
	case SrcCancellation:
		return t.SrcCancellation
	case SrcPublicCancellation:
		return t.SrcPublicCancellation
	case DstWithdrawal:
		return t.DstWithdrawal
	case DstPublicWithdrawal:
		return t.DstPublicWithdrawal
	case DstCancellation:
		return t.DstCancellation
	case DstPublicCancellation:
		return t.DstPublicCancellation
	default:
		panic(fmt.Sprintf("timelock: unknown stage %d", int(s)))
	}
}

// Stages returns all eight stages in ascending evaluation order (src
// group followed by dst group, which is also declaration order above).
func Stages() []Stage {
	out := make([]Stage, 0, stageCount)
	for i := Stage(0); i < stageCount; i++ {
		out = append(out, i)
	}
	return out
}

// Validate checks the ordering invariants from spec.md §3:
//
//	src_withdrawal <= src_public_withdrawal < src_cancellation <= src_public_cancellation
//	dst_withdrawal <= dst_public_withdrawal < dst_cancellation <= dst_public_cancellation
//	dst_withdrawal <= src_withdrawal
func (t Timelocks) Validate() error {
	if t.SrcWithdrawal.After(t.SrcPublicWithdrawal) {
		return fmt.Errorf("timelock: src_withdrawal must be <= src_public_withdrawal")
	}
	if !t.SrcPublicWithdrawal.Before(t.SrcCancellation) {
		return fmt.Errorf("timelock: src_public_withdrawal must be < src_cancellation")
	}
	if t.SrcCancellation.After(t.SrcPublicCancellation) {
		return fmt.Errorf("timelock: src_cancellation must be <= src_public_cancellation")
	}
	if t.DstWithdrawal.After(t.DstPublicWithdrawal) {
		return fmt.Errorf("timelock: dst_withdrawal must be <= dst_public_withdrawal")
	}
	if !t.DstPublicWithdrawal.Before(t.DstCancellation) {
		return fmt.Errorf("timelock: dst_public_withdrawal must be < dst_cancellation")
	}
	if t.DstCancellation.After(t.DstPublicCancellation) {
		return fmt.Errorf("timelock: dst_cancellation must be <= dst_public_cancellation")
	}
	if t.DstWithdrawal.After(t.SrcWithdrawal) {
		return fmt.Errorf("timelock: dst_withdrawal must open no later than src_withdrawal")
	}
	return nil
}

// StrictlyAdvances reports whether every stage of `next` is strictly
// later than the corresponding stage of t — the condition under which
// Scheduler.Register is allowed to replace an existing schedule.
func (t Timelocks) StrictlyAdvances(next Timelocks) bool {
	for _, s := range Stages() {
		if !t.At(s).Before(next.At(s)) {
			return false
		}
	}
	return true
}

// maxHourOffset is the largest hour offset one packed byte holds; Pack
// takes the base timestamp the offsets are relative to as an argument.
// The off-chain model keeps both forms; only the unpacked
// struct above is canonical here, but the packed form is what the chain
// adapters hand to contracts.
const maxHourOffset = 255

// Pack encodes the eight deadlines as hour offsets (capped at 255) from
// base, one byte per stage, low byte first — matching the on-chain
// packed representation described in spec.md §3.
func (t Timelocks) Pack(base time.Time) uint64 {
	var packed uint64
	for i, s := range Stages() {
		offset := hoursSince(base, t.At(s))
		packed |= uint64(offset) << (8 * uint(i))
	}
	return packed
}

// Unpack reverses Pack given the same base timestamp.
func Unpack(packed uint64, base time.Time) Timelocks {
	var t Timelocks
	hours := make([]uint8, stageCount)
	for i := range hours {
		hours[i] = uint8(packed >> (8 * uint(i)))
	}
	setters := []*time.Time{
		&t.SrcWithdrawal, &t.SrcPublicWithdrawal, &t.SrcCancellation, &t.SrcPublicCancellation,
		&t.DstWithdrawal, &t.DstPublicWithdrawal, &t.DstCancellation, &t.DstPublicCancellation,
	}
	for i, hrs := range hours {
		*setters[i] = base.Add(time.Duration(hrs) * time.Hour)
	}
	return t
}

func hoursSince(base, target time.Time) uint8 {
	if target.Before(base) {
		return 0
	}
	hrs := int64(target.Sub(base) / time.Hour)
	if hrs > maxHourOffset {
		return maxHourOffset
	}
	return uint8(hrs)
}
