package core

import (
	"errors"
	"math/bits"
)

// ErrAmountOverflow is returned when a balance addition would wrap.
// The call that hit it must be aborted and rolled back by the host.
var ErrAmountOverflow = errors.New("amount overflow")

// Amount is a value in base units. Additions are always checked.
type Amount uint64

// Add returns a+b, or ErrAmountOverflow if the sum does not fit.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(sum), nil
}

// ParticipantID identifies an account. Only compared for equality.
type ParticipantID string

// Timestamp is milliseconds since the Unix epoch as reported by the host clock.
type Timestamp uint64

// Call carries the per-invocation context resolved by the host: who is calling,
// how much value arrived with the call, and the host's current time.
type Call struct {
	Caller ParticipantID
	Value  Amount
	Now    Timestamp
}

// Transferrer moves value out of the contract. It is the only point where
// control can pass to untrusted code.
type Transferrer interface {
	Transfer(to ParticipantID, amount Amount) error
}
