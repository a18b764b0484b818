package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestAmount_Add(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Amount
		want    Amount
		wantErr bool
	}{
		{"zero plus zero", 0, 0, 0, false},
		{"small values", 6, 7, 13, false},
		{"max plus zero", math.MaxUint64, 0, math.MaxUint64, false},
		{"max plus one overflows", math.MaxUint64, 1, 0, true},
		{"two halves overflow", math.MaxUint64/2 + 1, math.MaxUint64/2 + 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if tt.wantErr {
				check.True(t, errors.Is(err, ErrAmountOverflow))
				return
			}
			check.NoError(t, err)
			check.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_CreditCreatesEntryLazily(t *testing.T) {
	l := NewLedger()
	check.False(t, hasEntry(l, alice))
	check.Equal(t, Amount(0), l.BalanceOf(alice))

	assert.NoError(t, l.Credit(alice, 0))
	check.True(t, hasEntry(l, alice))
	check.Equal(t, Amount(0), l.BalanceOf(alice))

	assert.NoError(t, l.Credit(alice, 6))
	assert.NoError(t, l.Credit(alice, 4))
	check.Equal(t, Amount(10), l.BalanceOf(alice))
}

func TestLedger_CreditOverflowLeavesLedgerUnchanged(t *testing.T) {
	l := NewLedger()
	assert.NoError(t, l.Credit(alice, math.MaxUint64))

	err := l.Credit(alice, 1)
	check.True(t, errors.Is(err, ErrAmountOverflow))
	check.Equal(t, Amount(math.MaxUint64), l.BalanceOf(alice))
}

func TestLedger_ZeroReturnsPriorAndKeepsEntry(t *testing.T) {
	l := NewLedger()
	assert.NoError(t, l.Credit(alice, 6))

	check.Equal(t, Amount(6), l.Zero(alice))
	check.Equal(t, Amount(0), l.BalanceOf(alice))
	check.True(t, hasEntry(l, alice))

	// Zeroing again returns nothing
	check.Equal(t, Amount(0), l.Zero(alice))

	// Zeroing an absent participant does not create an entry
	check.Equal(t, Amount(0), l.Zero(bob))
	check.False(t, hasEntry(l, bob))
}

func TestLedger_RestoreAddsOnTopOfInFlightCredits(t *testing.T) {
	l := NewLedger()
	assert.NoError(t, l.Credit(alice, 6))

	prior := l.Zero(alice)
	// A credit lands while the transfer is in flight
	assert.NoError(t, l.Credit(alice, 3))

	assert.NoError(t, l.Restore(alice, prior))
	check.Equal(t, Amount(9), l.BalanceOf(alice))
}

func TestLedger_TotalAndParticipants(t *testing.T) {
	l := NewLedger()
	assert.NoError(t, l.Credit(carol, 5))
	assert.NoError(t, l.Credit(alice, 6))
	assert.NoError(t, l.Credit(bob, 0))

	total, err := l.Total()
	check.NoError(t, err)
	check.Equal(t, Amount(11), total)
	check.Equal(t, []ParticipantID{alice, bob, carol}, l.Participants())
}

func TestLedger_CloneIsIndependent(t *testing.T) {
	l := NewLedger()
	assert.NoError(t, l.Credit(alice, 6))

	c := l.Clone()
	assert.NoError(t, c.Credit(alice, 1))
	assert.NoError(t, c.Credit(bob, 2))

	check.Equal(t, Amount(6), l.BalanceOf(alice))
	check.False(t, hasEntry(l, bob))
	check.Equal(t, Amount(7), c.BalanceOf(alice))
}

func TestEndTimeReached(t *testing.T) {
	tests := []struct {
		name     string
		now, end Timestamp
		expected bool
	}{
		{"before end", 999, 1000, false},
		{"exactly at end", 1000, 1000, false},
		{"just after end", 1001, 1000, true},
		{"zero clock", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, EndTimeReached(tt.now, tt.end))
		})
	}
}
