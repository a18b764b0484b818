package core

import (
	"fmt"
	"sort"
)

// Ledger maps participants to their withdrawable balance.
// Entries are created on first credit and never removed; a withdrawn
// participant stays in the map with a zero balance.
type Ledger struct {
	balances map[ParticipantID]Amount
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[ParticipantID]Amount)}
}

// Credit adds amount to the participant's balance, creating the entry at zero
// first if it is absent. The ledger is left untouched on overflow.
func (l *Ledger) Credit(p ParticipantID, amount Amount) error {
	current, ok := l.balances[p]
	if !ok {
		l.balances[p] = 0
	}
	next, err := current.Add(amount)
	if err != nil {
		if !ok {
			delete(l.balances, p)
		}
		return fmt.Errorf("credit %s with %d: %w", p, amount, err)
	}
	l.balances[p] = next
	return nil
}

// BalanceOf returns the participant's balance, or zero if it has no entry.
func (l *Ledger) BalanceOf(p ParticipantID) Amount {
	return l.balances[p]
}

// Zero clears the participant's balance and returns what it held.
func (l *Ledger) Zero(p ParticipantID) Amount {
	prior, ok := l.balances[p]
	if !ok {
		return 0
	}
	l.balances[p] = 0
	return prior
}

// Restore re-credits an amount that a failed transfer could not move.
// It adds rather than sets so credits made while the transfer was in flight survive.
func (l *Ledger) Restore(p ParticipantID, amount Amount) error {
	if err := l.Credit(p, amount); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// Total returns the sum of all balances.
func (l *Ledger) Total() (Amount, error) {
	var total Amount
	for _, balance := range l.balances {
		next, err := total.Add(balance)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Participants returns every participant with an entry, sorted.
func (l *Ledger) Participants() []ParticipantID {
	participants := make([]ParticipantID, 0, len(l.balances))
	for p := range l.balances {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i] < participants[j]
	})
	return participants
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	balances := make(map[ParticipantID]Amount, len(l.balances))
	for p, balance := range l.balances {
		balances[p] = balance
	}
	return &Ledger{balances: balances}
}
