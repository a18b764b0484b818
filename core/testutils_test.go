package core

import (
	"errors"
	"testing"
	"time"
)

const (
	beneficiary ParticipantID = "beneficiary"
	alice       ParticipantID = "alice"
	bob         ParticipantID = "bob"
	carol       ParticipantID = "carol"
)

var errTransferFailed = errors.New("recipient rejected transfer")

// recordingSink keeps every emitted event in order.
type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) { r.events = append(r.events, e) }

func (r *recordingSink) last() Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func (r *recordingSink) kinds() []EventKind {
	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

// newTestAuction opens an auction at t=1000ms owned by beneficiary.
func newTestAuction(t *testing.T, startingPrice Amount, duration time.Duration) (*Auction, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	a, err := New(Call{Caller: beneficiary, Now: 1000}, startingPrice, duration, sink)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, sink
}

func mustBid(t *testing.T, a *Auction, caller ParticipantID, value Amount, now Timestamp) bool {
	t.Helper()
	accepted, err := a.Bid(Call{Caller: caller, Value: value, Now: now})
	if err != nil {
		t.Fatalf("Bid(%s, %d) error = %v", caller, value, err)
	}
	return accepted
}

func mustEnd(t *testing.T, a *Auction, caller ParticipantID, now Timestamp) bool {
	t.Helper()
	accepted, err := a.End(Call{Caller: caller, Now: now})
	if err != nil {
		t.Fatalf("End(%s) error = %v", caller, err)
	}
	return accepted
}

// okTransfer accepts every transfer and records what was paid.
type okTransfer struct {
	paid map[ParticipantID]Amount
}

func newOKTransfer() *okTransfer {
	return &okTransfer{paid: make(map[ParticipantID]Amount)}
}

func (o *okTransfer) Transfer(to ParticipantID, amount Amount) error {
	o.paid[to] += amount
	return nil
}

// transferFunc adapts a function to Transferrer.
type transferFunc func(to ParticipantID, amount Amount) error

func (f transferFunc) Transfer(to ParticipantID, amount Amount) error {
	return f(to, amount)
}

// hasEntry reports whether p has ever been credited in l.
func hasEntry(l *Ledger, p ParticipantID) bool {
	_, ok := l.balances[p]
	return ok
}

func failingTransfer() Transferrer {
	return transferFunc(func(ParticipantID, Amount) error { return errTransferFailed })
}
