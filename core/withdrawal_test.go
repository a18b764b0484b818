package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestWithdraw_ZeroBalanceIsNoOp(t *testing.T) {
	a, sink := newTestAuction(t, 5, time.Minute)
	eventsBefore := len(sink.events)

	transfer := newOKTransfer()
	ok, err := a.Withdraw(Call{Caller: alice, Now: 2000}, transfer)

	check.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, 0, len(transfer.paid))
	check.False(t, hasEntry(a.Ledger(), alice))
	check.Equal(t, eventsBefore, len(sink.events))
}

func TestWithdraw_SucceedsOnceThenFalse(t *testing.T) {
	a, sink := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 3, 2000)

	transfer := newOKTransfer()
	ok, err := a.Withdraw(Call{Caller: alice, Now: 2100}, transfer)
	check.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, Amount(0), a.BalanceOf(alice))
	check.Equal(t, Amount(3), transfer.paid[alice])
	check.Equal(t, Event(Withdrawal{Participant: alice, Amount: 3}), sink.last())

	ok, err = a.Withdraw(Call{Caller: alice, Now: 2200}, transfer)
	check.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, Amount(3), transfer.paid[alice])
	check.True(t, hasEntry(a.Ledger(), alice))
}

func TestWithdraw_FailedTransferRestoresBalance(t *testing.T) {
	a, sink := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 6, 2000)
	mustBid(t, a, bob, 7, 2100)
	eventsBefore := len(sink.events)

	ok, err := a.Withdraw(Call{Caller: alice, Now: 2200}, failingTransfer())
	check.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, Amount(6), a.BalanceOf(alice))
	check.Equal(t, eventsBefore, len(sink.events))

	// A later withdrawal with a working transfer still pays the full amount
	transfer := newOKTransfer()
	ok, err = a.Withdraw(Call{Caller: alice, Now: 2300}, transfer)
	check.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, Amount(6), transfer.paid[alice])
}

func TestWithdraw_BalanceIsZeroDuringTransfer(t *testing.T) {
	a, _ := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 4, 2000)

	var observed Amount = math.MaxUint64
	transfer := transferFunc(func(to ParticipantID, amount Amount) error {
		observed = a.BalanceOf(to)
		return nil
	})

	ok, err := a.Withdraw(Call{Caller: alice, Now: 2100}, transfer)
	check.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, Amount(0), observed)
}

func TestWithdraw_ReentrantWithdrawIsNoOp(t *testing.T) {
	a, sink := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 4, 2000)

	var paid Amount
	var nested []bool
	var transfer Transferrer
	transfer = transferFunc(func(to ParticipantID, amount Amount) error {
		paid += amount
		// The recipient calls back into Withdraw before the outer call returns
		if len(nested) < 3 {
			ok, err := a.Withdraw(Call{Caller: to, Now: 2100}, transfer)
			assert.NoError(t, err)
			nested = append(nested, ok)
		}
		return nil
	})

	ok, err := a.Withdraw(Call{Caller: alice, Now: 2100}, transfer)
	check.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, Amount(4), paid)
	check.Equal(t, []bool{false}, nested)
	check.Equal(t, Amount(0), a.BalanceOf(alice))
	check.Equal(t, 1, countKind(sink, KindWithdrawal))
}

func TestWithdraw_ReentrantBidDuringFailedTransferIsKept(t *testing.T) {
	a, _ := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 4, 2000)

	transfer := transferFunc(func(to ParticipantID, amount Amount) error {
		// A rejected bid made from inside the transfer credits alice again
		_, err := a.Bid(Call{Caller: to, Value: 2, Now: 2100})
		assert.NoError(t, err)
		return errTransferFailed
	})

	ok, err := a.Withdraw(Call{Caller: alice, Now: 2100}, transfer)
	check.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, Amount(6), a.BalanceOf(alice))
}

func TestWithdraw_RestoreOverflowIsReported(t *testing.T) {
	a, _ := newTestAuction(t, 5, time.Minute)
	mustBid(t, a, alice, 4, 2000)

	transfer := transferFunc(func(to ParticipantID, amount Amount) error {
		assert.NoError(t, a.ledger.Credit(to, math.MaxUint64))
		return errTransferFailed
	})

	ok, err := a.Withdraw(Call{Caller: alice, Now: 2100}, transfer)
	check.False(t, ok)
	check.True(t, errors.Is(err, ErrAmountOverflow))
}

func countKind(sink *recordingSink, kind EventKind) int {
	n := 0
	for _, e := range sink.events {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}
