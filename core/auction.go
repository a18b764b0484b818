package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNegativeDuration is returned by New for a negative bidding window.
var ErrNegativeDuration = errors.New("negative auction duration")

// Auction is the complete contract state: the bidding record plus the ledger.
// It is not safe for concurrent use; the host serializes calls.
type Auction struct {
	beneficiary   ParticipantID
	highestBidder ParticipantID
	highestBid    Amount
	startingPrice Amount
	ended         bool
	createdTime   Timestamp
	endTime       Timestamp
	hasDeadline   bool

	ledger *Ledger
	sink   Sink
}

// New opens an auction on behalf of call.Caller, who becomes the beneficiary.
//
// A zero duration opens an auction without a time window; only the beneficiary
// can end it. Otherwise anyone may end it once call.Now + duration, rounded up
// to whole milliseconds, has passed.
// The caller starts out as the recorded highest bidder with a zero bid.
func New(call Call, startingPrice Amount, duration time.Duration, sink Sink) (*Auction, error) {
	if duration < 0 {
		return nil, ErrNegativeDuration
	}
	if sink == nil {
		sink = NopSink
	}

	// Timestamps are whole milliseconds; round partial ones up so a positive
	// window never ends at its own creation time.
	window := duration.Milliseconds()
	if duration%time.Millisecond != 0 {
		window++
	}
	endTime, err := Amount(call.Now).Add(Amount(window))
	if err != nil {
		return nil, fmt.Errorf("compute end time: %w", err)
	}

	a := &Auction{
		beneficiary:   call.Caller,
		highestBidder: call.Caller,
		startingPrice: startingPrice,
		createdTime:   call.Now,
		endTime:       Timestamp(endTime),
		hasDeadline:   duration > 0,
		ledger:        NewLedger(),
		sink:          sink,
	}

	a.sink.Emit(Created{
		Beneficiary:   a.beneficiary,
		StartingPrice: a.startingPrice,
		CreatedTime:   a.createdTime,
		EndTime:       a.endTime,
	})
	return a, nil
}

func (a *Auction) Beneficiary() ParticipantID   { return a.beneficiary }
func (a *Auction) HighestBidder() ParticipantID { return a.highestBidder }
func (a *Auction) HighestBid() Amount           { return a.highestBid }
func (a *Auction) StartingPrice() Amount        { return a.startingPrice }
func (a *Auction) IsEnded() bool                { return a.ended }
func (a *Auction) CreatedTime() Timestamp       { return a.createdTime }
func (a *Auction) EndTime() Timestamp           { return a.endTime }

// HasDeadline reports whether the auction was opened with a time window.
func (a *Auction) HasDeadline() bool { return a.hasDeadline }

// CurrentAskingPrice is the amount a new bid has to beat.
func (a *Auction) CurrentAskingPrice() Amount {
	return max(a.highestBid, a.startingPrice)
}

// TimeLeft returns the time until anyone may end the auction. The deadline is
// strict, so at EndTime itself one millisecond is still left. It is zero once
// EndTimeReached holds, the auction has ended, or there is no window.
func (a *Auction) TimeLeft(now Timestamp) time.Duration {
	if a.ended || !a.hasDeadline || EndTimeReached(now, a.endTime) {
		return 0
	}
	return time.Duration(a.endTime-now+1) * time.Millisecond
}

// BalanceOf returns the participant's withdrawable balance.
func (a *Auction) BalanceOf(p ParticipantID) Amount {
	return a.ledger.BalanceOf(p)
}

// Ledger exposes the ledger for read-only reporting.
func (a *Auction) Ledger() *Ledger {
	return a.ledger
}

// Locked returns the value held for the current highest bid. It is zero once
// the auction has ended, because settlement moves it into the beneficiary's balance.
func (a *Auction) Locked() Amount {
	if a.ended {
		return 0
	}
	return a.highestBid
}

// Clone returns a deep copy sharing the same sink. The host uses it to roll back
// a call that aborted.
func (a *Auction) Clone() *Auction {
	c := *a
	c.ledger = a.ledger.Clone()
	return &c
}

// Rollback resets a in place to the state captured by snapshot. Callers that
// still hold a keep seeing the restored state.
func (a *Auction) Rollback(snapshot *Auction) {
	*a = *snapshot.Clone()
}
