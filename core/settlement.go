package core

import "fmt"

// End closes the auction.
//
// Guards are checked in order: an ended auction stays ended; before the
// deadline only the beneficiary may end it; after the deadline anyone may.
// The winning bid is credited to the beneficiary's ledger balance and is
// withdrawn through the same pull path as every other balance.
func (a *Auction) End(call Call) (bool, error) {
	if a.ended {
		a.sink.Emit(AlreadyEnded{HighestBidder: a.highestBidder, HighestBid: a.highestBid})
		return false, nil
	}

	if call.Caller != a.beneficiary && !a.deadlinePassed(call.Now) {
		a.sink.Emit(NotAuthorizedToEnd{Caller: call.Caller, Beneficiary: a.beneficiary})
		return false, nil
	}

	if err := a.ledger.Credit(a.beneficiary, a.highestBid); err != nil {
		return false, fmt.Errorf("settle winning bid: %w", err)
	}
	a.ended = true

	a.sink.Emit(Ended{HighestBidder: a.highestBidder, HighestBid: a.highestBid})
	return true, nil
}

func (a *Auction) deadlinePassed(now Timestamp) bool {
	return a.hasDeadline && EndTimeReached(now, a.endTime)
}
