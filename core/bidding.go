package core

import "fmt"

// Bid applies call.Value as a bid from call.Caller.
//
// The value has already arrived with the call, so a rejected bid is credited
// back to the caller's ledger balance rather than lost. An accepted bid credits
// the displaced highest bidder with their previous bid. No outbound transfer is
// made on this path.
//
// The returned error is non-nil only on balance overflow, in which case the
// auction is unchanged and the host must abort the call.
func (a *Auction) Bid(call Call) (bool, error) {
	bidder, amount := call.Caller, call.Value

	switch {
	case a.ended:
		if err := a.ledger.Credit(bidder, amount); err != nil {
			return false, fmt.Errorf("refund bid after end: %w", err)
		}
		a.sink.Emit(BidRejectedAuctionEnded{Bidder: bidder, Amount: amount})
		return false, nil

	case amount <= a.startingPrice:
		if err := a.ledger.Credit(bidder, amount); err != nil {
			return false, fmt.Errorf("refund bid below starting price: %w", err)
		}
		a.sink.Emit(BidRejectedBelowStart{
			Bidder:        bidder,
			Amount:        amount,
			StartingPrice: a.startingPrice,
		})
		return false, nil

	case amount <= a.highestBid:
		if err := a.ledger.Credit(bidder, amount); err != nil {
			return false, fmt.Errorf("refund bid below highest bid: %w", err)
		}
		a.sink.Emit(BidRejectedBelowHighest{
			Bidder:        bidder,
			Amount:        amount,
			HighestBidder: a.highestBidder,
			HighestBid:    a.highestBid,
		})
		return false, nil
	}

	prevBidder, prevAmount := a.highestBidder, a.highestBid

	// Displacement refund lands before the new bid is committed.
	if err := a.ledger.Credit(prevBidder, prevAmount); err != nil {
		return false, fmt.Errorf("displacement refund: %w", err)
	}
	a.highestBid = amount
	a.highestBidder = bidder

	a.sink.Emit(NewHighestBid{
		PrevBidder: prevBidder,
		PrevAmount: prevAmount,
		NewBidder:  bidder,
		NewAmount:  amount,
	})
	return true, nil
}
