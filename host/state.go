package host

import (
	"fmt"
	"time"

	"github.com/cloudx-io/pullauction/core"
)

// State is a read-only view of the deployed auction.
type State struct {
	Beneficiary   core.ParticipantID
	HighestBidder core.ParticipantID
	HighestBid    core.Amount
	StartingPrice core.Amount
	AskingPrice   core.Amount
	Ended         bool
	CreatedTime   core.Timestamp
	EndTime       core.Timestamp
	HasDeadline   bool
	TimeLeft      time.Duration
	Now           core.Timestamp
	Escrow        core.Amount
	Balances      map[core.ParticipantID]core.Amount
}

// State returns the current auction view.
func (c *Chain) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.auction
	if a == nil {
		return State{}, ErrNotCreated
	}

	balances := make(map[core.ParticipantID]core.Amount)
	for _, p := range a.Ledger().Participants() {
		balances[p] = a.BalanceOf(p)
	}

	return State{
		Beneficiary:   a.Beneficiary(),
		HighestBidder: a.HighestBidder(),
		HighestBid:    a.HighestBid(),
		StartingPrice: a.StartingPrice(),
		AskingPrice:   a.CurrentAskingPrice(),
		Ended:         a.IsEnded(),
		CreatedTime:   a.CreatedTime(),
		EndTime:       a.EndTime(),
		HasDeadline:   a.HasDeadline(),
		TimeLeft:      a.TimeLeft(c.clock),
		Now:           c.clock,
		Escrow:        c.escrow,
		Balances:      balances,
	}, nil
}

// BalanceOf returns a participant's withdrawable ledger balance.
func (c *Chain) BalanceOf(p core.ParticipantID) (core.Amount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auction == nil {
		return 0, ErrNotCreated
	}
	return c.auction.BalanceOf(p), nil
}

// Snapshot returns an independent copy of the auction, for receipts and reports.
func (c *Chain) Snapshot() (*core.Auction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auction == nil {
		return nil, ErrNotCreated
	}
	return c.auction.Clone(), nil
}

// CheckSolvency verifies that escrow covers exactly the ledger plus the locked bid.
func (c *Chain) CheckSolvency() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auction == nil {
		return ErrNotCreated
	}

	total, err := c.auction.Ledger().Total()
	if err != nil {
		return fmt.Errorf("sum ledger: %w", err)
	}
	owed, err := total.Add(c.auction.Locked())
	if err != nil {
		return fmt.Errorf("sum obligations: %w", err)
	}
	if owed != c.escrow {
		return fmt.Errorf("%w: escrow %d, owed %d", ErrEscrowShortfall, c.escrow, owed)
	}
	return nil
}
