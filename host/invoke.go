package host

import (
	"fmt"
	"time"

	"github.com/cloudx-io/pullauction/core"
)

type operation func(a *core.Auction, env Env) (bool, error)

func callOf(env Env) core.Call {
	return core.Call{Caller: env.Caller(), Value: env.AttachedValue(), Now: env.Now()}
}

func bidOp(a *core.Auction, env Env) (bool, error) {
	return a.Bid(callOf(env))
}

func endOp(a *core.Auction, env Env) (bool, error) {
	return a.End(callOf(env))
}

func withdrawOp(a *core.Auction, env Env) (bool, error) {
	return a.Withdraw(callOf(env), env)
}

// callEnv is the Env handed to the contract for one invocation.
type callEnv struct {
	chain  *Chain
	caller core.ParticipantID
	value  core.Amount
	now    core.Timestamp
}

func (e *callEnv) Caller() core.ParticipantID { return e.caller }
func (e *callEnv) AttachedValue() core.Amount { return e.value }
func (e *callEnv) Now() core.Timestamp        { return e.now }

func (e *callEnv) Transfer(to core.ParticipantID, amount core.Amount) error {
	return e.chain.transfer(to, amount)
}

// snapshot is everything a failed call has to put back.
type snapshot struct {
	auction  *core.Auction
	accounts map[core.ParticipantID]core.Amount
	escrow   core.Amount
	events   int
}

func (c *Chain) capture() snapshot {
	s := snapshot{
		accounts: make(map[core.ParticipantID]core.Amount, len(c.accounts)),
		escrow:   c.escrow,
		events:   c.pending.Len(),
	}
	for p, balance := range c.accounts {
		s.accounts[p] = balance
	}
	if c.auction != nil {
		s.auction = c.auction.Clone()
	}
	return s
}

func (c *Chain) revert(s snapshot) {
	c.accounts = s.accounts
	c.escrow = s.escrow
	if c.auction != nil && s.auction != nil {
		c.auction.Rollback(s.auction)
	}
	c.pending.Truncate(s.events)
}

// Create deploys the auction with caller as beneficiary.
func (c *Chain) Create(caller core.ParticipantID, startingPrice core.Amount, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.auction != nil {
		return ErrAlreadyCreated
	}
	a, err := core.New(core.Call{Caller: caller, Now: c.clock}, startingPrice, duration, c.pending)
	if err != nil {
		c.pending.Drain()
		return fmt.Errorf("create auction: %w", err)
	}
	c.auction = a
	c.flush()

	c.logger.Info().
		Str("beneficiary", string(caller)).
		Uint64("starting_price", uint64(startingPrice)).
		Dur("duration", duration).
		Msg("Auction deployed")
	return nil
}

// Op names a state-changing contract operation.
type Op string

const (
	OpBid      Op = "bid"
	OpEnd      Op = "end"
	OpWithdraw Op = "withdraw"
)

var operations = map[Op]operation{
	OpBid:      bidOp,
	OpEnd:      endOp,
	OpWithdraw: withdrawOp,
}

// Outcome is the result of a committed call and the events it produced.
type Outcome struct {
	Accepted bool
	Events   []core.Event
}

// Invoke runs op on behalf of caller with value attached. The call commits or
// rolls back as a whole; events are published to the sink only on commit.
func (c *Chain) Invoke(op Op, caller core.ParticipantID, value core.Amount) (Outcome, error) {
	fn, ok := operations[op]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown operation %q", op)
	}
	if op != OpBid && value != 0 {
		return Outcome{}, fmt.Errorf("%s does not accept value", op)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	accepted, err := c.invoke(string(op), caller, value, fn)
	if err != nil {
		c.pending.Drain()
		return Outcome{}, err
	}
	return Outcome{Accepted: accepted, Events: c.flush()}, nil
}

// Bid calls bid on behalf of caller with value attached.
func (c *Chain) Bid(caller core.ParticipantID, value core.Amount) (bool, error) {
	out, err := c.Invoke(OpBid, caller, value)
	return out.Accepted, err
}

// End calls end on behalf of caller.
func (c *Chain) End(caller core.ParticipantID) (bool, error) {
	out, err := c.Invoke(OpEnd, caller, 0)
	return out.Accepted, err
}

// Withdraw calls withdraw on behalf of caller.
func (c *Chain) Withdraw(caller core.ParticipantID) (bool, error) {
	out, err := c.Invoke(OpWithdraw, caller, 0)
	return out.Accepted, err
}

// invoke runs op with all-or-nothing semantics. It is also the entry point for
// nested calls made by receive hooks, which run under the caller's lock.
func (c *Chain) invoke(name string, caller core.ParticipantID, value core.Amount, op operation) (bool, error) {
	if c.auction == nil {
		return false, ErrNotCreated
	}

	snap := c.capture()

	if err := c.debit(caller, value); err != nil {
		c.revert(snap)
		return false, fmt.Errorf("%s by %s: %w", name, caller, err)
	}

	env := &callEnv{chain: c, caller: caller, value: value, now: c.clock}
	accepted, err := op(c.auction, env)
	if err != nil {
		c.revert(snap)
		c.logger.Error().Err(err).Str("op", name).Str("caller", string(caller)).Msg("Call aborted and rolled back")
		return false, fmt.Errorf("%s by %s: %w", name, caller, err)
	}

	c.logger.Debug().
		Str("op", name).
		Str("caller", string(caller)).
		Uint64("value", uint64(value)).
		Bool("accepted", accepted).
		Msg("Call complete")
	return accepted, nil
}

// debit moves attached value from the caller's account into escrow.
func (c *Chain) debit(caller core.ParticipantID, value core.Amount) error {
	if value == 0 {
		return nil
	}
	if c.accounts[caller] < value {
		return ErrInsufficientFunds
	}
	escrow, err := c.escrow.Add(value)
	if err != nil {
		return err
	}
	c.accounts[caller] -= value
	c.escrow = escrow
	return nil
}

// transfer pays amount out of escrow to the recipient and runs its receive hook.
func (c *Chain) transfer(to core.ParticipantID, amount core.Amount) error {
	if n, ok := c.failures[to]; ok && n != 0 {
		if n > 0 {
			c.failures[to] = n - 1
		}
		c.logger.Warn().Str("to", string(to)).Uint64("amount", uint64(amount)).Msg("Injected transfer failure")
		return ErrTransferRejected
	}
	if c.escrow < amount {
		return ErrEscrowShortfall
	}

	snap := c.capture()

	credited, err := c.accounts[to].Add(amount)
	if err != nil {
		return fmt.Errorf("credit recipient %s: %w", to, err)
	}
	c.escrow -= amount
	c.accounts[to] = credited

	if hook := c.hooks[to]; hook != nil {
		if err := hook(&Contract{chain: c, caller: to}, amount); err != nil {
			c.revert(snap)
			c.logger.Warn().Err(err).Str("to", string(to)).Msg("Recipient rejected transfer")
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}
	return nil
}

func (c *Chain) flush() []core.Event {
	events := c.pending.Drain()
	for _, e := range events {
		c.sink.Emit(e)
	}
	return events
}

// Contract is the handle a receive hook uses to call back into the auction
// while a transfer to it is in flight.
type Contract struct {
	chain  *Chain
	caller core.ParticipantID
}

// Caller is the participant the hook runs as.
func (k *Contract) Caller() core.ParticipantID { return k.caller }

// Bid re-enters bid with value taken from the caller's account.
func (k *Contract) Bid(value core.Amount) (bool, error) {
	return k.chain.invoke("bid", k.caller, value, bidOp)
}

// End re-enters end.
func (k *Contract) End() (bool, error) {
	return k.chain.invoke("end", k.caller, 0, endOp)
}

// Withdraw re-enters withdraw.
func (k *Contract) Withdraw() (bool, error) {
	return k.chain.invoke("withdraw", k.caller, 0, withdrawOp)
}

// BalanceOf reads a ledger balance mid-call.
func (k *Contract) BalanceOf(p core.ParticipantID) core.Amount {
	return k.chain.auction.BalanceOf(p)
}
