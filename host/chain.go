// Package host simulates the execution environment an auction contract runs in:
// external account balances, the contract's escrow, a clock, serialized calls,
// all-or-nothing rollback, and recipients that run code when paid.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/observe"
)

var (
	ErrNotCreated        = errors.New("auction not created")
	ErrAlreadyCreated    = errors.New("auction already created")
	ErrInsufficientFunds = errors.New("insufficient account funds")
	ErrTransferRejected  = errors.New("transfer rejected by recipient")
	ErrEscrowShortfall   = errors.New("contract escrow shortfall")
)

// Env is the per-call view of the host that the contract consumes.
type Env interface {
	core.Transferrer
	Caller() core.ParticipantID
	AttachedValue() core.Amount
	Now() core.Timestamp
}

// ReceiveHook runs when a participant is paid by the contract. It may call back
// into the contract through c. Returning an error rejects the transfer and
// reverts everything the hook did.
type ReceiveHook func(c *Contract, amount core.Amount) error

// Chain hosts a single auction. Calls are serialized: only one top-level
// invocation runs at a time, while nested calls made from a ReceiveHook run
// inside the invocation that triggered them.
type Chain struct {
	mu sync.Mutex

	clock    core.Timestamp
	accounts map[core.ParticipantID]core.Amount
	escrow   core.Amount

	auction *core.Auction
	pending *observe.Recorder
	sink    core.Sink

	failures map[core.ParticipantID]int
	hooks    map[core.ParticipantID]ReceiveHook

	logger zerolog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithSink forwards the events of every committed call to sink.
func WithSink(sink core.Sink) Option {
	return func(c *Chain) { c.sink = sink }
}

// WithLogger sets the logger used for call tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Chain) { c.logger = logger.With().Str("component", "host").Logger() }
}

// WithClock sets the initial clock reading.
func WithClock(now core.Timestamp) Option {
	return func(c *Chain) { c.clock = now }
}

// NewChain returns an empty chain with no auction deployed.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		accounts: make(map[core.ParticipantID]core.Amount),
		pending:  observe.NewRecorder(),
		sink:     core.NopSink,
		failures: make(map[core.ParticipantID]int),
		hooks:    make(map[core.ParticipantID]ReceiveHook),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fund credits an external account, outside any contract call.
func (c *Chain) Fund(p core.ParticipantID, amount core.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.accounts[p].Add(amount)
	if err != nil {
		return fmt.Errorf("fund %s: %w", p, err)
	}
	c.accounts[p] = next
	return nil
}

// AccountBalance returns the external balance of p.
func (c *Chain) AccountBalance(p core.ParticipantID) core.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[p]
}

// Escrow returns the value currently held by the contract.
func (c *Chain) Escrow() core.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escrow
}

// Now returns the current clock reading.
func (c *Chain) Now() core.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// SetTime sets the clock. The clock never moves backwards.
func (c *Chain) SetTime(now core.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now > c.clock {
		c.clock = now
	}
}

// Advance moves the clock forward by d.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.clock += core.Timestamp(d.Milliseconds())
	}
}

// FailTransfersTo makes the next n transfers to p fail. A negative n fails
// every transfer until ClearFailures is called.
func (c *Chain) FailTransfersTo(p core.ParticipantID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[p] = n
}

// ClearFailures removes any injected transfer failures for p.
func (c *Chain) ClearFailures(p core.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, p)
}

// OnReceive installs hook as the code p runs when it is paid.
func (c *Chain) OnReceive(p core.ParticipantID, hook ReceiveHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hook == nil {
		delete(c.hooks, p)
		return
	}
	c.hooks[p] = hook
}

// Accounts returns every external account, sorted.
func (c *Chain) Accounts() []core.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ParticipantID, 0, len(c.accounts))
	for p := range c.accounts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
