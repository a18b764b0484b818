package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/host"
)

// Scenario is a scripted auction replayed on a simulated chain.
type Scenario struct {
	StartTime     core.Timestamp    `yaml:"start_time"`
	Decimals      int32             `yaml:"decimals"`
	Beneficiary   string            `yaml:"beneficiary"`
	StartingPrice string            `yaml:"starting_price"`
	Duration      time.Duration     `yaml:"duration"`
	Accounts      map[string]string `yaml:"accounts"`
	Steps         []Step            `yaml:"steps"`
}

// Step is one scripted action. Expect, when set, is the acceptance the call must report.
type Step struct {
	Op       string        `yaml:"op"`
	Caller   string        `yaml:"caller"`
	Value    string        `yaml:"value"`
	Duration time.Duration `yaml:"duration"`
	Count    int           `yaml:"count"`
	Action   string        `yaml:"action"`
	Expect   *bool         `yaml:"expect"`
}

const (
	stepAdvance       = "advance"
	stepBid           = "bid"
	stepEnd           = "end"
	stepWithdraw      = "withdraw"
	stepFailTransfers = "fail_transfers"
	stepClearFailures = "clear_failures"
	stepOnReceive     = "on_receive"
)

// Receive hook actions a scripted participant can run when paid.
const (
	actionWithdraw = "withdraw"
	actionBid      = "bid"
	actionReject   = "reject"
	actionNone     = "none"
)

var errExpectationFailed = errors.New("scenario expectation failed")

func LoadScenario(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return sc, nil
}

// Runner replays a Scenario and reports every step to out.
type Runner struct {
	sc    Scenario
	chain *host.Chain
	out   io.Writer
}

func NewRunner(sc Scenario, sink core.Sink, out io.Writer) (*Runner, error) {
	if sink == nil {
		sink = core.NopSink
	}
	chain := host.NewChain(host.WithSink(sink), host.WithClock(sc.StartTime))

	owners := make([]string, 0, len(sc.Accounts))
	for p := range sc.Accounts {
		owners = append(owners, p)
	}
	sort.Strings(owners)
	for _, p := range owners {
		amount, err := auctionapi.ParseAmount(sc.Accounts[p], sc.Decimals)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", p, err)
		}
		if err := chain.Fund(core.ParticipantID(p), amount); err != nil {
			return nil, err
		}
	}

	startingPrice, err := auctionapi.ParseAmount(sc.StartingPrice, sc.Decimals)
	if err != nil {
		return nil, fmt.Errorf("starting price: %w", err)
	}
	if err := chain.Create(core.ParticipantID(sc.Beneficiary), startingPrice, sc.Duration); err != nil {
		return nil, err
	}
	return &Runner{sc: sc, chain: chain, out: out}, nil
}

func (r *Runner) Chain() *host.Chain { return r.chain }

// Run executes every step in order. It stops at the first aborted call or failed expectation.
func (r *Runner) Run() error {
	for i, step := range r.sc.Steps {
		if err := r.step(i+1, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	if err := r.chain.CheckSolvency(); err != nil {
		return err
	}
	return nil
}

func (r *Runner) step(n int, step Step) error {
	caller := core.ParticipantID(step.Caller)

	switch step.Op {
	case stepAdvance:
		r.chain.Advance(step.Duration)
		fmt.Fprintf(r.out, "%d. advance %s -> now %d\n", n, step.Duration, r.chain.Now())
		return nil
	case stepFailTransfers:
		r.chain.FailTransfersTo(caller, step.Count)
		fmt.Fprintf(r.out, "%d. fail next %d transfers to %s\n", n, step.Count, caller)
		return nil
	case stepClearFailures:
		r.chain.ClearFailures(caller)
		fmt.Fprintf(r.out, "%d. clear transfer failures for %s\n", n, caller)
		return nil
	case stepOnReceive:
		hook, err := r.receiveHook(step)
		if err != nil {
			return err
		}
		r.chain.OnReceive(caller, hook)
		fmt.Fprintf(r.out, "%d. %s runs %q when paid\n", n, caller, step.Action)
		return nil
	}

	var (
		op    host.Op
		value core.Amount
	)
	switch step.Op {
	case stepBid:
		op = host.OpBid
		v, err := auctionapi.ParseAmount(step.Value, r.sc.Decimals)
		if err != nil {
			return err
		}
		value = v
	case stepEnd:
		op = host.OpEnd
	case stepWithdraw:
		op = host.OpWithdraw
	default:
		return fmt.Errorf("unknown step op %q", step.Op)
	}

	out, err := r.chain.Invoke(op, caller, value)
	if err != nil {
		fmt.Fprintf(r.out, "%d. %s by %s aborted: %v\n", n, op, caller, err)
		return err
	}

	fmt.Fprintf(r.out, "%d. %s by %s", n, op, caller)
	if value != 0 {
		fmt.Fprintf(r.out, " value %s", auctionapi.FormatAmount(value, r.sc.Decimals))
	}
	fmt.Fprintf(r.out, " -> accepted=%t\n", out.Accepted)
	for _, e := range out.Events {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "   %s %s\n", e.Kind(), payload)
	}

	if step.Expect != nil && *step.Expect != out.Accepted {
		return fmt.Errorf("%w: expected accepted=%t", errExpectationFailed, *step.Expect)
	}
	return nil
}

func (r *Runner) receiveHook(step Step) (host.ReceiveHook, error) {
	switch step.Action {
	case actionNone, "":
		return nil, nil
	case actionReject:
		return func(*host.Contract, core.Amount) error {
			return errors.New("recipient rejected payment")
		}, nil
	case actionWithdraw:
		return func(k *host.Contract, _ core.Amount) error {
			_, err := k.Withdraw()
			return err
		}, nil
	case actionBid:
		value, err := auctionapi.ParseAmount(step.Value, r.sc.Decimals)
		if err != nil {
			return nil, err
		}
		return func(k *host.Contract, _ core.Amount) error {
			_, err := k.Bid(value)
			return err
		}, nil
	}
	return nil, fmt.Errorf("unknown receive action %q", step.Action)
}

// PrintSummary writes the final auction state.
func (r *Runner) PrintSummary() error {
	state, err := r.chain.State()
	if err != nil {
		return err
	}
	d := r.sc.Decimals

	fmt.Fprintf(r.out, "\nended=%t highest_bidder=%s highest_bid=%s escrow=%s\n",
		state.Ended, state.HighestBidder, auctionapi.FormatAmount(state.HighestBid, d), auctionapi.FormatAmount(state.Escrow, d))

	owed := make([]core.ParticipantID, 0, len(state.Balances))
	for p := range state.Balances {
		owed = append(owed, p)
	}
	sort.Slice(owed, func(i, j int) bool { return owed[i] < owed[j] })
	for _, p := range owed {
		fmt.Fprintf(r.out, "  owed %-12s %s\n", p, auctionapi.FormatAmount(state.Balances[p], d))
	}
	for _, p := range r.chain.Accounts() {
		fmt.Fprintf(r.out, "  account %-9s %s\n", p, auctionapi.FormatAmount(r.chain.AccountBalance(p), d))
	}
	return nil
}
