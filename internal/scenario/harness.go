package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/custody"
	"github.com/xraph/fundme/network"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Faucet is the starting balance of every account.
var Faucet = types.MustParseEther("10000")

// DevAccounts are the named development accounts every scenario can use.
var DevAccounts = map[string]string{
	"deployer": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	"alice":    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	"bob":      "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
	"carol":    "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
	"dave":     "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65",
	"erin":     "0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc",
	"frank":    "0x976EA74026E726554dB657fA54763abd0C3a0aa9",
}

// Event is one executed step in a trace.
type Event struct {
	Seq     int      `json:"seq"`
	Action  string   `json:"action"`
	Caller  string   `json:"caller,omitempty"`
	Value   string   `json:"value,omitempty"`
	Outcome string   `json:"outcome"`
	Result  string   `json:"result,omitempty"`
	Hooks   []string `json:"hooks,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Trace []Event

	// Failures lists steps whose outcome did not match their expect clause.
	Failures []string
}

// Passed reports whether every step met its expectation.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// OutcomeOK is the outcome of a step that succeeded.
const OutcomeOK = "ok"

// run holds the ledger a scenario executes against.
type run struct {
	ledger *fundme.Ledger
	book   *custody.Book
	mock   *oracle.MockAggregator
	hooks  *hookRecorder

	byName map[string]common.Address
	byAddr map[common.Address]string
}

// Run executes sc against a fresh ledger. It returns an error only when the
// scenario cannot run at all; mismatched expectations are reported in
// Result.Failures.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	r, err := setup(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.ledger.Stop() }()

	result := &Result{}
	for i, step := range sc.Steps {
		ev, err := r.exec(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		ev.Seq = i + 1
		ev.Hooks = r.hooks.drain()
		result.Trace = append(result.Trace, ev)

		if msg := check(step, ev); msg != "" {
			result.Failures = append(result.Failures, fmt.Sprintf("step %d (%s): %s", ev.Seq, step.Action, msg))
		}
	}
	return result, nil
}

func setup(ctx context.Context, sc *Scenario) (*run, error) {
	r := &run{
		byName: make(map[string]common.Address),
		byAddr: make(map[common.Address]string),
		hooks:  &hookRecorder{},
	}
	for name, hex := range DevAccounts {
		r.byName[name] = common.HexToAddress(hex)
	}
	for name, hex := range sc.Accounts {
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("account %s: %q is not an address", name, hex)
		}
		r.byName[name] = common.HexToAddress(hex)
	}
	for name, addr := range r.byName {
		// Scenario names win over built-in ones for the same address.
		if _, custom := sc.Accounts[name]; custom || r.byAddr[addr] == "" {
			r.byAddr[addr] = name
		}
	}
	r.hooks.names = r.name

	minimum := fundme.DefaultMinimumUSD
	if sc.MinimumUSD != "" {
		var err error
		if minimum, err = types.ParseUnits(sc.MinimumUSD, types.EtherDecimals); err != nil {
			return nil, fmt.Errorf("minimum_usd: %w", err)
		}
	}

	owner := r.byName["deployer"]
	r.mock = network.NewMockFeed(owner)
	r.book = custody.NewBook(custody.WithFaucet(Faucet))
	r.ledger = fundme.New(memory.New(), oracle.NewAdapter(r.mock), owner,
		fundme.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		fundme.WithMinimumUSD(minimum),
		fundme.WithTransferer(r.book),
		fundme.WithPlugin(r.hooks),
	)
	if err := r.ledger.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *run) exec(ctx context.Context, step Step) (Event, error) {
	ev := Event{Action: step.Action}

	switch step.Action {
	case ActionFund:
		from, err := r.account(step.From, "deployer")
		if err != nil {
			return ev, err
		}
		value, err := types.ParseEther(step.Value)
		if err != nil {
			return ev, err
		}
		ev.Caller, ev.Value = r.name(from), types.FormatEther(value)
		c, err := r.book.Contribute(ctx, r.ledger, from, value)
		if err == nil {
			ev.Result = "#" + strconv.Itoa(c.Position)
		}
		return outcome(ev, err), nil

	case ActionWithdraw:
		caller, err := r.account(step.From, "deployer")
		if err != nil {
			return ev, err
		}
		ev.Caller = r.name(caller)
		w, err := r.ledger.Withdraw(ctx, caller)
		if err == nil {
			ev.Result = types.FormatEther(w.Amount)
		}
		return outcome(ev, err), nil

	case ActionAmount:
		addr, err := r.account(step.Account, "")
		if err != nil {
			return ev, err
		}
		ev.Caller = r.name(addr)
		amount, err := r.ledger.ContributedAmount(ctx, addr)
		if err == nil {
			ev.Result = types.FormatEther(amount)
		}
		return outcome(ev, err), nil

	case ActionFunder:
		ev.Value = strconv.Itoa(step.Index)
		addr, err := r.ledger.Funder(ctx, step.Index)
		if err == nil {
			ev.Result = r.name(addr)
		}
		return outcome(ev, err), nil

	case ActionFunders:
		n, err := r.ledger.FunderCount(ctx)
		if err == nil {
			ev.Result = strconv.Itoa(n)
		}
		return outcome(ev, err), nil

	case ActionBalance:
		balance, err := r.ledger.Balance(ctx)
		if err == nil {
			ev.Result = types.FormatEther(balance)
		}
		return outcome(ev, err), nil

	case ActionHeld:
		ev.Result = types.FormatEther(r.book.Held())
		return outcome(ev, nil), nil

	case ActionWallet:
		addr, err := r.account(step.Account, "")
		if err != nil {
			return ev, err
		}
		ev.Caller = r.name(addr)
		ev.Result = types.FormatEther(r.book.BalanceOf(addr))
		return outcome(ev, nil), nil

	case ActionOwner:
		ev.Result = r.name(r.ledger.Owner())
		return outcome(ev, nil), nil

	case ActionPriceFeed:
		ev.Result = r.ledger.PriceFeed().Address().Hex()
		if r.ledger.PriceFeed().Address() == r.mock.Address() {
			ev.Result = "mock"
		}
		return outcome(ev, nil), nil

	case ActionSetPrice:
		answer, err := types.ParseUnits(step.Price, int32(network.Decimals))
		if err != nil {
			return ev, err
		}
		ev.Value = step.Price
		r.mock.UpdateAnswer(answer)
		return outcome(ev, nil), nil

	case ActionFeedError:
		ev.Value = step.Reason
		r.mock.SetError(errors.New(step.Reason))
		return outcome(ev, nil), nil

	case ActionFeedRecover:
		r.mock.SetError(nil)
		return outcome(ev, nil), nil

	case ActionFailNextTransfer:
		ev.Value = step.Reason
		r.book.FailNextTransfer(errors.New(step.Reason))
		return outcome(ev, nil), nil
	}

	return ev, fmt.Errorf("unknown action %q", step.Action)
}

// account resolves a named account, falling back to def when name is empty.
func (r *run) account(name, def string) (common.Address, error) {
	if name == "" {
		name = def
	}
	if addr, ok := r.byName[name]; ok {
		return addr, nil
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", name)
}

// name renders addr by its scenario name, or as hex if it has none.
func (r *run) name(addr common.Address) string {
	if name, ok := r.byAddr[addr]; ok {
		return name
	}
	return addr.Hex()
}

func outcome(ev Event, err error) Event {
	if err == nil {
		ev.Outcome = OutcomeOK
		return ev
	}
	ev.Outcome = string(fundme.KindOf(err))
	if errors.Is(err, custody.ErrInsufficientFunds) {
		ev.Outcome = "insufficient_funds"
	}
	return ev
}

func check(step Step, ev Event) string {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if ev.Outcome != want {
		return fmt.Sprintf("expected outcome %s, got %s", want, ev.Outcome)
	}
	if step.Expect != nil && step.Expect.Result != nil && ev.Result != *step.Expect.Result {
		return fmt.Sprintf("expected result %q, got %q", *step.Expect.Result, ev.Result)
	}
	return ""
}

// ──────────────────────────────────────────────────
// Hook recorder
// ──────────────────────────────────────────────────

// hookRecorder notes every ledger hook fired during a step.
type hookRecorder struct {
	mu     sync.Mutex
	events []string
	names  func(common.Address) string
}

var (
	_ plugin.OnContributed          = (*hookRecorder)(nil)
	_ plugin.OnContributionRejected = (*hookRecorder)(nil)
	_ plugin.OnWithdrawn            = (*hookRecorder)(nil)
	_ plugin.OnWithdrawalFailed     = (*hookRecorder)(nil)
)

func (h *hookRecorder) Name() string { return "scenario-trace" }

func (h *hookRecorder) add(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *hookRecorder) drain() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

func (h *hookRecorder) OnContributed(_ context.Context, c *contribution.Contribution) error {
	h.add("contributed %s %s ETH %s USD", h.names(c.Contributor), types.FormatEther(c.Value), types.FormatUSD(c.ReferenceValue))
	return nil
}

func (h *hookRecorder) OnContributionRejected(_ context.Context, from common.Address, value *big.Int, reason error) error {
	h.add("contribution_rejected %s %s ETH %s", h.names(from), types.FormatEther(value), fundme.KindOf(reason))
	return nil
}

func (h *hookRecorder) OnWithdrawn(_ context.Context, w *withdrawal.Withdrawal) error {
	h.add("withdrawn %s ETH from %d funders, %d contributors", types.FormatEther(w.Amount), w.Funders, w.Contributors)
	return nil
}

func (h *hookRecorder) OnWithdrawalFailed(_ context.Context, caller common.Address, reason error) error {
	h.add("withdrawal_failed %s %s", h.names(caller), fundme.KindOf(reason))
	return nil
}
