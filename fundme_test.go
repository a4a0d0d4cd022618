package fundme_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/withdrawal"
)

var (
	owner = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func eth(s string) *big.Int { return fundme.MustParseEther(s) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newLedger starts a ledger on a fresh memory store priced at 2000 USD/ETH.
func newLedger(t *testing.T, opts ...fundme.Option) (*fundme.Ledger, *oracle.MockAggregator) {
	t.Helper()
	mock := oracle.NewDevelopmentMock()
	opts = append([]fundme.Option{fundme.WithLogger(quiet())}, opts...)
	l := fundme.New(memory.New(), oracle.NewAdapter(mock), owner, opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, mock
}

func TestContributeMinimum(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
		wantUSD string
	}{
		{"below", "0.0249", fundme.ErrInsufficientContribution, ""},
		{"zero", "0", fundme.ErrInsufficientContribution, ""},
		{"exactly the minimum", "0.025", nil, "50.00"},
		{"above", "1", nil, "2000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l, _ := newLedger(t)

			c, err := l.Contribute(ctx, alice, eth(tt.value))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Contribute() error = %v, want %v", err, tt.wantErr)
				}
				var below *fundme.BelowMinimumError
				if !errors.As(err, &below) {
					t.Fatalf("expected *BelowMinimumError, got %T", err)
				}
				if below.Minimum.Cmp(fundme.DefaultMinimumUSD) != 0 {
					t.Errorf("Minimum = %s", below.Minimum)
				}

				n, _ := l.FunderCount(ctx)
				bal, _ := l.Balance(ctx)
				if n != 0 || bal.Sign() != 0 {
					t.Errorf("rejected contribution left state: funders=%d balance=%s", n, bal)
				}
				return
			}

			if err != nil {
				t.Fatalf("Contribute() error = %v", err)
			}
			if got := fundme.FormatUSD(c.ReferenceValue); got != tt.wantUSD {
				t.Errorf("ReferenceValue = %s, want %s", got, tt.wantUSD)
			}
			amount, _ := l.ContributedAmount(ctx, alice)
			if amount.Cmp(eth(tt.value)) != 0 {
				t.Errorf("ContributedAmount() = %s, want %s", amount, eth(tt.value))
			}
			funder, err := l.Funder(ctx, 0)
			if err != nil || funder != alice {
				t.Errorf("Funder(0) = %s, %v", funder.Hex(), err)
			}
		})
	}
}

func TestContributeNegative(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Contribute(context.Background(), alice, big.NewInt(-1))
	if !errors.Is(err, fundme.ErrInvalidInput) {
		t.Fatalf("Contribute(-1) error = %v, want ErrInvalidInput", err)
	}
}

func TestContributeAccumulates(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	for _, c := range []struct {
		from  common.Address
		value string
	}{
		{alice, "1"},
		{bob, "0.5"},
		{alice, "2"},
	} {
		if _, err := l.Contribute(ctx, c.from, eth(c.value)); err != nil {
			t.Fatalf("Contribute(%s) error = %v", c.value, err)
		}
	}

	if n, _ := l.FunderCount(ctx); n != 3 {
		t.Errorf("FunderCount() = %d, want 3 (one entry per contribution)", n)
	}
	if got, _ := l.Funder(ctx, 2); got != alice {
		t.Errorf("Funder(2) = %s, want alice", got.Hex())
	}
	if amount, _ := l.ContributedAmount(ctx, alice); fundme.FormatEther(amount) != "3" {
		t.Errorf("ContributedAmount(alice) = %s, want 3", fundme.FormatEther(amount))
	}
	if bal, _ := l.Balance(ctx); fundme.FormatEther(bal) != "3.5" {
		t.Errorf("Balance() = %s, want 3.5", fundme.FormatEther(bal))
	}

	_, err := l.Funder(ctx, 3)
	if !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(3) error = %v, want ErrIndexOutOfRange", err)
	}
	_, err = l.Funder(ctx, -1)
	if !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(-1) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestPriceMovesMinimum(t *testing.T) {
	ctx := context.Background()
	l, mock := newLedger(t)

	// 0.03 ETH is 60 USD at 2000 and 30 USD at 1000.
	if _, err := l.Contribute(ctx, alice, eth("0.03")); err != nil {
		t.Fatalf("Contribute() at 2000 error = %v", err)
	}
	mock.UpdateAnswer(big.NewInt(1000_00000000))
	if _, err := l.Contribute(ctx, alice, eth("0.03")); !errors.Is(err, fundme.ErrInsufficientContribution) {
		t.Fatalf("Contribute() at 1000 error = %v, want ErrInsufficientContribution", err)
	}
}

func TestOracleUnavailable(t *testing.T) {
	ctx := context.Background()
	l, mock := newLedger(t)

	mock.SetError(errors.New("rpc down"))
	_, err := l.Contribute(ctx, alice, eth("1"))
	if fundme.KindOf(err) != fundme.KindOracleUnavailable {
		t.Fatalf("KindOf() = %s, want %s (err %v)", fundme.KindOf(err), fundme.KindOracleUnavailable, err)
	}
	if !fundme.IsRetryable(err) {
		t.Error("oracle errors should be retryable")
	}

	mock.SetError(nil)
	if _, err := l.Contribute(ctx, alice, eth("1")); err != nil {
		t.Fatalf("Contribute() after recovery error = %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	var paid *big.Int
	l, _ := newLedger(t, fundme.WithTransferer(fundme.TransferFunc(
		func(_ context.Context, to common.Address, amount *big.Int) error {
			if to != owner {
				return fmt.Errorf("paid %s", to.Hex())
			}
			paid = amount
			return nil
		})))

	for _, from := range []common.Address{alice, bob, alice} {
		if _, err := l.Contribute(ctx, from, eth("1")); err != nil {
			t.Fatal(err)
		}
	}

	w, err := l.Withdraw(ctx, owner)
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if fundme.FormatEther(w.Amount) != "3" || fundme.FormatEther(paid) != "3" {
		t.Errorf("withdrew %s, paid %s, want 3", fundme.FormatEther(w.Amount), fundme.FormatEther(paid))
	}
	if w.Funders != 3 || w.Contributors != 2 {
		t.Errorf("Funders = %d, Contributors = %d, want 3 and 2", w.Funders, w.Contributors)
	}

	for _, addr := range []common.Address{alice, bob} {
		if amount, _ := l.ContributedAmount(ctx, addr); amount.Sign() != 0 {
			t.Errorf("ContributedAmount(%s) = %s after withdraw", addr.Hex(), amount)
		}
	}
	if n, _ := l.FunderCount(ctx); n != 0 {
		t.Errorf("FunderCount() = %d after withdraw", n)
	}
	if _, err := l.Funder(ctx, 0); !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(0) error = %v after withdraw", err)
	}

	receipts, err := l.Withdrawals(ctx, withdrawal.ListOpts{})
	if err != nil || len(receipts) != 1 {
		t.Fatalf("Withdrawals() = %d, %v", len(receipts), err)
	}
}

func TestConcurrentContributions(t *testing.T) {
	const n = 40
	ctx := context.Background()

	var paid *big.Int
	l, _ := newLedger(t, fundme.WithTransferer(fundme.TransferFunc(
		func(_ context.Context, _ common.Address, amount *big.Int) error {
			paid = amount
			return nil
		})))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
			_, err := l.Contribute(ctx, from, eth("0.1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Contribute() error = %v", err)
		}
	}

	if bal, _ := l.Balance(ctx); fundme.FormatEther(bal) != "4" {
		t.Errorf("Balance() = %s, want 4", fundme.FormatEther(bal))
	}
	if got, _ := l.FunderCount(ctx); got != n {
		t.Errorf("FunderCount() = %d, want %d", got, n)
	}

	w, err := l.Withdraw(ctx, owner)
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if fundme.FormatEther(paid) != "4" || w.Funders != n || w.Contributors != n {
		t.Errorf("paid %s to %d funders, %d contributors", fundme.FormatEther(paid), w.Funders, w.Contributors)
	}
	if bal, _ := l.Balance(ctx); bal.Sign() != 0 {
		t.Errorf("Balance() = %s after withdraw", bal)
	}
}

func TestReadsDoNotMutate(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	for _, from := range []common.Address{alice, bob, alice} {
		if _, err := l.Contribute(ctx, from, eth("0.5")); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		read func() string
	}{
		{"Balance", func() string {
			v, err := l.Balance(ctx)
			return fmt.Sprint(v, err)
		}},
		{"FunderCount", func() string {
			v, err := l.FunderCount(ctx)
			return fmt.Sprint(v, err)
		}},
		{"Funder", func() string {
			v, err := l.Funder(ctx, 1)
			return fmt.Sprint(v.Hex(), err)
		}},
		{"FunderOutOfRange", func() string {
			_, err := l.Funder(ctx, 9)
			return string(fundme.KindOf(err))
		}},
		{"ContributedAmount", func() string {
			v, err := l.ContributedAmount(ctx, alice)
			return fmt.Sprint(v, err)
		}},
		{"MinimumUSD", func() string {
			return l.MinimumUSD().String()
		}},
		{"Owner", func() string {
			return l.Owner().Hex()
		}},
		{"Contributions", func() string {
			v, err := l.Contributions(ctx, contribution.ListOpts{})
			return fmt.Sprint(len(v), err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := tt.read()
			for i := range 3 {
				if got := tt.read(); got != first {
					t.Errorf("read %d = %q, want %q", i+2, got, first)
				}
			}
		})
	}

	if n, _ := l.FunderCount(ctx); n != 3 {
		t.Errorf("FunderCount() = %d after reads, want 3", n)
	}
}

func TestWithdrawEmpty(t *testing.T) {
	l, _ := newLedger(t)
	w, err := l.Withdraw(context.Background(), owner)
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if w.Amount.Sign() != 0 || w.Funders != 0 {
		t.Errorf("empty withdraw = %s from %d funders", w.Amount, w.Funders)
	}
}

func TestWithdrawNotOwner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	if _, err := l.Contribute(ctx, alice, eth("1")); err != nil {
		t.Fatal(err)
	}

	_, err := l.Withdraw(ctx, alice)
	if !errors.Is(err, fundme.ErrNotOwner) {
		t.Fatalf("Withdraw(alice) error = %v, want ErrNotOwner", err)
	}
	var notOwner *fundme.NotOwnerError
	if !errors.As(err, &notOwner) || notOwner.Owner != owner {
		t.Errorf("expected *NotOwnerError naming the owner, got %v", err)
	}
	if fundme.IsRetryable(err) {
		t.Error("not-owner errors are not retryable")
	}

	if bal, _ := l.Balance(ctx); fundme.FormatEther(bal) != "1" {
		t.Errorf("Balance() = %s after refused withdraw", fundme.FormatEther(bal))
	}
	if n, _ := l.FunderCount(ctx); n != 1 {
		t.Errorf("FunderCount() = %d after refused withdraw", n)
	}
}

func TestWithdrawTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	fail := true
	l, _ := newLedger(t, fundme.WithTransferer(fundme.TransferFunc(
		func(context.Context, common.Address, *big.Int) error {
			if fail {
				return errors.New("owner rejected value")
			}
			return nil
		})))

	if _, err := l.Contribute(ctx, alice, eth("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Contribute(ctx, bob, eth("2")); err != nil {
		t.Fatal(err)
	}

	_, err := l.Withdraw(ctx, owner)
	if !errors.Is(err, fundme.ErrTransferFailed) {
		t.Fatalf("Withdraw() error = %v, want ErrTransferFailed", err)
	}
	if fundme.KindOf(err) != fundme.KindTransferFailed {
		t.Errorf("KindOf() = %s", fundme.KindOf(err))
	}

	if amount, _ := l.ContributedAmount(ctx, bob); fundme.FormatEther(amount) != "2" {
		t.Errorf("ContributedAmount(bob) = %s after failed withdraw", fundme.FormatEther(amount))
	}
	if n, _ := l.FunderCount(ctx); n != 2 {
		t.Errorf("FunderCount() = %d after failed withdraw", n)
	}
	if receipts, _ := l.Withdrawals(ctx, withdrawal.ListOpts{}); len(receipts) != 0 {
		t.Errorf("failed withdraw left %d receipts", len(receipts))
	}

	fail = false
	w, err := l.Withdraw(ctx, owner)
	if err != nil {
		t.Fatalf("retry Withdraw() error = %v", err)
	}
	if fundme.FormatEther(w.Amount) != "3" {
		t.Errorf("retry withdrew %s, want 3", fundme.FormatEther(w.Amount))
	}
}

func TestStartVerifiesDeployment(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mock := oracle.NewDevelopmentMock()

	first := fundme.New(s, oracle.NewAdapter(mock), owner, fundme.WithLogger(quiet()))
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}
	dep, err := first.Deployment(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dep.Owner != owner || dep.PriceFeed != mock.Address() {
		t.Errorf("deployment = %s / %s", dep.Owner.Hex(), dep.PriceFeed.Hex())
	}

	same := fundme.New(s, oracle.NewAdapter(mock), owner, fundme.WithLogger(quiet()))
	if err := same.Start(ctx); err != nil {
		t.Errorf("restart with the same owner and feed: %v", err)
	}

	other := fundme.New(s, oracle.NewAdapter(mock), alice, fundme.WithLogger(quiet()))
	if err := other.Start(ctx); !errors.Is(err, fundme.ErrDeploymentMismatch) {
		t.Errorf("Start() with another owner error = %v, want ErrDeploymentMismatch", err)
	}

	otherFeed := oracle.NewDevelopmentMock(oracle.WithMockAddress(bob))
	moved := fundme.New(s, oracle.NewAdapter(otherFeed), owner, fundme.WithLogger(quiet()))
	if err := moved.Start(ctx); !errors.Is(err, fundme.ErrDeploymentMismatch) {
		t.Errorf("Start() with another feed error = %v, want ErrDeploymentMismatch", err)
	}
}

func TestWithMinimumUSD(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, fundme.WithMinimumUSD(eth("100")))

	if got := fundme.FormatUSD(l.MinimumUSD()); got != "100.00" {
		t.Errorf("MinimumUSD() = %s", got)
	}
	if _, err := l.Contribute(ctx, alice, eth("0.04")); !errors.Is(err, fundme.ErrInsufficientContribution) {
		t.Errorf("80 USD accepted with a 100 USD floor: %v", err)
	}
	if _, err := l.Contribute(ctx, alice, eth("0.05")); err != nil {
		t.Errorf("100 USD rejected: %v", err)
	}
}

func TestContributionsHistory(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	for _, from := range []common.Address{alice, bob, alice} {
		if _, err := l.Contribute(ctx, from, eth("1")); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.Contributions(ctx, contribution.ListOpts{})
	if err != nil || len(all) != 3 {
		t.Fatalf("Contributions() = %d, %v", len(all), err)
	}
	mine, _ := l.Contributions(ctx, contribution.ListOpts{Contributor: &alice})
	if len(mine) != 2 {
		t.Errorf("Contributions(alice) = %d, want 2", len(mine))
	}
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

type recorder struct {
	mu     sync.Mutex
	events []string
}

var (
	_ plugin.OnInit                 = (*recorder)(nil)
	_ plugin.OnShutdown             = (*recorder)(nil)
	_ plugin.OnContributed          = (*recorder)(nil)
	_ plugin.OnContributionRejected = (*recorder)(nil)
	_ plugin.OnWithdrawn            = (*recorder)(nil)
	_ plugin.OnWithdrawalFailed     = (*recorder)(nil)
)

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnInit(context.Context, interface{}) error {
	r.add("init")
	return nil
}

func (r *recorder) OnShutdown(context.Context) error {
	r.add("shutdown")
	return nil
}

func (r *recorder) OnContributed(_ context.Context, c *contribution.Contribution) error {
	r.add("contributed " + fundme.FormatEther(c.Value))
	return nil
}

func (r *recorder) OnContributionRejected(_ context.Context, _ common.Address, value *big.Int, reason error) error {
	r.add("rejected " + fundme.FormatEther(value) + " " + string(fundme.KindOf(reason)))
	return nil
}

func (r *recorder) OnWithdrawn(_ context.Context, w *withdrawal.Withdrawal) error {
	r.add("withdrawn " + fundme.FormatEther(w.Amount))
	return nil
}

func (r *recorder) OnWithdrawalFailed(_ context.Context, _ common.Address, reason error) error {
	r.add("withdrawal_failed " + string(fundme.KindOf(reason)))
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	l := fundme.New(memory.New(), oracle.NewAdapter(oracle.NewDevelopmentMock()), owner,
		fundme.WithLogger(quiet()),
		fundme.WithPlugin(rec),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_, _ = l.Contribute(ctx, alice, eth("1"))
	_, _ = l.Contribute(ctx, alice, eth("0.001"))
	_, _ = l.Withdraw(ctx, alice)
	_, _ = l.Withdraw(ctx, owner)
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"init",
		"contributed 1",
		"rejected 0.001 insufficient_contribution",
		"withdrawal_failed not_owner",
		"withdrawn 1",
		"shutdown",
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, rec.events[i], want[i])
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err       error
		kind      fundme.Kind
		retryable bool
	}{
		{nil, fundme.KindNone, false},
		{fundme.ErrInsufficientContribution, fundme.KindInsufficientContribution, false},
		{&fundme.BelowMinimumError{Value: eth("0"), Converted: eth("0"), Minimum: eth("50")}, fundme.KindInsufficientContribution, false},
		{&fundme.NotOwnerError{Caller: alice, Owner: owner}, fundme.KindNotOwner, false},
		{fmt.Errorf("feed: %w", fundme.ErrOracleUnavailable), fundme.KindOracleUnavailable, true},
		{fmt.Errorf("%w: reverted", fundme.ErrTransferFailed), fundme.KindTransferFailed, true},
		{fundme.ErrIndexOutOfRange, fundme.KindIndexOutOfRange, false},
		{fundme.ErrInvalidInput, fundme.KindInvalidInput, false},
		{errors.New("disk full"), fundme.KindInternal, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := fundme.KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if got := fundme.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}
