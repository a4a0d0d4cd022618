package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/withdrawal"
)

type named string

func (n named) Name() string { return string(n) }

type contributedHook struct {
	named
	calls atomic.Int32
	err   error
}

func (h *contributedHook) OnContributed(context.Context, *contribution.Contribution) error {
	h.calls.Add(1)
	return h.err
}

type slowHook struct {
	named
	delay time.Duration
}

func (h *slowHook) OnWithdrawn(ctx context.Context, _ *withdrawal.Withdrawal) error {
	time.Sleep(h.delay)
	return nil
}

type everyHook struct {
	named
	seen []string
}

func (h *everyHook) OnInit(context.Context, interface{}) error { h.seen = append(h.seen, "init"); return nil }
func (h *everyHook) OnShutdown(context.Context) error          { h.seen = append(h.seen, "shutdown"); return nil }
func (h *everyHook) OnContributed(context.Context, *contribution.Contribution) error {
	h.seen = append(h.seen, "contributed")
	return nil
}
func (h *everyHook) OnContributionRejected(context.Context, common.Address, *big.Int, error) error {
	h.seen = append(h.seen, "rejected")
	return nil
}
func (h *everyHook) OnWithdrawn(context.Context, *withdrawal.Withdrawal) error {
	h.seen = append(h.seen, "withdrawn")
	return nil
}
func (h *everyHook) OnWithdrawalFailed(context.Context, common.Address, error) error {
	h.seen = append(h.seen, "withdrawal_failed")
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(named("audit")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(named("audit")); err == nil {
		t.Fatal("expected an error registering a duplicate name")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if r.Get("audit") == nil || r.Get("missing") != nil {
		t.Error("Get() returned the wrong plugin")
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&everyHook{named: "all"})
	if len(got) != 6 {
		t.Errorf("implementedInterfaces() = %v, want all six hooks", got)
	}
	if got := implementedInterfaces(named("bare")); len(got) != 0 {
		t.Errorf("implementedInterfaces(bare) = %v", got)
	}
}

func TestEmitDispatchesEveryHook(t *testing.T) {
	ctx := context.Background()
	r := quietRegistry()
	h := &everyHook{named: "all"}
	if err := r.Register(h); err != nil {
		t.Fatal(err)
	}

	r.EmitInit(ctx, nil)
	r.EmitContributed(ctx, &contribution.Contribution{})
	r.EmitContributionRejected(ctx, common.Address{}, big.NewInt(1), errors.New("below"))
	r.EmitWithdrawalFailed(ctx, common.Address{}, errors.New("not owner"))
	r.EmitWithdrawn(ctx, &withdrawal.Withdrawal{})
	r.EmitShutdown(ctx)

	want := []string{"init", "contributed", "rejected", "withdrawal_failed", "withdrawn", "shutdown"}
	if len(h.seen) != len(want) {
		t.Fatalf("seen = %v, want %v", h.seen, want)
	}
	for i := range want {
		if h.seen[i] != want[i] {
			t.Errorf("hook %d = %s, want %s", i, h.seen[i], want[i])
		}
	}
}

func TestHookErrorDoesNotStopOthers(t *testing.T) {
	r := quietRegistry()
	failing := &contributedHook{named: "failing", err: errors.New("boom")}
	ok := &contributedHook{named: "ok"}
	_ = r.Register(failing)
	_ = r.Register(ok)

	r.EmitContributed(context.Background(), &contribution.Contribution{})

	if failing.calls.Load() != 1 || ok.calls.Load() != 1 {
		t.Errorf("calls = %d, %d, want 1 each", failing.calls.Load(), ok.calls.Load())
	}
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(10 * time.Millisecond)
	_ = r.Register(&slowHook{named: "slow", delay: time.Second})

	start := time.Now()
	r.EmitWithdrawn(context.Background(), &withdrawal.Withdrawal{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("EmitWithdrawn() waited %s for a slow hook", elapsed)
	}
}

func TestCallWithTimeoutCancelled(t *testing.T) {
	r := quietRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.callWithTimeout(ctx, "blocked", func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("callWithTimeout() error = %v, want context.Canceled", err)
	}
}
