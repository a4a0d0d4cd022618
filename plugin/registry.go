package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/withdrawal"
)

// DefaultTimeout bounds how long a single hook may run.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onContributed          []OnContributed
	onContributionRejected []OnContributionRejected
	onWithdrawn            []OnWithdrawn
	onWithdrawalFailed     []OnWithdrawalFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnContributed); ok {
		r.onContributed = append(r.onContributed, v)
	}
	if v, ok := p.(OnContributionRejected); ok {
		r.onContributionRejected = append(r.onContributionRejected, v)
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
	}
	if v, ok := p.(OnWithdrawalFailed); ok {
		r.onWithdrawalFailed = append(r.onWithdrawalFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces lists the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnContributed)(nil)).Elem(), "OnContributed")
	check(reflect.TypeOf((*OnContributionRejected)(nil)).Elem(), "OnContributionRejected")
	check(reflect.TypeOf((*OnWithdrawn)(nil)).Elem(), "OnWithdrawn")
	check(reflect.TypeOf((*OnWithdrawalFailed)(nil)).Elem(), "OnWithdrawalFailed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitContributed tells plugins a contribution was recorded.
func (r *Registry) EmitContributed(ctx context.Context, c *contribution.Contribution) {
	emit(ctx, r, "OnContributed", snapshot(r, &r.onContributed), func(p OnContributed) error {
		return p.OnContributed(ctx, c)
	})
}

// EmitContributionRejected tells plugins a contribution was refused.
func (r *Registry) EmitContributionRejected(ctx context.Context, from common.Address, value *big.Int, reason error) {
	emit(ctx, r, "OnContributionRejected", snapshot(r, &r.onContributionRejected), func(p OnContributionRejected) error {
		return p.OnContributionRejected(ctx, from, value, reason)
	})
}

// EmitWithdrawn tells plugins the owner drained the ledger.
func (r *Registry) EmitWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) {
	emit(ctx, r, "OnWithdrawn", snapshot(r, &r.onWithdrawn), func(p OnWithdrawn) error {
		return p.OnWithdrawn(ctx, w)
	})
}

// EmitWithdrawalFailed tells plugins a withdrawal was refused or rolled back.
func (r *Registry) EmitWithdrawalFailed(ctx context.Context, caller common.Address, reason error) {
	emit(ctx, r, "OnWithdrawalFailed", snapshot(r, &r.onWithdrawalFailed), func(p OnWithdrawalFailed) error {
		return p.OnWithdrawalFailed(ctx, caller, reason)
	})
}

// snapshot reads a hook slice under the read lock. Register only appends,
// so the returned slice stays valid after unlocking.
func snapshot[T any](r *Registry, hooks *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *hooks
}

func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		r.dispatch(ctx, p.Name(), hook, func() error { return call(p) })
	}
}

func (r *Registry) dispatch(ctx context.Context, name, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, name, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", name,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must not hold up ledger operations.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
