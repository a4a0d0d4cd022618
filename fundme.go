package fundme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// DefaultMinimumUSD is the contribution floor: 50 USD with 18 decimals.
var DefaultMinimumUSD = new(big.Int).Mul(big.NewInt(50), types.Pow10(types.EtherDecimals))

// Transferer pays native currency out of the ledger.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, to common.Address, amount *big.Int) error

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return f(ctx, to, amount)
}

// Ledger collects contributions that clear a USD floor and lets the owner
// drain them.
type Ledger struct {
	store      store.Store
	feed       *oracle.Adapter
	owner      common.Address
	minimum    *big.Int
	transferer Transferer
	plugins    *plugin.Registry
	logger     *slog.Logger

	// mu serializes contributions and withdrawals.
	mu sync.Mutex
}

// New creates a Ledger owned by owner that prices contributions with feed.
func New(s store.Store, feed *oracle.Adapter, owner common.Address, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		feed:    feed,
		owner:   owner,
		minimum: new(big.Int).Set(DefaultMinimumUSD),
		transferer: TransferFunc(func(context.Context, common.Address, *big.Int) error {
			return nil
		}),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithMinimumUSD sets the contribution floor in USD with 18 decimals.
func WithMinimumUSD(minimum *big.Int) Option {
	return func(l *Ledger) {
		l.minimum = new(big.Int).Set(minimum)
	}
}

// WithTransferer sets how withdrawals pay the owner. Without one the
// payout always succeeds.
func WithTransferer(t Transferer) Option {
	return func(l *Ledger) {
		l.transferer = t
	}
}

// Start migrates the store and records or verifies the deployment.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	dep, err := l.store.GetDeployment(ctx)
	switch {
	case errors.Is(err, ErrDeploymentNotFound):
		dep = &deployment.Deployment{
			Entity:     types.NewEntity(),
			ID:         id.NewDeploymentID(),
			Owner:      l.owner,
			PriceFeed:  l.feed.Address(),
			MinimumUSD: new(big.Int).Set(l.minimum),
		}
		if err := l.store.CreateDeployment(ctx, dep); err != nil {
			return err
		}
	case err != nil:
		return err
	case dep.Owner != l.owner:
		return fmt.Errorf("%w: owner is %s, not %s", ErrDeploymentMismatch, dep.Owner.Hex(), l.owner.Hex())
	case dep.PriceFeed != l.feed.Address():
		return fmt.Errorf("%w: price feed is %s, not %s", ErrDeploymentMismatch, dep.PriceFeed.Hex(), l.feed.Address().Hex())
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("fundme ledger started",
		"deployment", dep.ID.String(),
		"owner", l.owner.Hex(),
		"price_feed", l.feed.Address().Hex(),
		"minimum_usd", types.FormatUSD(l.minimum),
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Mutating operations
// ──────────────────────────────────────────────────

// Contribute records value (wei) from caller if it is worth at least the
// minimum. Rejected contributions leave no trace in the store.
func (l *Ledger) Contribute(ctx context.Context, from common.Address, value *big.Int) (*contribution.Contribution, error) {
	if value == nil || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: contribution value must be non-negative", ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	converted, err := l.feed.Convert(ctx, value)
	if err != nil {
		l.reject(ctx, from, value, err)
		return nil, err
	}
	if converted.Cmp(l.minimum) < 0 {
		err := &BelowMinimumError{
			Value:     new(big.Int).Set(value),
			Converted: converted,
			Minimum:   new(big.Int).Set(l.minimum),
		}
		l.reject(ctx, from, value, err)
		return nil, err
	}

	c := &contribution.Contribution{
		ID:             id.NewContributionID(),
		Contributor:    from,
		Value:          new(big.Int).Set(value),
		ReferenceValue: converted,
		CreatedAt:      time.Now().UTC(),
	}
	if err := l.store.RecordContribution(ctx, c); err != nil {
		return nil, err
	}

	l.plugins.EmitContributed(ctx, c)
	l.logger.Debug("contribution recorded",
		"id", c.ID.String(),
		"from", from.Hex(),
		"value_eth", types.FormatEther(value),
		"value_usd", types.FormatUSD(converted),
		"position", c.Position,
	)

	return c, nil
}

func (l *Ledger) reject(ctx context.Context, from common.Address, value *big.Int, reason error) {
	l.plugins.EmitContributionRejected(ctx, from, value, reason)
	l.logger.Debug("contribution rejected",
		"from", from.Hex(),
		"value_eth", types.FormatEther(value),
		"error", reason,
	)
}

// Withdraw pays the whole balance to the owner and resets every
// contributor. Nothing changes if caller is not the owner or the payout
// fails. Withdrawing from an empty ledger succeeds with a zero amount.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error) {
	if caller != l.owner {
		err := &NotOwnerError{Caller: caller, Owner: l.owner}
		l.plugins.EmitWithdrawalFailed(ctx, caller, err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := &withdrawal.Withdrawal{
		ID:        id.NewWithdrawalID(),
		Owner:     l.owner,
		CreatedAt: time.Now().UTC(),
	}
	err := l.store.Drain(ctx, w, func(ctx context.Context, amount *big.Int) error {
		if err := l.transferer.Transfer(ctx, l.owner, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		l.plugins.EmitWithdrawalFailed(ctx, caller, err)
		l.logger.Warn("withdrawal failed", "owner", l.owner.Hex(), "error", err)
		return nil, err
	}

	l.plugins.EmitWithdrawn(ctx, w)
	l.logger.Info("withdrawal completed",
		"id", w.ID.String(),
		"amount_eth", types.FormatEther(w.Amount),
		"funders", w.Funders,
		"contributors", w.Contributors,
	)

	return w, nil
}

// ──────────────────────────────────────────────────
// Read accessors
// ──────────────────────────────────────────────────

// ContributedAmount returns the total contributed by addr since the last
// withdrawal, zero if addr never contributed.
func (l *Ledger) ContributedAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	return l.store.ContributedAmount(ctx, addr)
}

// Funder returns the funder at position in the funder index.
func (l *Ledger) Funder(ctx context.Context, position int) (common.Address, error) {
	if position < 0 {
		return common.Address{}, fmt.Errorf("%w: position %d", ErrIndexOutOfRange, position)
	}
	return l.store.FunderAt(ctx, position)
}

// FunderCount returns the length of the funder index.
func (l *Ledger) FunderCount(ctx context.Context) (int, error) {
	return l.store.FunderCount(ctx)
}

// Balance returns the wei currently held.
func (l *Ledger) Balance(ctx context.Context) (*big.Int, error) {
	return l.store.Balance(ctx)
}

// Contributions lists accepted contribution events.
func (l *Ledger) Contributions(ctx context.Context, opts contribution.ListOpts) ([]*contribution.Contribution, error) {
	return l.store.ListContributions(ctx, opts)
}

// Withdrawals lists withdrawal receipts.
func (l *Ledger) Withdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	return l.store.ListWithdrawals(ctx, opts)
}

// Deployment returns the stored deployment record.
func (l *Ledger) Deployment(ctx context.Context) (*deployment.Deployment, error) {
	return l.store.GetDeployment(ctx)
}

// PriceFeed returns the oracle adapter the ledger was created with.
func (l *Ledger) PriceFeed() *oracle.Adapter { return l.feed }

// Owner returns the identity allowed to withdraw.
func (l *Ledger) Owner() common.Address { return l.owner }

// MinimumUSD returns a copy of the contribution floor.
func (l *Ledger) MinimumUSD() *big.Int { return new(big.Int).Set(l.minimum) }
