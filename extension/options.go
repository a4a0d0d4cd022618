package extension

import (
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
)

// Option configures the fundme Forge extension.
type Option func(*Extension)

// WithStore sets the store, bypassing StoreURL.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithFeed sets the price feed, bypassing FeedKind.
func WithFeed(f oracle.Feed) Option {
	return func(e *Extension) {
		e.feed = f
	}
}

// WithLedgerOption passes a fundme.Option through to the underlying ledger.
func WithLedgerOption(opt fundme.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, fundme.WithPlugin(p))
	}
}

// WithTransferer sets how withdrawals pay the owner.
func WithTransferer(t fundme.Transferer) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, fundme.WithTransferer(t))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the withdrawing identity.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithMinimumUSD sets the contribution floor in whole dollars.
func WithMinimumUSD(usd string) Option {
	return func(e *Extension) { e.config.MinimumUSD = usd }
}

// WithChainID selects the network used to find the price feed.
func WithChainID(chainID uint64) Option {
	return func(e *Extension) { e.config.ChainID = chainID }
}

// WithStoreURL selects the store backend by URL.
func WithStoreURL(url string) Option {
	return func(e *Extension) { e.config.StoreURL = url }
}

// WithMaxStaleness sets how old a price round may be.
func WithMaxStaleness(d time.Duration) Option {
	return func(e *Extension) { e.config.MaxStaleness = d }
}

// WithMetrics registers the observability plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
