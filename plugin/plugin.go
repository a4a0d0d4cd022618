// Package plugin provides an extensible plugin system for fundme.
// Plugins can hook into lifecycle and ledger events to extend functionality.
package plugin

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/withdrawal"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed is called after a contribution has been recorded.
type OnContributed interface {
	Plugin
	OnContributed(ctx context.Context, c *contribution.Contribution) error
}

// OnContributionRejected is called when a contribution is refused, either
// below the minimum or because the price feed was unavailable.
type OnContributionRejected interface {
	Plugin
	OnContributionRejected(ctx context.Context, from common.Address, value *big.Int, reason error) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after the owner has drained the ledger.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error
}

// OnWithdrawalFailed is called when a withdrawal is refused or rolled back.
type OnWithdrawalFailed interface {
	Plugin
	OnWithdrawalFailed(ctx context.Context, caller common.Address, reason error) error
}
