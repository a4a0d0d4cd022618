// Package store defines the aggregate persistence interface for fundme.
package store

import (
	"context"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/withdrawal"
)

// Store is the unified storage interface for one ledger.
type Store interface {
	contribution.Store
	withdrawal.Store
	deployment.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
