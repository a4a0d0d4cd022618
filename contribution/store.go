package contribution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists contributor totals, the funder index and contribution events.
type Store interface {
	// RecordContribution atomically adds c.Value to the contributor total,
	// appends c.Contributor to the funder index and stores c. It sets
	// c.Position to the appended slot.
	RecordContribution(ctx context.Context, c *Contribution) error
	// ContributedAmount returns the total for addr, zero when unknown.
	ContributedAmount(ctx context.Context, addr common.Address) (*big.Int, error)
	// FunderAt returns the funder at position in the index.
	FunderAt(ctx context.Context, position int) (common.Address, error)
	FunderCount(ctx context.Context) (int, error)
	// Balance returns the sum of all contributor totals.
	Balance(ctx context.Context) (*big.Int, error)
	ListContributions(ctx context.Context, opts ListOpts) ([]*Contribution, error)
}

// ListOpts filters ListContributions. Results are ordered oldest first.
type ListOpts struct {
	Contributor *common.Address
	Limit       int
	Offset      int
}
