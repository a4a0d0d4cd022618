// Package deployment records the immutable parameters a ledger was created with.
package deployment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

// Deployment is written once when a ledger first starts against a store.
type Deployment struct {
	types.Entity

	ID        id.ID          `json:"id"`
	Owner     common.Address `json:"owner"`
	PriceFeed common.Address `json:"price_feed"`
	// MinimumUSD is the contribution floor in USD with 18 decimals.
	MinimumUSD *big.Int `json:"minimum_usd"`
}
