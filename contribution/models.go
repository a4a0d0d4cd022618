// Package contribution defines contributor balances and the record written
// for every accepted contribution.
package contribution

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/id"
)

// Contribution is an accepted contribution event.
type Contribution struct {
	ID          id.ID          `json:"id"`
	Contributor common.Address `json:"contributor"`
	// Value is the native amount in wei.
	Value *big.Int `json:"value"`
	// ReferenceValue is Value converted to USD with 18 decimals at
	// admission time.
	ReferenceValue *big.Int `json:"reference_value"`
	// Position is the funder-index slot this contribution appended.
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Contributor is the running total of one identity since the last withdrawal.
type Contributor struct {
	Address common.Address `json:"address"`
	Total   *big.Int       `json:"total"`
}
