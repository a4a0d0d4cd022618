// Package withdrawal defines the receipt written when the owner drains the ledger.
package withdrawal

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/id"
)

// Withdrawal is the receipt of a completed drain.
type Withdrawal struct {
	ID    id.ID          `json:"id"`
	Owner common.Address `json:"owner"`
	// Amount is the wei paid out to Owner.
	Amount *big.Int `json:"amount"`
	// Funders is the number of funder-index entries cleared.
	Funders int `json:"funders"`
	// Contributors is the number of distinct totals reset to zero.
	Contributors int       `json:"contributors"`
	CreatedAt    time.Time `json:"created_at"`
}

// PayoutFunc moves amount to the owner. Drain rolls back when it fails.
type PayoutFunc func(ctx context.Context, amount *big.Int) error
