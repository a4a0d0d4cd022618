package withdrawal

import "context"

// Store drains balances and keeps withdrawal receipts.
type Store interface {
	// Drain resets every indexed contributor total, clears the funder index,
	// fills in w.Amount, w.Funders and w.Contributors, calls pay with the
	// drained amount and stores w. All of it commits only if pay succeeds.
	Drain(ctx context.Context, w *Withdrawal, pay PayoutFunc) error
	ListWithdrawals(ctx context.Context, opts ListOpts) ([]*Withdrawal, error)
}

// ListOpts paginates ListWithdrawals. Results are ordered oldest first.
type ListOpts struct {
	Limit  int
	Offset int
}
