// Package fundme provides a crowdfunding ledger that accepts native-currency
// contributions worth at least a USD floor and lets a single owner drain them.
//
// fundme is a library. The ledger is an explicit object constructed with its
// owner and price feed; there is no package-level state.
//
//   - Contributions are priced through an oracle.Adapter and rejected below
//     the floor (50 USD by default) without touching the store
//   - Every accepted contribution adds to the contributor total and appends
//     the contributor to the funder index, repeats included
//   - Withdraw is owner-only and atomic: totals reset, index cleared and the
//     payout made together, or not at all
//
// # Quick Start
//
//	feed := oracle.NewAdapter(oracle.NewDevelopmentMock())
//	l := fundme.New(memory.New(), feed, owner)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	if _, err := l.Contribute(ctx, funder, fundme.MustParseEther("1")); err != nil {
//	    // errors.Is(err, fundme.ErrInsufficientContribution) etc.
//	}
//	receipt, err := l.Withdraw(ctx, owner)
//
// # Errors
//
// Operations return sentinel errors that can be matched with errors.Is:
// ErrInsufficientContribution, ErrNotOwner, ErrOracleUnavailable,
// ErrTransferFailed and ErrIndexOutOfRange. KindOf maps an error to a Kind.
//
// # Stores
//
// store/memory keeps state in process. store/sqlstore persists to SQLite or
// PostgreSQL through the grove drivers and grove migrations. store/mongo persists to
// MongoDB using multi-document transactions.
//
// # Price feeds
//
// oracle.MockAggregator stands in on development chains.
// oracle/chainlink reads an on-chain AggregatorV3Interface and
// oracle/redisfeed reads prices relayed into Redis.
package fundme
