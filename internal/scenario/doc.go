// Package scenario runs ledger behaviour described in YAML against a fresh
// in-memory ledger and records what happened as a trace.
//
// # Scenario Format
//
//	name: withdraw_single_funder
//	description: "The owner drains a ledger funded once"
//	minimum_usd: "50"          # optional, default 50
//	accounts:                  # optional, extra named accounts
//	  attacker: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
//	steps:
//	  - action: fund
//	    from: deployer
//	    value: "1"
//	  - action: withdraw
//	  - action: balance
//	    expect:
//	      result: "0"
//
// Accounts are named. deployer owns the ledger; alice, bob, carol, dave,
// erin and frank are the next development accounts. Every account starts
// with 10000 ETH.
//
// # Actions
//
//   - fund: contribute value ETH from from
//   - withdraw: withdraw as from (default deployer)
//   - amount: total contributed by account, in ETH
//   - funder: account at index of the funder index
//   - funders: length of the funder index
//   - balance: ETH the ledger holds for the owner
//   - held: ETH escrowed in the account book
//   - wallet: spendable ETH of account
//   - owner: name of the owner
//   - price_feed: "mock" when the ledger reads the development mock
//   - set_price: open a new mock round at price USD
//   - feed_error / feed_recover: make the mock fail or answer again
//   - fail_next_transfer: make the next payout fail with reason
//
// An expect clause checks the outcome: error names the error kind the step
// must fail with, result the rendered result. Steps without expect must
// succeed.
//
// # Golden Traces
//
// RunWithGolden compares the trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/scenario -update
package scenario
