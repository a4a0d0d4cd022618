package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// ──────────────────────────────────────────────────
// funder
// ──────────────────────────────────────────────────

// FunderResult is one entry of the funder index.
type FunderResult struct {
	Position int    `json:"position"`
	Address  string `json:"address"`
}

func (r FunderResult) String() string { return r.Address }

// NewFunderCommand creates the funder command.
func NewFunderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "funder <position>",
		Short: "Show the funder at a position of the funder index",
		Long: `Show the funder at a position of the funder index.

Every accepted contribution appends its sender, so an account that funded
twice appears twice. The index is cleared by a withdrawal.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "position", err)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			addr, err := s.ledger.Funder(ctx, position)
			if err != nil {
				return ledgerError("funder", err)
			}
			return rootOpts.formatter(cmd).Success(FunderResult{Position: position, Address: addr.Hex()})
		},
	}
}

// ──────────────────────────────────────────────────
// amount
// ──────────────────────────────────────────────────

// AmountResult is an account's contributed total.
type AmountResult struct {
	Address   string `json:"address"`
	AmountETH string `json:"amount_eth"`
}

func (r AmountResult) String() string { return r.AmountETH + " ETH" }

// NewAmountCommand creates the amount command.
func NewAmountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "amount <address>",
		Short:         "Show how much an account contributed since the last withdrawal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("address", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			amount, err := s.ledger.ContributedAmount(ctx, addr)
			if err != nil {
				return ledgerError("amount", err)
			}
			return rootOpts.formatter(cmd).Success(AmountResult{Address: addr.Hex(), AmountETH: types.FormatEther(amount)})
		},
	}
}

// ──────────────────────────────────────────────────
// price
// ──────────────────────────────────────────────────

// PriceResult is the feed's current answer, plus a conversion when asked.
type PriceResult struct {
	Feed     string `json:"feed"`
	PriceUSD string `json:"price_usd"`
	ValueETH string `json:"value_eth,omitempty"`
	ValueUSD string `json:"value_usd,omitempty"`
}

func (r PriceResult) String() string {
	s := fmt.Sprintf("ETH/USD %s (feed %s)", r.PriceUSD, r.Feed)
	if r.ValueETH != "" {
		s += fmt.Sprintf("\n%s ETH = %s USD", r.ValueETH, r.ValueUSD)
	}
	return s
}

// NewPriceCommand creates the price command.
func NewPriceCommand(rootOpts *RootOptions) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:           "price",
		Short:         "Show the ETH/USD price the ledger converts with",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			feed := s.ledger.PriceFeed()
			price, err := feed.Price(ctx)
			if err != nil {
				return ledgerError("price", err)
			}
			result := PriceResult{Feed: feed.Address().Hex(), PriceUSD: types.FormatUSD(price)}

			if value != "" {
				wei, err := parseEther("value", value)
				if err != nil {
					return err
				}
				converted, err := feed.Convert(ctx, wei)
				if err != nil {
					return ledgerError("price", err)
				}
				result.ValueETH = types.FormatEther(wei)
				result.ValueUSD = types.FormatUSD(converted)
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "also convert this many ETH")

	return cmd
}

// ──────────────────────────────────────────────────
// status
// ──────────────────────────────────────────────────

// StatusResult summarizes the ledger.
type StatusResult struct {
	Network    string `json:"network"`
	Owner      string `json:"owner"`
	PriceFeed  string `json:"price_feed"`
	MinimumUSD string `json:"minimum_usd"`
	BalanceETH string `json:"balance_eth"`
	HeldETH    string `json:"held_eth"`
	Funders    int    `json:"funders"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "network:    %s\n", r.Network)
	fmt.Fprintf(&b, "owner:      %s\n", r.Owner)
	fmt.Fprintf(&b, "price feed: %s\n", r.PriceFeed)
	fmt.Fprintf(&b, "minimum:    %s USD\n", r.MinimumUSD)
	fmt.Fprintf(&b, "balance:    %s ETH\n", r.BalanceETH)
	fmt.Fprintf(&b, "held:       %s ETH\n", r.HeldETH)
	fmt.Fprintf(&b, "funders:    %d", r.Funders)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the ledger",
		Long: `Summarize the ledger.

balance is what the ledger owes the owner; held is the value actually
escrowed in the wallets file. The two match unless the files were edited.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			balance, err := s.ledger.Balance(ctx)
			if err != nil {
				return ledgerError("balance", err)
			}
			funders, err := s.ledger.FunderCount(ctx)
			if err != nil {
				return ledgerError("funders", err)
			}

			return rootOpts.formatter(cmd).Success(StatusResult{
				Network:    s.network.Name,
				Owner:      s.ledger.Owner().Hex(),
				PriceFeed:  s.ledger.PriceFeed().Address().Hex(),
				MinimumUSD: types.FormatUSD(s.ledger.MinimumUSD()),
				BalanceETH: types.FormatEther(balance),
				HeldETH:    types.FormatEther(s.book.Held()),
				Funders:    funders,
			})
		},
	}
}

// ──────────────────────────────────────────────────
// history
// ──────────────────────────────────────────────────

// ContributionEntry is one accepted contribution.
type ContributionEntry struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	ValueETH  string `json:"value_eth"`
	ValueUSD  string `json:"value_usd"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
}

// WithdrawalEntry is one completed withdrawal.
type WithdrawalEntry struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	AmountETH    string `json:"amount_eth"`
	Funders      int    `json:"funders"`
	Contributors int    `json:"contributors"`
	CreatedAt    string `json:"created_at"`
}

// HistoryResult lists what happened to the ledger.
type HistoryResult struct {
	Contributions []ContributionEntry `json:"contributions"`
	Withdrawals   []WithdrawalEntry   `json:"withdrawals"`
}

func (r HistoryResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "contributions: %d\n", len(r.Contributions))
	for _, e := range r.Contributions {
		fmt.Fprintf(&b, "  #%d %s %s ETH (%s USD)\n", e.Position, e.From, e.ValueETH, e.ValueUSD)
	}
	fmt.Fprintf(&b, "withdrawals: %d", len(r.Withdrawals))
	for _, e := range r.Withdrawals {
		fmt.Fprintf(&b, "\n  %s %s ETH from %d funder entries", e.Owner, e.AmountETH, e.Funders)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		account string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List contributions and withdrawals",
		Long: `List accepted contributions and completed withdrawals, oldest first.

For contributions the number after # is the funder position the
contribution was given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			copts := contribution.ListOpts{Limit: limit}
			if account != "" {
				addr, err := parseAddress("account", account)
				if err != nil {
					return err
				}
				copts.Contributor = &addr
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			contributions, err := s.ledger.Contributions(ctx, copts)
			if err != nil {
				return ledgerError("contributions", err)
			}
			withdrawals, err := s.ledger.Withdrawals(ctx, withdrawal.ListOpts{Limit: limit})
			if err != nil {
				return ledgerError("withdrawals", err)
			}

			result := HistoryResult{
				Contributions: make([]ContributionEntry, 0, len(contributions)),
				Withdrawals:   make([]WithdrawalEntry, 0, len(withdrawals)),
			}
			for _, c := range contributions {
				result.Contributions = append(result.Contributions, ContributionEntry{
					ID:        c.ID.String(),
					From:      c.Contributor.Hex(),
					ValueETH:  types.FormatEther(c.Value),
					ValueUSD:  types.FormatUSD(c.ReferenceValue),
					Position:  c.Position,
					CreatedAt: c.CreatedAt.Format(time.RFC3339),
				})
			}
			for _, w := range withdrawals {
				result.Withdrawals = append(result.Withdrawals, WithdrawalEntry{
					ID:           w.ID.String(),
					Owner:        w.Owner.Hex(),
					AmountETH:    types.FormatEther(w.Amount),
					Funders:      w.Funders,
					Contributors: w.Contributors,
					CreatedAt:    w.CreatedAt.Format(time.RFC3339),
				})
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only contributions from this account")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries of each kind (0: all)")

	return cmd
}

// ──────────────────────────────────────────────────
// wallet
// ──────────────────────────────────────────────────

// WalletResult is an account's spendable balance.
type WalletResult struct {
	Address    string `json:"address"`
	BalanceETH string `json:"balance_eth"`
}

func (r WalletResult) String() string { return r.BalanceETH + " ETH" }

// NewWalletCommand creates the wallet command.
func NewWalletCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet <address>",
		Short: "Show an account's spendable balance",
		Long: `Show an account's spendable balance from the wallets file.

On development networks every account starts with 10000 ETH.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("address", args[0])
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer s.close()

			return rootOpts.formatter(cmd).Success(WalletResult{
				Address:    addr.Hex(),
				BalanceETH: types.FormatEther(s.book.BalanceOf(addr)),
			})
		},
	}
}
