package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/fundme/types"
)

// FundOptions holds flags for the fund command.
type FundOptions struct {
	*RootOptions
	From  string
	Value string
}

// FundResult describes an accepted contribution.
type FundResult struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	ValueETH string `json:"value_eth"`
	ValueUSD string `json:"value_usd"`
	Position int    `json:"position"`
}

func (r FundResult) String() string {
	return fmt.Sprintf("funded %s ETH (%s USD) from %s as funder #%d", r.ValueETH, r.ValueUSD, r.From, r.Position)
}

// NewFundCommand creates the fund command.
func NewFundCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FundOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Send ETH to the ledger",
		Long: `Send ETH from an account to the ledger.

The value is moved out of the account first and returned if the ledger
refuses it, e.g. because it is worth less than the minimum in USD.

Examples:
  fundme fund --value 1
  fundme fund --from 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --value 0.05`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFund(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", DefaultOwner, "sending account")
	cmd.Flags().StringVar(&opts.Value, "value", "", "amount in ETH")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func runFund(opts *FundOptions, cmd *cobra.Command) error {
	from, err := parseAddress("from", opts.From)
	if err != nil {
		return err
	}
	value, err := parseEther("value", opts.Value)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer s.close()

	c, err := s.book.Contribute(ctx, s.ledger, from, value)
	if err != nil {
		return ledgerError("fund", err)
	}
	if err := s.saveBook(); err != nil {
		return err
	}

	out := opts.formatter(cmd)
	out.VerboseLog("wallets written to %s", opts.WalletsFile)
	return out.Success(FundResult{
		ID:       c.ID.String(),
		From:     c.Contributor.Hex(),
		ValueETH: types.FormatEther(c.Value),
		ValueUSD: types.FormatUSD(c.ReferenceValue),
		Position: c.Position,
	})
}
