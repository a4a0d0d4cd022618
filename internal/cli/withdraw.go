package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/fundme/types"
)

// WithdrawOptions holds flags for the withdraw command.
type WithdrawOptions struct {
	*RootOptions
	From string
}

// WithdrawResult describes a completed withdrawal.
type WithdrawResult struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	AmountETH    string `json:"amount_eth"`
	Funders      int    `json:"funders"`
	Contributors int    `json:"contributors"`
}

func (r WithdrawResult) String() string {
	return fmt.Sprintf("withdrew %s ETH to %s (%d funder entries, %d contributors)",
		r.AmountETH, r.Owner, r.Funders, r.Contributors)
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WithdrawOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Pay the whole balance to the owner",
		Long: `Pay the whole balance to the owner and reset every contributor.

Only the owner may withdraw. --from defaults to the deployed owner.

Examples:
  fundme withdraw
  fundme withdraw --from 0x70997970C51812dc3A010C7d01b50e0d17dc79C8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithdraw(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "calling account (default: the owner)")

	return cmd
}

func runWithdraw(opts *WithdrawOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer s.close()

	caller := s.ledger.Owner()
	if opts.From != "" {
		if caller, err = parseAddress("from", opts.From); err != nil {
			return err
		}
	}

	w, err := s.ledger.Withdraw(ctx, caller)
	if err != nil {
		return ledgerError("withdraw", err)
	}
	if err := s.saveBook(); err != nil {
		return err
	}

	out := opts.formatter(cmd)
	out.VerboseLog("wallets written to %s", opts.WalletsFile)
	return out.Success(WithdrawResult{
		ID:           w.ID.String(),
		Owner:        w.Owner.Hex(),
		AmountETH:    types.FormatEther(w.Amount),
		Funders:      w.Funders,
		Contributors: w.Contributors,
	})
}
