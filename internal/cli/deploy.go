package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/fundme/types"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Owner      string
	MinimumUSD string
	PriceFeed  string
}

// DeployResult describes the recorded deployment.
type DeployResult struct {
	ID         string `json:"id"`
	Network    string `json:"network"`
	ChainID    uint64 `json:"chain_id"`
	Owner      string `json:"owner"`
	PriceFeed  string `json:"price_feed"`
	MinimumUSD string `json:"minimum_usd"`
}

func (r DeployResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment %s\n", r.ID)
	fmt.Fprintf(&b, "network:    %s (%d)\n", r.Network, r.ChainID)
	fmt.Fprintf(&b, "owner:      %s\n", r.Owner)
	fmt.Fprintf(&b, "price feed: %s\n", r.PriceFeed)
	fmt.Fprintf(&b, "minimum:    %s USD", r.MinimumUSD)
	return b.String()
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Record the ledger's owner, price feed and minimum",
		Long: `Record the ledger's owner, price feed and minimum in the store.

On development networks (localhost, hardhat) the price feed is an in-process
mock answering 2000 USD per ETH. Elsewhere the network's ETH/USD aggregator is
read over JSON-RPC.

Deploying again with the same owner and feed is a no-op; a different owner or
feed is refused.

Examples:
  fundme deploy
  fundme deploy --network goerli --rpc-url https://rpc.example --owner 0x...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", DefaultOwner, "address allowed to withdraw")
	cmd.Flags().StringVar(&opts.MinimumUSD, "minimum-usd", "50", "contribution floor in USD")
	cmd.Flags().StringVar(&opts.PriceFeed, "price-feed", "", "ETH/USD aggregator address (default: the network's)")

	return cmd
}

func runDeploy(opts *DeployOptions, cmd *cobra.Command) error {
	owner, err := parseAddress("owner", opts.Owner)
	if err != nil {
		return err
	}
	minimum, err := types.ParseUnits(opts.MinimumUSD, types.EtherDecimals)
	if err != nil {
		return WrapExitError(ExitCommandError, "minimum-usd", err)
	}
	params := &deployParams{owner: owner, minimum: minimum}
	if opts.PriceFeed != "" {
		if params.priceFeed, err = parseAddress("price-feed", opts.PriceFeed); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, params)
	if err != nil {
		return err
	}
	defer s.close()

	dep, err := s.ledger.Deployment(ctx)
	if err != nil {
		return ledgerError("read deployment", err)
	}

	return opts.formatter(cmd).Success(DeployResult{
		ID:         dep.ID.String(),
		Network:    s.network.Name,
		ChainID:    s.network.ChainID,
		Owner:      dep.Owner.Hex(),
		PriceFeed:  dep.PriceFeed.Hex(),
		MinimumUSD: types.FormatUSD(dep.MinimumUSD),
	})
}
