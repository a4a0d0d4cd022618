package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/fundme/network"
)

// NetworkEntry describes one known network.
type NetworkEntry struct {
	ChainID       uint64 `json:"chain_id"`
	Name          string `json:"name"`
	PriceFeed     string `json:"price_feed,omitempty"`
	Confirmations int    `json:"block_confirmations,omitempty"`
	Development   bool   `json:"development"`
}

// NetworksResult lists known networks by chain ID.
type NetworksResult []NetworkEntry

func (r NetworksResult) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tNAME\tPRICE FEED\tCONFIRMATIONS")
	for _, n := range r {
		feed := n.PriceFeed
		if n.Development {
			feed = "mock"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", n.ChainID, n.Name, feed, n.Confirmations)
	}
	_ = tw.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

// NewNetworksCommand creates the networks command.
func NewNetworksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the networks a ledger can be deployed on",
		Long: `List the networks a ledger can be deployed on.

Entries from --networks-file replace built-in networks with the same chain ID.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := network.Default()
			if rootOpts.NetworksFile != "" {
				loaded, err := network.LoadFile(rootOpts.NetworksFile)
				if err != nil {
					return WrapExitError(ExitCommandError, "networks file", err)
				}
				table = loaded
			}

			var result NetworksResult
			for _, n := range table.List() {
				result = append(result, NetworkEntry{
					ChainID:       n.ChainID,
					Name:          n.Name,
					PriceFeed:     n.EthUSDPriceFeed,
					Confirmations: n.BlockConfirmations,
					Development:   n.IsDevelopment(),
				})
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}
}
