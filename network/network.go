// Package network maps chain IDs to the price feed a ledger should read.
//
// Development chains have no deployed aggregator; callers run an in-process
// mock seeded with Decimals and InitialPrice instead.
package network

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/xraph/fundme/oracle"
)

// Mock aggregator parameters for development chains.
const (
	Decimals     uint8 = oracle.MockDecimals
	InitialPrice int64 = oracle.MockAnswer
)

// LocalChainID is the chain ID of local development nodes.
const LocalChainID uint64 = 31337

// DevelopmentChains lists network names that always use the mock feed.
var DevelopmentChains = []string{"hardhat", "localhost"}

var (
	ErrUnknownNetwork = errors.New("network: unknown network")
	ErrNoPriceFeed    = errors.New("network: no price feed configured")
)

// Network describes one chain.
type Network struct {
	ChainID            uint64 `yaml:"chain_id"`
	Name               string `yaml:"name"`
	EthUSDPriceFeed    string `yaml:"eth_usd_price_feed,omitempty"`
	RPCURL             string `yaml:"rpc_url,omitempty"`
	BlockConfirmations int    `yaml:"block_confirmations,omitempty"`
}

// PriceFeed returns the configured ETH/USD aggregator address.
func (n Network) PriceFeed() (common.Address, error) {
	if n.EthUSDPriceFeed == "" {
		return common.Address{}, fmt.Errorf("%w: %s (chain %d)", ErrNoPriceFeed, n.Name, n.ChainID)
	}
	if !common.IsHexAddress(n.EthUSDPriceFeed) {
		return common.Address{}, fmt.Errorf("network: %s: malformed feed address %q", n.Name, n.EthUSDPriceFeed)
	}
	return common.HexToAddress(n.EthUSDPriceFeed), nil
}

// IsDevelopment reports whether n should run against a mock feed.
func (n Network) IsDevelopment() bool {
	return n.ChainID == LocalChainID || slices.Contains(DevelopmentChains, n.Name)
}

// Table is a set of networks keyed by chain ID.
type Table struct {
	networks map[uint64]Network
}

// Default returns the built-in table.
func Default() *Table {
	return &Table{networks: map[uint64]Network{
		4: {
			ChainID:            4,
			Name:               "rinkeby",
			EthUSDPriceFeed:    "0x8A753747A1Fa494EC906CE90E9f37563A8AF630e",
			BlockConfirmations: 6,
		},
		5: {
			ChainID:            5,
			Name:               "goerli",
			EthUSDPriceFeed:    "0xD4a33860578De61DBAbDc8BFdb98FD742fA7028e",
			BlockConfirmations: 6,
		},
		137: {
			ChainID:            137,
			Name:               "polygon",
			EthUSDPriceFeed:    "0xF9680D99D6C9589e2a93a78A04A279e509205945",
			BlockConfirmations: 6,
		},
		LocalChainID: {
			ChainID: LocalChainID,
			Name:    "localhost",
			RPCURL:  "http://127.0.0.1:8545",
		},
	}}
}

type file struct {
	Networks []Network `yaml:"networks"`
}

// Load reads networks from YAML and layers them over the defaults. Entries
// replace the default with the same chain ID.
//
//	networks:
//	  - chain_id: 11155111
//	    name: sepolia
//	    eth_usd_price_feed: "0x694AA1769357215DE4FAC081bf1f309aDC325306"
func Load(r io.Reader) (*Table, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("network: decode: %w", err)
	}

	t := Default()
	for _, n := range f.Networks {
		if n.ChainID == 0 {
			return nil, fmt.Errorf("network: entry %q has no chain_id", n.Name)
		}
		if n.Name == "" {
			return nil, fmt.Errorf("network: chain %d has no name", n.ChainID)
		}
		t.networks[n.ChainID] = n
	}
	return t, nil
}

// LoadFile is Load over the file at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// ByChainID looks a network up by chain ID.
func (t *Table) ByChainID(chainID uint64) (Network, error) {
	n, ok := t.networks[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain %d", ErrUnknownNetwork, chainID)
	}
	return n, nil
}

// ByName looks a network up by name. "hardhat" resolves to the local chain.
func (t *Table) ByName(name string) (Network, error) {
	if name == "hardhat" {
		name = "localhost"
	}
	for _, n := range t.networks {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
}

// List returns all networks ordered by chain ID.
func (t *Table) List() []Network {
	out := make([]Network, 0, len(t.networks))
	for _, n := range t.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// DeployAddress is the address a contract created by deployer at nonce
// lands on. Development deployments use it to give the mock feed and the
// ledger stable addresses.
func DeployAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// NewMockFeed builds the development aggregator at the address the first
// deployment from deployer would get.
func NewMockFeed(deployer common.Address, opts ...oracle.MockOption) *oracle.MockAggregator {
	opts = append([]oracle.MockOption{oracle.WithMockAddress(DeployAddress(deployer, 0))}, opts...)
	return oracle.NewMockAggregator(Decimals, big.NewInt(InitialPrice), opts...)
}
