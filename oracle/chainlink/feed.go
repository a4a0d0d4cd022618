// Package chainlink reads prices from an AggregatorV3Interface contract.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xraph/fundme/oracle"
)

// AggregatorV3ABI is the subset of the AggregatorV3Interface the feed calls.
const AggregatorV3ABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ oracle.Feed = (*Feed)(nil)

// Feed is an oracle.Feed backed by an aggregator contract.
type Feed struct {
	address common.Address
	caller  Caller
	abi     abi.ABI

	mu       sync.Mutex
	decimals *uint8
}

// New creates a Feed for the aggregator deployed at address.
func New(address common.Address, caller Caller) (*Feed, error) {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse abi: %w", err)
	}
	return &Feed{
		address: address,
		caller:  caller,
		abi:     parsed,
	}, nil
}

// Dial connects to an RPC endpoint and returns a Feed plus a func that
// closes the connection.
func Dial(ctx context.Context, rpcURL string, address common.Address) (*Feed, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chainlink: dial %s: %w", rpcURL, err)
	}
	feed, err := New(address, client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return feed, client.Close, nil
}

// Address implements oracle.Feed.
func (f *Feed) Address() common.Address { return f.address }

// Decimals implements oracle.Feed. The value is cached after the first
// successful read since aggregators never change precision.
func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.decimals != nil {
		return *f.decimals, nil
	}

	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: decimals: unexpected type %T", out[0])
	}
	f.decimals = &d
	return d, nil
}

// Description returns the feed description, e.g. "ETH / USD".
func (f *Feed) Description(ctx context.Context) (string, error) {
	out, err := f.call(ctx, "description")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("chainlink: description: unexpected type %T", out[0])
	}
	return s, nil
}

// LatestRoundData implements oracle.Feed.
func (f *Feed) LatestRoundData(ctx context.Context) (oracle.RoundData, error) {
	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return oracle.RoundData{}, err
	}
	if len(out) != 5 {
		return oracle.RoundData{}, fmt.Errorf("chainlink: latestRoundData: got %d values", len(out))
	}

	ints := make([]*big.Int, len(out))
	for i, v := range out {
		n, ok := v.(*big.Int)
		if !ok {
			return oracle.RoundData{}, fmt.Errorf("chainlink: latestRoundData: value %d has type %T", i, v)
		}
		ints[i] = n
	}

	return oracle.RoundData{
		RoundID:         ints[0],
		Answer:          ints[1],
		StartedAt:       time.Unix(ints[2].Int64(), 0).UTC(),
		UpdatedAt:       time.Unix(ints[3].Int64(), 0).UTC(),
		AnsweredInRound: ints[4],
	}, nil
}

func (f *Feed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chainlink: pack %s: %w", method, err)
	}

	to := f.address
	raw, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: call %s on %s: %w", method, f.address.Hex(), err)
	}

	out, err := f.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chainlink: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chainlink: %s returned no values", method)
	}
	return out, nil
}
