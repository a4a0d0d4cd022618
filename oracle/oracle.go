// Package oracle converts native-currency amounts into the reference unit
// (USD with 18 decimals) using the latest answer of a price feed.
//
// A Feed is anything that reports an AggregatorV3-style round: the on-chain
// Chainlink aggregator, a value relayed through Redis, or the in-process
// MockAggregator used on development chains.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/types"
)

// ErrUnavailable is returned when the feed cannot produce a usable price.
var ErrUnavailable = errors.New("oracle: price feed unavailable")

// TargetDecimals is the precision of prices and converted values.
const TargetDecimals = types.EtherDecimals

// RoundData is a single answer reported by a feed.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// Feed is a read-only price source.
type Feed interface {
	// Address identifies the feed, normally the aggregator contract address.
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	LatestRoundData(ctx context.Context) (RoundData, error)
}

// Adapter wraps a Feed and performs the reference-unit conversion.
type Adapter struct {
	feed         Feed
	maxStaleness time.Duration
	now          func() time.Time
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMaxStaleness rejects rounds whose UpdatedAt is older than d.
// Zero disables the check.
func WithMaxStaleness(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.maxStaleness = d }
}

// WithClock overrides the clock used for staleness checks.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter creates an Adapter over feed.
func NewAdapter(feed Feed, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		feed: feed,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed returns the wrapped feed.
func (a *Adapter) Feed() Feed { return a.feed }

// Address returns the address of the wrapped feed.
func (a *Adapter) Address() common.Address { return a.feed.Address() }

// Price returns the latest answer rescaled to TargetDecimals, i.e. the
// reference value of one whole native unit.
func (a *Adapter) Price(ctx context.Context) (*big.Int, error) {
	round, err := a.feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: latest round: %w", ErrUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer %v", ErrUnavailable, round.Answer)
	}
	if a.maxStaleness > 0 && a.now().Sub(round.UpdatedAt) > a.maxStaleness {
		return nil, fmt.Errorf("%w: round %v updated at %s is stale",
			ErrUnavailable, round.RoundID, round.UpdatedAt.Format(time.RFC3339))
	}

	decimals, err := a.feed.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: decimals: %w", ErrUnavailable, err)
	}
	return rescale(round.Answer, int(decimals), TargetDecimals), nil
}

// Convert returns the reference value of amount (in the native smallest
// unit) with TargetDecimals precision: price * amount / 10^18.
func (a *Adapter) Convert(ctx context.Context, amount *big.Int) (*big.Int, error) {
	price, err := a.Price(ctx)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return new(big.Int), nil
	}

	out := new(big.Int).Mul(price, amount)
	return out.Quo(out, types.Pow10(types.EtherDecimals)), nil
}

func rescale(v *big.Int, from, to int) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case from < to:
		return out.Mul(out, types.Pow10(to-from))
	case from > to:
		return out.Quo(out, types.Pow10(from-to))
	default:
		return out
	}
}
