// Package redisfeed serves prices that an off-chain relayer publishes into
// a Redis hash. The hash mirrors an aggregator round:
//
//	answer      integer answer at the feed precision
//	decimals    feed precision
//	round_id    round number
//	started_at  unix seconds
//	updated_at  unix seconds
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/fundme/oracle"
)

// DefaultKey is the hash key used when none is configured.
const DefaultKey = "fundme:price:eth-usd"

// ErrNoPrice is returned when nothing has been published under the key.
var ErrNoPrice = errors.New("redisfeed: no price published")

// Client is the subset of the go-redis API the feed uses.
// *redis.Client and *redis.ClusterClient satisfy it.
type Client interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

var _ oracle.Feed = (*Feed)(nil)

// Feed reads rounds from a Redis hash.
type Feed struct {
	client  Client
	key     string
	address common.Address
}

// Option configures a Feed.
type Option func(*Feed)

// WithKey sets the hash key.
func WithKey(key string) Option {
	return func(f *Feed) { f.key = key }
}

// New creates a Feed. address is the identity reported to the ledger,
// normally the aggregator whose answers the relayer mirrors.
func New(client Client, address common.Address, opts ...Option) *Feed {
	f := &Feed{
		client:  client,
		key:     DefaultKey,
		address: address,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open parses a redis:// URL and returns a Feed with its client.
func Open(url string, address common.Address, opts ...Option) (*Feed, *redis.Client, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("redisfeed: parse url: %w", err)
	}
	client := redis.NewClient(ropts)
	return New(client, address, opts...), client, nil
}

// Address implements oracle.Feed.
func (f *Feed) Address() common.Address { return f.address }

// Decimals implements oracle.Feed.
func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	fields, err := f.load(ctx)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseUint(fields["decimals"], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("redisfeed: decimals: %w", err)
	}
	return uint8(d), nil
}

// LatestRoundData implements oracle.Feed.
func (f *Feed) LatestRoundData(ctx context.Context) (oracle.RoundData, error) {
	fields, err := f.load(ctx)
	if err != nil {
		return oracle.RoundData{}, err
	}

	answer, ok := new(big.Int).SetString(fields["answer"], 10)
	if !ok {
		return oracle.RoundData{}, fmt.Errorf("redisfeed: answer %q is not an integer", fields["answer"])
	}
	roundID, ok := new(big.Int).SetString(fields["round_id"], 10)
	if !ok {
		roundID = new(big.Int)
	}
	updatedAt, err := unixField(fields, "updated_at")
	if err != nil {
		return oracle.RoundData{}, err
	}
	startedAt, err := unixField(fields, "started_at")
	if err != nil {
		startedAt = updatedAt
	}

	return oracle.RoundData{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: new(big.Int).Set(roundID),
	}, nil
}

// Publish writes a round into the hash.
func (f *Feed) Publish(ctx context.Context, decimals uint8, round oracle.RoundData) error {
	roundID := round.RoundID
	if roundID == nil {
		roundID = new(big.Int)
	}
	startedAt := round.StartedAt
	if startedAt.IsZero() {
		startedAt = round.UpdatedAt
	}

	err := f.client.HSet(ctx, f.key,
		"answer", round.Answer.String(),
		"decimals", strconv.Itoa(int(decimals)),
		"round_id", roundID.String(),
		"started_at", strconv.FormatInt(startedAt.Unix(), 10),
		"updated_at", strconv.FormatInt(round.UpdatedAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redisfeed: publish %s: %w", f.key, err)
	}
	return nil
}

func (f *Feed) load(ctx context.Context) (map[string]string, error) {
	fields, err := f.client.HGetAll(ctx, f.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisfeed: read %s: %w", f.key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoPrice, f.key)
	}
	return fields, nil
}

func unixField(fields map[string]string, name string) (time.Time, error) {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redisfeed: %s: %w", name, err)
	}
	return time.Unix(v, 0).UTC(), nil
}
