package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/network"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/oracle/chainlink"
	"github.com/xraph/fundme/oracle/redisfeed"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/memory"
	mongostore "github.com/xraph/fundme/store/mongo"
	"github.com/xraph/fundme/store/sqlstore"
)

// openStore builds the backend named by StoreURL.
func (e *Extension) openStore(ctx context.Context) (store.Store, error) {
	url := e.config.StoreURL
	switch {
	case url == "" || url == "memory":
		return memory.New(), nil
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return mongostore.Open(ctx, url, e.config.MongoDatabase)
	default:
		return sqlstore.Open(ctx, url)
	}
}

// openFeed builds the price feed for the configured network. Connections it
// opens are closed on Stop.
func (e *Extension) openFeed(ctx context.Context, owner common.Address) (oracle.Feed, error) {
	table := network.Default()
	if e.config.NetworksFile != "" {
		loaded, err := network.LoadFile(e.config.NetworksFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	net, err := table.ByChainID(e.config.ChainID)
	if err != nil {
		return nil, err
	}

	kind := e.config.FeedKind
	if kind == "" {
		kind = FeedChainlink
		if net.IsDevelopment() {
			kind = FeedMock
		}
	}

	if kind == FeedMock {
		e.Logger().Info("fundme: development network, using mock price feed")
		return network.NewMockFeed(owner), nil
	}

	address, err := e.feedAddress(net)
	if err != nil {
		return nil, err
	}

	switch kind {
	case FeedChainlink:
		rpcURL := e.config.RPCURL
		if rpcURL == "" {
			rpcURL = net.RPCURL
		}
		if rpcURL == "" {
			return nil, fmt.Errorf("fundme: chainlink feed on %s needs rpc_url", net.Name)
		}
		feed, closeFn, err := chainlink.Dial(ctx, rpcURL, address)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error { closeFn(); return nil })
		return feed, nil
	case FeedRedis:
		if e.config.RedisURL == "" {
			return nil, errors.New("fundme: redis feed needs redis_url")
		}
		var opts []redisfeed.Option
		if e.config.RedisKey != "" {
			opts = append(opts, redisfeed.WithKey(e.config.RedisKey))
		}
		feed, client, err := redisfeed.Open(e.config.RedisURL, address, opts...)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		return feed, nil
	default:
		return nil, fmt.Errorf("fundme: unknown feed kind %q", kind)
	}
}

func (e *Extension) feedAddress(net network.Network) (common.Address, error) {
	if e.config.FeedAddress != "" {
		if !common.IsHexAddress(e.config.FeedAddress) {
			return common.Address{}, fmt.Errorf("fundme: malformed feed_address %q", e.config.FeedAddress)
		}
		return common.HexToAddress(e.config.FeedAddress), nil
	}
	return net.PriceFeed()
}
