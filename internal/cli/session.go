package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/custody"
	"github.com/xraph/fundme/network"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/oracle/chainlink"
	"github.com/xraph/fundme/store"
	mongostore "github.com/xraph/fundme/store/mongo"
	"github.com/xraph/fundme/store/sqlstore"
	"github.com/xraph/fundme/types"
)

// DevFaucet is what every account on a development network starts with.
var DevFaucet = types.MustParseEther("10000")

// deployParams are only known when deploying; later commands read them
// back from the stored deployment.
type deployParams struct {
	owner     common.Address
	minimum   *big.Int
	priceFeed common.Address // zero picks the network default
}

// session is an opened ledger with the account book it pays through.
type session struct {
	opts    *RootOptions
	ledger  *fundme.Ledger
	book    *custody.Book
	network network.Network
	closers []func()
}

// openSession opens the store, resolves the price feed and starts the
// ledger. With deploy set the deployment is recorded if the store is empty;
// otherwise the store must already hold one.
func openSession(ctx context.Context, opts *RootOptions, deploy *deployParams) (_ *session, err error) {
	s := &session{opts: opts}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if s.network, err = resolveNetwork(opts); err != nil {
		return nil, WrapExitError(ExitCommandError, "network", err)
	}

	st, err := openStore(ctx, opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	s.closers = append(s.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "migrate store", err)
	}

	params := deploy
	if params == nil {
		dep, err := st.GetDeployment(ctx)
		if errors.Is(err, fundme.ErrDeploymentNotFound) {
			return nil, NewExitError(ExitCommandError, "ledger not deployed; run `fundme deploy` first")
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "read deployment", err)
		}
		params = &deployParams{owner: dep.Owner, minimum: dep.MinimumUSD, priceFeed: dep.PriceFeed}
	}

	feed, err := s.openFeed(ctx, params)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "price feed", err)
	}

	var bookOpts []custody.Option
	if s.network.IsDevelopment() {
		bookOpts = append(bookOpts, custody.WithFaucet(DevFaucet))
	}
	if s.book, err = custody.Load(opts.WalletsFile, bookOpts...); err != nil {
		return nil, WrapExitError(ExitCommandError, "load wallets", err)
	}

	s.ledger = fundme.New(st, oracle.NewAdapter(feed), params.owner,
		fundme.WithLogger(opts.Logger()),
		fundme.WithMinimumUSD(params.minimum),
		fundme.WithTransferer(s.book),
	)
	if err := s.ledger.Start(ctx); err != nil {
		return nil, ledgerError("start ledger", err)
	}

	opts.Logger().Debug("session opened",
		"network", s.network.Name,
		"store", opts.StoreURL,
		"owner", params.owner.Hex(),
		"price_feed", feed.Address().Hex(),
	)
	return s, nil
}

// openFeed runs the mock on development networks unless an explicit feed
// address was deployed, and dials the aggregator over JSON-RPC otherwise.
func (s *session) openFeed(ctx context.Context, params *deployParams) (oracle.Feed, error) {
	if s.network.IsDevelopment() {
		mock := network.NewMockFeed(params.owner)
		if params.priceFeed == (common.Address{}) || params.priceFeed == mock.Address() {
			return mock, nil
		}
	}

	address := params.priceFeed
	if address == (common.Address{}) {
		var err error
		if address, err = s.network.PriceFeed(); err != nil {
			return nil, err
		}
	}

	rpcURL := s.opts.RPCURL
	if rpcURL == "" {
		rpcURL = s.network.RPCURL
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("network %s has no rpc url; pass --rpc-url", s.network.Name)
	}

	feed, closeFn, err := chainlink.Dial(ctx, rpcURL, address)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeFn)
	return feed, nil
}

// saveBook persists account balances after a command moved value.
func (s *session) saveBook() error {
	if err := s.book.Save(s.opts.WalletsFile); err != nil {
		return WrapExitError(ExitCommandError, "save wallets", err)
	}
	return nil
}

func (s *session) close() {
	if s.ledger != nil {
		// Stop closes the store; drop its closer.
		_ = s.ledger.Stop()
		s.closers = s.closers[1:]
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func resolveNetwork(opts *RootOptions) (network.Network, error) {
	table := network.Default()
	if opts.NetworksFile != "" {
		loaded, err := network.LoadFile(opts.NetworksFile)
		if err != nil {
			return network.Network{}, err
		}
		table = loaded
	}
	if chainID, err := strconv.ParseUint(opts.Network, 10, 64); err == nil {
		return table.ByChainID(chainID)
	}
	return table.ByName(opts.Network)
}

func openStore(ctx context.Context, opts *RootOptions) (store.Store, error) {
	url := opts.StoreURL
	if strings.HasPrefix(url, "mongodb://") || strings.HasPrefix(url, "mongodb+srv://") {
		return mongostore.Open(ctx, url, opts.MongoDatabase)
	}
	return sqlstore.Open(ctx, url)
}

// parseAddress validates a hex address argument.
func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, NewExitError(ExitCommandError, fmt.Sprintf("%s %q is not an address", name, raw))
	}
	return common.HexToAddress(raw), nil
}

// parseEther validates an ether amount argument.
func parseEther(name, raw string) (*big.Int, error) {
	v, err := types.ParseEther(raw)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, name, err)
	}
	return v, nil
}
