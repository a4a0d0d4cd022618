package extension_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	forgetesting "github.com/xraph/forge/testing"
	"github.com/xraph/vessel"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/extension"
	"github.com/xraph/fundme/network"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

const ownerHex = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	app := forgetesting.NewTestApp("fundme-test", "0.0.0")

	ext := extension.New(extension.WithOwner(ownerHex), extension.WithMetrics())
	require.NoError(t, ext.Register(app))
	require.NoError(t, ext.Start(ctx))
	t.Cleanup(func() { _ = ext.Stop(ctx) })

	cfg := ext.Config()
	assert.Equal(t, "50", cfg.MinimumUSD)
	assert.Equal(t, network.LocalChainID, cfg.ChainID)
	assert.Equal(t, "memory", cfg.StoreURL)

	l, err := vessel.InjectType[*fundme.Ledger](app.Container())
	require.NoError(t, err)
	assert.Same(t, ext.Engine(), l)

	// Development chain: the mock sits where the owner's first deployment lands.
	owner := common.HexToAddress(ownerHex)
	assert.Equal(t, network.DeployAddress(owner, 0), l.PriceFeed().Address())
	assert.Equal(t, owner, l.Owner())

	funder := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	_, err = l.Contribute(ctx, funder, types.MustParseEther("1"))
	require.NoError(t, err)

	require.NoError(t, ext.Health(ctx))
}

func TestSQLiteStoreAndFloor(t *testing.T) {
	ctx := context.Background()
	app := forgetesting.NewTestApp("fundme-test", "0.0.0")

	ext := extension.New(
		extension.WithOwner(ownerHex),
		extension.WithMinimumUSD("2500"),
		extension.WithStoreURL("sqlite://"+filepath.Join(t.TempDir(), "fundme.db")),
	)
	require.NoError(t, ext.Register(app))
	require.NoError(t, ext.Start(ctx))
	t.Cleanup(func() { _ = ext.Stop(ctx) })

	l := ext.Engine()
	assert.Equal(t, types.MustParseEther("2500").String(), l.MinimumUSD().String())

	// 1 ETH is 2000 USD at the development price.
	_, err := l.Contribute(ctx, common.HexToAddress("0x01"), types.MustParseEther("1"))
	assert.True(t, errors.Is(err, fundme.ErrInsufficientContribution))
}

func TestInjectedFeed(t *testing.T) {
	ctx := context.Background()
	app := forgetesting.NewTestApp("fundme-test", "0.0.0")

	feed := oracle.NewMockAggregator(18, types.MustParseEther("3000"),
		oracle.WithMockAddress(common.HexToAddress("0xfeed")))
	ext := extension.New(extension.WithOwner(ownerHex), extension.WithFeed(feed))
	require.NoError(t, ext.Register(app))
	require.NoError(t, ext.Start(ctx))
	t.Cleanup(func() { _ = ext.Stop(ctx) })

	price, err := ext.Engine().PriceFeed().Price(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseEther("3000").String(), price.String())
}

func TestRegisterErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []extension.Option
	}{
		{"missing owner", nil},
		{"bad minimum", []extension.Option{extension.WithOwner(ownerHex), extension.WithMinimumUSD("fifty")}},
		{"unknown chain", []extension.Option{extension.WithOwner(ownerHex), extension.WithChainID(1)}},
		{"live chain without rpc", []extension.Option{extension.WithOwner(ownerHex), extension.WithChainID(5)}},
		{"unsupported store", []extension.Option{extension.WithOwner(ownerHex), extension.WithStoreURL("mysql://x")}},
		{"required config missing", []extension.Option{extension.WithOwner(ownerHex), extension.WithRequireConfig(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := forgetesting.NewTestApp("fundme-test", "0.0.0")
			ext := extension.New(tt.opts...)
			assert.Error(t, ext.Register(app))
		})
	}
}

func TestStartBeforeRegister(t *testing.T) {
	assert.Error(t, extension.New().Start(context.Background()))
	assert.Error(t, extension.New().Health(context.Background()))
}
