// Package extension provides the Forge extension adapter for fundme.
//
// It implements the forge.Extension interface to integrate a fundme ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fundme" or "fundme" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/observability"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fundme"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Crowdfunding ledger with a USD contribution floor"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts a fundme ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *fundme.Ledger
	store      store.Store
	feed       oracle.Feed
	ledgerOpts []fundme.Option
	closers    []func() error
}

// New creates a new fundme Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Engine() *fundme.Ledger { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, builds the
// store and price feed, and registers the ledger in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if !common.IsHexAddress(e.config.Owner) {
		return fmt.Errorf("fundme: owner %q is not an address", e.config.Owner)
	}
	owner := common.HexToAddress(e.config.Owner)

	minimum, err := types.ParseUnits(e.config.MinimumUSD, types.EtherDecimals)
	if err != nil {
		return fmt.Errorf("fundme: minimum_usd: %w", err)
	}

	ctx := context.Background()
	if e.store == nil {
		if e.store, err = e.openStore(ctx); err != nil {
			return err
		}
	}
	if e.feed == nil {
		if e.feed, err = e.openFeed(ctx, owner); err != nil {
			return err
		}
	}

	var adapterOpts []oracle.AdapterOption
	if e.config.MaxStaleness > 0 {
		adapterOpts = append(adapterOpts, oracle.WithMaxStaleness(e.config.MaxStaleness))
	}

	opts := make([]fundme.Option, 0, len(e.ledgerOpts)+2)
	opts = append(opts, fundme.WithMinimumUSD(minimum))
	if e.config.EnableMetrics {
		opts = append(opts, fundme.WithPlugin(observability.NewMetricsExtension(forgeMetrics{m: fapp.Metrics()})))
	}
	opts = append(opts, e.ledgerOpts...)

	e.engine = fundme.New(e.store, oracle.NewAdapter(e.feed, adapterOpts...), owner, opts...)

	return vessel.Provide(fapp.Container(), func() (*fundme.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("fundme: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	for _, closeFn := range e.closers {
		errs = append(errs, closeFn())
	}
	e.closers = nil
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fundme: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.engine != nil {
		if _, err := e.engine.PriceFeed().Price(ctx); err != nil {
			return err
		}
	}
	return nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fundme: configuration is required but not found in config files; " +
				"ensure 'extensions.fundme' or 'fundme' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("fundme: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("minimum_usd", e.config.MinimumUSD),
		forge.F("chain_id", e.config.ChainID),
		forge.F("feed_kind", e.config.FeedKind),
		forge.F("max_staleness", e.config.MaxStaleness),
		forge.F("enable_metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.fundme", "fundme"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("fundme: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("fundme: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MinimumUSD == "" {
		cfg.MinimumUSD = defaults.MinimumUSD
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaults.ChainID
	}
	if cfg.StoreURL == "" {
		cfg.StoreURL = defaults.StoreURL
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaults.MongoDatabase
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Owner, programmaticConfig.Owner)
	fill(&yamlConfig.MinimumUSD, programmaticConfig.MinimumUSD)
	fill(&yamlConfig.NetworksFile, programmaticConfig.NetworksFile)
	fill(&yamlConfig.FeedKind, programmaticConfig.FeedKind)
	fill(&yamlConfig.FeedAddress, programmaticConfig.FeedAddress)
	fill(&yamlConfig.RPCURL, programmaticConfig.RPCURL)
	fill(&yamlConfig.RedisURL, programmaticConfig.RedisURL)
	fill(&yamlConfig.RedisKey, programmaticConfig.RedisKey)
	fill(&yamlConfig.StoreURL, programmaticConfig.StoreURL)
	fill(&yamlConfig.MongoDatabase, programmaticConfig.MongoDatabase)

	if yamlConfig.ChainID == 0 && programmaticConfig.ChainID != 0 {
		yamlConfig.ChainID = programmaticConfig.ChainID
	}
	if yamlConfig.MaxStaleness == 0 && programmaticConfig.MaxStaleness != 0 {
		yamlConfig.MaxStaleness = programmaticConfig.MaxStaleness
	}

	return e.mergeWithDefaults(yamlConfig)
}
