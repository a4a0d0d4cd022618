package extension

import "time"

// Config holds the fundme extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fundme" or "fundme" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Owner is the hex address allowed to withdraw. Required.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// MinimumUSD is the contribution floor in whole dollars, e.g. "50".
	MinimumUSD string `json:"minimum_usd" mapstructure:"minimum_usd" yaml:"minimum_usd"`

	// ChainID selects the network whose price feed is used when FeedAddress
	// is empty. Development chains get the mock feed.
	ChainID uint64 `json:"chain_id" mapstructure:"chain_id" yaml:"chain_id"`

	// NetworksFile is an optional YAML file layered over the built-in
	// network table.
	NetworksFile string `json:"networks_file" mapstructure:"networks_file" yaml:"networks_file"`

	// FeedKind is one of "mock", "chainlink" or "redis". Empty picks the
	// mock on development chains and chainlink elsewhere.
	FeedKind string `json:"feed_kind" mapstructure:"feed_kind" yaml:"feed_kind"`

	// FeedAddress overrides the aggregator address from the network table.
	FeedAddress string `json:"feed_address" mapstructure:"feed_address" yaml:"feed_address"`

	// RPCURL is the JSON-RPC endpoint for the chainlink feed.
	RPCURL string `json:"rpc_url" mapstructure:"rpc_url" yaml:"rpc_url"`

	// RedisURL is the server holding the redis feed's price hash.
	RedisURL string `json:"redis_url" mapstructure:"redis_url" yaml:"redis_url"`

	// RedisKey is the hash key of the redis feed (default: "fundme:price:eth-usd").
	RedisKey string `json:"redis_key" mapstructure:"redis_key" yaml:"redis_key"`

	// MaxStaleness rejects price rounds older than this; zero disables the check.
	MaxStaleness time.Duration `json:"max_staleness" mapstructure:"max_staleness" yaml:"max_staleness"`

	// StoreURL selects the backend: "memory", "sqlite://path",
	// "postgres://..." or "mongodb://..." (default: "memory").
	StoreURL string `json:"store_url" mapstructure:"store_url" yaml:"store_url"`

	// MongoDatabase is the database used with a mongodb store (default: "fundme").
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`

	// EnableMetrics registers the observability plugin against the app's metrics.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinimumUSD:    "50",
		ChainID:       31337,
		StoreURL:      "memory",
		MongoDatabase: "fundme",
	}
}

// Feed kinds.
const (
	FeedMock      = "mock"
	FeedChainlink = "chainlink"
	FeedRedis     = "redis"
)
