// Package config handles application configuration for the indexer
// daemon: network selection, data directories, the daemon RPC
// connection, the exposed RPC/REST/metrics listeners, and tuning
// knobs for the indexer, mempool mirror and chain query cache.
package config

import (
	"path/filepath"
	"time"
)

// NetworkType identifies which tapyrus-family network the daemon being
// indexed belongs to. It only affects the open-assets issuance network
// tag and default ports; it never gates consensus validation, which is
// out of scope for this repository.
type NetworkType string

const (
	Mainnet NetworkType = "prod"
	Testnet NetworkType = "test"
	Regtest NetworkType = "regtest"
)

// Config holds all runtime configuration for the indexer daemon.
type Config struct {
	Network   NetworkType `mapstructure:"network"`
	DataDir   string      `mapstructure:"datadir"`
	LightMode bool        `mapstructure:"light_mode"`

	Daemon     DaemonConfig     `mapstructure:"daemon"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	REST       RESTConfig       `mapstructure:"rest"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Mempool    MempoolConfig    `mapstructure:"mempool"`
	ChainQuery ChainQueryConfig `mapstructure:"chainquery"`
	Log        LogConfig        `mapstructure:"log"`
}

// DaemonConfig describes how to reach the full-node daemon this
// indexer tails. Exactly one of (User+Password) or CookiePath should
// be set; CookiePath takes precedence when both are present.
type DaemonConfig struct {
	URL        string        `mapstructure:"url"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	CookiePath string        `mapstructure:"cookie_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RPCConfig controls the line-delimited JSON-RPC listener.
type RPCConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	Addr                 string `mapstructure:"addr"`
	Port                 int    `mapstructure:"port"`
	EnableColoredMethods bool   `mapstructure:"enable_colored_methods"`
	Banner               string `mapstructure:"banner"`
}

// RESTConfig controls the read-only HTTP façade collaborator.
type RESTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Port    int    `mapstructure:"port"`
}

// MetricsConfig controls the Prometheus exposition listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Port    int    `mapstructure:"port"`
}

// IndexerConfig tunes the two-phase ingestion pipeline.
type IndexerConfig struct {
	ReorgMaxDepth int           `mapstructure:"reorg_max_depth"`
	BlockWorkers  int           `mapstructure:"block_workers"`
	IOWorkers     int           `mapstructure:"io_workers"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// MempoolConfig tunes the in-memory mempool mirror.
type MempoolConfig struct {
	BacklogRefreshInterval time.Duration `mapstructure:"backlog_refresh_interval"`
	RecentCapacity         int           `mapstructure:"recent_capacity"`
}

// ChainQueryConfig tunes the read-side cache and TooPopular limits.
type ChainQueryConfig struct {
	UtxosLimit             int `mapstructure:"utxos_limit"`
	TxsLimit               int `mapstructure:"txs_limit"`
	MinHistoryItemsToCache int `mapstructure:"min_history_items_to_cache"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// TxStoreDir returns the txstore database directory.
func (c *Config) TxStoreDir() string {
	return filepath.Join(c.ChainDataDir(), "txstore")
}

// HistoryDir returns the history database directory.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.ChainDataDir(), "history")
}

// CacheDir returns the cache database directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.ChainDataDir(), "cache")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the default config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "utxoindexd.toml")
}
