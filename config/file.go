package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Load reads configuration from, in ascending precedence: built-in
// defaults, a TOML config file, environment variables prefixed
// UTXOINDEXD_, and finally any flags already bound onto v by the
// caller (see BindFlags in flags.go).
func Load(v *viper.Viper, network NetworkType) (*Config, error) {
	cfg := Default(network)

	v.SetEnvPrefix("UTXOINDEXD")
	v.AutomaticEnv()

	dataDir := v.GetString("datadir")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	cfg.DataDir = dataDir

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := v.GetString("config")
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.TxStoreDir(),
		cfg.HistoryDir(),
		cfg.CacheDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}

// WriteDefaultConfig writes a starter TOML config file commented with
// the available keys.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# utxoindexd configuration
#
# All values below may also be set via UTXOINDEXD_<SECTION>_<KEY>
# environment variables or command-line flags; flags win, then env,
# then this file, then the built-in defaults.

network = "` + string(network) + `"
# datadir = "~/.utxoindexd"
light_mode = false

[daemon]
url = "http://127.0.0.1:2377"
# user = ""
# password = ""
# cookie_path = "~/.tapyrus/prod/.cookie"
timeout = "30s"

[rpc]
enabled = true
addr = "0.0.0.0"
port = 50001
enable_colored_methods = true
banner = "utxoindexd"

[rest]
enabled = true
addr = "127.0.0.1"
port = 3000

[metrics]
enabled = true
addr = "127.0.0.1"
port = 4224

[indexer]
reorg_max_depth = 1000
poll_interval = "5s"

[mempool]
backlog_refresh_interval = "10s"
recent_capacity = 10

[chainquery]
utxos_limit = 500000
txs_limit = 50000
min_history_items_to_cache = 100

[log]
level = "info"
# file = ""
json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
