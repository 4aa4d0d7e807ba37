package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.utxoindexd
//	macOS:   ~/Library/Application Support/utxoindexd
//	Windows: %APPDATA%\utxoindexd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".utxoindexd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "utxoindexd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "utxoindexd")
		}
		return filepath.Join(home, "AppData", "Roaming", "utxoindexd")
	default:
		return filepath.Join(home, ".utxoindexd")
	}
}

func defaultDaemonPort(network NetworkType) int {
	switch network {
	case Testnet:
		return 12381
	case Regtest:
		return 12391
	default:
		return 2377
	}
}

func defaultRPCPort(network NetworkType) int {
	switch network {
	case Testnet:
		return 60001
	case Regtest:
		return 60401
	default:
		return 50001
	}
}

// DefaultMainnet returns the default configuration for mainnet ("prod").
func DefaultMainnet() *Config {
	return defaultFor(Mainnet)
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	return defaultFor(Testnet)
}

// DefaultRegtest returns the default configuration for a local regtest daemon.
func DefaultRegtest() *Config {
	return defaultFor(Regtest)
}

func defaultFor(network NetworkType) *Config {
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Daemon: DaemonConfig{
			URL:     "http://127.0.0.1:" + itoa(defaultDaemonPort(network)),
			Timeout: 30 * time.Second,
		},
		RPC: RPCConfig{
			Enabled:              true,
			Addr:                 "0.0.0.0",
			Port:                 defaultRPCPort(network),
			EnableColoredMethods: true,
			Banner:               "utxoindexd",
		},
		REST: RESTConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    3000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    4224,
		},
		Indexer: IndexerConfig{
			ReorgMaxDepth: 1000,
			BlockWorkers:  runtimeNumCPU(),
			IOWorkers:     16,
			PollInterval:  5 * time.Second,
		},
		Mempool: MempoolConfig{
			BacklogRefreshInterval: 10 * time.Second,
			RecentCapacity:         10,
		},
		ChainQuery: ChainQueryConfig{
			UtxosLimit:             500_000,
			TxsLimit:               50_000,
			MinHistoryItemsToCache: 100,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
