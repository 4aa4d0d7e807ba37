package config

import "fmt"

// Validate checks the loaded config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.Daemon.URL == "" {
		return fmt.Errorf("daemon.url must be set")
	}
	if cfg.Daemon.CookiePath == "" && (cfg.Daemon.User == "" || cfg.Daemon.Password == "") {
		return fmt.Errorf("daemon auth requires either cookie_path or both user and password")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.REST.Port < 0 || cfg.REST.Port > 65535 {
		return fmt.Errorf("rest.port must be in range [0, 65535]")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be in range [0, 65535]")
	}
	if cfg.Indexer.ReorgMaxDepth <= 0 {
		return fmt.Errorf("indexer.reorg_max_depth must be positive")
	}
	if cfg.ChainQuery.UtxosLimit <= 0 || cfg.ChainQuery.TxsLimit <= 0 {
		return fmt.Errorf("chainquery utxos_limit and txs_limit must be positive")
	}
	if cfg.ChainQuery.MinHistoryItemsToCache < 0 {
		return fmt.Errorf("chainquery.min_history_items_to_cache must be non-negative")
	}
	return nil
}
