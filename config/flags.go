package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the indexer daemon's command-line surface onto
// fs and binds each flag into v so that Load's viper.Unmarshal picks
// up flag overrides at the highest precedence.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("network", "", "network type: prod, test, or regtest")
	fs.String("datadir", "", "data directory path")
	fs.String("config", "", "config file path (default: <datadir>/utxoindexd.toml)")
	fs.Bool("light-mode", false, "omit raw transaction storage; fall back to daemon RPC for tx bodies")

	fs.String("daemon-url", "", "full-node daemon JSON-RPC endpoint")
	fs.String("daemon-user", "", "daemon RPC username (static-token auth)")
	fs.String("daemon-password", "", "daemon RPC password (static-token auth)")
	fs.String("daemon-cookie", "", "path to daemon RPC cookie file (cookie auth)")

	fs.Bool("rpc", true, "enable the line-delimited JSON-RPC listener")
	fs.String("rpc-addr", "", "RPC listen address")
	fs.Int("rpc-port", 0, "RPC listen port")
	fs.Bool("rpc-colored", true, "enable colored-coin (openassets.*) RPC methods")

	fs.Bool("rest", true, "enable the read-only REST façade")
	fs.String("rest-addr", "", "REST listen address")
	fs.Int("rest-port", 0, "REST listen port")

	fs.Bool("metrics", true, "enable the Prometheus metrics listener")
	fs.String("metrics-addr", "", "metrics listen address")
	fs.Int("metrics-port", 0, "metrics listen port")

	fs.Int("reorg-max-depth", 0, "maximum reorg depth the in-memory header list will unwind")

	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-file", "", "log file path (default: stdout only)")
	fs.Bool("log-json", false, "emit structured JSON logs")

	bindings := map[string]string{
		"network":          "network",
		"datadir":          "datadir",
		"config":           "config",
		"light-mode":       "light_mode",
		"daemon-url":       "daemon.url",
		"daemon-user":      "daemon.user",
		"daemon-password":  "daemon.password",
		"daemon-cookie":    "daemon.cookie_path",
		"rpc":              "rpc.enabled",
		"rpc-addr":         "rpc.addr",
		"rpc-port":         "rpc.port",
		"rpc-colored":      "rpc.enable_colored_methods",
		"rest":             "rest.enabled",
		"rest-addr":        "rest.addr",
		"rest-port":        "rest.port",
		"metrics":          "metrics.enabled",
		"metrics-addr":     "metrics.addr",
		"metrics-port":     "metrics.port",
		"reorg-max-depth":  "indexer.reorg_max_depth",
		"log-level":        "log.level",
		"log-file":         "log.file",
		"log-json":         "log.json",
	}
	for flagName, key := range bindings {
		_ = v.BindPFlag(key, fs.Lookup(flagName))
	}
}
