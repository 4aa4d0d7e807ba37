// Command indexerd is the indexer daemon binary: it wires the
// Store/Fetcher/Indexer/ChainQuery/Mempool/ColorIndex core to the
// JSON-RPC, REST and metrics listeners and runs them until signaled
// to stop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tapyrus-index/utxoindexd/config"
)

var buildVersion = "dev"

func main() {
	v := viper.New()

	root := &cobra.Command{
		Use:   "indexerd",
		Short: "Tapyrus-style UTXO indexer and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runDaemon(cfg)
		},
	}
	config.BindFlags(root.PersistentFlags(), v)

	root.AddCommand(versionCmd())
	root.AddCommand(checkConfigCmd(v))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the indexerd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("indexerd " + buildVersion)
			return nil
		},
	}
}

func checkConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load configuration and report whether it validates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: network=%s datadir=%s daemon=%s rpc=%s:%d rest=%s:%d metrics=%s:%d\n",
				cfg.Network, cfg.DataDir, cfg.Daemon.URL,
				cfg.RPC.Addr, cfg.RPC.Port, cfg.REST.Addr, cfg.REST.Port, cfg.Metrics.Addr, cfg.Metrics.Port)
			return nil
		},
	}
}

// loadConfig decodes v (populated by BindFlags plus whatever flags
// the user actually passed) into a Config, defaulting to mainnet when
// --network was never set.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	net := config.NetworkType(v.GetString("network"))
	if net == "" {
		net = config.Mainnet
	}
	return config.Load(v, net)
}
