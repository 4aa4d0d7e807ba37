package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/indexer"
	klog "github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/metrics"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/internal/restfacade"
	"github.com/tapyrus-index/utxoindexd/internal/rpcserver"
	"github.com/tapyrus-index/utxoindexd/internal/runloop"
	"github.com/tapyrus-index/utxoindexd/internal/store"
)

// runDaemon opens storage, wires every collaborator together, starts
// the listeners and run loop, and blocks until SIGINT/SIGTERM, tearing
// everything down in reverse dependency order.
func runDaemon(cfg *config.Config) error {
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := klog.WithComponent("main")
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("starting utxoindexd")

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	d, err := daemon.NewFromConfig(cfg.Daemon)
	if err != nil {
		return fmt.Errorf("build daemon client: %w", err)
	}

	ix := indexer.New(st, d, nil, cfg.Indexer)
	chain := chainquery.New(st, d, cfg.ChainQuery)
	pool := mempool.New(chain, cfg.Mempool)
	colors := colorindex.New(chain, cfg.ChainQuery.MinHistoryItemsToCache)

	tag := openassets.NetworkTagDev
	if cfg.Network == config.Mainnet {
		tag = openassets.NetworkTagProd
	}

	var rpcSrv *rpcserver.Server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.RPC.Enabled {
		rpcSrv = rpcserver.New(cfg.RPC, chain, st.Headers, pool, colors, d, tag, cfg.ChainQuery.TxsLimit)
		if err := rpcSrv.Start(ctx); err != nil {
			return fmt.Errorf("start rpc server: %w", err)
		}
		logger.Info().Str("addr", rpcSrv.Addr()).Msg("rpc listener started")
	}

	var restSrv *restfacade.Server
	if cfg.REST.Enabled {
		restSrv = restfacade.New(cfg.REST, chain, st.Headers, pool, colors, d, tag, cfg.ChainQuery.TxsLimit)
		if err := restSrv.Start(); err != nil {
			return fmt.Errorf("start rest facade: %w", err)
		}
		logger.Info().Str("addr", restSrv.Addr()).Msg("rest facade started")
	}

	var m *metrics.Metrics
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsSrv = metrics.NewServer(cfg.Metrics, m)
		if err := metricsSrv.Start(); err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
		logger.Info().Str("addr", metricsSrv.Addr()).Msg("metrics listener started")
	}

	loop := runloop.New(ix, d, pool, rpcSrv, m, cfg.Indexer)
	if err := loop.Start(); err != nil {
		return fmt.Errorf("start run loop: %w", err)
	}
	logger.Info().Msg("utxoindexd started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	loop.Stop()
	if rpcSrv != nil {
		if err := rpcSrv.Stop(); err != nil {
			logger.Warn().Err(err).Msg("rpc server stop")
		}
	}
	cancel()
	if restSrv != nil {
		if err := restSrv.Stop(); err != nil {
			logger.Warn().Err(err).Msg("rest facade stop")
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(); err != nil {
			logger.Warn().Err(err).Msg("metrics listener stop")
		}
	}

	logger.Info().Msg("goodbye")
	return nil
}
