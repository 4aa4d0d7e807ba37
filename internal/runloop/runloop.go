// Package runloop ties Indexer.Update and Mempool.Update together on
// a timer, the only background activity this process runs once its
// collaborators are wired up.
//
// A context+cancel pair and a sync.WaitGroup gate Start/Stop, and each
// background goroutine selects on ctx.Done() against a time.Ticker
// rather than sleeping.
package runloop

import (
	"context"
	"sync"
	"time"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/indexer"
	"github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/metrics"
	"github.com/tapyrus-index/utxoindexd/internal/rpcserver"
)

// Loop drives the indexer and mempool forward on a timer and fans
// the resulting tip out to subscribed RPC clients.
type Loop struct {
	indexer *indexer.Indexer
	daemon  *daemon.Client
	mempool *mempool.Mempool
	rpc     *rpcserver.Server // may be nil if the RPC server is disabled
	metrics *metrics.Metrics  // may be nil if metrics are disabled

	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Loop. rpc and m may be nil when those collaborators
// are disabled; the loop skips notifying/observing them in that case.
func New(ix *indexer.Indexer, d *daemon.Client, pool *mempool.Mempool, rpc *rpcserver.Server, m *metrics.Metrics, cfg config.IndexerConfig) *Loop {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		indexer:  ix,
		daemon:   d,
		mempool:  pool,
		rpc:      rpc,
		metrics:  m,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs one synchronous update pass to establish an initial tip,
// then launches the background ticker goroutine.
func (l *Loop) Start() error {
	l.runOnce()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run()
	}()
	return nil
}

// Stop cancels the loop and waits for the background goroutine to
// return. It does not touch the RPC server, metrics listener, or any
// other collaborator; callers own their shutdown order.
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Loop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.runOnce()
		}
	}
}

func (l *Loop) runOnce() {
	start := time.Now()
	tip, err := l.indexer.Update()
	if l.metrics != nil {
		l.metrics.IndexerUpdateDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Indexer.Error().Err(err).Msg("indexer update failed")
	} else {
		if l.metrics != nil {
			if head, ok := l.indexer.Store.Headers.Tip(); ok {
				l.metrics.IndexerTipHeight.Set(float64(head.Height))
			}
		}
		log.Indexer.Debug().Str("tip", tip.String()).Msg("indexer update complete")
	}

	mempoolStart := time.Now()
	if err := l.mempool.Update(l.daemon); err != nil {
		log.Mempool.Error().Err(err).Msg("mempool update failed")
	}
	if l.metrics != nil {
		l.metrics.MempoolUpdateDuration.Observe(time.Since(mempoolStart).Seconds())
	}

	if l.rpc != nil {
		l.rpc.Notify()
	}
}
