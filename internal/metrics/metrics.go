// Package metrics exposes Prometheus counters and gauges for the
// indexer's ambient observability. Nothing else depends on it; it
// observes the core from outside.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/log"
)

// Metrics holds every counter/gauge/histogram this process emits, all
// registered against a private registry so a test can build one
// without colliding with another test's default-registry globals.
type Metrics struct {
	registry *prometheus.Registry

	IndexerTipHeight         prometheus.Gauge
	IndexerBlocksIndexed     prometheus.Counter
	IndexerReorgsTotal       prometheus.Counter
	IndexerUpdateDuration    prometheus.Histogram
	MempoolTxCount           prometheus.Gauge
	MempoolUpdateDuration    prometheus.Histogram
	DaemonRequestsTotal      *prometheus.CounterVec
	DaemonRequestErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal         *prometheus.CounterVec
	RPCConnectionsActive     prometheus.Gauge
	RESTRequestsTotal        *prometheus.CounterVec
}

// New builds a Metrics instance and registers every collector against
// its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	ns := "utxoindexd"

	m := &Metrics{
		registry: reg,
		IndexerTipHeight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "indexer", Name: "tip_height",
			Help: "Height of the most recently indexed block.",
		}),
		IndexerBlocksIndexed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "indexer", Name: "blocks_indexed_total",
			Help: "Total number of blocks folded into the index.",
		}),
		IndexerReorgsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "indexer", Name: "reorgs_total",
			Help: "Total number of chain reorganizations handled.",
		}),
		IndexerUpdateDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "indexer", Name: "update_duration_seconds",
			Help:    "Wall-clock time of each Indexer.Update call.",
			Buckets: prometheus.DefBuckets,
		}),
		MempoolTxCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "mempool", Name: "tx_count",
			Help: "Number of transactions currently mirrored from the daemon mempool.",
		}),
		MempoolUpdateDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "mempool", Name: "update_duration_seconds",
			Help:    "Wall-clock time of each Mempool.Update call.",
			Buckets: prometheus.DefBuckets,
		}),
		DaemonRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "daemon", Name: "requests_total",
			Help: "Total daemon JSON-RPC calls, by method.",
		}, []string{"method"}),
		DaemonRequestErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "daemon", Name: "request_errors_total",
			Help: "Total daemon JSON-RPC calls that returned an error, by method.",
		}, []string{"method"}),
		RPCRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "rpc", Name: "requests_total",
			Help: "Total JSON-RPC query requests served, by method.",
		}, []string{"method"}),
		RPCConnectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "rpc", Name: "connections_active",
			Help: "Number of currently open JSON-RPC connections.",
		}),
		RESTRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "rest", Name: "requests_total",
			Help: "Total REST façade requests served, by path.",
		}, []string{"path"}),
	}
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Server exposes a Metrics instance's registry over /metrics.
type Server struct {
	cfg    config.MetricsConfig
	m      *Metrics
	server *http.Server
	ln     net.Listener
}

// NewServer builds a metrics HTTP server for m.
func NewServer(cfg config.MetricsConfig, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &Server{
		cfg: cfg,
		m:   m,
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Metrics.Error().Err(err).Msg("metrics: serve failed")
		}
	}()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
