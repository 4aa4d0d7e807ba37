// Package restfacade is the read-only HTTP/JSON façade over the same
// query core the line-delimited JSON-RPC server exposes: one GET
// endpoint per query operation, no new semantics. It uses an
// http.NewServeMux and an http.Server with explicit timeouts, with a
// net.Listener bound ahead of Serve so Addr() works immediately after
// Start returns.
package restfacade

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/internal/store"
)

// Server serves the REST façade over HTTP.
type Server struct {
	cfg        config.RESTConfig
	chain      *chainquery.ChainQuery
	headers    *store.HeaderList
	mempool    *mempool.Mempool
	colors     *colorindex.ColorIndex
	daemon     *daemon.Client
	networkTag openassets.NetworkTag
	txsLimit   int

	logger zerolog.Logger
	server *http.Server
	ln     net.Listener
}

// New builds a Server sharing the same collaborators the JSON-RPC
// server is wired to.
func New(cfg config.RESTConfig, chain *chainquery.ChainQuery, headers *store.HeaderList, pool *mempool.Mempool, colors *colorindex.ColorIndex, d *daemon.Client, tag openassets.NetworkTag, txsLimit int) *Server {
	s := &Server{
		cfg:        cfg,
		chain:      chain,
		headers:    headers,
		mempool:    pool,
		colors:     colors,
		daemon:     d,
		networkTag: tag,
		txsLimit:   txsLimit,
		logger:     log.REST,
	}
	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /blocks/tip/height", s.tipHeight)
	mux.HandleFunc("GET /blocks/tip/hash", s.tipHash)
	mux.HandleFunc("GET /block-height/{height}", s.blockHeightToHash)
	mux.HandleFunc("GET /block/{hash}/header", s.blockHeader)
	mux.HandleFunc("GET /tx/{txid}", s.tx)
	mux.HandleFunc("GET /tx/{txid}/merkle-proof", s.txMerkleProof)
	mux.HandleFunc("GET /scripthash/{hash}", s.scripthashBalance)
	mux.HandleFunc("GET /scripthash/{hash}/txs", s.scripthashHistory)
	mux.HandleFunc("GET /scripthash/{hash}/utxo", s.scripthashUtxo)
	mux.HandleFunc("GET /fee-estimates", s.feeEstimates)
	mux.HandleFunc("GET /mempool/fee-histogram", s.mempoolFeeHistogram)
	mux.HandleFunc("GET /openassets/scripthash/{hash}/balance", s.openassetsBalance)
	mux.HandleFunc("GET /openassets/scripthash/{hash}/utxo", s.openassetsUtxo)
	mux.HandleFunc("GET /openassets/color/{color_id}/stats", s.colorStats)
	return mux
}

// Start binds the listener and begins serving in the background. It
// returns once the listener is bound, so callers can read Addr()
// immediately after.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("restfacade: listen %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("restfacade: serve failed")
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
