// Package rpcserver implements the line-delimited JSON-RPC 2.0 query
// server: a raw TCP listener, one reader and one handler goroutine per
// connection, method dispatch over ChainQuery/Mempool/ColorIndex/
// openassets, and header/scripthash subscriptions with a periodic
// update fan-out. Each connection reads requests into a bounded
// channel (capacity 10) that the handler goroutine drains in order.
package rpcserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/internal/store"
)

const (
	agentName       = "utxoindexd"
	protocolVersion = "1.4"
)

// tlsClientHelloPrefix is the first three bytes of a TLS ClientHello
// record (content type 0x16, version 0x03 0x01): a naive but cheap
// way to reject a client that mistakenly connected with TLS.
var tlsClientHelloPrefix = []byte{0x16, 0x03, 0x01}

// Server accepts TCP connections and serves the JSON-RPC surface over
// each one. All state it exposes to handlers is read-mostly or itself
// concurrency-safe (ChainQuery, store.HeaderList, Mempool, ColorIndex).
type Server struct {
	cfg        config.RPCConfig
	chain      *chainquery.ChainQuery
	headers    *store.HeaderList
	mempool    *mempool.Mempool
	colors     *colorindex.ColorIndex
	daemon     *daemon.Client
	networkTag openassets.NetworkTag
	txsLimit   int

	mu    sync.Mutex
	ln    net.Listener
	conns map[*connection]struct{}
}

// New builds a Server. txsLimit bounds the scripthash history that
// get_history and scripthash.subscribe read; listunspent is bounded by
// ChainQuery's own UTXO limit instead.
func New(cfg config.RPCConfig, chain *chainquery.ChainQuery, headers *store.HeaderList, pool *mempool.Mempool, colors *colorindex.ColorIndex, d *daemon.Client, tag openassets.NetworkTag, txsLimit int) *Server {
	return &Server{
		cfg:        cfg,
		chain:      chain,
		headers:    headers,
		mempool:    pool,
		colors:     colors,
		daemon:     d,
		networkTag: tag,
		txsLimit:   txsLimit,
		conns:      make(map[*connection]struct{}),
	}
}

// Start binds the listener and runs the accept loop until ctx is
// canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpcserver: listen %s: %w", addr, err)
	}
	s.ln = ln

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.RPC.Warn().Err(err).Msg("rpcserver: accept failed")
			continue
		}
		c := newConnection(s, conn)
		s.register(c)
		go func() {
			c.run()
			s.unregister(c)
		}()
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return err
}

// Notify wakes every connected client's handler to recompute its
// subscriptions.
func (s *Server) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.tryNotify()
	}
}

func (s *Server) register(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) unregister(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// message is one item flowing over a connection's channel: either an
// unparsed request line from the reader goroutine, a periodic-update
// wakeup, or a shutdown signal.
type message interface{}

type requestLine struct{ line string }
type periodicUpdate struct{}
type done struct{}

// connection holds one client's transport and subscription state.
type connection struct {
	srv    *Server
	conn   net.Conn
	remote string
	ch     chan message

	mu         sync.Mutex
	headerSub  bool
	lastHeight int64
	scriptSubs map[string]*string // scripthash hex -> last status hash hex (nil pointer means null)
}

func newConnection(srv *Server, conn net.Conn) *connection {
	return &connection{
		srv:        srv,
		conn:       conn,
		remote:     conn.RemoteAddr().String(),
		ch:         make(chan message, 10),
		scriptSubs: make(map[string]*string),
		lastHeight: -1,
	}
}

func (c *connection) run() {
	go c.readLoop()
	c.handleLoop()
	_ = c.conn.Close()
}

func (c *connection) close() {
	select {
	case c.ch <- done{}:
	default:
	}
}

// tryNotify is the non-blocking send fan-out uses: a slow or
// disconnected client never blocks the broadcast.
func (c *connection) tryNotify() {
	select {
	case c.ch <- periodicUpdate{}:
	default:
	}
}

func (c *connection) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		peek, err := reader.Peek(len(tlsClientHelloPrefix))
		if err == nil && bytes.Equal(peek, tlsClientHelloPrefix) {
			c.ch <- done{}
			return
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			c.ch <- done{}
			return
		}
		c.ch <- requestLine{line: line}
	}
}

func (c *connection) handleLoop() {
	for msg := range c.ch {
		switch m := msg.(type) {
		case requestLine:
			c.handleLine(m.line)
		case periodicUpdate:
			for _, n := range c.updateSubscriptions() {
				c.writeValue(n)
			}
		case done:
			return
		}
	}
}

func (c *connection) handleLine(line string) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		c.writeValue(Response{JSONRPC: "2.0", Error: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	result, err := c.dispatch(req.Method, req.Params)
	if err != nil {
		c.writeValue(Response{JSONRPC: "2.0", ID: req.ID, Error: err.Error()})
		return
	}
	c.writeValue(Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (c *connection) writeValue(v interface{}) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	encoded = append(encoded, '\n')
	_, _ = c.conn.Write(encoded)
}
