package runloop

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/indexer"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/metrics"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/internal/rpcserver"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

type fakeDaemon struct {
	block *wire.Block
	hash  string
}

func (fd *fakeDaemon) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     int               `json:"id"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	result, errMsg := fd.handle(req.Method, req.Params)
	type rpcErrBody struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	resp := struct {
		JSONRPC string      `json:"jsonrpc"`
		ID      int         `json:"id"`
		Result  interface{} `json:"result,omitempty"`
		Error   *rpcErrBody `json:"error,omitempty"`
	}{JSONRPC: "2.0", ID: req.ID, Result: result}
	if errMsg != "" {
		resp.Error = &rpcErrBody{Code: -1, Message: errMsg}
	}
	json.NewEncoder(w).Encode(resp)
}

func (fd *fakeDaemon) handle(method string, params []json.RawMessage) (interface{}, string) {
	switch method {
	case "getbestblockhash":
		return fd.hash, ""
	case "getblockheader":
		var args []interface{}
		json.Unmarshal(mustMarshal(params), &args)
		verbose, _ := args[1].(bool)
		if verbose {
			return map[string]interface{}{
				"hash": fd.hash, "previousblockhash": "", "height": 0,
				"time": fd.block.Header.Time, "mediantime": fd.block.Header.Time, "confirmations": 1,
			}, ""
		}
		return hexEncode(fd.block.Header.Serialize()), ""
	case "getblock":
		var args []interface{}
		json.Unmarshal(mustMarshal(params), &args)
		verbosity := int(args[1].(float64))
		if verbosity == 0 {
			return hexEncode(serializeBlock(fd.block)), ""
		}
		txids := make([]string, len(fd.block.Txs))
		for i, tx := range fd.block.Txs {
			txids[i] = tx.TxID().String()
		}
		return map[string]interface{}{"tx": txids}, ""
	case "getrawmempool":
		return []string{}, ""
	case "estimatesmartfee":
		return map[string]interface{}{"feerate": 0.0001}, ""
	case "getnetworkinfo":
		return map[string]interface{}{"relayfee": 0.00001}, ""
	}
	return nil, "unsupported method " + method
}

func mustMarshal(params []json.RawMessage) []byte {
	out, _ := json.Marshal(params)
	return out
}

func serializeBlock(b *wire.Block) []byte {
	buf := append([]byte{}, b.Header.Serialize()...)
	buf = append(buf, encodeVarInt(uint64(len(b.Txs)))...)
	for _, tx := range b.Txs {
		buf = append(buf, tx.Serialize()...)
	}
	return buf
}

func encodeVarInt(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		return []byte{0xfd, byte(n), byte(n >> 8)}
	default:
		return []byte{0xfe, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestLoop_StartRunsInitialUpdateAndStopReturns(t *testing.T) {
	tx := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 5000, Script: []byte{0x51}}}}
	header := &wire.Header{Version: 1, Time: 1700000000}
	block := &wire.Block{Header: header, Txs: []*wire.Tx{tx}}

	fd := &fakeDaemon{block: block, hash: header.Hash().String()}
	daemonSrv := httptest.NewServer(http.HandlerFunc(fd.serve))
	defer daemonSrv.Close()

	d, err := daemon.NewFromConfig(config.DaemonConfig{URL: daemonSrv.URL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	ix := indexer.New(st, d, nil, config.IndexerConfig{})

	chain := chainquery.New(st, d, config.ChainQueryConfig{})
	pool := mempool.New(chain, config.MempoolConfig{})
	colors := colorindex.New(chain, 0)
	rpc := rpcserver.New(config.RPCConfig{Addr: "127.0.0.1", Port: 0}, chain, st.Headers, pool, colors, d, openassets.NetworkTagDev, 1000)
	m := metrics.New()

	loop := New(ix, d, pool, rpc, m, config.IndexerConfig{PollInterval: 20 * time.Millisecond})
	if err := loop.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	head, ok := st.Headers.Tip()
	if !ok || head.Height != 0 {
		t.Fatalf("expected tip at height 0 after initial update, got %#v ok=%v", head, ok)
	}

	time.Sleep(50 * time.Millisecond)
	loop.Stop()
}

func TestLoop_NilCollaboratorsAreSkipped(t *testing.T) {
	tx := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 5000, Script: []byte{0x51}}}}
	header := &wire.Header{Version: 1, Time: 1700000000}
	block := &wire.Block{Header: header, Txs: []*wire.Tx{tx}}

	fd := &fakeDaemon{block: block, hash: header.Hash().String()}
	daemonSrv := httptest.NewServer(http.HandlerFunc(fd.serve))
	defer daemonSrv.Close()

	d, err := daemon.NewFromConfig(config.DaemonConfig{URL: daemonSrv.URL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	ix := indexer.New(st, d, nil, config.IndexerConfig{})
	chain := chainquery.New(st, d, config.ChainQueryConfig{})
	pool := mempool.New(chain, config.MempoolConfig{})

	loop := New(ix, d, pool, nil, nil, config.IndexerConfig{PollInterval: time.Hour})
	if err := loop.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	loop.Stop()
}
