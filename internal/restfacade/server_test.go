package restfacade

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/indexer"
	"github.com/tapyrus-index/utxoindexd/internal/mempool"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

var testScript = []byte{0x76, 0xa9, 0x14, 0x44, 0x55, 0x66}

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

func buildTestServer(t *testing.T) *Server {
	t.Helper()
	tx := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 7000, Script: testScript}}}
	header := &wire.Header{Version: 1, Time: 1700000000}
	block := &wire.Block{Header: header, Txs: []*wire.Tx{tx}}

	fd := &fakeDaemon{block: block, hash: header.Hash().String()}
	daemonSrv := httptest.NewServer(http.HandlerFunc(fd.serve))
	t.Cleanup(daemonSrv.Close)

	d, err := daemon.NewFromConfig(config.DaemonConfig{URL: daemonSrv.URL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	ix := indexer.New(st, d, nil, config.IndexerConfig{})
	if _, err := ix.Update(); err != nil {
		t.Fatalf("indexer Update: %v", err)
	}

	chain := chainquery.New(st, d, config.ChainQueryConfig{})
	pool := mempool.New(chain, config.MempoolConfig{})
	colors := colorindex.New(chain, 0)

	cfg := config.RESTConfig{Addr: "127.0.0.1", Port: 0}
	return New(cfg, chain, st.Headers, pool, colors, d, openassets.NetworkTagDev, 1000)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func TestTipHeightAndHash(t *testing.T) {
	srv := buildTestServer(t)

	rec := get(t, srv, "/blocks/tip/height")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var height uint32
	if err := json.Unmarshal(rec.Body.Bytes(), &height); err != nil {
		t.Fatalf("decode height: %v", err)
	}
	if height != 0 {
		t.Fatalf("height = %d, want 0", height)
	}

	rec = get(t, srv, "/blocks/tip/hash")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScripthashBalance(t *testing.T) {
	srv := buildTestServer(t)
	scripthash := types.ScriptHash(testScript)

	rec := get(t, srv, "/scripthash/"+scripthash.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var balances []struct {
		Confirmed   int64 `json:"confirmed"`
		Unconfirmed int64 `json:"unconfirmed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &balances); err != nil {
		t.Fatalf("decode: %v, body=%s", err, rec.Body)
	}
	if len(balances) != 1 || balances[0].Confirmed != 7000 {
		t.Fatalf("balances = %#v", balances)
	}
}

func TestBlockHeightToHash_NotFound(t *testing.T) {
	srv := buildTestServer(t)
	rec := get(t, srv, "/block-height/999")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestColorStats_BadColorID(t *testing.T) {
	srv := buildTestServer(t)
	rec := get(t, srv, "/openassets/color/zz/stats")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
