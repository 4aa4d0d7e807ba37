package indexer

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// scriptA/scriptB are two distinct uncolored P2PKH-shaped scripts,
// used only to exercise scripthash derivation; their exact bytes have
// no meaning here.
var (
	scriptA = []byte{0x76, 0xa9, 0x14, 0x01, 0x02, 0x03}
	scriptB = []byte{0x76, 0xa9, 0x14, 0x04, 0x05, 0x06}
)

func buildChain(t *testing.T) (genesis, next *wire.Block) {
	t.Helper()
	tx1 := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 5000, Script: scriptA}}}
	h1 := &wire.Header{Version: 1, Time: 1700000000}
	genesis = &wire.Block{Header: h1, Txs: []*wire.Tx{tx1}}

	tx1id := tx1.TxID()
	tx2 := &wire.Tx{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: types.Outpoint{TxID: tx1id, Index: 0}, Sequence: 0xffffffff}},
		Outputs: []wire.TxOut{{Value: 4900, Script: scriptB}},
	}
	h2 := &wire.Header{Version: 1, PrevBlock: h1.Hash(), Time: 1700000600}
	next = &wire.Block{Header: h2, Txs: []*wire.Tx{tx2}}
	return genesis, next
}

type fakeDaemonServer struct {
	blocksByHash map[string]*wire.Block
	tipHash      string
}

func newFakeDaemon(t *testing.T, genesis, next *wire.Block) *httptest.Server {
	t.Helper()
	fd := &fakeDaemonServer{blocksByHash: map[string]*wire.Block{
		genesis.Header.Hash().String(): genesis,
		next.Header.Hash().String():    next,
	}, tipHash: next.Header.Hash().String()}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
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
	}))
}

func (fd *fakeDaemonServer) handle(method string, params []json.RawMessage) (interface{}, string) {
	switch method {
	case "getbestblockhash":
		return fd.tipHash, ""
	case "getblockheader":
		var hash string
		var verbose bool
		json.Unmarshal(params[0], &hash)
		if len(params) > 1 {
			json.Unmarshal(params[1], &verbose)
		}
		blk, ok := fd.blocksByHash[hash]
		if !ok {
			return nil, "block not found"
		}
		if !verbose {
			return hex.EncodeToString(blk.Header.Serialize()), ""
		}
		prev := ""
		if !blk.Header.PrevBlock.IsZero() {
			prev = blk.Header.PrevBlock.String()
		}
		return map[string]interface{}{
			"hash":              hash,
			"previousblockhash": prev,
			"height":            fd.heightOf(hash),
			"time":              blk.Header.Time,
			"mediantime":        blk.Header.Time,
		}, ""
	case "getblock":
		var hash string
		json.Unmarshal(params[0], &hash)
		blk, ok := fd.blocksByHash[hash]
		if !ok {
			return nil, "block not found"
		}
		raw := blk.Header.Serialize()
		raw = append(raw, 0x01) // 1 tx
		raw = append(raw, blk.Txs[0].Serialize()...)
		return hex.EncodeToString(raw), ""
	default:
		return nil, "method not found: " + method
	}
}

func (fd *fakeDaemonServer) heightOf(hash string) uint32 {
	if hash == fd.tipHash {
		return 1
	}
	return 0
}

func newTestIndexer(t *testing.T, srvURL string) *Indexer {
	t.Helper()
	client, err := daemon.NewFromConfig(config.DaemonConfig{URL: srvURL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	return New(st, client, nil, config.IndexerConfig{})
}

func TestIndexer_Update_AddsAndIndexesTwoBlocks(t *testing.T) {
	genesis, next := buildChain(t)
	srv := newFakeDaemon(t, genesis, next)
	defer srv.Close()

	ix := newTestIndexer(t, srv.URL)
	tip, err := ix.Update()
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if tip != next.Header.Hash() {
		t.Fatalf("tip = %s, want %s", tip, next.Header.Hash())
	}

	added, err := ix.Store.AddedBlockhashes()
	if err != nil {
		t.Fatalf("AddedBlockhashes: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added blocks = %d, want 2", len(added))
	}
	indexed, err := ix.Store.IndexedBlockhashes()
	if err != nil {
		t.Fatalf("IndexedBlockhashes: %v", err)
	}
	if len(indexed) != 2 {
		t.Fatalf("indexed blocks = %d, want 2", len(indexed))
	}

	scripthashA := types.ScriptHash(scriptA)
	var fundingSeen, spendingSeen bool
	err = ix.Store.History.ScanPrefix(store.HistoryKeyPrefix(scripthashA[:]), func(key, _ []byte) error {
		info, decErr := store.DecodeHistoryInfo(key[1+types.HashSize+4:])
		if decErr != nil {
			return decErr
		}
		switch info.Kind {
		case store.HistoryKindFunding:
			fundingSeen = true
		case store.HistoryKindSpending:
			spendingSeen = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan history: %v", err)
	}
	if !fundingSeen || !spendingSeen {
		t.Fatalf("expected both funding and spending history rows for scripthash A, got funding=%v spending=%v", fundingSeen, spendingSeen)
	}

	tx1id := genesis.Txs[0].TxID()
	var spendEdgeSeen bool
	err = ix.Store.History.ScanPrefix(store.SpendEdgeKeyPrefix(tx1id[:], 0), func(key, _ []byte) error {
		spendEdgeSeen = true
		return nil
	})
	if err != nil {
		t.Fatalf("scan spend edges: %v", err)
	}
	if !spendEdgeSeen {
		t.Fatal("expected a spend-edge row for the genesis output")
	}
}

func TestIndexer_Update_NoOpWhenAlreadyAtTip(t *testing.T) {
	genesis, next := buildChain(t)
	srv := newFakeDaemon(t, genesis, next)
	defer srv.Close()

	ix := newTestIndexer(t, srv.URL)
	tip1, err := ix.Update()
	if err != nil {
		t.Fatalf("first Update: %v", err)
	}
	tip2, err := ix.Update()
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if tip1 != tip2 {
		t.Fatalf("tip changed on no-op update: %s != %s", tip1, tip2)
	}
}
