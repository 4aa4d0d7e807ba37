package chainquery

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/indexer"
	"github.com/tapyrus-index/utxoindexd/internal/merkle"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

var (
	scriptA = []byte{0x76, 0xa9, 0x14, 0x11, 0x22, 0x33}
	scriptB = []byte{0x76, 0xa9, 0x14, 0x44, 0x55, 0x66}
)

// buildIndexedStore builds a two-block chain (tx1 funds scriptA with
// 5000, tx2 spends tx1:0 and funds scriptB with 4900), runs it through
// a real Indexer against a fake daemon, and returns the resulting
// Store plus the daemon Client so ChainQuery can be exercised exactly
// as it would be against a live system.
func buildIndexedStore(t *testing.T) (*store.Store, *daemon.Client, *wire.Block, *wire.Block) {
	t.Helper()
	tx1 := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 5000, Script: scriptA}}}
	h1 := &wire.Header{Version: 1, Time: 1700000000}
	genesis := &wire.Block{Header: h1, Txs: []*wire.Tx{tx1}}

	tx1id := tx1.TxID()
	tx2 := &wire.Tx{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: types.Outpoint{TxID: tx1id, Index: 0}, Sequence: 0xffffffff}},
		Outputs: []wire.TxOut{{Value: 4900, Script: scriptB}},
	}
	h2 := &wire.Header{Version: 1, PrevBlock: h1.Hash(), Time: 1700000600}
	next := &wire.Block{Header: h2, Txs: []*wire.Tx{tx2}}

	fd := &fakeDaemon{blocksByHash: map[string]*wire.Block{
		genesis.Header.Hash().String(): genesis,
		next.Header.Hash().String():    next,
	}, tipHash: next.Header.Hash().String()}
	srv := httptest.NewServer(http.HandlerFunc(fd.serve))
	t.Cleanup(srv.Close)

	client, err := daemon.NewFromConfig(config.DaemonConfig{URL: srv.URL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	ix := indexer.New(st, client, nil, config.IndexerConfig{})
	if _, err := ix.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return st, client, genesis, next
}

type fakeDaemon struct {
	blocksByHash map[string]*wire.Block
	tipHash      string
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
			"hash": hash, "previousblockhash": prev,
			"height": fd.heightOf(hash), "time": blk.Header.Time, "mediantime": blk.Header.Time,
		}, ""
	case "getblock":
		var hash string
		json.Unmarshal(params[0], &hash)
		blk, ok := fd.blocksByHash[hash]
		if !ok {
			return nil, "block not found"
		}
		raw := blk.Header.Serialize()
		raw = append(raw, 0x01)
		raw = append(raw, blk.Txs[0].Serialize()...)
		return hex.EncodeToString(raw), ""
	default:
		return nil, "method not found: " + method
	}
}

func (fd *fakeDaemon) heightOf(hash string) uint32 {
	if hash == fd.tipHash {
		return 1
	}
	return 0
}

func TestHistoryTxids_ReturnsBothTxidsInOrder(t *testing.T) {
	st, d, genesis, next := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	sh := types.ScriptHash(scriptA)
	txids, err := q.HistoryTxids(sh, 10)
	if err != nil {
		t.Fatalf("HistoryTxids: %v", err)
	}
	if len(txids) != 2 {
		t.Fatalf("len(txids) = %d, want 2", len(txids))
	}
	if txids[0] != genesis.Txs[0].TxID() || txids[1] != next.Txs[0].TxID() {
		t.Fatalf("unexpected order: %v", txids)
	}
}

func TestHistory_DescendingOrderAndResume(t *testing.T) {
	st, d, genesis, next := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	sh := types.ScriptHash(scriptA)
	entries, err := q.History(sh, nil, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Tx.TxID() != next.Txs[0].TxID() {
		t.Fatalf("expected most recent tx first, got %s", entries[0].Tx.TxID())
	}
	if entries[1].Tx.TxID() != genesis.Txs[0].TxID() {
		t.Fatalf("expected genesis tx second, got %s", entries[1].Tx.TxID())
	}

	lastSeen := entries[0].Tx.TxID()
	resumed, err := q.History(sh, &lastSeen, 10)
	if err != nil {
		t.Fatalf("History (resumed): %v", err)
	}
	if len(resumed) != 1 || resumed[0].Tx.TxID() != genesis.Txs[0].TxID() {
		t.Fatalf("expected only the genesis tx after resuming past %s, got %d entries", lastSeen, len(resumed))
	}
}

func TestUtxo_FoldsFundingAndSpending(t *testing.T) {
	st, d, _, next := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	utxosA, err := q.Utxo(types.ScriptHash(scriptA))
	require.NoError(t, err)
	require.Empty(t, utxosA, "scriptA's only output was spent")

	utxosB, err := q.Utxo(types.ScriptHash(scriptB))
	require.NoError(t, err)
	require.Len(t, utxosB, 1)
	require.Equal(t, Utxo{
		Outpoint:  types.Outpoint{TxID: next.Txs[0].TxID(), Index: 0},
		ColorID:   types.DefaultColorID,
		Value:     4900,
		Confirmed: BlockID{Height: 1, Hash: next.Header.Hash()},
	}, utxosB[0])
}

func TestStats_CountsFundingAndSpending(t *testing.T) {
	st, d, _, _ := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	stats, err := q.Stats(types.ScriptHash(scriptA))
	require.NoError(t, err)
	require.Equal(t, ScriptStats{
		TxCount:        2,
		FundedTxoCount: 1,
		SpentTxoCount:  1,
		FundedTxoSum:   5000,
		SpentTxoSum:    5000,
	}, stats[types.DefaultColorID])
}

func TestLookupSpend_FindsSpendingInput(t *testing.T) {
	st, d, genesis, next := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	spend, err := q.LookupSpend(types.Outpoint{TxID: genesis.Txs[0].TxID(), Index: 0})
	require.NoError(t, err)
	require.NotNil(t, spend)
	require.Equal(t, next.Txs[0].TxID(), spend.Txid)
	require.Equal(t, uint32(0), spend.Vin)
}

func TestLookupSpend_NoneForUnspentOutput(t *testing.T) {
	st, d, _, next := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	spend, err := q.LookupSpend(types.Outpoint{TxID: next.Txs[0].TxID(), Index: 0})
	if err != nil {
		t.Fatalf("LookupSpend: %v", err)
	}
	if spend != nil {
		t.Fatalf("expected no spend, got %+v", spend)
	}
}

func TestGetBlockRaw_RoundTripsThroughWireDecode(t *testing.T) {
	st, d, genesis, _ := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	raw, err := q.GetBlockRaw(genesis.Header.Hash())
	if err != nil {
		t.Fatalf("GetBlockRaw: %v", err)
	}
	decoded, err := wire.DecodeBlock(raw)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if len(decoded.Txs) != 1 || decoded.Txs[0].TxID() != genesis.Txs[0].TxID() {
		t.Fatalf("unexpected decoded block: %+v", decoded)
	}
}

func TestGetMerkleblockProof_VerifiesAgainstHeader(t *testing.T) {
	st, d, genesis, _ := buildIndexedStore(t)
	q := New(st, d, config.ChainQueryConfig{})

	proof, err := q.GetMerkleblockProof(genesis.Txs[0].TxID())
	if err != nil {
		t.Fatalf("GetMerkleblockProof: %v", err)
	}
	if !merkle.Verify(genesis.Txs[0].TxID(), proof) {
		t.Fatal("proof failed to verify")
	}
}
