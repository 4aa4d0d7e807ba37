package mempool

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/colorscript"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

var fundedScript = []byte{0x76, 0xa9, 0x14, 0xaa, 0xbb, 0xcc}
var changeScript = []byte{0x76, 0xa9, 0x14, 0xdd, 0xee, 0xff}

// fakeMempoolDaemon serves getrawmempool/getrawtransaction from a
// fixed set of pending transactions.
type fakeMempoolDaemon struct {
	pending map[string]*wire.Tx // txid hex -> tx
}

func (fd *fakeMempoolDaemon) serve(w http.ResponseWriter, r *http.Request) {
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

func (fd *fakeMempoolDaemon) handle(method string, params []json.RawMessage) (interface{}, string) {
	switch method {
	case "getrawmempool":
		ids := make([]string, 0, len(fd.pending))
		for id := range fd.pending {
			ids = append(ids, id)
		}
		return ids, ""
	case "getrawtransaction":
		var txid string
		json.Unmarshal(params[0], &txid)
		tx, ok := fd.pending[txid]
		if !ok {
			return nil, "tx not found"
		}
		return hex.EncodeToString(tx.Serialize()), ""
	default:
		return nil, "method not found: " + method
	}
}

func newTestMempool(t *testing.T, fd *fakeMempoolDaemon) (*Mempool, *daemon.Client, *chainquery.ChainQuery) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(fd.serve))
	t.Cleanup(srv.Close)
	client, err := daemon.NewFromConfig(config.DaemonConfig{URL: srv.URL, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	st := store.NewInMemory(false)
	q := chainquery.New(st, client, config.ChainQueryConfig{})
	m := New(q, config.MempoolConfig{RecentCapacity: 10, BacklogRefreshInterval: 10 * time.Second})
	return m, client, q
}

// putConfirmedOutput seeds a confirmed `O|txid|vout` row directly,
// simulating an output that was mined before this test's mempool
// transaction arrived.
func putConfirmedOutput(t *testing.T, st *store.Store, outpoint types.Outpoint, out wire.TxOut) {
	t.Helper()
	row := store.TxOutRow{Value: out.Value, Script: out.Script}
	if err := st.TxStore.Put(store.OutputKey(outpoint.TxID[:], uint16(outpoint.Index)), row.Encode(), false); err != nil {
		t.Fatalf("seed confirmed output: %v", err)
	}
}

func TestUpdate_AddsNewMempoolTransaction(t *testing.T) {
	fundingTxid := types.Hash{0x01}
	fundingOutpoint := types.Outpoint{TxID: fundingTxid, Index: 0}
	fundingOutput := wire.TxOut{Value: 10000, Script: fundedScript}

	spendTx := &wire.Tx{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: fundingOutpoint, Sequence: 0xffffffff}},
		Outputs: []wire.TxOut{{Value: 9500, Script: changeScript}},
	}
	spendTxid := spendTx.TxID()

	fd := &fakeMempoolDaemon{pending: map[string]*wire.Tx{spendTxid.String(): spendTx}}
	m, d, q := newTestMempool(t, fd)
	putConfirmedOutput(t, q.Store, fundingOutpoint, fundingOutput)

	if err := m.Update(d); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, ok := m.LookupTx(spendTxid); !ok {
		t.Fatal("expected spend tx to be indexed")
	}
	if fee, ok := m.GetTxFee(spendTxid); !ok || fee != 500 {
		t.Fatalf("fee = %d, ok=%v, want 500", fee, ok)
	}
	edge, ok := m.LookupSpend(fundingOutpoint)
	if !ok || edge.Txid != spendTxid {
		t.Fatalf("expected funding outpoint spent by %s, got %+v (ok=%v)", spendTxid, edge, ok)
	}

	utxos := m.Utxo(types.ScriptHash(changeScript))
	if len(utxos) != 1 || utxos[0].Value != 9500 {
		t.Fatalf("unexpected change utxos: %+v", utxos)
	}

	fundedUtxos := m.Utxo(types.ScriptHash(fundedScript))
	spendHistory := m.HistoryTxids(types.ScriptHash(fundedScript), 10)
	if len(fundedUtxos) != 0 {
		t.Fatalf("expected funded script to show no pending utxo (spent), got %+v", fundedUtxos)
	}
	if len(spendHistory) != 1 || spendHistory[0] != spendTxid {
		t.Fatalf("expected funded script history to show the spend, got %v", spendHistory)
	}

	stats := m.BacklogStats()
	if stats.Count != 1 || stats.TotalFee != 500 {
		t.Fatalf("unexpected backlog stats: %+v", stats)
	}

	overview := m.RecentOverview()
	if len(overview) != 1 || overview[0].Txid != spendTxid || overview[0].Fee != 500 {
		t.Fatalf("unexpected recent overview: %+v", overview)
	}
}

func TestUpdate_RemovesDroppedTransaction(t *testing.T) {
	fundingTxid := types.Hash{0x02}
	fundingOutpoint := types.Outpoint{TxID: fundingTxid, Index: 0}
	fundingOutput := wire.TxOut{Value: 5000, Script: fundedScript}

	spendTx := &wire.Tx{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: fundingOutpoint, Sequence: 0xffffffff}},
		Outputs: []wire.TxOut{{Value: 4800, Script: changeScript}},
	}
	spendTxid := spendTx.TxID()

	fd := &fakeMempoolDaemon{pending: map[string]*wire.Tx{spendTxid.String(): spendTx}}
	m, d, q := newTestMempool(t, fd)
	putConfirmedOutput(t, q.Store, fundingOutpoint, fundingOutput)

	if err := m.Update(d); err != nil {
		t.Fatalf("Update (add): %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}

	delete(fd.pending, spendTxid.String())
	if err := m.Update(d); err != nil {
		t.Fatalf("Update (remove): %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d, want 0 after removal", m.Count())
	}
	if _, ok := m.LookupSpend(fundingOutpoint); ok {
		t.Fatal("expected spend edge to be cleared after removal")
	}
	if len(m.Utxo(types.ScriptHash(changeScript))) != 0 {
		t.Fatal("expected change utxo to be cleared after removal")
	}
}

func TestTxFee_ExcludesColoredAmountsOnBothSides(t *testing.T) {
	colorID := types.NewColorID(types.TokenTypeColored, [32]byte{0x42})
	coloredScript := colorscript.Wrap(colorID, []byte{0x51})

	tx := &wire.Tx{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: types.Outpoint{TxID: types.Hash{0x03}, Index: 0}}},
		Outputs: []wire.TxOut{
			{Value: 9500, Script: fundedScript},
			{Value: 19000, Script: coloredScript},
		},
	}
	prevouts := map[uint32]wire.TxOut{
		0: {Value: 10000, Script: fundedScript},
		1: {Value: 20000, Script: coloredScript},
	}
	if fee := TxFee(tx, prevouts); fee != 500 {
		t.Fatalf("fee = %d, want 500", fee)
	}
}

func TestTxFee_CoinbaseHasNoFee(t *testing.T) {
	tx := &wire.Tx{Version: 1, Outputs: []wire.TxOut{{Value: 5000000000, Script: fundedScript}}}
	if fee := TxFee(tx, nil); fee != 0 {
		t.Fatalf("coinbase fee = %d, want 0", fee)
	}
}

func TestMakeFeeHistogram_ClosesBucketsAtWidthBoundary(t *testing.T) {
	entries := []TxFeeInfo{
		{FeePerVByte: 1.0, VSize: 60000},
		{FeePerVByte: 2.0, VSize: 10000},
		{FeePerVByte: 2.0, VSize: 45000},
	}
	histogram := MakeFeeHistogram(entries)
	if len(histogram) != 2 {
		t.Fatalf("len(histogram) = %d, want 2: %+v", len(histogram), histogram)
	}
	if histogram[0].FeePerVByte != 2.0 || histogram[0].VSize != 55000 {
		t.Fatalf("unexpected first bucket: %+v", histogram[0])
	}
	if histogram[1].FeePerVByte != 1.0 || histogram[1].VSize != 60000 {
		t.Fatalf("unexpected second bucket: %+v", histogram[1])
	}
}
