package colorindex

import (
	"testing"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// seedConfirmedBlock marks txid as confirmed at height in a freshly
// appended best-chain header, the minimum ChainQuery.Confirmed needs
// to treat a `C` row as live.
func seedConfirmedBlock(t *testing.T, st *store.Store, height uint32, txid types.Hash) types.Hash {
	t.Helper()
	blockhash := types.Hash{byte(height), byte(height >> 8), 0xfe}
	if err := st.TxStore.Put(store.ConfirmedInKey(txid[:], blockhash[:]), nil, false); err != nil {
		t.Fatalf("seed confirmed-in row: %v", err)
	}
	st.Headers.Append([]store.HeaderEntry{{Hash: blockhash, Height: height}})
	return blockhash
}

func newTestColorIndex(t *testing.T) (*ColorIndex, *store.Store) {
	t.Helper()
	st := store.NewInMemory(false)
	q := chainquery.New(st, nil, config.ChainQueryConfig{})
	return New(q, 100), st
}

func TestColorIndex_HistoryReturnsConfirmedTxidsOnly(t *testing.T) {
	ci, st := newTestColorIndex(t)

	confirmedTxid := types.Hash{0x01}
	seedConfirmedBlock(t, st, 10, confirmedTxid)
	batch := st.History.NewBatch()
	IndexConfirmedTx(batch, 10, confirmedTxid, nil, []wire.TxOut{{Value: 500, Script: colored(reissuable, uncoloredScript)}}, nil)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// An orphaned transaction's C row exists but it was never recorded
	// as confirmed in any block, so it must not surface.
	orphanedTxid := types.Hash{0x02}
	batch = st.History.NewBatch()
	IndexConfirmedTx(batch, 11, orphanedTxid, nil, []wire.TxOut{{Value: 700, Script: colored(reissuable, uncoloredScript)}}, nil)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	history, err := ci.History(reissuable, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0] != confirmedTxid {
		t.Fatalf("History = %v, want only %s", history, confirmedTxid)
	}
}

func TestColorIndex_StatsAggregatesIssuedTransferredBurned(t *testing.T) {
	ci, st := newTestColorIndex(t)

	fundingOutpoint := types.Outpoint{TxID: types.Hash{0x10}, Index: 0}
	issueTxid := types.Hash{0x01}
	seedConfirmedBlock(t, st, 10, issueTxid)
	batch := st.History.NewBatch()
	IndexConfirmedTx(batch, 10, issueTxid, nil, []wire.TxOut{{Value: 1000, Script: colored(reissuable, uncoloredScript)}}, nil)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit issue: %v", err)
	}

	burnTxid := types.Hash{0x02}
	seedConfirmedBlock(t, st, 11, burnTxid)
	prevouts := map[types.Outpoint]wire.TxOut{fundingOutpoint: {Value: 1000, Script: colored(reissuable, uncoloredScript)}}
	batch = st.History.NewBatch()
	IndexConfirmedTx(batch, 11, burnTxid, []types.Outpoint{fundingOutpoint}, []wire.TxOut{{Value: 400, Script: colored(reissuable, uncoloredScript)}}, prevouts)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit burn: %v", err)
	}

	stats, err := ci.Stats(reissuable)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TxCount != 2 {
		t.Fatalf("TxCount = %d, want 2", stats.TxCount)
	}
	if stats.IssuedSum != 1000 || stats.IssuedTxCount != 1 {
		t.Fatalf("unexpected issued totals: %+v", stats)
	}
	if stats.BurnedSum != 600 || stats.BurnedTxCount != 1 {
		t.Fatalf("unexpected burned totals: %+v", stats)
	}
	if stats.TransferredSum != 400 || stats.TransferredTxCount != 1 {
		t.Fatalf("unexpected transferred totals: %+v", stats)
	}
}

func TestColorIndex_StatsCachesOnceThresholdExceeded(t *testing.T) {
	ci, st := newTestColorIndex(t)
	ci.MinHistoryItemsToCache = 0 // cache on the very first call

	txid := types.Hash{0x01}
	blockhash := seedConfirmedBlock(t, st, 5, txid)
	batch := st.History.NewBatch()
	IndexConfirmedTx(batch, 5, txid, nil, []wire.TxOut{{Value: 1000, Script: colored(reissuable, uncoloredScript)}}, nil)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := ci.Stats(reissuable); err != nil {
		t.Fatalf("Stats: %v", err)
	}

	raw, err := st.Cache.Get(store.ColorStatsCacheKey(reissuable[:]))
	if err != nil {
		t.Fatalf("expected cache row to be written: %v", err)
	}
	row, err := store.DecodeAssetStatsRow(raw)
	if err != nil {
		t.Fatalf("decode cache row: %v", err)
	}
	if row.Blockhash != blockhash || row.IssuedSum != 1000 {
		t.Fatalf("unexpected cached row: %+v", row)
	}
}
