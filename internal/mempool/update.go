package mempool

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/colorscript"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// Update resyncs against the daemon's current mempool: it fetches the
// live txid set, adds whatever is new and removes whatever dropped
// out (mined, replaced, or evicted upstream). A failure fetching the
// new transactions' bodies aborts the update and leaves the mempool
// exactly as it was; the next call retries.
func (m *Mempool) Update(d *daemon.Client) error {
	_, liveTxids, err := d.RawMempool(false)
	if err != nil {
		return fmt.Errorf("fetch mempool txids: %w", err)
	}

	m.mu.RLock()
	newSet := make(map[types.Hash]bool, len(liveTxids))
	for _, hexTxid := range liveTxids {
		txid, err := types.HexToHash(hexTxid)
		if err != nil {
			m.mu.RUnlock()
			return fmt.Errorf("parse mempool txid %q: %w", hexTxid, err)
		}
		newSet[txid] = true
	}
	var toRemove []types.Hash
	for txid := range m.txstore {
		if !newSet[txid] {
			toRemove = append(toRemove, txid)
		}
	}
	var toAdd []types.Hash
	for txid := range newSet {
		if _, ok := m.txstore[txid]; !ok {
			toAdd = append(toAdd, txid)
		}
	}
	m.mu.RUnlock()

	added, err := fetchTxs(d, toAdd)
	if err != nil {
		log.Mempool.Warn().Err(err).Msg("failed to fetch new mempool transactions, keeping previous state")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := uint32(timeNow().Unix())
	m.add(added, now)
	m.remove(toRemove)

	if timeNow().Sub(m.backlogStampAt) > m.backlogTTL {
		m.backlogStats = m.computeBacklogStats()
		m.backlogStampAt = timeNow()
	}
	return nil
}

// timeNow is a seam so tests can control the mempool's notion of
// "now" without the package ever calling time.Now() directly outside
// this one indirection point.
var timeNow = time.Now

func fetchTxs(d *daemon.Client, txids []types.Hash) ([]*wire.Tx, error) {
	txs := make([]*wire.Tx, 0, len(txids))
	for _, txid := range txids {
		hexTx, err := d.RawTransaction(txid.String())
		if err != nil {
			return nil, fmt.Errorf("fetch tx %s: %w", txid, err)
		}
		raw, err := hex.DecodeString(hexTx)
		if err != nil {
			return nil, fmt.Errorf("decode tx %s: %w", txid, err)
		}
		tx, err := wire.DecodeTx(raw)
		if err != nil {
			return nil, fmt.Errorf("parse tx %s: %w", txid, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// add indexes newly-arrived transactions under m.mu's write lock.
// Previous outputs are resolved against both the confirmed store and
// the mempool's own (already-updated) txstore, since one pending
// transaction may spend another.
func (m *Mempool) add(txs []*wire.Tx, arrivedAt uint32) {
	for _, tx := range txs {
		m.txstore[tx.TxID()] = tx
	}
	for _, tx := range txs {
		txid := tx.TxID()
		prevouts, ok := m.resolvePrevouts(tx)
		if !ok {
			// A prevout could not be found in either store; the
			// transaction is kept in txstore (so a later update that
			// resolves the gap doesn't need to re-fetch it) but isn't
			// indexed until then.
			continue
		}

		feeinfo := NewTxFeeInfo(tx, prevouts)
		m.feeinfo[txid] = feeinfo

		var totalIn uint64
		for _, out := range prevouts {
			totalIn += out.Value
		}
		overview := TxOverview{Txid: txid, Fee: feeinfo.Fee, VSize: feeinfo.VSize, Time: arrivedAt, Value: totalIn}
		m.overviews[txid] = overview
		m.pushRecent(overview)

		m.indexHistory(tx, txid, prevouts)
		m.indexColors(tx, txid, prevouts)

		for vin, in := range tx.Inputs {
			m.edges[in.PrevOut] = SpendingEdge{Txid: txid, Vin: uint32(vin)}
		}
	}
}

// resolvePrevouts looks up every input's previous output, preferring
// the confirmed store and falling back to the mempool's own txstore.
// ok is false if any prevout couldn't be found anywhere.
func (m *Mempool) resolvePrevouts(tx *wire.Tx) (map[uint32]wire.TxOut, bool) {
	out := make(map[uint32]wire.TxOut, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if confirmed, found, err := m.chain.LookupTxOut(in.PrevOut); err == nil && found {
			out[uint32(i)] = confirmed
			continue
		}
		funding, ok := m.txstore[in.PrevOut.TxID]
		if !ok || int(in.PrevOut.Index) >= len(funding.Outputs) {
			return nil, false
		}
		out[uint32(i)] = funding.Outputs[in.PrevOut.Index]
	}
	return out, true
}

// indexHistory appends Funding/Spending history entries under both
// the colored and the underlying uncolored script hash for every
// input and output of tx, mirroring what Indexer writes for confirmed
// blocks.
func (m *Mempool) indexHistory(tx *wire.Tx, txid types.Hash, prevouts map[uint32]wire.TxOut) {
	for vin, in := range tx.Inputs {
		prevout, ok := prevouts[uint32(vin)]
		if !ok {
			continue
		}
		info := store.HistoryInfo{
			Kind: store.HistoryKindSpending, Txid: txid, Vout: uint32(vin),
			PrevTxid: in.PrevOut.TxID, PrevVout: in.PrevOut.Index,
			Value: prevout.Value,
		}
		for _, sh := range scriptHashes(prevout.Script) {
			info.ColorID = sh.colorID
			m.history[sh.hash] = append(m.history[sh.hash], info)
		}
	}
	for vout, out := range tx.Outputs {
		info := store.HistoryInfo{
			Kind: store.HistoryKindFunding, Txid: txid, Vout: uint32(vout),
			Value: out.Value,
		}
		for _, sh := range scriptHashes(out.Script) {
			info.ColorID = sh.colorID
			m.history[sh.hash] = append(m.history[sh.hash], info)
		}
	}
}

type scriptHashEntry struct {
	hash    types.Hash
	colorID types.ColorID
}

// scriptHashes returns the script hash(es) a history entry for script
// must be indexed under: just the uncolored hash for an uncolored
// script, or both the colored script's own hash and its underlying
// uncolored script's hash for a colored one, so a query against
// either prefix finds the activity.
func scriptHashes(script []byte) []scriptHashEntry {
	colorID, underlying, ok := colorscript.Split(script)
	if !ok {
		return []scriptHashEntry{{hash: types.ScriptHash(script), colorID: types.DefaultColorID}}
	}
	return []scriptHashEntry{
		{hash: types.ScriptHash(script), colorID: colorID},
		{hash: types.ScriptHash(underlying), colorID: colorID},
	}
}

// indexColors appends per-color-identifier history entries for the
// colored inputs/outputs of tx. Unlike ColorIndex's confirmed-chain C
// rows, a pending transaction hasn't gone through OpenAssets
// classification (issuance vs. transfer vs. burn depends on the
// marker output, resolved once the tx confirms), so every colored
// movement is recorded here as Transferring, an approximation good
// enough for "is this color active in the mempool" queries.
func (m *Mempool) indexColors(tx *wire.Tx, txid types.Hash, prevouts map[uint32]wire.TxOut) {
	for _, prevout := range prevouts {
		colorID, _, ok := colorscript.Split(prevout.Script)
		if !ok {
			continue
		}
		m.colors[colorID] = append(m.colors[colorID], store.ColorHistoryInfo{
			Kind: store.ColorEventTransferring, Txid: txid, Value: prevout.Value,
		})
	}
	for _, out := range tx.Outputs {
		colorID, _, ok := colorscript.Split(out.Script)
		if !ok {
			continue
		}
		m.colors[colorID] = append(m.colors[colorID], store.ColorHistoryInfo{
			Kind: store.ColorEventTransferring, Txid: txid, Value: out.Value,
		})
	}
}

// remove drops every index entry referencing a removed txid. This is
// O(mempool size) per call, favoring simplicity over throughput for a
// structure that's rebuilt from the daemon every few seconds anyway.
func (m *Mempool) remove(txids []types.Hash) {
	if len(txids) == 0 {
		return
	}
	removed := make(map[types.Hash]bool, len(txids))
	for _, txid := range txids {
		removed[txid] = true
		delete(m.txstore, txid)
		delete(m.feeinfo, txid)
		delete(m.overviews, txid)
	}
	for sh, entries := range m.history {
		kept := entries[:0]
		for _, e := range entries {
			if !removed[e.Txid] {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(m.history, sh)
		} else {
			m.history[sh] = kept
		}
	}
	for colorID, entries := range m.colors {
		kept := entries[:0]
		for _, e := range entries {
			if !removed[e.Txid] {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(m.colors, colorID)
		} else {
			m.colors[colorID] = kept
		}
	}
	for outpoint, edge := range m.edges {
		if removed[edge.Txid] {
			delete(m.edges, outpoint)
		}
	}
	kept := m.recent[:0]
	for _, ov := range m.recent {
		if !removed[ov.Txid] {
			kept = append(kept, ov)
		}
	}
	m.recent = kept
}

func (m *Mempool) computeBacklogStats() BacklogStats {
	stats := BacklogStats{FeeHistogram: []FeeHistogramBucket{{FeePerVByte: 0, VSize: 0}}}
	entries := make([]TxFeeInfo, 0, len(m.feeinfo))
	for _, info := range m.feeinfo {
		stats.Count++
		stats.VSize += info.VSize
		stats.TotalFee += info.Fee
		entries = append(entries, info)
	}
	if len(entries) > 0 {
		stats.FeeHistogram = MakeFeeHistogram(entries)
	}
	return stats
}
