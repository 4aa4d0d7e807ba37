package mempool

import (
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// HistoryTxids returns the distinct txids touching scripthash,
// oldest-arrival first, matching ChainQuery.HistoryTxids' shape for
// confirmed history.
func (m *Mempool) HistoryTxids(scripthash types.Hash, limit int) []types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[types.Hash]bool)
	var out []types.Hash
	for _, info := range m.history[scripthash] {
		if seen[info.Txid] {
			continue
		}
		seen[info.Txid] = true
		out = append(out, info.Txid)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// History returns the pending transactions touching scripthash.
func (m *Mempool) History(scripthash types.Hash, limit int) []*wire.Tx {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[types.Hash]bool)
	var out []*wire.Tx
	for _, info := range m.history[scripthash] {
		if seen[info.Txid] {
			continue
		}
		seen[info.Txid] = true
		if tx, ok := m.txstore[info.Txid]; ok {
			out = append(out, tx)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// MempoolUtxo is one output funded by a pending transaction and not
// yet spent by another pending transaction.
type MempoolUtxo struct {
	Outpoint types.Outpoint
	ColorID  types.ColorID
	Value    uint64
}

// Utxo folds scripthash's pending history into its unconfirmed
// unspent set, the same Funding/Spending fold ChainQuery.Utxo runs
// over confirmed rows.
func (m *Mempool) Utxo(scripthash types.Hash) []MempoolUtxo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	utxos := make(map[types.Outpoint]MempoolUtxo)
	for _, info := range m.history[scripthash] {
		switch info.Kind {
		case store.HistoryKindFunding:
			op := types.Outpoint{TxID: info.Txid, Index: info.Vout}
			utxos[op] = MempoolUtxo{Outpoint: op, ColorID: info.ColorID, Value: info.Value}
		case store.HistoryKindSpending:
			delete(utxos, types.Outpoint{TxID: info.PrevTxid, Index: info.PrevVout})
		}
	}
	out := make([]MempoolUtxo, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, u)
	}
	return out
}

// Stats folds scripthash's pending history into a per-color-id
// activity summary, the unconfirmed counterpart to ChainQuery.Stats.
func (m *Mempool) Stats(scripthash types.Hash) map[types.ColorID]ScriptStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[types.ColorID]ScriptStats)
	seenTxid := make(map[types.ColorID]map[types.Hash]bool)
	for _, info := range m.history[scripthash] {
		if seenTxid[info.ColorID] == nil {
			seenTxid[info.ColorID] = make(map[types.Hash]bool)
		}
		s := stats[info.ColorID]
		if !seenTxid[info.ColorID][info.Txid] {
			seenTxid[info.ColorID][info.Txid] = true
			s.TxCount++
		}
		switch info.Kind {
		case store.HistoryKindFunding:
			s.FundedTxoCount++
			s.FundedTxoSum += info.Value
		case store.HistoryKindSpending:
			s.SpentTxoCount++
			s.SpentTxoSum += info.Value
		}
		stats[info.ColorID] = s
	}
	return stats
}

// ScriptStats mirrors chainquery.ScriptStats' shape so RPC handlers
// can merge confirmed and pending activity without a type adapter.
type ScriptStats struct {
	TxCount        uint64
	FundedTxoCount uint64
	SpentTxoCount  uint64
	FundedTxoSum   uint64
	SpentTxoSum    uint64
}
