// Package mempool mirrors the daemon's mempool in memory, maintaining
// the same kind of secondary indices internal/store keeps for
// confirmed chain state so query handlers can treat pending and
// confirmed activity uniformly.
package mempool

import (
	"sync"
	"time"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// SpendingEdge records which mempool transaction/input spends a given
// outpoint.
type SpendingEdge struct {
	Txid types.Hash
	Vin  uint32
}

// TxOverview is a simplified view of a mempool transaction, the unit
// held in the recent-arrivals ring.
type TxOverview struct {
	Txid  types.Hash
	Fee   uint64
	VSize uint32
	Time  uint32
	Value uint64
}

// BacklogStats summarizes the current mempool backlog, refreshed at
// most once per backlogTTL.
type BacklogStats struct {
	Count        uint32
	VSize        uint32
	TotalFee     uint64
	FeeHistogram []FeeHistogramBucket
}

// Mempool is the in-memory mirror of the daemon's pending transaction
// pool. All exported methods are safe for concurrent use; Update is
// expected to run from a single goroutine but may run concurrently
// with readers.
type Mempool struct {
	chain *chainquery.ChainQuery

	recentCapacity int
	backlogTTL     time.Duration

	mu             sync.RWMutex
	txstore        map[types.Hash]*wire.Tx
	feeinfo        map[types.Hash]TxFeeInfo
	history        map[types.Hash][]store.HistoryInfo
	colors         map[types.ColorID][]store.ColorHistoryInfo
	edges          map[types.Outpoint]SpendingEdge
	overviews      map[types.Hash]TxOverview
	recent         []TxOverview // most recent first, capped at recentCapacity
	backlogStats   BacklogStats
	backlogStampAt time.Time
}

// New builds an empty Mempool backed by chain for resolving prevouts
// that were confirmed before entering the mempool.
func New(chain *chainquery.ChainQuery, cfg config.MempoolConfig) *Mempool {
	capacity := cfg.RecentCapacity
	if capacity <= 0 {
		capacity = 10
	}
	ttl := cfg.BacklogRefreshInterval
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Mempool{
		chain:          chain,
		recentCapacity: capacity,
		backlogTTL:     ttl,
		txstore:        make(map[types.Hash]*wire.Tx),
		feeinfo:        make(map[types.Hash]TxFeeInfo),
		history:        make(map[types.Hash][]store.HistoryInfo),
		colors:         make(map[types.ColorID][]store.ColorHistoryInfo),
		edges:          make(map[types.Outpoint]SpendingEdge),
		overviews:      make(map[types.Hash]TxOverview),
		backlogStats:   BacklogStats{FeeHistogram: []FeeHistogramBucket{{FeePerVByte: 0, VSize: 0}}},
		backlogStampAt: time.Time{},
	}
}

// LookupTx returns a pending transaction by txid.
func (m *Mempool) LookupTx(txid types.Hash) (*wire.Tx, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txstore[txid]
	return tx, ok
}

// GetTxFee returns the fee computed for a pending transaction.
func (m *Mempool) GetTxFee(txid types.Hash) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.feeinfo[txid]
	return info.Fee, ok
}

// HasSpend reports whether outpoint is spent by a pending transaction.
func (m *Mempool) HasSpend(outpoint types.Outpoint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[outpoint]
	return ok
}

// LookupSpend returns the pending input spending outpoint, if any.
func (m *Mempool) LookupSpend(outpoint types.Outpoint) (SpendingEdge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[outpoint]
	return e, ok
}

// HasUnconfirmedParents reports whether any input of the pending
// transaction txid itself spends an output of another pending
// transaction, the distinction the Electrum height encoding needs
// between an unconfirmed tx that can be mined immediately and one
// that must wait on a parent.
func (m *Mempool) HasUnconfirmedParents(txid types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txstore[txid]
	if !ok {
		return false
	}
	for _, in := range tx.Inputs {
		if _, parentPending := m.txstore[in.PrevOut.TxID]; parentPending {
			return true
		}
	}
	return false
}

// Txids returns every txid currently held in the mempool.
func (m *Mempool) Txids() []types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Hash, 0, len(m.txstore))
	for txid := range m.txstore {
		out = append(out, txid)
	}
	return out
}

// RecentOverview returns up to the N most recently added transactions,
// most recent first.
func (m *Mempool) RecentOverview() []TxOverview {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TxOverview, len(m.recent))
	copy(out, m.recent)
	return out
}

// BacklogStats returns the cached mempool backlog summary.
func (m *Mempool) BacklogStats() BacklogStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backlogStats
}

// Count returns the number of transactions currently held.
func (m *Mempool) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txstore)
}

func (m *Mempool) pushRecent(ov TxOverview) {
	m.recent = append([]TxOverview{ov}, m.recent...)
	if len(m.recent) > m.recentCapacity {
		m.recent = m.recent[:m.recentCapacity]
	}
}
