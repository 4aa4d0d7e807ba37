package chainquery

import (
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// Utxo is one unspent output tracked against a script hash.
type Utxo struct {
	Outpoint  types.Outpoint
	ColorID   types.ColorID
	Value     uint64
	Confirmed BlockID
}

// Utxo folds scripthash's history rows into its current unspent set:
// a Funding event inserts (txid, vout); a Spending event whose
// PrevTxid/PrevVout matches an entry removes it. The fold starts from
// a cached snapshot when one exists and is still anchored to the best
// chain, and only re-walks the rows confirmed since.
func (q *ChainQuery) Utxo(scripthash types.Hash) ([]Utxo, error) {
	cached, cachedHeight, hadCache, err := q.loadUtxoCache(scripthash)
	if err != nil {
		return nil, err
	}

	utxos, lastBlock, processed, err := q.utxoDelta(scripthash, cached, startHeightAfter(cachedHeight, hadCache))
	if err != nil {
		return nil, err
	}

	if lastBlock != nil && (hadCache || processed > q.MinHistoryItemsToCache) {
		if err := q.saveUtxoCache(scripthash, utxos, *lastBlock); err != nil {
			return nil, fmt.Errorf("save utxo cache for %x: %w", scripthash, err)
		}
	}

	out := make([]Utxo, 0, len(utxos))
	for k, v := range utxos {
		out = append(out, Utxo{Outpoint: k, ColorID: v.colorID, Value: v.value, Confirmed: v.confirmed})
	}
	return out, nil
}

// startHeightAfter returns the height to resume scanning from: right
// after the cached block's height, or 0 if there was no usable cache.
func startHeightAfter(cachedHeight uint32, hadCache bool) uint32 {
	if !hadCache {
		return 0
	}
	return cachedHeight + 1
}

type utxoEntry struct {
	colorID   types.ColorID
	value     uint64
	confirmed BlockID
}

// utxoDelta folds every history row for scripthash from startHeight
// onward into init, returning the updated set, the last block folded
// (nil if none), and how many history items were processed.
func (q *ChainQuery) utxoDelta(scripthash types.Hash, init map[types.Outpoint]utxoEntry, startHeight uint32) (map[types.Outpoint]utxoEntry, *types.Hash, int, error) {
	utxos := init
	if utxos == nil {
		utxos = make(map[types.Outpoint]utxoEntry)
	}
	var lastBlock *types.Hash
	processed := 0

	err := q.Store.History.ScanPrefix(store.HistoryKeyPrefix(scripthash[:]), func(key, _ []byte) error {
		if store.HistoryKeyHeight(key) < startHeight {
			return nil
		}
		info, err := store.DecodeHistoryInfo(key[1+types.HashSize+4:])
		if err != nil {
			return fmt.Errorf("decode history row: %w", err)
		}
		block, confirmed, err := q.txConfirmingBlock(info.Txid)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		processed++
		lastBlock = &block.Hash

		switch info.Kind {
		case store.HistoryKindFunding:
			op := types.Outpoint{TxID: info.Txid, Index: info.Vout}
			utxos[op] = utxoEntry{colorID: info.ColorID, value: info.Value, confirmed: block}
		case store.HistoryKindSpending:
			delete(utxos, types.Outpoint{TxID: info.PrevTxid, Index: info.PrevVout})
		}
		if len(utxos) > q.UtxosLimit {
			return apperr.Wrap(apperr.ErrTooPopular, fmt.Sprintf("scripthash %x", scripthash), errors.New("too many utxos"))
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return utxos, lastBlock, processed, nil
}

// loadUtxoCache reads the `U|scripthash` cache row, discarding it if
// its anchoring block is no longer on the best chain.
func (q *ChainQuery) loadUtxoCache(scripthash types.Hash) (map[types.Outpoint]utxoEntry, uint32, bool, error) {
	raw, err := q.Store.Cache.Get(store.UtxoCacheKey(scripthash[:]))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	row, err := store.DecodeUtxoCacheRow(raw)
	if err != nil {
		return nil, 0, false, fmt.Errorf("decode utxo cache row: %w", err)
	}
	height, ok := q.heightByHash(row.Blockhash)
	if !ok {
		return nil, 0, false, nil
	}
	out := make(map[types.Outpoint]utxoEntry, len(row.Utxos))
	for _, u := range row.Utxos {
		entryHash := row.Blockhash
		if entry, ok := q.Store.Headers.ByHeight(u.Height); ok {
			entryHash = entry.Hash
		}
		out[u.Outpoint] = utxoEntry{colorID: u.ColorID, value: u.Value, confirmed: BlockID{Height: u.Height, Hash: entryHash}}
	}
	return out, height, true, nil
}

func (q *ChainQuery) saveUtxoCache(scripthash types.Hash, utxos map[types.Outpoint]utxoEntry, blockhash types.Hash) error {
	row := store.UtxoCacheRow{Blockhash: blockhash, Utxos: make([]store.UtxoCacheEntry, 0, len(utxos))}
	for op, e := range utxos {
		row.Utxos = append(row.Utxos, store.UtxoCacheEntry{Outpoint: op, Value: e.value, Height: e.confirmed.Height, ColorID: e.colorID})
	}
	return q.Store.Cache.Put(store.UtxoCacheKey(scripthash[:]), row.Encode(), false)
}
