package chainquery

import (
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// ScriptStats is a per-color-identifier activity summary for a script
// hash, folded from its Funding/Spending history rows.
type ScriptStats struct {
	TxCount        uint64
	FundedTxoCount uint64
	SpentTxoCount  uint64
	FundedTxoSum   uint64
	SpentTxoSum    uint64
}

// Stats folds scripthash's history into a per-color-id activity
// summary, resuming from a cached snapshot per color id when one
// exists and is still anchored to the best chain.
func (q *ChainQuery) Stats(scripthash types.Hash) (map[types.ColorID]ScriptStats, error) {
	cached, cachedHeight, hadCache, err := q.loadStatsCache(scripthash)
	if err != nil {
		return nil, err
	}

	stats, lastBlock, err := q.statsDelta(scripthash, cached, startHeightAfter(cachedHeight, hadCache))
	if err != nil {
		return nil, err
	}

	if lastBlock != nil && q.txoCount(stats) > uint64(q.MinHistoryItemsToCache) {
		if err := q.saveStatsCache(scripthash, stats, *lastBlock); err != nil {
			return nil, fmt.Errorf("save stats cache for %x: %w", scripthash, err)
		}
	}
	return stats, nil
}

func (q *ChainQuery) txoCount(stats map[types.ColorID]ScriptStats) uint64 {
	var total uint64
	for _, s := range stats {
		total += s.FundedTxoCount + s.SpentTxoCount
	}
	return total
}

// statsDelta folds every history row for scripthash from startHeight
// onward into init, returning the updated per-color-id stats and the
// last block folded (nil if none). Within a single confirming block,
// a txid counted once already for a given color id is not recounted
// even if it touches that script hash more than once in that block,
// matching the seen-per-block de-duplication the tx_count field is
// meant to reflect.
func (q *ChainQuery) statsDelta(scripthash types.Hash, init map[types.ColorID]ScriptStats, startHeight uint32) (map[types.ColorID]ScriptStats, *types.Hash, error) {
	stats := init
	if stats == nil {
		stats = make(map[types.ColorID]ScriptStats)
	}
	seenInBlock := make(map[types.ColorID]map[types.Hash]bool)
	var lastBlock *types.Hash

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
		if lastBlock != nil && *lastBlock != block.Hash {
			seenInBlock = make(map[types.ColorID]map[types.Hash]bool)
		}
		lastBlock = &block.Hash

		if seenInBlock[info.ColorID] == nil {
			seenInBlock[info.ColorID] = make(map[types.Hash]bool)
		}
		s := stats[info.ColorID]
		if !seenInBlock[info.ColorID][info.Txid] {
			seenInBlock[info.ColorID][info.Txid] = true
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
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return stats, lastBlock, nil
}

func (q *ChainQuery) loadStatsCache(scripthash types.Hash) (map[types.ColorID]ScriptStats, uint32, bool, error) {
	out := make(map[types.ColorID]ScriptStats)
	var height uint32
	hadAny := false
	err := q.Store.Cache.ScanPrefix(store.AssetCacheKeyPrefix(scripthash[:]), func(key, value []byte) error {
		colorID, err := colorIDFromAssetCacheKey(key)
		if err != nil {
			return err
		}
		row, err := store.DecodeScriptStatsCacheRow(value)
		if err != nil {
			return fmt.Errorf("decode script stats cache row: %w", err)
		}
		h, ok := q.heightByHash(row.Blockhash)
		if !ok {
			return nil
		}
		out[colorID] = ScriptStats{
			TxCount:        row.TxCount,
			FundedTxoCount: row.FundedTxoCount,
			SpentTxoCount:  row.SpentTxoCount,
			FundedTxoSum:   row.FundedTxoSum,
			SpentTxoSum:    row.SpentTxoSum,
		}
		height = h
		hadAny = true
		return nil
	})
	if err != nil {
		return nil, 0, false, err
	}
	if !hadAny {
		return nil, 0, false, nil
	}
	return out, height, true, nil
}

func (q *ChainQuery) saveStatsCache(scripthash types.Hash, stats map[types.ColorID]ScriptStats, blockhash types.Hash) error {
	for colorID, s := range stats {
		row := store.ScriptStatsCacheRow{
			Blockhash: blockhash, TxCount: s.TxCount,
			FundedTxoCount: s.FundedTxoCount, SpentTxoCount: s.SpentTxoCount,
			FundedTxoSum: s.FundedTxoSum, SpentTxoSum: s.SpentTxoSum,
		}
		if err := q.Store.Cache.Put(store.AssetCacheKey(scripthash[:], colorID[:]), row.Encode(), false); err != nil {
			return err
		}
	}
	return nil
}

func colorIDFromAssetCacheKey(key []byte) (types.ColorID, error) {
	want := 1 + types.HashSize + types.ColorIDSize
	if len(key) != want {
		return types.ColorID{}, errors.New("chainquery: malformed asset cache key")
	}
	var id types.ColorID
	copy(id[:], key[1+types.HashSize:])
	return id, nil
}
