package colorindex

import (
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// ColorIndex answers openassets.* queries over the `C`/`z` rows the
// indexer writes alongside confirmed blocks, the same read-after-
// confirm relationship ChainQuery has with `H`/`U`/`A`.
type ColorIndex struct {
	Store *store.Store
	Chain *chainquery.ChainQuery

	MinHistoryItemsToCache int
}

// New builds a ColorIndex sharing chain's Store and best-chain view.
func New(chain *chainquery.ChainQuery, minHistoryItemsToCache int) *ColorIndex {
	if minHistoryItemsToCache <= 0 {
		minHistoryItemsToCache = 100
	}
	return &ColorIndex{Store: chain.Store, Chain: chain, MinHistoryItemsToCache: minHistoryItemsToCache}
}

// errStopScan cuts a ScanPrefix walk short without surfacing an error
// to the caller, mirroring the sentinel chainquery uses for the same
// purpose.
var errStopScan = errors.New("colorindex: stop scan")

// History returns up to limit distinct txids that touched colorID, in
// ascending confirmation order, restricted to the current best chain.
func (c *ColorIndex) History(colorID types.ColorID, limit int) ([]types.Hash, error) {
	seen := make(map[types.Hash]bool)
	var out []types.Hash
	err := c.Store.History.ScanPrefix(store.ColorHistoryKeyPrefix(colorID[:]), func(key, _ []byte) error {
		if len(out) >= limit {
			return errStopScan
		}
		info, err := store.DecodeColorHistoryInfo(key[1+types.ColorIDSize+4:])
		if err != nil {
			return fmt.Errorf("decode color history row: %w", err)
		}
		if seen[info.Txid] {
			return nil
		}
		if _, confirmed, err := c.Chain.Confirmed(info.Txid); err != nil {
			return err
		} else if !confirmed {
			return nil
		}
		seen[info.Txid] = true
		out = append(out, info.Txid)
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

// AssetStats is the issued/transferred/burned tx-count and quantity
// breakdown for one color identifier, the decoded counterpart of
// store.AssetStatsRow.
type AssetStats struct {
	TxCount            uint64
	IssuedTxCount      uint64
	TransferredTxCount uint64
	BurnedTxCount      uint64
	IssuedSum          uint64
	TransferredSum     uint64
	BurnedSum          uint64
}

// Stats folds colorID's full confirmed history into its lifetime
// issued/transferred/burned totals, caching the result under the `z`
// row once the color has accumulated enough history to make
// recomputing it from scratch worth avoiding, the same
// minimum-items-to-cache threshold ChainQuery.Stats applies per
// scripthash.
func (c *ColorIndex) Stats(colorID types.ColorID) (AssetStats, error) {
	cached, cachedHeight, hadCache, err := c.loadCache(colorID)
	if err != nil {
		return AssetStats{}, err
	}

	stats, lastBlock, err := c.statsDelta(colorID, cached, startHeightAfter(cachedHeight, hadCache))
	if err != nil {
		return AssetStats{}, err
	}

	if lastBlock != nil && stats.TxCount > uint64(c.MinHistoryItemsToCache) {
		if err := c.saveCache(colorID, stats, *lastBlock); err != nil {
			return AssetStats{}, fmt.Errorf("save asset stats cache for %s: %w", colorID, err)
		}
	}
	return stats, nil
}

func startHeightAfter(height uint32, had bool) uint32 {
	if !had {
		return 0
	}
	return height + 1
}

// statsDelta folds every color history row for colorID from
// startHeight onward into init. Within a single confirming block, a
// txid already counted for colorID is not recounted even if it
// produced more than one event there (e.g. a simultaneous
// burn-and-transfer), matching TxCount's per-transaction meaning.
func (c *ColorIndex) statsDelta(colorID types.ColorID, init AssetStats, startHeight uint32) (AssetStats, *types.Hash, error) {
	stats := init
	seenInBlock := make(map[types.Hash]bool)
	var lastBlock *types.Hash

	err := c.Store.History.ScanPrefix(store.ColorHistoryKeyPrefix(colorID[:]), func(key, _ []byte) error {
		height := colorHistoryKeyHeight(key)
		if height < startHeight {
			return nil
		}
		info, err := store.DecodeColorHistoryInfo(key[1+types.ColorIDSize+4:])
		if err != nil {
			return fmt.Errorf("decode color history row: %w", err)
		}
		block, confirmed, err := c.Chain.Confirmed(info.Txid)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		if lastBlock != nil && *lastBlock != block.Hash {
			seenInBlock = make(map[types.Hash]bool)
		}
		lastBlock = &block.Hash

		if !seenInBlock[info.Txid] {
			seenInBlock[info.Txid] = true
			stats.TxCount++
		}
		switch info.Kind {
		case store.ColorEventIssuing:
			stats.IssuedTxCount++
			stats.IssuedSum += info.Value
		case store.ColorEventTransferring:
			stats.TransferredTxCount++
			stats.TransferredSum += info.Value
		case store.ColorEventBurning:
			stats.BurnedTxCount++
			stats.BurnedSum += info.Value
		}
		return nil
	})
	if err != nil {
		return AssetStats{}, nil, err
	}
	return stats, lastBlock, nil
}

// colorHistoryKeyHeight extracts the little-endian height field from
// a `C` row's key: prefix byte, then the fixed 33-byte color id, then
// the 4-byte height.
func colorHistoryKeyHeight(key []byte) uint32 {
	off := 1 + types.ColorIDSize
	return uint32(key[off]) | uint32(key[off+1])<<8 | uint32(key[off+2])<<16 | uint32(key[off+3])<<24
}

func (c *ColorIndex) loadCache(colorID types.ColorID) (AssetStats, uint32, bool, error) {
	raw, err := c.Store.Cache.Get(store.ColorStatsCacheKey(colorID[:]))
	if errors.Is(err, store.ErrKeyNotFound) {
		return AssetStats{}, 0, false, nil
	}
	if err != nil {
		return AssetStats{}, 0, false, err
	}
	row, err := store.DecodeAssetStatsRow(raw)
	if err != nil {
		return AssetStats{}, 0, false, fmt.Errorf("decode asset stats cache: %w", err)
	}
	height, isBest := c.Store.Headers.ByHash(row.Blockhash)
	if !isBest {
		return AssetStats{}, 0, false, nil
	}
	return AssetStats{
		TxCount: row.TxCount, IssuedTxCount: row.IssuedTxCount, TransferredTxCount: row.TransferredTxCount,
		BurnedTxCount: row.BurnedTxCount, IssuedSum: row.IssuedSum, TransferredSum: row.TransferredSum,
		BurnedSum: row.BurnedSum,
	}, height.Height, true, nil
}

func (c *ColorIndex) saveCache(colorID types.ColorID, stats AssetStats, blockhash types.Hash) error {
	row := store.AssetStatsRow{
		Blockhash: blockhash, TxCount: stats.TxCount, IssuedTxCount: stats.IssuedTxCount,
		TransferredTxCount: stats.TransferredTxCount, BurnedTxCount: stats.BurnedTxCount,
		IssuedSum: stats.IssuedSum, TransferredSum: stats.TransferredSum, BurnedSum: stats.BurnedSum,
	}
	return c.Store.Cache.Put(store.ColorStatsCacheKey(colorID[:]), row.Encode(), false)
}
