package indexer

import (
	"encoding/hex"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// ErrReorgTooDeep is returned when a common-ancestor walk runs past
// ReorgMaxDepth, rather than silently reverting an unbounded number of
// blocks.
var ErrReorgTooDeep = fmt.Errorf("indexer: reorg exceeds configured max depth")

// walkToCommonAncestor walks backward from the daemon's current best
// block, fetching verbose headers one at a time, until it reaches a
// hash already present in headers (the common ancestor with the
// locally held chain, or the daemon's tip itself on a normal
// no-reorg advance). It returns the new headers in ascending height
// order, ready to append to the header list.
func walkToCommonAncestor(d *daemon.Client, headers *store.HeaderList, maxDepth int) ([]store.HeaderEntry, error) {
	bestHash, err := d.BestBlockHash()
	if err != nil {
		return nil, fmt.Errorf("walk: get best block hash: %w", err)
	}

	var collected []store.HeaderEntry
	hash := bestHash
	for {
		id, err := types.HexToHash(hash)
		if err != nil {
			return nil, fmt.Errorf("walk: parse hash %s: %w", hash, err)
		}
		if _, ok := headers.ByHash(id); ok {
			break // found the common ancestor (or nothing new to add)
		}

		verbose, err := d.BlockHeader(hash)
		if err != nil {
			return nil, fmt.Errorf("walk: get header %s: %w", hash, err)
		}
		raw, err := d.BlockHeaderRaw(hash)
		if err != nil {
			return nil, fmt.Errorf("walk: get raw header %s: %w", hash, err)
		}

		prevID, err := types.HexToHash(verbose.PreviousBlockHash)
		if err != nil && verbose.PreviousBlockHash != "" {
			return nil, fmt.Errorf("walk: parse prev hash %s: %w", verbose.PreviousBlockHash, err)
		}
		rawBytes, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("walk: decode raw header %s: %w", hash, err)
		}

		collected = append(collected, store.HeaderEntry{
			Hash:       id,
			PrevHash:   prevID,
			Height:     verbose.Height,
			Time:       verbose.Time,
			MedianTime: verbose.MedianTime,
			Raw:        rawBytes,
		})

		if len(collected) > maxDepth {
			return nil, ErrReorgTooDeep
		}
		if verbose.PreviousBlockHash == "" {
			break // reached genesis without finding a known ancestor
		}
		hash = verbose.PreviousBlockHash
	}

	// collected was built tip-to-ancestor; reverse to ascending height order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}
