// Package indexer implements the single `update(daemon) -> new tip`
// operation that drives the whole system: walking the daemon's best
// chain back to a known ancestor, fetching and decoding the new
// blocks, and folding them into the txstore and history databases in
// a two-phase add-then-index sequence.
package indexer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/colorindex"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/fetcher"
	"github.com/tapyrus-index/utxoindexd/internal/log"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/colorscript"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// Indexer owns the ingestion pipeline: one Store, one daemon
// connection, and the transition from bulk to per-block RPC fetching
// once catch-up finishes.
type Indexer struct {
	Store  *store.Store
	Daemon *daemon.Client
	RPC    fetcher.Fetcher
	Bulk   *fetcher.BulkFetcher // nil once the bulk pass has been consumed

	ReorgMaxDepth int
	BlockWorkers  int
	IOWorkers     int
}

// New builds an Indexer. bulk may be nil if there's no local block
// file directory configured, in which case every fetch goes straight
// to RPC.
func New(st *store.Store, d *daemon.Client, bulk *fetcher.BulkFetcher, cfg config.IndexerConfig) *Indexer {
	ix := &Indexer{
		Store:         st,
		Daemon:        d,
		RPC:           fetcher.NewRPCFetcher(d),
		Bulk:          bulk,
		ReorgMaxDepth: cfg.ReorgMaxDepth,
		BlockWorkers:  cfg.BlockWorkers,
		IOWorkers:     cfg.IOWorkers,
	}
	if ix.ReorgMaxDepth <= 0 {
		ix.ReorgMaxDepth = 1000
	}
	if ix.BlockWorkers <= 0 {
		ix.BlockWorkers = 4
	}
	if ix.IOWorkers <= 0 {
		ix.IOWorkers = 16
	}
	return ix
}

func (ix *Indexer) fetcherFor(blockhash string) fetcher.Fetcher {
	if ix.Bulk != nil && ix.Bulk.Has(blockhash) {
		return ix.Bulk
	}
	return ix.RPC
}

// Update runs one full pass of the seven-step algorithm and returns
// the resulting chain tip.
func (ix *Indexer) Update() (types.Hash, error) {
	newHeaders, err := walkToCommonAncestor(ix.Daemon, ix.Store.Headers, ix.ReorgMaxDepth)
	if err != nil {
		if err == ErrReorgTooDeep {
			return types.Hash{}, apperr.Wrap(apperr.ErrConnection, "update", err)
		}
		return types.Hash{}, apperr.Wrap(apperr.ErrConnection, "walk to common ancestor", err)
	}
	if len(newHeaders) == 0 {
		tip, _ := ix.Store.Headers.Tip()
		return tip.Hash, nil
	}

	added, err := ix.Store.AddedBlockhashes()
	if err != nil {
		return types.Hash{}, fmt.Errorf("update: load added blockhashes: %w", err)
	}
	indexed, err := ix.Store.IndexedBlockhashes()
	if err != nil {
		return types.Hash{}, fmt.Errorf("update: load indexed blockhashes: %w", err)
	}

	var toAdd, toIndex []store.HeaderEntry
	for _, h := range newHeaders {
		if !added[string(h.Hash[:])] {
			toAdd = append(toAdd, h)
		}
		if !indexed[string(h.Hash[:])] {
			toIndex = append(toIndex, h)
		}
	}

	if err := ix.phaseAdd(toAdd); err != nil {
		return types.Hash{}, fmt.Errorf("update: phase add: %w", err)
	}
	if err := ix.phaseIndex(toIndex); err != nil {
		return types.Hash{}, fmt.Errorf("update: phase index: %w", err)
	}

	tip := newHeaders[len(newHeaders)-1]
	if err := ix.Store.TxStore.Put(store.TipKey(), tip.Hash[:], true); err != nil {
		return types.Hash{}, fmt.Errorf("update: write tip: %w", err)
	}
	ix.Store.Headers.Append(newHeaders)

	if ix.Bulk != nil {
		log.Indexer.Info().Int("bulk_blocks", ix.Bulk.Len()).Msg("bulk catch-up pass complete, switching to per-block RPC fetching")
		ix.Bulk = nil
	}

	log.Indexer.Info().
		Str("tip", tip.Hash.String()).
		Uint32("height", tip.Height).
		Int("added", len(toAdd)).
		Int("indexed", len(toIndex)).
		Msg("indexer update complete")

	return tip.Hash, nil
}

// blockDecode pairs a fetched/decoded block with the header entry that
// describes it, so phaseAdd's parallel fetch stage can hand results
// back to the sequential batch-writing stage in header order.
type blockDecode struct {
	header store.HeaderEntry
	block  *wire.Block
}

// phaseAdd fetches and decodes every "to add" block concurrently
// (bounded by IOWorkers), then writes each block's rows into txstore
// in a single batch terminated by its done marker.
func (ix *Indexer) phaseAdd(headers []store.HeaderEntry) error {
	if len(headers) == 0 {
		return nil
	}
	decoded := make([]blockDecode, len(headers))
	err := runPool(ix.IOWorkers, len(headers), func(i int) error {
		h := headers[i]
		blk, err := ix.fetcherFor(h.Hash.String()).FetchBlock(h.Hash.String())
		if err != nil {
			return apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("fetch block %s", h.Hash), err)
		}
		decoded[i] = blockDecode{header: h, block: blk}
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range decoded {
		if err := ix.writeAddBatch(d.header, d.block); err != nil {
			return fmt.Errorf("write add batch for %s: %w", d.header.Hash, err)
		}
	}
	return nil
}

func (ix *Indexer) writeAddBatch(h store.HeaderEntry, blk *wire.Block) error {
	batch := ix.Store.TxStore.NewBatch()
	blockhash := h.Hash[:]

	var txids []types.Hash
	for _, tx := range blk.Txs {
		txid := tx.TxID()
		txids = append(txids, txid)

		if !ix.Store.LightMode {
			batch.Put(store.TxKey(txid[:]), tx.Serialize())
		}
		batch.Put(store.ConfirmedInKey(txid[:], blockhash), nil)

		for vout, out := range tx.Outputs {
			row := store.TxOutRow{Value: out.Value, Script: out.Script}
			batch.Put(store.OutputKey(txid[:], uint16(vout)), row.Encode())
		}
	}

	batch.Put(store.HeaderKey(blockhash), h.Raw)
	if !ix.Store.LightMode {
		batch.Put(store.TxListKey(blockhash), store.TxList{Txids: txids}.Encode())
		size := len(blk.Header.Serialize())
		for _, tx := range blk.Txs {
			size += len(tx.Serialize())
		}
		meta := store.BlockMetaRow{
			TxCount: uint32(len(blk.Txs)),
			Size:    uint32(size),
			Weight:  uint32(blk.Weight()),
		}
		batch.Put(store.BlockMetaKey(blockhash), meta.Encode())
	}
	batch.Put(store.DoneKey(blockhash), nil)

	return batch.Commit()
}

// phaseIndex resolves every "to index" block's inputs against txstore
// `O` rows and writes history/spend-edge rows.
func (ix *Indexer) phaseIndex(headers []store.HeaderEntry) error {
	for _, h := range headers {
		blockhash := h.Hash[:]
		raw, err := ix.Store.TxStore.Get(store.TxListKey(blockhash))
		var txids []types.Hash
		if err == nil {
			list, decErr := store.DecodeTxList(raw)
			if decErr != nil {
				return fmt.Errorf("decode tx list for %s: %w", h.Hash, decErr)
			}
			txids = list.Txids
		} else {
			// light mode never wrote an X row; refetch the block to get
			// its transaction ids instead.
			blk, fetchErr := ix.fetcherFor(h.Hash.String()).FetchBlock(h.Hash.String())
			if fetchErr != nil {
				return apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("refetch block %s for indexing", h.Hash), fetchErr)
			}
			for _, tx := range blk.Txs {
				txids = append(txids, tx.TxID())
			}
		}

		if err := ix.indexBlock(h, txids); err != nil {
			return fmt.Errorf("index block %s: %w", h.Hash, err)
		}
	}
	return nil
}

func (ix *Indexer) indexBlock(h store.HeaderEntry, txids []types.Hash) error {
	batch := ix.Store.History.NewBatch()

	for _, txid := range txids {
		if err := ix.indexTx(batch, h.Height, txid); err != nil {
			return err
		}
	}
	batch.Put(store.DoneKey(h.Hash[:]), nil)
	return batch.Commit()
}

func (ix *Indexer) indexTx(batch store.Batch, height uint32, txid types.Hash) error {
	// Index every output this transaction created (Funding events).
	err := ix.Store.TxStore.ScanPrefix(store.OutputKeyPrefix(txid[:]), func(key, value []byte) error {
		vout := outputVoutFromKey(key)
		row, decErr := store.DecodeTxOutRow(value)
		if decErr != nil {
			return decErr
		}
		colorID, underlying, colored := colorscript.Split(row.Script)
		scripthash := types.ScriptHash(underlying)

		if colorID.IsReissuable() {
			if _, pubErr := colorscript.ValidateReissuablePubkey(colorID); pubErr != nil {
				log.Indexer.Warn().Str("txid", txid.String()).Int("vout", vout).Err(pubErr).
					Msg("reissuable color id does not decode to a valid public key")
			}
		}

		info := store.HistoryInfo{
			Kind:    store.HistoryKindFunding,
			Txid:    txid,
			Vout:    uint32(vout),
			ColorID: colorID,
			Value:   row.Value,
		}
		batch.Put(store.HistoryKey(scripthash[:], height, info.Encode()), nil)
		if colored {
			coloredHash := types.ScriptHash(row.Script)
			batch.Put(store.HistoryKey(coloredHash[:], height, info.Encode()), nil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan outputs for %s: %w", txid, err)
	}

	// Reconstruct this transaction's inputs. In light mode the T row
	// was never written, so fall back to asking the daemon directly
	// for the raw transaction.
	rawTx, err := ix.Store.TxStore.Get(store.TxKey(txid[:]))
	if errors.Is(err, store.ErrKeyNotFound) {
		hexTx, rpcErr := ix.Daemon.RawTransaction(txid.String())
		if rpcErr != nil {
			return apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("fetch raw tx %s", txid), rpcErr)
		}
		rawTx, err = hex.DecodeString(hexTx)
	}
	if err != nil {
		return fmt.Errorf("load raw tx %s: %w", txid, err)
	}
	tx, err := wire.DecodeTx(rawTx)
	if err != nil {
		return fmt.Errorf("decode raw tx %s: %w", txid, err)
	}

	inputs := make([]types.Outpoint, 0, len(tx.Inputs))
	prevouts := make(map[types.Outpoint]wire.TxOut, len(tx.Inputs))
	for vin, in := range tx.Inputs {
		if in.PrevOut.TxID.IsZero() {
			continue // coinbase-style null prevout
		}
		inputs = append(inputs, in.PrevOut)

		prevRaw, err := ix.Store.TxStore.Get(store.OutputKey(in.PrevOut.TxID[:], uint16(in.PrevOut.Index)))
		if err != nil {
			return fmt.Errorf("lookup prev output %s: %w", in.PrevOut, err)
		}
		prevRow, err := store.DecodeTxOutRow(prevRaw)
		if err != nil {
			return fmt.Errorf("decode prev output %s: %w", in.PrevOut, err)
		}
		prevout := wire.TxOut{Value: prevRow.Value, Script: prevRow.Script}
		prevouts[in.PrevOut] = prevout

		colorID, underlying, colored := colorscript.Split(prevRow.Script)
		scripthash := types.ScriptHash(underlying)

		info := store.HistoryInfo{
			Kind:     store.HistoryKindSpending,
			Txid:     txid,
			Vout:     uint32(vin),
			PrevTxid: in.PrevOut.TxID,
			PrevVout: in.PrevOut.Index,
			ColorID:  colorID,
			Value:    prevRow.Value,
		}
		batch.Put(store.HistoryKey(scripthash[:], height, info.Encode()), nil)
		if colored {
			coloredHash := types.ScriptHash(prevRow.Script)
			batch.Put(store.HistoryKey(coloredHash[:], height, info.Encode()), nil)
		}
		batch.Put(store.SpendEdgeKey(in.PrevOut.TxID[:], uint16(in.PrevOut.Index), txid[:], uint16(vin)), nil)
	}

	colorindex.IndexConfirmedTx(batch, height, txid, inputs, tx.Outputs, prevouts)
	return nil
}

// outputVoutFromKey extracts the little-endian vout suffix appended
// by store.OutputKey to a scanned O-row key.
func outputVoutFromKey(key []byte) uint16 {
	n := len(key)
	return uint16(key[n-2]) | uint16(key[n-1])<<8
}
