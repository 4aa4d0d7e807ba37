// Package chainquery implements the read-only operations over the
// store: history lookups, UTXO folding, per-color statistics, spend
// lookups, raw block reconstruction and merkle inclusion proofs.
// Every method is safe to call concurrently with
// internal/indexer appending new blocks, since it only ever reads
// rows and consults internal/store.HeaderList for best-chain
// membership.
package chainquery

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// ChainQuery answers read-only questions about confirmed chain state.
type ChainQuery struct {
	Store  *store.Store
	Daemon *daemon.Client

	UtxosLimit             int
	TxsLimit               int
	MinHistoryItemsToCache int
}

// New builds a ChainQuery over st, falling back to d for raw
// transaction/block lookups in light mode.
func New(st *store.Store, d *daemon.Client, cfg config.ChainQueryConfig) *ChainQuery {
	q := &ChainQuery{
		Store: st, Daemon: d,
		UtxosLimit: cfg.UtxosLimit, TxsLimit: cfg.TxsLimit,
		MinHistoryItemsToCache: cfg.MinHistoryItemsToCache,
	}
	if q.UtxosLimit <= 0 {
		q.UtxosLimit = 500_000
	}
	if q.TxsLimit <= 0 {
		q.TxsLimit = 50_000
	}
	if q.MinHistoryItemsToCache <= 0 {
		q.MinHistoryItemsToCache = 100
	}
	return q
}

// BlockID identifies a confirmed block by height and hash.
type BlockID struct {
	Height uint32
	Hash   types.Hash
}

// SpendingInput identifies the transaction input that spends a
// particular outpoint.
type SpendingInput struct {
	Txid      types.Hash
	Vin       uint32
	Confirmed BlockID
}

// errStopScan is an internal sentinel used to cut a ScanReverse walk
// short once the key no longer falls under the prefix being scanned;
// it never escapes this package.
var errStopScan = errors.New("chainquery: stop scan")

// scanReversePrefix walks kv in descending key order restricted to
// keys under prefix, stopping as soon as a key falls below it.
// ScanReverse itself has no prefix filter (only an upper bound), so
// this composes it with the same "seek then cut" idiom ScanPrefix
// uses for the forward direction.
func scanReversePrefix(kv store.KV, prefix []byte, fn func(key, value []byte) error) error {
	upper := append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xff}, 256)...)
	err := kv.ScanReverse(upper, func(key, value []byte) error {
		if !bytes.HasPrefix(key, prefix) {
			return errStopScan
		}
		return fn(key, value)
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return err
	}
	return nil
}

// heightByHash returns the height of hash if it's part of the best
// chain currently tracked in memory.
func (q *ChainQuery) heightByHash(hash types.Hash) (uint32, bool) {
	entry, ok := q.Store.Headers.ByHash(hash)
	if !ok {
		return 0, false
	}
	return entry.Height, true
}

// Confirmed reports the best-chain block a txid was confirmed in, for
// callers outside this package (colorindex's history scans) that need
// the same best-chain membership check HistoryTxids/Stats apply
// internally without duplicating the `ConfirmedIn` row walk.
func (q *ChainQuery) Confirmed(txid types.Hash) (BlockID, bool, error) {
	return q.txConfirmingBlock(txid)
}

// Tx returns a confirmed transaction and the block that confirms it,
// for callers that need the full decoded transaction rather than one
// output or one history row (open-assets resolution walks prevouts
// this way).
func (q *ChainQuery) Tx(txid types.Hash) (*wire.Tx, BlockID, error) {
	block, confirmed, err := q.txConfirmingBlock(txid)
	if err != nil {
		return nil, BlockID{}, err
	}
	if !confirmed {
		return nil, BlockID{}, apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("tx %s", txid), errors.New("not confirmed on best chain"))
	}
	tx, err := q.lookupTx(txid, block.Hash)
	if err != nil {
		return nil, BlockID{}, err
	}
	return tx, block, nil
}

// BlockTxids returns the ordered list of txids confirmed in blockhash,
// for blockchain.transaction.id_from_pos, falling back to the
// daemon's verbosity-1 getblock when the block's own `X` row was never
// written (light mode).
func (q *ChainQuery) BlockTxids(blockhash types.Hash) ([]types.Hash, error) {
	rawList, err := q.Store.TxStore.Get(store.TxListKey(blockhash[:]))
	if errors.Is(err, store.ErrKeyNotFound) {
		hexBlock, rpcErr := q.Daemon.Block(blockhash.String(), 1)
		if rpcErr != nil {
			return nil, apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("fetch block %s", blockhash), rpcErr)
		}
		var verbose struct {
			Tx []string `json:"tx"`
		}
		if jsonErr := json.Unmarshal([]byte(hexBlock), &verbose); jsonErr != nil {
			return nil, fmt.Errorf("decode verbose block %s: %w", blockhash, jsonErr)
		}
		out := make([]types.Hash, len(verbose.Tx))
		for i, hexTxid := range verbose.Tx {
			txid, parseErr := types.HexToHash(hexTxid)
			if parseErr != nil {
				return nil, fmt.Errorf("parse txid in block %s: %w", blockhash, parseErr)
			}
			out[i] = txid
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	list, err := store.DecodeTxList(rawList)
	if err != nil {
		return nil, fmt.Errorf("decode tx list for %s: %w", blockhash, err)
	}
	return list.Txids, nil
}

// txConfirmingBlock returns the best-chain block a txid was confirmed
// in, or ok=false if it isn't confirmed on the current best chain
// (unconfirmed, or confirmed on a branch that was since orphaned).
func (q *ChainQuery) txConfirmingBlock(txid types.Hash) (BlockID, bool, error) {
	var found BlockID
	var ok bool
	err := q.Store.TxStore.ScanPrefix(store.ConfirmedInKeyPrefix(txid[:]), func(key, _ []byte) error {
		blockhashBytes := key[1+types.HashSize:]
		var blockhash types.Hash
		copy(blockhash[:], blockhashBytes)
		if height, isBest := q.heightByHash(blockhash); isBest {
			found = BlockID{Height: height, Hash: blockhash}
			ok = true
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return BlockID{}, false, err
	}
	return found, ok, nil
}

// HistoryTxids returns up to limit distinct txids that touched
// scripthash, in ascending confirmation order, restricted to
// transactions confirmed on the current best chain.
func (q *ChainQuery) HistoryTxids(scripthash types.Hash, limit int) ([]types.Hash, error) {
	seen := make(map[types.Hash]bool)
	var out []types.Hash
	err := q.Store.History.ScanPrefix(store.HistoryKeyPrefix(scripthash[:]), func(key, _ []byte) error {
		if len(out) >= limit {
			return errStopScan
		}
		info, err := store.DecodeHistoryInfo(key[1+types.HashSize+4:])
		if err != nil {
			return fmt.Errorf("decode history row: %w", err)
		}
		if seen[info.Txid] {
			return nil
		}
		if _, confirmed, err := q.txConfirmingBlock(info.Txid); err != nil {
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

// HistoryEntry pairs a decoded transaction with the block that
// confirms it, the unit history() hands back to RPC/REST callers.
type HistoryEntry struct {
	Tx    *wire.Tx
	Block BlockID
}

// History returns confirmed transactions touching scripthash in
// descending confirmation order, resuming after lastSeenTxid when
// given, capped at limit.
func (q *ChainQuery) History(scripthash types.Hash, lastSeenTxid *types.Hash, limit int) ([]HistoryEntry, error) {
	seen := make(map[types.Hash]bool)
	skipping := lastSeenTxid != nil
	var out []HistoryEntry
	err := scanReversePrefix(q.Store.History, store.HistoryKeyPrefix(scripthash[:]), func(key, _ []byte) error {
		if len(out) >= limit {
			return errStopScan
		}
		info, err := store.DecodeHistoryInfo(key[1+types.HashSize+4:])
		if err != nil {
			return fmt.Errorf("decode history row: %w", err)
		}
		if seen[info.Txid] {
			return nil
		}
		seen[info.Txid] = true
		if skipping {
			if info.Txid == *lastSeenTxid {
				skipping = false
			}
			return nil
		}
		block, confirmed, err := q.txConfirmingBlock(info.Txid)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		tx, err := q.lookupTx(info.Txid, block.Hash)
		if err != nil {
			return fmt.Errorf("lookup tx %s: %w", info.Txid, err)
		}
		out = append(out, HistoryEntry{Tx: tx, Block: block})
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

// lookupTx decodes a confirmed transaction's raw bytes, falling back
// to the daemon in light mode where the T row was never written.
func (q *ChainQuery) lookupTx(txid types.Hash, blockhash types.Hash) (*wire.Tx, error) {
	raw, err := q.lookupRawTx(txid, blockhash)
	if err != nil {
		return nil, err
	}
	return wire.DecodeTx(raw)
}

func (q *ChainQuery) lookupRawTx(txid types.Hash, _ types.Hash) ([]byte, error) {
	raw, err := q.Store.TxStore.Get(store.TxKey(txid[:]))
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return nil, err
	}
	hexTx, rpcErr := q.Daemon.RawTransaction(txid.String())
	if rpcErr != nil {
		return nil, apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("fetch raw tx %s", txid), rpcErr)
	}
	return hex.DecodeString(hexTx)
}

// LookupTxOut returns the confirmed output at outpoint, regardless of
// whether it has since been spent (mempool prevout resolution needs
// to see it either way; spentness is checked separately).
func (q *ChainQuery) LookupTxOut(outpoint types.Outpoint) (wire.TxOut, bool, error) {
	raw, err := q.Store.TxStore.Get(store.OutputKey(outpoint.TxID[:], uint16(outpoint.Index)))
	if errors.Is(err, store.ErrKeyNotFound) {
		return wire.TxOut{}, false, nil
	}
	if err != nil {
		return wire.TxOut{}, false, err
	}
	row, err := store.DecodeTxOutRow(raw)
	if err != nil {
		return wire.TxOut{}, false, fmt.Errorf("decode txout row for %s: %w", outpoint, err)
	}
	return wire.TxOut{Value: row.Value, Script: row.Script}, true, nil
}

// LookupSpend finds the input that spends outpoint, if any, and if
// the spending transaction is confirmed on the best chain.
func (q *ChainQuery) LookupSpend(outpoint types.Outpoint) (*SpendingInput, error) {
	var result *SpendingInput
	err := scanReversePrefix(q.Store.History, store.SpendEdgeKeyPrefix(outpoint.TxID[:], uint16(outpoint.Index)), func(key, _ []byte) error {
		spendingTxid, vin, decErr := decodeSpendEdgeKey(key)
		if decErr != nil {
			return decErr
		}
		block, confirmed, err := q.txConfirmingBlock(spendingTxid)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		result = &SpendingInput{Txid: spendingTxid, Vin: uint32(vin), Confirmed: block}
		return errStopScan
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return result, nil
}

// decodeSpendEdgeKey pulls the spending txid and vin back out of an
// `S|funding_txid|vout|spending_txid|vin` key.
func decodeSpendEdgeKey(key []byte) (types.Hash, uint16, error) {
	want := 1 + types.HashSize + 2 + types.HashSize + 2
	if len(key) != want {
		return types.Hash{}, 0, fmt.Errorf("chainquery: malformed spend edge key (%d bytes)", len(key))
	}
	var spendingTxid types.Hash
	copy(spendingTxid[:], key[1+types.HashSize+2:1+types.HashSize+2+types.HashSize])
	vin := uint16(key[len(key)-2]) | uint16(key[len(key)-1])<<8
	return spendingTxid, vin, nil
}

// GetBlockRaw reconstructs the raw serialized block for hash: header
// bytes, a var-int transaction count, then each raw transaction, the
// same layout the daemon itself would hand back for getblock
// verbosity 0. In light mode it defers to the daemon directly.
func (q *ChainQuery) GetBlockRaw(hash types.Hash) ([]byte, error) {
	header, err := q.Store.TxStore.Get(store.HeaderKey(hash[:]))
	var rawList []byte
	if err == nil {
		// Light mode writes the `B` row but never the `X` row.
		rawList, err = q.Store.TxStore.Get(store.TxListKey(hash[:]))
	}
	if errors.Is(err, store.ErrKeyNotFound) {
		hexBlock, rpcErr := q.Daemon.Block(hash.String(), 0)
		if rpcErr != nil {
			return nil, apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("fetch block %s", hash), rpcErr)
		}
		return hex.DecodeString(hexBlock)
	}
	if err != nil {
		return nil, fmt.Errorf("load block %s: %w", hash, err)
	}
	list, err := store.DecodeTxList(rawList)
	if err != nil {
		return nil, fmt.Errorf("decode tx list for %s: %w", hash, err)
	}

	buf := append([]byte{}, header...)
	buf = append(buf, encodeVarInt(uint64(len(list.Txids)))...)
	for _, txid := range list.Txids {
		raw, err := q.lookupRawTx(txid, hash)
		if err != nil {
			return nil, fmt.Errorf("lookup raw tx %s in block %s: %w", txid, hash, err)
		}
		buf = append(buf, raw...)
	}
	return buf, nil
}

// encodeVarInt writes n as a Bitcoin/tapyrus-style CompactSize,
// matching the framing pkg/wire.DecodeBlock expects to read back.
func encodeVarInt(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		return []byte{0xfd, byte(n), byte(n >> 8)}
	case n <= 0xffffffff:
		return []byte{0xfe, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	default:
		return []byte{0xff,
			byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24),
			byte(n >> 32), byte(n >> 40), byte(n >> 48), byte(n >> 56)}
	}
}
