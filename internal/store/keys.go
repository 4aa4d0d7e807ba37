package store

import "encoding/binary"

// Row-key prefixes, one byte each. All integer key fields are
// little-endian unless noted.
const (
	prefixTx          byte = 'T' // txstore: txid -> rawtx
	prefixConfirmedIn byte = 'C' // txstore: txid|blockhash -> ∅ ; history: color id|height -> info
	prefixOutput      byte = 'O' // txstore: txid|vout -> serialized TxOut
	prefixHeader      byte = 'B' // txstore: blockhash -> header bytes
	prefixTxList      byte = 'X' // txstore: blockhash -> [txid,...]
	prefixBlockMeta   byte = 'M' // txstore: blockhash -> {tx_count,size,weight}
	prefixDone        byte = 'D' // txstore & history: blockhash -> ∅
	prefixCompactFlag byte = 'F' // txstore: ∅ -> ∅ (auto-compact-enabled marker)
	prefixTip         byte = 't' // txstore: ∅ -> tip blockhash

	prefixHistory    byte = 'H' // history: scripthash|height(BE) -> info
	prefixSpendEdge  byte = 'S' // history: funding_txid|vout|spending_txid|vin -> ∅
	prefixAddress    byte = 'a' // history: address-string -> ∅

	prefixUtxoCache   byte = 'U' // cache: scripthash -> (utxo map, blockhash)
	prefixAssetCache  byte = 'A' // cache: scripthash|color id -> (stats, blockhash)
	prefixColorCache  byte = 'z' // cache: 1+32 color id -> (colored stats, blockhash)
)

// TxKey builds the txstore `T|txid` key.
func TxKey(txid []byte) []byte {
	return append([]byte{prefixTx}, txid...)
}

// ConfirmedInKey builds the txstore `C|txid|blockhash` key.
func ConfirmedInKey(txid, blockhash []byte) []byte {
	out := make([]byte, 0, 1+len(txid)+len(blockhash))
	out = append(out, prefixConfirmedIn)
	out = append(out, txid...)
	out = append(out, blockhash...)
	return out
}

// ConfirmedInKeyPrefix builds a scan prefix matching every block a
// txid was confirmed in (ordinarily exactly one, except across a
// reorg that re-confirms it elsewhere before the old row is pruned).
func ConfirmedInKeyPrefix(txid []byte) []byte {
	return append([]byte{prefixConfirmedIn}, txid...)
}

// OutputKey builds the txstore `O|txid|vout` key. vout is encoded
// little-endian as a u16, matching the row layout's `vout(u16)` field.
func OutputKey(txid []byte, vout uint16) []byte {
	out := make([]byte, 0, 1+len(txid)+2)
	out = append(out, prefixOutput)
	out = append(out, txid...)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], vout)
	return append(out, v[:]...)
}

// OutputKeyPrefix builds a scan prefix matching every output of txid.
func OutputKeyPrefix(txid []byte) []byte {
	return append([]byte{prefixOutput}, txid...)
}

// HeaderKey builds the txstore `B|blockhash` key.
func HeaderKey(blockhash []byte) []byte {
	return append([]byte{prefixHeader}, blockhash...)
}

// TxListKey builds the txstore `X|blockhash` key.
func TxListKey(blockhash []byte) []byte {
	return append([]byte{prefixTxList}, blockhash...)
}

// BlockMetaKey builds the txstore `M|blockhash` key.
func BlockMetaKey(blockhash []byte) []byte {
	return append([]byte{prefixBlockMeta}, blockhash...)
}

// DoneKey builds a `D|blockhash` done marker key, used in both
// txstore (phase 1/ADD) and history (phase 2/INDEX).
func DoneKey(blockhash []byte) []byte {
	return append([]byte{prefixDone}, blockhash...)
}

// DoneKeyPrefix is the scan prefix used by crash recovery to rebuild
// added_blockhashes / indexed_blockhashes from `D|*` markers.
func DoneKeyPrefix() []byte {
	return []byte{prefixDone}
}

// CompactFlagKey builds the txstore `F` auto-compact-enabled marker key.
func CompactFlagKey() []byte {
	return []byte{prefixCompactFlag}
}

// TipKey builds the txstore `t` tip-blockhash key.
func TipKey() []byte {
	return []byte{prefixTip}
}

// HistoryKey builds the history `H|scripthash|height(BE)|info` key.
// height is big-endian so lexicographic key order matches height
// order, letting ScanPrefix/ScanReverse walk history chronologically.
func HistoryKey(scripthash []byte, height uint32, info []byte) []byte {
	out := make([]byte, 0, 1+len(scripthash)+4+len(info))
	out = append(out, prefixHistory)
	out = append(out, scripthash...)
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], height)
	out = append(out, h[:]...)
	return append(out, info...)
}

// HistoryKeyPrefix builds a scan prefix matching all history rows for
// a scripthash, in height order.
func HistoryKeyPrefix(scripthash []byte) []byte {
	return append([]byte{prefixHistory}, scripthash...)
}

// HistoryKeyHeight extracts the height field from an `H` row's key,
// letting a scan over HistoryKeyPrefix resume from a cached height
// without needing a second, height-bounded scan primitive: scripthash
// is always exactly HashSize bytes, so the height field sits at a
// fixed offset right after it regardless of the variable-length info
// suffix that follows.
func HistoryKeyHeight(key []byte) uint32 {
	const scripthashSize = 32
	return binary.BigEndian.Uint32(key[1+scripthashSize : 1+scripthashSize+4])
}

// ColorHistoryKey builds the history `C|1+32 color id|height(LE)|info`
// key. Unlike HistoryKey this uses little-endian height: ColorIndex
// always folds a color id's full issued/transferred/burned history in
// one pass, so the key only needs height present for uniqueness
// across blocks, not for big-endian scan ordering.
func ColorHistoryKey(colorID []byte, height uint32, info []byte) []byte {
	out := make([]byte, 0, 1+len(colorID)+4+len(info))
	out = append(out, prefixConfirmedIn)
	out = append(out, colorID...)
	var h [4]byte
	binary.LittleEndian.PutUint32(h[:], height)
	out = append(out, h[:]...)
	return append(out, info...)
}

// ColorHistoryKeyPrefix builds a scan prefix matching all history rows
// for a color id.
func ColorHistoryKeyPrefix(colorID []byte) []byte {
	return append([]byte{prefixConfirmedIn}, colorID...)
}

// SpendEdgeKey builds the history
// `S|funding_txid|vout|spending_txid|vin` key.
func SpendEdgeKey(fundingTxid []byte, vout uint16, spendingTxid []byte, vin uint16) []byte {
	out := make([]byte, 0, 1+len(fundingTxid)+2+len(spendingTxid)+2)
	out = append(out, prefixSpendEdge)
	out = append(out, fundingTxid...)
	var vo, vi [2]byte
	binary.LittleEndian.PutUint16(vo[:], vout)
	binary.LittleEndian.PutUint16(vi[:], vin)
	out = append(out, vo[:]...)
	out = append(out, spendingTxid...)
	return append(out, vi[:]...)
}

// SpendEdgeKeyPrefix builds a scan prefix matching every spend edge
// recorded for a given funding outpoint.
func SpendEdgeKeyPrefix(fundingTxid []byte, vout uint16) []byte {
	out := make([]byte, 0, 1+len(fundingTxid)+2)
	out = append(out, prefixSpendEdge)
	out = append(out, fundingTxid...)
	var vo [2]byte
	binary.LittleEndian.PutUint16(vo[:], vout)
	return append(out, vo[:]...)
}

// AddressKey builds the history `a|address-string` key (optional
// prefix-search index).
func AddressKey(address string) []byte {
	return append([]byte{prefixAddress}, []byte(address)...)
}

// UtxoCacheKey builds the cache `U|scripthash` key.
func UtxoCacheKey(scripthash []byte) []byte {
	return append([]byte{prefixUtxoCache}, scripthash...)
}

// AssetCacheKey builds the cache `A|scripthash|color id` key.
func AssetCacheKey(scripthash, colorID []byte) []byte {
	out := make([]byte, 0, 1+len(scripthash)+len(colorID))
	out = append(out, prefixAssetCache)
	out = append(out, scripthash...)
	return append(out, colorID...)
}

// AssetCacheKeyPrefix builds a scan prefix matching every per-color
// ScriptStatsCacheRow cached for a scripthash.
func AssetCacheKeyPrefix(scripthash []byte) []byte {
	return append([]byte{prefixAssetCache}, scripthash...)
}

// ColorStatsCacheKey builds the cache `z|1+32 color id` key.
func ColorStatsCacheKey(colorID []byte) []byte {
	return append([]byte{prefixColorCache}, colorID...)
}
