package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/zeebo/blake3"
)

// TxOutRow is the value stored at `O|txid|vout`: a transaction
// output, serialized independently of the rest of its transaction so
// the indexing phase can resolve a spent previous output with a
// single point lookup rather than re-fetching and re-decoding the
// whole funding transaction.
type TxOutRow struct {
	Value  uint64
	Script []byte
}

func (r TxOutRow) Encode() []byte {
	e := &encoder{}
	e.putUint64(r.Value)
	e.putBytes(r.Script)
	return e.buf
}

func DecodeTxOutRow(b []byte) (TxOutRow, error) {
	d := newDecoder(b)
	value, err := d.getUint64()
	if err != nil {
		return TxOutRow{}, fmt.Errorf("decode TxOutRow: %w", err)
	}
	script, err := d.getBytes()
	if err != nil {
		return TxOutRow{}, fmt.Errorf("decode TxOutRow: %w", err)
	}
	return TxOutRow{Value: value, Script: script}, nil
}

// BlockMetaRow is the value stored at `M|blockhash`.
type BlockMetaRow struct {
	TxCount uint32
	Size    uint32
	Weight  uint32
}

// checksum derives a BLAKE3-256 digest over the row's fields. It guards
// against partial writes or bit rot in the txstore value rather than
// standing in for any hash the RPC surface exposes; those stay SHA-256
// (see internal/merkle and pkg/wire).
func (r BlockMetaRow) checksum() [32]byte {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.TxCount)
	binary.LittleEndian.PutUint32(buf[4:8], r.Size)
	binary.LittleEndian.PutUint32(buf[8:12], r.Weight)
	return blake3.Sum256(buf[:])
}

func (r BlockMetaRow) Encode() []byte {
	e := &encoder{}
	e.putUint32(r.TxCount)
	e.putUint32(r.Size)
	e.putUint32(r.Weight)
	sum := r.checksum()
	e.putFixed(sum[:])
	return e.buf
}

func DecodeBlockMetaRow(b []byte) (BlockMetaRow, error) {
	d := newDecoder(b)
	txCount, err := d.getUint32()
	if err != nil {
		return BlockMetaRow{}, fmt.Errorf("decode BlockMetaRow: %w", err)
	}
	size, err := d.getUint32()
	if err != nil {
		return BlockMetaRow{}, fmt.Errorf("decode BlockMetaRow: %w", err)
	}
	weight, err := d.getUint32()
	if err != nil {
		return BlockMetaRow{}, fmt.Errorf("decode BlockMetaRow: %w", err)
	}
	row := BlockMetaRow{TxCount: txCount, Size: size, Weight: weight}

	sum, err := d.getFixed(32)
	if err != nil {
		return BlockMetaRow{}, fmt.Errorf("decode BlockMetaRow: %w", err)
	}
	want := row.checksum()
	if !bytes.Equal(sum, want[:]) {
		return BlockMetaRow{}, fmt.Errorf("decode BlockMetaRow: checksum mismatch, row is corrupt")
	}
	return row, nil
}

// TxList is the value stored at `X|blockhash`: the ordered list of
// txids in a block.
type TxList struct {
	Txids []types.Hash
}

func (l TxList) Encode() []byte {
	e := &encoder{}
	e.putUint32(uint32(len(l.Txids)))
	for _, id := range l.Txids {
		e.putFixed(id[:])
	}
	return e.buf
}

func DecodeTxList(b []byte) (TxList, error) {
	d := newDecoder(b)
	n, err := d.getUint32()
	if err != nil {
		return TxList{}, fmt.Errorf("decode TxList: %w", err)
	}
	out := TxList{Txids: make([]types.Hash, 0, n)}
	for i := uint32(0); i < n; i++ {
		raw, err := d.getFixed(types.HashSize)
		if err != nil {
			return TxList{}, fmt.Errorf("decode TxList: %w", err)
		}
		var h types.Hash
		copy(h[:], raw)
		out.Txids = append(out.Txids, h)
	}
	return out, nil
}

// HistoryInfoKind distinguishes the two kinds of event an `H` row can
// record against a script hash.
type HistoryInfoKind uint32

const (
	HistoryKindFunding  HistoryInfoKind = 1
	HistoryKindSpending HistoryInfoKind = 2
)

// HistoryInfo is the `info` suffix appended after the height field of
// an `H|scripthash|height(BE)|info` key. The scripthash and
// height live in the key itself, and info is also part of the key
// (not a stored value) so distinct events touching the same script
// hash at the same height never collide: an `H` row's entire purpose
// is its own existence, ChainQuery.utxo/.stats fold it by decoding the
// key suffix back into a HistoryInfo.
//
// Funding populates Txid/Vout/ColorID/Value (the output being
// created). Spending populates Txid/Vout (as the spending input's
// vin index) plus PrevTxid/PrevVout/ColorID/Value identifying the
// output being spent.
type HistoryInfo struct {
	Kind     HistoryInfoKind
	Txid     types.Hash
	Vout     uint32
	PrevTxid types.Hash
	PrevVout uint32
	ColorID  types.ColorID
	Value    uint64
}

func (h HistoryInfo) Encode() []byte {
	e := &encoder{}
	e.putUint32(uint32(h.Kind))
	e.putFixed(h.Txid[:])
	e.putUint32(h.Vout)
	e.putFixed(h.ColorID[:])
	e.putUint64(h.Value)
	if h.Kind == HistoryKindSpending {
		e.putFixed(h.PrevTxid[:])
		e.putUint32(h.PrevVout)
	}
	return e.buf
}

func DecodeHistoryInfo(b []byte) (HistoryInfo, error) {
	d := newDecoder(b)
	kind, err := d.getUint32()
	if err != nil {
		return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
	}
	h := HistoryInfo{Kind: HistoryInfoKind(kind)}
	txid, err := d.getFixed(types.HashSize)
	if err != nil {
		return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
	}
	copy(h.Txid[:], txid)
	if h.Vout, err = d.getUint32(); err != nil {
		return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
	}
	colorID, err := d.getFixed(types.ColorIDSize)
	if err != nil {
		return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
	}
	copy(h.ColorID[:], colorID)
	if h.Value, err = d.getUint64(); err != nil {
		return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
	}
	if h.Kind == HistoryKindSpending {
		prevTxid, err := d.getFixed(types.HashSize)
		if err != nil {
			return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
		}
		copy(h.PrevTxid[:], prevTxid)
		if h.PrevVout, err = d.getUint32(); err != nil {
			return HistoryInfo{}, fmt.Errorf("decode HistoryInfo: %w", err)
		}
	}
	return h, nil
}

// ColorEventKind distinguishes the three kinds of event a `C` row can
// record against a color identifier.
type ColorEventKind uint32

const (
	ColorEventIssuing      ColorEventKind = 1
	ColorEventTransferring ColorEventKind = 2
	ColorEventBurning      ColorEventKind = 3
)

// ColorHistoryInfo is the `info` suffix of a
// `C|color id|height(LE)|info` row.
type ColorHistoryInfo struct {
	Kind  ColorEventKind
	Txid  types.Hash
	Value uint64
}

func (c ColorHistoryInfo) Encode() []byte {
	e := &encoder{}
	e.putUint32(uint32(c.Kind))
	e.putFixed(c.Txid[:])
	e.putUint64(c.Value)
	return e.buf
}

func DecodeColorHistoryInfo(b []byte) (ColorHistoryInfo, error) {
	d := newDecoder(b)
	kind, err := d.getUint32()
	if err != nil {
		return ColorHistoryInfo{}, fmt.Errorf("decode ColorHistoryInfo: %w", err)
	}
	txid, err := d.getFixed(types.HashSize)
	if err != nil {
		return ColorHistoryInfo{}, fmt.Errorf("decode ColorHistoryInfo: %w", err)
	}
	value, err := d.getUint64()
	if err != nil {
		return ColorHistoryInfo{}, fmt.Errorf("decode ColorHistoryInfo: %w", err)
	}
	var c ColorHistoryInfo
	c.Kind = ColorEventKind(kind)
	copy(c.Txid[:], txid)
	c.Value = value
	return c, nil
}

// UtxoCacheEntry is one unspent output tracked by a `U|scripthash`
// cache row.
type UtxoCacheEntry struct {
	Outpoint types.Outpoint
	Value    uint64
	Height   uint32
	ColorID  types.ColorID
}

// UtxoCacheRow is the value stored at `U|scripthash`: the scripthash's
// unspent set as of Blockhash, invalidated on any reorg that drops
// Blockhash from the best chain.
type UtxoCacheRow struct {
	Blockhash types.Hash
	Utxos     []UtxoCacheEntry
}

func (r UtxoCacheRow) Encode() []byte {
	e := &encoder{}
	e.putFixed(r.Blockhash[:])
	e.putUint32(uint32(len(r.Utxos)))
	for _, u := range r.Utxos {
		e.putFixed(u.Outpoint.TxID[:])
		e.putUint32(u.Outpoint.Index)
		e.putUint64(u.Value)
		e.putUint32(u.Height)
		e.putFixed(u.ColorID[:])
	}
	return e.buf
}

func DecodeUtxoCacheRow(b []byte) (UtxoCacheRow, error) {
	d := newDecoder(b)
	bh, err := d.getFixed(types.HashSize)
	if err != nil {
		return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow: %w", err)
	}
	n, err := d.getUint32()
	if err != nil {
		return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow: %w", err)
	}
	row := UtxoCacheRow{Utxos: make([]UtxoCacheEntry, 0, n)}
	copy(row.Blockhash[:], bh)
	for i := uint32(0); i < n; i++ {
		txid, err := d.getFixed(types.HashSize)
		if err != nil {
			return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow entry: %w", err)
		}
		index, err := d.getUint32()
		if err != nil {
			return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow entry: %w", err)
		}
		value, err := d.getUint64()
		if err != nil {
			return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow entry: %w", err)
		}
		height, err := d.getUint32()
		if err != nil {
			return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow entry: %w", err)
		}
		colorID, err := d.getFixed(types.ColorIDSize)
		if err != nil {
			return UtxoCacheRow{}, fmt.Errorf("decode UtxoCacheRow entry: %w", err)
		}
		var entry UtxoCacheEntry
		copy(entry.Outpoint.TxID[:], txid)
		entry.Outpoint.Index = index
		entry.Value = value
		entry.Height = height
		copy(entry.ColorID[:], colorID)
		row.Utxos = append(row.Utxos, entry)
	}
	return row, nil
}

// ScriptStatsCacheRow is the value stored at `A|scripthash|color id`:
// a per-color-identifier activity summary for a script hash (tx
// count, funded/spent output counts and sums) as of Blockhash,
// invalidated the same way UtxoCacheRow is when Blockhash drops off
// the best chain.
type ScriptStatsCacheRow struct {
	Blockhash      types.Hash
	TxCount        uint64
	FundedTxoCount uint64
	SpentTxoCount  uint64
	FundedTxoSum   uint64
	SpentTxoSum    uint64
}

func (r ScriptStatsCacheRow) Encode() []byte {
	e := &encoder{}
	e.putFixed(r.Blockhash[:])
	e.putUint64(r.TxCount)
	e.putUint64(r.FundedTxoCount)
	e.putUint64(r.SpentTxoCount)
	e.putUint64(r.FundedTxoSum)
	e.putUint64(r.SpentTxoSum)
	return e.buf
}

func DecodeScriptStatsCacheRow(b []byte) (ScriptStatsCacheRow, error) {
	d := newDecoder(b)
	bh, err := d.getFixed(types.HashSize)
	if err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	var row ScriptStatsCacheRow
	copy(row.Blockhash[:], bh)
	if row.TxCount, err = d.getUint64(); err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	if row.FundedTxoCount, err = d.getUint64(); err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	if row.SpentTxoCount, err = d.getUint64(); err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	if row.FundedTxoSum, err = d.getUint64(); err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	if row.SpentTxoSum, err = d.getUint64(); err != nil {
		return ScriptStatsCacheRow{}, fmt.Errorf("decode ScriptStatsCacheRow: %w", err)
	}
	return row, nil
}

// AssetStatsRow is the value stored at `z|color id`: the
// issued/transferred/burned tx-count and quantity breakdown ColorIndex
// maintains per color identifier, valid as of Blockhash and
// invalidated the same way ScriptStatsCacheRow is when Blockhash
// drops off the best chain. Despite the name this has nothing to do
// with ScriptStatsCacheRow's `A` rows (per-script, per-color
// ChainQuery.Stats activity counters); the two caches answer
// different questions and happen to share a "confirmed totals as of a
// blockhash" shape.
type AssetStatsRow struct {
	Blockhash           types.Hash
	TxCount             uint64
	IssuedTxCount       uint64
	TransferredTxCount  uint64
	BurnedTxCount       uint64
	IssuedSum           uint64
	TransferredSum      uint64
	BurnedSum           uint64
}

func (r AssetStatsRow) Encode() []byte {
	e := &encoder{}
	e.putFixed(r.Blockhash[:])
	e.putUint64(r.TxCount)
	e.putUint64(r.IssuedTxCount)
	e.putUint64(r.TransferredTxCount)
	e.putUint64(r.BurnedTxCount)
	e.putUint64(r.IssuedSum)
	e.putUint64(r.TransferredSum)
	e.putUint64(r.BurnedSum)
	return e.buf
}

func DecodeAssetStatsRow(b []byte) (AssetStatsRow, error) {
	d := newDecoder(b)
	bh, err := d.getFixed(types.HashSize)
	if err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	var row AssetStatsRow
	copy(row.Blockhash[:], bh)
	if row.TxCount, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.IssuedTxCount, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.TransferredTxCount, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.BurnedTxCount, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.IssuedSum, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.TransferredSum, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	if row.BurnedSum, err = d.getUint64(); err != nil {
		return AssetStatsRow{}, fmt.Errorf("decode AssetStatsRow: %w", err)
	}
	return row, nil
}
