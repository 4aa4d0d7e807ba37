package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// TxIn is a decoded transaction input. Script is the raw scriptSig
// bytes; this indexer never interprets signatures, so no separate
// Signature/PubKey fields are kept.
type TxIn struct {
	PrevOut  types.Outpoint
	Script   []byte
	Sequence uint32
}

// TxOut is a decoded transaction output. Script is the raw output
// script, still carrying any colored-script header (pkg/colorscript
// splits that out on demand); this indexer folds colored outputs by
// inspecting Script directly rather than eagerly decoding a color id
// into the struct, so a TxOut round-trips byte-for-byte through
// Serialize regardless of whether it is colored.
type TxOut struct {
	Value  uint64
	Script []byte
}

// Tx is a decoded transaction.
type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32

	raw []byte // cached serialization, set by DecodeTx/decodeTxAt
}

// DecodeTx parses a single transaction from raw, erroring if trailing
// bytes remain.
func DecodeTx(raw []byte) (*Tx, error) {
	tx, n, err := decodeTxAt(raw)
	if err != nil {
		return nil, err
	}
	if n != len(raw) {
		return nil, fmt.Errorf("wire: %d trailing bytes after transaction", len(raw)-n)
	}
	return tx, nil
}

func decodeTxAt(raw []byte) (*Tx, int, error) {
	if len(raw) < 4 {
		return nil, 0, fmt.Errorf("wire: truncated tx version")
	}
	start := 0
	tx := &Tx{Version: binary.LittleEndian.Uint32(raw[0:4])}
	off := 4

	inCount, n, err := readVarInt(raw[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("wire: input count: %w", err)
	}
	off += n
	tx.Inputs = make([]TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, n, err := decodeTxIn(raw[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("wire: input %d: %w", i, err)
		}
		tx.Inputs = append(tx.Inputs, in)
		off += n
	}

	outCount, n, err := readVarInt(raw[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("wire: output count: %w", err)
	}
	off += n
	tx.Outputs = make([]TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, n, err := decodeTxOut(raw[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("wire: output %d: %w", i, err)
		}
		tx.Outputs = append(tx.Outputs, out)
		off += n
	}

	if len(raw) < off+4 {
		return nil, 0, fmt.Errorf("wire: truncated tx locktime")
	}
	tx.LockTime = binary.LittleEndian.Uint32(raw[off : off+4])
	off += 4

	tx.raw = append([]byte(nil), raw[start:off]...)
	return tx, off, nil
}

func decodeTxIn(raw []byte) (TxIn, int, error) {
	if len(raw) < 36 {
		return TxIn{}, 0, fmt.Errorf("truncated prevout")
	}
	var in TxIn
	copy(in.PrevOut.TxID[:], raw[0:32])
	in.PrevOut.Index = binary.LittleEndian.Uint32(raw[32:36])
	off := 36

	scriptLen, n, err := readVarInt(raw[off:])
	if err != nil {
		return TxIn{}, 0, fmt.Errorf("script length: %w", err)
	}
	off += n
	if uint64(len(raw)-off) < scriptLen {
		return TxIn{}, 0, fmt.Errorf("truncated script")
	}
	in.Script = append([]byte(nil), raw[off:off+int(scriptLen)]...)
	off += int(scriptLen)

	if len(raw) < off+4 {
		return TxIn{}, 0, fmt.Errorf("truncated sequence")
	}
	in.Sequence = binary.LittleEndian.Uint32(raw[off : off+4])
	off += 4
	return in, off, nil
}

func decodeTxOut(raw []byte) (TxOut, int, error) {
	if len(raw) < 8 {
		return TxOut{}, 0, fmt.Errorf("truncated value")
	}
	var out TxOut
	out.Value = binary.LittleEndian.Uint64(raw[0:8])
	off := 8

	scriptLen, n, err := readVarInt(raw[off:])
	if err != nil {
		return TxOut{}, 0, fmt.Errorf("script length: %w", err)
	}
	off += n
	if uint64(len(raw)-off) < scriptLen {
		return TxOut{}, 0, fmt.Errorf("truncated script")
	}
	out.Script = append([]byte(nil), raw[off:off+int(scriptLen)]...)
	off += int(scriptLen)
	return out, off, nil
}

// Serialize re-encodes the transaction to its wire bytes.
func (tx *Tx) Serialize() []byte {
	if tx.raw != nil {
		return append([]byte(nil), tx.raw...)
	}
	var buf []byte
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, tx.Version)
	buf = append(buf, hdr...)

	buf = appendVarInt(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		idx := make([]byte, 4)
		binary.LittleEndian.PutUint32(idx, in.PrevOut.Index)
		buf = append(buf, idx...)
		buf = appendVarInt(buf, uint64(len(in.Script)))
		buf = append(buf, in.Script...)
		seq := make([]byte, 4)
		binary.LittleEndian.PutUint32(seq, in.Sequence)
		buf = append(buf, seq...)
	}

	buf = appendVarInt(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		val := make([]byte, 8)
		binary.LittleEndian.PutUint64(val, out.Value)
		buf = append(buf, val...)
		buf = appendVarInt(buf, uint64(len(out.Script)))
		buf = append(buf, out.Script...)
	}

	lt := make([]byte, 4)
	binary.LittleEndian.PutUint32(lt, tx.LockTime)
	buf = append(buf, lt...)
	return buf
}

// TxID returns the double-SHA256 digest of the transaction's
// serialized bytes, byte-reversed to match conventional hex txid
// display order (the same convention Header.Hash uses).
func (tx *Tx) TxID() types.Hash {
	return doubleSHA256Reversed(tx.Serialize())
}

// VSize returns the virtual size in vbytes. This indexer's Tx has no
// witness structure, so vsize is simply the serialized byte length.
// Fee-rate calculations use this directly.
func (tx *Tx) VSize() int {
	return len(tx.Serialize())
}
