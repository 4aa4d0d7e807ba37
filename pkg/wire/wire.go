// Package wire decodes the raw bytes a daemon hands back for blocks
// and transactions into Go structs the indexer can fold into rows.
// It is decode-only: no signature or proof-of-work validation, no
// block assembly.
//
// Block headers are treated as an opaque fixed-size preamble: version
// (4 bytes LE), previous block hash (32 bytes), merkle root (32
// bytes), time (4 bytes LE), and an 8-byte reserved trailer standing
// in for the signer-aggregate-signature material a tapyrus-family
// consensus engine would otherwise need to validate. That trailer is
// never inspected here; it is carried through verbatim in the
// `B|blockhash -> header bytes` row exactly as fetched, and the fixed
// preamble length is only used to locate where the transaction list
// begins within a raw block.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// HeaderSize is the fixed length of the opaque header preamble.
const HeaderSize = 4 + 32 + 32 + 4 + 8

// Header is the decoded subset of a block header this indexer needs:
// enough to drive the common-ancestor walk and to compute the
// median-time-past field of a header-list entry. Everything else is
// preserved only in Raw.
type Header struct {
	Version    int32
	PrevBlock  types.Hash
	MerkleRoot types.Hash
	Time       uint32
	Raw        []byte // the full HeaderSize-byte preamble, verbatim
}

// DecodeHeader parses the fixed-size header preamble from the front
// of raw, returning the header and the number of bytes consumed.
func DecodeHeader(raw []byte) (*Header, int, error) {
	if len(raw) < HeaderSize {
		return nil, 0, fmt.Errorf("wire: header too short: %d bytes", len(raw))
	}
	h := &Header{
		Version: int32(binary.LittleEndian.Uint32(raw[0:4])),
		Time:    binary.LittleEndian.Uint32(raw[68:72]),
		Raw:     append([]byte(nil), raw[:HeaderSize]...),
	}
	copy(h.PrevBlock[:], raw[4:36])
	copy(h.MerkleRoot[:], raw[36:68])
	return h, HeaderSize, nil
}

// Serialize re-encodes the header preamble.
func (h *Header) Serialize() []byte {
	if h.Raw != nil {
		return append([]byte(nil), h.Raw...)
	}
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	return buf
}

// Hash returns the double-SHA256 digest of the header preamble,
// byte-reversed to match conventional hex block-hash display order.
func (h *Header) Hash() types.Hash {
	return doubleSHA256Reversed(h.Serialize())
}

// Block is a decoded raw block: header preamble plus transactions.
type Block struct {
	Header *Header
	Txs    []*Tx
}

// DecodeBlock parses a full raw block: the header preamble, a varint
// transaction count, then that many transactions back to back.
func DecodeBlock(raw []byte) (*Block, error) {
	header, n, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	count, n2, err := readVarInt(raw[n:])
	if err != nil {
		return nil, fmt.Errorf("wire: tx count: %w", err)
	}
	offset := n + n2
	txs := make([]*Tx, 0, count)
	for i := uint64(0); i < count; i++ {
		tx, consumed, err := decodeTxAt(raw[offset:])
		if err != nil {
			return nil, fmt.Errorf("wire: tx %d: %w", i, err)
		}
		txs = append(txs, tx)
		offset += consumed
	}
	return &Block{Header: header, Txs: txs}, nil
}

// Weight approximates block weight as 4x its serialized byte length,
// consistent with the convention vsize = weight/4 used by the fee
// calculation (this indexer does not implement segwit discounting,
// matching the absence of a witness structure in Tx).
func (b *Block) Weight() int {
	total := HeaderSize + len(appendVarInt(nil, uint64(len(b.Txs))))
	for _, tx := range b.Txs {
		total += len(tx.Serialize())
	}
	return total * 4
}

func doubleSHA256Reversed(b []byte) types.Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	var out types.Hash
	for i := range second {
		out[i] = second[len(second)-1-i]
	}
	return out
}
