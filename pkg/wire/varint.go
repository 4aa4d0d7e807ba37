package wire

import (
	"encoding/binary"
	"fmt"
)

// readVarInt decodes a Bitcoin-style CompactSize integer, returning
// the value and the number of bytes consumed.
func readVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("empty varint")
	}
	switch prefix := b[0]; {
	case prefix < 0xfd:
		return uint64(prefix), 1, nil
	case prefix == 0xfd:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("truncated varint")
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, nil
	case prefix == 0xfe:
		if len(b) < 5 {
			return 0, 0, fmt.Errorf("truncated varint")
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, nil
	default:
		if len(b) < 9 {
			return 0, 0, fmt.Errorf("truncated varint")
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, nil
	}
}

// appendVarInt appends the CompactSize encoding of v to buf.
func appendVarInt(buf []byte, v uint64) []byte {
	switch {
	case v < 0xfd:
		return append(buf, byte(v))
	case v <= 0xffff:
		tmp := make([]byte, 2)
		binary.LittleEndian.PutUint16(tmp, uint16(v))
		return append(append(buf, 0xfd), tmp...)
	case v <= 0xffffffff:
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, uint32(v))
		return append(append(buf, 0xfe), tmp...)
	default:
		tmp := make([]byte, 8)
		binary.LittleEndian.PutUint64(tmp, v)
		return append(append(buf, 0xff), tmp...)
	}
}
