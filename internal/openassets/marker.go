package openassets

import (
	"errors"
)

// markerMagic is the two-byte "OA" tag opening every open-assets
// marker payload, immediately following the OP_RETURN push.
var markerMagic = [2]byte{0x4f, 0x41}

const opReturn = 0x6a

var (
	errBadMagic     = errors.New("missing open-assets marker magic")
	errTruncatedLEB = errors.New("truncated LEB128 varint")
)

// Marker is a parsed open-assets marker output payload: how many
// units of the issued/transferred asset each output to its right
// carries, plus an opaque metadata blob shared by all of them.
type Marker struct {
	Quantities []uint64
	Metadata   []byte
}

// ParseMarker recognizes an OP_RETURN output carrying an open-assets
// marker payload (`OP_RETURN <push> "OA" <version uint16 LE>
// <count:leb128> <quantities:leb128...> <metadata-len:leb128>
// <metadata>`) and decodes its quantities and metadata. ok is false
// for any script that isn't a marker output at all (found by scanning
// every output of a transaction for the first one that parses).
func ParseMarker(script []byte) (Marker, bool) {
	payload, ok := markerPayload(script)
	if !ok {
		return Marker{}, false
	}
	m, err := decodeMarkerPayload(payload)
	if err != nil {
		return Marker{}, false
	}
	return m, true
}

// markerPayload strips the OP_RETURN opcode and push-length prefix,
// returning the pushed bytes. Only single-byte push-length encodings
// (pushes up to 75 bytes, which every real marker payload fits
// within) are recognized; anything else is not a marker.
func markerPayload(script []byte) ([]byte, bool) {
	if len(script) < 2 || script[0] != opReturn {
		return nil, false
	}
	pushLen := int(script[1])
	if pushLen == 0 || pushLen > 75 {
		return nil, false
	}
	if len(script) != 2+pushLen {
		return nil, false
	}
	return script[2:], true
}

func decodeMarkerPayload(payload []byte) (Marker, error) {
	if len(payload) < 4 || payload[0] != markerMagic[0] || payload[1] != markerMagic[1] {
		return Marker{}, errBadMagic
	}
	// payload[2:4] is the version (uint16 LE); this indexer doesn't
	// gate behavior on it, only the original reference client does.
	rest := payload[4:]

	count, n, err := decodeLEB128(rest)
	if err != nil {
		return Marker{}, err
	}
	rest = rest[n:]

	quantities := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		q, n, err := decodeLEB128(rest)
		if err != nil {
			return Marker{}, err
		}
		quantities = append(quantities, q)
		rest = rest[n:]
	}

	metaLen, n, err := decodeLEB128(rest)
	if err != nil {
		return Marker{}, err
	}
	rest = rest[n:]
	if uint64(len(rest)) < metaLen {
		return Marker{}, errTruncatedLEB
	}
	metadata := append([]byte(nil), rest[:metaLen]...)
	return Marker{Quantities: quantities, Metadata: metadata}, nil
}

// decodeLEB128 reads an unsigned LEB128 varint from the front of b,
// returning its value and the number of bytes consumed.
func decodeLEB128(b []byte) (uint64, int, error) {
	var value uint64
	var shift uint
	for i, c := range b {
		value |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, errTruncatedLEB
		}
	}
	return 0, 0, errTruncatedLEB
}

// FindMarker scans a transaction's output scripts in order and
// returns the index and parsed payload of the first marker output
// found, mirroring get_open_assets_colored_outputs's linear scan.
func FindMarker(outputScripts [][]byte) (index int, marker Marker, ok bool) {
	for i, script := range outputScripts {
		if m, found := ParseMarker(script); found {
			return i, m, true
		}
	}
	return 0, Marker{}, false
}
