// Package colorscript splits a colored script into its color
// identifier and underlying script, per the open-assets colored
// output wire format:
//
//	<push 33 bytes> <color id (33 bytes)> <OP_COLOR 0xbc> <underlying script...>
//
// A script lacking this 35-byte header is uncolored.
package colorscript

import "github.com/tapyrus-index/utxoindexd/pkg/types"

// opPushColorID is the push opcode for a 33-byte immediate, matching
// the fixed-length color identifier payload.
const opPushColorID = 0x21 // OP_PUSHBYTES_33

// opColor marks the end of the color-identifier prefix.
const opColor = 0xbc

// headerLen is the length of the colored-script prefix:
// 1 push opcode + 33 color id bytes + 1 OP_COLOR opcode.
const headerLen = 1 + types.ColorIDSize + 1

// Split inspects script for a leading colored-script header. If
// present it returns the color identifier and the underlying script
// with the header stripped; otherwise it returns ok=false and the
// original script unchanged.
func Split(script []byte) (colorID types.ColorID, underlying []byte, ok bool) {
	if len(script) < headerLen {
		return types.ColorID{}, script, false
	}
	if script[0] != opPushColorID {
		return types.ColorID{}, script, false
	}
	if script[1+types.ColorIDSize] != opColor {
		return types.ColorID{}, script, false
	}
	var id types.ColorID
	copy(id[:], script[1:1+types.ColorIDSize])
	return id, script[headerLen:], true
}

// IsColored reports whether script carries a colored-script header.
func IsColored(script []byte) bool {
	_, _, ok := Split(script)
	return ok
}

// Strip returns the underlying script with any colored-script header
// removed; uncolored scripts are returned unchanged.
func Strip(script []byte) []byte {
	_, underlying, ok := Split(script)
	if !ok {
		return script
	}
	return underlying
}

// Wrap builds a colored script by prefixing underlying with id's header.
func Wrap(id types.ColorID, underlying []byte) []byte {
	out := make([]byte, 0, headerLen+len(underlying))
	out = append(out, opPushColorID)
	out = append(out, id[:]...)
	out = append(out, opColor)
	out = append(out, underlying...)
	return out
}
