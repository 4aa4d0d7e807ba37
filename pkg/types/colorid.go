package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ColorIDSize is the length of a color identifier in bytes: one
// token-type tag byte plus a 32-byte payload.
const ColorIDSize = 33

// TokenType is the one-byte tag prefixing a color identifier's payload.
type TokenType byte

const (
	// TokenTypeReserved is the tag value of the reserved "default"
	// color identifier, which denotes an uncolored output wherever a
	// color id slot is structurally required (e.g. a cache row key).
	TokenTypeReserved TokenType = 0x00
	TokenTypeColored  TokenType = 0xc1

	// TokenTypeReissuableEven and TokenTypeReissuableOdd tag a
	// reissuable color identifier, whose 33 bytes are themselves a
	// compressed secp256k1 public key rather than a script digest: the
	// tag byte doubles as the key's parity prefix (0x02 for an even Y
	// coordinate, 0x03 for odd). Reissuing under this color requires a
	// signature from the corresponding private key.
	TokenTypeReissuableEven TokenType = 0x02
	TokenTypeReissuableOdd  TokenType = 0x03
)

// ColorID is a 33-byte open-assets color identifier: a 1-byte
// token-type tag and a 32-byte payload.
type ColorID [ColorIDSize]byte

// DefaultColorID is the reserved all-zero color identifier denoting
// "uncolored" wherever a color id slot is structurally required.
var DefaultColorID = ColorID{}

// IsDefault reports whether c is the reserved uncolored sentinel.
func (c ColorID) IsDefault() bool {
	return c == DefaultColorID
}

// Tag returns the one-byte token-type tag.
func (c ColorID) Tag() TokenType {
	return TokenType(c[0])
}

// IsReissuable reports whether c's tag marks it as a reissuable color
// identifier, i.e. one whose bytes should decode as a compressed
// secp256k1 public key.
func (c ColorID) IsReissuable() bool {
	tag := c.Tag()
	return tag == TokenTypeReissuableEven || tag == TokenTypeReissuableOdd
}

// Payload returns the 32-byte payload following the tag.
func (c ColorID) Payload() [32]byte {
	var p [32]byte
	copy(p[:], c[1:])
	return p
}

// NewColorID builds a color identifier from a tag and a 32-byte payload.
func NewColorID(tag TokenType, payload [32]byte) ColorID {
	var c ColorID
	c[0] = byte(tag)
	copy(c[1:], payload[:])
	return c
}

// String returns the hex-encoded color identifier.
func (c ColorID) String() string {
	return hex.EncodeToString(c[:])
}

// Bytes returns a copy of the color identifier as a byte slice.
func (c ColorID) Bytes() []byte {
	b := make([]byte, ColorIDSize)
	copy(b, c[:])
	return b
}

// MarshalJSON encodes the color identifier as a hex string.
func (c ColorID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a hex string into a color identifier.
func (c *ColorID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = ColorID{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid color id hex: %w", err)
	}
	if len(decoded) != ColorIDSize {
		return fmt.Errorf("color id must be %d bytes, got %d", ColorIDSize, len(decoded))
	}
	copy(c[:], decoded)
	return nil
}

// HexToColorID converts a hex string to a ColorID.
func HexToColorID(s string) (ColorID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ColorID{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != ColorIDSize {
		return ColorID{}, fmt.Errorf("color id must be %d bytes, got %d", ColorIDSize, len(b))
	}
	var c ColorID
	copy(c[:], b)
	return c, nil
}
