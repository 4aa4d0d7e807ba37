package colorscript

import (
	"encoding/hex"
	"testing"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

func TestValidateReissuablePubkey_ValidPoint(t *testing.T) {
	// secp256k1 generator point G, compressed.
	b, _ := hex.DecodeString("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	var id types.ColorID
	copy(id[:], b)

	pub, err := ValidateReissuablePubkey(id)
	if err != nil {
		t.Fatalf("ValidateReissuablePubkey: %v", err)
	}
	if pub == nil {
		t.Fatal("expected a non-nil public key")
	}
}

func TestValidateReissuablePubkey_FieldOverflow(t *testing.T) {
	var id types.ColorID
	id[0] = byte(types.TokenTypeReissuableEven)
	for i := 1; i < len(id); i++ {
		id[i] = 0xff // exceeds the secp256k1 field prime, never a valid x-coordinate
	}

	if _, err := ValidateReissuablePubkey(id); err == nil {
		t.Fatal("expected error for x-coordinate exceeding the field prime")
	}
}

func TestValidateReissuablePubkey_WrongTag(t *testing.T) {
	id := types.NewColorID(types.TokenTypeColored, [32]byte{0x01})

	if _, err := ValidateReissuablePubkey(id); err == nil {
		t.Fatal("expected error for non-reissuable tag")
	}
}
