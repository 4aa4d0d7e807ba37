package colorscript

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// ValidateReissuablePubkey checks that a reissuable color identifier's
// 33 bytes decode as a point on the secp256k1 curve, the way any other
// compressed public key would. It is a structural check only: it says
// nothing about whether a reissuance transaction actually carries a
// valid signature for the key.
func ValidateReissuablePubkey(id types.ColorID) (*secp256k1.PublicKey, error) {
	if !id.IsReissuable() {
		return nil, fmt.Errorf("colorscript: color id tag %#x is not a reissuable pubkey tag", byte(id.Tag()))
	}
	pub, err := secp256k1.ParsePubKey(id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("colorscript: invalid reissuable color id: %w", err)
	}
	return pub, nil
}
