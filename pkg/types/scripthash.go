package types

import "crypto/sha256"

// ScriptHash derives the history index key for an output script: the
// SHA-256 digest of the script, byte-reversed to match the Electrum
// protocol's scripthash convention so blockchain.scripthash.* RPC
// clients can compute the same value independently from a scriptPubKey.
func ScriptHash(script []byte) Hash {
	sum := sha256.Sum256(script)
	var out Hash
	for i := range sum {
		out[i] = sum[len(sum)-1-i]
	}
	return out
}
