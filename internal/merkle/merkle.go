// Package merkle builds merkle roots and inclusion proofs over a
// block's transaction ids, used by blockchain.transaction.get_merkle
// and blockchain.block.header's optional cp_height proof. Roots are
// computed by pairwise hashing with duplication of the odd element
// out; proofs additionally record the authentication path needed to
// recompute the root from a single leaf.
package merkle

import (
	"crypto/sha256"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// hashPair double-SHA256-hashes the concatenation of a and b, matching
// the pairwise step pkg/block/merkle.go uses (there via BLAKE3 through
// crypto.HashConcat; here via double-SHA256 to match the txid/header
// hash convention pkg/wire already committed to, so a computed root
// can be compared directly against a decoded header's MerkleRoot
// field without a second hash convention creeping in).
func hashPair(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	first := sha256.Sum256(buf[:])
	return sha256.Sum256(first[:])
}

// Root computes the merkle root of txids.
//
//   - 0 hashes: zero hash
//   - 1 hash: that hash
//   - otherwise: pairwise hash, duplicating the last element if odd,
//     recursing on the resulting layer until one hash remains
func Root(txids []types.Hash) types.Hash {
	if len(txids) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(txids))
	copy(level, txids)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

// Proof is an authentication path proving that the transaction at Pos
// is included under Root.
type Proof struct {
	Root   types.Hash
	Pos    int
	Branch []types.Hash // sibling hashes, leaf to root
}

// Prove builds an inclusion proof for the transaction at pos among txids.
func Prove(txids []types.Hash, pos int) (Proof, bool) {
	if pos < 0 || pos >= len(txids) {
		return Proof{}, false
	}
	level := make([]types.Hash, len(txids))
	copy(level, txids)
	idx := pos
	var branch []types.Hash

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := idx ^ 1
		branch = append(branch, level[siblingIdx])

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		level = next
		idx /= 2
	}
	return Proof{Root: level[0], Pos: pos, Branch: branch}, true
}

// Verify recomputes the root from leaf along branch and reports
// whether it matches the proof's recorded root.
func Verify(leaf types.Hash, proof Proof) bool {
	idx := proof.Pos
	cur := leaf
	for _, sibling := range proof.Branch {
		if idx%2 == 0 {
			cur = hashPair(cur, sibling)
		} else {
			cur = hashPair(sibling, cur)
		}
		idx /= 2
	}
	return cur == proof.Root
}
