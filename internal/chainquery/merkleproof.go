package chainquery

import (
	"errors"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/merkle"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// GetMerkleblockProof builds a merkle inclusion proof for txid against
// the block that confirms it, for blockchain.transaction.get_merkle.
// A proof needs every sibling txid in the block, not just the one
// being proven; the list comes from BlockTxids, which reads the `X`
// row and, in light mode where that row is never written, asks the
// daemon for the block's txids instead.
func (q *ChainQuery) GetMerkleblockProof(txid types.Hash) (merkle.Proof, error) {
	block, confirmed, err := q.txConfirmingBlock(txid)
	if err != nil {
		return merkle.Proof{}, err
	}
	if !confirmed {
		return merkle.Proof{}, apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("tx %s", txid), errors.New("not confirmed on best chain"))
	}

	txids, err := q.BlockTxids(block.Hash)
	if err != nil {
		return merkle.Proof{}, fmt.Errorf("load tx list for block %s: %w", block.Hash, err)
	}

	pos := -1
	for i, id := range txids {
		if id == txid {
			pos = i
			break
		}
	}
	if pos < 0 {
		return merkle.Proof{}, apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("tx %s", txid), errors.New("not present in its own confirming block's tx list"))
	}

	proof, ok := merkle.Prove(txids, pos)
	if !ok {
		return merkle.Proof{}, fmt.Errorf("build merkle proof for %s: unexpected position %d", txid, pos)
	}
	return proof, nil
}
