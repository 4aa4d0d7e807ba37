package rpcserver

import (
	"crypto/sha256"
	"fmt"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// maxHeaders caps blockchain.block.headers' count parameter.
const maxHeaders = 2016

// ElectrumHeight encodes a transaction's confirmation state the way
// Electrum-style clients expect it: a confirmed tx reports its real
// block height; an unconfirmed tx with no unconfirmed parent reports
// 0; an unconfirmed tx spending another unconfirmed tx's output
// reports -1.
func ElectrumHeight(confirmed bool, height uint32, hasUnconfirmedParents bool) int64 {
	if confirmed {
		return int64(height)
	}
	if hasUnconfirmedParents {
		return -1
	}
	return 0
}

// HistoryTxHeight pairs a txid with its Electrum height encoding, the
// unit statusHash folds over.
type HistoryTxHeight struct {
	Txid   types.Hash
	Height int64
}

// statusHash reproduces get_status_hash: nil if history is empty,
// otherwise SHA-256 over the concatenation, for each entry in order,
// of the literal string "{txid}:{height}:".
func statusHash(history []HistoryTxHeight) []byte {
	if len(history) == 0 {
		return nil
	}
	h := sha256.New()
	for _, entry := range history {
		fmt.Fprintf(h, "%s:%d:", entry.Txid, entry.Height)
	}
	return h.Sum(nil)
}
