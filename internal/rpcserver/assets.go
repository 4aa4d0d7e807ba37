package rpcserver

import (
	"fmt"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// classifyTx computes the open-assets classification of every output
// of tx, mirroring get_open_assets_colored_outputs: it scans the
// outputs for the first marker, recursively classifies every input's
// previous output, and hands the result to openassets.ComputeAssets.
// A transaction carrying no marker output is entirely uncolored.
//
// memo caches each txid's classification across a whole handler call
// rather than re-resolving every prevout independently.
func classifyTx(chain *chainquery.ChainQuery, tag openassets.NetworkTag, tx *wire.Tx, memo map[types.Hash][]*openassets.OpenAsset) ([]*openassets.OpenAsset, error) {
	txid := tx.TxID()
	if cached, ok := memo[txid]; ok {
		return cached, nil
	}

	scripts := make([][]byte, len(tx.Outputs))
	for i, out := range tx.Outputs {
		scripts[i] = out.Script
	}
	markerIndex, marker, found := openassets.FindMarker(scripts)
	if !found {
		result := make([]*openassets.OpenAsset, len(tx.Outputs))
		memo[txid] = result
		return result, nil
	}

	prevOuts := make([]openassets.PrevOut, len(tx.Inputs))
	for i, in := range tx.Inputs {
		prevTx, _, err := chain.Tx(in.PrevOut.TxID)
		if err != nil {
			return nil, err
		}
		if int(in.PrevOut.Index) >= len(prevTx.Outputs) {
			return nil, apperr.Wrap(apperr.ErrInvalid, "open-assets: prevout index out of range", fmt.Errorf("%s", in.PrevOut))
		}
		prevClassified, err := classifyTx(chain, tag, prevTx, memo)
		if err != nil {
			return nil, err
		}
		prevOuts[i] = openassets.PrevOut{
			Script: prevTx.Outputs[in.PrevOut.Index].Script,
			Asset:  prevClassified[in.PrevOut.Index],
		}
	}

	result, err := openassets.ComputeAssets(prevOuts, markerIndex, len(tx.Outputs), marker.Quantities, tag, marker.Metadata)
	if err != nil {
		return nil, err
	}
	memo[txid] = result
	return result, nil
}

// assetAt resolves the open-assets classification of a single
// outpoint, fetching and classifying its confirming transaction.
func assetAt(chain *chainquery.ChainQuery, tag openassets.NetworkTag, outpoint types.Outpoint, memo map[types.Hash][]*openassets.OpenAsset) (*openassets.OpenAsset, error) {
	tx, _, err := chain.Tx(outpoint.TxID)
	if err != nil {
		return nil, err
	}
	classified, err := classifyTx(chain, tag, tx, memo)
	if err != nil {
		return nil, err
	}
	if int(outpoint.Index) >= len(classified) {
		return nil, nil
	}
	return classified[outpoint.Index], nil
}
