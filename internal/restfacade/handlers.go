package restfacade

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/chainquery"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrTooPopular):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrConnection):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func scripthashParam(r *http.Request) (types.Hash, error) {
	return types.HexToHash(r.PathValue("hash"))
}

func (s *Server) tipHeight(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.headers.Tip()
	if !ok {
		writeErr(w, apperr.ErrNotFound)
		return
	}
	writeJSON(w, entry.Height)
}

func (s *Server) tipHash(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.headers.Tip()
	if !ok {
		writeErr(w, apperr.ErrNotFound)
		return
	}
	writeJSON(w, entry.Hash.String())
}

func (s *Server) blockHeightToHash(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.PathValue("height"), 10, 32)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "height", err))
		return
	}
	entry, ok := s.headers.ByHeight(uint32(height))
	if !ok {
		writeErr(w, apperr.ErrNotFound)
		return
	}
	writeJSON(w, entry.Hash.String())
}

func (s *Server) blockHeader(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "block hash", err))
		return
	}
	entry, ok := s.headers.ByHash(hash)
	if !ok {
		writeErr(w, apperr.ErrNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"hash":               entry.Hash.String(),
		"previous_blockhash": entry.PrevHash.String(),
		"height":             entry.Height,
		"header_hex":         hex.EncodeToString(entry.Raw),
		"median_time":        entry.MedianTime,
	})
}

func (s *Server) tx(w http.ResponseWriter, r *http.Request) {
	txid, err := types.HexToHash(r.PathValue("txid"))
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "txid", err))
		return
	}
	tx, block, err := s.chain.Tx(txid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"txid":      txid.String(),
		"hex":       hex.EncodeToString(tx.Serialize()),
		"version":   tx.Version,
		"locktime":  tx.LockTime,
		"blockhash": block.Hash.String(),
		"height":    block.Height,
	})
}

func (s *Server) txMerkleProof(w http.ResponseWriter, r *http.Request) {
	txid, err := types.HexToHash(r.PathValue("txid"))
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "txid", err))
		return
	}
	block, _, err := s.chain.Confirmed(txid)
	if err != nil {
		writeErr(w, err)
		return
	}
	proof, err := s.chain.GetMerkleblockProof(txid)
	if err != nil {
		writeErr(w, err)
		return
	}
	branch := make([]string, len(proof.Branch))
	for i, h := range proof.Branch {
		branch[i] = h.String()
	}
	writeJSON(w, map[string]interface{}{"block_height": block.Height, "merkle": branch, "pos": proof.Pos})
}

func (s *Server) scripthashBalance(w http.ResponseWriter, r *http.Request) {
	scripthash, err := scripthashParam(r)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "scripthash", err))
		return
	}
	chainStats, err := s.chain.Stats(scripthash)
	if err != nil {
		writeErr(w, err)
		return
	}
	mempoolStats := s.mempool.Stats(scripthash)

	colorIDs := make(map[types.ColorID]struct{})
	for id := range chainStats {
		colorIDs[id] = struct{}{}
	}
	for id := range mempoolStats {
		colorIDs[id] = struct{}{}
	}

	type balance struct {
		ColorID     *string `json:"color_id,omitempty"`
		Confirmed   int64   `json:"confirmed"`
		Unconfirmed int64   `json:"unconfirmed"`
	}
	out := make([]balance, 0, len(colorIDs))
	for id := range colorIDs {
		cs := chainStats[id]
		ms := mempoolStats[id]
		b := balance{
			Confirmed:   int64(cs.FundedTxoSum) - int64(cs.SpentTxoSum),
			Unconfirmed: int64(ms.FundedTxoSum) - int64(ms.SpentTxoSum),
		}
		if !id.IsDefault() {
			v := id.String()
			b.ColorID = &v
		}
		out = append(out, b)
	}
	writeJSON(w, out)
}

func (s *Server) scripthashHistory(w http.ResponseWriter, r *http.Request) {
	scripthash, err := scripthashParam(r)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "scripthash", err))
		return
	}
	confirmedTxids, err := s.chain.HistoryTxids(scripthash, s.txsLimit+1)
	if err != nil {
		writeErr(w, err)
		return
	}
	pendingTxids := s.mempool.HistoryTxids(scripthash, s.txsLimit+1)
	if len(confirmedTxids)+len(pendingTxids) > s.txsLimit {
		writeErr(w, apperr.Wrap(apperr.ErrTooPopular, "scripthash history", fmt.Errorf("exceeds configured limit")))
		return
	}

	type txRef struct {
		Txid   string `json:"txid"`
		Height int64  `json:"height"`
	}
	out := make([]txRef, 0, len(confirmedTxids)+len(pendingTxids))
	for _, txid := range confirmedTxids {
		block, _, err := s.chain.Confirmed(txid)
		if err != nil {
			writeErr(w, err)
			return
		}
		out = append(out, txRef{Txid: txid.String(), Height: int64(block.Height)})
	}
	for _, txid := range pendingTxids {
		out = append(out, txRef{Txid: txid.String(), Height: 0})
	}
	writeJSON(w, out)
}

func (s *Server) scripthashUtxo(w http.ResponseWriter, r *http.Request) {
	scripthash, err := scripthashParam(r)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "scripthash", err))
		return
	}
	confirmed, err := s.chain.Utxo(scripthash)
	if err != nil {
		writeErr(w, err)
		return
	}
	type utxo struct {
		Txid    string  `json:"txid"`
		Vout    uint32  `json:"vout"`
		Value   uint64  `json:"value"`
		Height  uint32  `json:"height"`
		ColorID *string `json:"color_id,omitempty"`
	}
	out := make([]utxo, 0, len(confirmed))
	for _, u := range confirmed {
		item := utxo{Txid: u.Outpoint.TxID.String(), Vout: u.Outpoint.Index, Value: u.Value, Height: u.Confirmed.Height}
		if !u.ColorID.IsDefault() {
			v := u.ColorID.String()
			item.ColorID = &v
		}
		out = append(out, item)
	}
	for _, u := range s.mempool.Utxo(scripthash) {
		item := utxo{Txid: u.Outpoint.TxID.String(), Vout: u.Outpoint.Index, Value: u.Value, Height: 0}
		if !u.ColorID.IsDefault() {
			v := u.ColorID.String()
			item.ColorID = &v
		}
		out = append(out, item)
	}
	writeJSON(w, out)
}

func (s *Server) feeEstimates(w http.ResponseWriter, r *http.Request) {
	targets := []int{1, 2, 6, 12, 24}
	out := make(map[string]float64, len(targets))
	for _, t := range targets {
		rate, err := s.daemon.EstimateSmartFee(t)
		if err != nil {
			continue
		}
		out[strconv.Itoa(t)] = rate
	}
	writeJSON(w, out)
}

func (s *Server) mempoolFeeHistogram(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mempool.BacklogStats().FeeHistogram)
}

// classifyTx and assetAt mirror internal/rpcserver's resolver of the
// same name: recursively classify a transaction's outputs via the
// first open-assets marker found, memoized per call. Kept as a
// separate copy rather than shared since internal/openassets stays
// storage-free and daemon-free; both transports fold the same
// ChainQuery-backed resolution on top of it independently.
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

func (s *Server) openassetsBalance(w http.ResponseWriter, r *http.Request) {
	scripthash, err := scripthashParam(r)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "scripthash", err))
		return
	}
	confirmed, err := s.chain.Utxo(scripthash)
	if err != nil {
		writeErr(w, err)
		return
	}
	memo := make(map[types.Hash][]*openassets.OpenAsset)
	balances := make(map[openassets.AssetID]int64)
	for _, u := range confirmed {
		asset, err := assetAt(s.chain, s.networkTag, u.Outpoint, memo)
		if err != nil {
			writeErr(w, err)
			return
		}
		if asset == nil {
			continue
		}
		balances[asset.AssetID] += int64(asset.Quantity)
	}
	type assetBalance struct {
		AssetID   string `json:"asset_id"`
		Confirmed int64  `json:"confirmed"`
	}
	out := make([]assetBalance, 0, len(balances))
	for id, sum := range balances {
		out = append(out, assetBalance{AssetID: id.String(), Confirmed: sum})
	}
	writeJSON(w, out)
}

func (s *Server) openassetsUtxo(w http.ResponseWriter, r *http.Request) {
	scripthash, err := scripthashParam(r)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "scripthash", err))
		return
	}
	confirmed, err := s.chain.Utxo(scripthash)
	if err != nil {
		writeErr(w, err)
		return
	}
	memo := make(map[types.Hash][]*openassets.OpenAsset)
	type coloredUtxo struct {
		Txid     string `json:"txid"`
		Vout     uint32 `json:"vout"`
		Value    uint64 `json:"value"`
		Height   uint32 `json:"height"`
		AssetID  string `json:"asset_id"`
		Quantity uint64 `json:"asset_quantity"`
	}
	out := make([]coloredUtxo, 0)
	for _, u := range confirmed {
		asset, err := assetAt(s.chain, s.networkTag, u.Outpoint, memo)
		if err != nil {
			writeErr(w, err)
			return
		}
		if asset == nil {
			continue
		}
		out = append(out, coloredUtxo{
			Txid: u.Outpoint.TxID.String(), Vout: u.Outpoint.Index, Value: u.Value, Height: u.Confirmed.Height,
			AssetID: asset.AssetID.String(), Quantity: asset.Quantity,
		})
	}
	writeJSON(w, out)
}

func (s *Server) colorStats(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(r.PathValue("color_id"))
	if err != nil || len(raw) != types.ColorIDSize {
		writeErr(w, apperr.Wrap(apperr.ErrInvalid, "color_id", fmt.Errorf("malformed")))
		return
	}
	var colorID types.ColorID
	copy(colorID[:], raw)

	stats, err := s.colors.Stats(colorID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"tx_count":             stats.TxCount,
		"issued_tx_count":      stats.IssuedTxCount,
		"transferred_tx_count": stats.TransferredTxCount,
		"burned_tx_count":      stats.BurnedTxCount,
		"issued_sum":           stats.IssuedSum,
		"transferred_sum":      stats.TransferredSum,
		"burned_sum":           stats.BurnedSum,
	})
}
