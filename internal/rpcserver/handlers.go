package rpcserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/internal/merkle"
	"github.com/tapyrus-index/utxoindexd/internal/openassets"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// dispatch routes a request to the matching handler by method name.
// Unknown methods, and any colored-variant method when
// EnableColoredMethods is off, return an error rather than a result.
func (c *connection) dispatch(method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "blockchain.block.header":
		return c.blockHeader(params)
	case "blockchain.block.headers":
		return c.blockHeaders(params)
	case "blockchain.estimatefee":
		return c.estimateFee(params)
	case "blockchain.headers.subscribe":
		return c.subscribeHeaders()
	case "blockchain.relayfee":
		return c.relayFee()
	case "blockchain.scripthash.get_balance":
		return c.scripthashGetBalance(params)
	case "blockchain.scripthash.get_history":
		return c.scripthashGetHistory(params)
	case "blockchain.scripthash.listunspent":
		return c.scripthashListUnspent(params)
	case "blockchain.scripthash.subscribe":
		return c.scripthashSubscribe(params)
	case "blockchain.transaction.broadcast":
		return c.transactionBroadcast(params)
	case "blockchain.transaction.get":
		return c.transactionGet(params)
	case "blockchain.transaction.get_merkle":
		return c.transactionGetMerkle(params)
	case "blockchain.transaction.id_from_pos":
		return c.transactionIDFromPos(params)
	case "mempool.get_fee_histogram":
		return c.mempoolFeeHistogram()
	case "server.banner":
		return c.srv.cfg.Banner, nil
	case "server.donation_address":
		return nil, nil
	case "server.peers.subscribe":
		return []interface{}{}, nil
	case "server.ping":
		return nil, nil
	case "server.version":
		return []string{agentName, protocolVersion}, nil

	case "blockchain.scripthash.listcoloredunspent":
		if !c.srv.cfg.EnableColoredMethods {
			break
		}
		return c.scripthashListColoredUnspent(params)
	case "blockchain.scripthash.listuncoloredunspent":
		if !c.srv.cfg.EnableColoredMethods {
			break
		}
		return c.scripthashListUncoloredUnspent(params)
	case "openassets.scripthash.get_balance":
		if !c.srv.cfg.EnableColoredMethods {
			break
		}
		return c.openassetsScripthashGetBalance(params)
	case "openassets.scripthash.listunspent":
		if !c.srv.cfg.EnableColoredMethods {
			break
		}
		return c.openassetsScripthashListUnspent(params)
	case "openassets.color.stats":
		if !c.srv.cfg.EnableColoredMethods {
			break
		}
		return c.openassetsColorStats(params)
	}
	return nil, fmt.Errorf("unknown method %q", method)
}

func scripthashParam(params []json.RawMessage, i int) (types.Hash, error) {
	s, err := stringParam(params, i, "script_hash")
	if err != nil {
		return types.Hash{}, err
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("bad script_hash: %w", err)
	}
	return h, nil
}

func (c *connection) blockHeader(params []json.RawMessage) (interface{}, error) {
	height, err := intParam(params, 0, "height")
	if err != nil {
		return nil, err
	}
	cpHeight, err := intParamOr(params, 1, "cp_height", 0)
	if err != nil {
		return nil, err
	}
	entry, ok := c.srv.headers.ByHeight(uint32(height))
	if !ok {
		return nil, apperr.ErrNotFound
	}
	rawHex := hex.EncodeToString(entry.Raw)
	if cpHeight == 0 {
		return rawHex, nil
	}
	branch, root, err := c.headerMerkleProof(uint32(height), uint32(cpHeight))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"header": rawHex, "root": root, "branch": branch}, nil
}

func (c *connection) blockHeaders(params []json.RawMessage) (interface{}, error) {
	start, err := intParam(params, 0, "start_height")
	if err != nil {
		return nil, err
	}
	count, err := intParam(params, 1, "count")
	if err != nil {
		return nil, err
	}
	if count > maxHeaders {
		count = maxHeaders
	}
	cpHeight, err := intParamOr(params, 2, "cp_height", 0)
	if err != nil {
		return nil, err
	}

	var raws []string
	for h := start; h < start+count; h++ {
		entry, ok := c.srv.headers.ByHeight(uint32(h))
		if !ok {
			break
		}
		raws = append(raws, hex.EncodeToString(entry.Raw))
	}

	result := map[string]interface{}{
		"count": len(raws),
		"hex":   strings.Join(raws, ""),
		"max":   maxHeaders,
	}
	if count == 0 || cpHeight == 0 || len(raws) == 0 {
		return result, nil
	}
	branch, root, err := c.headerMerkleProof(uint32(start+int64(len(raws))-1), uint32(cpHeight))
	if err != nil {
		return nil, err
	}
	result["root"] = root
	result["branch"] = branch
	return result, nil
}

// headerMerkleProof builds an inclusion proof for the header at
// height against the root of every header hash from genesis through
// cpHeight, reusing internal/merkle.Prove generically over header
// hashes rather than txids.
func (c *connection) headerMerkleProof(height, cpHeight uint32) ([]string, types.Hash, error) {
	if height > cpHeight {
		return nil, types.Hash{}, fmt.Errorf("height %d exceeds cp_height %d", height, cpHeight)
	}
	hashes := make([]types.Hash, 0, cpHeight+1)
	for h := uint32(0); h <= cpHeight; h++ {
		entry, ok := c.srv.headers.ByHeight(h)
		if !ok {
			return nil, types.Hash{}, apperr.ErrNotFound
		}
		hashes = append(hashes, entry.Hash)
	}
	proof, ok := merkle.Prove(hashes, int(height))
	if !ok {
		return nil, types.Hash{}, fmt.Errorf("cannot build header merkle proof")
	}
	branch := make([]string, len(proof.Branch))
	for i, h := range proof.Branch {
		branch[i] = h.String()
	}
	return branch, proof.Root, nil
}

func (c *connection) estimateFee(params []json.RawMessage) (interface{}, error) {
	target, err := intParam(params, 0, "blocks_count")
	if err != nil {
		return nil, err
	}
	feeRate, err := c.srv.daemon.EstimateSmartFee(int(target))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("estimate fee for %d blocks", target), err)
	}
	return feeRate, nil
}

func (c *connection) relayFee() (interface{}, error) {
	fee, err := c.srv.daemon.RelayFee()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConnection, "relay fee", err)
	}
	return fee, nil
}

func (c *connection) scripthashSubscribe(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	return c.subscribeScripthash(scripthash)
}

func (c *connection) scripthashGetHistory(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	history, err := c.historyForScripthash(scripthash)
	if err != nil {
		return nil, err
	}
	type histEntry struct {
		Txid   types.Hash `json:"tx_hash"`
		Height int64      `json:"height"`
		Fee    *uint64    `json:"fee,omitempty"`
	}
	out := make([]histEntry, len(history))
	for i, h := range history {
		e := histEntry{Txid: h.Txid, Height: h.Height}
		if fee, ok := c.srv.mempool.GetTxFee(h.Txid); ok {
			e.Fee = &fee
		}
		out[i] = e
	}
	return out, nil
}

type utxoResult struct {
	Height  uint32  `json:"height"`
	TxPos   uint32  `json:"tx_pos"`
	TxHash  types.Hash `json:"tx_hash"`
	Value   uint64  `json:"value"`
	ColorID *string `json:"color_id,omitempty"`
}

func (c *connection) scripthashListUnspent(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.srv.chain.Utxo(scripthash)
	if err != nil {
		return nil, err
	}
	out := make([]utxoResult, 0, len(confirmed))
	for _, u := range confirmed {
		out = append(out, toUtxoResult(u.Outpoint, u.Value, u.Confirmed.Height, u.ColorID, false))
	}
	for _, u := range c.srv.mempool.Utxo(scripthash) {
		out = append(out, toUtxoResult(u.Outpoint, u.Value, 0, u.ColorID, false))
	}
	return out, nil
}

func (c *connection) scripthashListColoredUnspent(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.srv.chain.Utxo(scripthash)
	if err != nil {
		return nil, err
	}
	out := make([]utxoResult, 0)
	for _, u := range confirmed {
		if u.ColorID.IsDefault() {
			continue
		}
		out = append(out, toUtxoResult(u.Outpoint, u.Value, u.Confirmed.Height, u.ColorID, true))
	}
	return out, nil
}

func (c *connection) scripthashListUncoloredUnspent(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.srv.chain.Utxo(scripthash)
	if err != nil {
		return nil, err
	}
	out := make([]utxoResult, 0)
	for _, u := range confirmed {
		if !u.ColorID.IsDefault() {
			continue
		}
		out = append(out, toUtxoResult(u.Outpoint, u.Value, u.Confirmed.Height, u.ColorID, false))
	}
	return out, nil
}

func toUtxoResult(op types.Outpoint, value uint64, height uint32, colorID types.ColorID, includeColorID bool) utxoResult {
	r := utxoResult{Height: height, TxPos: op.Index, TxHash: op.TxID, Value: value}
	if includeColorID || !colorID.IsDefault() {
		s := colorID.String()
		r.ColorID = &s
	}
	return r
}

type balanceResult struct {
	ColorID     *string `json:"color_id,omitempty"`
	Confirmed   int64   `json:"confirmed"`
	Unconfirmed int64   `json:"unconfirmed"`
}

func (c *connection) scripthashGetBalance(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	chainStats, err := c.srv.chain.Stats(scripthash)
	if err != nil {
		return nil, err
	}
	mempoolStats := c.srv.mempool.Stats(scripthash)

	colorIDs := make(map[types.ColorID]struct{})
	for id := range chainStats {
		colorIDs[id] = struct{}{}
	}
	for id := range mempoolStats {
		colorIDs[id] = struct{}{}
	}

	out := make([]balanceResult, 0, len(colorIDs))
	for id := range colorIDs {
		cs := chainStats[id]
		ms := mempoolStats[id]
		r := balanceResult{
			Confirmed:   int64(cs.FundedTxoSum) - int64(cs.SpentTxoSum),
			Unconfirmed: int64(ms.FundedTxoSum) - int64(ms.SpentTxoSum),
		}
		if !id.IsDefault() {
			s := id.String()
			r.ColorID = &s
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *connection) transactionBroadcast(params []json.RawMessage) (interface{}, error) {
	rawHex, err := stringParam(params, 0, "tx")
	if err != nil {
		return nil, err
	}
	txid, err := c.srv.daemon.SendRawTransaction(rawHex)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConnection, "broadcast transaction", err)
	}
	c.srv.Notify()
	return txid, nil
}

func (c *connection) transactionGet(params []json.RawMessage) (interface{}, error) {
	txidHex, err := stringParam(params, 0, "tx_hash")
	if err != nil {
		return nil, err
	}
	txid, err := types.HexToHash(txidHex)
	if err != nil {
		return nil, fmt.Errorf("bad tx_hash: %w", err)
	}
	verbose, err := boolParamOr(params, 1, "verbose", false)
	if err != nil {
		return nil, err
	}

	tx, block, err := c.srv.chain.Tx(txid)
	if err != nil {
		return nil, err
	}
	if !verbose {
		return hex.EncodeToString(tx.Serialize()), nil
	}

	tip, _ := c.srv.headers.Tip()
	confirmations := int64(tip.Height) - int64(block.Height) + 1
	return map[string]interface{}{
		"txid":          txid,
		"hash":          txid,
		"hex":           hex.EncodeToString(tx.Serialize()),
		"version":       tx.Version,
		"locktime":      tx.LockTime,
		"size":          len(tx.Serialize()),
		"blockhash":     block.Hash,
		"confirmations": confirmations,
	}, nil
}

func (c *connection) transactionGetMerkle(params []json.RawMessage) (interface{}, error) {
	txidHex, err := stringParam(params, 0, "tx_hash")
	if err != nil {
		return nil, err
	}
	txid, err := types.HexToHash(txidHex)
	if err != nil {
		return nil, fmt.Errorf("bad tx_hash: %w", err)
	}
	height, err := intParam(params, 1, "height")
	if err != nil {
		return nil, err
	}
	block, confirmed, err := c.srv.chain.Confirmed(txid)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, apperr.Wrap(apperr.ErrNotFound, "tx not confirmed", fmt.Errorf("%s", txid))
	}
	if int64(block.Height) != height {
		return nil, fmt.Errorf("invalid confirmation height provided")
	}
	proof, err := c.srv.chain.GetMerkleblockProof(txid)
	if err != nil {
		return nil, err
	}
	merkleHex := make([]string, len(proof.Branch))
	for i, h := range proof.Branch {
		merkleHex[i] = h.String()
	}
	return map[string]interface{}{
		"block_height": block.Height,
		"merkle":       merkleHex,
		"pos":          proof.Pos,
	}, nil
}

func (c *connection) transactionIDFromPos(params []json.RawMessage) (interface{}, error) {
	height, err := intParam(params, 0, "height")
	if err != nil {
		return nil, err
	}
	txPos, err := intParam(params, 1, "tx_pos")
	if err != nil {
		return nil, err
	}
	wantMerkle, err := boolParamOr(params, 2, "merkle", false)
	if err != nil {
		return nil, err
	}

	entry, ok := c.srv.headers.ByHeight(uint32(height))
	if !ok {
		return nil, apperr.ErrNotFound
	}
	txids, err := c.srv.chain.BlockTxids(entry.Hash)
	if err != nil {
		return nil, err
	}
	if int(txPos) >= len(txids) {
		return nil, fmt.Errorf("tx_pos %d out of range", txPos)
	}
	txid := txids[txPos]
	if !wantMerkle {
		return txid, nil
	}
	proof, err := c.srv.chain.GetMerkleblockProof(txid)
	if err != nil {
		return nil, err
	}
	merkleHex := make([]string, len(proof.Branch))
	for i, h := range proof.Branch {
		merkleHex[i] = h.String()
	}
	return map[string]interface{}{"tx_hash": txid, "merkle": merkleHex}, nil
}

func (c *connection) mempoolFeeHistogram() (interface{}, error) {
	return c.srv.mempool.BacklogStats().FeeHistogram, nil
}

func (c *connection) openassetsScripthashGetBalance(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.srv.chain.Utxo(scripthash)
	if err != nil {
		return nil, err
	}
	memo := make(map[types.Hash][]*openassets.OpenAsset)
	balances := make(map[openassets.AssetID]int64)
	for _, u := range confirmed {
		asset, err := assetAt(c.srv.chain, c.srv.networkTag, u.Outpoint, memo)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}
		balances[asset.AssetID] += int64(asset.Quantity)
	}
	type assetBalance struct {
		AssetID     openassets.AssetID `json:"color_id"`
		Confirmed   int64              `json:"confirmed"`
		Unconfirmed int64              `json:"unconfirmed"`
	}
	out := make([]assetBalance, 0, len(balances))
	for id, sum := range balances {
		out = append(out, assetBalance{AssetID: id, Confirmed: sum})
	}
	return out, nil
}

func (c *connection) openassetsScripthashListUnspent(params []json.RawMessage) (interface{}, error) {
	scripthash, err := scripthashParam(params, 0)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.srv.chain.Utxo(scripthash)
	if err != nil {
		return nil, err
	}
	memo := make(map[types.Hash][]*openassets.OpenAsset)

	type coloredUtxo struct {
		Height   uint32             `json:"height"`
		TxPos    uint32             `json:"tx_pos"`
		TxHash   types.Hash         `json:"tx_hash"`
		Value    uint64             `json:"value"`
		AssetID  openassets.AssetID `json:"color_id"`
		Quantity uint64             `json:"asset_quantity"`
	}
	out := make([]coloredUtxo, 0)
	for _, u := range confirmed {
		asset, err := assetAt(c.srv.chain, c.srv.networkTag, u.Outpoint, memo)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}
		out = append(out, coloredUtxo{
			Height: u.Confirmed.Height, TxPos: u.Outpoint.Index, TxHash: u.Outpoint.TxID,
			Value: u.Value, AssetID: asset.AssetID, Quantity: asset.Quantity,
		})
	}
	return out, nil
}

func (c *connection) openassetsColorStats(params []json.RawMessage) (interface{}, error) {
	colorIDHex, err := stringParam(params, 0, "color_id")
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(colorIDHex)
	if err != nil || len(raw) != types.ColorIDSize {
		return nil, fmt.Errorf("bad color_id")
	}
	var colorID types.ColorID
	copy(colorID[:], raw)

	stats, err := c.srv.colors.Stats(colorID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"tx_count":             stats.TxCount,
		"issued_tx_count":      stats.IssuedTxCount,
		"transferred_tx_count": stats.TransferredTxCount,
		"burned_tx_count":      stats.BurnedTxCount,
		"issued_sum":           stats.IssuedSum,
		"transferred_sum":      stats.TransferredSum,
		"burned_sum":           stats.BurnedSum,
	}, nil
}
