package daemon

import (
	"encoding/json"
	"fmt"
)

// BlockHeaderVerbose is the verbose JSON shape returned by
// getblockheader, enough to drive the common-ancestor walk and
// populate a header-list entry without this package re-deriving
// anything from raw bytes.
type BlockHeaderVerbose struct {
	Hash              string `json:"hash"`
	PreviousBlockHash string `json:"previousblockhash"`
	Height            uint32 `json:"height"`
	Time              int64  `json:"time"`
	MedianTime        int64  `json:"mediantime"`
	Confirmations     int64  `json:"confirmations"`
}

// MempoolEntry is the verbose per-transaction shape returned by
// getrawmempool(verbose=true).
type MempoolEntry struct {
	VSize      int      `json:"vsize"`
	Fee        float64  `json:"fee"`
	Time       int64    `json:"time"`
	Depends    []string `json:"depends"`
	Spentby    []string `json:"spentby"`
}

// BestBlockHash returns the hex block hash of the current chain tip.
func (c *Client) BestBlockHash() (string, error) {
	var hash string
	err := c.Call("getbestblockhash", nil, &hash)
	return hash, err
}

// BlockHeader fetches the verbose header JSON for a block hash.
func (c *Client) BlockHeader(hash string) (*BlockHeaderVerbose, error) {
	var h BlockHeaderVerbose
	if err := c.Call("getblockheader", []interface{}{hash, true}, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// BlockHeaderRaw fetches the non-verbose (hex-encoded) serialized
// header bytes for a block hash.
func (c *Client) BlockHeaderRaw(hash string) (string, error) {
	var hex string
	err := c.Call("getblockheader", []interface{}{hash, false}, &hex)
	return hex, err
}

// Block fetches a full raw block at the given verbosity: 0 for the
// raw hex-encoded block, 1 for a JSON object with txids only, 2 for a
// JSON object with fully decoded transactions. A JSON object result is
// returned as its undecoded JSON text.
func (c *Client) Block(hash string, verbosity int) (string, error) {
	var raw json.RawMessage
	if err := c.Call("getblock", []interface{}{hash, verbosity}, &raw); err != nil {
		return "", err
	}
	var hexBlock string
	if json.Unmarshal(raw, &hexBlock) == nil {
		return hexBlock, nil
	}
	return string(raw), nil
}

// RawMempool returns either the list of mempool txids (verbose=false)
// or a map of txid to mempool entry (verbose=true).
func (c *Client) RawMempool(verbose bool) (map[string]MempoolEntry, []string, error) {
	if verbose {
		var m map[string]MempoolEntry
		err := c.Call("getrawmempool", []interface{}{true}, &m)
		return m, nil, err
	}
	var ids []string
	err := c.Call("getrawmempool", []interface{}{false}, &ids)
	return nil, ids, err
}

// RawTransaction fetches a transaction's raw hex bytes by txid.
func (c *Client) RawTransaction(txid string) (string, error) {
	var hex string
	err := c.Call("getrawtransaction", []interface{}{txid, false}, &hex)
	return hex, err
}

// SendRawTransaction broadcasts a hex-encoded transaction and returns
// its txid, used to implement blockchain.transaction.broadcast.
func (c *Client) SendRawTransaction(rawHex string) (string, error) {
	var txid string
	err := c.Call("sendrawtransaction", []interface{}{rawHex}, &txid)
	return txid, err
}

// EstimateSmartFee estimates a fee rate (currency units per kilobyte)
// for confirmation within targetBlocks.
func (c *Client) EstimateSmartFee(targetBlocks int) (float64, error) {
	var result struct {
		FeeRate float64 `json:"feerate"`
		Errors  []string `json:"errors"`
	}
	if err := c.Call("estimatesmartfee", []interface{}{targetBlocks}, &result); err != nil {
		return 0, err
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("estimatesmartfee: %v", result.Errors)
	}
	return result.FeeRate, nil
}

// RelayFee returns the daemon's minimum relay fee rate (currency units
// per kilobyte), used by blockchain.relayfee.
func (c *Client) RelayFee() (float64, error) {
	var info struct {
		RelayFee float64 `json:"relayfee"`
	}
	err := c.Call("getnetworkinfo", nil, &info)
	return info.RelayFee, err
}
