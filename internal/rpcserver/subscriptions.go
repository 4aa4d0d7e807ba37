package rpcserver

import (
	"encoding/hex"
	"errors"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// historyForScripthash merges confirmed and pending history for
// scripthash, in the (txid, Electrum-height) shape both the status
// hash and get_history need, refusing silently-truncated results the
// same way ChainQuery/Mempool do elsewhere: it asks for one more than
// the limit and errors if that extra one exists.
func (c *connection) historyForScripthash(scripthash types.Hash) ([]HistoryTxHeight, error) {
	limit := c.srv.txsLimit
	confirmedTxids, err := c.srv.chain.HistoryTxids(scripthash, limit+1)
	if err != nil {
		return nil, err
	}
	pendingTxids := c.srv.mempool.HistoryTxids(scripthash, limit+1)

	if len(confirmedTxids)+len(pendingTxids) > limit {
		return nil, apperr.Wrap(apperr.ErrTooPopular, "scripthash history", errors.New("exceeds configured limit"))
	}

	out := make([]HistoryTxHeight, 0, len(confirmedTxids)+len(pendingTxids))
	for _, txid := range confirmedTxids {
		block, confirmed, err := c.srv.chain.Confirmed(txid)
		if err != nil {
			return nil, err
		}
		out = append(out, HistoryTxHeight{Txid: txid, Height: ElectrumHeight(confirmed, block.Height, false)})
	}
	for _, txid := range pendingTxids {
		hasParents := c.srv.mempool.HasUnconfirmedParents(txid)
		out = append(out, HistoryTxHeight{Txid: txid, Height: ElectrumHeight(false, 0, hasParents)})
	}
	return out, nil
}

// subscribeHeaders records the connection's interest in the current
// tip and returns the header payload blockchain.headers.subscribe's
// reply carries.
func (c *connection) subscribeHeaders() (interface{}, error) {
	entry, ok := c.srv.headers.Tip()
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "headers", errors.New("no tip yet"))
	}
	c.mu.Lock()
	c.headerSub = true
	c.lastHeight = int64(entry.Height)
	c.mu.Unlock()
	return headerPayload(entry.Raw, entry.Height), nil
}

func headerPayload(raw []byte, height uint32) interface{} {
	return map[string]interface{}{
		"hex":    hex.EncodeToString(raw),
		"height": height,
	}
}

// subscribeScripthash records the connection's interest in
// scripthash's status and returns its current status hash (or nil if
// the script has no history yet).
func (c *connection) subscribeScripthash(scripthash types.Hash) (interface{}, error) {
	history, err := c.historyForScripthash(scripthash)
	if err != nil {
		return nil, err
	}
	hash := statusHash(history)

	c.mu.Lock()
	defer c.mu.Unlock()
	key := scripthash.String()
	if hash == nil {
		c.scriptSubs[key] = nil
		return nil, nil
	}
	hexHash := hex.EncodeToString(hash)
	c.scriptSubs[key] = &hexHash
	return hexHash, nil
}

// updateSubscriptions recomputes every subscription this connection
// holds and returns the notifications for any that changed.
func (c *connection) updateSubscriptions() []pushNotification {
	var out []pushNotification

	c.mu.Lock()
	headerSub := c.headerSub
	lastHeight := c.lastHeight
	subs := make(map[string]*string, len(c.scriptSubs))
	for k, v := range c.scriptSubs {
		subs[k] = v
	}
	c.mu.Unlock()

	if headerSub {
		if entry, ok := c.srv.headers.Tip(); ok && int64(entry.Height) != lastHeight {
			c.mu.Lock()
			c.lastHeight = int64(entry.Height)
			c.mu.Unlock()
			out = append(out, pushNotification{
				JSONRPC: "2.0",
				Method:  "blockchain.headers.subscribe",
				Params:  []interface{}{headerPayload(entry.Raw, entry.Height)},
			})
		}
	}

	for key, prev := range subs {
		scripthash, err := types.HexToHash(key)
		if err != nil {
			continue
		}
		history, err := c.historyForScripthash(scripthash)
		if err != nil {
			continue
		}
		hash := statusHash(history)

		var newVal interface{}
		var changed bool
		if hash == nil {
			changed = prev != nil
			newVal = nil
		} else {
			hexHash := hex.EncodeToString(hash)
			changed = prev == nil || *prev != hexHash
			newVal = hexHash
		}
		if !changed {
			continue
		}

		c.mu.Lock()
		if hash == nil {
			c.scriptSubs[key] = nil
		} else {
			v := newVal.(string)
			c.scriptSubs[key] = &v
		}
		c.mu.Unlock()

		out = append(out, pushNotification{
			JSONRPC: "2.0",
			Method:  "blockchain.scripthash.subscribe",
			Params:  []interface{}{key, newVal},
		})
	}
	return out
}
