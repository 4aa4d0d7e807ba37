// Package colorindex computes and serves the per-color-identifier
// history that backs openassets.* queries: which transactions issued,
// transferred or burned a given color, and the running totals across
// its lifetime.
package colorindex

import (
	"bytes"
	"sort"

	"github.com/tapyrus-index/utxoindexd/internal/store"
	"github.com/tapyrus-index/utxoindexd/pkg/colorscript"
	"github.com/tapyrus-index/utxoindexd/pkg/types"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// Event pairs a color identifier with one issuing, transferring or
// burning entry produced by a single confirmed transaction.
type Event struct {
	ColorID types.ColorID
	Info    store.ColorHistoryInfo
}

// colorAmounts sums colored output values per color identifier,
// ignoring uncolored outputs entirely.
func colorAmounts(outs []wire.TxOut) map[types.ColorID]uint64 {
	sums := make(map[types.ColorID]uint64)
	for _, out := range outs {
		colorID, _, ok := colorscript.Split(out.Script)
		if !ok {
			continue
		}
		sums[colorID] += out.Value
	}
	return sums
}

// TxHistory computes the issuing/transferring/burning events a
// confirmed transaction produces for every color identifier it
// touches, comparing the total colored quantity spent against the
// total colored quantity created across the whole transaction rather
// than per input/output. prevouts must resolve every entry in inputs
// that was itself colored; a missing entry is simply treated as not
// contributing to that color's spent total (coinbase transactions
// pass no inputs at all).
func TxHistory(txid types.Hash, inputs []types.Outpoint, outputs []wire.TxOut, prevouts map[types.Outpoint]wire.TxOut) []Event {
	previous := make([]wire.TxOut, 0, len(inputs))
	for _, op := range inputs {
		if out, ok := prevouts[op]; ok {
			previous = append(previous, out)
		}
	}
	prevAmounts := colorAmounts(previous)
	outAmounts := colorAmounts(outputs)

	seen := make(map[types.ColorID]bool, len(prevAmounts)+len(outAmounts))
	for id := range prevAmounts {
		seen[id] = true
	}
	for id := range outAmounts {
		seen[id] = true
	}
	ids := make([]types.ColorID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	// Deterministic order: downstream batches and tests shouldn't
	// depend on Go's randomized map iteration.
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	var events []Event
	for _, id := range ids {
		for _, info := range classifyChange(txid, prevAmounts[id], outAmounts[id]) {
			events = append(events, Event{ColorID: id, Info: info})
		}
	}
	return events
}

// classifyChange turns a color's before/after quantity across one
// transaction into its issuing/transferring/burning entries: a net
// increase issues the delta (and transfers whatever carried over from
// inputs); no change is a plain transfer; a net decrease burns the
// delta (and transfers whatever made it into an output).
func classifyChange(txid types.Hash, prevAmount, amount uint64) []store.ColorHistoryInfo {
	switch {
	case amount > prevAmount:
		events := []store.ColorHistoryInfo{{Kind: store.ColorEventIssuing, Txid: txid, Value: amount - prevAmount}}
		if prevAmount > 0 {
			events = append(events, store.ColorHistoryInfo{Kind: store.ColorEventTransferring, Txid: txid, Value: prevAmount})
		}
		return events
	case amount == prevAmount:
		return []store.ColorHistoryInfo{{Kind: store.ColorEventTransferring, Txid: txid, Value: amount}}
	default:
		events := []store.ColorHistoryInfo{{Kind: store.ColorEventBurning, Txid: txid, Value: prevAmount - amount}}
		if amount > 0 {
			events = append(events, store.ColorHistoryInfo{Kind: store.ColorEventTransferring, Txid: txid, Value: amount})
		}
		return events
	}
}

// IndexConfirmedTx writes every event TxHistory computes for tx into
// batch as `C` rows under height.
func IndexConfirmedTx(batch store.Batch, height uint32, txid types.Hash, inputs []types.Outpoint, outputs []wire.TxOut, prevouts map[types.Outpoint]wire.TxOut) {
	for _, ev := range TxHistory(txid, inputs, outputs, prevouts) {
		batch.Put(store.ColorHistoryKey(ev.ColorID[:], height, ev.Info.Encode()), nil)
	}
}
