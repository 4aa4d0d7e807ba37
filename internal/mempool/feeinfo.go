package mempool

import (
	"sort"

	"github.com/tapyrus-index/utxoindexd/pkg/colorscript"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// vsizeBinWidth is the minimum virtual size a fee histogram bucket
// accumulates before it can be closed.
const vsizeBinWidth = 50_000

// TxFeeInfo is a mempool transaction's fee and size, the raw material
// for both BacklogStats and the per-tx overview shown in recent().
type TxFeeInfo struct {
	Fee         uint64
	VSize       uint32
	FeePerVByte float64
}

// TxFee computes a transaction's fee as the sum of non-colored
// previous-output values minus the sum of non-colored output values.
// Colored amounts are excluded entirely from the subtraction on both
// sides, not merely netted out of the final total, an intentional
// quirk carried over unchanged. Coinbase transactions have no inputs
// and pay no fee.
func TxFee(tx *wire.Tx, prevouts map[uint32]wire.TxOut) uint64 {
	if len(tx.Inputs) == 0 {
		return 0
	}
	var totalIn uint64
	for _, prevout := range prevouts {
		if colorscript.IsColored(prevout.Script) {
			continue
		}
		totalIn += prevout.Value
	}
	var totalOut uint64
	for _, out := range tx.Outputs {
		if colorscript.IsColored(out.Script) {
			continue
		}
		totalOut += out.Value
	}
	return totalIn - totalOut
}

// NewTxFeeInfo computes the fee, virtual size and fee rate for tx
// given its resolved previous outputs, keyed by input index.
func NewTxFeeInfo(tx *wire.Tx, prevouts map[uint32]wire.TxOut) TxFeeInfo {
	fee := TxFee(tx, prevouts)
	vsize := uint32(tx.VSize())
	var perVByte float64
	if vsize > 0 {
		perVByte = float64(fee) / float64(vsize)
	}
	return TxFeeInfo{Fee: fee, VSize: vsize, FeePerVByte: perVByte}
}

// FeeHistogramBucket is one bucket of MakeFeeHistogram's output: the
// fee rate is the bucket's lower boundary, vsize is the total virtual
// size of the transactions folded into it.
type FeeHistogramBucket struct {
	FeePerVByte float64
	VSize       uint32
}

// MakeFeeHistogram buckets fee infos into variable-width bins of at
// least vsizeBinWidth virtual bytes each: sort ascending by fee rate,
// then walk in reverse (descending) accumulating vsize into the
// current bucket; close a bucket once it holds more than
// vsizeBinWidth and the next entry's rate differs from the running
// rate, and flush a final non-empty bucket at the end.
func MakeFeeHistogram(entries []TxFeeInfo) []FeeHistogramBucket {
	sorted := make([]TxFeeInfo, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FeePerVByte < sorted[j].FeePerVByte })

	var histogram []FeeHistogramBucket
	var binSize uint32
	var lastFeeRate float64
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		if binSize > vsizeBinWidth && lastFeeRate != e.FeePerVByte {
			histogram = append(histogram, FeeHistogramBucket{FeePerVByte: lastFeeRate, VSize: binSize})
			binSize = 0
		}
		lastFeeRate = e.FeePerVByte
		binSize += e.VSize
	}
	if binSize > 0 {
		histogram = append(histogram, FeeHistogramBucket{FeePerVByte: lastFeeRate, VSize: binSize})
	}
	return histogram
}
