// Package openassets computes the per-output asset assignments
// implied by an open-assets marker output, per the Open Assets
// Protocol's issuance/transfer bookkeeping. It is a pure function
// package: no store, no daemon, no network I/O. Callers resolve
// prevout scripts and recursively classify them before calling
// ComputeAssets here.
package openassets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/tapyrus-index/utxoindexd/internal/apperr"
)

var (
	errTooManyQuantities = errors.New("quantities longer than outputs minus one")
	errNoPrevOuts        = errors.New("no previous outputs")
	errMixedAssetSpan    = errors.New("transfer output spans multiple asset ids")
	errExhaustedPrevOuts = errors.New("transfer output exceeds available input units")
)

// NetworkTag is the single byte mixed into AssetID's hash input to
// keep the same script from deriving the same asset id across
// networks.
type NetworkTag byte

const (
	NetworkTagProd NetworkTag = 0x00
	NetworkTagDev  NetworkTag = 0x01
)

// AssetID is the 32-byte identifier derived from an issuing output's
// script, unique per (script, network).
type AssetID [32]byte

// DeriveAssetID computes AssetID(script, tag) = SHA-256(tag || script),
// the issuance asset id assigned to every unit created by spending
// script's output as the first input of an issuance transaction.
func DeriveAssetID(script []byte, tag NetworkTag) AssetID {
	h := sha256.New()
	h.Write([]byte{byte(tag)})
	h.Write(script)
	var id AssetID
	copy(id[:], h.Sum(nil))
	return id
}

func (id AssetID) String() string {
	return hex.EncodeToString(id[:])
}

func (id AssetID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// OpenAsset is the colored assignment of a single output: which asset
// it carries, how many units, and the marker's metadata blob (shared
// by every output of the same transaction).
type OpenAsset struct {
	AssetID  AssetID `json:"asset_id"`
	Quantity uint64  `json:"asset_quantity"`
	Metadata []byte  `json:"metadata,omitempty"`
}

// PrevOut is a previous output considered by ComputeAssets: Script is
// only consulted for prevOuts[0] (the issuance asset id derivation);
// Asset is the caller's own recursively-resolved classification of
// that prevout, nil if it carries no asset.
type PrevOut struct {
	Script []byte
	Asset  *OpenAsset
}

// ComputeAssets classifies every output of a transaction with
// numOutputs outputs and a marker output at index marker, given the
// already-resolved prevOuts and the marker's parsed quantities and
// metadata. It returns one slot per output: nil for uncolored/marker
// outputs, a populated *OpenAsset for issuance and transfer outputs.
//
// A transfer output whose quantity span crosses prevOuts carrying
// different asset ids returns apperr.ErrInvalid instead of panicking.
func ComputeAssets(prevOuts []PrevOut, marker int, numOutputs int, quantities []uint64, tag NetworkTag, metadata []byte) ([]*OpenAsset, error) {
	if len(quantities) > numOutputs-1 {
		return nil, apperr.Wrap(apperr.ErrInvalid, "open-assets: quantities longer than outputs-1", errTooManyQuantities)
	}
	if len(prevOuts) == 0 {
		return nil, apperr.Wrap(apperr.ErrInvalid, "open-assets: no previous outputs", errNoPrevOuts)
	}

	result := make([]*OpenAsset, 0, numOutputs)

	issuanceAssetID := DeriveAssetID(prevOuts[0].Script, tag)
	for i := 0; i < marker; i++ {
		if i < len(quantities) && quantities[i] > 0 {
			result = append(result, &OpenAsset{AssetID: issuanceAssetID, Quantity: quantities[i], Metadata: metadata})
		} else {
			result = append(result, nil)
		}
	}

	// The marker output itself carries no asset.
	result = append(result, nil)

	// Transfer outputs: quantities[0..marker) were already consumed by
	// the issuance loop above, so the transfer span continues reading
	// the same array from quantities[marker..], one entry per output
	// from marker+1 up to (and including) output index len(quantities).
	cursor := newPrevOutCursor(prevOuts)
	for i := marker + 1; i < len(quantities)+1; i++ {
		quantity := quantities[i-1]
		assetID, ok, err := cursor.consume(quantity)
		if err != nil {
			return nil, err
		}
		if ok && quantity > 0 {
			result = append(result, &OpenAsset{AssetID: assetID, Quantity: quantity, Metadata: metadata})
		} else {
			result = append(result, nil)
		}
	}

	for i := len(quantities) + 1; i < numOutputs; i++ {
		result = append(result, nil)
	}
	return result, nil
}

// prevOutCursor walks prevOuts as a single stream of colored units,
// advancing to the next prevout once the current one is exhausted.
// consume treats stream exhaustion as malformed input and returns
// apperr.ErrInvalid rather than hanging, the same error policy
// applied to a mixed-asset-id span.
type prevOutCursor struct {
	prevOuts       []PrevOut
	index          int
	left           uint64
	currentAssetID AssetID
}

func newPrevOutCursor(prevOuts []PrevOut) *prevOutCursor {
	return &prevOutCursor{prevOuts: prevOuts}
}

// consume draws quantity units from the stream, returning the asset
// id they carried (ok=false if quantity was zero and nothing needed
// consuming) or an error if the span crossed two different asset ids
// or ran out of prevouts before quantity was satisfied.
func (c *prevOutCursor) consume(quantity uint64) (AssetID, bool, error) {
	var assetID AssetID
	haveAssetID := false
	left := quantity

	for left > 0 {
		if c.left == 0 {
			if c.index >= len(c.prevOuts) {
				return AssetID{}, false, apperr.Wrap(apperr.ErrInvalid, "open-assets: transfer output exceeds available input units", errExhaustedPrevOuts)
			}
			current := c.prevOuts[c.index]
			c.index++
			if current.Asset != nil {
				c.left = current.Asset.Quantity
				c.currentAssetID = current.Asset.AssetID
			}
			continue
		}

		progress := left
		if c.left < progress {
			progress = c.left
		}
		left -= progress
		c.left -= progress

		if !haveAssetID {
			assetID = c.currentAssetID
			haveAssetID = true
		} else if assetID != c.currentAssetID {
			return AssetID{}, false, apperr.Wrap(apperr.ErrInvalid, "open-assets: transfer output spans multiple asset ids", errMixedAssetSpan)
		}
	}
	return assetID, haveAssetID, nil
}
