package openassets

import (
	"bytes"
	"testing"
)

func scriptP2PKH(b byte) []byte {
	script := make([]byte, 25)
	script[0] = 0x76
	script[1] = 0xa9
	script[2] = 0x14
	for i := 0; i < 20; i++ {
		script[3+i] = b
	}
	script[23] = 0x88
	script[24] = 0xac
	return script
}

var (
	scriptA = scriptP2PKH(0x01)
	scriptB = scriptP2PKH(0x02)
	scriptC = scriptP2PKH(0x03)

	assetA = DeriveAssetID(scriptA, NetworkTagProd)
	assetB = DeriveAssetID(scriptB, NetworkTagProd)
	assetC = DeriveAssetID(scriptC, NetworkTagProd)
)

func asset(id AssetID, quantity uint64) *OpenAsset {
	return &OpenAsset{AssetID: id, Quantity: quantity}
}

// TestComputeAssets_Transfer covers two colored prevouts (10 units of
// A, 20 units of B) feeding a marker at index 0 with quantities
// [10, 1, 19].
func TestComputeAssets_Transfer(t *testing.T) {
	prevOuts := []PrevOut{
		{Script: scriptA, Asset: asset(assetA, 10)},
		{Script: scriptB, Asset: asset(assetB, 20)},
	}
	quantities := []uint64{10, 1, 19}

	got, err := ComputeAssets(prevOuts, 0, 4, quantities, NetworkTagProd, nil)
	if err != nil {
		t.Fatalf("ComputeAssets: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
	assertNil(t, got[0], "marker output")
	assertAsset(t, got[1], assetA, 10)
	assertAsset(t, got[2], assetB, 1)
	assertAsset(t, got[3], assetB, 19)
}

// TestComputeAssets_Issuance mirrors test_compute_assets_issuance: the
// marker sits at the last output, so every quantity is an issuance
// output drawing from prevOuts[0]'s script-derived asset id.
func TestComputeAssets_Issuance(t *testing.T) {
	prevOuts := []PrevOut{
		{Script: scriptA},
		{Script: scriptB},
	}
	quantities := []uint64{10, 1, 19}

	got, err := ComputeAssets(prevOuts, 3, 4, quantities, NetworkTagProd, nil)
	if err != nil {
		t.Fatalf("ComputeAssets: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
	assertAsset(t, got[0], assetA, 10)
	assertAsset(t, got[1], assetA, 1)
	assertAsset(t, got[2], assetA, 19)
	assertNil(t, got[3], "marker output")
}

// TestComputeAssets_Both mirrors test_compute_assets_both, the Open
// Assets Protocol specification's own example 1: issuance before the
// marker, transfers after it spanning prevouts of two different
// asset ids plus one uncolored prevout in the middle of the stream.
func TestComputeAssets_Both(t *testing.T) {
	prevOuts := []PrevOut{
		{Script: scriptA, Asset: asset(assetB, 3)},
		{Asset: asset(assetB, 2)},
		{}, // uncolored
		{Asset: asset(assetB, 5)},
		{Asset: asset(assetB, 3)},
		{Asset: asset(assetC, 9)},
	}
	quantities := []uint64{0, 10, 6, 0, 7, 3}

	got, err := ComputeAssets(prevOuts, 2, 7, quantities, NetworkTagProd, nil)
	if err != nil {
		t.Fatalf("ComputeAssets: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("len(got) = %d, want 7", len(got))
	}
	assertNil(t, got[0], "zero issuance quantity")
	assertAsset(t, got[1], assetA, 10)
	assertNil(t, got[2], "marker output")
	assertAsset(t, got[3], assetB, 6)
	assertNil(t, got[4], "zero transfer quantity")
	assertAsset(t, got[5], assetB, 7)
	assertAsset(t, got[6], assetC, 3)
}

// TestComputeAssets_ContainsUncolored mirrors
// test_compute_assets_contains_uncolored: output count exceeds
// marker+len(quantities), leaving a trailing uncolored span.
func TestComputeAssets_ContainsUncolored(t *testing.T) {
	prevOuts := []PrevOut{
		{Asset: asset(assetA, 2)},
		{Asset: asset(assetA, 5)},
		{Asset: asset(assetB, 9)},
	}
	quantities := []uint64{7, 3, 3}

	got, err := ComputeAssets(prevOuts, 0, 6, quantities, NetworkTagProd, nil)
	if err != nil {
		t.Fatalf("ComputeAssets: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len(got) = %d, want 6", len(got))
	}
	assertNil(t, got[0], "marker output")
	assertAsset(t, got[1], assetA, 7)
	assertAsset(t, got[2], assetB, 3)
	assertAsset(t, got[3], assetB, 3)
	assertNil(t, got[4], "uncolored tail")
	assertNil(t, got[5], "uncolored tail")
}

func TestComputeAssets_RejectsMixedAssetSpan(t *testing.T) {
	prevOuts := []PrevOut{
		{Asset: asset(assetA, 5)},
		{Asset: asset(assetB, 5)},
	}
	quantities := []uint64{10}

	_, err := ComputeAssets(prevOuts, 0, 2, quantities, NetworkTagProd, nil)
	if err == nil {
		t.Fatal("expected an error for a transfer output spanning two asset ids")
	}
}

func TestComputeAssets_RejectsEmptyPrevOuts(t *testing.T) {
	_, err := ComputeAssets(nil, 0, 2, nil, NetworkTagProd, nil)
	if err == nil {
		t.Fatal("expected an error for empty prevOuts")
	}
}

func TestComputeAssets_RejectsTooManyQuantities(t *testing.T) {
	prevOuts := []PrevOut{{Script: scriptA}}
	_, err := ComputeAssets(prevOuts, 0, 2, []uint64{1, 2}, NetworkTagProd, nil)
	if err == nil {
		t.Fatal("expected an error when quantities exceed outputs-1")
	}
}

func assertNil(t *testing.T, got *OpenAsset, what string) {
	t.Helper()
	if got != nil {
		t.Fatalf("%s: expected nil, got %+v", what, got)
	}
}

func assertAsset(t *testing.T, got *OpenAsset, wantID AssetID, wantQuantity uint64) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected asset id %s quantity %d, got nil", wantID, wantQuantity)
	}
	if !bytes.Equal(got.AssetID[:], wantID[:]) || got.Quantity != wantQuantity {
		t.Fatalf("got %+v, want {AssetID:%s Quantity:%d}", got, wantID, wantQuantity)
	}
}
