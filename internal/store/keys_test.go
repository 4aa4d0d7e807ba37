package store

import (
	"bytes"
	"testing"
)

func TestHistoryKey_OrdersByHeightBigEndian(t *testing.T) {
	scripthash := []byte{0xaa, 0xbb}
	low := HistoryKey(scripthash, 1, []byte{0x01})
	high := HistoryKey(scripthash, 2, []byte{0x01})
	if bytes.Compare(low, high) >= 0 {
		t.Fatalf("expected height=1 key to sort before height=2 key")
	}

	// A naive little-endian height would put 256 before 1; verify we
	// didn't make that mistake.
	h256 := HistoryKey(scripthash, 256, []byte{0x01})
	h1 := HistoryKey(scripthash, 1, []byte{0x01})
	if bytes.Compare(h1, h256) >= 0 {
		t.Fatalf("height=1 key should sort before height=256 key")
	}
}

func TestOutputKeyPrefix_MatchesOutputKey(t *testing.T) {
	txid := bytes.Repeat([]byte{0x01}, 32)
	prefix := OutputKeyPrefix(txid)
	key := OutputKey(txid, 3)
	if !bytes.HasPrefix(key, prefix) {
		t.Fatalf("OutputKey should start with OutputKeyPrefix")
	}
}

func TestDoneKey_StripsToBlockhash(t *testing.T) {
	blockhash := bytes.Repeat([]byte{0x42}, 32)
	key := DoneKey(blockhash)
	if !bytes.Equal(key[1:], blockhash) {
		t.Fatalf("DoneKey should carry blockhash unchanged after the prefix byte")
	}
}

func TestSpendEdgeKeyPrefix_MatchesSpendEdgeKey(t *testing.T) {
	funding := bytes.Repeat([]byte{0x01}, 32)
	spending := bytes.Repeat([]byte{0x02}, 32)
	prefix := SpendEdgeKeyPrefix(funding, 0)
	key := SpendEdgeKey(funding, 0, spending, 1)
	if !bytes.HasPrefix(key, prefix) {
		t.Fatalf("SpendEdgeKey should start with SpendEdgeKeyPrefix")
	}
}
