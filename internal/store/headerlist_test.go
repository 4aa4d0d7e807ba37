package store

import "testing"

func buildChain(n int) []HeaderEntry {
	entries := make([]HeaderEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = HeaderEntry{Height: uint32(i)}
		entries[i].Hash[0] = byte(i + 1)
		if i > 0 {
			entries[i].PrevHash = entries[i-1].Hash
		}
	}
	return entries
}

func TestHeaderList_AppendAndTip(t *testing.T) {
	l := NewHeaderList()
	if _, ok := l.Tip(); ok {
		t.Fatal("empty list should report no tip")
	}

	chain := buildChain(5)
	l.Append(chain)

	tip, ok := l.Tip()
	if !ok || tip.Hash != chain[4].Hash {
		t.Fatalf("Tip() = %+v, want %+v", tip, chain[4])
	}
	if l.Height() != 4 {
		t.Fatalf("Height() = %d, want 4", l.Height())
	}
}

func TestHeaderList_ByHashAndByHeight(t *testing.T) {
	l := NewHeaderList()
	chain := buildChain(3)
	l.Append(chain)

	got, ok := l.ByHash(chain[1].Hash)
	if !ok || got.Height != 1 {
		t.Fatalf("ByHash mismatch: %+v", got)
	}
	got, ok = l.ByHeight(2)
	if !ok || got.Hash != chain[2].Hash {
		t.Fatalf("ByHeight mismatch: %+v", got)
	}
	if _, ok := l.ByHeight(99); ok {
		t.Fatal("ByHeight should report not found for out-of-range height")
	}
}

func TestHeaderList_Rollback(t *testing.T) {
	l := NewHeaderList()
	chain := buildChain(5)
	l.Append(chain)

	l.Rollback(2)
	if l.Height() != 2 {
		t.Fatalf("Height() after rollback = %d, want 2", l.Height())
	}
	if _, ok := l.ByHash(chain[3].Hash); ok {
		t.Fatal("rolled-back header should no longer resolve by hash")
	}
	tip, ok := l.Tip()
	if !ok || tip.Hash != chain[2].Hash {
		t.Fatalf("Tip() after rollback = %+v, want %+v", tip, chain[2])
	}
}

func TestHeaderList_RollbackThenReorgAppend(t *testing.T) {
	l := NewHeaderList()
	chain := buildChain(5)
	l.Append(chain)
	l.Rollback(2)

	replacement := HeaderEntry{Height: 3, PrevHash: chain[2].Hash}
	replacement.Hash[0] = 0xff
	l.Append([]HeaderEntry{replacement})

	tip, _ := l.Tip()
	if tip.Hash != replacement.Hash {
		t.Fatalf("expected new tip after reorg append, got %+v", tip)
	}
	if _, ok := l.ByHash(chain[3].Hash); ok {
		t.Fatal("orphaned header should remain unreachable after reorg")
	}
}
