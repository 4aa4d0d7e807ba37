package store

import (
	"sync"

	"github.com/tapyrus-index/utxoindexd/pkg/types"
)

// HeaderEntry is one best-chain header tracked in memory.
type HeaderEntry struct {
	Hash       types.Hash
	PrevHash   types.Hash
	Height     uint32
	Time       int64
	MedianTime int64
	Raw        []byte
}

// HeaderList is the process-wide in-memory best-chain header index:
// hash->entry and height->entry, guarded by a reader-writer lock so
// ChainQuery and the JSON-RPC server can read it concurrently with
// Indexer appending or rolling it back.
type HeaderList struct {
	mu        sync.RWMutex
	byHeight  []HeaderEntry
	byHash    map[types.Hash]uint32 // hash -> index into byHeight
}

// NewHeaderList creates an empty header list.
func NewHeaderList() *HeaderList {
	return &HeaderList{byHash: make(map[types.Hash]uint32)}
}

// Tip returns the current best-chain tip, or ok=false if the list is empty.
func (l *HeaderList) Tip() (HeaderEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.byHeight) == 0 {
		return HeaderEntry{}, false
	}
	return l.byHeight[len(l.byHeight)-1], true
}

// Height returns the current best-chain height, or -1 if empty.
func (l *HeaderList) Height() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.byHeight)) - 1
}

// ByHash looks up a header by hash, restricted to the best chain.
func (l *HeaderList) ByHash(hash types.Hash) (HeaderEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byHash[hash]
	if !ok {
		return HeaderEntry{}, false
	}
	return l.byHeight[idx], true
}

// ByHeight looks up a header by height.
func (l *HeaderList) ByHeight(height uint32) (HeaderEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if int(height) >= len(l.byHeight) {
		return HeaderEntry{}, false
	}
	return l.byHeight[height], true
}

// Append adds new headers to the tip of the best chain. The caller
// must ensure entries are contiguous (entries[0].PrevHash is the
// current tip's hash, or the list is empty and entries[0] is genesis).
func (l *HeaderList) Append(entries []HeaderEntry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.byHash[e.Hash] = uint32(len(l.byHeight))
		l.byHeight = append(l.byHeight, e)
	}
}

// Rollback truncates the best chain back to (and including) the
// header at newTipHeight, dropping everything above it from the
// hash index. Rows for the dropped blocks remain on disk; they simply
// become unreachable through this index.
func (l *HeaderList) Rollback(newTipHeight uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int(newTipHeight)+1 >= len(l.byHeight) {
		return
	}
	for _, dropped := range l.byHeight[newTipHeight+1:] {
		delete(l.byHash, dropped.Hash)
	}
	l.byHeight = l.byHeight[:newTipHeight+1]
}

// Len returns the number of headers currently tracked.
func (l *HeaderList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byHeight)
}
