package store

import (
	"sort"
	"strings"
	"sync"
)

// MemoryKV implements KV over an in-memory map. Used for fast unit
// tests of internal/indexer, internal/chainquery, and
// internal/colorindex that don't need to exercise Badger itself.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory KV store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Put(key, value []byte, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemoryKV) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryKV) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemoryKV) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	for _, k := range m.sortedKeys() {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if err := fn([]byte(k), m.data[k]); err != nil {
			return err
		}
	}
	return nil
}

// ScanReverse walks keys in descending order starting at the largest
// key <= upper.
func (m *MemoryKV) ScanReverse(upper []byte, fn func(key, value []byte) error) error {
	keys := m.sortedKeys()
	upperStr := string(upper)
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] > upperStr {
			continue
		}
		if err := fn([]byte(keys[i]), m.data[keys[i]]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryKV) sortedKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryKV) NewBatch() Batch {
	return &memBatch{kv: m}
}

// Compact is a no-op for the in-memory store.
func (m *MemoryKV) Compact() error { return nil }

func (m *MemoryKV) Close() error { return nil }

type memOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	kv  *MemoryKV
	ops []memOp
}

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: append([]byte(nil), key...), delete: true})
}

func (b *memBatch) Commit() error {
	b.kv.mu.Lock()
	defer b.kv.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.kv.data, string(op.key))
		} else {
			b.kv.data[string(op.key)] = op.value
		}
	}
	return nil
}
