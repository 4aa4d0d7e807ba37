package store

import (
	"fmt"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/log"
)

// Store bundles the three independent KV databases (txstore, history,
// cache) plus the in-memory best-chain header list. The databases are
// held behind the KV interface rather than the concrete *BadgerKV
// type so tests can substitute MemoryKV for an on-disk Badger
// instance.
type Store struct {
	TxStore KV
	History KV
	Cache   KV
	Headers *HeaderList

	LightMode bool
}

// Open opens (creating if absent) the three Badger databases under
// cfg's data directories.
func Open(cfg *config.Config) (*Store, error) {
	txstore, err := OpenBadger(cfg.TxStoreDir())
	if err != nil {
		return nil, fmt.Errorf("open txstore: %w", err)
	}
	history, err := OpenBadger(cfg.HistoryDir())
	if err != nil {
		txstore.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	cache, err := OpenBadger(cfg.CacheDir())
	if err != nil {
		txstore.Close()
		history.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	s := &Store{
		TxStore:   txstore,
		History:   history,
		Cache:     cache,
		Headers:   NewHeaderList(),
		LightMode: cfg.LightMode,
	}
	if err := s.recover(); err != nil {
		s.Close()
		return nil, fmt.Errorf("recover store state: %w", err)
	}
	return s, nil
}

// NewInMemory builds a Store backed entirely by MemoryKV, for tests
// and for light-mode single-process experimentation that doesn't need
// durability.
func NewInMemory(lightMode bool) *Store {
	return &Store{
		TxStore:   NewMemoryKV(),
		History:   NewMemoryKV(),
		Cache:     NewMemoryKV(),
		Headers:   NewHeaderList(),
		LightMode: lightMode,
	}
}

// recover scans `D|*` markers in both txstore and history to log how
// much ingestion state survived a prior crash; the header list itself
// is rebuilt by internal/indexer's startup walk against the daemon,
// since headers aren't persisted independently of the blocks they
// describe.
func (s *Store) recover() error {
	var addedCount, indexedCount int
	if err := s.TxStore.ScanPrefix(DoneKeyPrefix(), func(key, _ []byte) error {
		addedCount++
		return nil
	}); err != nil {
		return fmt.Errorf("scan txstore done markers: %w", err)
	}
	if err := s.History.ScanPrefix(DoneKeyPrefix(), func(key, _ []byte) error {
		indexedCount++
		return nil
	}); err != nil {
		return fmt.Errorf("scan history done markers: %w", err)
	}
	log.Store.Info().
		Int("added_blocks", addedCount).
		Int("indexed_blocks", indexedCount).
		Msg("recovered store state from done markers")
	return nil
}

// Close closes all three underlying databases.
func (s *Store) Close() error {
	var firstErr error
	for _, kv := range []KV{s.TxStore, s.History, s.Cache} {
		if kv == nil {
			continue
		}
		if err := kv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Compact compacts all three databases, called after the Fetcher's
// first bulk-ingestion pass settles.
func (s *Store) Compact() error {
	for name, kv := range map[string]KV{"txstore": s.TxStore, "history": s.History, "cache": s.Cache} {
		if err := kv.Compact(); err != nil {
			return fmt.Errorf("compact %s: %w", name, err)
		}
	}
	return nil
}

// AddedBlockhashes returns the set of block hashes with a done marker
// in txstore (Phase 1/ADD already ran), keyed by the raw hash bytes
// as a string.
func (s *Store) AddedBlockhashes() (map[string]bool, error) {
	return s.doneSet(s.TxStore)
}

// IndexedBlockhashes returns the set of block hashes with a done
// marker in history (Phase 2/INDEX already ran).
func (s *Store) IndexedBlockhashes() (map[string]bool, error) {
	return s.doneSet(s.History)
}

func (s *Store) doneSet(kv KV) (map[string]bool, error) {
	out := make(map[string]bool)
	err := kv.ScanPrefix(DoneKeyPrefix(), func(key, _ []byte) error {
		blockhash := key[1:]
		out[string(blockhash)] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
