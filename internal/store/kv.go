// Package store manages three independent ordered key-value databases
// (txstore, history, cache) plus an in-memory best-chain header list
// behind a reader-writer lock.
package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// KV is the key-value interface every database in Store implements:
// Get/Put/Delete/Has/scan/Close, plus a buffered-vs-sync put
// distinction, a reverse scan, and compaction.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte, sync bool) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	ScanPrefix(prefix []byte, fn func(key, value []byte) error) error
	ScanReverse(upper []byte, fn func(key, value []byte) error) error
	NewBatch() Batch
	Compact() error
	Close() error
}

// Batch accumulates writes for a single atomic commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit() error
}

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = fmt.Errorf("store: key not found")

// BadgerKV implements KV on top of a single *badger.DB, translating
// directory-lock errors into a clearer message and adding sync puts,
// reverse scan, a batch type, and compaction on top of what Badger
// exposes directly.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (creating if absent) a Badger database at path.
func OpenBadger(path string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process (is another utxoindexd instance running?): %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (b *BadgerKV) Put(key, value []byte, sync bool) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, value))
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	if sync {
		return b.db.Sync()
	}
	return nil
}

func (b *BadgerKV) Delete(key []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

func (b *BadgerKV) Has(key []byte) (bool, error) {
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger has: %w", err)
	}
	return exists, nil
}

func (b *BadgerKV) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanReverse walks keys in descending lexicographic order starting
// at (and including) upper, stopping when fn returns an error or the
// iterator is exhausted.
func (b *BadgerKV) ScanReverse(upper []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(upper); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerKV) NewBatch() Batch {
	return &badgerBatch{wb: b.db.NewWriteBatch()}
}

// Compact flattens the LSM tree and reclaims value-log space, used
// after the first bulk-ingestion pass settles the store.
func (b *BadgerKV) Compact() error {
	if err := b.db.Flatten(1); err != nil {
		return fmt.Errorf("badger flatten: %w", err)
	}
	for {
		if err := b.db.RunValueLogGC(0.5); err != nil {
			if err == badger.ErrNoRewrite {
				return nil
			}
			return fmt.Errorf("badger value log gc: %w", err)
		}
	}
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}

type badgerBatch struct {
	wb *badger.WriteBatch
}

func (bb *badgerBatch) Put(key, value []byte) {
	_ = bb.wb.Set(key, value)
}

func (bb *badgerBatch) Delete(key []byte) {
	_ = bb.wb.Delete(key)
}

func (bb *badgerBatch) Commit() error {
	return bb.wb.Flush()
}
