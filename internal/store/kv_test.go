package store

import (
	"bytes"
	"errors"
	"testing"
)

func kvImpls(t *testing.T) map[string]KV {
	t.Helper()
	badger, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { badger.Close() })
	return map[string]KV{
		"memory": NewMemoryKV(),
		"badger": badger,
	}
}

func TestKV_PutGetDelete(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			if err := kv.Put([]byte("a"), []byte("1"), false); err != nil {
				t.Fatalf("Put: %v", err)
			}
			v, err := kv.Get([]byte("a"))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(v, []byte("1")) {
				t.Fatalf("Get = %q, want %q", v, "1")
			}

			if err := kv.Delete([]byte("a")); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := kv.Get([]byte("a")); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
			}
		})
	}
}

func TestKV_Has(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := kv.Has([]byte("missing"))
			if err != nil || ok {
				t.Fatalf("Has(missing) = %v, %v", ok, err)
			}
			kv.Put([]byte("present"), []byte("x"), false)
			ok, err = kv.Has([]byte("present"))
			if err != nil || !ok {
				t.Fatalf("Has(present) = %v, %v", ok, err)
			}
		})
	}
}

func TestKV_ScanPrefix(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			kv.Put([]byte("H1"), []byte("a"), false)
			kv.Put([]byte("H2"), []byte("b"), false)
			kv.Put([]byte("X1"), []byte("c"), false)

			var keys []string
			err := kv.ScanPrefix([]byte("H"), func(key, value []byte) error {
				keys = append(keys, string(key))
				return nil
			})
			if err != nil {
				t.Fatalf("ScanPrefix: %v", err)
			}
			if len(keys) != 2 {
				t.Fatalf("ScanPrefix returned %d keys, want 2: %v", len(keys), keys)
			}
		})
	}
}

func TestKV_ScanPrefix_StopsOnError(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			kv.Put([]byte("H1"), []byte("a"), false)
			kv.Put([]byte("H2"), []byte("b"), false)

			sentinel := errors.New("stop")
			calls := 0
			err := kv.ScanPrefix([]byte("H"), func(key, value []byte) error {
				calls++
				return sentinel
			})
			if !errors.Is(err, sentinel) {
				t.Fatalf("ScanPrefix error = %v, want sentinel", err)
			}
			if calls != 1 {
				t.Fatalf("expected iteration to stop after first error, got %d calls", calls)
			}
		})
	}
}

func TestKV_ScanReverse(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			kv.Put([]byte("H1"), []byte("a"), false)
			kv.Put([]byte("H2"), []byte("b"), false)
			kv.Put([]byte("H3"), []byte("c"), false)

			var keys []string
			err := kv.ScanReverse([]byte("H3"), func(key, value []byte) error {
				keys = append(keys, string(key))
				if len(keys) == 3 {
					return errStop
				}
				return nil
			})
			if !errors.Is(err, errStop) {
				t.Fatalf("ScanReverse error = %v", err)
			}
			want := []string{"H3", "H2", "H1"}
			for i, k := range want {
				if keys[i] != k {
					t.Fatalf("ScanReverse order = %v, want %v", keys, want)
				}
			}
		})
	}
}

var errStop = errors.New("stop")

func TestKV_Batch(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			kv.Put([]byte("keep"), []byte("1"), false)

			b := kv.NewBatch()
			b.Put([]byte("new"), []byte("2"))
			b.Delete([]byte("keep"))
			if err := b.Commit(); err != nil {
				t.Fatalf("Commit: %v", err)
			}

			if _, err := kv.Get([]byte("keep")); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("expected keep to be deleted, got err=%v", err)
			}
			v, err := kv.Get([]byte("new"))
			if err != nil || !bytes.Equal(v, []byte("2")) {
				t.Fatalf("Get(new) = %q, %v", v, err)
			}
		})
	}
}
