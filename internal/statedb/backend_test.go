// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// testBackends returns a fresh instance of every backend type keyed by a
// descriptive name.
func testBackends(t *testing.T) map[string]Backend {
	t.Helper()

	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatalf("unable to open leveldb: %v", err)
	}
	pdb, err := OpenPebbleMem()
	if err != nil {
		t.Fatalf("unable to open pebble: %v", err)
	}
	return map[string]Backend{
		TypeLevelDB: NewLevelDB(ldb),
		TypePebble:  pdb,
	}
}

// TestBackendBasics ensures the basic operations of every backend work as
// intended.
func TestBackendBasics(t *testing.T) {
	t.Parallel()

	for name, backend := range testBackends(t) {
		if _, err := backend.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: mismatched missing key error -- got %v", name, err)
		}

		key, value := []byte("key"), []byte("value")
		if err := backend.Put(key, value); err != nil {
			t.Fatalf("%s: unexpected put error: %v", name, err)
		}
		got, err := backend.Get(key)
		if err != nil {
			t.Fatalf("%s: unexpected get error: %v", name, err)
		}
		if !bytes.Equal(got, value) {
			t.Fatalf("%s: mismatched value -- got %x, want %x", name, got,
				value)
		}

		if err := backend.Delete(key); err != nil {
			t.Fatalf("%s: unexpected delete error: %v", name, err)
		}
		if _, err := backend.Get(key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: key still exists after delete: %v", name, err)
		}
		if err := backend.Delete(key); err != nil {
			t.Fatalf("%s: unexpected error deleting missing key: %v", name,
				err)
		}

		if err := backend.Close(); err != nil {
			t.Fatalf("%s: unexpected close error: %v", name, err)
		}
		if err := backend.Close(); err != nil {
			t.Fatalf("%s: unexpected error closing twice: %v", name, err)
		}
		if _, err := backend.Get(key); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s: mismatched closed get error -- got %v", name, err)
		}
		if err := backend.Put(key, value); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s: mismatched closed put error -- got %v", name, err)
		}
	}
}

// TestBackendForEach ensures iteration only visits the keys with the requested
// prefix in ascending order and stops on error.
func TestBackendForEach(t *testing.T) {
	t.Parallel()

	keys := [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("b"),
		{'a', 0xff},
		{'a', 0xff, 0xff},
		{'b', 0x00},
	}
	tests := []struct {
		prefix []byte
		want   [][]byte
	}{{
		prefix: []byte("a"),
		want: [][]byte{[]byte("a"), []byte("ab"), []byte("abc"),
			{'a', 0xff}, {'a', 0xff, 0xff}},
	}, {
		prefix: []byte("ab"),
		want:   [][]byte{[]byte("ab"), []byte("abc")},
	}, {
		prefix: []byte{'a', 0xff},
		want:   [][]byte{{'a', 0xff}, {'a', 0xff, 0xff}},
	}, {
		prefix: []byte("c"),
		want:   nil,
	}}

	for name, backend := range testBackends(t) {
		for _, key := range keys {
			if err := backend.Put(key, key); err != nil {
				t.Fatalf("%s: unexpected put error: %v", name, err)
			}
		}

		for _, test := range tests {
			var got [][]byte
			err := backend.ForEach(test.prefix, func(key, value []byte) error {
				if !bytes.Equal(key, value) {
					t.Fatalf("%s: mismatched value for key %x", name, key)
				}
				got = append(got, append([]byte(nil), key...))
				return nil
			})
			if err != nil {
				t.Fatalf("%s: unexpected iteration error: %v", name, err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("%s: prefix %x: mismatched keys -- got %x, want %x",
					name, test.prefix, got, test.want)
			}
			for i := range got {
				if !bytes.Equal(got[i], test.want[i]) {
					t.Fatalf("%s: prefix %x: mismatched key %d -- got %x, "+
						"want %x", name, test.prefix, i, got[i], test.want[i])
				}
			}
		}

		errStop := errors.New("stop")
		var visited int
		err := backend.ForEach([]byte("a"), func(key, value []byte) error {
			visited++
			return errStop
		})
		if !errors.Is(err, errStop) || visited != 1 {
			t.Fatalf("%s: iteration did not stop -- err %v, visited %d", name,
				err, visited)
		}
		backend.Close()
	}
}

// TestBackendBatch ensures batches are only applied when committed and can't
// be reused afterwards.
func TestBackendBatch(t *testing.T) {
	t.Parallel()

	for name, backend := range testBackends(t) {
		if err := backend.Put([]byte("old"), []byte{0x01}); err != nil {
			t.Fatalf("%s: unexpected put error: %v", name, err)
		}

		// Discarded batches have no effect.
		batch := backend.NewBatch()
		batch.Put([]byte("discarded"), []byte{0x02})
		batch.Delete([]byte("old"))
		if err := batch.Close(); err != nil {
			t.Fatalf("%s: unexpected close error: %v", name, err)
		}
		if _, err := backend.Get([]byte("discarded")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: discarded batch was applied", name)
		}
		if _, err := backend.Get([]byte("old")); err != nil {
			t.Fatalf("%s: discarded batch deleted key: %v", name, err)
		}
		if err := batch.Put([]byte("x"), nil); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s: mismatched closed batch error -- got %v", name, err)
		}

		// Committed batches apply every operation.
		batch = backend.NewBatch()
		if err := batch.Put([]byte("new"), []byte{0x03}); err != nil {
			t.Fatalf("%s: unexpected batch put error: %v", name, err)
		}
		if err := batch.Delete([]byte("old")); err != nil {
			t.Fatalf("%s: unexpected batch delete error: %v", name, err)
		}
		if _, err := backend.Get([]byte("new")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: batch applied before commit", name)
		}
		if err := batch.Commit(); err != nil {
			t.Fatalf("%s: unexpected commit error: %v", name, err)
		}
		if _, err := backend.Get([]byte("new")); err != nil {
			t.Fatalf("%s: committed put not applied: %v", name, err)
		}
		if _, err := backend.Get([]byte("old")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: committed delete not applied", name)
		}
		if err := batch.Commit(); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s: mismatched recommit error -- got %v", name, err)
		}
		if err := batch.Close(); err != nil {
			t.Fatalf("%s: unexpected close after commit error: %v", name, err)
		}
		backend.Close()
	}
}

// TestOpen ensures backends can be opened on disk by type and reopened with
// their contents intact.
func TestOpen(t *testing.T) {
	t.Parallel()

	for _, backendType := range SupportedBackends() {
		path := filepath.Join(t.TempDir(), backendType)
		backend, err := Open(backendType, path)
		if err != nil {
			t.Fatalf("%s: unexpected open error: %v", backendType, err)
		}
		if err := backend.Put([]byte("key"), []byte("value")); err != nil {
			t.Fatalf("%s: unexpected put error: %v", backendType, err)
		}
		if err := backend.Close(); err != nil {
			t.Fatalf("%s: unexpected close error: %v", backendType, err)
		}

		backend, err = Open(backendType, path)
		if err != nil {
			t.Fatalf("%s: unexpected reopen error: %v", backendType, err)
		}
		if _, err := backend.Get([]byte("key")); err != nil {
			t.Fatalf("%s: value not persisted: %v", backendType, err)
		}
		backend.Close()
	}

	if _, err := Open("bogus", t.TempDir()); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("mismatched unknown backend error -- got %v", err)
	}
}

// TestPrefixUpperBound ensures the upper bound of a prefix is calculated
// correctly including when bytes overflow.
func TestPrefixUpperBound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
	}
	for _, test := range tests {
		got := prefixUpperBound(test.prefix)
		if !bytes.Equal(got, test.want) {
			t.Errorf("prefix %x: mismatched upper bound -- got %x, want %x",
				test.prefix, got, test.want)
		}
	}
}
