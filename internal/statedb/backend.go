// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import "fmt"

// Backend represents a key-value storage interface providing the basic
// operations needed to persist deployment states.
type Backend interface {
	// Get returns a copy of the value for the given key.  An error with the
	// kind ErrNotFound is returned when the key does not exist.
	Get(key []byte) ([]byte, error)

	// Put stores the given value under the given key.
	Put(key, value []byte) error

	// Delete removes the given key.  Deleting a key that does not exist is
	// not an error.
	Delete(key []byte) error

	// NewBatch returns a new batch of operations that are applied atomically
	// when committed.
	NewBatch() Batch

	// ForEach invokes the provided function with every key-value pair whose
	// key starts with the given prefix in ascending key order.  The slices
	// are only valid for the duration of the call.  Iteration stops when the
	// function returns an error and that error is returned.
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// Close closes the backend.  Closing an already closed backend is not an
	// error.
	Close() error
}

// Batch represents an atomic batch of operations.  A batch may not be used
// after it is committed or closed.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Backend types that may be opened with Open.
const (
	TypeLevelDB = "leveldb"
	TypePebble  = "pebble"
)

// SupportedBackends returns the backend types that may be opened with Open.
func SupportedBackends() []string {
	return []string{TypeLevelDB, TypePebble}
}

// Open opens or creates the backend of the provided type at the given path.
func Open(backendType, path string) (Backend, error) {
	switch backendType {
	case TypeLevelDB:
		return OpenLevelDB(path)
	case TypePebble:
		return OpenPebble(path)
	}
	str := fmt.Sprintf("unknown state database type %q", backendType)
	return nil, contextError(ErrUnknownBackend, str)
}

// prefixUpperBound returns the smallest key that is greater than every key
// with the provided prefix or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
