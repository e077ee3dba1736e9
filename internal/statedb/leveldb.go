// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a Backend that is backed by a goleveldb database.
type LevelDB struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	closed bool
}

// Ensure LevelDB implements the Backend interface.
var _ Backend = (*LevelDB)(nil)

// OpenLevelDB opens or creates the leveldb database at the provided path.
func OpenLevelDB(path string) (*LevelDB, error) {
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, &opts)
	if err != nil {
		return nil, err
	}
	return NewLevelDB(db), nil
}

// NewLevelDB returns a backend that uses the provided open leveldb database.
// The backend takes ownership of the database and closes it when closed.
func NewLevelDB(db *leveldb.DB) *LevelDB {
	return &LevelDB{db: db}
}

// Get returns a copy of the value for the given key.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, contextError(ErrClosed, "leveldb: database is closed")
	}
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, contextError(ErrNotFound, "leveldb: key not found")
	}
	return value, err
}

// Put stores the given value under the given key.
func (l *LevelDB) Put(key, value []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return contextError(ErrClosed, "leveldb: database is closed")
	}
	return l.db.Put(key, value, &opt.WriteOptions{Sync: true})
}

// Delete removes the given key.
func (l *LevelDB) Delete(key []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return contextError(ErrClosed, "leveldb: database is closed")
	}
	return l.db.Delete(key, &opt.WriteOptions{Sync: true})
}

// ForEach invokes the provided function with every key-value pair whose key
// starts with the given prefix.
func (l *LevelDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return contextError(ErrClosed, "leveldb: database is closed")
	}
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// NewBatch returns a new batch of operations.
func (l *LevelDB) NewBatch() Batch {
	return &levelDBBatch{db: l, batch: new(leveldb.Batch)}
}

// Close closes the database.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// levelDBBatch is a Batch that is written to a LevelDB backend when
// committed.
type levelDBBatch struct {
	db    *LevelDB
	batch *leveldb.Batch
	done  bool
}

// Put adds a put operation to the batch.
func (b *levelDBBatch) Put(key, value []byte) error {
	if b.done {
		return contextError(ErrClosed, "leveldb: batch is done")
	}
	b.batch.Put(key, value)
	return nil
}

// Delete adds a delete operation to the batch.
func (b *levelDBBatch) Delete(key []byte) error {
	if b.done {
		return contextError(ErrClosed, "leveldb: batch is done")
	}
	b.batch.Delete(key)
	return nil
}

// Commit atomically writes all operations in the batch.
func (b *levelDBBatch) Commit() error {
	if b.done {
		return contextError(ErrClosed, "leveldb: batch is done")
	}

	b.db.mu.RLock()
	defer b.db.mu.RUnlock()
	if b.db.closed {
		return contextError(ErrClosed, "leveldb: database is closed")
	}
	if err := b.db.db.Write(b.batch, &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	b.done = true
	return nil
}

// Close discards the batch if it was not committed.
func (b *levelDBBatch) Close() error {
	if !b.done {
		b.batch.Reset()
		b.done = true
	}
	return nil
}
