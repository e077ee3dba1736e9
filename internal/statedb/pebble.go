// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Pebble is a Backend that is backed by a pebble database.
type Pebble struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

// Ensure Pebble implements the Backend interface.
var _ Backend = (*Pebble)(nil)

// OpenPebble opens or creates the pebble database at the provided path.
func OpenPebble(path string) (*Pebble, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 * 1024 * 1024), // 8MB
		MemTableSize: 4 * 1024 * 1024,                  // 4MB
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

// OpenPebbleMem opens a new pebble database that is only stored in memory.
func OpenPebbleMem() (*Pebble, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

// Get returns a copy of the value for the given key.
func (p *Pebble) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, contextError(ErrClosed, "pebble: database is closed")
	}
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, contextError(ErrNotFound, "pebble: key not found")
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Put stores the given value under the given key.
func (p *Pebble) Put(key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return contextError(ErrClosed, "pebble: database is closed")
	}
	return p.db.Set(key, value, pebble.Sync)
}

// Delete removes the given key.
func (p *Pebble) Delete(key []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return contextError(ErrClosed, "pebble: database is closed")
	}
	return p.db.Delete(key, pebble.Sync)
}

// ForEach invokes the provided function with every key-value pair whose key
// starts with the given prefix.
func (p *Pebble) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return contextError(ErrClosed, "pebble: database is closed")
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			iter.Close()
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			iter.Close()
			return err
		}
	}
	return iter.Close()
}

// NewBatch returns a new batch of operations.
func (p *Pebble) NewBatch() Batch {
	return &pebbleBatch{db: p, batch: p.db.NewBatch()}
}

// Close closes the database.
func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

// pebbleBatch is a Batch that is written to a Pebble backend when committed.
type pebbleBatch struct {
	db    *Pebble
	batch *pebble.Batch
	done  atomic.Bool
}

// Put adds a put operation to the batch.
func (b *pebbleBatch) Put(key, value []byte) error {
	if b.done.Load() {
		return contextError(ErrClosed, "pebble: batch is done")
	}
	return b.batch.Set(key, value, nil)
}

// Delete adds a delete operation to the batch.
func (b *pebbleBatch) Delete(key []byte) error {
	if b.done.Load() {
		return contextError(ErrClosed, "pebble: batch is done")
	}
	return b.batch.Delete(key, nil)
}

// Commit atomically writes all operations in the batch.
func (b *pebbleBatch) Commit() error {
	if b.done.Load() {
		return contextError(ErrClosed, "pebble: batch is done")
	}

	b.db.mu.RLock()
	defer b.db.mu.RUnlock()
	if b.db.closed {
		return contextError(ErrClosed, "pebble: database is closed")
	}
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return err
	}
	b.done.Store(true)
	return b.batch.Close()
}

// Close discards the batch if it was not committed.
func (b *pebbleBatch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
