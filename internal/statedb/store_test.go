// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import (
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"github.com/decred/versionbits/internal/blockindex"
	"github.com/decred/versionbits/versionbits"
)

// testGenesisTime is the timestamp of the genesis block of the test chain.
const testGenesisTime = 1514764800

// buildTestChain returns a block index with a chain of the provided length
// where every block signals with the provided version.
func buildTestChain(t *testing.T, numBlocks int, version int32) *blockindex.Index {
	t.Helper()

	idx, err := blockindex.New(&wire.BlockHeader{
		Version:   1,
		Bits:      0x207fffff,
		Timestamp: time.Unix(testGenesisTime, 0),
	})
	if err != nil {
		t.Fatalf("unable to create block index: %v", err)
	}
	parent := idx.Genesis()
	for i := 0; i < numBlocks; i++ {
		node, err := idx.AddHeader(&wire.BlockHeader{
			Version:   version,
			PrevBlock: parent.Hash(),
			Bits:      0x207fffff,
			Height:    uint32(parent.Height() + 1),
			Timestamp: time.Unix(testGenesisTime+100, 0),
		})
		if err != nil {
			t.Fatalf("unable to add header: %v", err)
		}
		parent = node
	}
	return idx
}

// TestStoreVersion ensures the storage format version is written to new
// databases and verified for existing ones.
func TestStoreVersion(t *testing.T) {
	t.Parallel()

	for name, backend := range testBackends(t) {
		if _, err := New(backend); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		serialized, err := backend.Get(versionKeyName)
		if err != nil {
			t.Fatalf("%s: version not written: %v", name, err)
		}
		if version := binary.BigEndian.Uint32(serialized); version != currentVersion {
			t.Fatalf("%s: mismatched version %d", name, version)
		}

		// Reopening with the same version succeeds.
		if _, err := New(backend); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}

		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], currentVersion+1)
		backend.Put(versionKeyName, buf[:])
		if _, err := New(backend); !errors.Is(err, ErrVersionMismatch) {
			t.Fatalf("%s: mismatched error -- got %v, want %v", name, err,
				ErrVersionMismatch)
		}

		backend.Put(versionKeyName, buf[:3])
		if _, err := New(backend); !errors.Is(err, ErrCorruptEntry) {
			t.Fatalf("%s: mismatched error -- got %v, want %v", name, err,
				ErrCorruptEntry)
		}
		backend.Close()
	}
}

// TestSnapshotRoundTrip ensures snapshots are loaded in the same order the
// trackers produce them and that saving replaces the previous states.
func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	hashA := chainhash.HashH([]byte("a"))
	hashB := chainhash.HashH([]byte("b"))
	hashC := chainhash.HashH([]byte("c"))
	first := versionbits.Snapshot{
		Deployment: "testdummy",
		States: []versionbits.CachedState{
			{Hash: hashA, Height: 9, State: versionbits.ThresholdStarted},
			{Hash: hashB, Height: 19, State: versionbits.ThresholdLockedIn},
			{Hash: hashC, Height: 19, State: versionbits.ThresholdStarted},
		},
	}
	if first.States[1].Hash.String() > first.States[2].Hash.String() {
		first.States[1], first.States[2] = first.States[2], first.States[1]
	}
	second := versionbits.Snapshot{
		Deployment: "testdummy",
		States: []versionbits.CachedState{
			{Hash: hashC, Height: 29, State: versionbits.ThresholdActive},
		},
	}
	other := versionbits.Snapshot{
		Deployment: "testdummy2",
		States: []versionbits.CachedState{
			{Hash: hashA, Height: 9, State: versionbits.ThresholdFailed},
		},
	}

	for name, backend := range testBackends(t) {
		store, err := New(backend)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}

		empty, err := store.LoadSnapshot("testdummy")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(empty.States) != 0 || empty.Deployment != "testdummy" {
			t.Fatalf("%s: unexpected states for empty store: %v", name,
				spew.Sdump(empty))
		}

		for _, snapshot := range []*versionbits.Snapshot{&first, &other} {
			if err := store.SaveSnapshot(snapshot); err != nil {
				t.Fatalf("%s: unexpected save error: %v", name, err)
			}
		}
		got, err := store.LoadSnapshot("testdummy")
		if err != nil {
			t.Fatalf("%s: unexpected load error: %v", name, err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("%s: mismatched snapshot\ngot: %v\nwant: %v", name,
				spew.Sdump(got), spew.Sdump(first))
		}

		// Saving again replaces the states of that deployment only.
		if err := store.SaveSnapshot(&second); err != nil {
			t.Fatalf("%s: unexpected save error: %v", name, err)
		}
		got, err = store.LoadSnapshot("testdummy")
		if err != nil {
			t.Fatalf("%s: unexpected load error: %v", name, err)
		}
		if !reflect.DeepEqual(got, second) {
			t.Fatalf("%s: mismatched snapshot\ngot: %v\nwant: %v", name,
				spew.Sdump(got), spew.Sdump(second))
		}
		got, err = store.LoadSnapshot("testdummy2")
		if err != nil {
			t.Fatalf("%s: unexpected load error: %v", name, err)
		}
		if !reflect.DeepEqual(got, other) {
			t.Fatalf("%s: mismatched snapshot\ngot: %v\nwant: %v", name,
				spew.Sdump(got), spew.Sdump(other))
		}

		// Names that can't be encoded are rejected.
		long := versionbits.Snapshot{Deployment: strings.Repeat("x", 256)}
		if err := store.SaveSnapshot(&long); !errors.Is(err, ErrNameTooLong) {
			t.Fatalf("%s: mismatched error -- got %v, want %v", name, err,
				ErrNameTooLong)
		}

		// Corrupt entries are detected.
		prefix, _ := deploymentPrefix("testdummy")
		backend.Put(append(prefix, 0x01), []byte{0x01})
		if _, err := store.LoadSnapshot("testdummy"); !errors.Is(err, ErrCorruptEntry) {
			t.Fatalf("%s: mismatched error -- got %v, want %v", name, err,
				ErrCorruptEntry)
		}

		if err := store.Close(); err != nil {
			t.Fatalf("%s: unexpected close error: %v", name, err)
		}
	}
}

// TestRegistryRoundTrip ensures the caches of a registry evaluated against a
// block index are restored into a new registry from the store.
func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	const period, threshold = 10, 8
	deployments := []versionbits.Deployment{{
		Name:      "signaled",
		Bit:       1,
		StartTime: testGenesisTime,
		Timeout:   versionbits.NoTimeout,
		Period:    period,
		Threshold: threshold,
	}, {
		Name:      "unsignaled",
		Bit:       2,
		StartTime: testGenesisTime,
		Timeout:   versionbits.NoTimeout,
		Period:    period,
		Threshold: threshold,
	}}
	idx := buildTestChain(t, 45, versionbits.VersionBitsTopBits|1<<1)

	newRegistry := func() *versionbits.Registry {
		r := versionbits.NewRegistry(nil)
		for _, d := range deployments {
			if err := r.AddDeployment(d); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		return r
	}

	for name, backend := range testBackends(t) {
		store, err := New(backend)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}

		orig := newRegistry()
		orig.Update(idx.BestHeader())
		if err := store.SaveRegistry(orig); err != nil {
			t.Fatalf("%s: unexpected save error: %v", name, err)
		}

		restored := newRegistry()
		if err := store.LoadRegistry(restored, idx.Lookup); err != nil {
			t.Fatalf("%s: unexpected load error: %v", name, err)
		}
		if !reflect.DeepEqual(orig.Snapshot(), restored.Snapshot()) {
			t.Fatalf("%s: mismatched restored snapshots\ngot: %v\nwant: %v",
				name, spew.Sdump(restored.Snapshot()),
				spew.Sdump(orig.Snapshot()))
		}
		restored.Update(idx.BestHeader())
		if !restored.IsActive("signaled") {
			t.Fatalf("%s: restored deployment is not active", name)
		}
		if restored.IsActive("unsignaled") {
			t.Fatalf("%s: restored unsignaled deployment is active", name)
		}

		// Loading states for blocks that are not in the index fails.
		other := buildTestChain(t, 5, versionbits.VersionBitsTopBits)
		if err := store.LoadRegistry(newRegistry(), other.Lookup); !errors.Is(err, versionbits.ErrUnknownBlock) {
			t.Fatalf("%s: mismatched error -- got %v, want %v", name, err,
				versionbits.ErrUnknownBlock)
		}
		store.Close()
	}
}
