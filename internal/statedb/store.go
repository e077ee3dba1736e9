// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/versionbits/versionbits"
)

const (
	// currentVersion is the current version of the storage format.
	currentVersion = 1

	// maxNameLen is the maximum length of a deployment name that can be
	// stored since the length is serialized as a single byte.
	maxNameLen = 255

	// stateValueLen is the length of a serialized cached state.  It consists
	// of the state followed by the big-endian height of the boundary.
	stateValueLen = 1 + 8
)

var (
	// versionKeyName is the name of the key that houses the version of the
	// storage format.
	versionKeyName = []byte("vbver")

	// statePrefix is the prefix of all cached state keys.  The full key is
	// the prefix, the length of the deployment name as a single byte, the
	// deployment name and the hash of the boundary block.
	statePrefix = []byte("vbts")
)

// Store persists the cached threshold states of deployments in a backend.
type Store struct {
	backend Backend
}

// New returns a store that uses the provided backend.  The storage format
// version is written when the backend is empty and an error with the kind
// ErrVersionMismatch is returned when it is not the current version.
func New(backend Backend) (*Store, error) {
	serialized, err := backend.Get(versionKeyName)
	switch {
	case errors.Is(err, ErrNotFound):
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], currentVersion)
		if err := backend.Put(versionKeyName, buf[:]); err != nil {
			return nil, err
		}
		log.Debugf("Initialized state database version %d", currentVersion)

	case err != nil:
		return nil, err

	default:
		if len(serialized) != 4 {
			str := fmt.Sprintf("state database version has %d bytes instead "+
				"of 4", len(serialized))
			return nil, contextError(ErrCorruptEntry, str)
		}
		version := binary.BigEndian.Uint32(serialized)
		if version != currentVersion {
			str := fmt.Sprintf("state database version %d is not supported "+
				"(current version %d)", version, currentVersion)
			return nil, contextError(ErrVersionMismatch, str)
		}
	}

	return &Store{backend: backend}, nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// deploymentPrefix returns the key prefix of all cached states of the
// deployment with the provided name.
func deploymentPrefix(name string) ([]byte, error) {
	if len(name) > maxNameLen {
		str := fmt.Sprintf("deployment name %q is longer than %d bytes", name,
			maxNameLen)
		return nil, contextError(ErrNameTooLong, str)
	}
	prefix := make([]byte, 0, len(statePrefix)+1+len(name)+chainhash.HashSize)
	prefix = append(prefix, statePrefix...)
	prefix = append(prefix, byte(len(name)))
	prefix = append(prefix, name...)
	return prefix, nil
}

// serializeState returns the serialized value of the provided cached state.
func serializeState(state *versionbits.CachedState) []byte {
	var buf [stateValueLen]byte
	buf[0] = byte(state.State)
	binary.BigEndian.PutUint64(buf[1:], uint64(state.Height))
	return buf[:]
}

// deserializeState decodes the provided key suffix and value into a cached
// state.
func deserializeState(hashBytes, value []byte) (versionbits.CachedState, error) {
	if len(hashBytes) != chainhash.HashSize || len(value) != stateValueLen {
		str := fmt.Sprintf("cached state entry has a %d byte hash and a %d "+
			"byte value", len(hashBytes), len(value))
		return versionbits.CachedState{}, contextError(ErrCorruptEntry, str)
	}
	var state versionbits.CachedState
	copy(state.Hash[:], hashBytes)
	state.State = versionbits.ThresholdState(value[0])
	state.Height = int64(binary.BigEndian.Uint64(value[1:]))
	return state, nil
}

// putSnapshot adds the operations which replace all stored states of the
// deployment in the snapshot with the states in the snapshot to the batch.
func (s *Store) putSnapshot(batch Batch, snapshot *versionbits.Snapshot) error {
	prefix, err := deploymentPrefix(snapshot.Deployment)
	if err != nil {
		return err
	}

	// Remove the existing entries of the deployment.
	var staleKeys [][]byte
	err = s.backend.ForEach(prefix, func(key, _ []byte) error {
		staleKeys = append(staleKeys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range staleKeys {
		if err := batch.Delete(key); err != nil {
			return err
		}
	}

	for i := range snapshot.States {
		state := &snapshot.States[i]
		key := append(append([]byte(nil), prefix...), state.Hash[:]...)
		if err := batch.Put(key, serializeState(state)); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot atomically replaces all stored states of the deployment in the
// provided snapshot with the states in the snapshot.
func (s *Store) SaveSnapshot(snapshot *versionbits.Snapshot) error {
	batch := s.backend.NewBatch()
	defer batch.Close()

	if err := s.putSnapshot(batch, snapshot); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	log.Debugf("Saved %d cached states for deployment %s",
		len(snapshot.States), snapshot.Deployment)
	return nil
}

// LoadSnapshot returns all stored states of the deployment with the provided
// name ordered by height.  A snapshot without any states is returned when
// nothing is stored for the deployment.
func (s *Store) LoadSnapshot(name string) (versionbits.Snapshot, error) {
	snapshot := versionbits.Snapshot{Deployment: name}
	prefix, err := deploymentPrefix(name)
	if err != nil {
		return snapshot, err
	}

	err = s.backend.ForEach(prefix, func(key, value []byte) error {
		state, err := deserializeState(key[len(prefix):], value)
		if err != nil {
			return err
		}
		snapshot.States = append(snapshot.States, state)
		return nil
	})
	if err != nil {
		return snapshot, err
	}

	// Order the states the same way they are ordered by the trackers.
	states := snapshot.States
	sort.Slice(states, func(i, j int) bool {
		if states[i].Height != states[j].Height {
			return states[i].Height < states[j].Height
		}
		return states[i].Hash.String() < states[j].Hash.String()
	})
	return snapshot, nil
}

// SaveRegistry atomically stores the cached states of every deployment in the
// provided registry.
func (s *Store) SaveRegistry(registry *versionbits.Registry) error {
	batch := s.backend.NewBatch()
	defer batch.Close()

	snapshots := registry.Snapshot()
	for i := range snapshots {
		if err := s.putSnapshot(batch, &snapshots[i]); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	log.Infof("Saved cached states for %d deployments", len(snapshots))
	return nil
}

// LoadRegistry restores the caches of every deployment in the provided
// registry from the stored states.  The lookup function must return the block
// node for a given hash or nil when it is not known.
func (s *Store) LoadRegistry(registry *versionbits.Registry, lookup func(*chainhash.Hash) versionbits.BlockNode) error {
	deployments := registry.Deployments()
	snapshots := make([]versionbits.Snapshot, 0, len(deployments))
	var numStates int
	for _, d := range deployments {
		snapshot, err := s.LoadSnapshot(d.Name)
		if err != nil {
			return err
		}
		numStates += len(snapshot.States)
		snapshots = append(snapshots, snapshot)
	}
	if err := registry.Restore(snapshots, lookup); err != nil {
		return err
	}
	log.Infof("Loaded %d cached states for %d deployments", numStates,
		len(snapshots))
	return nil
}
