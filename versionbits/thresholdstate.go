// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ThresholdState define the various threshold states used when voting on
// consensus changes.
type ThresholdState byte

// These constants are used to identify specific threshold states.
const (
	// ThresholdInvalid is an invalid state and exists for use as the zero value
	// in error paths.
	ThresholdInvalid ThresholdState = iota

	// ThresholdDefined is the initial state for each deployment and is the
	// state for the genesis block has by definition for all deployments.
	ThresholdDefined

	// ThresholdStarted is the state for a deployment once its start time has
	// been reached.
	ThresholdStarted

	// ThresholdLockedIn is the state for a deployment during the period
	// which is after the ThresholdStarted state period and the number of
	// blocks that have signaled for the deployment equal or exceed the
	// required threshold for the deployment.
	ThresholdLockedIn

	// ThresholdActive is the state for a deployment for all blocks after a
	// period in which the deployment was in the ThresholdLockedIn state.
	ThresholdActive

	// ThresholdFailed is the state for a deployment once its timeout has
	// been reached and it did not reach the ThresholdLockedIn state.
	ThresholdFailed

	// numThresholdStates is the maximum number of threshold states used in
	// tests.
	numThresholdStates
)

// thresholdStateStrings is a map of ThresholdState values back to their
// constant names for pretty printing.
var thresholdStateStrings = map[ThresholdState]string{
	ThresholdInvalid:  "ThresholdInvalid",
	ThresholdDefined:  "ThresholdDefined",
	ThresholdStarted:  "ThresholdStarted",
	ThresholdLockedIn: "ThresholdLockedIn",
	ThresholdActive:   "ThresholdActive",
	ThresholdFailed:   "ThresholdFailed",
}

// String returns the ThresholdState as a human-readable name.
func (t ThresholdState) String() string {
	if s := thresholdStateStrings[t]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ThresholdState (%d)", int(t))
}

// IsValid returns whether the state is one of the states a deployment may be
// in.
func (t ThresholdState) IsValid() bool {
	return t > ThresholdInvalid && t < numThresholdStates
}

// IsTerminal returns whether the state can never change again.
func (t ThresholdState) IsTerminal() bool {
	return t == ThresholdActive || t == ThresholdFailed
}

// BlockNode is the view of a block in the chain that the activation logic
// requires.  Implementations must return nil (not a typed nil pointer wrapped
// in the interface) from Parent and Ancestor when no such node exists, and
// the same node must always be represented by the same comparable value so it
// can be used as a cache key.
type BlockNode interface {
	// Hash returns the hash of the block.
	Hash() chainhash.Hash

	// Height returns the height of the block.
	Height() int64

	// Parent returns the parent of the block or nil for the genesis block.
	Parent() BlockNode

	// Ancestor returns the ancestor at the provided height or nil when the
	// height is negative or greater than the height of the block.
	Ancestor(height int64) BlockNode

	// MedianTimePast returns the median timestamp of the previous few blocks
	// prior to, and including, the block.
	MedianTimePast() int64

	// Timestamp returns the timestamp of the block.
	Timestamp() int64

	// Version returns the version field of the block.
	Version() int32
}

// CachedState is a single cached threshold state of a deployment along with
// the boundary block it belongs to.
type CachedState struct {
	Hash   chainhash.Hash
	Height int64
	State  ThresholdState
}

// Snapshot houses all cached threshold states of a deployment.  It is used to
// persist and restore the caches across restarts.
type Snapshot struct {
	Deployment string
	States     []CachedState
}
