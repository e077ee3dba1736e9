// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// StateTracker tracks the threshold state of a single deployment as the chain
// evolves.
//
// A period boundary is the final block of a period, that is, a block whose
// height plus one is a multiple of the deployment period.  The state of every
// block in a period is determined by the boundary that precedes the period.
type StateTracker interface {
	// Deployment returns the deployment the tracker evaluates.
	Deployment() Deployment

	// Update evaluates and caches the states of all boundaries up to and
	// including the most recent boundary at or below the provided tip.  It
	// returns whether the state of that boundary is now known.
	Update(tip BlockNode) bool

	// StateAt returns the state that applies to the provided block.
	StateAt(node BlockNode) ThresholdState

	// LastCachedStatePriorTo returns the state that applies to the block
	// that would extend the provided tip.
	LastCachedStatePriorTo(tip BlockNode) ThresholdState

	// Statistics returns the signaling statistics of the period that is in
	// progress as of the provided tip.
	Statistics(tip BlockNode) Stats

	// StateSinceHeight returns the height of the first block of the period
	// in which the state for the block after the provided tip began.
	StateSinceHeight(tip BlockNode) int64

	// Snapshot returns all cached states ordered by height.
	Snapshot() []CachedState

	// CheckRestore returns the error Restore would return for the provided
	// states without modifying the cache.
	CheckRestore(states []CachedState, lookup func(*chainhash.Hash) BlockNode) error

	// Restore populates the cache from previously snapshotted states.
	Restore(states []CachedState, lookup func(*chainhash.Hash) BlockNode) error
}

// CachedTracker is the StateTracker implementation that caches the state of
// every period boundary it evaluates so that each boundary is only ever
// calculated once.
//
// The tracker performs no locking.  Update and Restore MUST be serialized with
// respect to every other method.
type CachedTracker struct {
	deployment   Deployment
	alwaysActive bool
	viable       bool
	cache        thresholdStateCache
}

// Ensure the CachedTracker type implements the StateTracker interface.
var _ StateTracker = (*CachedTracker)(nil)

// NewCachedTracker returns a tracker for the provided deployment with an empty
// cache.
func NewCachedTracker(d Deployment) *CachedTracker {
	return &CachedTracker{
		deployment:   d,
		alwaysActive: d.IsAlwaysActive(),
		viable:       d.IsViable(),
		cache:        newThresholdStateCache(),
	}
}

// Deployment returns the deployment the tracker evaluates.
func (t *CachedTracker) Deployment() Deployment {
	return t.deployment
}

// isBoundary returns whether the provided node is the final block of a period.
func (t *CachedTracker) isBoundary(node BlockNode) bool {
	return (node.Height()+1)%t.deployment.Period == 0
}

// boundaryAtOrBelow returns the most recent period boundary that is either the
// provided node itself or one of its ancestors.  Nil is returned when the chain
// up to the node does not contain a complete period.
func (t *CachedTracker) boundaryAtOrBelow(node BlockNode) BlockNode {
	if node == nil {
		return nil
	}
	height := node.Height()
	return node.Ancestor(height - (height+1)%t.deployment.Period)
}

// previousBoundary returns the boundary one period before the provided
// boundary or nil when there is none.
func (t *CachedTracker) previousBoundary(boundary BlockNode) BlockNode {
	return boundary.Ancestor(boundary.Height() - t.deployment.Period)
}

// lookupState returns the cached state of the provided boundary.  When it is
// not cached, it iterates backwards one period at a time until a cached state
// is found and returns that instead.  ThresholdDefined is returned when no
// cached state exists all the way back to the start of the chain.
//
// The cache is never modified.
func (t *CachedTracker) lookupState(boundary BlockNode) ThresholdState {
	for boundary != nil {
		if state, ok := t.cache.Lookup(boundary); ok {
			return state
		}
		boundary = t.previousBoundary(boundary)
	}
	return ThresholdDefined
}

// StateAt returns the state that applies to the provided block.  Since every
// block in a period shares the same state, it is the state determined at the
// most recent boundary strictly before the block.  This means a block that is
// itself a boundary has the state of the previous boundary.
//
// Always active deployments are ThresholdActive and non viable deployments are
// ThresholdFailed for all blocks, including a nil block.  Otherwise a nil block
// is ThresholdDefined.
//
// Only states cached by previous calls to Update are considered.
func (t *CachedTracker) StateAt(node BlockNode) ThresholdState {
	switch {
	case t.alwaysActive:
		return ThresholdActive
	case !t.viable:
		return ThresholdFailed
	case node == nil:
		return ThresholdDefined
	}

	return t.lookupState(t.boundaryAtOrBelow(node.Parent()))
}

// LastCachedStatePriorTo returns the state that applies to the block that
// would extend the provided tip, which is the state determined at the most
// recent boundary at or below the tip.  A nil tip, meaning there is no chain
// yet, results in ThresholdDefined for viable deployments.
//
// Only states cached by previous calls to Update are considered.
func (t *CachedTracker) LastCachedStatePriorTo(tip BlockNode) ThresholdState {
	switch {
	case t.alwaysActive:
		return ThresholdActive
	case !t.viable:
		return ThresholdFailed
	}

	return t.lookupState(t.boundaryAtOrBelow(tip))
}

// IsSignaledFor returns whether the provided block signals for the tracked
// deployment.
func (t *CachedTracker) IsSignaledFor(node BlockNode) bool {
	return IsSignaling(node.Version(), t.deployment.Bit)
}

// enoughSignalsToLockIn returns whether at least the threshold number of blocks
// in the period that ends with the provided boundary signal for the
// deployment.  Counting stops early when the chain is shorter than a period.
func (t *CachedTracker) enoughSignalsToLockIn(boundary BlockNode) bool {
	var count int64
	node := boundary
	for i := int64(0); i < t.deployment.Period && node != nil; i++ {
		if t.IsSignaledFor(node) {
			count++
			if count >= t.deployment.Threshold {
				return true
			}
		}
		node = node.Parent()
	}
	return count >= t.deployment.Threshold
}

// nextState returns the state that results from applying the transition
// function to the provided state of the previous boundary given the provided
// boundary.
func (t *CachedTracker) nextState(state ThresholdState, boundary BlockNode) ThresholdState {
	d := &t.deployment
	switch state {
	case ThresholdDefined:
		// The deployment of the rule change fails if it expires before it is
		// accepted and locked in.
		medianTime := boundary.MedianTimePast()
		if medianTime >= d.Timeout {
			log.Debugf("Deployment %s moving from state=%v to state=%v at "+
				"height %d", d.Name, state, ThresholdFailed, boundary.Height())
			return ThresholdFailed
		}

		// The state for the rule moves to the started state once its start
		// time has been reached (and it hasn't already expired per the
		// above).
		if medianTime >= d.StartTime {
			log.Debugf("Deployment %s moving from state=%v to state=%v at "+
				"height %d", d.Name, state, ThresholdStarted, boundary.Height())
			return ThresholdStarted
		}

	case ThresholdStarted:
		// The deployment of the rule change fails if it expires before it is
		// accepted and locked in.
		if boundary.MedianTimePast() >= d.Timeout {
			log.Debugf("Deployment %s moving from state=%v to state=%v at "+
				"height %d", d.Name, state, ThresholdFailed, boundary.Height())
			return ThresholdFailed
		}

		// The state is locked in if the number of blocks in the period that
		// signaled for the rule change meets the activation threshold.
		if t.enoughSignalsToLockIn(boundary) {
			log.Debugf("Deployment %s moving from state=%v to state=%v at "+
				"height %d", d.Name, state, ThresholdLockedIn, boundary.Height())
			return ThresholdLockedIn
		}

	case ThresholdLockedIn:
		// The new rule becomes active when its previous state was locked in.
		log.Debugf("Deployment %s moving from state=%v to state=%v at "+
			"height %d", d.Name, state, ThresholdActive, boundary.Height())
		return ThresholdActive

	// Nothing to do if the previous state is active or failed since they are
	// both terminal states.
	case ThresholdActive:
	case ThresholdFailed:
	}

	return state
}

// Update evaluates and caches the state of the most recent boundary at or
// below the provided tip along with every uncached boundary before it.
//
// It returns true when the state of that boundary is known after the call,
// which is always the case for viable deployments, and also when the chain does
// not yet contain a complete period.  Always active deployments return true and
// non viable deployments return false without touching the cache.
//
// This function MUST be called with the chain state lock held (for writes).
func (t *CachedTracker) Update(tip BlockNode) bool {
	if t.alwaysActive {
		return true
	}
	if !t.viable {
		return false
	}

	target := t.boundaryAtOrBelow(tip)
	if target == nil {
		return true
	}

	// Iterate backwards through each of the previous boundaries to find the
	// most recently cached threshold state.
	var neededStates []BlockNode
	node := target
	for node != nil {
		// Nothing more to do if the state of the boundary is already cached.
		if _, ok := t.cache.Lookup(node); ok {
			break
		}

		// Add this node to the list of nodes that need the state calculated
		// and cached.
		neededStates = append(neededStates, node)
		node = t.previousBoundary(node)
	}

	// Start with the threshold state for the most recent boundary that has a
	// cached state.  The start of the chain is defined by definition.
	state := ThresholdDefined
	if node != nil {
		var ok bool
		state, ok = t.cache.Lookup(node)
		if !ok {
			// A cache entry is guaranteed to exist due to the above code and
			// the code below relies on it, so assert the assumption.
			panicf("threshold state cache lookup failed for %v", node.Hash())
		}
	}

	// Since each threshold state depends on the state of the previous
	// boundary, iterate starting from the oldest unknown boundary.
	for i := len(neededStates) - 1; i >= 0; i-- {
		boundary := neededStates[i]
		state = t.nextState(state, boundary)

		// Update the cache to avoid recalculating the state in the future.
		t.cache.Update(boundary, state)
	}

	_, ok := t.cache.Lookup(target)
	return ok
}

// Snapshot returns all cached states ordered by height.
func (t *CachedTracker) Snapshot() []CachedState {
	return t.cache.states()
}

// successorStates returns the set of states, as a bit mask indexed by state,
// that the transition function may produce from the provided state in a single
// period.
func successorStates(state ThresholdState) uint8 {
	switch state {
	case ThresholdDefined:
		return 1<<ThresholdDefined | 1<<ThresholdStarted | 1<<ThresholdFailed
	case ThresholdStarted:
		return 1<<ThresholdStarted | 1<<ThresholdLockedIn | 1<<ThresholdFailed
	case ThresholdLockedIn, ThresholdActive:
		return 1 << ThresholdActive
	case ThresholdFailed:
		return 1 << ThresholdFailed
	}
	return 0
}

// canReach returns whether the transition function is able to move from one
// state to another in exactly the provided number of periods.
func canReach(from, to ThresholdState, periods int64) bool {
	// The reachable set no longer changes after three periods since that is
	// the longest path from ThresholdDefined to ThresholdActive.
	reachable := uint8(1) << from
	for i := int64(0); i < min(periods, 3); i++ {
		var next uint8
		for state := ThresholdDefined; state < numThresholdStates; state++ {
			if reachable&(1<<state) != 0 {
				next |= successorStates(state)
			}
		}
		reachable = next
	}
	return reachable&(1<<to) != 0
}

// knownStateBefore returns the nearest state known for a boundary prior to the
// provided boundary from either the pending states or the cache, along with the
// number of periods between them.  The start of the chain is known to be
// ThresholdDefined.
func (t *CachedTracker) knownStateBefore(boundary BlockNode, pending map[BlockNode]ThresholdState) (ThresholdState, int64) {
	periods := int64(1)
	for prev := t.previousBoundary(boundary); prev != nil; prev = t.previousBoundary(prev) {
		if state, ok := pending[prev]; ok {
			return state, periods
		}
		if state, ok := t.cache.Lookup(prev); ok {
			return state, periods
		}
		periods++
	}
	return ThresholdDefined, periods
}

// checkRestore validates the provided states against the chain and the
// existing cache and returns the boundary node of each one.
//
// Every state must be for a known period boundary, must not conflict with a
// state already cached or listed for the same boundary, and must be reachable
// by the transition function from the nearest known state before it.  Cached
// states that follow the restored ones must remain reachable as well.
func (t *CachedTracker) checkRestore(states []CachedState, lookup func(*chainhash.Hash) BlockNode) ([]BlockNode, error) {
	nodes := make([]BlockNode, 0, len(states))
	pending := make(map[BlockNode]ThresholdState, len(states))
	for i := range states {
		s := &states[i]
		if !s.State.IsValid() {
			str := fmt.Sprintf("cached state %d for block %s of deployment "+
				"%s is invalid", s.State, s.Hash, t.deployment.Name)
			return nil, contextError(ErrInvalidState, str)
		}
		node := lookup(&s.Hash)
		if node == nil {
			return nil, unknownBlockError(&s.Hash)
		}
		if node.Height() != s.Height || !t.isBoundary(node) {
			str := fmt.Sprintf("block %s (height %d) is not a period "+
				"boundary of deployment %s", s.Hash, node.Height(),
				t.deployment.Name)
			return nil, contextError(ErrNotBoundary, str)
		}
		existing, ok := pending[node]
		if !ok {
			existing, ok = t.cache.Lookup(node)
		}
		if ok && existing != s.State {
			str := fmt.Sprintf("state %v for block %s of deployment %s "+
				"conflicts with known state %v", s.State, s.Hash,
				t.deployment.Name, existing)
			return nil, contextError(ErrInvalidState, str)
		}
		pending[node] = s.State
		nodes = append(nodes, node)
	}

	checkReachable := func(node BlockNode, state ThresholdState) error {
		prevState, periods := t.knownStateBefore(node, pending)
		if canReach(prevState, state, periods) {
			return nil
		}
		str := fmt.Sprintf("state %v for block %s (height %d) of deployment "+
			"%s is not reachable from state %v %d period(s) earlier", state,
			node.Hash(), node.Height(), t.deployment.Name, prevState, periods)
		return contextError(ErrInvalidState, str)
	}
	for node, state := range pending {
		if err := checkReachable(node, state); err != nil {
			return nil, err
		}
	}
	for node, state := range t.cache.entries {
		if _, ok := pending[node]; ok {
			continue
		}
		if err := checkReachable(node, state); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// CheckRestore returns the error Restore would return for the provided states
// without modifying the cache.
func (t *CachedTracker) CheckRestore(states []CachedState, lookup func(*chainhash.Hash) BlockNode) error {
	if t.alwaysActive || !t.viable {
		return nil
	}
	_, err := t.checkRestore(states, lookup)
	return err
}

// Restore populates the cache with the provided previously snapshotted states.
// The lookup function must return the block node for a given hash or nil when
// it is not known.  The cache is left untouched when any of the states is
// invalid.
//
// An error with the kind ErrInvalidState is returned when a state conflicts
// with a state that is already cached for the same boundary or when it could
// not have been produced by the transition function given the states known for
// the boundaries before it.
//
// Restoring is a no-op for always active and non viable deployments since their
// caches are never used.
//
// This function MUST be called with the chain state lock held (for writes).
func (t *CachedTracker) Restore(states []CachedState, lookup func(*chainhash.Hash) BlockNode) error {
	if t.alwaysActive || !t.viable {
		return nil
	}

	nodes, err := t.checkRestore(states, lookup)
	if err != nil {
		return err
	}

	for i, node := range nodes {
		t.cache.Update(node, states[i].State)
	}
	return nil
}
