// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import "sort"

// thresholdStateCache provides a type to cache the threshold states of each
// period boundary of a single deployment.
//
// Entries are keyed by node identity rather than height so that blocks on
// competing branches at the same height are distinct entries.
type thresholdStateCache struct {
	entries map[BlockNode]ThresholdState
}

// newThresholdStateCache returns an empty threshold state cache.
func newThresholdStateCache() thresholdStateCache {
	return thresholdStateCache{entries: make(map[BlockNode]ThresholdState)}
}

// Lookup returns the threshold state associated with the given node along with
// a boolean that indicates whether or not it is valid.
func (c *thresholdStateCache) Lookup(node BlockNode) (ThresholdState, bool) {
	state, ok := c.entries[node]
	return state, ok
}

// Update updates the cache to contain the provided node to threshold state
// mapping.
func (c *thresholdStateCache) Update(node BlockNode, state ThresholdState) {
	c.entries[node] = state
}

// Len returns the number of cached entries.
func (c *thresholdStateCache) Len() int {
	return len(c.entries)
}

// states returns all cached entries ordered by height and then hash.
func (c *thresholdStateCache) states() []CachedState {
	states := make([]CachedState, 0, len(c.entries))
	for node, state := range c.entries {
		states = append(states, CachedState{
			Hash:   node.Hash(),
			Height: node.Height(),
			State:  state,
		})
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].Height != states[j].Height {
			return states[i].Height < states[j].Height
		}
		return states[i].Hash.String() < states[j].Hash.String()
	})
	return states
}
