// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"encoding/binary"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// medianTimeBlocks is the number of previous blocks used to calculate the
// median time past of the fake chain nodes.
const medianTimeBlocks = 11

// fakeNode is a minimal in-memory block used to exercise the trackers without
// depending on a full block index.
type fakeNode struct {
	chain     *fakeChain
	parent    *fakeNode
	hash      chainhash.Hash
	height    int64
	timestamp int64
	version   int32
}

// Ensure the fakeNode type implements the BlockNode interface.
var _ BlockNode = (*fakeNode)(nil)

func (n *fakeNode) Hash() chainhash.Hash { return n.hash }
func (n *fakeNode) Height() int64        { return n.height }
func (n *fakeNode) Timestamp() int64     { return n.timestamp }
func (n *fakeNode) Version() int32       { return n.version }

func (n *fakeNode) Parent() BlockNode {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *fakeNode) Ancestor(height int64) BlockNode {
	if height < 0 || height > n.height {
		return nil
	}
	return n.chain.nodes[height]
}

func (n *fakeNode) MedianTimePast() int64 {
	timestamps := make([]int64, 0, medianTimeBlocks)
	for iterNode := n; iterNode != nil && len(timestamps) < medianTimeBlocks; iterNode = iterNode.parent {
		timestamps = append(timestamps, iterNode.timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})
	return timestamps[len(timestamps)/2]
}

// nextChainID provides unique identifiers for fake chains so the hashes of
// nodes on different branches never collide.
var nextChainID atomic.Uint32

// fakeChain is a single branch of fake nodes indexed by height.  Forks share
// the node instances of their common ancestors.
type fakeChain struct {
	id    uint32
	nodes []*fakeNode
}

// newFakeChain returns an empty fake chain.
func newFakeChain() *fakeChain {
	return &fakeChain{id: nextChainID.Add(1)}
}

// extend appends the provided number of blocks that all have the given
// timestamp and version and returns the new tip.
func (c *fakeChain) extend(count int64, timestamp int64, version int32) BlockNode {
	for i := int64(0); i < count; i++ {
		var parent *fakeNode
		if len(c.nodes) > 0 {
			parent = c.nodes[len(c.nodes)-1]
		}
		node := &fakeNode{
			chain:     c,
			parent:    parent,
			height:    int64(len(c.nodes)),
			timestamp: timestamp,
			version:   version,
		}
		var buf [12]byte
		binary.LittleEndian.PutUint32(buf[0:4], c.id)
		binary.LittleEndian.PutUint64(buf[4:12], uint64(node.height))
		node.hash = chainhash.HashH(buf[:])
		c.nodes = append(c.nodes, node)
	}
	return c.tip()
}

// extendSignaling appends the provided number of blocks that all have the
// given timestamp where the first numSignaling of them signal for the provided
// bit and the rest only set the version bits top bits.
func (c *fakeChain) extendSignaling(count, timestamp int64, bit uint8, numSignaling int64) BlockNode {
	signalVersion := int32(VersionBitsTopBits | uint32(1)<<bit)
	c.extend(numSignaling, timestamp, signalVersion)
	return c.extend(count-numSignaling, timestamp, VersionBitsTopBits)
}

// fork returns a new chain that shares all nodes up to and including the
// provided height with the chain.
func (c *fakeChain) fork(height int64) *fakeChain {
	nodes := make([]*fakeNode, height+1)
	copy(nodes, c.nodes[:height+1])
	return &fakeChain{id: nextChainID.Add(1), nodes: nodes}
}

// at returns the node at the provided height.
func (c *fakeChain) at(height int64) BlockNode {
	return c.nodes[height]
}

// tip returns the final node of the chain or nil when it is empty.
func (c *fakeChain) tip() BlockNode {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[len(c.nodes)-1]
}

// lookup returns the node with the provided hash or nil when it is not part
// of the chain.
func (c *fakeChain) lookup(hash *chainhash.Hash) BlockNode {
	for _, node := range c.nodes {
		if node.hash == *hash {
			return node
		}
	}
	return nil
}

// updateEach calls Update on the tracker for every node of the chain from the
// provided height through the tip.
func updateEach(t *testing.T, tracker StateTracker, c *fakeChain, fromHeight int64) {
	t.Helper()

	for height := fromHeight; height < int64(len(c.nodes)); height++ {
		if !tracker.Update(c.at(height)) {
			t.Fatalf("update at height %d failed", height)
		}
	}
}

// assertSnapshot ensures the cached states of the tracker match the provided
// heights to states mapping.
func assertSnapshot(t *testing.T, tracker StateTracker, want map[int64]ThresholdState) {
	t.Helper()

	got := make(map[int64]ThresholdState)
	for _, state := range tracker.Snapshot() {
		got[state.Height] = state.State
	}
	if len(got) != len(want) {
		t.Fatalf("mismatched snapshot length -- got %d, want %d\ngot: %v",
			len(got), len(want), spew.Sdump(got))
	}
	for height, wantState := range want {
		if got[height] != wantState {
			t.Fatalf("mismatched cached state for height %d -- got %v, want %v",
				height, got[height], wantState)
		}
	}
}
