// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2018-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockindex

import (
	"math/big"
	"sort"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"github.com/decred/versionbits/versionbits"
)

// medianTimeBlocks is the number of previous blocks which should be used to
// calculate the median time used to validate block timestamps.
const medianTimeBlocks = 11

// BlockNode represents a block header within the block index.  All fields are
// immutable once the node is created, so it is safe for concurrent access.
//
// It implements the versionbits.BlockNode interface so the activation state of
// deployments can be evaluated directly against the index.
type BlockNode struct {
	// NOTE: Additions, deletions, or modifications to the order of the
	// definitions in this struct should not be changed without considering
	// how it affects alignment on 64-bit platforms.

	// parent is the parent block for this node.
	parent *BlockNode

	// skipToAncestor is used to provide a skip list to significantly speed up
	// traversal to ancestors deep in history.
	skipToAncestor *BlockNode

	// hash is the hash of the block this node represents.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.
	workSum *big.Int

	// Fields from the block header along with the median time past which is
	// calculated once when the node is created.
	height       int64
	timestamp    int64
	medianTime   int64
	bits         uint32
	blockVersion int32
}

// Ensure the BlockNode type implements the versionbits.BlockNode interface.
var _ versionbits.BlockNode = (*BlockNode)(nil)

// clearLowestOneBit clears the lowest set bit in the passed value.
func clearLowestOneBit(n int64) int64 {
	return n & (n - 1)
}

// calcSkipListHeight calculates the height of an ancestor block to use when
// constructing the ancestor traversal skip list.
//
// The chain is append only, so a deterministic skip list with a single level
// that is reasonably close to O(log n) is used.  The only real requirement for
// proper operation is that the calculated height is less than the provided
// height.
func calcSkipListHeight(height int64) int64 {
	if height < 0 {
		return 0
	}
	return clearLowestOneBit(clearLowestOneBit(height))
}

// newBlockNode returns a new block node for the given block header and parent
// node.  The workSum is calculated based on the parent, or, in the case no
// parent is provided, it will just be the work for the passed block.
func newBlockNode(header *wire.BlockHeader, parent *BlockNode) *BlockNode {
	node := &BlockNode{
		hash:         header.BlockHash(),
		workSum:      standalone.CalcWork(header.Bits),
		height:       int64(header.Height),
		timestamp:    header.Timestamp.Unix(),
		bits:         header.Bits,
		blockVersion: header.Version,
	}
	if parent != nil {
		node.parent = parent
		node.skipToAncestor = parent.ancestor(calcSkipListHeight(node.height))
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	node.medianTime = node.calcPastMedianTime()
	return node
}

// ancestor returns the ancestor block node at the provided height by following
// the chain backwards from this node.  The returned block will be nil when a
// height is requested that is after the height of the passed node or is less
// than zero.
func (node *BlockNode) ancestor(height int64) *BlockNode {
	if height < 0 || height > node.height {
		return nil
	}

	n := node
	for n != nil && n.height != height {
		// Skip to the linked ancestor when it won't overshoot the target
		// height.
		if n.skipToAncestor != nil && calcSkipListHeight(n.height) >= height {
			n = n.skipToAncestor
			continue
		}

		n = n.parent
	}

	return n
}

// calcPastMedianTime calculates the median time of the previous few blocks
// prior to, and including, the block node.
//
// NOTE: The median is not the average of the middle two elements for an even
// number of timestamps.  This only matters for the first few blocks of a
// chain.
func (node *BlockNode) calcPastMedianTime() int64 {
	timestamps := make([]int64, 0, medianTimeBlocks)
	for iterNode := node; iterNode != nil && len(timestamps) < medianTimeBlocks; iterNode = iterNode.parent {
		timestamps = append(timestamps, iterNode.timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})
	return timestamps[len(timestamps)/2]
}

// Hash returns the hash of the block.
func (node *BlockNode) Hash() chainhash.Hash {
	return node.hash
}

// Height returns the height of the block.
func (node *BlockNode) Height() int64 {
	return node.height
}

// Timestamp returns the timestamp of the block as a unix time.
func (node *BlockNode) Timestamp() int64 {
	return node.timestamp
}

// Version returns the version of the block.
func (node *BlockNode) Version() int32 {
	return node.blockVersion
}

// Bits returns the compact difficulty target of the block.
func (node *BlockNode) Bits() uint32 {
	return node.bits
}

// WorkSum returns the total work of the chain up to and including the block.
// The returned value must not be modified.
func (node *BlockNode) WorkSum() *big.Int {
	return node.workSum
}

// MedianTimePast returns the median time of the previous few blocks prior to,
// and including, the block.
func (node *BlockNode) MedianTimePast() int64 {
	return node.medianTime
}

// ParentNode returns the parent of the block or nil for the genesis block.
func (node *BlockNode) ParentNode() *BlockNode {
	return node.parent
}

// Parent returns the parent of the block or nil for the genesis block.
//
// A nil interface rather than a nil *BlockNode is returned when there is no
// parent.
func (node *BlockNode) Parent() versionbits.BlockNode {
	if node.parent == nil {
		return nil
	}
	return node.parent
}

// Ancestor returns the ancestor at the provided height or nil when the height
// is negative or after the height of the block.
//
// A nil interface rather than a nil *BlockNode is returned when there is no
// such ancestor.
func (node *BlockNode) Ancestor(height int64) versionbits.BlockNode {
	if n := node.ancestor(height); n != nil {
		return n
	}
	return nil
}

// AncestorNode is the same as Ancestor except it returns the concrete type.
func (node *BlockNode) AncestorNode(height int64) *BlockNode {
	return node.ancestor(height)
}
