// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2018-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockindex

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/wire"
	"github.com/decred/versionbits/versionbits"
)

// maxRejectedHeaders is the maximum number of headers that failed the
// positional checks to remember.
const maxRejectedHeaders = 1000

// Index provides facilities for keeping track of an in-memory index of block
// headers.  Although the name suggests a single chain of blocks, it is
// actually a tree-shaped structure where any node can have multiple children.
// The tip with the most cumulative work is tracked as the best header.
type Index struct {
	// genesis is set when the index is created and can't be changed
	// afterwards.
	genesis *BlockNode

	// These following fields are protected by the embedded mutex.
	//
	// index contains an entry for every known block tracked by the block
	// index.
	//
	// bestHeader tracks the highest work block node in the index.  Ties are
	// broken in favor of the node that was added first.
	sync.RWMutex
	index      map[chainhash.Hash]*BlockNode
	bestHeader *BlockNode

	// rejected houses recently rejected headers so that repeated attempts to
	// add them fail quickly.  It is safe for concurrent access.
	rejected *lru.Map[chainhash.Hash, error]
}

// New returns a new block index that is initialized with the provided genesis
// block header.  The genesis header must have a height of zero.
func New(genesis *wire.BlockHeader) (*Index, error) {
	if genesis.Height != 0 {
		str := fmt.Sprintf("genesis block height is %d instead of 0",
			genesis.Height)
		return nil, ruleError(ErrBadBlockHeight, str)
	}

	node := newBlockNode(genesis, nil)
	log.Debugf("Initializing block index with genesis block %s", node.hash)
	return &Index{
		genesis:    node,
		index:      map[chainhash.Hash]*BlockNode{node.hash: node},
		bestHeader: node,
		rejected:   lru.NewMap[chainhash.Hash, error](maxRejectedHeaders),
	}, nil
}

// checkHeaderPositional performs the checks on the provided header that depend
// on its position in the chain relative to the provided parent.
//
// NOTE: Unlike the typical consensus rules, a header with a timestamp equal to
// the median time of its parent is accepted so that simulated chains may use
// the same timestamp for many consecutive blocks.
func checkHeaderPositional(header *wire.BlockHeader, parent *BlockNode) error {
	// Ensure the header commits to the correct height based on the height of
	// the parent.
	wantHeight := parent.height + 1
	if int64(header.Height) != wantHeight {
		str := fmt.Sprintf("block header commitment to height %d does not "+
			"match the expected height %d", header.Height, wantHeight)
		return ruleError(ErrBadBlockHeight, str)
	}

	// Ensure the timestamp for the block header is not before the median
	// time of the last several blocks.
	medianTime := time.Unix(parent.medianTime, 0)
	if header.Timestamp.Before(medianTime) {
		str := fmt.Sprintf("block timestamp of %v is before the minimum "+
			"timestamp of %v", header.Timestamp, medianTime)
		return ruleError(ErrTimeTooOld, str)
	}

	return nil
}

// AddHeader connects the provided header to the index and returns the newly
// created node.
//
// An error with the kind ErrDuplicateBlock is returned when the header is
// already known and ErrMissingParent when its parent is not known.  Headers
// that violate the positional rules are remembered and rejected with
// ErrKnownInvalidBlock on subsequent attempts.
//
// This function is safe for concurrent access.
func (idx *Index) AddHeader(header *wire.BlockHeader) (*BlockNode, error) {
	hash := header.BlockHash()
	if err, ok := idx.rejected.Get(hash); ok {
		str := fmt.Sprintf("block %s is known to be invalid: %v", hash, err)
		return nil, ruleError(ErrKnownInvalidBlock, str)
	}

	idx.Lock()
	defer idx.Unlock()

	if _, ok := idx.index[hash]; ok {
		str := fmt.Sprintf("already have block %s", hash)
		return nil, ruleError(ErrDuplicateBlock, str)
	}
	parent := idx.index[header.PrevBlock]
	if parent == nil {
		str := fmt.Sprintf("previous block %s is not known", header.PrevBlock)
		return nil, ruleError(ErrMissingParent, str)
	}
	if err := checkHeaderPositional(header, parent); err != nil {
		log.Debugf("Rejected block header %s: %v", hash, err)
		idx.rejected.Put(hash, err)
		return nil, err
	}

	node := newBlockNode(header, parent)
	idx.index[hash] = node
	if node.workSum.Cmp(idx.bestHeader.workSum) > 0 {
		idx.bestHeader = node
	}
	log.Tracef("Added block header %s (height %d, version %#08x)", hash,
		node.height, uint32(node.blockVersion))
	return node, nil
}

// LookupNode returns the block node identified by the provided hash.  It will
// return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (idx *Index) LookupNode(hash *chainhash.Hash) *BlockNode {
	idx.RLock()
	node := idx.index[*hash]
	idx.RUnlock()
	return node
}

// Lookup is the same as LookupNode except it returns a nil interface when the
// hash is not known.  It is suitable for restoring cached deployment states.
//
// This function is safe for concurrent access.
func (idx *Index) Lookup(hash *chainhash.Hash) versionbits.BlockNode {
	if node := idx.LookupNode(hash); node != nil {
		return node
	}
	return nil
}

// HaveBlock returns whether or not the block index contains the provided hash.
//
// This function is safe for concurrent access.
func (idx *Index) HaveBlock(hash *chainhash.Hash) bool {
	return idx.LookupNode(hash) != nil
}

// Genesis returns the genesis block node of the index.
//
// This function is safe for concurrent access.
func (idx *Index) Genesis() *BlockNode {
	return idx.genesis
}

// BestHeader returns the known header with the most cumulative work.
//
// This function is safe for concurrent access.
func (idx *Index) BestHeader() *BlockNode {
	idx.RLock()
	node := idx.bestHeader
	idx.RUnlock()
	return node
}

// Count returns the number of headers in the index, including the genesis
// block.
//
// This function is safe for concurrent access.
func (idx *Index) Count() int {
	idx.RLock()
	count := len(idx.index)
	idx.RUnlock()
	return count
}
