// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/dcrd/wire"
	"github.com/decred/versionbits/internal/blockindex"
	"github.com/decred/versionbits/internal/progresslog"
	"github.com/decred/versionbits/netparams"
	"github.com/decred/versionbits/versionbits"
)

// simulator builds a chain of headers according to a list of segments and
// evaluates the registered deployments as each block is connected.
type simulator struct {
	params   *netparams.Params
	index    *blockindex.Index
	registry *versionbits.Registry
	progress *progresslog.Logger
}

// newSimulator returns a simulator for the provided network with a block index
// that only contains the genesis block.
func newSimulator(params *netparams.Params, registry *versionbits.Registry) (*simulator, error) {
	index, err := blockindex.New(params.GenesisHeader())
	if err != nil {
		return nil, err
	}
	return &simulator{
		params:   params,
		index:    index,
		registry: registry,
		progress: progresslog.New("Evaluated", simLog),
	}, nil
}

// buildHeaders appends the blocks described by the segments to the block index
// and returns the resulting chain in order of height, genesis included.
func (s *simulator) buildHeaders(ctx context.Context, segments []segment) ([]*blockindex.BlockNode, error) {
	var total int64
	for i := range segments {
		total += segments[i].count
	}

	chain := make([]*blockindex.BlockNode, 0, total+1)
	tip := s.index.Genesis()
	chain = append(chain, tip)
	for i := range segments {
		seg := &segments[i]
		for n := int64(0); n < seg.count; n++ {
			if shutdownRequested(ctx) {
				return nil, ctx.Err()
			}

			timestamp := seg.timestamp
			if seg.relative {
				timestamp += tip.Timestamp()
			}
			blockVersion := int32(versionbits.VersionBitsTopBits)
			if n < seg.signaling {
				blockVersion = seg.version
			}
			header := &wire.BlockHeader{
				Version:   blockVersion,
				PrevBlock: tip.Hash(),
				Bits:      s.params.PowLimitBits,
				Height:    uint32(tip.Height() + 1),
				Timestamp: time.Unix(timestamp, 0),
				Nonce:     uint32(i),
			}
			node, err := s.index.AddHeader(header)
			if err != nil {
				return nil, fmt.Errorf("segment %d block %d: %w", i, n, err)
			}
			chain = append(chain, node)
			tip = node
		}
	}
	return chain, nil
}

// connect evaluates the deployments for each of the provided blocks in order
// as though they were connected to the chain one by one.
func (s *simulator) connect(ctx context.Context, chain []*blockindex.BlockNode) error {
	s.progress.SetLastLogTime(time.Now())
	for i, node := range chain {
		if shutdownRequested(ctx) {
			return ctx.Err()
		}

		s.registry.Update(node)
		forceLog := i == len(chain)-1
		s.progress.LogProgress(node, forceLog, func() float64 {
			return float64(i+1) / float64(len(chain)) * 100
		})
	}
	return nil
}

// summarize logs the final state of every registered deployment as of the
// current tip.
func (s *simulator) summarize() {
	tip := s.registry.Tip()
	if tip == nil {
		return
	}
	simLog.Infof("Chain tip %s (height %d, median time %s)", tip.Hash(),
		tip.Height(), time.Unix(tip.MedianTimePast(), 0))
	for _, d := range s.registry.Deployments() {
		state, err := s.registry.State(d.Name)
		if err != nil {
			simLog.Errorf("Unable to query deployment %s: %v", d.Name, err)
			continue
		}
		since, _ := s.registry.StateSinceHeight(d.Name)
		stats, _ := s.registry.Statistics(d.Name)
		simLog.Infof("Deployment %s (bit %d): %v since height %d, active %v, "+
			"%d of %d %s in the current period signaling (threshold %d, "+
			"possible %v)", d.Name, d.Bit, state, since,
			s.registry.IsActive(d.Name), stats.Count, stats.Elapsed,
			pickNoun(stats.Elapsed, "block", "blocks"), stats.Threshold,
			stats.Possible)
	}
	simLog.Infof("Next block version %#08x", uint32(s.registry.NextBlockVersion()))
}
