// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

// Stats houses the signaling statistics of the period that is in progress.
type Stats struct {
	// Period is the number of blocks in a period.
	Period int64

	// Threshold is the number of signaling blocks required to lock in.
	Threshold int64

	// Elapsed is the number of blocks of the in progress period that are
	// already in the chain.
	Elapsed int64

	// Count is the number of elapsed blocks that signal for the deployment.
	Count int64

	// Possible is false when there are not enough blocks left in the period
	// to reach the threshold.
	Possible bool
}

// Statistics returns the signaling statistics of the period that is in
// progress as of the provided tip.  The in progress period is the one the block
// after the tip belongs to, so a tip that is itself a boundary results in
// nothing elapsed.
func (t *CachedTracker) Statistics(tip BlockNode) Stats {
	stats := Stats{
		Period:    t.deployment.Period,
		Threshold: t.deployment.Threshold,
	}
	if tip == nil || t.deployment.Period <= 0 {
		stats.Possible = stats.Period >= stats.Threshold
		return stats
	}

	// Count the signaling blocks from the tip back to the end of the previous
	// period.
	endOfPrevPeriodHeight := int64(-1)
	if boundary := t.boundaryAtOrBelow(tip); boundary != nil {
		endOfPrevPeriodHeight = boundary.Height()
	}
	stats.Elapsed = tip.Height() - endOfPrevPeriodHeight
	for node := tip; node != nil && node.Height() > endOfPrevPeriodHeight; node = node.Parent() {
		if t.IsSignaledFor(node) {
			stats.Count++
		}
	}
	stats.Possible = stats.Period-stats.Threshold >= stats.Elapsed-stats.Count
	return stats
}

// StateSinceHeight returns the height of the first block of the period in
// which the state for the block after the provided tip began.  Zero is returned
// for deployments that are in the defined state, always active or not viable
// since their state has been the same since the start of the chain.
//
// Only states cached by previous calls to Update are considered.
func (t *CachedTracker) StateSinceHeight(tip BlockNode) int64 {
	if t.alwaysActive || !t.viable {
		return 0
	}

	boundary := t.boundaryAtOrBelow(tip)
	initialState := t.lookupState(boundary)
	if initialState == ThresholdDefined {
		return 0
	}

	// Iterate backwards one period at a time for as long as the state of the
	// previous boundary is the same.
	prev := t.previousBoundary(boundary)
	for prev != nil && t.lookupState(prev) == initialState {
		boundary = prev
		prev = t.previousBoundary(boundary)
	}

	// The state applies starting with the block after the boundary.
	return boundary.Height() + 1
}
