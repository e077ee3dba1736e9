// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package versionbits implements BIP9-style soft fork activation tracking.

A deployment is a proposed consensus change that miners vote on by setting a
designated bit in the version field of the blocks they produce.  Its state is
evaluated once per fixed size period of blocks and moves through the
following finite state machine:

	DEFINED -> STARTED -> LOCKED_IN -> ACTIVE
	   |          |
	   +----------+----> FAILED

ACTIVE and FAILED are terminal.  A deployment moves from DEFINED to STARTED
once the median time past of the final block of a period reaches the start
time, from STARTED to LOCKED_IN once at least the threshold number of blocks
in a period signal for it, and from LOCKED_IN to ACTIVE exactly one period
later.  A deployment that reaches its timeout before locking in fails.

# Evaluation

Each deployment is tracked by a [StateTracker].  The production
implementation, [CachedTracker], caches the state at every period boundary it
has evaluated so that extending the chain only requires computing the
boundaries that were added since the last evaluation.  The cache is keyed by
block node identity so competing branches never share cache entries beyond
their common ancestors.

# Registry

A [Registry] owns the set of known deployments, ensures no two deployments
signal with the same bit, forwards chain tip updates to every tracker and
answers activation queries by deployment name.

	reg := versionbits.NewRegistry(nil)
	err := reg.AddDeployment(versionbits.Deployment{
		Name:      "segwitlight",
		Bit:       1,
		StartTime: 1735689600,
		Timeout:   1767225600,
		Period:    1000,
		Threshold: 900,
	})
	...
	reg.Update(tip)
	if reg.IsActive("segwitlight") {
		...
	}

# Concurrency

The package performs no locking of its own.  Mutating methods must be
serialized by the caller, typically under the same lock that protects
advancing the chain tip.
*/
package versionbits
