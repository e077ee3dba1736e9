// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package statedb persists the cached threshold states of deployments so they do
not need to be recalculated from the start of the chain after a restart.

Two storage backends are provided.  LevelDB is backed by goleveldb and Pebble
is backed by pebble.  Both implement the Backend interface which is all the
Store requires.

Each cached state is stored under a key made of the "vbts" prefix, the length
of the deployment name as a single byte, the deployment name and the hash of
the boundary block.  The value is the state followed by the big-endian height
of the boundary block.
*/
package statedb
