// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package blockindex provides an in-memory, tree-shaped index of block headers.

Every node in the index tracks its parent, a skip list pointer for fast
ancestor traversal, the cumulative work of the chain up to it and its median
time past.  The nodes implement the versionbits.BlockNode interface, so the
index can be used directly as the chain view when evaluating deployments.
*/
package blockindex
