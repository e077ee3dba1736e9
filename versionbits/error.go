// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrInvalidBit indicates a deployment specifies a signaling bit that is
	// outside of the range of usable version bits.
	ErrInvalidBit = ErrorKind("ErrInvalidBit")

	// ErrBitInUse indicates an attempt to register a deployment that signals
	// with a bit already claimed by another registered deployment.
	ErrBitInUse = ErrorKind("ErrBitInUse")

	// ErrDuplicateDeployment indicates an attempt to register a deployment
	// with a name that is already registered.
	ErrDuplicateDeployment = ErrorKind("ErrDuplicateDeployment")

	// ErrNonViableDeployment indicates a deployment can never activate because
	// its start time is after its timeout or its period is shorter than its
	// threshold.
	ErrNonViableDeployment = ErrorKind("ErrNonViableDeployment")

	// ErrUnknownDeployment indicates a deployment name is not registered.
	ErrUnknownDeployment = ErrorKind("ErrUnknownDeployment")

	// ErrUnknownBlock indicates a requested block does not exist.
	ErrUnknownBlock = ErrorKind("ErrUnknownBlock")

	// ErrNotBoundary indicates a cached state refers to a block that is not
	// the final block of a period for the deployment.
	ErrNotBoundary = ErrorKind("ErrNotBoundary")

	// ErrInvalidState indicates a cached state is not one of the valid
	// threshold states.
	ErrInvalidState = ErrorKind("ErrInvalidState")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// ContextError wraps an error with additional context.  It has full support
// for errors.Is and errors.As, so the caller can ascertain the specific
// wrapped error.
type ContextError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e ContextError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e ContextError) Unwrap() error {
	return e.Err
}

// contextError creates a ContextError given a set of arguments.
func contextError(kind ErrorKind, desc string) ContextError {
	return ContextError{Err: kind, Description: desc}
}

// unknownDeploymentError creates a ContextError with the kind of error set to
// ErrUnknownDeployment and a description that includes the provided name.
func unknownDeploymentError(name string) ContextError {
	str := fmt.Sprintf("deployment %q does not exist", name)
	return contextError(ErrUnknownDeployment, str)
}

// unknownBlockError creates a ContextError with the kind of error set to
// ErrUnknownBlock and a description that includes the provided hash.
func unknownBlockError(hash *chainhash.Hash) ContextError {
	str := fmt.Sprintf("block %s is not known", hash)
	return contextError(ErrUnknownBlock, str)
}

// panicf is a convenience function that formats according to the given format
// specifier and arguments and panics with it.
func panicf(format string, args ...any) {
	str := fmt.Sprintf(format, args...)
	panic(str)
}
