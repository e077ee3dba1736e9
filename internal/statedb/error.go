// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statedb

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrNotFound indicates a requested key does not exist.
	ErrNotFound = ErrorKind("ErrNotFound")

	// ErrClosed indicates an attempt to use a backend or batch that has
	// already been closed or committed.
	ErrClosed = ErrorKind("ErrClosed")

	// ErrCorruptEntry indicates a stored entry could not be decoded.
	ErrCorruptEntry = ErrorKind("ErrCorruptEntry")

	// ErrVersionMismatch indicates the database was written with an
	// unsupported version of the storage format.
	ErrVersionMismatch = ErrorKind("ErrVersionMismatch")

	// ErrNameTooLong indicates a deployment name is too long to be used as
	// part of a key.
	ErrNameTooLong = ErrorKind("ErrNameTooLong")

	// ErrUnknownBackend indicates an unsupported backend type was requested.
	ErrUnknownBackend = ErrorKind("ErrUnknownBackend")
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
