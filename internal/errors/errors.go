// Package errors defines the sentinel errors shared across the storage
// engine's internal packages, following the same errors.New +
// errors.Is/errors.As convention used throughout.
package errors

import "errors"

var (
	// ErrNotFound is returned when a series, column, file, or vnode lookup
	// fails.
	ErrNotFound = errors.New("tskv: not found")

	// ErrSchemaMissing is returned when a write references a SchemaId the
	// meta layer does not know about.
	ErrSchemaMissing = errors.New("tskv: schema missing")

	// ErrIndexCorrupt is returned when a TSM block index, bloom filter, or
	// tombstone file fails its checksum.
	ErrIndexCorrupt = errors.New("tskv: index corrupt")

	// ErrMetaUnavailable is returned when the meta client cannot be reached.
	ErrMetaUnavailable = errors.New("tskv: meta unavailable")

	// ErrInvariantViolation marks an internal invariant that must never be
	// observable from outside this module, e.g. a negative ref count.
	ErrInvariantViolation = errors.New("tskv: invariant violation")

	// ErrTenantOrDbNotFound is returned when a database or vnode is
	// referenced before creation, or after deletion.
	ErrTenantOrDbNotFound = errors.New("tskv: tenant or database not found")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("tskv: closed")

	// ErrVnodeFaulted is returned by operations against a vnode that a
	// FatalHandler has marked faulted.
	ErrVnodeFaulted = errors.New("tskv: vnode faulted")
)

// Is reports whether err wraps target, delegating to the standard library.
// Exported for callers that already import this package under a local name
// and want a single entry point.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return errors.As(err, target) }
