package wasp

import "errors"

// Sentinel errors returned by the WASP storage engine. Callers use
// errors.Is to classify failures into the four families the engine
// recognises: corruption, I/O, format, and policy violations.
var (
	// ErrNotFound indicates a key has no entry in the tree.
	ErrNotFound = errors.New("wasp: key not found")

	// ErrChecksumMismatch indicates a page failed CRC32-C verification.
	ErrChecksumMismatch = errors.New("wasp: page checksum mismatch")

	// ErrManifestCorrupt indicates neither manifest slot is valid.
	ErrManifestCorrupt = errors.New("wasp: both manifest slots corrupt")

	// ErrTornWALTail indicates the WAL ends mid-record; the tail is
	// discarded rather than treated as fatal.
	ErrTornWALTail = errors.New("wasp: torn WAL tail discarded")

	// ErrPageFull indicates a node has no room for a record and must split.
	ErrPageFull = errors.New("wasp: page full")

	// ErrClosed indicates an operation on a database that has been closed.
	ErrClosed = errors.New("wasp: database is closed")

	// ErrLockHeld indicates another process holds the exclusive writer lock.
	ErrLockHeld = errors.New("wasp: database is locked by another process")

	// ErrInvalidPageSize indicates a configured page size outside bounds.
	ErrInvalidPageSize = errors.New("wasp: invalid page size")

	// ErrFeatureNotImplemented indicates a stub crypto or format feature.
	ErrFeatureNotImplemented = errors.New("wasp: feature not implemented")

	// ErrRateLimited indicates a query was rejected by the token bucket.
	ErrRateLimited = errors.New("wasp: rate limited")

	// ErrResultCapExceeded indicates a query result would exceed its cap.
	ErrResultCapExceeded = errors.New("wasp: result cap exceeded")

	// ErrTimeout indicates a query exceeded its execution deadline.
	ErrTimeout = errors.New("wasp: query execution timed out")
)
