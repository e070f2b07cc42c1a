package storage

import "errors"

// Storage errors for the ledger.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already
	// exists. Journal entries are append-only and never updated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a versioned record changed since it was read.
	ErrConflict = errors.New("version conflict: record modified concurrently")
)
