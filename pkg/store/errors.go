// Copyright 2025 Justifai
package store

import "errors"

var (
	// ErrNotFound is returned when a requested job or batch does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleWrite is returned when an UpdateJob/UpdateBatch call's
	// optimistic-concurrency precondition no longer holds: some other
	// worker already moved the row past the expected state.
	ErrStaleWrite = errors.New("stale write: row changed status under us")

	// ErrImmutableField is returned when a caller attempts to change a
	// batch's MerkleRoot after it has already been set.
	ErrImmutableField = errors.New("field is immutable once set")
)
