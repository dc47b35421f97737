package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint rejects a write
	ErrConflict = errors.New("conflict: entity already exists")

	// ErrStaleStatus is returned when a status compare-and-set finds a different current status
	ErrStaleStatus = errors.New("stale status: project was changed concurrently")
)
