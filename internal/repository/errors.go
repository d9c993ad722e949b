package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup target does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update loses an optimistic
	// race, e.g. two tick cycles claiming the same pending job.
	ErrConflict = errors.New("conflicting update")
)
