package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEntryExists is returned when a participant already has an entry.
	ErrEntryExists = errors.New("entry already exists")
	// ErrStateConflict is returned when a conditional update matched no row
	// because the giveaway is not in the expected lifecycle state.
	ErrStateConflict = errors.New("giveaway state conflict")
)
