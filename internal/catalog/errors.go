package catalog

import "errors"

var (
	// ErrInvalidThingID is returned when a thing ID is empty.
	ErrInvalidThingID = errors.New("catalog: thing ID is required")

	// ErrCorruptEntry is returned when a stored row cannot be decoded, for
	// example an unknown kind name.
	ErrCorruptEntry = errors.New("catalog: corrupt catalog entry")
)
