package thing

import "errors"

// Domain errors for the thing package.
var (
	// ErrEmptyReading is returned when a Thing is built from a reading with no
	// entries. There is nothing to model.
	ErrEmptyReading = errors.New("thing: initial reading is empty")

	// ErrPropertyNotFound is returned when a property name (or a reading's
	// code) was not present in the initial reading.
	ErrPropertyNotFound = errors.New("thing: property not found")

	// ErrReadOnly is returned when a client tries to write a property.
	ErrReadOnly = errors.New("thing: property is read-only")
)
