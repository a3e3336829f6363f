package obis

import "errors"

// Domain errors for the obis package.
var (
	// ErrInvalidCode is returned when a registry code string cannot be parsed.
	ErrInvalidCode = errors.New("obis: invalid registry code")

	// ErrMalformedDateTime is returned when a DLMS date-time octet string is
	// the wrong length or carries out-of-range fields.
	ErrMalformedDateTime = errors.New("obis: malformed date-time")

	// ErrDuplicateCode is returned when a reading lists the same code twice.
	ErrDuplicateCode = errors.New("obis: duplicate code in reading")
)
