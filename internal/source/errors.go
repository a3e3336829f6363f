package source

import "errors"

// Domain errors for the source package.
var (
	// ErrDecode is returned as a stream element when a poll could not be
	// decoded, either by the upstream decoder or by the wire codec.
	ErrDecode = errors.New("source: decode failed")

	// ErrUnknownFormat is returned for an unsupported wire format name.
	ErrUnknownFormat = errors.New("source: unknown wire format")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("source: already started")
)
