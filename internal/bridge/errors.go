package bridge

import "errors"

// Domain errors for the sync loop. Conversion and lookup failures keep their
// own sentinels (normalize.ErrConversion, thing.ErrPropertyNotFound) and are
// returned wrapped, so callers can match either.
var (
	// ErrNoInitialReading is returned when the first reading could not be
	// obtained or was empty. The Thing cannot be built.
	ErrNoInitialReading = errors.New("bridge: no initial reading")

	// ErrSourceFailed is returned when the source reports a transport or
	// decode failure.
	ErrSourceFailed = errors.New("bridge: source failed")

	// ErrSourceClosed is returned when the reading stream ends.
	ErrSourceClosed = errors.New("bridge: source closed")

	// ErrNotInitialized is returned by Run before a successful Initialize.
	ErrNotInitialized = errors.New("bridge: loop not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("bridge: loop already initialized")
)
