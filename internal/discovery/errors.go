package discovery

import "errors"

var (
	// ErrInvalidPort is returned when the advertised port is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port")

	// ErrAlreadyAdvertising is returned by a second Start.
	ErrAlreadyAdvertising = errors.New("discovery: already advertising")
)
