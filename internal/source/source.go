// Package source provides the reading streams consumed by the bridge.
//
// A Source hands out one obis.Reading per meter poll, in arrival order. The
// meter decoder itself is a separate program; sources only receive its
// output, over MQTT (MQTTSource), from its stdout (StreamSource) or from a
// recorded file (FileSource).
//
// End of stream is signalled with io.EOF. A poll the decoder could not decode
// is returned as an error wrapping ErrDecode for that element, never skipped.
package source

import (
	"context"
	"io"

	"github.com/nerrad567/meterthing/internal/obis"
)

// Source is a lazy, non-restartable sequence of readings.
//
// Next blocks until the next reading arrives, the stream ends (io.EOF) or ctx
// is done. Each call consumes exactly one element.
type Source interface {
	Next(ctx context.Context) (obis.Reading, error)
}

// Result is one element of a Static source.
type Result struct {
	Reading obis.Reading
	Err     error
}

// Static replays a fixed list of results and then reports io.EOF.
// It is not safe for concurrent use.
type Static struct {
	results []Result
	pos     int
	calls   int
}

// NewStatic returns a source over results.
func NewStatic(results ...Result) *Static {
	return &Static{results: results}
}

// Next implements Source.
func (s *Static) Next(ctx context.Context) (obis.Reading, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return obis.Reading{}, err
	}
	if s.pos >= len(s.results) {
		return obis.Reading{}, io.EOF
	}
	r := s.results[s.pos]
	s.pos++
	return r.Reading, r.Err
}

// Calls returns how many times Next has been called.
func (s *Static) Calls() int { return s.calls }
