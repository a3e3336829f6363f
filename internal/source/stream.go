package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nerrad567/meterthing/internal/obis"
)

// messageDecoder reads one Message at a time from a byte stream.
type messageDecoder interface {
	Decode(v any) error
}

// StreamSource reads consecutive reading messages from a byte stream, such as
// the stdout of a decoder process. JSON messages may be separated by
// whitespace or newlines; CBOR messages are concatenated data items.
//
// A message whose Error field is set is returned as that poll's error and the
// stream continues. A stream that cannot be parsed is reported once as
// ErrDecode and then ends with io.EOF, since the decoder cannot find the next
// message boundary.
type StreamSource struct {
	results   chan Result
	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamSource starts reading r in the background.
func NewStreamSource(r io.Reader, format Format) (*StreamSource, error) {
	var dec messageDecoder
	switch format {
	case FormatJSON:
		dec = json.NewDecoder(r)
	case FormatCBOR:
		dec = decMode.NewDecoder(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	s := &StreamSource{
		results: make(chan Result),
		done:    make(chan struct{}),
	}
	go s.read(dec, format)
	return s, nil
}

// read decodes until the stream ends, handing each poll to Next.
func (s *StreamSource) read(dec messageDecoder, format Format) {
	defer close(s.results)

	for {
		var msg Message
		err := dec.Decode(&msg)
		switch {
		case errors.Is(err, io.EOF):
			return
		case err != nil:
			s.deliver(Result{Err: fmt.Errorf("%w: %s stream: %w", ErrDecode, format, err)})
			return
		}

		r, err := msg.Reading()
		if !s.deliver(Result{Reading: r, Err: err}) {
			return
		}
	}
}

// deliver blocks until Next takes res or the source is closed.
func (s *StreamSource) deliver(res Result) bool {
	select {
	case s.results <- res:
		return true
	case <-s.done:
		return false
	}
}

// Close stops delivering readings. It does not close the underlying reader;
// a read already in progress ends when its owner closes it.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Next implements Source.
func (s *StreamSource) Next(ctx context.Context) (obis.Reading, error) {
	if err := ctx.Err(); err != nil {
		return obis.Reading{}, err
	}

	select {
	case <-ctx.Done():
		return obis.Reading{}, ctx.Err()
	case <-s.done:
		return obis.Reading{}, io.EOF
	case res, ok := <-s.results:
		if !ok {
			return obis.Reading{}, io.EOF
		}
		return res.Reading, res.Err
	}
}
