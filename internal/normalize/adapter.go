package normalize

import (
	"context"

	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/source"
)

// Adapter wraps a raw reading source and normalizes each reading as it is
// consumed. Every Next call consumes exactly one element of the wrapped
// source; nothing is buffered, reordered or skipped.
//
// Adapter is itself a source.Source.
type Adapter struct {
	src        source.Source
	normalizer *Normalizer
}

// NewAdapter wraps src.
func NewAdapter(src source.Source, normalizer *Normalizer) *Adapter {
	return &Adapter{src: src, normalizer: normalizer}
}

// Next returns the next normalized reading.
//
// Errors from the wrapped source (decode failures, io.EOF, context errors)
// are returned unchanged as this element. A conversion failure is returned
// in place of the reading.
func (a *Adapter) Next(ctx context.Context) (obis.Reading, error) {
	raw, err := a.src.Next(ctx)
	if err != nil {
		return obis.Reading{}, err
	}
	return a.normalizer.Reading(raw)
}
