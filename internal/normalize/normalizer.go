package normalize

import (
	"fmt"
	"unicode/utf8"

	"github.com/nerrad567/meterthing/internal/obis"
)

// Normalizer converts byte values of selected codes to richer types.
// It holds no state beyond its table and is safe for concurrent use.
type Normalizer struct {
	table Table
}

// New creates a Normalizer over table.
func New(table Table) *Normalizer {
	return &Normalizer{table: table}
}

// Table returns the conversion table.
func (n *Normalizer) Table() Table { return n.table }

// Normalize converts v when its code is in the table and v holds bytes.
// Anything else is returned unchanged, so normalizing twice is the same as
// normalizing once.
//
// Returns:
//   - obis.Value: The converted (or untouched) value
//   - error: ErrConversion when the bytes do not decode as the target type
func (n *Normalizer) Normalize(code obis.Code, v obis.Value) (obis.Value, error) {
	target, ok := n.table.Lookup(code)
	if !ok {
		return v, nil
	}
	converted, err := Convert(v, target)
	if err != nil {
		return obis.Value{}, fmt.Errorf("code %s: %w", code, err)
	}
	return converted, nil
}

// Reading normalizes every entry of r. The first conversion failure fails
// the whole reading.
func (n *Normalizer) Reading(r obis.Reading) (obis.Reading, error) {
	entries := r.Entries()
	for i, e := range entries {
		v, err := n.Normalize(e.Code, e.Value)
		if err != nil {
			return obis.Reading{}, err
		}
		entries[i].Value = v
	}
	return obis.NewReading(entries...)
}

// Convert interprets a byte value as target. Non-byte values pass through.
func Convert(v obis.Value, target Target) (obis.Value, error) {
	raw, ok := v.AsBytes()
	if !ok {
		return v, nil
	}

	switch target {
	case TargetTimestamp:
		dt, err := obis.ParseDateTime(raw)
		if err != nil {
			return obis.Value{}, fmt.Errorf("%w: %w", ErrConversion, err)
		}
		return obis.DateTimeValue(dt), nil
	case TargetText:
		if !utf8.Valid(raw) {
			return obis.Value{}, fmt.Errorf("%w: invalid UTF-8 in %d bytes", ErrConversion, len(raw))
		}
		return obis.Text(string(raw)), nil
	default:
		return obis.Value{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
}
