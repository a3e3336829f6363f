package obis

import "fmt"

// Entry is one (code, value) pair of a reading.
type Entry struct {
	Code  Code
	Value Value
}

// Reading is one complete poll of the meter: an ordered list of entries with
// unique codes. A Reading cannot be modified after it is built.
type Reading struct {
	entries []Entry
	index   map[Code]int
}

// NewReading builds a Reading, keeping entry order.
//
// Returns:
//   - Reading: The immutable reading
//   - error: ErrDuplicateCode if a code appears more than once
func NewReading(entries ...Entry) (Reading, error) {
	r := Reading{
		entries: make([]Entry, len(entries)),
		index:   make(map[Code]int, len(entries)),
	}
	for i, e := range entries {
		if _, dup := r.index[e.Code]; dup {
			return Reading{}, fmt.Errorf("%w: %s", ErrDuplicateCode, e.Code)
		}
		r.entries[i] = e
		r.index[e.Code] = i
	}
	return r, nil
}

// Len returns the number of entries.
func (r Reading) Len() int { return len(r.entries) }

// IsEmpty reports whether the reading holds no entries.
func (r Reading) IsEmpty() bool { return len(r.entries) == 0 }

// Entries returns a copy of the entries in order.
func (r Reading) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the value for a code.
func (r Reading) Get(c Code) (Value, bool) {
	i, ok := r.index[c]
	if !ok {
		return Value{}, false
	}
	return r.entries[i].Value, true
}

// Codes returns the codes in entry order.
func (r Reading) Codes() []Code {
	out := make([]Code, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Code
	}
	return out
}

// Map returns a copy of the values keyed by code.
func (r Reading) Map() map[Code]Value {
	out := make(map[Code]Value, len(r.entries))
	for _, e := range r.entries {
		out[e.Code] = e.Value
	}
	return out
}
