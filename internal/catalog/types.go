package catalog

import (
	"fmt"
	"time"

	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/thing"
)

// Entry is the stored schema of one property.
type Entry struct {
	Name      string
	Position  int
	Kind      obis.Kind
	Unit      string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Field names reported in a Change.
const (
	FieldKind = "kind"
	FieldUnit = "unit"
)

// Change is a property present in both schemas whose kind or unit differs.
type Change struct {
	Name  string
	Field string
	Old   string
	New   string
}

// String renders the change for log output.
func (c Change) String() string {
	return fmt.Sprintf("%s %s %q -> %q", c.Name, c.Field, c.Old, c.New)
}

// Drift is the difference between the stored schema and the current Thing.
type Drift struct {
	Added   []Entry
	Removed []Entry
	Changed []Change
}

// Empty reports whether the schemas match.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// EntriesFor lists the property schema of th in property order.
// Timestamps are left zero.
func EntriesFor(th *thing.Thing) []Entry {
	props := th.Properties()
	out := make([]Entry, len(props))
	for i, p := range props {
		out[i] = Entry{Name: p.Name(), Position: i, Kind: p.Kind(), Unit: p.Unit()}
	}
	return out
}

// Compare reports how current differs from stored. Added follows current's
// order, Removed follows stored's order, and a property whose kind and unit
// both changed yields two Changes. Position changes are not drift.
func Compare(stored, current []Entry) Drift {
	var d Drift

	old := make(map[string]Entry, len(stored))
	for _, e := range stored {
		old[e.Name] = e
	}
	seen := make(map[string]bool, len(current))

	for _, e := range current {
		seen[e.Name] = true
		prev, ok := old[e.Name]
		if !ok {
			d.Added = append(d.Added, e)
			continue
		}
		if prev.Kind != e.Kind {
			d.Changed = append(d.Changed, Change{Name: e.Name, Field: FieldKind, Old: prev.Kind.String(), New: e.Kind.String()})
		}
		if prev.Unit != e.Unit {
			d.Changed = append(d.Changed, Change{Name: e.Name, Field: FieldUnit, Old: prev.Unit, New: e.Unit})
		}
	}

	for _, e := range stored {
		if !seen[e.Name] {
			d.Removed = append(d.Removed, e)
		}
	}
	return d
}
