package thing

import (
	"fmt"
	"sync"

	"github.com/nerrad567/meterthing/internal/obis"
)

// webThingContext is the JSON-LD context of Web Thing descriptions.
const webThingContext = "https://webthings.io/schemas"

// Description is the identity of a Thing, set once at construction.
type Description struct {
	// ID is a stable URI, e.g. "urn:dev:ops:smart-meter-1".
	ID string

	// Title is the display name.
	Title string

	// Types are the semantic type tags, e.g. ["MultiLevelSensor"].
	Types []string

	// Description is free text shown by clients.
	Description string
}

// Observer receives a property change after it has been committed.
type Observer func(name string, value obis.Value)

// observerEntry pairs an observer with its registration id.
type observerEntry struct {
	id uint64
	fn Observer
}

// Thing is the observable model of one meter.
//
// Its property set is fixed by the reading it was built from. The cached
// values are guarded by a single RWMutex: the sync loop writes a whole reading
// under the exclusive lock, and any number of readers use the shared lock.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Observers are invoked synchronously by Notify, outside the value lock,
//     so they may read the Thing.
type Thing struct {
	desc Description

	// props and index are built in New and never change afterwards.
	props []*Property
	index map[string]*Property

	// mu guards every property value.
	mu sync.RWMutex

	observers  []observerEntry
	nextID     uint64
	observerMu sync.RWMutex
}

// New builds a Thing with one property per entry of first, in entry order.
// Each property takes its initial value, unit and kind from its entry.
//
// Returns:
//   - *Thing: The initialized Thing
//   - error: ErrEmptyReading if first has no entries
func New(desc Description, first obis.Reading) (*Thing, error) {
	if first.IsEmpty() {
		return nil, ErrEmptyReading
	}

	t := &Thing{
		desc:  desc,
		props: make([]*Property, 0, first.Len()),
		index: make(map[string]*Property, first.Len()),
	}
	t.desc.Types = append([]string(nil), desc.Types...)

	for _, e := range first.Entries() {
		p := &Property{
			thing: t,
			code:  e.Code,
			name:  e.Code.String(),
			unit:  e.Value.Unit(),
			kind:  e.Value.Kind(),
			value: e.Value,
		}
		t.props = append(t.props, p)
		t.index[p.name] = p
	}

	return t, nil
}

// ID returns the Thing's URI.
func (t *Thing) ID() string { return t.desc.ID }

// Title returns the display name.
func (t *Thing) Title() string { return t.desc.Title }

// Types returns a copy of the semantic type tags.
func (t *Thing) Types() []string { return append([]string(nil), t.desc.Types...) }

// Description returns the free-text description.
func (t *Thing) Description() string { return t.desc.Description }

// FindProperty returns the property with the given name.
//
// Returns:
//   - *Property: The property
//   - error: ErrPropertyNotFound if name was not in the initial reading
func (t *Thing) FindProperty(name string) (*Property, error) {
	p, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p, nil
}

// Properties returns the properties in initialization order.
func (t *Thing) Properties() []*Property {
	return append([]*Property(nil), t.props...)
}

// PropertyNames returns the property names in initialization order.
func (t *Thing) PropertyNames() []string {
	names := make([]string, len(t.props))
	for i, p := range t.props {
		names[i] = p.name
	}
	return names
}

// SetCachedValue replaces the cached value of p under the exclusive lock and
// returns the previous value. It does not notify observers.
//
// p must come from this Thing's FindProperty.
func (t *Thing) SetCachedValue(p *Property, v obis.Value) obis.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(p, v)
}

func (t *Thing) setLocked(p *Property, v obis.Value) obis.Value {
	old := p.value
	p.value = v
	return old
}

// Subscribe registers an observer. Observers are called in registration order.
// The returned function removes the observer.
func (t *Thing) Subscribe(fn Observer) (unsubscribe func()) {
	t.observerMu.Lock()
	t.nextID++
	id := t.nextID
	t.observers = append(t.observers, observerEntry{id: id, fn: fn})
	t.observerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.observerMu.Lock()
			defer t.observerMu.Unlock()
			for i, o := range t.observers {
				if o.id == id {
					t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify tells every observer that name changed to value. It must only be
// called after the new value has been committed with SetCachedValue, so that
// an observer reading the property sees value and never the previous one.
func (t *Thing) Notify(name string, value obis.Value) {
	t.observerMu.RLock()
	observers := make([]observerEntry, len(t.observers))
	copy(observers, t.observers)
	t.observerMu.RUnlock()

	for _, o := range observers {
		o.fn(name, value)
	}
}

// Apply writes one reading. All codes are checked against the property set
// first; if any is unknown nothing is written and ErrPropertyNotFound is
// returned. Otherwise every value is set under one exclusive lock, the lock is
// released, and observers are notified for each entry in reading order.
//
// Returns:
//   - int: Number of properties updated
//   - error: ErrPropertyNotFound for an unknown code
func (t *Thing) Apply(r obis.Reading) (int, error) {
	entries := r.Entries()
	props := make([]*Property, len(entries))
	for i, e := range entries {
		p, err := t.FindProperty(e.Code.String())
		if err != nil {
			return 0, err
		}
		props[i] = p
	}

	t.mu.Lock()
	for i, e := range entries {
		t.setLocked(props[i], e.Value)
	}
	t.mu.Unlock()

	for i, e := range entries {
		t.Notify(props[i].name, e.Value)
	}
	return len(entries), nil
}

// Snapshot reads property values under a shared lock held by Thing.Read.
// It must not be retained after the callback returns.
type Snapshot struct {
	t *Thing
}

// Value returns the cached value of a property.
func (s Snapshot) Value(name string) (obis.Value, error) {
	p, err := s.t.FindProperty(name)
	if err != nil {
		return obis.Value{}, err
	}
	return p.value, nil
}

// Each calls fn for every property in initialization order.
func (s Snapshot) Each(fn func(p *Property, v obis.Value)) {
	for _, p := range s.t.props {
		fn(p, p.value)
	}
}

// Read runs fn with the shared lock held, so every value fn sees comes from
// the same reading. fn must not call methods that take the exclusive lock.
func (t *Thing) Read(fn func(s Snapshot)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(Snapshot{t: t})
}

// Values returns a consistent snapshot of every property as generic values.
func (t *Thing) Values() map[string]any {
	out := make(map[string]any, len(t.props))
	t.Read(func(s Snapshot) {
		s.Each(func(p *Property, v obis.Value) {
			out[p.name] = v.Interface()
		})
	})
	return out
}

// Describe returns the Web Thing description. base, when set, is added as the
// "base" member so clients can resolve the relative links.
func (t *Thing) Describe(base string) map[string]any {
	props := make(map[string]any, len(t.props))
	for _, p := range t.props {
		props[p.name] = p.Metadata()
	}

	types := t.desc.Types
	if types == nil {
		types = []string{}
	}

	d := map[string]any{
		"id":          t.desc.ID,
		"title":       t.desc.Title,
		"@context":    webThingContext,
		"@type":       types,
		"description": t.desc.Description,
		"properties":  props,
		"actions":     map[string]any{},
		"events":      map[string]any{},
		"links": []map[string]string{
			{"rel": "properties", "href": "/properties"},
			{"rel": "actions", "href": "/actions"},
			{"rel": "events", "href": "/events"},
		},
		"securityDefinitions": map[string]any{
			"nosec_sc": map[string]string{"scheme": "nosec"},
		},
		"security": "nosec_sc",
	}
	if base != "" {
		d["base"] = base
	}
	return d
}
