package thing

import (
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/meterthing/internal/obis"
)

var (
	energyImport = obis.New(1, 0, 1, 8, 0, 255)
	powerImport  = obis.New(1, 0, 1, 7, 0, 255)
	serialNumber = obis.New(0, 0, 96, 1, 0, 255)
	unknownCode  = obis.New(9, 9, 9, 9, 9, 9)
)

var testDesc = Description{
	ID:          "urn:dev:ops:smart-meter-1",
	Title:       "Smart Meter",
	Types:       []string{"MultiLevelSensor"},
	Description: "A smart energy meter",
}

func mustReading(t *testing.T, entries ...obis.Entry) obis.Reading {
	t.Helper()
	r, err := obis.NewReading(entries...)
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}
	return r
}

func newTestThing(t *testing.T) *Thing {
	t.Helper()
	th, err := New(testDesc, mustReading(t,
		obis.Entry{Code: energyImport, Value: obis.Number(100, "kWh")},
		obis.Entry{Code: powerImport, Value: obis.Number(1.2, "kW")},
		obis.Entry{Code: serialNumber, Value: obis.Text("SN12345")},
	))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return th
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []string
	values []obis.Value
}

func (r *recorder) observe(name string, v obis.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	r.values = append(r.values, v)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// ─── Initialization ─────────────────────────────────────────────────

func TestNew_PropertyNamesMatchFirstReading(t *testing.T) {
	readings := []obis.Reading{
		mustReading(t, obis.Entry{Code: energyImport, Value: obis.Number(1, "kWh")}),
		mustReading(t,
			obis.Entry{Code: serialNumber, Value: obis.Text("SN1")},
			obis.Entry{Code: energyImport, Value: obis.Number(1, "kWh")},
			obis.Entry{Code: powerImport, Value: obis.Null()},
		),
	}

	for _, first := range readings {
		th, err := New(testDesc, first)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		want := make([]string, 0, first.Len())
		for _, c := range first.Codes() {
			want = append(want, c.String())
		}
		if got := th.PropertyNames(); !slices.Equal(got, want) {
			t.Errorf("PropertyNames() = %v, want %v", got, want)
		}

		got := th.PropertyNames()
		sort.Strings(got)
		sort.Strings(want)
		if !slices.Equal(got, want) {
			t.Errorf("sorted PropertyNames() = %v, want %v", got, want)
		}
	}
}

func TestNew_InitialValues(t *testing.T) {
	th := newTestThing(t)

	p, err := th.FindProperty("1.0.1.8.0.255")
	if err != nil {
		t.Fatalf("FindProperty(energy) error = %v", err)
	}
	if p.Unit() != "kWh" {
		t.Errorf("Unit() = %q, want kWh", p.Unit())
	}
	if p.Kind() != obis.KindNumber {
		t.Errorf("Kind() = %v, want number", p.Kind())
	}
	if p.Code() != energyImport {
		t.Errorf("Code() = %v, want %v", p.Code(), energyImport)
	}
	if !p.ReadOnly() {
		t.Error("ReadOnly() = false, want true")
	}
	if !p.Value().Equal(obis.Number(100, "kWh")) {
		t.Errorf("Value() = %v, want 100 kWh", p.Value())
	}

	serial, err := th.FindProperty("0.0.96.1.0.255")
	if err != nil {
		t.Fatalf("FindProperty(serial) error = %v", err)
	}
	if serial.Unit() != "" {
		t.Errorf("serial Unit() = %q, want empty", serial.Unit())
	}
	if serial.Kind() != obis.KindText {
		t.Errorf("serial Kind() = %v, want text", serial.Kind())
	}

	if th.ID() != "urn:dev:ops:smart-meter-1" {
		t.Errorf("ID() = %q", th.ID())
	}
	if th.Title() != "Smart Meter" {
		t.Errorf("Title() = %q", th.Title())
	}
	if got := th.Types(); !slices.Equal(got, []string{"MultiLevelSensor"}) {
		t.Errorf("Types() = %v", got)
	}
	if th.Description() != "A smart energy meter" {
		t.Errorf("Description() = %q", th.Description())
	}
}

func TestNew_EmptyReading(t *testing.T) {
	th, err := New(testDesc, obis.Reading{})
	if !errors.Is(err, ErrEmptyReading) {
		t.Errorf("New() error = %v, want %v", err, ErrEmptyReading)
	}
	if th != nil {
		t.Error("New() returned a thing for an empty reading")
	}
}

// ─── Lookup and cached values ───────────────────────────────────────

func TestFindProperty_Unknown(t *testing.T) {
	th := newTestThing(t)

	p, err := th.FindProperty(unknownCode.String())
	if !errors.Is(err, ErrPropertyNotFound) {
		t.Errorf("FindProperty() error = %v, want %v", err, ErrPropertyNotFound)
	}
	if p != nil {
		t.Error("FindProperty() returned a property for an unknown name")
	}
}

func TestSetCachedValue_ReturnsOldAndDoesNotNotify(t *testing.T) {
	th := newTestThing(t)
	rec := &recorder{}
	th.Subscribe(rec.observe)

	p, err := th.FindProperty(energyImport.String())
	if err != nil {
		t.Fatalf("FindProperty() error = %v", err)
	}

	old := th.SetCachedValue(p, obis.Number(101, "kWh"))
	if !old.Equal(obis.Number(100, "kWh")) {
		t.Errorf("SetCachedValue() old = %v, want 100 kWh", old)
	}
	if !p.Value().Equal(obis.Number(101, "kWh")) {
		t.Errorf("Value() = %v, want 101 kWh", p.Value())
	}
	if rec.count() != 0 {
		t.Errorf("notifications = %d, want 0", rec.count())
	}
}

func TestNotify_Order(t *testing.T) {
	th := newTestThing(t)

	var calls []string
	th.Subscribe(func(name string, _ obis.Value) { calls = append(calls, "a:"+name) })
	th.Subscribe(func(name string, _ obis.Value) { calls = append(calls, "b:"+name) })

	th.Notify("x", obis.Null())
	if want := []string{"a:x", "b:x"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	th := newTestThing(t)
	rec := &recorder{}
	unsubscribe := th.Subscribe(rec.observe)

	th.Notify("x", obis.Null())
	unsubscribe()
	unsubscribe() // second call is a no-op
	th.Notify("x", obis.Null())

	if rec.count() != 1 {
		t.Errorf("notifications = %d, want 1", rec.count())
	}
}

// ─── Apply ──────────────────────────────────────────────────────────

func TestApply_UpdatesAndNotifies(t *testing.T) {
	th := newTestThing(t)
	rec := &recorder{}
	th.Subscribe(rec.observe)

	n, err := th.Apply(mustReading(t,
		obis.Entry{Code: powerImport, Value: obis.Number(2.5, "kW")},
		obis.Entry{Code: energyImport, Value: obis.Number(105, "kWh")},
	))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Apply() = %d, want 2", n)
	}

	if want := []string{powerImport.String(), energyImport.String()}; !slices.Equal(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if !rec.values[1].Equal(obis.Number(105, "kWh")) {
		t.Errorf("energy notification = %v, want 105 kWh", rec.values[1])
	}

	// Properties absent from the reading keep their value.
	serial, _ := th.FindProperty(serialNumber.String())
	if !serial.Value().Equal(obis.Text("SN12345")) {
		t.Errorf("serial = %v, want SN12345", serial.Value())
	}
}

func TestApply_UnknownCodeLeavesStateUntouched(t *testing.T) {
	th := newTestThing(t)
	rec := &recorder{}
	th.Subscribe(rec.observe)

	_, err := th.Apply(mustReading(t,
		obis.Entry{Code: energyImport, Value: obis.Number(999, "kWh")},
		obis.Entry{Code: unknownCode, Value: obis.Number(1, "")},
	))
	if !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("Apply() error = %v, want %v", err, ErrPropertyNotFound)
	}

	energy, _ := th.FindProperty(energyImport.String())
	if !energy.Value().Equal(obis.Number(100, "kWh")) {
		t.Errorf("energy = %v, want 100 kWh", energy.Value())
	}
	if rec.count() != 0 {
		t.Errorf("notifications = %d, want 0", rec.count())
	}
}

func TestApply_NoStaleReadAfterNotify(t *testing.T) {
	th := newTestThing(t)

	var seen []obis.Value
	th.Subscribe(func(name string, v obis.Value) {
		p, err := th.FindProperty(name)
		if err != nil {
			t.Errorf("FindProperty(%q) error = %v", name, err)
			return
		}
		seen = append(seen, p.Value())
		if !p.Value().Equal(v) {
			t.Errorf("observer read a stale value for %s: %v, notified %v", name, p.Value(), v)
		}
	})

	for i := 0; i < 10; i++ {
		_, err := th.Apply(mustReading(t,
			obis.Entry{Code: energyImport, Value: obis.Number(float64(200+i), "kWh")},
		))
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if len(seen) != 10 {
		t.Fatalf("observer saw %d values, want 10", len(seen))
	}
	if !seen[9].Equal(obis.Number(209, "kWh")) {
		t.Errorf("last value = %v, want 209 kWh", seen[9])
	}
}

func TestApply_ConcurrentReadersSeeWholeReadings(t *testing.T) {
	th := newTestThing(t)

	const writes = 200
	done := make(chan struct{})
	var wg sync.WaitGroup

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				th.Read(func(s Snapshot) {
					energy, err := s.Value(energyImport.String())
					if err != nil {
						t.Error(err)
						return
					}
					power, err := s.Value(powerImport.String())
					if err != nil {
						t.Error(err)
						return
					}
					e, _ := energy.AsNumber()
					p, _ := power.AsNumber()
					// Every reading writes energy = power + 1000.
					if e != 100 && e != p+1000 {
						t.Errorf("torn snapshot: energy=%v power=%v", e, p)
					}
				})
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		_, err := th.Apply(mustReading(t,
			obis.Entry{Code: powerImport, Value: obis.Number(float64(i), "kW")},
			obis.Entry{Code: energyImport, Value: obis.Number(float64(i+1000), "kWh")},
		))
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	close(done)
	wg.Wait()

	energy, _ := th.FindProperty(energyImport.String())
	if !energy.Value().Equal(obis.Number(writes+1000, "kWh")) {
		t.Errorf("energy = %v, want %d kWh", energy.Value(), writes+1000)
	}
}

func TestValues(t *testing.T) {
	th := newTestThing(t)
	want := map[string]any{
		"1.0.1.8.0.255":  100.0,
		"1.0.1.7.0.255":  1.2,
		"0.0.96.1.0.255": "SN12345",
	}
	if got := th.Values(); !maps.Equal(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}
