package normalize

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/meterthing/internal/obis"
)

var (
	energyImport = obis.New(1, 0, 1, 8, 0, 255)

	// clockBytes is Friday 2024-03-15 13:45:30.50 UTC+1.
	clockBytes = []byte{0x07, 0xE8, 0x03, 0x0F, 0x05, 0x0D, 0x2D, 0x1E, 0x32, 0xFF, 0xC4, 0x00}
)

func TestNormalize_Timestamp(t *testing.T) {
	n := New(DefaultTable())

	got, err := n.Normalize(CodeClock, obis.Bytes(clockBytes))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	dt, ok := got.AsDateTime()
	if !ok {
		t.Fatalf("Normalize() kind = %v, want datetime", got.Kind())
	}
	want := time.Date(2024, time.March, 15, 12, 45, 30, 500*int(time.Millisecond), time.UTC)
	if !dt.Time.Equal(want) {
		t.Errorf("time = %s, want %s", dt.Time, want)
	}
}

func TestNormalize_TimestampMalformed(t *testing.T) {
	n := New(DefaultTable())

	bad := append([]byte(nil), clockBytes...)
	bad[2] = 13

	got, err := n.Normalize(CodeClock, obis.Bytes(bad))
	if !errors.Is(err, ErrConversion) || !errors.Is(err, obis.ErrMalformedDateTime) {
		t.Fatalf("Normalize() error = %v, want %v wrapping %v", err, ErrConversion, obis.ErrMalformedDateTime)
	}
	if got.Kind() != obis.KindNull {
		t.Errorf("Normalize() kind on error = %v, want null", got.Kind())
	}

	if _, err := n.Normalize(CodeClock, obis.Bytes(clockBytes[:5])); !errors.Is(err, ErrConversion) {
		t.Errorf("Normalize(short) error = %v, want %v", err, ErrConversion)
	}
}

func TestNormalize_Text(t *testing.T) {
	n := New(DefaultTable())

	tests := []struct {
		name  string
		code  obis.Code
		input []byte
		want  string
	}{
		{name: "serial number", code: CodeSerialNumber, input: []byte("SN12345"), want: "SN12345"},
		{name: "logical device name", code: CodeLogicalDeviceName, input: []byte("ISK1030775213859"), want: "ISK1030775213859"},
		{name: "multibyte", code: CodeSerialNumber, input: []byte("Zähler-7"), want: "Zähler-7"},
		{name: "empty", code: CodeSerialNumber, input: []byte{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.code, obis.Bytes(tt.input))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			text, ok := got.AsText()
			if !ok {
				t.Fatalf("Normalize() kind = %v, want text", got.Kind())
			}
			if text != tt.want {
				t.Errorf("Normalize() = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestNormalize_InvalidUTF8(t *testing.T) {
	n := New(DefaultTable())

	got, err := n.Normalize(CodeSerialNumber, obis.Bytes([]byte{'S', 'N', 0xFF, 0xFE}))
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Normalize() error = %v, want %v", err, ErrConversion)
	}
	if got.Kind() != obis.KindNull {
		t.Errorf("Normalize() kind on error = %v, want null", got.Kind())
	}
}

func TestNormalize_Untouched(t *testing.T) {
	n := New(DefaultTable())

	tests := []struct {
		name  string
		code  obis.Code
		value obis.Value
	}{
		{name: "code not in table", code: energyImport, value: obis.Bytes([]byte{0xFF})},
		{name: "number under text code", code: CodeSerialNumber, value: obis.Number(5, "")},
		{name: "text already", code: CodeSerialNumber, value: obis.Text("SN1")},
		{name: "null", code: CodeClock, value: obis.Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.code, tt.value)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("Normalize() = %v, want %v unchanged", got, tt.value)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(DefaultTable())

	inputs := []struct {
		code  obis.Code
		value obis.Value
	}{
		{CodeClock, obis.Bytes(clockBytes)},
		{CodeSerialNumber, obis.Bytes([]byte("SN12345"))},
		{energyImport, obis.Number(1.5, "kWh")},
	}

	for _, in := range inputs {
		once, err := n.Normalize(in.code, in.value)
		if err != nil {
			t.Fatalf("Normalize(%s) error = %v", in.code, err)
		}
		twice, err := n.Normalize(in.code, once)
		if err != nil {
			t.Fatalf("Normalize(%s) second pass error = %v", in.code, err)
		}
		if !once.Equal(twice) {
			t.Errorf("code %s: second pass = %v, want %v", in.code, twice, once)
		}
	}
}

func TestNormalizeReading(t *testing.T) {
	n := New(DefaultTable())

	raw, err := obis.NewReading(
		obis.Entry{Code: energyImport, Value: obis.Number(10, "kWh")},
		obis.Entry{Code: CodeSerialNumber, Value: obis.Bytes([]byte("SN12345"))},
		obis.Entry{Code: CodeClock, Value: obis.Bytes(clockBytes)},
	)
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}

	got, err := n.Reading(raw)
	if err != nil {
		t.Fatalf("Reading() error = %v", err)
	}
	if !slices.Equal(got.Codes(), raw.Codes()) {
		t.Errorf("Codes() = %v, want %v", got.Codes(), raw.Codes())
	}

	if serial, _ := got.Get(CodeSerialNumber); serial.Kind() != obis.KindText {
		t.Errorf("serial kind = %v, want text", serial.Kind())
	}
	if clock, _ := got.Get(CodeClock); clock.Kind() != obis.KindDateTime {
		t.Errorf("clock kind = %v, want datetime", clock.Kind())
	}

	// The input reading is not modified.
	if rawSerial, _ := raw.Get(CodeSerialNumber); rawSerial.Kind() != obis.KindBytes {
		t.Errorf("input serial kind = %v, want bytes", rawSerial.Kind())
	}
}

func TestNormalizeReading_FailsWhole(t *testing.T) {
	n := New(DefaultTable())

	raw, err := obis.NewReading(
		obis.Entry{Code: CodeSerialNumber, Value: obis.Bytes([]byte("SN12345"))},
		obis.Entry{Code: CodeLogicalDeviceName, Value: obis.Bytes([]byte{0xC3})},
	)
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}

	got, err := n.Reading(raw)
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Reading() error = %v, want %v", err, ErrConversion)
	}
	if !got.IsEmpty() {
		t.Errorf("Reading() on error = %d entries, want none", got.Len())
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(map[string]string{
		"0.0.1.0.0.255":  "datetime",
		"0-0:96.1.0*255": "text",
	})
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	target, ok := table.Lookup(CodeClock)
	if !ok || target != TargetTimestamp {
		t.Errorf("Lookup(clock) = %v, %v, want %v, true", target, ok, TargetTimestamp)
	}
	if got, want := table.Codes(), []obis.Code{CodeClock, CodeSerialNumber}; !slices.Equal(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pairs map[string]string
		want  error
	}{
		{name: "unknown target", pairs: map[string]string{"0.0.1.0.0.255": "float"}, want: ErrUnknownTarget},
		{name: "invalid code", pairs: map[string]string{"nope": "text"}, want: obis.ErrInvalidCode},
		{
			name:  "same code in two notations",
			pairs: map[string]string{"0.0.96.1.0.255": "text", "0-0:96.1.0*255": "text"},
			want:  ErrDuplicateCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable(tt.pairs); !errors.Is(err, tt.want) {
				t.Errorf("ParseTable() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultTable(t *testing.T) {
	want := []obis.Code{CodeClock, CodeLogicalDeviceName, CodeSerialNumber}
	if got := DefaultTable().Codes(); !slices.Equal(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}
}
