package obis

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
)

func TestValueVariants(t *testing.T) {
	dt, err := ParseDateTime(clockBytes)
	if err != nil {
		t.Fatalf("ParseDateTime() error = %v", err)
	}

	tests := []struct {
		name      string
		value     Value
		kind      Kind
		generic   any
		rendering string
	}{
		{name: "null", value: Null(), kind: KindNull, generic: nil, rendering: "null"},
		{name: "bytes", value: Bytes([]byte("SN1")), kind: KindBytes, generic: "534e31", rendering: "534e31"},
		{name: "datetime", value: DateTimeValue(dt), kind: KindDateTime, generic: "2024-03-15T13:45:30.5+01:00", rendering: "2024-03-15T13:45:30.5+01:00"},
		{name: "text", value: Text("SN12345"), kind: KindText, generic: "SN12345", rendering: `"SN12345"`},
		{name: "number", value: Number(1234.5, "Wh"), kind: KindNumber, generic: 1234.5, rendering: "1234.5 Wh"},
		{name: "unitless number", value: Number(3, ""), kind: KindNumber, generic: 3.0, rendering: "3"},
		{name: "bool", value: Bool(true), kind: KindBool, generic: true, rendering: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Kind(); got != tt.kind {
				t.Errorf("Kind() = %v, want %v", got, tt.kind)
			}
			if got := tt.value.Interface(); got != tt.generic {
				t.Errorf("Interface() = %#v, want %#v", got, tt.generic)
			}
			if got := tt.value.String(); got != tt.rendering {
				t.Errorf("String() = %q, want %q", got, tt.rendering)
			}
			if !tt.value.Equal(tt.value) {
				t.Error("value should equal itself")
			}
		})
	}
}

func TestValueNonFiniteNumbers(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		v := Number(f, "Wh")
		if got := v.Interface(); got != nil {
			t.Errorf("Number(%v).Interface() = %#v, want nil", f, got)
		}
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(Number(%v)) error = %v", f, err)
		}
		if string(data) != "null" {
			t.Errorf("Marshal(Number(%v)) = %s, want null", f, data)
		}
	}
}

func TestValueBytesAreCopied(t *testing.T) {
	src := []byte("abc")
	v := Bytes(src)
	src[0] = 'x'

	got, ok := v.AsBytes()
	if !ok {
		t.Fatal("AsBytes() ok = false")
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Errorf("AsBytes() = %q, want abc", got)
	}

	got[1] = 'y'
	if again, _ := v.AsBytes(); !bytes.Equal(again, []byte("abc")) {
		t.Errorf("AsBytes() after caller mutation = %q, want abc", again)
	}
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same number", Number(1, "W"), Number(1, "W"), true},
		{"different unit", Number(1, "W"), Number(1, "kW"), false},
		{"different number", Number(1, "W"), Number(2, "W"), false},
		{"different kind", Text("1"), Number(1, ""), false},
		{"same bytes", Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{"different bytes", Bytes([]byte{1, 2}), Bytes([]byte{1}), false},
		{"zero is null", Null(), Value{}, true},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s: Equal() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValueAccessorsRejectOtherKinds(t *testing.T) {
	v := Text("x")
	if _, ok := v.AsNumber(); ok {
		t.Error("AsNumber() on text ok = true")
	}
	if _, ok := v.AsBytes(); ok {
		t.Error("AsBytes() on text ok = true")
	}
	if _, ok := v.AsDateTime(); ok {
		t.Error("AsDateTime() on text ok = true")
	}
	if _, ok := v.AsBool(); ok {
		t.Error("AsBool() on text ok = true")
	}
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"energy": Number(42, "Wh"), "serial": Text("SN1")})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	// encoding/json sorts map keys.
	if want := `{"energy":42,"serial":"SN1"}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestKindRoundTrip(t *testing.T) {
	for k := KindNull; k <= KindBool; k++ {
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v, want %v, true", k.String(), parsed, ok, k)
		}
	}
	if _, ok := ParseKind("complex"); ok {
		t.Error(`ParseKind("complex") ok = true`)
	}
}
