package obis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBytes
	KindDateTime
	KindText
	KindNumber
	KindBool
)

// String returns the kind name used in wire messages and the property catalog.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBytes:
		return "bytes"
	case KindDateTime:
		return "datetime"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := KindNull; k <= KindBool; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindNull, false
}

// Value is one register value. The zero Value is Null.
//
// Values are immutable: constructors copy byte slices in and accessors copy
// them out.
type Value struct {
	kind     Kind
	raw      []byte
	dateTime DateTime
	text     string
	number   float64
	boolean  bool
	unit     string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bytes returns an opaque octet-string value.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: bytes.Clone(b)}
}

// DateTimeValue returns a timestamp value.
func DateTimeValue(dt DateTime) Value {
	return Value{kind: KindDateTime, dateTime: dt}
}

// Text returns a string value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number returns a numeric value with its physical unit ("" when unitless).
func Number(v float64, unit string) Value {
	return Value{kind: KindNumber, number: v, unit: unit}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Unit returns the physical unit of a numeric value, or "".
func (v Value) Unit() string { return v.unit }

// AsBytes returns a copy of the octet string when v is Bytes.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return bytes.Clone(v.raw), true
}

// AsDateTime returns the timestamp when v is DateTime.
func (v Value) AsDateTime() (DateTime, bool) {
	return v.dateTime, v.kind == KindDateTime
}

// AsText returns the string when v is Text.
func (v Value) AsText() (string, bool) {
	return v.text, v.kind == KindText
}

// AsNumber returns the number when v is Number.
func (v Value) AsNumber() (float64, bool) {
	return v.number, v.kind == KindNumber
}

// AsBool returns the boolean when v is Bool.
func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBytes:
		return bytes.Equal(v.raw, other.raw)
	case KindDateTime:
		return v.dateTime.Equal(other.dateTime)
	case KindText:
		return v.text == other.text
	case KindNumber:
		return v.number == other.number && v.unit == other.unit
	case KindBool:
		return v.boolean == other.boolean
	default:
		return true
	}
}

// Interface returns the generic structured form handed to consumers:
// float64, string (text, RFC 3339 timestamp, or hex for bytes), bool or nil.
// NaN and infinities have no JSON form and are returned as nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindBytes:
		return hex.EncodeToString(v.raw)
	case KindDateTime:
		return v.dateTime.String()
	case KindText:
		return v.text
	case KindNumber:
		if math.IsNaN(v.number) || math.IsInf(v.number, 0) {
			return nil
		}
		return v.number
	case KindBool:
		return v.boolean
	default:
		return nil
	}
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		s := strconv.FormatFloat(v.number, 'g', -1, 64)
		if v.unit != "" {
			s += " " + v.unit
		}
		return s
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindNull:
		return "null"
	case KindText:
		return strconv.Quote(v.text)
	default:
		s, _ := v.Interface().(string) //nolint:errcheck // bytes and datetime always render as string
		return s
	}
}

// MarshalJSON encodes the generic structured form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
