package source

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/meterthing/internal/obis"
)

// Format is the payload encoding of reading messages.
type Format string

// Supported wire formats.
const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// encMode is the CBOR encoder mode for reading messages.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for reading messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient so newer decoders can add fields.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Message is one poll as published by the meter decoder.
//
// A non-empty Error means the decoder failed this poll; Registers is then
// ignored.
type Message struct {
	Error     string     `json:"error,omitempty" cbor:"error,omitempty" yaml:"error,omitempty"`
	Registers []Register `json:"registers" cbor:"registers" yaml:"registers"`
}

// Register is one (code, value) pair of a Message. Type selects which value
// field is read:
//
//	number   Number, Unit
//	text     Text
//	bool     Bool
//	bytes    Bytes, or Hex in text formats
//	datetime 12-byte DLMS date-time in Bytes or Hex
//	null     nothing
type Register struct {
	Code   string   `json:"code" cbor:"code" yaml:"code"`
	Type   string   `json:"type" cbor:"type" yaml:"type"`
	Number *float64 `json:"number,omitempty" cbor:"number,omitempty" yaml:"number,omitempty"`
	Unit   string   `json:"unit,omitempty" cbor:"unit,omitempty" yaml:"unit,omitempty"`
	Text   *string  `json:"text,omitempty" cbor:"text,omitempty" yaml:"text,omitempty"`
	Bool   *bool    `json:"bool,omitempty" cbor:"bool,omitempty" yaml:"bool,omitempty"`
	Bytes  []byte   `json:"bytes,omitempty" cbor:"bytes,omitempty" yaml:"-"`
	Hex    string   `json:"hex,omitempty" cbor:"hex,omitempty" yaml:"hex,omitempty"`
}

// Decode parses a payload in the given format into a reading.
//
// Returns:
//   - obis.Reading: The raw (not yet normalized) reading
//   - error: ErrDecode for malformed payloads or a decoder-reported failure
func Decode(format Format, payload []byte) (obis.Reading, error) {
	var msg Message
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(payload, &msg)
	case FormatCBOR:
		err = decMode.Unmarshal(payload, &msg)
	default:
		return obis.Reading{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return obis.Reading{}, fmt.Errorf("%w: %s payload: %w", ErrDecode, format, err)
	}
	return msg.Reading()
}

// Encode serializes a reading. Used by tools and tests that play the role of
// the decoder.
func Encode(format Format, r obis.Reading) ([]byte, error) {
	msg := NewMessage(r)
	switch format {
	case FormatJSON:
		return json.Marshal(msg)
	case FormatCBOR:
		return encMode.Marshal(msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Reading converts the message to a reading.
func (m Message) Reading() (obis.Reading, error) {
	if m.Error != "" {
		return obis.Reading{}, fmt.Errorf("%w: decoder reported: %s", ErrDecode, m.Error)
	}

	entries := make([]obis.Entry, 0, len(m.Registers))
	for i, reg := range m.Registers {
		code, err := obis.Parse(reg.Code)
		if err != nil {
			return obis.Reading{}, fmt.Errorf("%w: register %d: %w", ErrDecode, i, err)
		}
		v, err := reg.value()
		if err != nil {
			return obis.Reading{}, fmt.Errorf("%w: register %s: %w", ErrDecode, code, err)
		}
		entries = append(entries, obis.Entry{Code: code, Value: v})
	}

	r, err := obis.NewReading(entries...)
	if err != nil {
		return obis.Reading{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return r, nil
}

func (reg Register) value() (obis.Value, error) {
	kind, ok := obis.ParseKind(reg.Type)
	if !ok {
		return obis.Value{}, fmt.Errorf("unknown type %q", reg.Type)
	}

	switch kind {
	case obis.KindNumber:
		if reg.Number == nil {
			return obis.Value{}, fmt.Errorf("number register without number")
		}
		if math.IsNaN(*reg.Number) || math.IsInf(*reg.Number, 0) {
			return obis.Value{}, fmt.Errorf("non-finite number %v", *reg.Number)
		}
		return obis.Number(*reg.Number, reg.Unit), nil
	case obis.KindText:
		if reg.Text == nil {
			return obis.Value{}, fmt.Errorf("text register without text")
		}
		return obis.Text(*reg.Text), nil
	case obis.KindBool:
		if reg.Bool == nil {
			return obis.Value{}, fmt.Errorf("bool register without bool")
		}
		return obis.Bool(*reg.Bool), nil
	case obis.KindBytes:
		raw, err := reg.octets()
		if err != nil {
			return obis.Value{}, err
		}
		return obis.Bytes(raw), nil
	case obis.KindDateTime:
		raw, err := reg.octets()
		if err != nil {
			return obis.Value{}, err
		}
		dt, err := obis.ParseDateTime(raw)
		if err != nil {
			return obis.Value{}, err
		}
		return obis.DateTimeValue(dt), nil
	default:
		return obis.Null(), nil
	}
}

func (reg Register) octets() ([]byte, error) {
	if reg.Hex == "" {
		return reg.Bytes, nil
	}
	raw, err := hex.DecodeString(reg.Hex)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return raw, nil
}

// NewMessage is the inverse of Message.Reading.
func NewMessage(r obis.Reading) Message {
	msg := Message{Registers: make([]Register, 0, r.Len())}
	for _, e := range r.Entries() {
		reg := Register{Code: e.Code.String(), Type: e.Value.Kind().String()}
		switch e.Value.Kind() {
		case obis.KindNumber:
			n, _ := e.Value.AsNumber()
			reg.Number = &n
			reg.Unit = e.Value.Unit()
		case obis.KindText:
			s, _ := e.Value.AsText()
			reg.Text = &s
		case obis.KindBool:
			b, _ := e.Value.AsBool()
			reg.Bool = &b
		case obis.KindBytes:
			reg.Bytes, _ = e.Value.AsBytes()
		case obis.KindDateTime:
			dt, _ := e.Value.AsDateTime()
			reg.Bytes = dt.Bytes()
		}
		msg.Registers = append(msg.Registers, reg)
	}
	return msg
}
