// Package obis defines the data model shared by every meterthing component:
// registry codes, the closed value variant produced by the meter decoder, and
// readings (one complete poll of the meter).
//
// # Registry codes
//
// A Code is the six-field OBIS identifier A-B:C.D.E*F used by IEC 62056
// meters. It is rendered in the dotted form used as a property name:
//
//	code := obis.New(1, 0, 1, 8, 0, 255)
//	code.String() // "1.0.1.8.0.255"
//
// # Values
//
// Value is a tagged variant. The decoder produces Bytes, DateTime, Number,
// Text, Bool or Null values; normalization replaces selected Bytes values with
// DateTime or Text. Consumers that need a generic structured value (JSON, MQTT
// payloads, WebSocket messages) use Value.Interface.
//
// # Readings
//
// A Reading is immutable once built. Entries keep the order the decoder
// produced them in, and duplicate codes are rejected.
package obis
