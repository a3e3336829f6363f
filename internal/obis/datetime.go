package obis

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DateTimeLength is the size of a DLMS date-time octet string.
const DateTimeLength = 12

// DLMS "not specified" markers.
const (
	notSpecified        = 0xFF
	yearNotSpecified    = 0xFFFF
	deviationNotDefined = -0x8000
	maxDeviationMinutes = 720
	maxHundredths       = 99
)

// ClockStatus is the DLMS clock status byte.
type ClockStatus uint8

// Clock status bits.
const (
	ClockInvalid           ClockStatus = 0x01
	ClockDoubtful          ClockStatus = 0x02
	ClockDifferentBase     ClockStatus = 0x04
	ClockInvalidStatus     ClockStatus = 0x08
	ClockDaylightSavingsOn ClockStatus = 0x80
)

// DateTime is a fully specified calendar timestamp read from a meter clock.
type DateTime struct {
	// Time carries the wall clock and the zone offset from the deviation field.
	// It is in UTC when the meter did not specify a deviation.
	Time time.Time

	// ClockStatus is the status byte as sent by the meter.
	ClockStatus ClockStatus

	// DeviationSpecified reports whether the meter sent a UTC deviation.
	DeviationSpecified bool
}

// ParseDateTime decodes the 12-byte DLMS date-time encoding:
//
//	year(2, big endian) month day day-of-week hour minute second
//	hundredths deviation(2, big endian, signed minutes) clock-status
//
// Every calendar and clock field must be specified and in range, because the
// result is a concrete instant. Hundredths may be 0xFF (treated as zero), the
// day of week may be 0xFF (otherwise it must match the date), and the deviation
// may be 0x8000 (treated as UTC). The zone offset is the negated deviation, as
// DLMS counts minutes from local time to UTC.
//
// Returns ErrMalformedDateTime for anything else; no partial result is ever
// returned.
func ParseDateTime(b []byte) (DateTime, error) {
	if len(b) != DateTimeLength {
		return DateTime{}, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedDateTime, DateTimeLength, len(b))
	}

	year := binary.BigEndian.Uint16(b[0:2])
	month, day, dow := b[2], b[3], b[4]
	hour, minute, second, hundredths := b[5], b[6], b[7], b[8]
	deviation := int16(binary.BigEndian.Uint16(b[9:11]))
	status := ClockStatus(b[11])

	if year == yearNotSpecified {
		return DateTime{}, fmt.Errorf("%w: year not specified", ErrMalformedDateTime)
	}
	if month < 1 || month > 12 {
		return DateTime{}, fmt.Errorf("%w: month %d", ErrMalformedDateTime, month)
	}
	if day < 1 || int(day) > daysIn(time.Month(month), int(year)) {
		return DateTime{}, fmt.Errorf("%w: day %d of %04d-%02d", ErrMalformedDateTime, day, year, month)
	}
	if dow != notSpecified && (dow < 1 || dow > 7) {
		return DateTime{}, fmt.Errorf("%w: day of week %d", ErrMalformedDateTime, dow)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return DateTime{}, fmt.Errorf("%w: time %02d:%02d:%02d", ErrMalformedDateTime, hour, minute, second)
	}
	if hundredths == notSpecified {
		hundredths = 0
	} else if hundredths > maxHundredths {
		return DateTime{}, fmt.Errorf("%w: hundredths %d", ErrMalformedDateTime, hundredths)
	}

	loc := time.UTC
	specified := deviation != deviationNotDefined
	if specified {
		if deviation < -maxDeviationMinutes || deviation > maxDeviationMinutes {
			return DateTime{}, fmt.Errorf("%w: deviation %d minutes", ErrMalformedDateTime, deviation)
		}
		loc = time.FixedZone("", -int(deviation)*60)
	}

	t := time.Date(int(year), time.Month(month), int(day),
		int(hour), int(minute), int(second), int(hundredths)*int(10*time.Millisecond), loc)

	if dow != notSpecified && isoWeekday(t) != dow {
		return DateTime{}, fmt.Errorf("%w: day of week %d does not match %s", ErrMalformedDateTime, dow, t.Format(time.DateOnly))
	}

	return DateTime{Time: t, ClockStatus: status, DeviationSpecified: specified}, nil
}

// Bytes encodes the timestamp back into the 12-byte DLMS form.
func (d DateTime) Bytes() []byte {
	t := d.Time
	out := make([]byte, DateTimeLength)
	binary.BigEndian.PutUint16(out[0:2], uint16(t.Year()))
	out[2] = byte(t.Month())
	out[3] = byte(t.Day())
	out[4] = isoWeekday(t)
	out[5] = byte(t.Hour())
	out[6] = byte(t.Minute())
	out[7] = byte(t.Second())
	out[8] = byte(t.Nanosecond() / int(10*time.Millisecond))

	deviation := int16(deviationNotDefined)
	if d.DeviationSpecified {
		_, offset := t.Zone()
		deviation = int16(-offset / 60)
	}
	binary.BigEndian.PutUint16(out[9:11], uint16(deviation))
	out[11] = byte(d.ClockStatus)
	return out
}

// Equal reports whether both timestamps denote the same instant with the same
// status and deviation presence.
func (d DateTime) Equal(other DateTime) bool {
	return d.Time.Equal(other.Time) &&
		d.ClockStatus == other.ClockStatus &&
		d.DeviationSpecified == other.DeviationSpecified
}

// String returns the timestamp in RFC 3339 with fractional seconds.
func (d DateTime) String() string {
	return d.Time.Format(time.RFC3339Nano)
}

// isoWeekday maps time.Weekday to DLMS numbering (Monday=1 ... Sunday=7).
func isoWeekday(t time.Time) uint8 {
	wd := t.Weekday()
	if wd == time.Sunday {
		return 7
	}
	return uint8(wd)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
