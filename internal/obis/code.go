package obis

import (
	"fmt"
	"strconv"
	"strings"
)

// codeFields is the number of value groups in an OBIS code (A through F).
const codeFields = 6

// Code is an OBIS registry code. It names one measurement, such as active
// energy import (1.0.1.8.0.255) or the meter serial number (0.0.96.1.0.255).
//
// Code is a comparable array value, so it can be used directly as a map key.
type Code [codeFields]uint8

// New builds a Code from its six value groups.
func New(a, b, c, d, e, f uint8) Code {
	return Code{a, b, c, d, e, f}
}

// Parse reads a code in dotted form ("1.0.1.8.0.255") or in IEC notation
// ("1-0:1.8.0*255").
//
// Parameters:
//   - s: Code string
//
// Returns:
//   - Code: Parsed code
//   - error: ErrInvalidCode if the string does not hold six groups in 0..255
func Parse(s string) (Code, error) {
	normalised := strings.NewReplacer("-", ".", ":", ".", "*", ".").Replace(strings.TrimSpace(s))
	parts := strings.Split(normalised, ".")
	if len(parts) != codeFields {
		return Code{}, fmt.Errorf("%w: %q has %d groups, want %d", ErrInvalidCode, s, len(parts), codeFields)
	}

	var c Code
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %q group %d: %v", ErrInvalidCode, s, i+1, err)
		}
		c[i] = uint8(n)
	}
	return c, nil
}

// MustParse is like Parse but panics on error. Intended for fixed tables.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the dotted form used as a property name.
func (c Code) String() string {
	var b strings.Builder
	for i, v := range c {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	return b.String()
}

// IEC returns the code in IEC 62056-61 notation, e.g. "1-0:1.8.0*255".
func (c Code) IEC() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", c[0], c[1], c[2], c[3], c[4], c[5])
}

// Compare orders codes group by group. It returns -1, 0 or +1.
func (c Code) Compare(other Code) int {
	for i := range c {
		switch {
		case c[i] < other[i]:
			return -1
		case c[i] > other[i]:
			return 1
		}
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
