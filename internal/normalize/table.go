package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/meterthing/internal/obis"
)

// Target is the semantic type a byte value is converted to.
type Target uint8

// Conversion targets.
const (
	// TargetTimestamp parses a DLMS date-time octet string.
	TargetTimestamp Target = iota + 1

	// TargetText decodes a UTF-8 octet string.
	TargetText
)

// String returns the name used in configuration files.
func (t Target) String() string {
	switch t {
	case TargetTimestamp:
		return "timestamp"
	case TargetText:
		return "text"
	default:
		return fmt.Sprintf("target(%d)", uint8(t))
	}
}

// ParseTarget reads a target name. "datetime" and "string" are accepted as
// aliases.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timestamp", "datetime":
		return TargetTimestamp, nil
	case "text", "string":
		return TargetText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
}

// Well-known COSEM registers with octet-string values.
var (
	// CodeClock is the meter clock (date-time octet string).
	CodeClock = obis.New(0, 0, 1, 0, 0, 255)

	// CodeLogicalDeviceName is the COSEM logical device name.
	CodeLogicalDeviceName = obis.New(0, 0, 42, 0, 0, 255)

	// CodeSerialNumber is the meter serial number.
	CodeSerialNumber = obis.New(0, 0, 96, 1, 0, 255)
)

// Table maps registry codes to conversion targets. It is fixed once built.
type Table struct {
	targets map[obis.Code]Target
}

// NewTable copies entries into a Table.
func NewTable(entries map[obis.Code]Target) Table {
	t := Table{targets: make(map[obis.Code]Target, len(entries))}
	for code, target := range entries {
		t.targets[code] = target
	}
	return t
}

// DefaultTable converts the clock to a timestamp and the logical device name
// and serial number to text.
func DefaultTable() Table {
	return NewTable(map[obis.Code]Target{
		CodeClock:             TargetTimestamp,
		CodeLogicalDeviceName: TargetText,
		CodeSerialNumber:      TargetText,
	})
}

// ParseTable builds a Table from (code, target) string pairs, as found in the
// conversions section of the config file. Two keys naming the same code in
// different notations are rejected with ErrDuplicateCode.
func ParseTable(pairs map[string]string) (Table, error) {
	entries := make(map[obis.Code]Target, len(pairs))
	for codeStr, targetStr := range pairs {
		code, err := obis.Parse(codeStr)
		if err != nil {
			return Table{}, err
		}
		if _, dup := entries[code]; dup {
			return Table{}, fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		target, err := ParseTarget(targetStr)
		if err != nil {
			return Table{}, fmt.Errorf("code %s: %w", code, err)
		}
		entries[code] = target
	}
	return NewTable(entries), nil
}

// Lookup returns the target for a code.
func (t Table) Lookup(code obis.Code) (Target, bool) {
	target, ok := t.targets[code]
	return target, ok
}

// Len returns the number of entries.
func (t Table) Len() int { return len(t.targets) }

// Codes returns the table's codes in ascending order.
func (t Table) Codes() []obis.Code {
	codes := make([]obis.Code, 0, len(t.targets))
	for c := range t.targets {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Compare(codes[j]) < 0 })
	return codes
}
