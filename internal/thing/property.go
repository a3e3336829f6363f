package thing

import (
	"github.com/nerrad567/meterthing/internal/obis"
)

// Property is one register of the Thing. Name, code, unit and kind are fixed
// at initialization; the cached value is guarded by the owning Thing's lock.
type Property struct {
	thing *Thing
	code  obis.Code
	name  string
	unit  string
	kind  obis.Kind

	// value is protected by thing.mu.
	value obis.Value
}

// Name returns the property name (the dotted registry code).
func (p *Property) Name() string { return p.name }

// Code returns the registry code.
func (p *Property) Code() obis.Code { return p.code }

// Unit returns the physical unit taken from the initial reading.
func (p *Property) Unit() string { return p.unit }

// Kind returns the type descriptor taken from the initial reading.
func (p *Property) Kind() obis.Kind { return p.kind }

// ReadOnly reports whether clients may write the property. Meter registers
// are reported, never written, so this is always true.
func (p *Property) ReadOnly() bool { return true }

// Value returns the cached value under the shared lock.
//
// Each call takes the lock separately; use Thing.Read to see several
// properties from the same reading.
func (p *Property) Value() obis.Value {
	p.thing.mu.RLock()
	defer p.thing.mu.RUnlock()
	return p.value
}

// Metadata returns the Web Thing property description.
func (p *Property) Metadata() map[string]any {
	meta := map[string]any{
		"title":    p.name,
		"readOnly": true,
		"links": []map[string]string{
			{"rel": "property", "href": "/properties/" + p.name},
		},
	}

	switch p.kind {
	case obis.KindNumber:
		meta["@type"] = "LevelProperty"
		meta["type"] = "number"
	case obis.KindBool:
		meta["type"] = "boolean"
	case obis.KindDateTime:
		meta["type"] = "string"
		meta["format"] = "date-time"
	case obis.KindNull:
		meta["type"] = "null"
	default:
		meta["type"] = "string"
	}

	if p.unit != "" {
		meta["unit"] = p.unit
	}
	return meta
}
