// Package catalog remembers the property schema each Thing exposed.
//
// A Thing's properties are fixed by its first reading, so a meter that
// gains or loses registers between runs silently changes the API that
// clients see. The catalog stores name, position, kind and unit per
// property (never values) and Sync reports the drift at startup.
package catalog
