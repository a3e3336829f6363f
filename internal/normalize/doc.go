// Package normalize turns raw decoder values into their semantic types.
//
// Some COSEM registers carry octet strings whose meaning depends on the
// register: the clock is a 12-byte DLMS date-time, the logical device name and
// serial number are text. A Table names those registers; the Normalizer
// converts matching byte values and leaves everything else untouched.
//
//	n := normalize.New(normalize.DefaultTable())
//	adapter := normalize.NewAdapter(src, n)
//	reading, err := adapter.Next(ctx)
//
// A value that does not decode (bad date-time fields, invalid UTF-8) fails
// with ErrConversion. There is no fallback value.
package normalize
