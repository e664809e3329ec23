// pkg/converter/converter.go

// Package converter holds the value level conversions used during
// canonicalization: Unicode forms, accent folding, date rendering and
// decimal rounding. Every function returns its input unchanged when the
// value cannot be converted.
package converter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeUnicode applies one of the NFC, NFD, NFKC or NFKD forms. An empty
// or unknown form leaves the value untouched.
func NormalizeUnicode(value, form string) string {
	switch strings.ToUpper(form) {
	case "NFC":
		return norm.NFC.String(value)
	case "NFD":
		return norm.NFD.String(value)
	case "NFKC":
		return norm.NFKC.String(value)
	case "NFKD":
		return norm.NFKD.String(value)
	default:
		return value
	}
}

// StripAccents removes combining marks after canonical decomposition and
// recomposes what is left.
func StripAccents(value string) string {
	// Chain keeps state, so build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return result
}
