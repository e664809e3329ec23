// pkg/converter/values.go
package converter

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateScheme decides how ambiguous numeric dates are read
type DateScheme int

const (
	MonthFirst DateScheme = iota
	DayFirst
)

// ISODate is the rendering used for reconciled dates
const ISODate = "2006-01-02"

// Layouts that read the same under both schemes
var unambiguousLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-Jan-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var monthFirstLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
}

// ParseDate reads a date under the given scheme
func ParseDate(value string, scheme DateScheme) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range unambiguousLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	layouts := monthFirstLayouts
	if scheme == DayFirst {
		layouts = dayFirstLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// ToISODate renders a value as YYYY-MM-DD under a scheme, or returns it
// unchanged when it is not a date.
func ToISODate(value string, scheme DateScheme) string {
	t, ok := ParseDate(value, scheme)
	if !ok {
		return value
	}
	return t.Format(ISODate)
}

// ReconcileDates renders both sides month-first and then day-first and adopts
// the first scheme under which they agree. When no scheme agrees both values
// come back as given and the returned flag is false.
func ReconcileDates(baseline, pipeline string) (string, string, bool) {
	for _, scheme := range []DateScheme{MonthFirst, DayFirst} {
		b := ToISODate(baseline, scheme)
		p := ToISODate(pipeline, scheme)
		if b == p {
			return b, p, true
		}
	}
	return baseline, pipeline, false
}

// maxDecimalExponent bounds the exponents RoundDecimal will scale
const maxDecimalExponent = 1000

// RoundDecimal rounds a numeric string to precision decimal places and trims
// trailing zeros. Precision zero yields an integer string. Non numeric values
// are returned unchanged with ok false, as are values whose exponent is beyond
// maxDecimalExponent.
func RoundDecimal(value string, precision int) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || precision < 0 {
		return value, false
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return value, false
	}
	// rounding expands the coefficient to the exponent
	if exp := d.Exponent(); exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return value, false
	}

	return d.Round(int32(precision)).String(), true
}
