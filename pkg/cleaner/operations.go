// pkg/cleaner/operations.go
package cleaner

import (
	"strings"

	"github.com/David-Botos/vessel-recon/pkg/converter"
)

// prepare runs the stages that come before date handling:
// null check, whitespace, unicode form, accents, value mapping, case.
func (c *Canonicalizer) prepare(raw, column string) (string, bool) {
	classification := c.nulls.Classify(raw)
	if classification.IsNull {
		return classification.Value, true
	}

	value := raw
	if c.cfg.IgnoreTransformations.Whitespace {
		value = classification.Value
	}

	value = c.normalizeUnicode(value)
	value = c.stripAccents(value, column)
	value = c.mapValue(value, column)
	value = c.foldCase(value, column)

	return value, false
}

// finish runs the stages after date handling
func (c *Canonicalizer) finish(value, column string) string {
	return c.roundNumeric(value, column)
}

func (c *Canonicalizer) normalizeUnicode(value string) string {
	if c.cfg.Unicode.Normalize == "" {
		return value
	}
	return converter.NormalizeUnicode(value, c.cfg.Unicode.Normalize)
}

func (c *Canonicalizer) stripAccents(value, column string) string {
	if !c.accentColumns[column] {
		return value
	}
	return converter.StripAccents(value)
}

// mapValue substitutes whole values listed under value_mappings
func (c *Canonicalizer) mapValue(value, column string) string {
	mapping, ok := c.cfg.ValueMappings[column]
	if !ok {
		return value
	}
	if replacement, ok := mapping[value]; ok {
		return replacement
	}
	return value
}

func (c *Canonicalizer) foldCase(value, column string) string {
	if !c.caseInsensitive[column] {
		return value
	}
	return strings.ToUpper(value)
}

// datesApply reports whether the date stage runs for a column: only when date
// differences are ignored, and then for the configured date columns or for
// every column if none are configured.
func (c *Canonicalizer) datesApply(column string) bool {
	if !c.cfg.IgnoreTransformations.DateFormats {
		return false
	}
	if len(c.dateColumns) == 0 {
		return true
	}
	return c.dateColumns[column]
}

func (c *Canonicalizer) roundNumeric(value, column string) string {
	precision, ok := c.cfg.FloatPrecisionFor(column)
	if !ok {
		return value
	}
	rounded, _ := converter.RoundDecimal(value, precision)
	return rounded
}
