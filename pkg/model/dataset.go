// pkg/model/dataset.go
package model

import (
	"regexp"
	"strings"
)

// Side identifies which half of a comparison a dataset belongs to
type Side string

const (
	SideBaseline Side = "baseline"
	SidePipeline Side = "pipeline"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9]+`)

// NormalizeColumnName applies the structural part of column canonicalization:
// uppercase, collapse every run of non-alphanumeric characters to a single
// underscore and trim underscores from both ends. Alias resolution happens on
// top of this in the cleaner.
func NormalizeColumnName(name string) string {
	upper := strings.ToUpper(name)
	collapsed := nonAlphanumeric.ReplaceAllString(upper, "_")
	return strings.Trim(collapsed, "_")
}

// Cell is a single observed value in a dataset
type Cell struct {
	RowIndex int
	Column   string // canonical column name
	Value    string // raw value as loaded

	// Pipeline export metadata, empty for baseline cells
	Confidence  *float64
	NeedsReview string
	RuleChain   string
}

// Row groups the cells sharing a row index
type Row struct {
	Index int
	Cells map[string]*Cell
}

// Value returns the raw value stored for a column
func (r *Row) Value(column string) (string, bool) {
	cell, ok := r.Cells[column]
	if !ok {
		return "", false
	}
	return cell.Value, true
}

// Dataset is one loaded side of a reconciliation pair. It is not modified
// after the loader returns it.
type Dataset struct {
	Slug       string
	Side       Side
	Path       string
	RawColumns []string
	Columns    []string // canonical, in first-seen order
	Rows       []*Row   // ordered by row index
}

// HasColumn reports whether the dataset schema contains a canonical column
func (d *Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// CellCount returns the number of cells across all rows
func (d *Dataset) CellCount() int {
	total := 0
	for _, row := range d.Rows {
		total += len(row.Cells)
	}
	return total
}

// SlugFromFilename derives the dataset slug from a baseline file stem:
// everything before the first underscore, uppercased.
func SlugFromFilename(stem string) string {
	token := stem
	if idx := strings.Index(stem, "_"); idx >= 0 {
		token = stem[:idx]
	}
	return strings.ToUpper(token)
}
