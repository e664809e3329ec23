// pkg/model/diff.go
package model

import "fmt"

// CellClass is the comparison outcome of an aligned cell
type CellClass int

const (
	ClassMatchValue CellClass = iota
	ClassMatchNull
	ClassInfoGain
	ClassInfoLoss
	ClassChangedValue
)

// CellClasses lists every class in reporting order
var CellClasses = []CellClass{
	ClassMatchValue,
	ClassMatchNull,
	ClassInfoGain,
	ClassInfoLoss,
	ClassChangedValue,
}

func (c CellClass) String() string {
	switch c {
	case ClassMatchValue:
		return "match_value"
	case ClassMatchNull:
		return "match_null"
	case ClassInfoGain:
		return "info_gain"
	case ClassInfoLoss:
		return "info_loss"
	case ClassChangedValue:
		return "changed_value"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// IsMatch reports whether the class counts as a matched cell
func (c CellClass) IsMatch() bool {
	return c == ClassMatchValue || c == ClassMatchNull
}

// ClassCounts is a counter per cell class
type ClassCounts [5]int

// Get returns the count for a class
func (c ClassCounts) Get(class CellClass) int {
	return c[class]
}

// Total sums all classes
func (c ClassCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// ClassifiedCell is an aligned cell with its comparison outcome. Class is only
// meaningful when Presence is PresenceBoth.
type ClassifiedCell struct {
	AlignedCell
	Class             CellClass
	BaselineNull      NullClassification
	PipelineNull      NullClassification
	BaselineCanonical string
	PipelineCanonical string
}

// ColumnPresence holds the per-column presence and classification metrics
type ColumnPresence struct {
	Column               string
	BaselineNonNullCount int
	BaselineNonNullPct   float64
	PipelineNonNullCount int
	PipelineNonNullPct   float64
	DeltaPct             float64
	Classes              ClassCounts
	AlignedBy            StageCounts
}

// Summary is the dataset-level result of a comparison
type Summary struct {
	Slug               string
	BaselineFile       string
	CurrentFile        string
	TotalCells         int
	Matched            int
	BaselineOnly       int
	PipelineOnly       int
	Mismatched         int
	MatchRate          float64
	NullAwareMatchRate float64
	Classes            ClassCounts
	AlignedBy          StageCounts
}
