// pkg/model/alignment.go
package model

import (
	"fmt"
	"strings"
)

// NullSentinel is the canonical value of every null cell
const NullSentinel = "<NULL>"

// CompositeSeparator joins the values of a composite key
const CompositeSeparator = "||"

// NullClassification is the result of classifying one raw value.
// Reason is empty when the value is not null.
type NullClassification struct {
	IsNull bool
	Value  string
	Reason string
}

// Stage is an alignment stage, ordered by precedence
type Stage int

const (
	StageJoinKey Stage = iota
	StageComposite
	StageRowIndex
)

// Stages lists the alignment stages in the order they run
var Stages = []Stage{StageJoinKey, StageComposite, StageRowIndex}

func (s Stage) String() string {
	switch s {
	case StageJoinKey:
		return "join_key"
	case StageComposite:
		return "composite"
	case StageRowIndex:
		return "row_index"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// AlignmentKey identifies how a pair of rows was matched. Exactly one of
// JoinKey, CompositeKey or RowIndex.
type AlignmentKey interface {
	Stage() Stage
	String() string
	alignmentKey()
}

// JoinKey matches rows on the canonical value of the configured join column
type JoinKey struct {
	Value string
}

func (JoinKey) Stage() Stage     { return StageJoinKey }
func (k JoinKey) String() string { return "JK:" + k.Value }
func (JoinKey) alignmentKey()    {}

// CompositeKey matches rows on the values of one configured column set
type CompositeKey struct {
	Set     int
	Columns []string
	Value   string
}

func (CompositeKey) Stage() Stage { return StageComposite }
func (k CompositeKey) String() string {
	return fmt.Sprintf("CK%d:%s", k.Set, k.Value)
}
func (CompositeKey) alignmentKey() {}

// NewCompositeKey joins the values of a complete column set
func NewCompositeKey(set int, columns, values []string) CompositeKey {
	return CompositeKey{
		Set:     set,
		Columns: columns,
		Value:   strings.Join(values, CompositeSeparator),
	}
}

// RowIndex matches rows on their position
type RowIndex struct {
	Index int
}

func (RowIndex) Stage() Stage     { return StageRowIndex }
func (k RowIndex) String() string { return fmt.Sprintf("ROW:%d", k.Index) }
func (RowIndex) alignmentKey()    {}

// Presence tells which sides contributed a cell
type Presence int

const (
	PresenceBoth Presence = iota
	PresenceBaselineOnly
	PresencePipelineOnly
)

func (p Presence) String() string {
	switch p {
	case PresenceBoth:
		return "both"
	case PresenceBaselineOnly:
		return "baseline_only"
	case PresencePipelineOnly:
		return "pipeline_only"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// AlignedCell is one (row pair, column) produced by the aligner. Baseline or
// Pipeline is nil when the cell has no counterpart.
type AlignedCell struct {
	Stage       Stage
	Key         AlignmentKey
	BaselineRow int // -1 when absent
	PipelineRow int // -1 when absent
	Column      string
	Baseline    *Cell
	Pipeline    *Cell
}

// Presence reports which sides carry this cell
func (c AlignedCell) Presence() Presence {
	switch {
	case c.Baseline != nil && c.Pipeline != nil:
		return PresenceBoth
	case c.Baseline != nil:
		return PresenceBaselineOnly
	default:
		return PresencePipelineOnly
	}
}

// RowIndex returns the row index reported for this cell: the baseline
// position when present, otherwise the pipeline row index.
func (c AlignedCell) RowIndex() int {
	if c.BaselineRow >= 0 {
		return c.BaselineRow
	}
	return c.PipelineRow
}

// StageCounts is a counter per alignment stage
type StageCounts [3]int

// Get returns the count for a stage
func (s StageCounts) Get(stage Stage) int {
	return s[stage]
}

// Total sums all stages
func (s StageCounts) Total() int {
	return s[StageJoinKey] + s[StageComposite] + s[StageRowIndex]
}

// AlignmentOutcome summarizes what each stage consumed
type AlignmentOutcome struct {
	AlignedCells         StageCounts
	BaselineRows         StageCounts
	PipelineRows         StageCounts
	JoinKeyUsed          bool
	SkippedCompositeSets [][]string
	DeferredDuplicates   StageCounts // rows excluded for duplicate keys, per side summed
}
