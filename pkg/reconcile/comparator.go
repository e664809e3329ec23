package reconcile

import (
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

// DiffResult is the classified comparison of a dataset pair
type DiffResult struct {
	Cells    []model.ClassifiedCell
	Presence []model.ColumnPresence
	Summary  model.Summary
}

// Mismatches returns the cells written to the mismatch file: changed values
// and every one-sided cell
func (d DiffResult) Mismatches() []model.ClassifiedCell {
	var out []model.ClassifiedCell
	for _, cell := range d.Cells {
		if cell.Presence() != model.PresenceBoth || cell.Class == model.ClassChangedValue {
			out = append(out, cell)
		}
	}
	return out
}

// Comparator classifies aligned cells and computes the summaries
type Comparator struct {
	canon  *cleaner.Canonicalizer
	policy config.NullPolicy
	logger *zap.Logger
}

// NewComparator creates a Comparator
func NewComparator(canon *cleaner.Canonicalizer, logger *zap.Logger) (*Comparator, error) {
	if canon == nil {
		return nil, errors.New("canonicalizer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Comparator{
		canon:  canon,
		policy: canon.Config().NullPolicy,
		logger: logger.Named("comparator"),
	}, nil
}

// ClassifyCell assigns exactly one class to an aligned cell. One-sided cells
// keep their null classification but no class.
func (c *Comparator) ClassifyCell(cell model.AlignedCell) model.ClassifiedCell {
	out := model.ClassifiedCell{AlignedCell: cell}

	switch cell.Presence() {
	case model.PresenceBaselineOnly:
		out.BaselineNull = c.canon.ClassifyNull(cell.Baseline.Value)
		out.BaselineCanonical = c.canon.CanonicalizeValue(cell.Baseline.Value, cell.Column)
		return out
	case model.PresencePipelineOnly:
		out.PipelineNull = c.canon.ClassifyNull(cell.Pipeline.Value)
		out.PipelineCanonical = c.canon.CanonicalizeValue(cell.Pipeline.Value, cell.Column)
		return out
	}

	out.BaselineNull = c.canon.ClassifyNull(cell.Baseline.Value)
	out.PipelineNull = c.canon.ClassifyNull(cell.Pipeline.Value)
	out.BaselineCanonical, out.PipelineCanonical = c.canon.ComparePair(
		cell.Baseline.Value, cell.Pipeline.Value, cell.Column)

	switch {
	case out.BaselineNull.IsNull && out.PipelineNull.IsNull:
		out.Class = model.ClassMatchNull
	case out.BaselineNull.IsNull:
		out.Class = model.ClassInfoGain
	case out.PipelineNull.IsNull:
		out.Class = model.ClassInfoLoss
	case out.BaselineCanonical == out.PipelineCanonical:
		out.Class = model.ClassMatchValue
	default:
		out.Class = model.ClassChangedValue
	}
	return out
}

// Compare classifies an alignment and aggregates it per column and per dataset
func (c *Comparator) Compare(baseline, pipeline *model.Dataset, alignment AlignmentResult) DiffResult {
	result := DiffResult{
		Cells: make([]model.ClassifiedCell, 0, len(alignment.Cells)),
	}

	byColumn := make(map[string]*model.ColumnPresence, len(alignment.Columns))
	for _, column := range alignment.Columns {
		byColumn[column] = &model.ColumnPresence{Column: column}
	}

	summary := model.Summary{
		Slug:         baseline.Slug,
		BaselineFile: filepath.Base(baseline.Path),
		CurrentFile:  filepath.Base(pipeline.Path),
	}

	for _, aligned := range alignment.Cells {
		cell := c.ClassifyCell(aligned)
		result.Cells = append(result.Cells, cell)

		presence := byColumn[cell.Column]
		if presence == nil {
			presence = &model.ColumnPresence{Column: cell.Column}
			byColumn[cell.Column] = presence
		}

		switch cell.Presence() {
		case model.PresenceBaselineOnly:
			summary.BaselineOnly++
		case model.PresencePipelineOnly:
			summary.PipelineOnly++
		default:
			summary.Classes[cell.Class]++
			summary.AlignedBy[cell.Stage]++
			presence.Classes[cell.Class]++
			presence.AlignedBy[cell.Stage]++
		}
	}

	summary.TotalCells = len(result.Cells)
	summary.Matched = summary.Classes.Get(model.ClassMatchValue) + summary.Classes.Get(model.ClassMatchNull)
	summary.Mismatched = summary.Classes.Get(model.ClassInfoGain) +
		summary.Classes.Get(model.ClassInfoLoss) +
		summary.Classes.Get(model.ClassChangedValue)
	summary.MatchRate = ratio(summary.Matched, summary.TotalCells)
	summary.NullAwareMatchRate = c.nullAwareRate(summary.Classes)

	for _, column := range alignment.Columns {
		presence := byColumn[column]
		presence.BaselineNonNullCount = c.nonNullCount(baseline, column)
		presence.PipelineNonNullCount = c.nonNullCount(pipeline, column)
		presence.BaselineNonNullPct = 100 * ratio(presence.BaselineNonNullCount, len(baseline.Rows))
		presence.PipelineNonNullPct = 100 * ratio(presence.PipelineNonNullCount, len(pipeline.Rows))
		presence.DeltaPct = presence.PipelineNonNullPct - presence.BaselineNonNullPct
		result.Presence = append(result.Presence, *presence)
	}

	result.Summary = summary

	c.logger.Debug("Comparison complete",
		zap.String("dataset", summary.Slug),
		zap.Int("total_cells", summary.TotalCells),
		zap.Int("matched", summary.Matched),
		zap.Int("mismatched", summary.Mismatched),
		zap.Float64("match_rate", summary.MatchRate))

	return result
}

// nullAwareRate applies the null policy. Info gain and null matches count as
// positive only when the policy says so; info loss leaves the denominator when
// it is not counted as negative.
func (c *Comparator) nullAwareRate(classes model.ClassCounts) float64 {
	numerator := classes.Get(model.ClassMatchValue)
	if c.policy.CountMatchNullAsPositive {
		numerator += classes.Get(model.ClassMatchNull)
	}
	if c.policy.CountInfoGainAsPositive {
		numerator += classes.Get(model.ClassInfoGain)
	}

	denominator := classes.Total()
	if !c.policy.CountInfoLossAsNegative {
		denominator -= classes.Get(model.ClassInfoLoss)
	}
	return ratio(numerator, denominator)
}

func (c *Comparator) nonNullCount(ds *model.Dataset, column string) int {
	count := 0
	for _, row := range ds.Rows {
		value, ok := row.Value(column)
		if ok && !c.canon.ClassifyNull(value).IsNull {
			count++
		}
	}
	return count
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
