package reconcile

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// SummaryFileName is the aggregate summary written once per run
const SummaryFileName = "_summary.csv"

// Artifact headers
var (
	MismatchHeader = []string{
		"row_index", "column_name", "baseline_value", "pipeline_value",
		"confidence", "needs_review", "rule_chain",
	}
	PresenceHeader = []string{
		"column_name",
		"baseline_non_null_count", "baseline_non_null_pct",
		"pipeline_non_null_count", "pipeline_non_null_pct",
		"delta_pct",
		"match_value", "match_null", "info_gain", "info_loss", "changed_value",
		"aligned_by_join_key", "aligned_by_composite", "aligned_by_row_index",
	}
	SummaryHeader = []string{
		"baseline_file", "current_file",
		"total_cells", "matched", "baseline_only", "pipeline_only", "mismatched",
		"match_rate", "null_aware_match_rate",
		"count_match_value", "count_match_null", "count_info_gain", "count_info_loss", "count_changed_value",
		"aligned_by_join_key", "aligned_by_composite", "aligned_by_row_index",
	}
)

// OutputsFor returns the artifact paths of a dataset in dir
func OutputsFor(dir, slug string) DatasetOutputs {
	base := strings.ToLower(slug)
	return DatasetOutputs{
		DiffPath:     filepath.Join(dir, base+"_diff.csv"),
		PresencePath: filepath.Join(dir, base+"_presence.csv"),
		SummaryPath:  filepath.Join(dir, base+"_summary.txt"),
	}
}

// WriteDatasetOutputs writes the mismatch, presence and text summary files.
// Every file is attempted; failures are combined.
func WriteDatasetOutputs(outputs DatasetOutputs, diff DiffResult) error {
	var err error
	err = multierr.Append(err, WriteMismatchCSV(outputs.DiffPath, diff.Mismatches()))
	err = multierr.Append(err, WritePresenceCSV(outputs.PresencePath, diff.Presence))
	err = multierr.Append(err, WriteSummaryText(outputs.SummaryPath, diff.Summary))
	return err
}

// WriteMismatchCSV writes changed values and one-sided cells
func WriteMismatchCSV(path string, cells []model.ClassifiedCell) error {
	rows := make([][]string, 0, len(cells))
	for _, cell := range cells {
		var baselineValue, pipelineValue, confidence, needsReview, ruleChain string
		if cell.Baseline != nil {
			baselineValue = cell.Baseline.Value
		}
		if cell.Pipeline != nil {
			pipelineValue = cell.Pipeline.Value
			if cell.Pipeline.Confidence != nil {
				confidence = strconv.FormatFloat(*cell.Pipeline.Confidence, 'f', -1, 64)
			}
			needsReview = cell.Pipeline.NeedsReview
			ruleChain = cell.Pipeline.RuleChain
		}
		rows = append(rows, []string{
			strconv.Itoa(cell.RowIndex()),
			cell.Column,
			baselineValue,
			pipelineValue,
			confidence,
			needsReview,
			ruleChain,
		})
	}
	return writeCSV(path, MismatchHeader, rows)
}

// WritePresenceCSV writes one row per column
func WritePresenceCSV(path string, presence []model.ColumnPresence) error {
	rows := make([][]string, 0, len(presence))
	for _, p := range presence {
		row := []string{
			p.Column,
			strconv.Itoa(p.BaselineNonNullCount),
			formatPct(p.BaselineNonNullPct),
			strconv.Itoa(p.PipelineNonNullCount),
			formatPct(p.PipelineNonNullPct),
			formatPct(p.DeltaPct),
		}
		row = append(row, classColumns(p.Classes)...)
		row = append(row, stageColumns(p.AlignedBy)...)
		rows = append(rows, row)
	}
	return writeCSV(path, PresenceHeader, rows)
}

// WriteSummaryCSV writes the aggregate summary, one row per dataset in the
// given order
func WriteSummaryCSV(path string, summaries []model.Summary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		row := []string{
			s.BaselineFile,
			s.CurrentFile,
			strconv.Itoa(s.TotalCells),
			strconv.Itoa(s.Matched),
			strconv.Itoa(s.BaselineOnly),
			strconv.Itoa(s.PipelineOnly),
			strconv.Itoa(s.Mismatched),
			formatRate(s.MatchRate),
			formatRate(s.NullAwareMatchRate),
		}
		row = append(row, classColumns(s.Classes)...)
		row = append(row, stageColumns(s.AlignedBy)...)
		rows = append(rows, row)
	}
	return writeCSV(path, SummaryHeader, rows)
}

// WriteSummaryText writes the human-readable per-dataset summary
func WriteSummaryText(path string, s model.Summary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Baseline: %s\n", s.BaselineFile)
	fmt.Fprintf(&sb, "Pipeline: %s\n", s.CurrentFile)
	fmt.Fprintf(&sb, "Total cells: %d\n", s.TotalCells)
	fmt.Fprintf(&sb, "Matched cells: %d\n", s.Matched)
	fmt.Fprintf(&sb, "Baseline-only cells: %d\n", s.BaselineOnly)
	fmt.Fprintf(&sb, "Pipeline-only cells: %d\n", s.PipelineOnly)
	fmt.Fprintf(&sb, "Mismatched cells: %d\n", s.Mismatched)
	fmt.Fprintf(&sb, "Match rate: %s\n", formatRate(s.MatchRate))
	fmt.Fprintf(&sb, "Null-aware match rate: %s\n", formatRate(s.NullAwareMatchRate))
	for _, class := range model.CellClasses {
		fmt.Fprintf(&sb, "%s: %d\n", class, s.Classes.Get(class))
	}
	for _, stage := range model.Stages {
		fmt.Fprintf(&sb, "aligned_by_%s: %d\n", stage, s.AlignedBy.Get(stage))
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func classColumns(counts model.ClassCounts) []string {
	out := make([]string, 0, len(model.CellClasses))
	for _, class := range model.CellClasses {
		out = append(out, strconv.Itoa(counts.Get(class)))
	}
	return out
}

func stageColumns(counts model.StageCounts) []string {
	out := make([]string, 0, len(model.Stages))
	for _, stage := range model.Stages {
		out = append(out, strconv.Itoa(counts.Get(stage)))
	}
	return out
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 4, 64)
}

// formatPct renders two decimals without a negative zero
func formatPct(pct float64) string {
	pct = math.Round(pct*100) / 100
	if pct == 0 {
		pct = 0
	}
	return strconv.FormatFloat(pct, 'f', 2, 64)
}
