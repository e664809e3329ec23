// Package validate checks reconciliation artifacts against regression thresholds.
package validate

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/config"
)

// Exit codes reported by the validate command
const (
	ExitPassed   = 0
	ExitFailed   = 1
	ExitWarnings = 2
)

// Result is the outcome of one validation pass
type Result struct {
	Errors   []string
	Warnings []string
}

// Passed is true when no error was found; warnings do not fail a run
func (r Result) Passed() bool {
	return len(r.Errors) == 0
}

// ExitCode maps the result onto the process exit status
func (r Result) ExitCode() int {
	switch {
	case len(r.Errors) > 0:
		return ExitFailed
	case len(r.Warnings) > 0:
		return ExitWarnings
	default:
		return ExitPassed
	}
}

// Report prints the categorized findings followed by a count line
func (r Result) Report(w io.Writer) {
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "CRITICAL FAILURES:")
		for _, msg := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		fmt.Fprintln(w)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "WARNINGS:")
		for _, msg := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		fmt.Fprintln(w)
	}

	switch r.ExitCode() {
	case ExitFailed:
		fmt.Fprintf(w, "Validation FAILED: %d error(s), %d warning(s)\n", len(r.Errors), len(r.Warnings))
	case ExitWarnings:
		fmt.Fprintf(w, "Validation passed with %d warning(s)\n", len(r.Warnings))
	default:
		fmt.Fprintln(w, "Validation passed")
	}
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator applies threshold checks to a summary table and presence files
type Validator struct {
	thresholds config.Thresholds
	history    map[string]float64
	logger     *zap.Logger
}

// NewValidator creates a validator for the given thresholds
func NewValidator(thresholds config.Thresholds, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		thresholds: thresholds,
		history:    map[string]float64{},
		logger:     logger,
	}
}

// WithHistory supplies recorded match rates used for datasets that have no
// configured baseline rate
func (v *Validator) WithHistory(rates map[string]float64) *Validator {
	v.history = make(map[string]float64, len(rates))
	for slug, rate := range rates {
		v.history[strings.ToUpper(slug)] = rate
	}
	return v
}

// ValidateArtifacts reads the summary and presence files and validates them.
// Missing artifacts are reported as errors rather than returned.
func (v *Validator) ValidateArtifacts(summaryPath, diffsDir string) Result {
	var result Result

	summary, err := ReadSummary(summaryPath)
	if err != nil {
		result.addError("%v", err)
	}

	presence, err := ReadPresenceDir(diffsDir)
	if err != nil {
		result.addError("%v", err)
	}

	checked := v.Validate(summary, presence)
	result.Errors = append(result.Errors, checked.Errors...)
	result.Warnings = append(result.Warnings, checked.Warnings...)
	return result
}

// Validate runs the match rate, coverage and alignment checks. A nil summary
// skips the checks that depend on it.
func (v *Validator) Validate(summary *SummaryTable, presence []PresenceFile) Result {
	var result Result

	if summary != nil {
		v.checkMatchRates(summary, &result)
	}
	v.checkCoverage(presence, &result)
	if summary != nil {
		v.checkAlignment(summary, &result)
	}

	v.logger.Info("Validation complete",
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)))
	return result
}

func (v *Validator) baselineRate(slug string) (float64, bool) {
	if rate, ok := v.thresholds.BaselineMatchRates[slug]; ok {
		return rate, true
	}
	rate, ok := v.history[slug]
	return rate, ok
}

func (v *Validator) checkMatchRates(summary *SummaryTable, result *Result) {
	limit := v.thresholds.MaxMatchRateDropPct

	for _, row := range summary.Rows {
		baseline, ok := v.baselineRate(row.Slug)
		if !ok {
			v.logger.Debug("No baseline match rate", zap.String("dataset", row.Slug))
			continue
		}

		current, ok := row.Float("null_aware_match_rate")
		if !ok {
			current, ok = row.Float("match_rate")
		}
		if !ok {
			result.addWarning("%s: summary has no usable match rate", row.Slug)
			continue
		}

		// percentage points, rounded to absorb float noise at the threshold
		drop := math.Round((baseline-current)*100*1e6) / 1e6
		switch {
		case drop > limit:
			result.addError("%s: null_aware_match_rate dropped %.2f%% (%.4f -> %.4f), threshold: %g%%",
				row.Slug, drop, baseline, current, limit)
		case drop > 0:
			result.addWarning("%s: null_aware_match_rate dropped %.2f%% (%.4f -> %.4f)",
				row.Slug, drop, baseline, current)
		}
	}
}

func (v *Validator) checkCoverage(files []PresenceFile, result *Result) {
	limit := v.thresholds.MaxCoverageDropPct

	for _, file := range files {
		if file.Err != nil {
			result.addError("%s: failed to read presence file: %v", file.Slug, file.Err)
			continue
		}
		for _, row := range file.Rows {
			if row.DeltaPct >= -limit {
				continue
			}
			msg := fmt.Sprintf("%s.%s: coverage dropped %.2f%% (%.2f%% -> %.2f%%)",
				file.Slug, row.Column, math.Abs(row.DeltaPct), row.BaselinePct, row.PipelinePct)
			if v.thresholds.IsCritical(row.Column) {
				result.addError("[CRITICAL] %s", msg)
			} else {
				result.addWarning("%s", msg)
			}
		}
	}
}

func (v *Validator) checkAlignment(summary *SummaryTable, result *Result) {
	var missing []string
	for _, column := range v.thresholds.AlignmentRequiredColumns {
		if !summary.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		result.addError("Summary missing alignment columns: %s", strings.Join(missing, ", "))
		return
	}

	for _, slug := range sortedKeys(v.thresholds.AlignmentRowIndexThresholds) {
		row, ok := summary.Row(slug)
		if !ok {
			continue
		}
		limit := v.thresholds.AlignmentRowIndexThresholds[slug]
		if n := row.Int("aligned_by_row_index"); n > limit {
			result.addError("%s: aligned_by_row_index=%d exceeds threshold=%d", slug, n, limit)
		}
	}

	for _, slug := range sortedKeys(v.thresholds.AlignmentCompositeMin) {
		row, ok := summary.Row(slug)
		if !ok {
			continue
		}
		floor := v.thresholds.AlignmentCompositeMin[slug]
		if n := row.Int("aligned_by_composite"); n < floor {
			result.addError("%s: aligned_by_composite=%d below minimum=%d", slug, n, floor)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
