package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

const diagnosticSampleSize = 5

// KeyCount is a composite key value and how often it occurs
type KeyCount struct {
	Key   string
	Count int
}

// SideKeyStats describes one side's keys for a composite set
type SideKeyStats struct {
	Rows          int
	CompleteRows  int // rows with every set column non-null
	UniqueKeys    int
	DuplicateKeys int
	TopDuplicates []KeyCount
}

// CompositeDiagnostic explains whether a composite set can align rows
type CompositeDiagnostic struct {
	Set             []string
	MissingBaseline []string
	MissingPipeline []string
	Baseline        SideKeyStats
	Pipeline        SideKeyStats
	Overlap         int // keys unique on both sides and present on both
	BaselineOnly    []string
	PipelineOnly    []string
	BaselineOnlyN   int
	PipelineOnlyN   int
	Engages         bool
	Verdict         string
}

// DiagnoseComposites evaluates every composite set configured for the
// baseline slug in isolation, using the same key canonicalization as the
// aligner.
func DiagnoseComposites(canon *cleaner.Canonicalizer, baseline, pipeline *model.Dataset) []CompositeDiagnostic {
	sets := canon.Config().CompositeSetsFor(baseline.Slug)
	out := make([]CompositeDiagnostic, 0, len(sets))

	for _, set := range sets {
		d := CompositeDiagnostic{Set: set}
		for _, column := range set {
			if !baseline.HasColumn(column) {
				d.MissingBaseline = append(d.MissingBaseline, column)
			}
			if !pipeline.HasColumn(column) {
				d.MissingPipeline = append(d.MissingPipeline, column)
			}
		}
		if len(d.MissingBaseline) > 0 || len(d.MissingPipeline) > 0 {
			d.Verdict = fmt.Sprintf("not applicable: baseline missing %v, pipeline missing %v",
				d.MissingBaseline, d.MissingPipeline)
			out = append(out, d)
			continue
		}

		baselineCounts := compositeCounts(canon, baseline, set)
		pipelineCounts := compositeCounts(canon, pipeline, set)
		d.Baseline = keyStats(baselineCounts, len(baseline.Rows))
		d.Pipeline = keyStats(pipelineCounts, len(pipeline.Rows))

		for key, n := range baselineCounts {
			m, ok := pipelineCounts[key]
			switch {
			case !ok:
				d.BaselineOnlyN++
				d.BaselineOnly = append(d.BaselineOnly, key)
			case n == 1 && m == 1:
				d.Overlap++
			}
		}
		for key := range pipelineCounts {
			if _, ok := baselineCounts[key]; !ok {
				d.PipelineOnlyN++
				d.PipelineOnly = append(d.PipelineOnly, key)
			}
		}
		d.BaselineOnly = sample(d.BaselineOnly)
		d.PipelineOnly = sample(d.PipelineOnly)

		switch {
		case d.Baseline.CompleteRows == 0 || d.Pipeline.CompleteRows == 0:
			d.Verdict = "no rows with a complete key on one side"
		case d.Overlap == 0:
			d.Verdict = "no unique key shared by both sides"
		default:
			d.Engages = true
			d.Verdict = fmt.Sprintf("engages: %d matching keys", d.Overlap)
		}
		out = append(out, d)
	}
	return out
}

// String renders a diagnostic as a short multi-line report
func (d CompositeDiagnostic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Composite set [%s]\n", strings.Join(d.Set, ", "))
	if len(d.MissingBaseline) > 0 || len(d.MissingPipeline) > 0 {
		fmt.Fprintf(&sb, "  verdict: %s\n", d.Verdict)
		return sb.String()
	}
	for _, side := range []struct {
		name  string
		stats SideKeyStats
	}{{"baseline", d.Baseline}, {"pipeline", d.Pipeline}} {
		fmt.Fprintf(&sb, "  %s: %d/%d rows with complete key, %d unique, %d duplicated\n",
			side.name, side.stats.CompleteRows, side.stats.Rows, side.stats.UniqueKeys, side.stats.DuplicateKeys)
		for _, dup := range side.stats.TopDuplicates {
			fmt.Fprintf(&sb, "    %s: %d occurrences\n", dup.Key, dup.Count)
		}
	}
	fmt.Fprintf(&sb, "  overlap: %d, baseline-only: %d, pipeline-only: %d\n",
		d.Overlap, d.BaselineOnlyN, d.PipelineOnlyN)
	for _, key := range d.BaselineOnly {
		fmt.Fprintf(&sb, "    baseline-only %s\n", key)
	}
	for _, key := range d.PipelineOnly {
		fmt.Fprintf(&sb, "    pipeline-only %s\n", key)
	}
	fmt.Fprintf(&sb, "  verdict: %s\n", d.Verdict)
	return sb.String()
}

func compositeCounts(canon *cleaner.Canonicalizer, ds *model.Dataset, set []string) map[string]int {
	counts := make(map[string]int)
	for _, row := range ds.Rows {
		values := make([]string, 0, len(set))
		for _, column := range set {
			raw, ok := row.Value(column)
			if !ok {
				break
			}
			value, ok := canon.KeyValue(raw, column)
			if !ok {
				break
			}
			values = append(values, value)
		}
		if len(values) == len(set) {
			counts[strings.Join(values, model.CompositeSeparator)]++
		}
	}
	return counts
}

func keyStats(counts map[string]int, rows int) SideKeyStats {
	stats := SideKeyStats{Rows: rows}
	var dups []KeyCount
	for key, n := range counts {
		stats.CompleteRows += n
		if n == 1 {
			stats.UniqueKeys++
		} else {
			stats.DuplicateKeys++
			dups = append(dups, KeyCount{Key: key, Count: n})
		}
	}
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].Count != dups[j].Count {
			return dups[i].Count > dups[j].Count
		}
		return dups[i].Key < dups[j].Key
	})
	if len(dups) > diagnosticSampleSize {
		dups = dups[:diagnosticSampleSize]
	}
	stats.TopDuplicates = dups
	return stats
}

func sample(keys []string) []string {
	sort.Strings(keys)
	if len(keys) > diagnosticSampleSize {
		return keys[:diagnosticSampleSize]
	}
	return keys
}
