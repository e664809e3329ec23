package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/vessel-recon/pkg/model"
	"github.com/David-Botos/vessel-recon/pkg/reconcile"
	"github.com/David-Botos/vessel-recon/pkg/store"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger("DEBUG", "json")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = newLogger("loud", "console")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	report := &reconcile.RunReport{
		Results: []reconcile.DatasetResult{
			{
				Slug:     "ICCAT",
				Compared: true,
				Summary:  model.Summary{TotalCells: 4, MatchRate: 1},
			},
			{
				Slug:       "IOTC",
				Compared:   true,
				Mismatches: 2,
				Summary:    model.Summary{MatchRate: 0.5, NullAwareMatchRate: 0.6667},
				Warnings:   []string{"composite set skipped"},
			},
			{
				Slug:   "NEAFC",
				Errors: []reconcile.ErrorRecord{reconcile.NewErrorRecord(errors.New("bad header"), reconcile.ErrorCategoryInputRead)},
			},
		},
		Skipped:     []reconcile.SkippedDataset{{Slug: "NAFO", Reason: "no pipeline export"}},
		SummaryPath: "diffs/_summary.csv",
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	assert.Equal(t,
		"[OK] ICCAT: 4 cells, match rate 1.0000\n"+
			"[DIFF] IOTC: 2 mismatches, match rate 0.5000 (null-aware 0.6667)\n"+
			"[WARN] IOTC: composite set skipped\n"+
			"[WARN] NEAFC: failed: bad header\n"+
			"[WARN] NAFO: skipped: no pipeline export\n"+
			"Summary written to diffs/_summary.csv\n",
		buf.String())
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: 2}
	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.code)
	assert.Equal(t, "", pick("", ""))
	assert.Equal(t, "x", pick("", "x"))
}

func TestPrintHistory(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printRuns(&buf, []store.RunRow{{RunID: "run-1", StartedUnixMs: started.UnixMilli(), DatasetCount: 2}})
	printRuns(&buf, nil)
	assert.Equal(t, "2025-03-01T12:00:00Z  run-1  2 datasets\nNo runs recorded\n", buf.String())

	buf.Reset()
	printRunSummaries(&buf, "run-1", []store.SummaryRow{{
		Slug:               "IOTC",
		TotalCells:         10,
		MatchRate:          0.8,
		NullAwareMatchRate: 0.9,
		AlignedByJoinKey:   4,
		AlignedByComposite: 3,
		AlignedByRowIndex:  3,
	}})
	printRunSummaries(&buf, "run-2", nil)
	assert.Equal(t,
		"IOTC: 10 cells, match rate 0.8000 (null-aware 0.9000), aligned 4/3/3\n"+
			"No summaries for run run-2\n",
		buf.String())
}
