package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/model"
	"github.com/David-Botos/vessel-recon/pkg/source"
)

type runFixture struct {
	baselineDir string
	currentDir  string
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newRunFixture(t *testing.T) runFixture {
	t.Helper()
	f := runFixture{baselineDir: t.TempDir(), currentDir: t.TempDir()}

	writeFixture(t, f.baselineDir, "iccat_vessels.csv", "IMO,VESSEL_NAME\n1234567,ALPHA\n,BETA\n")
	writeFixture(t, f.currentDir, "iccat_xlsx_stage.csv",
		"row_index,column_name,cleaned_value,confidence,needs_review,rule_chain\n"+
			"0,IMO,1234567,0.99,False,\n"+
			"0,VESSEL_NAME,ALPHA,0.95,False,trim\n"+
			"1,VESSEL_NAME,BETA,,False,\n")

	writeFixture(t, f.baselineDir, "iotc.csv", "Vessel Name,Flag\nGAMMA,pan\nDELTA,KOR\n")
	writeFixture(t, f.currentDir, "IOTC_csv_stage.csv",
		"row_index,column_name,cleaned_value,confidence,needs_review,rule_chain\n"+
			"0,VESSEL_NAME,GAMMA,,,\n"+
			"0,FLAG,PAN,,,\n"+
			"1,VESSEL_NAME,DELTTA,0.4,True,ner>spell\n")

	// no export for this one
	writeFixture(t, f.baselineDir, "nafo.csv", "IMO\n1\n")
	return f
}

func newTestEngine(t *testing.T, canon *cleaner.Canonicalizer, loader DatasetLoader) *Engine {
	t.Helper()
	if loader == nil {
		var err error
		loader, err = source.NewLoader(canon, zap.NewNop())
		require.NoError(t, err)
	}
	engine, err := NewEngine(canon, loader, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestEngineRun(t *testing.T) {
	fixture := newRunFixture(t)
	diffDir := filepath.Join(t.TempDir(), "diffs")
	canon := newCanon(t, "join_key: IMO\n")

	engine := newTestEngine(t, canon, nil)
	report, err := engine.Run(context.Background(), RunOptions{
		BaselineDir: fixture.baselineDir,
		CurrentDir:  fixture.currentDir,
		DiffDir:     diffDir,
		PreferExt:   "xlsx",
		Workers:     1,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "ICCAT", report.Results[0].Slug)
	assert.Equal(t, "IOTC", report.Results[1].Slug)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "NAFO", report.Skipped[0].Slug)
	assert.Equal(t, 1, engine.GetErrorSummary()[ErrorCategoryMissingExport])

	summary, err := os.ReadFile(filepath.Join(diffDir, SummaryFileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(SummaryHeader, ","), lines[0])
	assert.Equal(t, "iccat_vessels.csv,iccat_xlsx_stage.csv,4,3,1,0,0,0.7500,1.0000,3,0,0,0,0,2,0,1", lines[1])
	assert.Equal(t, "iotc.csv,IOTC_csv_stage.csv,4,2,1,0,1,0.5000,0.6667,2,0,0,0,1,0,0,3", lines[2])

	diff, err := os.ReadFile(filepath.Join(diffDir, "iotc_diff.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"row_index,column_name,baseline_value,pipeline_value,confidence,needs_review,rule_chain\n"+
			"1,VESSEL_NAME,DELTA,DELTTA,0.4,True,ner>spell\n"+
			"1,FLAG,KOR,,,,\n",
		string(diff))

	presence, err := os.ReadFile(filepath.Join(diffDir, "iotc_presence.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(presence), "FLAG,2,100.00,1,50.00,-50.00,1,0,0,0,0,0,0,1\n")

	text, err := os.ReadFile(filepath.Join(diffDir, "iccat_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "Baseline: iccat_vessels.csv\n")
	assert.Contains(t, string(text), "Matched cells: 3\n")

	assert.Equal(t, 2, engine.GetMetrics().DatasetsCompared)
	assert.Equal(t, 1, engine.GetMetrics().DatasetsSkipped)
}

func TestEngineRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	fixture := newRunFixture(t)
	canon := newCanon(t, "join_key: IMO\n")

	read := func(workers int) map[string]string {
		diffDir := t.TempDir()
		_, err := newTestEngine(t, canon, nil).Run(context.Background(), RunOptions{
			BaselineDir: fixture.baselineDir,
			CurrentDir:  fixture.currentDir,
			DiffDir:     diffDir,
			PreferExt:   "xlsx",
			Workers:     workers,
		})
		require.NoError(t, err)

		files := map[string]string{}
		entries, err := os.ReadDir(diffDir)
		require.NoError(t, err)
		for _, entry := range entries {
			data, err := os.ReadFile(filepath.Join(diffDir, entry.Name()))
			require.NoError(t, err)
			files[entry.Name()] = string(data)
		}
		return files
	}

	sequential := read(1)
	assert.Len(t, sequential, 7)
	assert.Equal(t, sequential, read(4))
	assert.Equal(t, sequential, read(1))
}

type failingLoader struct {
	*source.Loader
	failSlug string
}

func (l failingLoader) LoadBaseline(ctx context.Context, path string) (*model.Dataset, error) {
	if strings.HasPrefix(filepath.Base(path), strings.ToLower(l.failSlug)) {
		return nil, errors.New("corrupt workbook")
	}
	return l.Loader.LoadBaseline(ctx, path)
}

func TestEngineRunSkipsUnreadableDataset(t *testing.T) {
	fixture := newRunFixture(t)
	canon := newCanon(t, "join_key: IMO\n")
	loader, err := source.NewLoader(canon, zap.NewNop())
	require.NoError(t, err)

	engine := newTestEngine(t, canon, failingLoader{Loader: loader, failSlug: "IOTC"})
	report, err := engine.Run(context.Background(), RunOptions{
		BaselineDir: fixture.baselineDir,
		CurrentDir:  fixture.currentDir,
		DiffDir:     t.TempDir(),
		PreferExt:   "xlsx",
		Workers:     2,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "IOTC", failed[0].Slug)
	assert.False(t, failed[0].Compared)
	assert.Equal(t, ErrorCategoryInputRead, failed[0].Errors[0].Category)

	summaries := report.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "ICCAT", summaries[0].Slug)
	assert.Equal(t, 1, engine.GetMetrics().DatasetsFailed)
}

func TestEngineRunRejectsMissingInputDir(t *testing.T) {
	canon := newCanon(t, "{}")
	_, err := newTestEngine(t, canon, nil).Run(context.Background(), RunOptions{
		BaselineDir: filepath.Join(t.TempDir(), "absent"),
		CurrentDir:  t.TempDir(),
		DiffDir:     t.TempDir(),
	})
	assert.Error(t, err)
}

func TestEngineRunHonoursCancellation(t *testing.T) {
	fixture := newRunFixture(t)
	canon := newCanon(t, "{}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t, canon, nil).Run(ctx, RunOptions{
		BaselineDir: fixture.baselineDir,
		CurrentDir:  fixture.currentDir,
		DiffDir:     t.TempDir(),
		PreferExt:   "xlsx",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingStore struct {
	runID     string
	summaries []model.Summary
}

func (r *recordingStore) RecordRun(_ context.Context, runID string, _ time.Time, summaries []model.Summary) error {
	r.runID = runID
	r.summaries = summaries
	return nil
}

func TestEngineRunRecordsHistory(t *testing.T) {
	fixture := newRunFixture(t)
	canon := newCanon(t, "join_key: IMO\n")
	recorder := &recordingStore{}

	engine := newTestEngine(t, canon, nil).WithRecorder(recorder)
	report, err := engine.Run(context.Background(), RunOptions{
		BaselineDir: fixture.baselineDir,
		CurrentDir:  fixture.currentDir,
		DiffDir:     t.TempDir(),
		PreferExt:   "xlsx",
	})
	require.NoError(t, err)

	assert.Equal(t, report.RunID, recorder.runID)
	assert.Len(t, recorder.summaries, 2)
}

func TestEngineCollectAppliesHandlerActions(t *testing.T) {
	engine := newTestEngine(t, newCanon(t, "{}"), nil)
	compared := func(category ErrorCategory) DatasetResult {
		result := NewDatasetResult(NewDatasetJob("PNA", "pna.csv"), 0)
		result.Compared = true
		result.AddError(NewErrorRecord(errors.New("boom"), category).WithDataset("PNA"))
		return *result
	}

	skipped, err := engine.collect(compared(ErrorCategoryInputRead))
	require.NoError(t, err)
	assert.False(t, skipped.Compared)

	kept, err := engine.collect(compared(ErrorCategoryOutputWrite))
	require.NoError(t, err)
	assert.True(t, kept.Compared)

	_, err = engine.collect(compared(ErrorCategoryCritical))
	require.Error(t, err)
	assert.Equal(t, "run aborted: [Critical] Dataset: PNA Error: boom", err.Error())

	assert.Equal(t, 3, engine.errorHandler.GetDatasetErrorCounts()["PNA"])
}

func TestEngineRunLogsErrorDigest(t *testing.T) {
	fixture := newRunFixture(t)
	canon := newCanon(t, "join_key: IMO\n")
	loader, err := source.NewLoader(canon, zap.NewNop())
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	engine, err := NewEngine(canon, loader, zap.New(core))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), RunOptions{
		BaselineDir: fixture.baselineDir,
		CurrentDir:  fixture.currentDir,
		DiffDir:     t.TempDir(),
		PreferExt:   "xlsx",
	})
	require.NoError(t, err)

	digest := logs.FilterMessage("Error digest").All()
	require.Len(t, digest, 1)
	fields := digest[0].ContextMap()
	assert.Equal(t, "MissingExport", fields["category"])
	assert.Equal(t, int64(1), fields["count"])
	samples, ok := fields["samples"].([]interface{})
	require.True(t, ok)
	require.Len(t, samples, 1)
	assert.Contains(t, samples[0], "Dataset: NAFO")

	byDataset := logs.FilterMessage("Errors by dataset").All()
	require.Len(t, byDataset, 1)
	assert.Equal(t, map[string]int{"NAFO": 1}, byDataset[0].ContextMap()["datasets"])
}
