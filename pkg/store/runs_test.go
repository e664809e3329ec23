package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db")
	require.Equal(t, config.DriverSQLite, config.DriverForDSN(dsn))

	s, err := OpenDSN(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(slug, file string, rate float64) model.Summary {
	return model.Summary{
		Slug:               slug,
		BaselineFile:       file,
		CurrentFile:        slug + "_stage.csv",
		TotalCells:         10,
		Matched:            8,
		Mismatched:         2,
		MatchRate:          0.8,
		NullAwareMatchRate: rate,
		AlignedBy:          model.StageCounts{4, 3, 3},
	}
}

func TestRecordRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := s.RecordRun(ctx, "run-1", started, []model.Summary{
		summary("IOTC", "iotc.csv", 0.44),
		summary("CCSBT", "ccsbt.csv", 0.99),
	})
	require.NoError(t, err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 2, runs[0].DatasetCount)
	assert.True(t, started.Equal(runs[0].StartedAt()))

	rows, err := s.RunSummaries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "CCSBT", rows[0].Slug)
	assert.Equal(t, int64(3), rows[0].AlignedByComposite)
	assert.Equal(t, int64(4), rows[1].AlignedByJoinKey)
}

func TestRecordRunIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dup := summary("NAFO", "nafo.csv", 0.97)
	err := s.RecordRun(ctx, "run-dup", time.Now(), []model.Summary{dup, dup})
	require.Error(t, err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLatestMatchRates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRun(ctx, "old", base, []model.Summary{
		summary("IOTC", "iotc.csv", 0.40),
		summary("FFA", "ffa.csv", 0.99),
	}))
	require.NoError(t, s.RecordRun(ctx, "new", base.Add(24*time.Hour), []model.Summary{
		summary("IOTC", "iotc.csv", 0.45),
	}))

	rates, err := s.LatestMatchRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"IOTC": 0.45, "FFA": 0.99}, rates)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.NewStoreConfig("file:x.db")
	cfg.Driver = "oracle"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"recon_runs"`, quote(runsTable))
}
