package reconcile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

func TestRunMetricsRecordDataset(t *testing.T) {
	metrics := NewRunMetrics(zap.NewNop())

	result := DatasetResult{
		Slug:       "ICCAT",
		Compared:   true,
		Mismatches: 1,
		Duration:   1500 * time.Millisecond,
		Summary: model.Summary{
			Slug:               "ICCAT",
			TotalCells:         4,
			MatchRate:          0.75,
			NullAwareMatchRate: 1,
			BaselineOnly:       1,
			Classes:            model.ClassCounts{3, 0, 0, 0, 0},
			AlignedBy:          model.StageCounts{2, 0, 1},
		},
	}
	metrics.RecordDataset(result)
	metrics.RecordDataset(DatasetResult{
		Slug:   "IOTC",
		Errors: []ErrorRecord{NewErrorRecord(os.ErrNotExist, ErrorCategoryInputRead)},
	})
	metrics.RecordSkipped("NAFO", "no export")
	metrics.Complete()

	assert.Equal(t, 1, metrics.DatasetsCompared)
	assert.Equal(t, 1, metrics.DatasetsFailed)
	assert.Equal(t, 1, metrics.DatasetsSkipped)
	assert.Equal(t, int64(4), metrics.TotalCells)

	assert.Equal(t, 0.75, testutil.ToFloat64(metrics.matchRate.WithLabelValues("ICCAT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.alignedCells.WithLabelValues("ICCAT", "join_key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cells.WithLabelValues("ICCAT", "baseline_only")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("InputRead")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.datasets.WithLabelValues("skipped")))

	report := metrics.GenerateMetricsReport()
	assert.Contains(t, report, "Total Datasets:          3")
	assert.Contains(t, report, "- ICCAT: 1.50s")
	assert.Contains(t, report, "- InputRead: 1")
}

func TestRunMetricsWriteTextfile(t *testing.T) {
	metrics := NewRunMetrics(nil)
	metrics.RecordDataset(DatasetResult{
		Compared: true,
		Summary:  model.Summary{Slug: "WCPFC", MatchRate: 0.5},
	})

	path := filepath.Join(t.TempDir(), "recon.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `vessel_recon_match_rate{dataset="WCPFC"} 0.5`)
}
