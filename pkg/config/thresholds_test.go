package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseThresholds(t *testing.T) {
	th, err := ParseThresholds([]byte(`
max_match_rate_drop_pct: 2.5
baseline_match_rates:
  iotc: 0.4425
  CCSBT: 0.9905
alignment_row_index_thresholds:
  pna: 50
alignment_composite_min:
  ccsbt: 15000
`))
	require.NoError(t, err)

	assert.Equal(t, 2.5, th.MaxMatchRateDropPct)
	assert.Equal(t, 10.0, th.MaxCoverageDropPct)
	assert.Equal(t, 0.4425, th.BaselineMatchRates["IOTC"])
	assert.Equal(t, 0.9905, th.BaselineMatchRates["CCSBT"])
	assert.Equal(t, 50, th.AlignmentRowIndexThresholds["PNA"])
	assert.Equal(t, 15000, th.AlignmentCompositeMin["CCSBT"])
	assert.True(t, th.IsCritical("IMO"))
	assert.False(t, th.IsCritical("CALL_SIGN"))
}

func TestParseThresholdsRejectsBadDocuments(t *testing.T) {
	_, err := ParseThresholds([]byte("max_match_rate_drop: 1\n"))
	assert.Error(t, err)

	_, err = ParseThresholds([]byte("max_coverage_drop_pct: -1\n"))
	assert.Error(t, err)
}

func TestLoadThresholds(t *testing.T) {
	dir := t.TempDir()

	th, err := LoadThresholds(filepath.Join(dir, "missing.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)

	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("critical_columns: [IMO]\n"), 0o644))
	th, err = LoadThresholds(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"IMO"}, th.CriticalColumns)
}

func TestLoadThresholdsMalformedFallsBackToDefaults(t *testing.T) {
	var useCases = []struct {
		description string
		doc         string
	}{
		{description: "unknown key", doc: "max_match_rate_drop: 1\n"},
		{description: "negative pct", doc: "max_coverage_drop_pct: -1\n"},
		{description: "not yaml", doc: "critical_columns: [IMO\n"},
	}

	for _, useCase := range useCases {
		path := filepath.Join(t.TempDir(), "thresholds.yaml")
		require.NoError(t, os.WriteFile(path, []byte(useCase.doc), 0o644))

		core, logs := observer.New(zap.WarnLevel)
		th, err := LoadThresholds(path, zap.New(core))
		require.NoError(t, err, useCase.description)
		assert.Equal(t, DefaultThresholds(), th, useCase.description)
		require.Equal(t, 1, logs.FilterMessage("Malformed thresholds file, using defaults").Len(), useCase.description)
	}
}

func TestShippedThresholdsParse(t *testing.T) {
	th, err := LoadThresholds(filepath.Join("..", "..", "configs", "reconciliation_thresholds.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.4425, th.BaselineMatchRates["IOTC"])
	assert.Equal(t, 100, th.AlignmentRowIndexThresholds["IOTC"])
	assert.Equal(t, 70000, th.AlignmentCompositeMin["IOTC"])
	assert.True(t, th.IsCritical("FLAG"))
}
