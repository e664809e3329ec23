// pkg/config/thresholds.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Thresholds drives the regression validator
type Thresholds struct {
	MaxMatchRateDropPct         float64            `yaml:"max_match_rate_drop_pct"`
	MaxCoverageDropPct          float64            `yaml:"max_coverage_drop_pct"`
	BaselineMatchRates          map[string]float64 `yaml:"baseline_match_rates"`
	CriticalColumns             []string           `yaml:"critical_columns"`
	AlignmentRequiredColumns    []string           `yaml:"alignment_required_columns"`
	AlignmentRowIndexThresholds map[string]int     `yaml:"alignment_row_index_thresholds"`
	AlignmentCompositeMin       map[string]int     `yaml:"alignment_composite_min"`
}

// DefaultThresholds returns the validator defaults. Historical match rates and
// alignment limits are dataset specific and start empty.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxMatchRateDropPct: 5.0,
		MaxCoverageDropPct:  10.0,
		BaselineMatchRates:  map[string]float64{},
		CriticalColumns:     []string{"IMO", "NAME", "FLAG_STATE_CODE", "FLAG"},
		AlignmentRequiredColumns: []string{
			"aligned_by_join_key",
			"aligned_by_composite",
			"aligned_by_row_index",
		},
		AlignmentRowIndexThresholds: map[string]int{},
		AlignmentCompositeMin:       map[string]int{},
	}
}

// ParseThresholds decodes a thresholds document over the defaults
func ParseThresholds(data []byte) (Thresholds, error) {
	th := DefaultThresholds()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&th); err != nil && !errors.Is(err, io.EOF) {
		return DefaultThresholds(), fmt.Errorf("failed to decode thresholds: %w", err)
	}

	if th.MaxMatchRateDropPct < 0 || th.MaxCoverageDropPct < 0 {
		return DefaultThresholds(), errors.New("threshold percentages cannot be negative")
	}

	return th.normalize(), nil
}

// LoadThresholds reads the thresholds document at path. A missing or
// malformed file yields the defaults with a warning; an unreadable one is an
// error.
func LoadThresholds(path string, logger *zap.Logger) (Thresholds, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("Thresholds file not found, using defaults", zap.String("path", path))
			return DefaultThresholds(), nil
		}
		return DefaultThresholds(), fmt.Errorf("failed to read thresholds %s: %w", path, err)
	}

	th, err := ParseThresholds(data)
	if err != nil {
		logger.Warn("Malformed thresholds file, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return DefaultThresholds(), nil
	}
	return th, nil
}

// IsCritical reports whether a column is configured as critical
func (t Thresholds) IsCritical(column string) bool {
	for _, c := range t.CriticalColumns {
		if c == column {
			return true
		}
	}
	return false
}

// normalize uppercases dataset keys so they match derived slugs
func (t Thresholds) normalize() Thresholds {
	rates := make(map[string]float64, len(t.BaselineMatchRates))
	for slug, rate := range t.BaselineMatchRates {
		rates[strings.ToUpper(slug)] = rate
	}
	t.BaselineMatchRates = rates

	rowIndex := make(map[string]int, len(t.AlignmentRowIndexThresholds))
	for slug, limit := range t.AlignmentRowIndexThresholds {
		rowIndex[strings.ToUpper(slug)] = limit
	}
	t.AlignmentRowIndexThresholds = rowIndex

	composite := make(map[string]int, len(t.AlignmentCompositeMin))
	for slug, floor := range t.AlignmentCompositeMin {
		composite[strings.ToUpper(slug)] = floor
	}
	t.AlignmentCompositeMin = composite

	return t
}
