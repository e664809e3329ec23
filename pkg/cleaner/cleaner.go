// pkg/cleaner/cleaner.go
package cleaner

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/converter"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

// Canonicalizer maps raw column names and cell values onto the canonical
// forms used for alignment and comparison. It is a pure function of its
// configuration and safe for concurrent use.
type Canonicalizer struct {
	cfg    config.DiffConfig
	nulls  *NullClassifier
	logger *zap.Logger

	caseInsensitive map[string]bool
	dateColumns     map[string]bool
	accentColumns   map[string]bool
}

// NewCanonicalizer creates a Canonicalizer for a diff configuration
func NewCanonicalizer(cfg config.DiffConfig, logger *zap.Logger) (*Canonicalizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	c := &Canonicalizer{
		cfg:             cfg,
		nulls:           NewNullClassifier(cfg.NullValues, cfg.NullCategories),
		logger:          logger.Named("canonicalizer"),
		caseInsensitive: toSet(cfg.CaseInsensitiveColumns),
		dateColumns:     toSet(cfg.DateColumns),
		accentColumns:   toSet(cfg.Unicode.AccentInsensitiveColumns),
	}

	c.logger.Debug("Canonicalizer ready",
		zap.Int("aliases", len(cfg.Aliases)),
		zap.Strings("case_insensitive_columns", cfg.CaseInsensitiveColumns),
		zap.Bool("date_formats", cfg.IgnoreTransformations.DateFormats),
		zap.Bool("whitespace", cfg.IgnoreTransformations.Whitespace),
		zap.String("unicode_form", cfg.Unicode.Normalize))

	return c, nil
}

// Config returns the configuration the canonicalizer was built with
func (c *Canonicalizer) Config() config.DiffConfig {
	return c.cfg
}

// CanonicalizeColumn returns the canonical form of a raw column name.
// Applying it twice gives the same result as applying it once.
func (c *Canonicalizer) CanonicalizeColumn(raw string) string {
	return c.cfg.ResolveColumn(raw)
}

// ClassifyNull classifies a raw value
func (c *Canonicalizer) ClassifyNull(raw string) model.NullClassification {
	return c.nulls.Classify(raw)
}

// CanonicalizeValue runs every single-sided stage on a raw value. The date
// stage needs both sides and only runs in ComparePair.
func (c *Canonicalizer) CanonicalizeValue(raw, column string) string {
	value, isNull := c.prepare(raw, column)
	if isNull {
		return model.NullSentinel
	}
	return c.finish(value, column)
}

// ComparePair canonicalizes a baseline and a pipeline value for comparison
func (c *Canonicalizer) ComparePair(baselineRaw, pipelineRaw, column string) (string, string) {
	baseline, baselineNull := c.prepare(baselineRaw, column)
	pipeline, pipelineNull := c.prepare(pipelineRaw, column)

	if !baselineNull && !pipelineNull && c.datesApply(column) {
		baseline, pipeline, _ = converter.ReconcileDates(baseline, pipeline)
	}

	if baselineNull {
		baseline = model.NullSentinel
	} else {
		baseline = c.finish(baseline, column)
	}
	if pipelineNull {
		pipeline = model.NullSentinel
	} else {
		pipeline = c.finish(pipeline, column)
	}

	return baseline, pipeline
}

// KeyValue returns the value used to match rows on a key column. Keys are
// compared case-insensitively. The flag is false for null values.
func (c *Canonicalizer) KeyValue(raw, column string) (string, bool) {
	value, isNull := c.prepare(raw, column)
	if isNull {
		return "", false
	}
	return strings.ToUpper(c.finish(value, column)), true
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
