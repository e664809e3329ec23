package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

const metricsNamespace = "vessel_recon"

// RunMetrics tracks metrics for a reconciliation run. Per-dataset values are
// also exported as Prometheus gauges on a private registry.
type RunMetrics struct {
	mu               sync.Mutex
	logger           *zap.Logger
	StartTime        time.Time
	EndTime          time.Time
	DatasetsCompared int
	DatasetsSkipped  int
	DatasetsFailed   int
	TotalCells       int64
	TotalMismatches  int64
	ErrorCounts      map[ErrorCategory]int
	DatasetDurations map[string]time.Duration
	WorkerBusy       map[int]time.Duration

	registry        *prometheus.Registry
	matchRate       *prometheus.GaugeVec
	nullAwareRate   *prometheus.GaugeVec
	cells           *prometheus.GaugeVec
	alignedCells    *prometheus.GaugeVec
	datasetDuration *prometheus.GaugeVec
	datasets        *prometheus.CounterVec
	errors          *prometheus.CounterVec
}

// NewRunMetrics creates a RunMetrics instance with its own registry
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &RunMetrics{
		logger:           logger,
		StartTime:        time.Now(),
		ErrorCounts:      make(map[ErrorCategory]int),
		DatasetDurations: make(map[string]time.Duration),
		WorkerBusy:       make(map[int]time.Duration),
		registry:         registry,
		matchRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "match_rate",
			Help:      "Share of matched cells per dataset.",
		}, []string{"dataset"}),
		nullAwareRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "null_aware_match_rate",
			Help:      "Match rate under the configured null policy.",
		}, []string{"dataset"}),
		cells: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cells",
			Help:      "Aligned cells per dataset and class, plus one-sided cells.",
		}, []string{"dataset", "class"}),
		alignedCells: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "aligned_cells",
			Help:      "Aligned cells per dataset and alignment stage.",
		}, []string{"dataset", "stage"}),
		datasetDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "dataset_duration_seconds",
			Help:      "Wall time spent reconciling a dataset.",
		}, []string{"dataset"}),
		datasets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "datasets_total",
			Help:      "Datasets seen by status.",
		}, []string{"status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Errors by category.",
		}, []string{"category"}),
	}
}

// Registry exposes the Prometheus registry
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDataset records a finished dataset job
func (m *RunMetrics) RecordDataset(result DatasetResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WorkerBusy[result.WorkerID] += result.Duration
	for _, record := range result.Errors {
		m.recordErrorLocked(record.Category)
	}

	if !result.Compared {
		m.DatasetsFailed++
		m.datasets.WithLabelValues("failed").Inc()
		return
	}

	status := "compared"
	if result.HasErrors() {
		status = "compared_with_errors"
	}
	m.datasets.WithLabelValues(status).Inc()
	m.DatasetsCompared++

	s := result.Summary
	m.TotalCells += int64(s.TotalCells)
	m.TotalMismatches += int64(result.Mismatches)
	m.DatasetDurations[s.Slug] = result.Duration

	m.matchRate.WithLabelValues(s.Slug).Set(s.MatchRate)
	m.nullAwareRate.WithLabelValues(s.Slug).Set(s.NullAwareMatchRate)
	for _, class := range model.CellClasses {
		m.cells.WithLabelValues(s.Slug, class.String()).Set(float64(s.Classes.Get(class)))
	}
	m.cells.WithLabelValues(s.Slug, model.PresenceBaselineOnly.String()).Set(float64(s.BaselineOnly))
	m.cells.WithLabelValues(s.Slug, model.PresencePipelineOnly.String()).Set(float64(s.PipelineOnly))
	for _, stage := range model.Stages {
		m.alignedCells.WithLabelValues(s.Slug, stage.String()).Set(float64(s.AlignedBy.Get(stage)))
	}
	m.datasetDuration.WithLabelValues(s.Slug).Set(result.Duration.Seconds())

	if m.logger != nil {
		m.logger.Info("Dataset reconciled",
			zap.String("dataset", s.Slug),
			zap.Int("total_cells", s.TotalCells),
			zap.Float64("match_rate", s.MatchRate),
			zap.Int("mismatches", result.Mismatches),
			zap.Duration("duration", result.Duration),
			zap.Int("worker", result.WorkerID))
	}
}

// RecordSkipped marks a dataset as skipped
func (m *RunMetrics) RecordSkipped(slug, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DatasetsSkipped++
	m.datasets.WithLabelValues("skipped").Inc()

	if m.logger != nil {
		m.logger.Info("Dataset skipped",
			zap.String("dataset", slug),
			zap.String("reason", reason))
	}
}

// RecordError increments the error count for a category
func (m *RunMetrics) RecordError(category ErrorCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(category)
}

func (m *RunMetrics) recordErrorLocked(category ErrorCategory) {
	m.ErrorCounts[category]++
	m.errors.WithLabelValues(category.String()).Inc()
}

// Complete marks the run as finished
func (m *RunMetrics) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// Duration returns the run duration so far
func (m *RunMetrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// WriteTextfile writes the registry in the node exporter textfile format
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a plain-text run report
func (m *RunMetrics) GenerateMetricsReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.DatasetsCompared + m.DatasetsSkipped + m.DatasetsFailed

	var sb strings.Builder
	fmt.Fprintf(&sb, `
Reconciliation Metrics Report
=============================
Duration:                %s

Datasets
--------
Total Datasets:          %d
Compared:                %d (%.1f%%)
Skipped:                 %d (%.1f%%)
Failed:                  %d (%.1f%%)

Cells
-----
Total Cells:             %d
Mismatch Rows Written:   %d
`,
		formatDuration(m.Duration()),
		total,
		m.DatasetsCompared, percentage(m.DatasetsCompared, total),
		m.DatasetsSkipped, percentage(m.DatasetsSkipped, total),
		m.DatasetsFailed, percentage(m.DatasetsFailed, total),
		m.TotalCells,
		m.TotalMismatches,
	)

	if len(m.DatasetDurations) > 0 {
		sb.WriteString("\nDataset Durations\n-----------------\n")
		slugs := make([]string, 0, len(m.DatasetDurations))
		for slug := range m.DatasetDurations {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		for _, slug := range slugs {
			fmt.Fprintf(&sb, "- %s: %s\n", slug, formatDuration(m.DatasetDurations[slug]))
		}
	}

	if len(m.ErrorCounts) > 0 {
		sb.WriteString("\nErrors\n------\n")
		for category := ErrorCategoryWarning; category <= ErrorCategoryCritical; category++ {
			if count := m.ErrorCounts[category]; count > 0 {
				fmt.Fprintf(&sb, "- %s: %d\n", category, count)
			}
		}
	}

	return sb.String()
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
