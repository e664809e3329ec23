package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

const (
	runsTable      = "recon_runs"
	summariesTable = "recon_dataset_summaries"
)

func schemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id VARCHAR(36) PRIMARY KEY,
	started_unix_ms BIGINT NOT NULL,
	dataset_count INTEGER NOT NULL
)`, quote(runsTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id VARCHAR(36) NOT NULL REFERENCES %s (run_id),
	slug VARCHAR(64) NOT NULL,
	baseline_file TEXT NOT NULL,
	current_file TEXT NOT NULL,
	total_cells BIGINT NOT NULL,
	matched BIGINT NOT NULL,
	baseline_only BIGINT NOT NULL,
	pipeline_only BIGINT NOT NULL,
	mismatched BIGINT NOT NULL,
	match_rate DOUBLE PRECISION NOT NULL,
	null_aware_match_rate DOUBLE PRECISION NOT NULL,
	aligned_by_join_key BIGINT NOT NULL,
	aligned_by_composite BIGINT NOT NULL,
	aligned_by_row_index BIGINT NOT NULL,
	PRIMARY KEY (run_id, slug, baseline_file)
)`, quote(summariesTable), quote(runsTable)),
	}
}

// RunRow is a stored run
type RunRow struct {
	RunID         string `db:"run_id"`
	StartedUnixMs int64  `db:"started_unix_ms"`
	DatasetCount  int    `db:"dataset_count"`
}

// StartedAt returns the run start in UTC
func (r RunRow) StartedAt() time.Time {
	return time.UnixMilli(r.StartedUnixMs).UTC()
}

// SummaryRow is a stored dataset summary
type SummaryRow struct {
	RunID              string  `db:"run_id"`
	Slug               string  `db:"slug"`
	BaselineFile       string  `db:"baseline_file"`
	CurrentFile        string  `db:"current_file"`
	TotalCells         int64   `db:"total_cells"`
	Matched            int64   `db:"matched"`
	BaselineOnly       int64   `db:"baseline_only"`
	PipelineOnly       int64   `db:"pipeline_only"`
	Mismatched         int64   `db:"mismatched"`
	MatchRate          float64 `db:"match_rate"`
	NullAwareMatchRate float64 `db:"null_aware_match_rate"`
	AlignedByJoinKey   int64   `db:"aligned_by_join_key"`
	AlignedByComposite int64   `db:"aligned_by_composite"`
	AlignedByRowIndex  int64   `db:"aligned_by_row_index"`
}

func newSummaryRow(runID string, s model.Summary) SummaryRow {
	return SummaryRow{
		RunID:              runID,
		Slug:               s.Slug,
		BaselineFile:       s.BaselineFile,
		CurrentFile:        s.CurrentFile,
		TotalCells:         int64(s.TotalCells),
		Matched:            int64(s.Matched),
		BaselineOnly:       int64(s.BaselineOnly),
		PipelineOnly:       int64(s.PipelineOnly),
		Mismatched:         int64(s.Mismatched),
		MatchRate:          s.MatchRate,
		NullAwareMatchRate: s.NullAwareMatchRate,
		AlignedByJoinKey:   int64(s.AlignedBy.Get(model.StageJoinKey)),
		AlignedByComposite: int64(s.AlignedBy.Get(model.StageComposite)),
		AlignedByRowIndex:  int64(s.AlignedBy.Get(model.StageRowIndex)),
	}
}

// RecordRun stores a run and its dataset summaries in one transaction
func (s *RunStore) RecordRun(ctx context.Context, runID string, startedAt time.Time, summaries []model.Summary) (err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	run := RunRow{
		RunID:         runID,
		StartedUnixMs: startedAt.UnixMilli(),
		DatasetCount:  len(summaries),
	}
	runInsert := fmt.Sprintf(
		"INSERT INTO %s (run_id, started_unix_ms, dataset_count) VALUES (:run_id, :started_unix_ms, :dataset_count)",
		quote(runsTable))
	if _, err = tx.NamedExecContext(ctx, runInsert, run); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}

	summaryInsert := fmt.Sprintf(`INSERT INTO %s (
	run_id, slug, baseline_file, current_file, total_cells, matched, baseline_only,
	pipeline_only, mismatched, match_rate, null_aware_match_rate,
	aligned_by_join_key, aligned_by_composite, aligned_by_row_index
) VALUES (
	:run_id, :slug, :baseline_file, :current_file, :total_cells, :matched, :baseline_only,
	:pipeline_only, :mismatched, :match_rate, :null_aware_match_rate,
	:aligned_by_join_key, :aligned_by_composite, :aligned_by_row_index
)`, quote(summariesTable))

	for _, summary := range summaries {
		if _, err = tx.NamedExecContext(ctx, summaryInsert, newSummaryRow(runID, summary)); err != nil {
			return fmt.Errorf("failed to insert summary for %s: %w", summary.Slug, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", runID, err)
	}

	s.logger.Info("Recorded run",
		zap.String("run_id", runID),
		zap.Int("datasets", len(summaries)))
	return nil
}

// Runs lists stored runs, newest first
func (s *RunStore) Runs(ctx context.Context) ([]RunRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var runs []RunRow
	query := fmt.Sprintf(
		"SELECT run_id, started_unix_ms, dataset_count FROM %s ORDER BY started_unix_ms DESC, run_id DESC",
		quote(runsTable))
	if err := s.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RunSummaries returns the dataset summaries of one run ordered by slug
func (s *RunStore) RunSummaries(ctx context.Context, runID string) ([]SummaryRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []SummaryRow
	query := s.db.Rebind(fmt.Sprintf(
		"SELECT * FROM %s WHERE run_id = ? ORDER BY slug, baseline_file",
		quote(summariesTable)))
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load summaries for run %s: %w", runID, err)
	}
	return rows, nil
}

// LatestMatchRates returns, per dataset, the null-aware match rate from the
// most recent run that compared it
func (s *RunStore) LatestMatchRates(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		Slug string  `db:"slug"`
		Rate float64 `db:"null_aware_match_rate"`
	}
	query := fmt.Sprintf(`SELECT s.slug, s.null_aware_match_rate
FROM %s s JOIN %s r ON r.run_id = s.run_id
ORDER BY r.started_unix_ms DESC, r.run_id DESC, s.baseline_file`,
		quote(summariesTable), quote(runsTable))
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load match rate history: %w", err)
	}

	rates := make(map[string]float64)
	for _, row := range rows {
		if _, seen := rates[row.Slug]; !seen {
			rates[row.Slug] = row.Rate
		}
	}
	return rates, nil
}
