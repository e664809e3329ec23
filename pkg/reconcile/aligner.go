package reconcile

import (
	"errors"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

// AlignmentResult holds the aligned cells of a dataset pair
type AlignmentResult struct {
	Cells   []model.AlignedCell
	Columns []string // baseline columns first, then pipeline-only columns
	Outcome model.AlignmentOutcome
}

// Aligner pairs baseline rows with pipeline rows in three stages: join key,
// composite key, row index. Each stage only sees rows left over by the
// stages before it.
type Aligner struct {
	canon  *cleaner.Canonicalizer
	cfg    config.DiffConfig
	logger *zap.Logger
}

// NewAligner creates an Aligner
func NewAligner(canon *cleaner.Canonicalizer, logger *zap.Logger) (*Aligner, error) {
	if canon == nil {
		return nil, errors.New("canonicalizer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Aligner{
		canon:  canon,
		cfg:    canon.Config(),
		logger: logger.Named("aligner"),
	}, nil
}

// keyFunc computes the alignment key of a row; false means the row has no
// usable key for the stage
type keyFunc func(row *model.Row) (model.AlignmentKey, bool)

// alignState tracks the rows that are still unconsumed
type alignState struct {
	columns  []string
	baseline []*model.Row
	pipeline []*model.Row
	result   AlignmentResult
}

// Align runs the cascade for a dataset pair. Inputs are not modified.
func (a *Aligner) Align(baseline, pipeline *model.Dataset) AlignmentResult {
	state := &alignState{
		columns:  unionColumns(baseline, pipeline),
		baseline: append([]*model.Row(nil), baseline.Rows...),
		pipeline: append([]*model.Row(nil), pipeline.Rows...),
	}
	state.result.Columns = state.columns

	logger := a.logger.With(zap.String("dataset", baseline.Slug))

	// Stage 1: join key
	if keyFn, ok := a.joinKeyFunc(baseline, pipeline); ok {
		state.result.Outcome.JoinKeyUsed = true
		state.matchStage(model.StageJoinKey, keyFn)
	} else {
		logger.Debug("Join key stage skipped", zap.String("join_key", a.cfg.JoinKey))
	}

	// Stage 2: composite keys
	if keyFn, ok := a.compositeKeyFunc(baseline, pipeline, &state.result.Outcome, logger); ok {
		state.matchStage(model.StageComposite, keyFn)
	}

	// Stage 3: row index, always runs
	state.rowIndexStage()

	outcome := state.result.Outcome
	logger.Debug("Alignment complete",
		zap.Int("join_key_cells", outcome.AlignedCells.Get(model.StageJoinKey)),
		zap.Int("composite_cells", outcome.AlignedCells.Get(model.StageComposite)),
		zap.Int("row_index_cells", outcome.AlignedCells.Get(model.StageRowIndex)),
		zap.Int("join_key_rows", outcome.BaselineRows.Get(model.StageJoinKey)),
		zap.Int("composite_rows", outcome.BaselineRows.Get(model.StageComposite)),
		zap.Int("row_index_rows", outcome.BaselineRows.Get(model.StageRowIndex)),
		zap.Int("join_key_deferred", outcome.DeferredDuplicates.Get(model.StageJoinKey)),
		zap.Int("composite_deferred", outcome.DeferredDuplicates.Get(model.StageComposite)))

	return state.result
}

// joinKeyFunc returns the key function for the join stage, or false when the
// stage does not apply to this pair
func (a *Aligner) joinKeyFunc(baseline, pipeline *model.Dataset) (keyFunc, bool) {
	column := a.cfg.JoinKey
	if column == "" || !baseline.HasColumn(column) || !pipeline.HasColumn(column) {
		return nil, false
	}

	keyFn := func(row *model.Row) (model.AlignmentKey, bool) {
		raw, ok := row.Value(column)
		if !ok {
			return nil, false
		}
		value, ok := a.canon.KeyValue(raw, column)
		if !ok {
			return nil, false
		}
		return model.JoinKey{Value: value}, true
	}

	if !anyKeyed(baseline.Rows, keyFn) || !anyKeyed(pipeline.Rows, keyFn) {
		return nil, false
	}
	return keyFn, true
}

// compositeKeyFunc resolves the composite sets for the pair. Sets naming a
// column missing from either schema are skipped and recorded.
func (a *Aligner) compositeKeyFunc(
	baseline, pipeline *model.Dataset,
	outcome *model.AlignmentOutcome,
	logger *zap.Logger,
) (keyFunc, bool) {
	type indexedSet struct {
		index   int
		columns []string
	}

	var applicable []indexedSet
	for i, set := range a.cfg.CompositeSetsFor(baseline.Slug) {
		var missing []string
		for _, column := range set {
			if !baseline.HasColumn(column) || !pipeline.HasColumn(column) {
				missing = append(missing, column)
			}
		}
		if len(missing) > 0 {
			logger.Info("Composite key set not applicable",
				zap.Strings("set", set),
				zap.Strings("missing", missing))
			outcome.SkippedCompositeSets = append(outcome.SkippedCompositeSets, set)
			continue
		}
		applicable = append(applicable, indexedSet{index: i, columns: set})
	}
	if len(applicable) == 0 {
		return nil, false
	}

	keyFn := func(row *model.Row) (model.AlignmentKey, bool) {
		// first set whose values are all present and non-null
		for _, set := range applicable {
			values := make([]string, 0, len(set.columns))
			for _, column := range set.columns {
				raw, ok := row.Value(column)
				if !ok {
					break
				}
				value, ok := a.canon.KeyValue(raw, column)
				if !ok {
					break
				}
				values = append(values, value)
			}
			if len(values) == len(set.columns) {
				return model.NewCompositeKey(set.index, set.columns, values), true
			}
		}
		return nil, false
	}
	return keyFn, true
}

// matchStage outer-joins the rows whose key is unique on their own side.
// Matched keys pair their rows; unique keys without a counterpart become
// one-sided cells of this stage. Rows with no key or a duplicated key stay
// for the next stage.
func (s *alignState) matchStage(stage model.Stage, keyFn keyFunc) {
	baselineKeys, baselineDup := indexUnique(s.baseline, keyFn)
	pipelineKeys, pipelineDup := indexUnique(s.pipeline, keyFn)
	s.result.Outcome.DeferredDuplicates[stage] = baselineDup + pipelineDup

	consumedPipeline := make(map[*model.Row]bool)
	var remaining []*model.Row
	for _, row := range s.baseline {
		key, ok := keyFn(row)
		if !ok {
			remaining = append(remaining, row)
			continue
		}
		id := key.String()
		if baselineKeys[id] != row {
			// duplicated on the baseline side
			remaining = append(remaining, row)
			continue
		}

		// nil when absent or duplicated on the pipeline side
		match := pipelineKeys[id]
		s.emitPair(stage, key, row, match)
		s.result.Outcome.BaselineRows[stage]++
		if match != nil {
			consumedPipeline[match] = true
			s.result.Outcome.PipelineRows[stage]++
		}
	}
	s.baseline = remaining

	var pipelineRemaining []*model.Row
	for _, row := range s.pipeline {
		if consumedPipeline[row] {
			continue
		}
		key, ok := keyFn(row)
		if !ok || pipelineKeys[key.String()] != row {
			pipelineRemaining = append(pipelineRemaining, row)
			continue
		}
		s.emitPair(stage, key, nil, row)
		s.result.Outcome.PipelineRows[stage]++
	}
	s.pipeline = pipelineRemaining
}

// rowIndexStage pairs every remaining row on its index
func (s *alignState) rowIndexStage() {
	byIndex := make(map[int]*model.Row, len(s.pipeline))
	for _, row := range s.pipeline {
		byIndex[row.Index] = row
	}

	paired := make(map[*model.Row]bool)
	for _, row := range s.baseline {
		match := byIndex[row.Index]
		if match != nil {
			paired[match] = true
			s.result.Outcome.PipelineRows[model.StageRowIndex]++
		}
		s.emitPair(model.StageRowIndex, model.RowIndex{Index: row.Index}, row, match)
		s.result.Outcome.BaselineRows[model.StageRowIndex]++
	}

	for _, row := range s.pipeline {
		if paired[row] {
			continue
		}
		s.emitPair(model.StageRowIndex, model.RowIndex{Index: row.Index}, nil, row)
		s.result.Outcome.PipelineRows[model.StageRowIndex]++
	}

	s.baseline = nil
	s.pipeline = nil
}

// emitPair outer-joins two rows on column name. Either row may be nil.
func (s *alignState) emitPair(stage model.Stage, key model.AlignmentKey, baseline, pipeline *model.Row) {
	baselineRow, pipelineRow := -1, -1
	if baseline != nil {
		baselineRow = baseline.Index
	}
	if pipeline != nil {
		pipelineRow = pipeline.Index
	}

	for _, column := range s.columns {
		var b, p *model.Cell
		if baseline != nil {
			b = baseline.Cells[column]
		}
		if pipeline != nil {
			p = pipeline.Cells[column]
		}
		if b == nil && p == nil {
			continue
		}

		s.result.Cells = append(s.result.Cells, model.AlignedCell{
			Stage:       stage,
			Key:         key,
			BaselineRow: baselineRow,
			PipelineRow: pipelineRow,
			Column:      column,
			Baseline:    b,
			Pipeline:    p,
		})
		if b != nil && p != nil {
			s.result.Outcome.AlignedCells[stage]++
		}
	}
}

// indexUnique maps key -> row for keys seen exactly once. Duplicated keys map
// to nil. The count is the number of rows carrying a duplicated key.
func indexUnique(rows []*model.Row, keyFn keyFunc) (map[string]*model.Row, int) {
	counts := make(map[string]int, len(rows))
	index := make(map[string]*model.Row, len(rows))
	for _, row := range rows {
		key, ok := keyFn(row)
		if !ok {
			continue
		}
		id := key.String()
		counts[id]++
		index[id] = row
	}

	duplicates := 0
	for id, n := range counts {
		if n > 1 {
			index[id] = nil
			duplicates += n
		}
	}
	return index, duplicates
}

func anyKeyed(rows []*model.Row, keyFn keyFunc) bool {
	for _, row := range rows {
		if _, ok := keyFn(row); ok {
			return true
		}
	}
	return false
}

func unionColumns(baseline, pipeline *model.Dataset) []string {
	columns := append([]string(nil), baseline.Columns...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, c := range pipeline.Columns {
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	return columns
}
