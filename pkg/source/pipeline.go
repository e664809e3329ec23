// pkg/source/pipeline.go
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// Pipeline export columns
const (
	ColRowIndex     = "row_index"
	ColColumnName   = "column_name"
	ColCleanedValue = "cleaned_value"
	ColConfidence   = "confidence"
	ColNeedsReview  = "needs_review"
	ColRuleChain    = "rule_chain"
)

var requiredPipelineColumns = []string{ColRowIndex, ColColumnName, ColCleanedValue}

// ErrExportNotFound is returned when no pipeline export exists for a slug
var ErrExportNotFound = errors.New("pipeline export not found")

// LoadPipeline reads a long-form pipeline export
func (l *Loader) LoadPipeline(ctx context.Context, path, slug string) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	ds, err := l.buildLong(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ds.Side = model.SidePipeline
	ds.Path = path
	ds.Slug = strings.ToUpper(slug)

	l.logger.Debug("Loaded pipeline export",
		zap.String("slug", ds.Slug),
		zap.String("path", path),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("cells", ds.CellCount()))

	return ds, nil
}

func (l *Loader) buildLong(records [][]string) (*model.Dataset, error) {
	ds := &model.Dataset{}
	if len(records) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredPipelineColumns {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("export is missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		pos, ok := index[name]
		if !ok || pos >= len(record) {
			return ""
		}
		return record[pos]
	}

	rows := make(map[int]*model.Row)
	seenColumns := make(map[string]bool)
	var badIndex, duplicates int

	for _, record := range records[1:] {
		rowIndex, ok := parseRowIndex(field(record, ColRowIndex))
		if !ok {
			badIndex++
			continue
		}

		rawColumn := field(record, ColColumnName)
		column := l.canon.CanonicalizeColumn(rawColumn)
		if column == "" {
			badIndex++
			continue
		}

		row, ok := rows[rowIndex]
		if !ok {
			row = &model.Row{Index: rowIndex, Cells: make(map[string]*model.Cell)}
			rows[rowIndex] = row
		}
		if _, dup := row.Cells[column]; dup {
			duplicates++
			continue
		}

		cell := &model.Cell{
			RowIndex:    rowIndex,
			Column:      column,
			Value:       field(record, ColCleanedValue),
			NeedsReview: field(record, ColNeedsReview),
			RuleChain:   field(record, ColRuleChain),
		}
		if confidence, err := strconv.ParseFloat(strings.TrimSpace(field(record, ColConfidence)), 64); err == nil && !math.IsNaN(confidence) {
			cell.Confidence = &confidence
		}
		row.Cells[column] = cell

		if !seenColumns[column] {
			seenColumns[column] = true
			ds.Columns = append(ds.Columns, column)
			ds.RawColumns = append(ds.RawColumns, rawColumn)
		}
	}

	if badIndex > 0 {
		l.logger.Warn("Skipped export records without a usable row index or column",
			zap.Int("records", badIndex))
	}
	if duplicates > 0 {
		l.logger.Warn("Skipped duplicate export cells",
			zap.Int("records", duplicates))
	}

	ds.Rows = make([]*model.Row, 0, len(rows))
	for _, row := range rows {
		ds.Rows = append(ds.Rows, row)
	}
	sort.Slice(ds.Rows, func(i, j int) bool { return ds.Rows[i].Index < ds.Rows[j].Index })

	return ds, nil
}

// parseRowIndex accepts integers and integral floats such as "3.0" that fit
// in an int
func parseRowIndex(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= float64(math.MaxInt) {
		return 0, false
	}
	return int(f), true
}

// FindPipelineExport locates the export for a slug in dir. Candidates are
// CSV files whose name starts with the slug (case-insensitive), tried in
// this order: *_{preferExt}_stage.csv, *_stage.csv, any.
func FindPipelineExport(dir, slug, preferExt string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	prefix := strings.ToLower(slug)
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".csv") {
			candidates = append(candidates, entry.Name())
		}
	}
	sort.Strings(candidates)

	tiers := []string{
		"_" + strings.ToLower(preferExt) + "_stage.csv",
		"_stage.csv",
		".csv",
	}
	for _, suffix := range tiers {
		for _, name := range candidates {
			if strings.HasSuffix(strings.ToLower(name), suffix) {
				return filepath.Join(dir, name), nil
			}
		}
	}

	return "", fmt.Errorf("%s in %s: %w", slug, dir, ErrExportNotFound)
}
