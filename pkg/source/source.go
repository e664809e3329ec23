// pkg/source/source.go
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

// ErrUnsupportedFormat is returned for baseline files that are neither CSV nor XLSX
var ErrUnsupportedFormat = errors.New("unsupported baseline format")

// Loader reads baseline and pipeline files into datasets with canonical
// column names
type Loader struct {
	canon  *cleaner.Canonicalizer
	logger *zap.Logger
}

// NewLoader creates a Loader
func NewLoader(canon *cleaner.Canonicalizer, logger *zap.Logger) (*Loader, error) {
	if canon == nil {
		return nil, errors.New("canonicalizer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Loader{
		canon:  canon,
		logger: logger.Named("loader"),
	}, nil
}

// LoadBaseline reads a wide baseline file. The slug is derived from the file
// name.
func (l *Loader) LoadBaseline(ctx context.Context, path string) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}

	ds := l.buildWide(records)
	ds.Side = model.SideBaseline
	ds.Path = path
	ds.Slug = model.SlugFromFilename(stem(path))

	l.logger.Debug("Loaded baseline",
		zap.String("slug", ds.Slug),
		zap.String("path", path),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)))

	return ds, nil
}

// buildWide turns header + rows into a dataset. Every column of every row
// becomes a cell, empty values included.
func (l *Loader) buildWide(records [][]string) *model.Dataset {
	ds := &model.Dataset{}
	if len(records) == 0 {
		return ds
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	// Position of each kept column in the raw record
	positions := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, raw := range header {
		name := l.canon.CanonicalizeColumn(raw)
		if name == "" {
			name = fmt.Sprintf("COLUMN_%d", i+1)
		}
		if seen[name] {
			l.logger.Warn("Duplicate canonical column ignored",
				zap.String("raw", raw),
				zap.String("column", name))
			continue
		}
		seen[name] = true
		ds.RawColumns = append(ds.RawColumns, raw)
		ds.Columns = append(ds.Columns, name)
		positions = append(positions, i)
	}

	for r, record := range records[1:] {
		row := &model.Row{Index: r, Cells: make(map[string]*model.Cell, len(ds.Columns))}
		for k, pos := range positions {
			value := ""
			if pos < len(record) {
				value = record[pos]
			}
			column := ds.Columns[k]
			row.Cells[column] = &model.Cell{RowIndex: r, Column: column, Value: value}
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds
}

// ListBaselines returns the baseline files of a directory in name order
func ListBaselines(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.csv", "*.xlsx"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list baselines: %w", err)
		}
		for _, m := range matches {
			base := filepath.Base(m)
			// spreadsheet lock files and hidden files
			if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
				continue
			}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
