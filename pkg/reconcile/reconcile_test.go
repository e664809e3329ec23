package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

// test fixtures shared by the package tests

func newCanon(t *testing.T, document string) *cleaner.Canonicalizer {
	t.Helper()
	cfg, _, err := config.ParseDiffConfig([]byte(document))
	require.NoError(t, err)
	canon, err := cleaner.NewCanonicalizer(cfg, zap.NewNop())
	require.NoError(t, err)
	return canon
}

// wide builds a dataset whose rows are indexed by position
func wide(slug string, side model.Side, columns []string, rows ...[]string) *model.Dataset {
	ds := &model.Dataset{Slug: slug, Side: side, Path: slug + "_" + string(side) + ".csv", Columns: columns}
	for i, values := range rows {
		row := &model.Row{Index: i, Cells: map[string]*model.Cell{}}
		for j, column := range columns {
			if j < len(values) {
				row.Cells[column] = &model.Cell{RowIndex: i, Column: column, Value: values[j]}
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

type longCell struct {
	row    int
	column string
	value  string
}

// long builds a pipeline dataset from (row, column, value) triples
func long(slug string, cells ...longCell) *model.Dataset {
	ds := &model.Dataset{Slug: slug, Side: model.SidePipeline, Path: slug + "_xlsx_stage.csv"}
	rows := map[int]*model.Row{}
	seen := map[string]bool{}
	maxIndex := -1
	for _, c := range cells {
		row, ok := rows[c.row]
		if !ok {
			row = &model.Row{Index: c.row, Cells: map[string]*model.Cell{}}
			rows[c.row] = row
		}
		row.Cells[c.column] = &model.Cell{RowIndex: c.row, Column: c.column, Value: c.value}
		if !seen[c.column] {
			seen[c.column] = true
			ds.Columns = append(ds.Columns, c.column)
		}
		if c.row > maxIndex {
			maxIndex = c.row
		}
	}
	for i := 0; i <= maxIndex; i++ {
		if row, ok := rows[i]; ok {
			ds.Rows = append(ds.Rows, row)
		}
	}
	return ds
}

func newAligner(t *testing.T, canon *cleaner.Canonicalizer) *Aligner {
	t.Helper()
	a, err := NewAligner(canon, zap.NewNop())
	require.NoError(t, err)
	return a
}

func newComparator(t *testing.T, canon *cleaner.Canonicalizer) *Comparator {
	t.Helper()
	c, err := NewComparator(canon, zap.NewNop())
	require.NoError(t, err)
	return c
}
