package validate

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// generatedPrefix marks the optional timestamp line some writers put above
// the summary header
const generatedPrefix = "Generated:"

// SummaryRow is one dataset line of the aggregate summary
type SummaryRow struct {
	Slug   string
	Values map[string]string
}

// Float returns a numeric field; false when missing or unparsable
func (r SummaryRow) Float(column string) (float64, bool) {
	raw, ok := r.Values[column]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns an integer field, accepting "12.0"; 0 when unparsable
func (r SummaryRow) Int(column string) int {
	f, ok := r.Float(column)
	if !ok {
		return 0
	}
	return int(f)
}

// SummaryTable is the parsed aggregate summary
type SummaryTable struct {
	Path    string
	Columns []string
	Rows    []SummaryRow
}

// HasColumn reports whether the summary header contains a column
func (t SummaryTable) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Row returns the first row for a slug
func (t SummaryTable) Row(slug string) (SummaryRow, bool) {
	for _, row := range t.Rows {
		if row.Slug == slug {
			return row, true
		}
	}
	return SummaryRow{}, false
}

// PresenceRow is one column line of a presence file
type PresenceRow struct {
	Column      string
	BaselinePct float64
	PipelinePct float64
	DeltaPct    float64
}

// PresenceFile is a parsed presence file. Err is set when the file could not
// be read; Rows is empty in that case.
type PresenceFile struct {
	Slug string
	Path string
	Rows []PresenceRow
	Err  error
}

// ReadSummary loads an aggregate summary CSV. A leading "Generated:" line is
// skipped.
func ReadSummary(path string) (*SummaryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("summary file not found: %s", path)
	}

	reader := bufio.NewReader(bytes.NewReader(data))
	first, err := reader.Peek(len(generatedPrefix))
	if err == nil && string(first) == generatedPrefix {
		if _, err := reader.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read summary: %w", err)
		}
	}

	records, err := readRecords(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	table := &SummaryTable{Path: path}
	if len(records) == 0 {
		return table, nil
	}
	table.Columns = trimAll(records[0])

	for _, record := range records[1:] {
		row := SummaryRow{Values: make(map[string]string, len(table.Columns))}
		for i, column := range table.Columns {
			if i < len(record) {
				row.Values[column] = record[i]
			}
		}
		row.Slug = slugFromFile(row.Values["baseline_file"])
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadPresenceDir loads every *_presence.csv in dir, in name order
func ReadPresenceDir(dir string) ([]PresenceFile, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("diffs directory not found: %s", dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*_presence.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list presence files: %w", err)
	}
	sort.Strings(paths)

	files := make([]PresenceFile, 0, len(paths))
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), "_presence.csv")
		file := PresenceFile{Slug: strings.ToUpper(stem), Path: path}
		file.Rows, file.Err = readPresence(path)
		files = append(files, file)
	}
	return files, nil
}

func readPresence(path string) ([]PresenceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, name := range trimAll(records[0]) {
		index[name] = i
	}
	columnPos, ok := index["column_name"]
	if !ok {
		return nil, errors.New("missing column_name column")
	}

	field := func(record []string, name string) float64 {
		pos, ok := index[name]
		if !ok || pos >= len(record) {
			return 0
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(record[pos]), 64)
		if err != nil {
			return 0
		}
		return f
	}

	rows := make([]PresenceRow, 0, len(records)-1)
	for _, record := range records[1:] {
		// short rows carry no column name
		if columnPos >= len(record) || strings.TrimSpace(record[columnPos]) == "" {
			continue
		}
		rows = append(rows, PresenceRow{
			Column:      strings.TrimSpace(record[columnPos]),
			BaselinePct: field(record, "baseline_non_null_pct"),
			PipelinePct: field(record, "pipeline_non_null_pct"),
			DeltaPct:    field(record, "delta_pct"),
		})
	}
	return rows, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func slugFromFile(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "UNKNOWN"
	}
	return model.SlugFromFilename(strings.TrimSuffix(name, filepath.Ext(name)))
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(strings.TrimPrefix(v, "\ufeff"))
	}
	return out
}
