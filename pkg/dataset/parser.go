// Package dataset parses uploaded recipient files into flat rows, infers
// column schemas and cross-checks templates against them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/casthq/caster/pkg/models"
)

// numericRatioThreshold mirrors the filter evaluator's rule: a column is
// numeric when at least 90% of its non-empty values parse as numbers.
const numericRatioThreshold = 0.9

const sampleRowCount = 5

var (
	// ErrEmptyFile is returned when the parsed file is blank, without
	// even a header row.
	ErrEmptyFile = errors.New("dataset file is empty")

	// ErrDuplicateColumns is returned when two headers collide after
	// normalization.
	ErrDuplicateColumns = errors.New("dataset contains duplicate column names after normalization")

	// ErrUnsupportedFormat is returned for file extensions other than
	// .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Dataset is the parsed form of one uploaded file.
type Dataset struct {
	Rows       []models.Row
	Schema     models.Schema
	RowCount   int
	SampleRows []models.Row
}

// ParseFile reads a dataset from disk, dispatching on the file extension.
func ParseFile(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset file: %w", err)
		}
		defer f.Close()

		return ParseCSV(f)
	case ".xlsx":
		return parseXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseCSV reads CSV content into normalized rows. Files that are not
// valid UTF-8 are decoded as Latin-1 rather than rejected.
func ParseCSV(r io.Reader) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	if !utf8.Valid(raw) {
		raw = latin1ToUTF8(raw)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	return build(records)
}

func parseXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheets[0], err)
	}

	return build(records)
}

// build turns raw records (header row first) into a Dataset. A header
// row with no data rows is a valid empty dataset; only a file with no
// header at all is rejected.
func build(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]struct{}, len(records[0]))

	for i, name := range records[0] {
		normalized := models.NormalizeName(name)
		if _, dup := seen[normalized]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumns, normalized)
		}

		seen[normalized] = struct{}{}
		header[i] = normalized
	}

	rows := make([]models.Row, 0, len(records)-1)

	for _, record := range records[1:] {
		row := make(models.Row, len(header))

		for i, column := range header {
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}

			row[column] = value
		}

		rows = append(rows, row)
	}

	schema := make(models.Schema, 0, len(header))
	for _, column := range header {
		schema = append(schema, models.Column{Name: column, Type: inferColumnType(rows, column)})
	}

	sample := rows
	if len(sample) > sampleRowCount {
		sample = sample[:sampleRowCount]
	}

	return &Dataset{
		Rows:       rows,
		Schema:     schema,
		RowCount:   len(rows),
		SampleRows: sample,
	}, nil
}

// inferColumnType applies the numeric-ratio rule; a fully empty column
// is a string column.
func inferColumnType(rows []models.Row, column string) models.ColumnType {
	nonEmpty := 0
	numeric := 0

	for _, row := range rows {
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}

		nonEmpty++

		if _, err := strconv.ParseFloat(value, 64); err == nil {
			numeric++
		}
	}

	if nonEmpty == 0 {
		return models.ColumnTypeString
	}

	if float64(numeric)/float64(nonEmpty) >= numericRatioThreshold {
		return models.ColumnTypeNumber
	}

	return models.ColumnTypeString
}

func latin1ToUTF8(raw []byte) []byte {
	out := make([]rune, len(raw))
	for i, b := range raw {
		out[i] = rune(b)
	}

	return []byte(string(out))
}
