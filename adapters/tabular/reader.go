package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"glyphscore/domain/core"
	"glyphscore/internal"
	apperrors "glyphscore/internal/errors"

	"github.com/xuri/excelize/v2"
)

// File types understood by DataReader
const (
	FileTypeCSV  = "csv"
	FileTypeTSV  = "tsv"
	FileTypeXLSX = "xlsx"
)

// Row maps a normalized header to its trimmed cell value
type Row map[string]string

// Table is a header row plus data rows, read fully into memory.
// RawHeaders keeps each header as written, trimmed, for columns whose name
// carries data such as section_weight_<section>.
type Table struct {
	Source     string
	Headers    []string
	RawHeaders []string
	Rows       []Row
}

// Has reports whether the table carries a column
func (t *Table) Has(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// Require fails with a MissingColumnError for the first absent column
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return core.NewMissingColumnError(t.Source, c)
		}
	}
	return nil
}

// DataReader reads CSV, TSV and XLSX files. The type follows the extension;
// anything that is not .csv or .xlsx is read as tab-separated.
type DataReader struct {
	filePath string
	fileType string
	logger   *internal.Logger
}

// NewDataReader creates a reader for one file
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	return &DataReader{filePath: filePath, fileType: fileTypeFor(filePath), logger: logger.With("reader")}
}

func fileTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FileTypeCSV
	case ".xlsx", ".xlsm":
		return FileTypeXLSX
	default:
		return FileTypeTSV
	}
}

// FileType returns the detected file type
func (r *DataReader) FileType() string { return r.fileType }

// ReadData reads the file into a Table. Headers are trimmed and lowercased.
func (r *DataReader) ReadData() (*Table, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, apperrors.IOError(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath), err)
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	if r.fileType == FileTypeXLSX {
		rows, err = r.readExcelRows()
	} else {
		rows, err = r.readDelimitedRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, core.NewMissingColumnError(r.filePath, "header row")
	}

	table := r.processRows(rows)
	r.logger.Debug("%s read in %.2fms (%d columns, %d rows)", r.filePath,
		float64(time.Since(start).Nanoseconds())/1e6, len(table.Headers), len(table.Rows))
	return table, nil
}

// readExcelRows reads the first sheet of a workbook
func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperrors.IOError("failed to open Excel file", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.IOError("workbook has no sheets: "+r.filePath, nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.IOError(fmt.Sprintf("failed to read sheet %s", sheets[0]), err)
	}
	return rows, nil
}

func (r *DataReader) readDelimitedRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperrors.IOError("failed to open "+r.fileType+" file", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if r.fileType == FileTypeTSV {
		reader.Comma = '\t'
		reader.LazyQuotes = true
	}
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.IOError("failed to read "+r.fileType+" file", err)
	}
	return rows, nil
}

// processRows converts raw string rows into a Table, skipping blank rows
func (r *DataReader) processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	raw := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = NormalizeHeader(h)
		raw[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	table := &Table{Source: r.filePath, Headers: headers, RawHeaders: raw}
	for _, cells := range rows[1:] {
		row := make(Row, len(headers))
		blank := true
		for j, cell := range cells {
			if j >= len(headers) || headers[j] == "" {
				continue
			}
			v := strings.TrimSpace(cell)
			if v != "" {
				blank = false
			}
			row[headers[j]] = v
		}
		if !blank {
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}

// NormalizeHeader trims, lowercases and strips a UTF-8 byte-order mark
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// SplitList splits a comma-joined cell into trimmed, non-empty values
func SplitList(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
