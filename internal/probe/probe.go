// Package probe inspects spreadsheet files: header discovery, row counts,
// and account/amount column extraction.
package probe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedType is returned for files that are not spreadsheets.
// The check runs on the file name alone, before any content is read.
var ErrUnsupportedType = errors.New("unsupported file type: only .xlsx and .xls are accepted")

// Result holds what a probe discovered about a spreadsheet.
type Result struct {
	Columns  []string `json:"columns"`
	RowCount int      `json:"rowCount"`
}

// IsSupportedType reports whether the file name carries an accepted
// spreadsheet extension.
func IsSupportedType(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return true
	}
	return false
}

// Probe reads the first worksheet of a local spreadsheet file and returns
// its header columns and data row count (rows minus the header row).
func Probe(path string) (*Result, error) {
	if !IsSupportedType(path) {
		return nil, ErrUnsupportedType
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	return probeWorkbook(f)
}

// ProbeReader probes already-open spreadsheet content. The name is used
// only for the extension gate.
func ProbeReader(r io.Reader, name string) (*Result, error) {
	if !IsSupportedType(name) {
		return nil, ErrUnsupportedType
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	return probeWorkbook(f)
}

func probeWorkbook(f *excelize.File) (*Result, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %q: %w", sheets[0], err)
	}

	result := &Result{Columns: []string{}}
	if len(rows) == 0 {
		return result, nil
	}

	for _, cell := range rows[0] {
		header := strings.TrimSpace(cell)
		if header != "" {
			result.Columns = append(result.Columns, header)
		}
	}
	result.RowCount = len(rows) - 1

	return result, nil
}
