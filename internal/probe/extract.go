package probe

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// Extraction holds the derived values recomputed when columns are assigned.
type Extraction struct {
	AccountContents []string
	TotalAmount     float64
}

// ExtractColumns scans the first worksheet and derives the distinct values
// of the account column and the sum of the amount column. Either column
// name may be empty, in which case its side of the extraction is skipped.
// Account values are sampled over at most sampleRows data rows and kept in
// first-seen order; the amount sum covers every data row.
func ExtractColumns(r io.Reader, name, accountColumn, amountColumn string, sampleRows int) (*Extraction, error) {
	if !IsSupportedType(name) {
		return nil, ErrUnsupportedType
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %q: %w", sheets[0], err)
	}

	ext := &Extraction{}
	if len(rows) == 0 {
		return ext, nil
	}

	accountIdx := columnIndex(rows[0], accountColumn)
	amountIdx := columnIndex(rows[0], amountColumn)
	if accountColumn != "" && accountIdx < 0 {
		return nil, fmt.Errorf("column %q not found in workbook", accountColumn)
	}
	if amountColumn != "" && amountIdx < 0 {
		return nil, fmt.Errorf("column %q not found in workbook", amountColumn)
	}

	seen := make(map[string]struct{})
	for i, row := range rows[1:] {
		if accountIdx >= 0 && i < sampleRows {
			if v := cellAt(row, accountIdx); v != "" {
				if _, ok := seen[v]; !ok {
					seen[v] = struct{}{}
					ext.AccountContents = append(ext.AccountContents, v)
				}
			}
		}
		if amountIdx >= 0 {
			if amt, ok := parseAmount(cellAt(row, amountIdx)); ok {
				ext.TotalAmount += amt
			}
		}
	}

	return ext, nil
}

// CountAccountRows counts data rows whose account column value is one of
// the given accounts. Used by session completion to stage account-level data.
func CountAccountRows(r io.Reader, name, accountColumn string, accounts []string) (int, error) {
	if !IsSupportedType(name) {
		return 0, ErrUnsupportedType
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("workbook has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("reading worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	idx := columnIndex(rows[0], accountColumn)
	if idx < 0 {
		return 0, fmt.Errorf("column %q not found in workbook", accountColumn)
	}

	wanted := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		wanted[a] = struct{}{}
	}

	count := 0
	for _, row := range rows[1:] {
		if _, ok := wanted[cellAt(row, idx)]; ok {
			count++
		}
	}

	return count, nil
}

func columnIndex(header []string, column string) int {
	if column == "" {
		return -1
	}
	for i, cell := range header {
		if strings.TrimSpace(cell) == column {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount accepts plain numbers and numeric-looking strings with
// currency symbols or thousands separators ("$1,234.50" -> 1234.5).
func parseAmount(cell string) (float64, bool) {
	if cell == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v, true
	}
	stripped := nonNumeric.ReplaceAllString(cell, "")
	if stripped == "" || stripped == "-" || stripped == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
