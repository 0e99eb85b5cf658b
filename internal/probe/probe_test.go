package probe

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, headers []string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		t.Fatalf("writing header row: %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("writing row %d: %v", i, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
}

func TestIsSupportedType(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ledger.xlsx", true},
		{"ledger.XLSX", true},
		{"legacy.xls", true},
		{"notes.txt", false},
		{"data.csv", false},
		{"archive.xlsx.gz", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		if got := IsSupportedType(tt.name); got != tt.want {
			t.Errorf("IsSupportedType(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProbe_HeadersAndRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	writeWorkbook(t, path,
		[]string{"Account", "Amount", "Memo"},
		[][]interface{}{
			{"A", 10.5, "first"},
			{"B", 2, "second"},
			{"A", 3, "third"},
		})

	result, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	wantCols := []string{"Account", "Amount", "Memo"}
	if len(result.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", result.Columns, wantCols)
	}
	for i, c := range wantCols {
		if result.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, result.Columns[i], c)
		}
	}
	if result.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", result.RowCount)
	}
}

func TestProbe_EmptyHeadersDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.xlsx")
	writeWorkbook(t, path,
		[]string{"Account", "", "Amount"},
		[][]interface{}{{"A", "", 1}})

	result, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(result.Columns) != 2 {
		t.Errorf("expected empty header dropped, got %v", result.Columns)
	}
}

func TestProbe_HeaderOnlyWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	writeWorkbook(t, path, []string{"Account", "Amount"}, nil)

	result, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.RowCount != 0 {
		t.Errorf("RowCount = %d, want 0", result.RowCount)
	}
}

func TestProbe_RejectsUnsupportedExtension(t *testing.T) {
	// The file does not even exist; the name gate must fire first.
	_, err := Probe(filepath.Join(t.TempDir(), "report.pdf"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestProbe_MalformedWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(path, []byte("not a zip archive"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Probe(path); err == nil {
		t.Error("expected error for malformed workbook")
	}
}

func TestProbeReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	writeWorkbook(t, path, []string{"Account"}, [][]interface{}{{"A"}, {"B"}})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	result, err := ProbeReader(bytes.NewReader(data), "ledger.xlsx")
	if err != nil {
		t.Fatalf("ProbeReader: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", result.RowCount)
	}

	if _, err := ProbeReader(bytes.NewReader(data), "ledger.bin"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType for bad name, got %v", err)
	}
}
