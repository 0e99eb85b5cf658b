package partition

import (
	"testing"

	"github.com/sheetflow/backend/internal/models"
)

func file(id, account string, rows int, amount float64) *models.UploadedFile {
	f := &models.UploadedFile{
		FileID:            id,
		FileName:          id + ".xlsx",
		RowCount:          rows,
		TotalAmount:       amount,
		AccountColumnName: "Account",
		Status:            models.FileStatusCompleted,
	}
	if account != "" {
		f.AccountContents = []string{account}
	}
	return f
}

func TestAnalyze_GroupsByAccount(t *testing.T) {
	// Three files, accounts A, A, B with row counts 10, 20, 5.
	files := []*models.UploadedFile{
		file("f1", "A", 10, 100),
		file("f2", "A", 20, 200),
		file("f3", "B", 5, 50),
	}

	partitions, err := Analyze(files)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(partitions))
	}

	a := partitions[0]
	if a.AccountName != "A" || a.FileCount != 2 || a.TotalRows != 30 || a.TotalAmount != 300 {
		t.Errorf("partition A = %+v", a)
	}
	if len(a.FileIDs) != 2 || a.FileIDs[0] != "f1" || a.FileIDs[1] != "f2" {
		t.Errorf("partition A fileIds = %v", a.FileIDs)
	}

	b := partitions[1]
	if b.AccountName != "B" || b.FileCount != 1 || b.TotalRows != 5 || b.TotalAmount != 50 {
		t.Errorf("partition B = %+v", b)
	}

	// No file dropped or duplicated.
	total := 0
	for _, p := range partitions {
		total += p.FileCount
	}
	if total != len(files) {
		t.Errorf("partitions cover %d files, want %d", total, len(files))
	}
}

func TestAnalyze_DefaultNamesAndSelection(t *testing.T) {
	partitions, err := Analyze([]*models.UploadedFile{
		file("f1", "Acme", 1, 0),
		file("f2", "Acme", 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	if partitions[0].SessionName != "Acme (2 files)" {
		t.Errorf("SessionName = %q", partitions[0].SessionName)
	}
	if partitions[0].WorkerName != "" {
		t.Errorf("WorkerName should default empty, got %q", partitions[0].WorkerName)
	}
	if !partitions[0].Selected {
		t.Error("partitions should default to selected")
	}
}

func TestAnalyze_FirstSeenOrder(t *testing.T) {
	partitions, err := Analyze([]*models.UploadedFile{
		file("f1", "Z", 1, 0),
		file("f2", "A", 1, 0),
		file("f3", "Z", 1, 0),
		file("f4", "M", 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Z", "A", "M"}
	if len(partitions) != len(want) {
		t.Fatalf("expected %d partitions, got %d", len(want), len(partitions))
	}
	for i, account := range want {
		if partitions[i].AccountName != account {
			t.Errorf("partition %d = %q, want %q", i, partitions[i].AccountName, account)
		}
	}
}

func TestAnalyze_RejectsUnassignedAccountColumn(t *testing.T) {
	bare := &models.UploadedFile{FileID: "f1", FileName: "bare.xlsx"}

	_, err := Analyze([]*models.UploadedFile{bare})
	if err == nil {
		t.Fatal("expected error for unassigned account column")
	}
}

func TestAnalyze_FileWithoutExtractedValues(t *testing.T) {
	// Assigned column but extraction not yet run: the file groups under
	// its own name instead of disappearing.
	f := file("f1", "", 3, 0)

	partitions, err := Analyze([]*models.UploadedFile{f})
	if err != nil {
		t.Fatal(err)
	}
	if len(partitions) != 1 || partitions[0].AccountName != "f1.xlsx" {
		t.Errorf("partitions = %+v", partitions)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	partitions, err := Analyze(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(partitions) != 0 {
		t.Errorf("expected no partitions, got %v", partitions)
	}
}
