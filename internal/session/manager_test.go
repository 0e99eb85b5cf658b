package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/sheetflow/backend/internal/logging"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/partition"
	"github.com/sheetflow/backend/internal/registry"
	"github.com/sheetflow/backend/internal/testutil"
)

type fixture struct {
	files *registry.Registry
	store *testutil.MockStore
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files := registry.New()
	store := testutil.NewMockStore()
	mgr := NewManager(files, store, t.TempDir(), logging.NewJSONLogger("test", "error"))
	return &fixture{files: files, store: store, mgr: mgr}
}

// addFile registers a completed file whose workbook holds the given
// account repeated rows times.
func (fx *fixture) addFile(t *testing.T, id, account string, rows int, amount float64) {
	t.Helper()

	pairs := make([]interface{}, 0, rows*2)
	for i := 0; i < rows; i++ {
		pairs = append(pairs, account, 1)
	}
	key := "proj-1/" + id + "/" + id + ".xlsx"
	fx.store.Seed(key, testutil.WorkbookBytes(t, []string{"Account", "Amount"}, testutil.AccountRows(pairs...)))

	fx.files.Add(&models.UploadedFile{
		FileID:            id,
		FileName:          id + ".xlsx",
		ObjectKey:         key,
		RowCount:          rows,
		TotalAmount:       amount,
		AccountColumnName: "Account",
		AmountColumnName:  "Amount",
		AccountContents:   []string{account},
		Status:            models.FileStatusCompleted,
	})
}

func (fx *fixture) createSessions(t *testing.T, fileIDs ...string) []*models.Session {
	t.Helper()

	var files []*models.UploadedFile
	for _, id := range fileIDs {
		f, ok := fx.files.Get(id)
		if !ok {
			t.Fatalf("fixture file %s missing", id)
		}
		files = append(files, f)
	}

	partitions, err := partition.Analyze(files)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	outcomes := fx.mgr.CreateFromPartitions(partitions)
	sessions := make([]*models.Session, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Error != "" {
			t.Fatalf("partition %q failed: %s", o.AccountName, o.Error)
		}
		sessions = append(sessions, o.Session)
	}
	return sessions
}

func TestCreateFromPartitions_ConservesFiles(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 10, 100)
	fx.addFile(t, "f2", "A", 20, 200)
	fx.addFile(t, "f3", "B", 5, 50)

	sessions := fx.createSessions(t, "f1", "f2", "f3")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	// The sum of fileCount across sessions equals the distinct input files.
	total := 0
	for _, s := range sessions {
		total += s.TotalFiles
		if s.TotalFiles != len(s.FileIDs) {
			t.Errorf("session %s: TotalFiles %d != |fileIds| %d", s.SessionID, s.TotalFiles, len(s.FileIDs))
		}
	}
	if total != 3 {
		t.Errorf("sessions cover %d files, want 3", total)
	}

	a, b := sessions[0], sessions[1]
	if a.TotalRowCount != 30 || a.TotalAmount != 300 {
		t.Errorf("session A aggregates = %d rows, %v amount", a.TotalRowCount, a.TotalAmount)
	}
	if b.TotalRowCount != 5 || b.TotalAmount != 50 {
		t.Errorf("session B aggregates = %d rows, %v amount", b.TotalRowCount, b.TotalAmount)
	}

	// Member files gained the session id.
	f1, _ := fx.files.Get("f1")
	if f1.SessionID != a.SessionID {
		t.Errorf("f1 sessionId = %q, want %q", f1.SessionID, a.SessionID)
	}
}

func TestCreateFromPartitions_SkipsUnselected(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	fx.addFile(t, "f2", "B", 1, 0)

	f1, _ := fx.files.Get("f1")
	f2, _ := fx.files.Get("f2")
	partitions, err := partition.Analyze([]*models.UploadedFile{f1, f2})
	if err != nil {
		t.Fatal(err)
	}
	partitions[1].Selected = false

	outcomes := fx.mgr.CreateFromPartitions(partitions)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}

	// The unselected partition's file stays unattached.
	f2, _ = fx.files.Get("f2")
	if f2.SessionID != "" {
		t.Errorf("unselected partition's file gained session %q", f2.SessionID)
	}
}

func TestCreateFromPartitions_ZeroApproved(t *testing.T) {
	fx := newFixture(t)

	outcomes := fx.mgr.CreateFromPartitions([]models.Partition{{AccountName: "A", Selected: false}})
	if len(outcomes) != 0 {
		t.Errorf("expected empty result for zero approved partitions, got %v", outcomes)
	}
}

func TestCreateFromPartitions_ConflictReportedPerItem(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	fx.addFile(t, "f2", "B", 1, 0)

	// f1 is already claimed by another session.
	fx.createSessions(t, "f1")

	outcomes := fx.mgr.CreateFromPartitions([]models.Partition{
		{AccountName: "A", SessionName: "again", FileIDs: []string{"f1"}, Selected: true},
		{AccountName: "B", SessionName: "fresh", FileIDs: []string{"f2"}, Selected: true},
	})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Error == "" {
		t.Error("expected conflict error for already-claimed file")
	}
	// The batch continued: the second partition succeeded.
	if outcomes[1].Error != "" || outcomes[1].Session == nil {
		t.Errorf("expected second partition to succeed: %+v", outcomes[1])
	}
}

func TestUpdate_PartialFields(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	s := fx.createSessions(t, "f1")[0]

	name := "renamed"
	updated, err := fx.mgr.Update(s.SessionID, &name, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.SessionName != "renamed" {
		t.Errorf("SessionName = %q", updated.SessionName)
	}

	worker := "alice"
	updated, err = fx.mgr.Update(s.SessionID, nil, &worker)
	if err != nil {
		t.Fatal(err)
	}
	if updated.SessionName != "renamed" || updated.WorkerName != "alice" {
		t.Errorf("partial update clobbered fields: %+v", updated)
	}

	if _, err := fx.mgr.Update("ghost", &name, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMerge_UnionIntoFirst(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 10, 1)
	fx.addFile(t, "f2", "B", 20, 2)
	fx.addFile(t, "f3", "C", 5, 3)

	sessions := fx.createSessions(t, "f1", "f2", "f3")
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	ids := []string{sessions[0].SessionID, sessions[1].SessionID, sessions[2].SessionID}

	merged, err := fx.mgr.Merge(ids)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// All files reassigned to the first listed session.
	if merged.SessionID != ids[0] {
		t.Errorf("merged into %s, want first id %s", merged.SessionID, ids[0])
	}
	if merged.TotalFiles != 3 || len(merged.FileIDs) != 3 {
		t.Errorf("merged file set = %v", merged.FileIDs)
	}
	if merged.TotalRowCount != 35 || merged.TotalAmount != 6 {
		t.Errorf("merged aggregates = %d rows, %v amount", merged.TotalRowCount, merged.TotalAmount)
	}
	if len(merged.AccountNames) != 3 {
		t.Errorf("merged accountNames = %v", merged.AccountNames)
	}

	// The other sessions no longer exist.
	for _, id := range ids[1:] {
		if _, err := fx.mgr.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("session %s should be gone, got %v", id, err)
		}
	}
	if got := len(fx.mgr.List()); got != 1 {
		t.Errorf("expected 1 surviving session, got %d", got)
	}

	for _, fid := range []string{"f1", "f2", "f3"} {
		f, _ := fx.files.Get(fid)
		if f.SessionID != ids[0] {
			t.Errorf("file %s sessionId = %q, want %q", fid, f.SessionID, ids[0])
		}
	}
}

func TestMerge_RequiresTwoSessions(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	s := fx.createSessions(t, "f1")[0]

	if _, err := fx.mgr.Merge([]string{s.SessionID}); err == nil {
		t.Error("expected error merging a single session")
	}
	if _, err := fx.mgr.Merge(nil); err == nil {
		t.Error("expected error merging zero sessions")
	}
}

func TestMerge_RefusesCompletedSession(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 2, 0)
	fx.addFile(t, "f2", "B", 2, 0)
	sessions := fx.createSessions(t, "f1", "f2")

	if _, err := fx.mgr.Complete(sessions[1].SessionID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err := fx.mgr.Merge([]string{sessions[0].SessionID, sessions[1].SessionID})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestDelete_DetachesFiles(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	fx.addFile(t, "f2", "A", 1, 0)
	s := fx.createSessions(t, "f1", "f2")[0]

	if err := fx.mgr.Delete([]string{s.SessionID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := fx.mgr.Get(s.SessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected session gone, got %v", err)
	}

	// Files survive, detached and eligible for re-grouping.
	for _, fid := range []string{"f1", "f2"} {
		f, ok := fx.files.Get(fid)
		if !ok {
			t.Fatalf("file %s was deleted with the session", fid)
		}
		if f.SessionID != "" {
			t.Errorf("file %s still attached to %q", fid, f.SessionID)
		}
	}

	if err := fx.mgr.Delete(nil); err == nil {
		t.Error("expected error deleting zero sessions")
	}
	if err := fx.mgr.Delete([]string{"ghost"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_RefusesCompletedSession(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	fx.addFile(t, "f2", "B", 1, 0)
	sessions := fx.createSessions(t, "f1", "f2")

	if _, err := fx.mgr.Complete(sessions[1].SessionID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	err := fx.mgr.Delete([]string{sessions[0].SessionID, sessions[1].SessionID})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}

	// The batch is atomic: the deletable session survives too.
	for _, s := range sessions {
		if _, err := fx.mgr.Get(s.SessionID); err != nil {
			t.Errorf("session %s should survive the refused batch: %v", s.SessionID, err)
		}
	}
}

func TestStart_Transitions(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 1, 0)
	s := fx.createSessions(t, "f1")[0]

	started, err := fx.mgr.Start(s.SessionID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != models.SessionStatusStarted {
		t.Errorf("Status = %s, want STARTED", started.Status)
	}
	if len(started.StepHistory) != 1 || started.StepHistory[0].Step != "start" {
		t.Errorf("StepHistory = %+v", started.StepHistory)
	}

	// Starting twice is refused.
	if _, err := fx.mgr.Start(s.SessionID); err == nil {
		t.Error("expected error starting a STARTED session")
	}
}

func TestComplete_StagesAccountRows(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 4, 10)
	fx.addFile(t, "f2", "A", 6, 20)
	s := fx.createSessions(t, "f1", "f2")[0]

	if _, err := fx.mgr.Start(s.SessionID); err != nil {
		t.Fatal(err)
	}

	completed, err := fx.mgr.Complete(s.SessionID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if completed.Status != models.SessionStatusCompleted || !completed.IsCompleted {
		t.Errorf("session not terminal: %+v", completed)
	}
	if completed.ProcessedFileCount != 2 {
		t.Errorf("ProcessedFileCount = %d, want 2", completed.ProcessedFileCount)
	}
	if completed.ProcessedRowCount != 10 {
		t.Errorf("ProcessedRowCount = %d, want 10", completed.ProcessedRowCount)
	}
	if completed.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if completed.ExportPath == "" || !strings.HasSuffix(completed.ExportPath, s.SessionID+".xlsx") {
		t.Errorf("ExportPath = %q", completed.ExportPath)
	}
	if len(completed.StepHistory) != 2 {
		t.Errorf("StepHistory = %+v", completed.StepHistory)
	}

	// Irreversible: completing again is a distinct error.
	if _, err := fx.mgr.Complete(s.SessionID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestReset_ClearsStagedState(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 2, 0)
	s := fx.createSessions(t, "f1")[0]

	if _, err := fx.mgr.Start(s.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.mgr.Complete(s.SessionID); err != nil {
		t.Fatal(err)
	}

	reset, err := fx.mgr.Reset(s.SessionID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if reset.Status != models.SessionStatusCreated || reset.IsCompleted {
		t.Errorf("reset session = %+v", reset)
	}
	if reset.ExportPath != "" || reset.CompletedAt != nil || len(reset.StepHistory) != 0 {
		t.Errorf("staged state not cleared: %+v", reset)
	}
	if reset.ProcessedFileCount != 0 || reset.ProcessedRowCount != 0 {
		t.Errorf("processed counters not cleared: %+v", reset)
	}

	// The session can run the lifecycle again.
	if _, err := fx.mgr.Start(s.SessionID); err != nil {
		t.Errorf("restart after reset: %v", err)
	}
}

func TestAggregatesFrozenAtCreation(t *testing.T) {
	fx := newFixture(t)
	fx.addFile(t, "f1", "A", 10, 100)
	s := fx.createSessions(t, "f1")[0]

	// Changing the file afterwards must not move the session's aggregates.
	fx.files.SetProbeResult("f1", []string{"Account", "Amount"}, 999)

	got, err := fx.mgr.Get(s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalRowCount != 10 {
		t.Errorf("TotalRowCount = %d, want frozen 10", got.TotalRowCount)
	}
}
