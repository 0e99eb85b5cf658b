package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	content := []byte("workbook bytes")
	size, err := store.Put("proj-1/abc/report.xlsx", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size)
	}

	if !store.Exists("proj-1/abc/report.xlsx") {
		t.Error("expected object to exist after Put")
	}

	r, err := store.Get("proj-1/abc/report.xlsx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if !bytes.Equal(got, content) {
		t.Errorf("round-trip mismatch: got %q", got)
	}

	if err := store.Delete("proj-1/abc/report.xlsx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists("proj-1/abc/report.xlsx") {
		t.Error("expected object gone after Delete")
	}

	// Deleting again is not an error.
	if err := store.Delete("proj-1/abc/report.xlsx"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLocalStore_GetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if _, err := store.Get("nope/missing.xlsx"); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	for _, key := range []string{"", "../outside", "/etc/passwd", "a/../../b"} {
		if _, err := store.Put(key, strings.NewReader("x")); err == nil {
			t.Errorf("expected Put(%q) to be rejected", key)
		}
	}
}

func TestLocalStore_PutOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if _, err := store.Put("k/file.xlsx", strings.NewReader("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put("k/file.xlsx", strings.NewReader("second")); err != nil {
		t.Fatal(err)
	}

	r, err := store.Get("k/file.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if string(got) != "second" {
		t.Errorf("expected overwrite, got %q", got)
	}
}
