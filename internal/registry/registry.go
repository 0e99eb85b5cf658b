// Package registry maintains the in-memory file list for a project.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sheetflow/backend/internal/models"
)

// ColumnUpdate is a partial update of a file's column assignments and the
// derived values extracted from them. Nil fields are left unchanged.
type ColumnUpdate struct {
	AccountColumnName *string
	AmountColumnName  *string
	AccountContents   []string
	TotalAmount       *float64
}

// Registry is the authoritative in-memory file list for one project.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	files    map[string]*models.UploadedFile
	order    []string
	selected map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		files:    make(map[string]*models.UploadedFile),
		selected: make(map[string]struct{}),
	}
}

// Add registers a file. Re-adding an existing id replaces the record but
// keeps its position in the listing order.
func (r *Registry) Add(file *models.UploadedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[file.FileID]; !ok {
		r.order = append(r.order, file.FileID)
	}
	r.files[file.FileID] = file.Clone()
}

// Remove deletes a file and drops it from the selection.
func (r *Registry) Remove(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[fileID]; !ok {
		return fmt.Errorf("file not found: %s", fileID)
	}
	delete(r.files, fileID)
	delete(r.selected, fileID)
	for i, id := range r.order {
		if id == fileID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of a file record.
func (r *Registry) Get(fileID string) (*models.UploadedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.files[fileID]
	if !ok {
		return nil, false
	}
	return file.Clone(), true
}

// List returns all files in insertion order.
func (r *Registry) List() []*models.UploadedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*models.UploadedFile, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.files[id].Clone())
	}
	return list
}

// UpdateColumns applies a partial column update. Assigning a new account
// column clears previously extracted account contents unless the update
// carries replacements; likewise for the amount column and total amount.
// Stale derived values from an earlier column choice must never survive a
// reassignment.
func (r *Registry) UpdateColumns(fileID string, update ColumnUpdate) (*models.UploadedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}

	if update.AccountColumnName != nil {
		file.AccountColumnName = *update.AccountColumnName
		file.AccountContents = nil
	}
	if update.AmountColumnName != nil {
		file.AmountColumnName = *update.AmountColumnName
		file.TotalAmount = 0
	}
	if update.AccountContents != nil {
		file.AccountContents = append([]string(nil), update.AccountContents...)
	}
	if update.TotalAmount != nil {
		file.TotalAmount = *update.TotalAmount
	}

	return file.Clone(), nil
}

// SetStatus updates ingestion state, recording the failure reason when
// the status is FAILED.
func (r *Registry) SetStatus(fileID string, status models.FileStatus, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok {
		return
	}
	file.Status = status
	file.Error = errMsg
}

// SetProbeResult records the columns and row count discovered by ingestion.
func (r *Registry) SetProbeResult(fileID string, columns []string, rowCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok {
		return
	}
	file.DetectedColumns = append([]string(nil), columns...)
	file.RowCount = rowCount
}

// AttachSession links a file to a session. A file already attached to a
// different session is refused.
func (r *Registry) AttachSession(fileID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok {
		return fmt.Errorf("file not found: %s", fileID)
	}
	if file.SessionID != "" && file.SessionID != sessionID {
		return fmt.Errorf("file %s already belongs to session %s", fileID, file.SessionID)
	}
	file.SessionID = sessionID
	return nil
}

// DetachSession unlinks a file from its session, leaving the file itself
// intact and eligible for re-grouping.
func (r *Registry) DetachSession(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if file, ok := r.files[fileID]; ok {
		file.SessionID = ""
	}
}

// Select marks a file selected.
func (r *Registry) Select(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[fileID]; !ok {
		return fmt.Errorf("file not found: %s", fileID)
	}
	r.selected[fileID] = struct{}{}
	return nil
}

// Deselect unmarks a file. Deselecting an unselected file is a no-op.
func (r *Registry) Deselect(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selected, fileID)
}

// SelectAll selects every registered file.
func (r *Registry) SelectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.files {
		r.selected[id] = struct{}{}
	}
}

// ClearSelection empties the selection.
func (r *Registry) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = make(map[string]struct{})
}

// Selected returns the ids of selected files in listing order.
func (r *Registry) Selected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.selected))
	for _, id := range r.order {
		if _, ok := r.selected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ValidateForSession checks that every listed file exists and has both
// columns assigned, returning an error that names each offender.
func (r *Registry) ValidateForSession(fileIDs []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing, incomplete []string
	for _, id := range fileIDs {
		file, ok := r.files[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if !file.HasColumnAssignments() {
			incomplete = append(incomplete, file.FileName)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unknown files: %v", missing)
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("files missing column assignments: %v", incomplete)
	}
	return nil
}
