// Package session implements the session lifecycle: create, edit, merge,
// delete, start, complete, reset.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/probe"
	"github.com/sheetflow/backend/internal/registry"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/xuri/excelize/v2"
)

// ErrNotFound marks lookups of unknown sessions.
var ErrNotFound = errors.New("session not found")

// ErrAlreadyCompleted marks attempts to re-complete a terminal session.
var ErrAlreadyCompleted = errors.New("session already completed")

// Manager holds the sessions of one project. All methods are safe for
// concurrent use.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	order     []string
	files     *registry.Registry
	store     storage.Store
	exportDir string
	logger    *slog.Logger
}

// NewManager creates a session manager over a project's file registry.
func NewManager(files *registry.Registry, store storage.Store, exportDir string, logger *slog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*models.Session),
		files:     files,
		store:     store,
		exportDir: exportDir,
		logger:    logger,
	}
}

// CreateOutcome reports the per-partition result of a batch create.
type CreateOutcome struct {
	AccountName string          `json:"accountName"`
	SessionName string          `json:"sessionName"`
	Session     *models.Session `json:"session,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// CreateFromPartitions materializes one session per approved partition.
// Unselected partitions are skipped. A failing partition does not abort
// the batch; its outcome carries the error instead. Zero approved
// partitions yields an empty result, not an error.
func (m *Manager) CreateFromPartitions(partitions []models.Partition) []CreateOutcome {
	outcomes := make([]CreateOutcome, 0, len(partitions))

	for _, p := range partitions {
		if !p.Selected {
			continue
		}
		outcome := CreateOutcome{AccountName: p.AccountName, SessionName: p.SessionName}

		session, err := m.createOne(p)
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Session = session
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

func (m *Manager) createOne(p models.Partition) (*models.Session, error) {
	if len(p.FileIDs) == 0 {
		return nil, fmt.Errorf("partition %q has no files", p.AccountName)
	}
	if err := m.files.ValidateForSession(p.FileIDs); err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()

	// Claim the files first; roll back on conflict so a half-claimed
	// partition leaves no trace.
	var claimed []string
	for _, fileID := range p.FileIDs {
		if err := m.files.AttachSession(fileID, sessionID); err != nil {
			for _, id := range claimed {
				m.files.DetachSession(id)
			}
			return nil, err
		}
		claimed = append(claimed, fileID)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:   sessionID,
		SessionName: p.SessionName,
		WorkerName:  p.WorkerName,
		FileIDs:     append([]string(nil), p.FileIDs...),
		Status:      models.SessionStatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.computeAggregates(session)

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.order = append(m.order, sessionID)
	m.mu.Unlock()

	m.logger.Info("session created", "session", shortID(sessionID),
		"name", session.SessionName, "files", session.TotalFiles)

	return session.Clone(), nil
}

// computeAggregates freezes the member-file aggregates onto the session.
// Aggregates are not live: a later change to a member file does not update
// an existing session.
func (m *Manager) computeAggregates(s *models.Session) {
	s.TotalFiles = len(s.FileIDs)
	s.TotalRowCount = 0
	s.TotalAmount = 0
	s.AccountNames = nil

	seen := make(map[string]struct{})
	for _, fileID := range s.FileIDs {
		file, ok := m.files.Get(fileID)
		if !ok {
			continue
		}
		s.TotalRowCount += file.RowCount
		s.TotalAmount += file.TotalAmount
		if account := file.PrimaryAccount(); account != "" {
			if _, dup := seen[account]; !dup {
				seen[account] = struct{}{}
				s.AccountNames = append(s.AccountNames, account)
			}
		}
	}
}

// Get returns a copy of a session.
func (m *Manager) Get(sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return session.Clone(), nil
}

// List returns all sessions in creation order.
func (m *Manager) List() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.Session, 0, len(m.order))
	for _, id := range m.order {
		list = append(list, m.sessions[id].Clone())
	}
	return list
}

// Update applies a partial rename/worker reassignment. Nil fields are
// left unchanged.
func (m *Manager) Update(sessionID string, name, worker *string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	if name != nil {
		session.SessionName = *name
	}
	if worker != nil {
		session.WorkerName = *worker
	}
	session.UpdatedAt = time.Now()

	return session.Clone(), nil
}

// Merge reassigns the files of every listed session into the first one and
// deletes the rest. Destructive: there is no undo. Completed sessions
// refuse merging.
func (m *Manager) Merge(sessionIDs []string) (*models.Session, error) {
	if len(sessionIDs) < 2 {
		return nil, fmt.Errorf("merge requires at least 2 sessions, got %d", len(sessionIDs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range sessionIDs {
		session, ok := m.sessions[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if session.Status == models.SessionStatusCompleted {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
		}
	}

	target := m.sessions[sessionIDs[0]]

	for _, id := range sessionIDs[1:] {
		source := m.sessions[id]
		for _, fileID := range source.FileIDs {
			m.files.DetachSession(fileID)
			if err := m.files.AttachSession(fileID, target.SessionID); err != nil {
				return nil, err
			}
			target.FileIDs = append(target.FileIDs, fileID)
		}
		delete(m.sessions, id)
		m.removeFromOrder(id)
	}

	m.computeAggregates(target)
	target.UpdatedAt = time.Now()

	m.logger.Info("sessions merged", "target", shortID(target.SessionID),
		"merged", len(sessionIDs)-1, "files", target.TotalFiles)

	return target.Clone(), nil
}

// Delete removes sessions and detaches their files. Files are never
// deleted here; detached files become eligible for re-grouping. Completed
// sessions are refused, matching Merge: a finished run is an immutable
// record.
func (m *Manager) Delete(sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return fmt.Errorf("delete requires at least 1 session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range sessionIDs {
		session, ok := m.sessions[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if session.Status == models.SessionStatusCompleted {
			return fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
		}
	}

	for _, id := range sessionIDs {
		session := m.sessions[id]
		for _, fileID := range session.FileIDs {
			m.files.DetachSession(fileID)
		}
		delete(m.sessions, id)
		m.removeFromOrder(id)
	}

	return nil
}

// Start transitions CREATED -> STARTED and hands the session to the next
// pipeline stage. Irreversible from this subsystem's perspective.
func (m *Manager) Start(sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if session.Status != models.SessionStatusCreated {
		return nil, fmt.Errorf("session %s cannot start from status %s", sessionID, session.Status)
	}

	now := time.Now()
	session.Status = models.SessionStatusStarted
	session.UpdatedAt = now
	session.StepHistory = append(session.StepHistory, models.StepEntry{
		Step:      "start",
		Status:    "STARTED",
		StartedAt: now,
	})

	m.logger.Info("session handed to pipeline", "session", shortID(sessionID),
		"name", session.SessionName, "files", session.TotalFiles)

	return session.Clone(), nil
}

// Complete transitions a session to COMPLETED, re-reads every member file
// from the object store and stages its account-level rows. Explicitly
// irreversible; callers confirm before invoking.
func (m *Manager) Complete(sessionID string) (*models.Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if session.Status == models.SessionStatusCompleted {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, sessionID)
	}
	fileIDs := append([]string(nil), session.FileIDs...)
	accounts := append([]string(nil), session.AccountNames...)
	m.mu.Unlock()

	// Prior staged data for the session is invalidated before restaging.
	processedFiles := 0
	processedRows := 0
	for _, fileID := range fileIDs {
		file, ok := m.files.Get(fileID)
		if !ok {
			return nil, fmt.Errorf("file not found: %s", fileID)
		}
		rows, err := m.stageFile(file, accounts)
		if err != nil {
			return nil, fmt.Errorf("staging %s: %w", file.FileName, err)
		}
		processedFiles++
		processedRows += rows
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another caller may have completed it while extraction ran.
	session, ok = m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, sessionID)
	}

	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.IsCompleted = true
	session.CompletedAt = &now
	session.UpdatedAt = now
	session.ProcessedFileCount = processedFiles
	session.ProcessedRowCount = processedRows
	session.StepHistory = append(session.StepHistory, models.StepEntry{
		Step:      "complete",
		Status:    "COMPLETED",
		StartedAt: now,
	})

	if path, err := m.writeExport(session); err != nil {
		m.logger.Warn("export artifact not written", "session", shortID(sessionID), "error", err)
	} else {
		session.ExportPath = path
	}

	m.logger.Info("session completed", "session", shortID(sessionID),
		"files", processedFiles, "rows", processedRows)

	return session.Clone(), nil
}

// stageFile counts the account-level rows of one member file.
func (m *Manager) stageFile(file *models.UploadedFile, accounts []string) (int, error) {
	r, err := m.store.Get(file.ObjectKey)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return probe.CountAccountRows(r, file.FileName, file.AccountColumnName, accounts)
}

// writeExport writes the completion summary workbook. Caller holds the lock.
func (m *Manager) writeExport(session *models.Session) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Session", session.SessionName},
		{"Worker", session.WorkerName},
		{"Accounts", strings.Join(session.AccountNames, ", ")},
		{"Files", session.ProcessedFileCount},
		{"Rows", session.ProcessedRowCount},
		{"Total amount", session.TotalAmount},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", err
		}
	}

	path := fmt.Sprintf("%s/%s.xlsx", m.exportDir, session.SessionID)
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// Reset clears staged completion state and returns the session to CREATED.
func (m *Manager) Reset(sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	session.Status = models.SessionStatusCreated
	session.IsCompleted = false
	session.CompletedAt = nil
	session.ExportPath = ""
	session.ProcessedFileCount = 0
	session.ProcessedRowCount = 0
	session.StepHistory = nil
	session.UpdatedAt = time.Now()

	return session.Clone(), nil
}

func (m *Manager) removeFromOrder(sessionID string) {
	for i, id := range m.order {
		if id == sessionID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
