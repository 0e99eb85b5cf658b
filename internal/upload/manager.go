// Package upload manages presigned upload slots and asynchronous
// ingestion jobs for finalized files.
package upload

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/probe"
	"github.com/sheetflow/backend/internal/storage"
)

// Slot is a pending-upload record allocated before any bytes move. It is
// consumed by finalize and garbage-collected if the transfer never happens.
type Slot struct {
	UploadID  string    `json:"uploadId"`
	ProjectID string    `json:"projectId"`
	SessionID string    `json:"sessionId"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize"`
	ObjectKey string    `json:"objectKey"`
	WriteURL  string    `json:"writeUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is the slice of the project file list the ingestion job writes to.
type Registry interface {
	SetStatus(fileID string, status models.FileStatus, errMsg string)
	SetProbeResult(fileID string, columns []string, rowCount int)
}

// Job tracks one asynchronous ingestion run.
type Job struct {
	UploadID      string
	FileID        string
	FileName      string
	Status        models.FileStatus
	Progress      float64
	Stage         string
	ProcessedRows int
	TotalRows     int
	Error         string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Manager allocates upload slots and runs ingestion jobs.
type Manager struct {
	mu         sync.RWMutex
	slots      map[string]*Slot // by uploadID
	byObject   map[string]*Slot // by objectKey
	jobs       map[string]*Job  // by uploadID
	store      storage.Store
	logger     *slog.Logger
	publicBase string
}

// NewManager creates an upload manager. publicBase is the externally
// reachable base URL embedded in write URLs.
func NewManager(store storage.Store, publicBase string, logger *slog.Logger) *Manager {
	return &Manager{
		slots:      make(map[string]*Slot),
		byObject:   make(map[string]*Slot),
		jobs:       make(map[string]*Job),
		store:      store,
		logger:     logger,
		publicBase: publicBase,
	}
}

// RequestSlot allocates a pending-upload record. When no session hint is
// given a fresh session id is minted; callers must use the returned value,
// never their own default.
func (m *Manager) RequestSlot(projectID, fileName string, fileSize int64, sessionHint string) (*Slot, error) {
	if fileName == "" {
		return nil, fmt.Errorf("fileName is required")
	}
	if !probe.IsSupportedType(fileName) {
		return nil, probe.ErrUnsupportedType
	}

	uploadID := uuid.New().String()
	sessionID := sessionHint
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	objectKey := fmt.Sprintf("%s/%s/%s", projectID, uploadID, fileName)

	slot := &Slot{
		UploadID:  uploadID,
		ProjectID: projectID,
		SessionID: sessionID,
		FileName:  fileName,
		FileSize:  fileSize,
		ObjectKey: objectKey,
		WriteURL:  m.publicBase + "/api/objects/" + escapeKey(objectKey),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.slots[uploadID] = slot
	m.byObject[objectKey] = slot
	m.mu.Unlock()

	return slot, nil
}

// SlotForObject looks up the pending slot backing a write URL.
func (m *Manager) SlotForObject(objectKey string) (*Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.byObject[objectKey]
	return slot, ok
}

// FinalizeRequest carries the payload converting a slot into a file.
type FinalizeRequest struct {
	UploadID  string `json:"uploadId"`
	SessionID string `json:"sessionId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	ObjectKey string `json:"objectKey"`
}

// Finalize consumes a slot and produces the file record. It requires the
// transferred object to be present: finalize before transfer is a protocol
// violation. A rejected finalize leaves the slot intact so the caller can
// transfer and retry; only a successful finalize consumes it.
func (m *Manager) Finalize(projectID string, req FinalizeRequest) (*models.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[req.UploadID]
	if !ok {
		return nil, fmt.Errorf("unknown upload: %s", req.UploadID)
	}
	if slot.ProjectID != projectID {
		return nil, fmt.Errorf("upload %s does not belong to project %s", req.UploadID, projectID)
	}
	if !m.store.Exists(slot.ObjectKey) {
		return nil, fmt.Errorf("object %s has not been transferred", slot.ObjectKey)
	}

	delete(m.slots, req.UploadID)
	delete(m.byObject, slot.ObjectKey)

	file := &models.UploadedFile{
		FileID:          uuid.New().String(),
		FileName:        slot.FileName,
		FileSize:        req.FileSize,
		ObjectKey:       slot.ObjectKey,
		Status:          models.FileStatusUploaded,
		UploadSessionID: req.SessionID,
		UploadedAt:      time.Now(),
	}
	if file.FileSize == 0 {
		file.FileSize = slot.FileSize
	}
	if file.UploadSessionID == "" {
		file.UploadSessionID = slot.SessionID
	}

	return file, nil
}

// StartJob begins asynchronous ingestion of a finalized file: it reads the
// object back, discovers columns and row count, and writes the result into
// the project registry.
func (m *Manager) StartJob(uploadID string, file *models.UploadedFile, reg Registry) *Job {
	job := &Job{
		UploadID:  uploadID,
		FileID:    file.FileID,
		FileName:  file.FileName,
		Status:    models.FileStatusProcessing,
		Stage:     "queued",
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[uploadID] = job
	m.mu.Unlock()

	reg.SetStatus(file.FileID, models.FileStatusProcessing, "")

	go m.runJob(job, file.ObjectKey, reg)

	return job
}

func (m *Manager) runJob(job *Job, objectKey string, reg Registry) {
	m.logger.Info("ingestion started", "upload", shortID(job.UploadID), "file", job.FileName)

	// Stage 1: fetch the object from storage.
	m.updateJob(job, "reading object", 0)
	r, err := m.store.Get(objectKey)
	if err != nil {
		m.failJob(job, reg, fmt.Sprintf("reading object: %v", err))
		return
	}
	m.updateJob(job, "reading object", 100)

	// Stage 2: scan headers and rows.
	m.updateJob(job, "scanning workbook", 0)
	result, err := probe.ProbeReader(r, job.FileName)
	r.Close()
	if err != nil {
		m.failJob(job, reg, fmt.Sprintf("scanning workbook: %v", err))
		return
	}
	m.updateJob(job, "scanning workbook", 100)

	// Stage 3: publish results.
	m.updateJob(job, "finalizing", 50)
	reg.SetProbeResult(job.FileID, result.Columns, result.RowCount)
	reg.SetStatus(job.FileID, models.FileStatusCompleted, "")

	m.mu.Lock()
	job.Status = models.FileStatusCompleted
	job.Progress = 100
	job.Stage = "done"
	job.ProcessedRows = result.RowCount
	job.TotalRows = result.RowCount
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.logger.Info("ingestion complete", "upload", shortID(job.UploadID),
		"file", job.FileName, "rows", result.RowCount, "columns", len(result.Columns))
}

// updateJob applies staged progress: reading 0-40, scanning 40-90,
// finalizing 90-100.
func (m *Manager) updateJob(job *Job, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Stage = stage
	switch stage {
	case "reading object":
		job.Progress = stageProgress * 0.4
	case "scanning workbook":
		job.Progress = 40 + stageProgress*0.5
	case "finalizing":
		job.Progress = 90 + stageProgress*0.1
	}
}

func (m *Manager) failJob(job *Job, reg Registry, reason string) {
	reg.SetStatus(job.FileID, models.FileStatusFailed, reason)

	m.mu.Lock()
	job.Status = models.FileStatusFailed
	job.Error = reason
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.logger.Error("ingestion failed", "upload", shortID(job.UploadID),
		"file", job.FileName, "error", reason)
}

// GetStatus returns the polled view of an ingestion job.
func (m *Manager) GetStatus(uploadID string) (models.UploadStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[uploadID]
	if !ok {
		return models.UploadStatus{}, false
	}
	return models.UploadStatus{
		UploadID:      job.UploadID,
		FileName:      job.FileName,
		Status:        job.Status,
		Progress:      job.Progress,
		ProcessedRows: job.ProcessedRows,
		TotalRows:     job.TotalRows,
		Error:         job.Error,
	}, true
}

// ActiveJobs counts ingestion jobs that have not reached a terminal state.
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, job := range m.jobs {
		if job.CompletedAt == nil {
			active++
		}
	}
	return active
}

// CleanupOldJobs drops terminal jobs older than maxAge and expires slots
// that were never finalized.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
	for id, slot := range m.slots {
		if slot.CreatedAt.Before(cutoff) {
			delete(m.byObject, slot.ObjectKey)
			delete(m.slots, id)
		}
	}
}

// escapeKey escapes each path segment of an object key while keeping the
// separators, so the write URL stays routable.
func escapeKey(objectKey string) string {
	u := url.URL{Path: objectKey}
	return u.EscapedPath()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
