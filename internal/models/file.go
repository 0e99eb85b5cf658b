// Package models contains domain types for the spreadsheet upload service.
package models

import "time"

// FileStatus represents the ingestion state of an uploaded file.
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "UPLOADED"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusCompleted  FileStatus = "COMPLETED"
	FileStatusFailed     FileStatus = "FAILED"
)

// UploadedFile represents a spreadsheet file uploaded into a project.
type UploadedFile struct {
	FileID            string     `json:"fileId"`
	FileName          string     `json:"fileName"`
	FileSize          int64      `json:"fileSize"`
	ObjectKey         string     `json:"objectKey"`
	RowCount          int        `json:"rowCount"`
	DetectedColumns   []string   `json:"detectedColumns"`
	AccountColumnName string     `json:"accountColumnName,omitempty"`
	AmountColumnName  string     `json:"amountColumnName,omitempty"`
	AccountContents   []string   `json:"accountContents,omitempty"`
	TotalAmount       float64    `json:"totalAmount"`
	Status            FileStatus `json:"status"`
	// UploadSessionID groups the files of one multi-file upload batch;
	// SessionID is the work session the file was partitioned into.
	UploadSessionID string    `json:"uploadSessionId,omitempty"`
	SessionID       string    `json:"sessionId,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`
	Error           string    `json:"error,omitempty"`
}

// PrimaryAccount returns the account value used for grouping the file,
// or "" when no account values have been extracted yet.
func (f *UploadedFile) PrimaryAccount() string {
	if len(f.AccountContents) == 0 {
		return ""
	}
	return f.AccountContents[0]
}

// HasColumnAssignments reports whether both semantic columns are assigned.
func (f *UploadedFile) HasColumnAssignments() bool {
	return f.AccountColumnName != "" && f.AmountColumnName != ""
}

// Clone returns a deep copy so callers can hand files across goroutines.
func (f *UploadedFile) Clone() *UploadedFile {
	c := *f
	c.DetectedColumns = append([]string(nil), f.DetectedColumns...)
	c.AccountContents = append([]string(nil), f.AccountContents...)
	return &c
}
