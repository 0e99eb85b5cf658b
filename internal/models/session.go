package models

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "CREATED"
	SessionStatusStarted   SessionStatus = "STARTED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// StepEntry records a lifecycle transition applied to a session.
type StepEntry struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

// Session is a named unit grouping uploaded files that share an account value.
// Aggregates are frozen at creation (and recomputed on merge), not live.
type Session struct {
	SessionID     string        `json:"sessionId"`
	SessionName   string        `json:"sessionName"`
	WorkerName    string        `json:"workerName,omitempty"`
	FileIDs       []string      `json:"fileIds"`
	AccountNames  []string      `json:"accountNames"`
	TotalFiles    int           `json:"totalFiles"`
	TotalRowCount int           `json:"totalRowCount"`
	TotalAmount   float64       `json:"totalAmount"`
	Status        SessionStatus `json:"status"`
	IsCompleted   bool          `json:"isCompleted"`
	ExportPath    string        `json:"exportPath,omitempty"`
	StepHistory   []StepEntry   `json:"stepHistory,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`

	// Extraction counters, populated by complete.
	ProcessedFileCount int `json:"processedFileCount,omitempty"`
	ProcessedRowCount  int `json:"processedRowCount,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	c := *s
	c.FileIDs = append([]string(nil), s.FileIDs...)
	c.AccountNames = append([]string(nil), s.AccountNames...)
	c.StepHistory = append([]StepEntry(nil), s.StepHistory...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
