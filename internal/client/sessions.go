package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/session"
)

// ErrDeclined is returned when a destructive operation was offered for
// confirmation and the confirmer said no. No request is sent.
var ErrDeclined = errors.New("operation declined")

// Confirmer approves destructive session operations before any request
// leaves the client.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AutoConfirm approves every prompt. Useful for scripts and tests.
var AutoConfirm = ConfirmerFunc(func(context.Context, string) (bool, error) { return true, nil })

func (c *Client) confirm(ctx context.Context, confirmer Confirmer, prompt string) error {
	if confirmer == nil {
		return nil
	}
	ok, err := confirmer.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirming: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// ListFiles returns the project's uploaded files in upload order.
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]*models.UploadedFile, error) {
	var files []*models.UploadedFile
	path := fmt.Sprintf("/api/projects/%s/upload/files", projectID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

type updateColumnsRequest struct {
	AccountColumnName *string `json:"accountColumnName,omitempty"`
	AmountColumnName  *string `json:"amountColumnName,omitempty"`
}

// UpdateColumns assigns the account and/or amount column of a file. Nil
// means "leave unchanged". When neither field is set the call is a no-op
// and no request is sent.
func (c *Client) UpdateColumns(ctx context.Context, projectID, fileID string, accountColumn, amountColumn *string) (*models.UploadedFile, error) {
	if fileID == "" {
		return nil, &ValidationError{Message: "fileId is required"}
	}
	if accountColumn == nil && amountColumn == nil {
		return nil, nil
	}

	req := updateColumnsRequest{AccountColumnName: accountColumn, AmountColumnName: amountColumn}

	var file models.UploadedFile
	path := fmt.Sprintf("/api/projects/%s/upload/files/%s/columns", projectID, fileID)
	if err := c.doJSON(ctx, http.MethodPut, path, req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile removes an uploaded file and its stored object.
func (c *Client) DeleteFile(ctx context.Context, projectID, fileID string) error {
	if fileID == "" {
		return &ValidationError{Message: "fileId is required"}
	}
	path := fmt.Sprintf("/api/projects/%s/upload/files/%s", projectID, fileID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

type analyzeRequest struct {
	FileIDs []string `json:"fileIds"`
}

type analyzeResponse struct {
	Partitions []models.Partition `json:"partitions"`
}

// AnalyzePartitions groups the given files into session partitions by
// their primary account. At least one file id is required.
func (c *Client) AnalyzePartitions(ctx context.Context, projectID string, fileIDs []string) ([]models.Partition, error) {
	if len(fileIDs) == 0 {
		return nil, &ValidationError{Message: "at least one file must be selected"}
	}

	var resp analyzeResponse
	path := fmt.Sprintf("/api/projects/%s/upload/analyze-partitions", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, analyzeRequest{FileIDs: fileIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Partitions, nil
}

type createSessionsRequest struct {
	Partitions []models.Partition `json:"partitions"`
}

type createSessionsResponse struct {
	Results []session.CreateOutcome `json:"results"`
}

// CreateSessions submits the approved partitions for session creation and
// returns one outcome per partition.
func (c *Client) CreateSessions(ctx context.Context, projectID string, partitions []models.Partition) ([]session.CreateOutcome, error) {
	if len(partitions) == 0 {
		return nil, &ValidationError{Message: "at least one partition is required"}
	}

	var resp createSessionsResponse
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/batch", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, createSessionsRequest{Partitions: partitions}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListSessions returns the project's sessions in creation order.
func (c *Client) ListSessions(ctx context.Context, projectID string) ([]*models.Session, error) {
	var sessions []*models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions", projectID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

type updateSessionRequest struct {
	SessionName *string `json:"sessionName,omitempty"`
	WorkerName  *string `json:"workerName,omitempty"`
}

// UpdateSession renames a session and/or reassigns its worker. When
// current is given and neither value differs from it, the call
// short-circuits and returns current without touching the network.
func (c *Client) UpdateSession(ctx context.Context, projectID string, current *models.Session, sessionID string, sessionName, workerName *string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &ValidationError{Message: "sessionId is required"}
	}
	if current != nil {
		if sessionName != nil && *sessionName == current.SessionName {
			sessionName = nil
		}
		if workerName != nil && *workerName == current.WorkerName {
			workerName = nil
		}
	}
	if sessionName == nil && workerName == nil {
		return current, nil
	}

	req := updateSessionRequest{SessionName: sessionName, WorkerName: workerName}

	var updated models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/%s", projectID, sessionID)
	if err := c.doJSON(ctx, http.MethodPut, path, req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

type sessionIDsRequest struct {
	SessionIDs []string `json:"sessionIds"`
}

// MergeSessions merges two or more sessions into the first listed one.
// Fewer than two ids is a validation error raised before any request.
func (c *Client) MergeSessions(ctx context.Context, projectID string, sessionIDs []string, confirmer Confirmer) (*models.Session, error) {
	if len(sessionIDs) < 2 {
		return nil, &ValidationError{Message: "merging requires at least two sessions"}
	}
	prompt := fmt.Sprintf("Merge %d sessions into %s?", len(sessionIDs), sessionIDs[0])
	if err := c.confirm(ctx, confirmer, prompt); err != nil {
		return nil, err
	}

	var merged models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/merge", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, sessionIDsRequest{SessionIDs: sessionIDs}, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// DeleteSessions deletes the given sessions, detaching their files. At
// least one id is required.
func (c *Client) DeleteSessions(ctx context.Context, projectID string, sessionIDs []string, confirmer Confirmer) error {
	if len(sessionIDs) == 0 {
		return &ValidationError{Message: "at least one session must be selected"}
	}
	prompt := fmt.Sprintf("Delete %d session(s)? Files are kept and detached.", len(sessionIDs))
	if err := c.confirm(ctx, confirmer, prompt); err != nil {
		return err
	}

	path := fmt.Sprintf("/api/projects/%s/upload/sessions/batch", projectID)
	return c.doJSON(ctx, http.MethodDelete, path, sessionIDsRequest{SessionIDs: sessionIDs}, nil)
}

// StartSession starts exactly one session. Passing any other number of
// ids is a validation error raised before any request.
func (c *Client) StartSession(ctx context.Context, projectID string, sessionIDs []string) (*models.Session, error) {
	if len(sessionIDs) != 1 {
		return nil, &ValidationError{Message: "exactly one session must be selected to start"}
	}

	var started models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/%s/start", projectID, sessionIDs[0])
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// CompleteSession completes exactly one session. Completion is
// irreversible, so the confirmer is consulted first.
func (c *Client) CompleteSession(ctx context.Context, projectID string, sessionIDs []string, confirmer Confirmer) (*models.Session, error) {
	if len(sessionIDs) != 1 {
		return nil, &ValidationError{Message: "exactly one session must be selected to complete"}
	}
	prompt := fmt.Sprintf("Complete session %s? This cannot be undone.", sessionIDs[0])
	if err := c.confirm(ctx, confirmer, prompt); err != nil {
		return nil, err
	}

	var completed models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/%s/complete", projectID, sessionIDs[0])
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &completed); err != nil {
		return nil, err
	}
	return &completed, nil
}

// ResetSession returns a session to its created state, clearing staged
// progress.
func (c *Client) ResetSession(ctx context.Context, projectID, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &ValidationError{Message: "sessionId is required"}
	}

	var reset models.Session
	path := fmt.Sprintf("/api/projects/%s/upload/sessions/%s/reset", projectID, sessionID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &reset); err != nil {
		return nil, err
	}
	return &reset, nil
}
