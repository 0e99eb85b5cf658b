// handlers_session.go - Partition analysis and session lifecycle handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/partition"
	"github.com/sheetflow/backend/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	projects *ProjectHub
	metrics  *metrics.Metrics
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(projects *ProjectHub, m *metrics.Metrics) SessionHandler {
	return &SessionHandlerImpl{
		projects: projects,
		metrics:  m,
	}
}

func (h *SessionHandlerImpl) countOp(op string) {
	if h.metrics != nil {
		h.metrics.SessionOp(op)
	}
}

type analyzePartitionsRequest struct {
	FileIDs []string `json:"fileIds"`
}

type analyzePartitionsResponse struct {
	Partitions []models.Partition `json:"partitions"`
}

// HandleAnalyzePartitions groups the selected files by account value into
// proposed partitions. Nothing is persisted by this step.
func (h *SessionHandlerImpl) HandleAnalyzePartitions(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))

	var req analyzePartitionsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.FileIDs) == 0 {
		return NewValidationError("fileIds must not be empty")
	}
	if err := project.Files.ValidateForSession(req.FileIDs); err != nil {
		return NewValidationError(err.Error())
	}

	files := make([]*models.UploadedFile, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		file, ok := project.Files.Get(id)
		if !ok {
			return NewNotFoundError("file", id)
		}
		files = append(files, file)
	}

	partitions, err := partition.Analyze(files)
	if err != nil {
		return NewValidationError(err.Error())
	}

	return c.JSON(http.StatusOK, analyzePartitionsResponse{Partitions: partitions})
}

type createSessionsRequest struct {
	Partitions []models.Partition `json:"partitions"`
}

type createSessionsResponse struct {
	Results []session.CreateOutcome `json:"results"`
}

// HandleCreateSessions converts approved partitions into sessions, one per
// partition, reporting the per-item outcome.
func (h *SessionHandlerImpl) HandleCreateSessions(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))

	var req createSessionsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	outcomes := project.Sessions.CreateFromPartitions(req.Partitions)
	h.countOp("create")

	return c.JSON(http.StatusCreated, createSessionsResponse{Results: outcomes})
}

// HandleListSessions returns the project's sessions in creation order.
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	return c.JSON(http.StatusOK, project.Sessions.List())
}

type updateSessionRequest struct {
	SessionName *string `json:"sessionName"`
	WorkerName  *string `json:"workerName"`
}

// HandleUpdateSession applies a partial rename/worker reassignment.
func (h *SessionHandlerImpl) HandleUpdateSession(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	sessionID := c.Param("sessionId")

	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	updated, err := project.Sessions.Update(sessionID, req.SessionName, req.WorkerName)
	if err != nil {
		return mapSessionError(err, sessionID)
	}
	h.countOp("update")

	return c.JSON(http.StatusOK, updated)
}

// HandleDeleteSession removes one session, detaching its files.
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	sessionID := c.Param("sessionId")

	if err := project.Sessions.Delete([]string{sessionID}); err != nil {
		return mapSessionError(err, sessionID)
	}
	h.countOp("delete")

	return c.NoContent(http.StatusNoContent)
}

type sessionIDsRequest struct {
	SessionIDs []string `json:"sessionIds"`
}

// HandleDeleteSessions removes a batch of sessions.
func (h *SessionHandlerImpl) HandleDeleteSessions(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))

	var req sessionIDsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.SessionIDs) == 0 {
		return NewValidationError("sessionIds must not be empty")
	}

	if err := project.Sessions.Delete(req.SessionIDs); err != nil {
		return mapSessionError(err, "")
	}
	h.countOp("delete")

	return c.NoContent(http.StatusNoContent)
}

// HandleMergeSessions merges the listed sessions into the first one.
func (h *SessionHandlerImpl) HandleMergeSessions(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))

	var req sessionIDsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.SessionIDs) < 2 {
		return NewValidationError("merge requires at least 2 sessionIds")
	}

	merged, err := project.Sessions.Merge(req.SessionIDs)
	if err != nil {
		return mapSessionError(err, "")
	}
	h.countOp("merge")

	return c.JSON(http.StatusOK, merged)
}

// HandleStartSession hands a session to the next pipeline stage.
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	sessionID := c.Param("sessionId")

	started, err := project.Sessions.Start(sessionID)
	if err != nil {
		return mapSessionError(err, sessionID)
	}
	h.countOp("start")

	return c.JSON(http.StatusOK, started)
}

// HandleCompleteSession finishes a session and stages its account-level
// data. Irreversible.
func (h *SessionHandlerImpl) HandleCompleteSession(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	sessionID := c.Param("sessionId")

	completed, err := project.Sessions.Complete(sessionID)
	if err != nil {
		return mapSessionError(err, sessionID)
	}
	h.countOp("complete")

	return c.JSON(http.StatusOK, completed)
}

// HandleResetSession clears staged completion state.
func (h *SessionHandlerImpl) HandleResetSession(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	sessionID := c.Param("sessionId")

	reset, err := project.Sessions.Reset(sessionID)
	if err != nil {
		return mapSessionError(err, sessionID)
	}
	h.countOp("reset")

	return c.JSON(http.StatusOK, reset)
}

// mapSessionError translates manager errors into API errors.
func mapSessionError(err error, sessionID string) *APIError {
	switch {
	case errors.Is(err, session.ErrNotFound):
		if sessionID == "" {
			return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
		}
		return NewNotFoundError("session", sessionID)
	case errors.Is(err, session.ErrAlreadyCompleted):
		return NewSessionCompletedError(sessionID)
	default:
		return NewBadRequestError(err.Error(), nil)
	}
}
