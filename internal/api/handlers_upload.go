// handlers_upload.go - Three-step upload protocol handlers
package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/probe"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/upload"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store     storage.Store
	uploadMgr *upload.Manager
	projects  *ProjectHub
	metrics   *metrics.Metrics
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, uploadMgr *upload.Manager, projects *ProjectHub, m *metrics.Metrics) UploadHandler {
	return &UploadHandlerImpl{
		store:     store,
		uploadMgr: uploadMgr,
		projects:  projects,
		metrics:   m,
	}
}

type presignedURLRequest struct {
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	SessionID string `json:"sessionId"`
}

type presignedURLResponse struct {
	WriteURL  string `json:"writeUrl"`
	UploadID  string `json:"uploadId"`
	ObjectKey string `json:"objectKey"`
	SessionID string `json:"sessionId"`
}

// HandlePresignedURL allocates a pending-upload slot and returns the write
// URL. The sessionId in the request is a hint; the response value is
// authoritative.
func (h *UploadHandlerImpl) HandlePresignedURL(c echo.Context) error {
	projectID := c.Param("projectId")

	var req presignedURLRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileName == "" {
		return NewValidationError("fileName is required")
	}

	slot, err := h.uploadMgr.RequestSlot(projectID, req.FileName, req.FileSize, req.SessionID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.UploadSlot("rejected")
		}
		if errors.Is(err, probe.ErrUnsupportedType) {
			return NewValidationError(err.Error())
		}
		return NewBadRequestError("could not allocate upload slot", err)
	}
	if h.metrics != nil {
		h.metrics.UploadSlot("allocated")
	}

	return c.JSON(http.StatusOK, presignedURLResponse{
		WriteURL:  slot.WriteURL,
		UploadID:  slot.UploadID,
		ObjectKey: slot.ObjectKey,
		SessionID: slot.SessionID,
	})
}

// HandleWriteObject accepts the direct byte transfer addressed by a write
// URL. Writes without a pending slot are refused.
func (h *UploadHandlerImpl) HandleWriteObject(c echo.Context) error {
	objectKey, err := url.PathUnescape(c.Param("*"))
	if err != nil || objectKey == "" {
		return NewBadRequestError("invalid object key", err)
	}

	if _, ok := h.uploadMgr.SlotForObject(objectKey); !ok {
		return NewNotFoundError("upload slot", objectKey)
	}

	if _, err := h.store.Put(objectKey, c.Request().Body); err != nil {
		return NewInternalError("failed to store object", err)
	}

	return c.NoContent(http.StatusOK)
}

// HandleFinalizeUpload converts a transferred slot into a queryable file
// and enqueues its ingestion job.
func (h *UploadHandlerImpl) HandleFinalizeUpload(c echo.Context) error {
	projectID := c.Param("projectId")

	var req upload.FinalizeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.UploadID == "" {
		return NewValidationError("uploadId is required")
	}

	file, err := h.uploadMgr.Finalize(projectID, req)
	if err != nil {
		return NewConflictError(err.Error())
	}

	project := h.projects.Get(projectID)
	project.Files.Add(file)
	h.uploadMgr.StartJob(req.UploadID, file, project.Files)
	if h.metrics != nil {
		h.metrics.IngestJob("started")
	}

	// Reflect the queued ingestion in the response.
	file.Status = models.FileStatusProcessing
	return c.JSON(http.StatusCreated, file)
}

// HandleUploadStatus reports the state of an asynchronous ingestion job.
func (h *UploadHandlerImpl) HandleUploadStatus(c echo.Context) error {
	uploadID := c.Param("uploadId")

	status, ok := h.uploadMgr.GetStatus(uploadID)
	if !ok {
		return NewNotFoundError("upload", uploadID)
	}

	return c.JSON(http.StatusOK, status)
}
