// handlers_files.go - Project file list and column assignment handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/probe"
	"github.com/sheetflow/backend/internal/registry"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store      storage.Store
	projects   *ProjectHub
	sampleRows int
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, projects *ProjectHub, sampleRows int) FileHandler {
	if sampleRows <= 0 {
		sampleRows = 1000
	}
	return &FileHandlerImpl{
		store:      store,
		projects:   projects,
		sampleRows: sampleRows,
	}
}

// HandleListFiles returns the project's files in upload order.
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))
	return c.JSON(http.StatusOK, project.Files.List())
}

// HandleListFilesMsgpack returns the same listing msgpack-encoded, for
// clients that poll the list at high frequency.
func (h *FileHandlerImpl) HandleListFilesMsgpack(c echo.Context) error {
	project := h.projects.Get(c.Param("projectId"))

	data, err := msgpack.Marshal(project.Files.List())
	if err != nil {
		return NewInternalError("failed to encode file list", err)
	}

	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

type updateColumnsRequest struct {
	AccountColumnName *string `json:"accountColumnName"`
	AmountColumnName  *string `json:"amountColumnName"`
}

// HandleUpdateColumns applies a partial column assignment and synchronously
// recomputes the derived values from the stored workbook. Stale values from
// a previous column choice never survive the reassignment.
func (h *FileHandlerImpl) HandleUpdateColumns(c echo.Context) error {
	projectID := c.Param("projectId")
	fileID := c.Param("fileId")
	project := h.projects.Get(projectID)

	var req updateColumnsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	file, ok := project.Files.Get(fileID)
	if !ok {
		return NewNotFoundError("file", fileID)
	}

	if req.AccountColumnName == nil && req.AmountColumnName == nil {
		return c.JSON(http.StatusOK, file)
	}

	// Effective assignments after this update.
	accountColumn := file.AccountColumnName
	if req.AccountColumnName != nil {
		accountColumn = *req.AccountColumnName
	}
	amountColumn := file.AmountColumnName
	if req.AmountColumnName != nil {
		amountColumn = *req.AmountColumnName
	}

	update := registry.ColumnUpdate{
		AccountColumnName: req.AccountColumnName,
		AmountColumnName:  req.AmountColumnName,
	}

	if accountColumn != "" || amountColumn != "" {
		r, err := h.store.Get(file.ObjectKey)
		if err != nil {
			return NewInternalError("failed to read stored object", err)
		}
		ext, err := probe.ExtractColumns(r, file.FileName, accountColumn, amountColumn, h.sampleRows)
		r.Close()
		if err != nil {
			return NewFileParseError("failed to extract column values", err)
		}
		if accountColumn != "" {
			update.AccountContents = ext.AccountContents
		}
		if amountColumn != "" {
			update.TotalAmount = &ext.TotalAmount
		}
	}

	updated, err := project.Files.UpdateColumns(fileID, update)
	if err != nil {
		return NewNotFoundError("file", fileID)
	}

	return c.JSON(http.StatusOK, updated)
}

// HandleDeleteFile removes a file record and its stored object.
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	projectID := c.Param("projectId")
	fileID := c.Param("fileId")
	project := h.projects.Get(projectID)

	file, ok := project.Files.Get(fileID)
	if !ok {
		return NewNotFoundError("file", fileID)
	}
	if file.SessionID != "" {
		return NewConflictError("file belongs to a session; delete or edit the session first")
	}

	if err := project.Files.Remove(fileID); err != nil {
		return NewNotFoundError("file", fileID)
	}
	if err := h.store.Delete(file.ObjectKey); err != nil {
		return NewInternalError("failed to delete stored object", err)
	}

	return c.NoContent(http.StatusNoContent)
}
