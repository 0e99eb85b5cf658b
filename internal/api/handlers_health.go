// handlers_health.go - Liveness endpoint
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sheetflow/backend/internal/upload"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	started time.Time
	uploads *upload.Manager
}

// NewHealthHandler creates the health handler. The upload manager is
// optional; without it the response omits ingestion activity.
func NewHealthHandler(version string, uploads *upload.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		started: time.Now(),
		uploads: uploads,
	}
}

// HandleHealth reports liveness plus a coarse view of ingestion activity,
// enough for a dashboard to tell an idle server from a busy one.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
	}
	if h.uploads != nil {
		resp["activeIngestions"] = h.uploads.ActiveJobs()
	}
	return c.JSON(http.StatusOK, resp)
}
