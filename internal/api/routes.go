// routes.go - Route registration helpers
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	UploadMgr         *upload.Manager
	Projects          *ProjectHub
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	Version           string
	AccountSampleRows int
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Upload  UploadHandler
	Files   FileHandler
	Session SessionHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.UploadMgr),
		Upload:  NewUploadHandler(deps.Store, deps.UploadMgr, deps.Projects, deps.Metrics),
		Files:   NewFileHandler(deps.Store, deps.Projects, deps.AccountSampleRows),
		Session: NewSessionHandler(deps.Projects, deps.Metrics),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, m *metrics.Metrics) {
	e.GET("/health", handlers.Health.HandleHealth)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	apiGroup := e.Group("/api")

	// Object store write endpoint; presigned write URLs point here.
	apiGroup.PUT("/objects/*", handlers.Upload.HandleWriteObject)

	uploadGroup := apiGroup.Group("/projects/:projectId/upload")
	uploadGroup.POST("/presigned-url", handlers.Upload.HandlePresignedURL)
	uploadGroup.POST("/files", handlers.Upload.HandleFinalizeUpload)
	uploadGroup.GET("/status/:uploadId", handlers.Upload.HandleUploadStatus)

	uploadGroup.GET("/files", handlers.Files.HandleListFiles)
	uploadGroup.GET("/files/msgpack", handlers.Files.HandleListFilesMsgpack)
	uploadGroup.PUT("/files/:fileId/columns", handlers.Files.HandleUpdateColumns)
	uploadGroup.DELETE("/files/:fileId", handlers.Files.HandleDeleteFile)

	uploadGroup.POST("/analyze-partitions", handlers.Session.HandleAnalyzePartitions)
	uploadGroup.POST("/sessions/batch", handlers.Session.HandleCreateSessions)
	uploadGroup.GET("/sessions", handlers.Session.HandleListSessions)
	uploadGroup.PUT("/sessions/:sessionId", handlers.Session.HandleUpdateSession)
	uploadGroup.DELETE("/sessions/batch", handlers.Session.HandleDeleteSessions)
	uploadGroup.DELETE("/sessions/:sessionId", handlers.Session.HandleDeleteSession)
	uploadGroup.POST("/sessions/merge", handlers.Session.HandleMergeSessions)
	uploadGroup.POST("/sessions/:sessionId/start", handlers.Session.HandleStartSession)
	uploadGroup.POST("/sessions/:sessionId/complete", handlers.Session.HandleCompleteSession)
	uploadGroup.POST("/sessions/:sessionId/reset", handlers.Session.HandleResetSession)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, m *metrics.Metrics, corsOrigins []string) {
	e.HTTPErrorHandler = ErrorHandler
	e.HideBanner = true

	e.Use(middleware.Recover())
	if m != nil {
		e.Use(m.Middleware())
	}
	if len(corsOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: corsOrigins,
		}))
	}
}
