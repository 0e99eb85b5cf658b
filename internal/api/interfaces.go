// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// UploadHandler handles the three-step upload protocol and status polling
type UploadHandler interface {
	HandlePresignedURL(c echo.Context) error
	HandleWriteObject(c echo.Context) error
	HandleFinalizeUpload(c echo.Context) error
	HandleUploadStatus(c echo.Context) error
}

// FileHandler handles the project file list and column assignment
type FileHandler interface {
	HandleListFiles(c echo.Context) error
	HandleListFilesMsgpack(c echo.Context) error
	HandleUpdateColumns(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// SessionHandler handles partition analysis and the session lifecycle
type SessionHandler interface {
	HandleAnalyzePartitions(c echo.Context) error
	HandleCreateSessions(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleUpdateSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleDeleteSessions(c echo.Context) error
	HandleMergeSessions(c echo.Context) error
	HandleStartSession(c echo.Context) error
	HandleCompleteSession(c echo.Context) error
	HandleResetSession(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
