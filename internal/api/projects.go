package api

import (
	"log/slog"
	"sync"

	"github.com/sheetflow/backend/internal/registry"
	"github.com/sheetflow/backend/internal/session"
	"github.com/sheetflow/backend/internal/storage"
)

// Project bundles the per-project state: its file registry and session
// manager. Projects are created lazily on first touch.
type Project struct {
	Files    *registry.Registry
	Sessions *session.Manager
}

// ProjectHub hands out per-project state.
type ProjectHub struct {
	mu        sync.Mutex
	projects  map[string]*Project
	store     storage.Store
	exportDir string
	logger    *slog.Logger
}

// NewProjectHub creates an empty hub.
func NewProjectHub(store storage.Store, exportDir string, logger *slog.Logger) *ProjectHub {
	return &ProjectHub{
		projects:  make(map[string]*Project),
		store:     store,
		exportDir: exportDir,
		logger:    logger,
	}
}

// Get returns the project's state, creating it on first use.
func (h *ProjectHub) Get(projectID string) *Project {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.projects[projectID]
	if !ok {
		files := registry.New()
		p = &Project{
			Files:    files,
			Sessions: session.NewManager(files, h.store, h.exportDir, h.logger.With("project", projectID)),
		}
		h.projects[projectID] = p
	}
	return p
}
