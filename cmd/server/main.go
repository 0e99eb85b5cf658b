package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sheetflow/backend/internal/api"
	"github.com/sheetflow/backend/internal/config"
	"github.com/sheetflow/backend/internal/logging"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := os.Getenv("SHEETFLOW_CONFIG")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "sheetflow.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger("sheetflow", cfg.Logging.Level)
	logger.Info("starting server",
		"version", Version,
		"buildTime", BuildTime,
		"dataDir", cfg.GetDataDir(),
		"addr", cfg.GetServerAddr())

	store, err := storage.NewLocalStore(cfg.GetObjectsDir())
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	uploadMgr := upload.NewManager(store, cfg.PublicBase, logger)
	projects := api.NewProjectHub(store, cfg.GetExportDir(), logger)
	m := metrics.New("sheetflow")

	// Expire stale slots and drop finished ingestion jobs in the background.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Ingestion.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			uploadMgr.CleanupOldJobs(time.Duration(cfg.Ingestion.JobRetentionMinutes) * time.Minute)
		}
	}()

	e := echo.New()

	var corsOrigins []string
	if cfg.Server.EnableCORS {
		for _, origin := range strings.Split(cfg.Server.AllowOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
		if len(corsOrigins) == 0 {
			corsOrigins = []string{"*"}
		}
	}
	api.SetupMiddleware(e, m, corsOrigins)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:             store,
		UploadMgr:         uploadMgr,
		Projects:          projects,
		Metrics:           m,
		Logger:            logger,
		Version:           Version,
		AccountSampleRows: cfg.Ingestion.AccountSampleRows,
	})
	api.RegisterRoutes(e, handlers, m)

	if err := e.Start(cfg.GetServerAddr()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
