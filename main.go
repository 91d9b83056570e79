package main

import (
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/secureshare/secureshare/config"
	"github.com/secureshare/secureshare/database"
	"github.com/secureshare/secureshare/handlers"
	"github.com/secureshare/secureshare/logging"
	"github.com/secureshare/secureshare/monitoring"
	"github.com/secureshare/secureshare/share"
	"github.com/secureshare/secureshare/storage"
)

const Version = "1.0.0"

// parseLogLevel maps the configured level name onto the logging package's
// levels, defaulting to INFO for anything unrecognized.
func parseLogLevel(name string) logging.LogLevel {
	switch name {
	case "debug":
		return logging.DEBUG
	case "warning":
		return logging.WARNING
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

func main() {
	// Load configuration (.env, environment, optional config file)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	loggingConfig := &logging.LogConfig{
		LogDir:     cfg.Logging.Directory,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		LogLevel:   parseLogLevel(cfg.Server.LogLevel),
	}
	if err := logging.InitLogging(loggingConfig); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	// Initialize the share event database
	events, err := database.InitDB(cfg.Events.Path)
	if err != nil {
		log.Fatalf("Failed to initialize event database: %v", err)
	}
	defer events.Close()

	// Open the share store
	store, err := storage.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open share store: %v", err)
	}
	for _, quarantined := range store.QuarantinedFiles() {
		logging.WarningLogger.Printf("Quarantined unreadable store data: %s", quarantined)
	}

	// Sweep anything that expired while the server was down
	if evicted, err := store.EvictExpired(time.Now().UTC()); err != nil {
		logging.ErrorLogger.Printf("Startup expiry sweep failed: %v", err)
	} else if evicted > 0 {
		logging.InfoLogger.Printf("Startup expiry sweep removed %d share(s)", evicted)
	}

	svc := share.NewService(store)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	// Routes
	h := handlers.NewHandler(svc, events, cfg.Uploads.MaxShareSize)
	h.RegisterRoutes(e)

	// Operational endpoints
	monitor := monitoring.NewMonitor(store, events, Version)
	monitor.RegisterRoutes(e)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logging.InfoLogger.Printf("Starting server on %s (%d share(s) loaded)", addr, store.Count())
	if err := e.Start(addr); err != nil {
		logging.ErrorLogger.Printf("Failed to start server: %v", err)
	}
}
