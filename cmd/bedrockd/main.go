package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/yourusername/bedrockd/internal/api"
	"github.com/yourusername/bedrockd/internal/backup"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/console"
	"github.com/yourusername/bedrockd/internal/database"
	"github.com/yourusername/bedrockd/internal/logging"
	"github.com/yourusername/bedrockd/internal/releases"
	"github.com/yourusername/bedrockd/internal/telemetry"
	"github.com/yourusername/bedrockd/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	// Check if running migrations
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations automatically
	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Initialize activity logger
	activityDir := filepath.Join(cfg.Storage.DataDir, "logs", "activity")
	activityLogger, err := logging.NewActivityLogger(db.DB, activityDir)
	if err != nil {
		log.Fatalf("Failed to initialize activity logger: %v", err)
	}
	defer activityLogger.Close()

	// Load the installation registry
	registry, err := config.NewInstallationRegistry(cfg.Storage.ConfigDir)
	if err != nil {
		log.Fatalf("Failed to load installation registry: %v", err)
	}

	// Initialize WebSocket hub
	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Initialize the console service (process supervision)
	consoleLogDir := filepath.Join(cfg.Storage.DataDir, "logs", "console")
	consoleService := console.NewService(db.DB, hub, registry, activityLogger, console.Options{
		BufferMax:       cfg.Supervision.ConsoleBufferMax,
		StopGracePeriod: cfg.Supervision.StopGraceDuration(),
		KillGracePeriod: cfg.Supervision.KillGraceDuration(),
		LogDir:          consoleLogDir,
	})

	// Prune old console log files on startup
	if err := console.CleanupOldLogs(db.DB, cfg.Logging.MaxAge); err != nil {
		log.Printf("Console log cleanup failed: %v", err)
	}

	// Start the telemetry monitor
	sampler := telemetry.NewSampler(telemetry.NewSystemInspector(), cfg.Supervision.CPUHistorySize)
	monitor := telemetry.NewMonitor(sampler, hub, consoleService.PID, cfg.Supervision.StatsIntervalDuration())
	monitor.Start()

	// Backup manager, retention and schedule runner
	backupManager := backup.NewManager(db.DB, cfg, consoleService.IsRunning)
	scheduleStore := backup.NewScheduleStore(db.DB)
	retention := backup.NewRetentionManager(db.DB, backupManager)
	scheduleRunner := backup.NewScheduleRunner(db.DB, registry, backupManager)
	scheduleRunner.Start(ctx)

	// Release manager
	releaseManager := releases.NewManager(cfg, db.DB, registry, func(name string) bool {
		current, ok := consoleService.Current()
		return ok && current.Name == name && consoleService.IsRunning()
	})

	log.Println("All components initialized successfully")

	// Set up HTTP server
	router := api.SetupRouter(api.Deps{
		Config:         cfg,
		DB:             db,
		Registry:       registry,
		ConsoleService: consoleService,
		Monitor:        monitor,
		BackupManager:  backupManager,
		Schedules:      scheduleStore,
		Retention:      retention,
		ReleaseManager: releaseManager,
		Activity:       activityLogger,
		Hub:            hub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", server.Addr)

		if cfg.Server.TLS.Enabled {
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTPS server: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Bring the supervised process down before the API goes away
	if consoleService.IsRunning() {
		log.Println("Stopping supervised server process...")
		consoleService.Stop(nil)
	}

	monitor.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "bedrockd.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
