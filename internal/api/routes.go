package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/api/handlers"
	"github.com/yourusername/bedrockd/internal/api/middleware"
	"github.com/yourusername/bedrockd/internal/auth"
	"github.com/yourusername/bedrockd/internal/backup"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/console"
	"github.com/yourusername/bedrockd/internal/database"
	"github.com/yourusername/bedrockd/internal/logging"
	"github.com/yourusername/bedrockd/internal/releases"
	"github.com/yourusername/bedrockd/internal/telemetry"
	"github.com/yourusername/bedrockd/internal/websocket"
)

// Deps carries everything the router needs.
type Deps struct {
	Config         *config.Config
	DB             *database.DB
	Registry       *config.InstallationRegistry
	ConsoleService *console.Service
	Monitor        *telemetry.Monitor
	BackupManager  *backup.Manager
	Schedules      *backup.ScheduleStore
	Retention      *backup.RetentionManager
	ReleaseManager *releases.Manager
	Activity       *logging.ActivityLogger
	Hub            *websocket.Hub
}

// SetupRouter configures and returns the HTTP router
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Audit(deps.DB.DB))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ContentSecurityPolicy(cfg.Logging.Level == "debug"))

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		parseDuration(cfg.Auth.AccessTokenDuration),
		parseDuration(cfg.Auth.RefreshTokenDuration),
	)

	authHandler := handlers.NewAuthHandler(deps.DB.DB, jwtManager, cfg.Auth.BcryptCost)
	installationHandler := handlers.NewInstallationHandler(cfg, deps.Registry, deps.ConsoleService)
	serverHandler := handlers.NewServerHandler(deps.ConsoleService)
	consoleHandler := handlers.NewConsoleHandler(cfg, deps.ConsoleService, deps.Hub)
	telemetryHandler := handlers.NewTelemetryHandler(deps.Monitor, deps.ConsoleService)
	backupHandler := handlers.NewBackupHandler(deps.BackupManager, deps.Schedules, deps.Retention, deps.Registry, deps.Activity)
	releaseHandler := handlers.NewReleaseHandler(cfg, deps.ReleaseManager, deps.Activity)
	activityHandler := handlers.NewActivityHandler(deps.Activity)
	settingsHandler := handlers.NewSettingsHandler(cfg)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/auth/setup-status", authHandler.SetupStatus)
		public.POST("/auth/setup", authHandler.SetupInitialAdmin)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/refresh", authHandler.RefreshToken)
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		// Installation registry
		installations := protected.Group("/installations")
		{
			installations.GET("", installationHandler.List)
			installations.POST("", middleware.RequireAdmin(), installationHandler.Create)
			installations.POST("/discover", installationHandler.Discover)
			installations.GET("/:name", installationHandler.Get)
			installations.PUT("/:name", middleware.RequireAdmin(), installationHandler.Update)
			installations.DELETE("/:name", middleware.RequireAdmin(), installationHandler.Delete)

			installations.POST("/:name/backups", backupHandler.Create)
			installations.GET("/:name/backups/schedule", backupHandler.GetSchedule)
			installations.PUT("/:name/backups/schedule", middleware.RequireAdmin(), backupHandler.UpsertSchedule)
			installations.DELETE("/:name/backups/schedule", middleware.RequireAdmin(), backupHandler.DeleteSchedule)
			installations.POST("/:name/backups/retention", middleware.RequireAdmin(), backupHandler.EnforceRetention)
			installations.POST("/:name/upgrade", middleware.RequireAdmin(), releaseHandler.Upgrade)
		}

		// Server lifecycle
		server := protected.Group("/server")
		{
			server.POST("/attach/:name", serverHandler.Attach)
			server.POST("/start", serverHandler.Start)
			server.POST("/stop", serverHandler.Stop)
			server.GET("/status", serverHandler.Status)
			server.POST("/command", serverHandler.ExecuteCommand)
		}

		// Console buffer
		protected.GET("/console/history", consoleHandler.GetHistory)
		protected.GET("/console/render", consoleHandler.GetRendered)
		protected.POST("/console/clear", consoleHandler.ClearConsole)
		protected.GET("/console/commands", consoleHandler.GetCommandHistory)

		// Telemetry
		protected.GET("/telemetry", telemetryHandler.Latest)

		// Backups
		backups := protected.Group("/backups")
		{
			backups.GET("", backupHandler.List)
			backups.GET("/schedules", backupHandler.ListSchedules)
			backups.GET("/:backupId", backupHandler.Get)
			backups.DELETE("/:backupId", middleware.RequireAdmin(), backupHandler.Delete)
			backups.POST("/:backupId/restore", middleware.RequireAdmin(), backupHandler.Restore)
		}

		// Releases
		releaseRoutes := protected.Group("/releases")
		{
			releaseRoutes.GET("", releaseHandler.List)
			releaseRoutes.GET("/versions", releaseHandler.GetVersions)
			releaseRoutes.GET("/jobs", releaseHandler.ListJobs)
			releaseRoutes.GET("/jobs/:id", releaseHandler.GetJob)
			releaseRoutes.GET("/:id", releaseHandler.Get)
			releaseRoutes.DELETE("/:id", middleware.RequireAdmin(), releaseHandler.Delete)
			releaseRoutes.POST("/download", middleware.RequireAdmin(), releaseHandler.Download)
			releaseRoutes.POST("/install", middleware.RequireAdmin(), releaseHandler.Install)
		}

		// Activity feed
		protected.GET("/activity", activityHandler.Recent)

		// Settings
		protected.GET("/settings", middleware.RequireAdmin(), settingsHandler.GetSettings)
		protected.PUT("/settings", middleware.RequireAdmin(), settingsHandler.UpdateSettings)

		// WebSocket rooms and job streams
		protected.GET("/ws/console", consoleHandler.StreamRoom(websocket.RoomConsole))
		protected.GET("/ws/status", consoleHandler.StreamRoom(websocket.RoomStatus))
		protected.GET("/ws/telemetry", consoleHandler.StreamRoom(websocket.RoomTelemetry))
		protected.GET("/ws/releases/jobs/:id", releaseHandler.StreamJob)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// parseDuration is a helper to parse duration strings
func parseDuration(duration string) time.Duration {
	d, err := time.ParseDuration(duration)
	if err != nil {
		return 15 * time.Minute // Default fallback
	}
	return d
}
