package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/api/middleware"
	"github.com/yourusername/bedrockd/internal/backup"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/logging"
	"github.com/yourusername/bedrockd/internal/models"
)

// BackupHandler manages archives, restores, and schedules.
type BackupHandler struct {
	manager   *backup.Manager
	schedules *backup.ScheduleStore
	retention *backup.RetentionManager
	registry  *config.InstallationRegistry
	activity  *logging.ActivityLogger
}

func NewBackupHandler(manager *backup.Manager, schedules *backup.ScheduleStore, retention *backup.RetentionManager, registry *config.InstallationRegistry, activity *logging.ActivityLogger) *BackupHandler {
	return &BackupHandler{
		manager:   manager,
		schedules: schedules,
		retention: retention,
		registry:  registry,
		activity:  activity,
	}
}

// List returns backup records, optionally filtered by installation
// GET /backups?installation=name
func (h *BackupHandler) List(c *gin.Context) {
	records, err := h.manager.ListBackups(c.Query("installation"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": records})
}

// Get returns one backup record
// GET /backups/:backupId
func (h *BackupHandler) Get(c *gin.Context) {
	record, err := h.manager.GetBackup(c.Param("backupId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// Create archives an installation now
// POST /installations/:name/backups
func (h *BackupHandler) Create(c *gin.Context) {
	name := c.Param("name")
	inst, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Installation not found"})
		return
	}

	var req models.CreateBackupRequest
	_ = c.ShouldBindJSON(&req)

	record, err := h.manager.CreateBackup(inst, req.Destinations, req.Force)
	if h.activity != nil {
		errMsg := ""
		filename := ""
		if record != nil {
			filename = record.Filename
		}
		if err != nil {
			errMsg = err.Error()
		}
		_ = h.activity.LogBackup(name, logging.ActivityBackupCreate, filename, middleware.UserID(c), err == nil, errMsg)
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// Restore unpacks a backup into the instances directory
// POST /backups/:backupId/restore
func (h *BackupHandler) Restore(c *gin.Context) {
	backupID := c.Param("backupId")

	restoredName, err := h.manager.RestoreBackup(backupID)
	if h.activity != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		_ = h.activity.LogBackup(restoredName, logging.ActivityBackupRestore, backupID, middleware.UserID(c), err == nil, errMsg)
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "Backup restored",
		"installation": restoredName,
	})
}

// Delete removes a backup archive and its record
// DELETE /backups/:backupId
func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.manager.DeleteBackup(c.Param("backupId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

type scheduleRequest struct {
	CronExpr  string `json:"cron_expr" binding:"required"`
	Retention int    `json:"retention"`
	Enabled   *bool  `json:"enabled"`
}

// UpsertSchedule creates or replaces an installation's backup schedule
// PUT /installations/:name/backups/schedule
func (h *BackupHandler) UpsertSchedule(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Installation not found"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Retention <= 0 {
		req.Retention = 5
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	schedule, err := h.schedules.Upsert(name, req.CronExpr, req.Retention, enabled)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// GetSchedule returns the installation's schedule
// GET /installations/:name/backups/schedule
func (h *BackupHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.schedules.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No schedule configured"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// ListSchedules returns all schedules
// GET /backups/schedules
func (h *BackupHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.schedules.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list schedules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// DeleteSchedule removes the installation's schedule
// DELETE /installations/:name/backups/schedule
func (h *BackupHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Delete(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// EnforceRetention prunes old local backups for an installation
// POST /installations/:name/backups/retention?keep=N
func (h *BackupHandler) EnforceRetention(c *gin.Context) {
	name := c.Param("name")
	keep := 5
	if keepStr := c.Query("keep"); keepStr != "" {
		parsed, err := strconv.Atoi(keepStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid keep count"})
			return
		}
		keep = parsed
	}

	if err := h.retention.EnforceRetention(name, keep); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Retention enforced", "keep": keep})
}
