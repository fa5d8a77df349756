package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/bedrockd/internal/api/middleware"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/logging"
	"github.com/yourusername/bedrockd/internal/releases"
)

// ReleaseHandler exposes version discovery, downloads, installs, and jobs.
type ReleaseHandler struct {
	cfg      *config.Config
	manager  *releases.Manager
	activity *logging.ActivityLogger
}

func NewReleaseHandler(cfg *config.Config, manager *releases.Manager, activity *logging.ActivityLogger) *ReleaseHandler {
	return &ReleaseHandler{
		cfg:      cfg,
		manager:  manager,
		activity: activity,
	}
}

// GetVersions fetches the currently published versions
// GET /releases/versions
func (h *ReleaseHandler) GetVersions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	versions, err := h.manager.Versions(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch versions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// List returns downloaded release records
// GET /releases
func (h *ReleaseHandler) List(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := h.manager.ListReleases(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list releases"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"releases": records})
}

// Get returns one release record
// GET /releases/:id
func (h *ReleaseHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid release ID"})
		return
	}
	record, err := h.manager.GetRelease(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Release not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// Delete removes a release archive and record
// DELETE /releases/:id
func (h *ReleaseHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid release ID"})
		return
	}
	if err := h.manager.DeleteRelease(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Release deleted"})
}

type downloadRequest struct {
	Version   string `json:"version" binding:"required"`
	Patchline string `json:"patchline"`
}

func normalizePatchline(patchline string) string {
	if patchline == releases.PatchlinePreview {
		return releases.PatchlinePreview
	}
	return releases.PatchlineRelease
}

// Download fetches a release archive in the background
// POST /releases/download
func (h *ReleaseHandler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := releases.VersionInfo{Version: req.Version, Patchline: normalizePatchline(req.Patchline)}
	job, err := h.manager.Download(info)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.activity != nil {
		_ = h.activity.LogRelease("", logging.ActivityReleaseDownload, info.Version, middleware.UserID(c), true, "")
	}
	c.JSON(http.StatusAccepted, job)
}

type installRequest struct {
	Version      string `json:"version" binding:"required"`
	Patchline    string `json:"patchline"`
	Installation string `json:"installation" binding:"required"`
	Overwrite    bool   `json:"overwrite"`
}

// Install extracts a release into a new installation
// POST /releases/install
func (h *ReleaseHandler) Install(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := releases.VersionInfo{Version: req.Version, Patchline: normalizePatchline(req.Patchline)}
	job, err := h.manager.Install(info, req.Installation, req.Overwrite)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if h.activity != nil {
		_ = h.activity.LogRelease(req.Installation, logging.ActivityReleaseInstall, info.Version, middleware.UserID(c), true, "")
	}
	c.JSON(http.StatusAccepted, job)
}

type upgradeRequest struct {
	Version   string `json:"version" binding:"required"`
	Patchline string `json:"patchline"`
}

// Upgrade extracts a release over an existing installation
// POST /installations/:name/upgrade
func (h *ReleaseHandler) Upgrade(c *gin.Context) {
	name := c.Param("name")

	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := releases.VersionInfo{Version: req.Version, Patchline: normalizePatchline(req.Patchline)}
	job, err := h.manager.Upgrade(info, name)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if h.activity != nil {
		_ = h.activity.LogRelease(name, logging.ActivityReleaseInstall, info.Version, middleware.UserID(c), true, "")
	}
	c.JSON(http.StatusAccepted, job)
}

// ListJobs returns recent release jobs
// GET /releases/jobs
func (h *ReleaseHandler) ListJobs(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.manager.ListJobs(limit)})
}

// GetJob returns one job
// GET /releases/jobs/:id
func (h *ReleaseHandler) GetJob(c *gin.Context) {
	job, ok := h.manager.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// StreamJob streams job events over a WebSocket
// WS /ws/releases/jobs/:id
func (h *ReleaseHandler) StreamJob(c *gin.Context) {
	jobID := c.Param("id")
	job, ok := h.manager.GetJob(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	upgrader := buildUpgrader(h.cfg.Security.CORS.AllowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Releases] Failed to upgrade WebSocket: %v (job=%s)", err, jobID)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.manager.Subscribe(jobID)
	defer unsubscribe()

	// Replay buffered output so late subscribers see the whole job.
	for _, line := range job.Output {
		if err := conn.WriteJSON(gin.H{"event": "log", "data": line}); err != nil {
			return
		}
	}

	for event := range events {
		if err := conn.WriteJSON(gin.H{"event": event.Event, "data": event.Data}); err != nil {
			return
		}
		if event.Event == "status" && (event.Data == string(releases.StatusComplete) || event.Data == string(releases.StatusFailed)) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
