package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/console"
	"github.com/yourusername/bedrockd/internal/models"
)

// InstallationHandler manages the named installation registry.
type InstallationHandler struct {
	cfg      *config.Config
	registry *config.InstallationRegistry
	service  *console.Service
}

func NewInstallationHandler(cfg *config.Config, registry *config.InstallationRegistry, service *console.Service) *InstallationHandler {
	return &InstallationHandler{
		cfg:      cfg,
		registry: registry,
		service:  service,
	}
}

func (h *InstallationHandler) stateFor(name string) models.ServerState {
	current, ok := h.service.Current()
	if !ok || current.Name != name {
		return models.StateStopped
	}
	return h.service.Status().State
}

// List returns all registered installations with their process state
// GET /installations
func (h *InstallationHandler) List(c *gin.Context) {
	installations := h.registry.List()
	items := make([]models.InstallationListItem, 0, len(installations))
	for _, inst := range installations {
		items = append(items, models.InstallationListItem{
			Name:      inst.Name,
			Path:      inst.Path,
			ServerCmd: inst.ServerCmd,
			State:     h.stateFor(inst.Name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"installations": items})
}

// Get returns one installation
// GET /installations/:name
func (h *InstallationHandler) Get(c *gin.Context) {
	name := c.Param("name")
	inst, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Installation not found"})
		return
	}
	c.JSON(http.StatusOK, models.InstallationListItem{
		Name:      inst.Name,
		Path:      inst.Path,
		ServerCmd: inst.ServerCmd,
		State:     h.stateFor(inst.Name),
	})
}

type installationRequest struct {
	Name      string `json:"name" binding:"required"`
	Path      string `json:"path" binding:"required"`
	ServerCmd string `json:"server_cmd"`
}

// Create registers an existing server directory
// POST /installations
func (h *InstallationHandler) Create(c *gin.Context) {
	var req installationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path, err := filepath.Abs(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
		return
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is not a directory"})
		return
	}

	inst := config.Installation{Name: req.Name, Path: path, ServerCmd: req.ServerCmd}
	if err := h.registry.Add(inst); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, inst)
}

type installationUpdateRequest struct {
	Path      string `json:"path"`
	ServerCmd string `json:"server_cmd"`
	NewName   string `json:"new_name"`
}

// Update changes an installation's path, command, or name
// PUT /installations/:name
func (h *InstallationHandler) Update(c *gin.Context) {
	name := c.Param("name")
	inst, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Installation not found"})
		return
	}
	if h.stateFor(name) != models.StateStopped {
		c.JSON(http.StatusConflict, gin.H{"error": "Installation is running"})
		return
	}

	var req installationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Path != "" {
		path, err := filepath.Abs(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
			return
		}
		inst.Path = path
	}
	if req.ServerCmd != "" {
		inst.ServerCmd = req.ServerCmd
	}

	if err := h.registry.Update(name, inst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.NewName != "" && req.NewName != name {
		if err := h.registry.Rename(name, req.NewName); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		inst.Name = req.NewName
	}

	c.JSON(http.StatusOK, inst)
}

// Delete removes an installation from the registry. The directory on disk
// is left in place.
// DELETE /installations/:name
func (h *InstallationHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if h.stateFor(name) != models.StateStopped {
		c.JSON(http.StatusConflict, gin.H{"error": "Installation is running"})
		return
	}
	if err := h.registry.Remove(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Installation removed"})
}

type discoverRequest struct {
	Roots []string `json:"roots"`
}

// Discover scans directories for unregistered server installs
// POST /installations/discover
func (h *InstallationHandler) Discover(c *gin.Context) {
	var req discoverRequest
	_ = c.ShouldBindJSON(&req)
	if len(req.Roots) == 0 {
		req.Roots = []string{h.cfg.Storage.InstancesDir}
	}

	found := config.Discover(req.Roots)
	candidates := make([]config.Installation, 0, len(found))
	for _, inst := range found {
		if _, exists := h.registry.Get(inst.Name); !exists {
			candidates = append(candidates, inst)
		}
	}
	c.JSON(http.StatusOK, gin.H{"discovered": candidates})
}
