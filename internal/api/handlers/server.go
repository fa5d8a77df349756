package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/api/middleware"
	"github.com/yourusername/bedrockd/internal/console"
	"github.com/yourusername/bedrockd/internal/models"
)

// ServerHandler drives the supervised server process.
type ServerHandler struct {
	service *console.Service
}

func NewServerHandler(service *console.Service) *ServerHandler {
	return &ServerHandler{service: service}
}

// Attach binds the supervisor to an installation
// POST /server/attach/:name
func (h *ServerHandler) Attach(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.Attach(name); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attached", "installation": name})
}

// Start launches the attached installation's server process
// POST /server/start
func (h *ServerHandler) Start(c *gin.Context) {
	var req models.ServerStartRequest
	_ = c.ShouldBindJSON(&req)

	override := ""
	if req.ServerCmd != nil {
		override = *req.ServerCmd
	}

	if err := h.service.Start(override, middleware.UserID(c)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.service.Status())
}

// Stop brings the server process down with escalation
// POST /server/stop
func (h *ServerHandler) Stop(c *gin.Context) {
	if !h.service.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "Server is not running"})
		return
	}
	h.service.Stop(middleware.UserID(c))
	c.JSON(http.StatusOK, h.service.Status())
}

// Status reports the current process state
// GET /server/status
func (h *ServerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// ExecuteCommand writes a command to the server's stdin
// POST /server/command
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Command is required"})
		return
	}

	if err := h.service.Send(req.Command, middleware.UserID(c)); err != nil {
		c.JSON(http.StatusConflict, models.CommandResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.CommandResponse{Success: true})
}
