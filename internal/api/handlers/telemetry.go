package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/console"
	"github.com/yourusername/bedrockd/internal/telemetry"
)

// TelemetryHandler serves resource snapshots of the supervised process.
type TelemetryHandler struct {
	monitor *telemetry.Monitor
	service *console.Service
}

func NewTelemetryHandler(monitor *telemetry.Monitor, service *console.Service) *TelemetryHandler {
	return &TelemetryHandler{
		monitor: monitor,
		service: service,
	}
}

// Latest returns the most recent snapshot
// GET /telemetry
func (h *TelemetryHandler) Latest(c *gin.Context) {
	snapshot := h.monitor.Latest()
	c.JSON(http.StatusOK, gin.H{
		"running":  h.service.IsRunning(),
		"snapshot": snapshot,
	})
}
