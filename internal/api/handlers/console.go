package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/console"
	ws "github.com/yourusername/bedrockd/internal/websocket"
)

// ConsoleHandler serves the console buffer and the live stream rooms.
type ConsoleHandler struct {
	config  *config.Config
	service *console.Service
	hub     *ws.Hub
}

func NewConsoleHandler(cfg *config.Config, service *console.Service, hub *ws.Hub) *ConsoleHandler {
	return &ConsoleHandler{
		config:  cfg,
		service: service,
		hub:     hub,
	}
}

// GetHistory returns the buffered console lines
// GET /console/history?limit=N
func (h *ConsoleHandler) GetHistory(c *gin.Context) {
	lines := h.service.History()

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		if limit < len(lines) {
			lines = lines[len(lines)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"lines": lines,
		"count": len(lines),
	})
}

// GetRendered returns the console buffer word-wrapped to a display width
// GET /console/render?width=N
func (h *ConsoleHandler) GetRendered(c *gin.Context) {
	width := 80
	if widthStr := c.Query("width"); widthStr != "" {
		parsed, err := strconv.Atoi(widthStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid width"})
			return
		}
		width = parsed
	}

	lines := h.service.Rendered(width)
	c.JSON(http.StatusOK, gin.H{
		"lines": lines,
		"width": width,
	})
}

// ClearConsole empties the console buffer
// POST /console/clear
func (h *ConsoleHandler) ClearConsole(c *gin.Context) {
	h.service.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "Console cleared"})
}

// GetCommandHistory returns previously sent commands
// GET /console/commands?installation=name&limit=N
func (h *ConsoleHandler) GetCommandHistory(c *gin.Context) {
	installation := c.Query("installation")
	if installation == "" {
		if current, ok := h.service.Current(); ok {
			installation = current.Name
		}
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := h.service.CommandHistory(installation, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"installation": installation,
		"commands":     records,
	})
}

// StreamRoom upgrades the connection and joins clients into a hub room
// WS /ws/console, /ws/status, /ws/telemetry
func (h *ConsoleHandler) StreamRoom(room string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.handleWebSocket(c, room)
	}
}

func (h *ConsoleHandler) handleWebSocket(c *gin.Context, room string) {
	username := c.GetString("username")

	upgrader := buildUpgrader(h.config.Security.CORS.AllowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s, room=%s)", err, c.Request.Header.Get("Origin"), room)
		return
	}

	client := &ws.Client{
		ID:       uuid.New().String(),
		Username: username,
		Conn:     conn,
		Room:     room,
		Send:     make(chan *ws.Message, 1024),
		Hub:      h.hub,
	}

	h.hub.Register <- client

	// New console viewers get the buffered tail before live lines.
	if room == ws.RoomConsole {
		go func() {
			lines := h.service.History()
			if len(lines) > 100 {
				lines = lines[len(lines)-100:]
			}
			for _, line := range lines {
				client.SendMessage("console_line", map[string]interface{}{
					"line":       line,
					"historical": true,
				})
			}
		}()
	}
	if room == ws.RoomStatus {
		go func() {
			client.SendMessage("server_status", h.service.Status())
		}()
	}

	go client.WritePump()
	go client.ReadPump()
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return isOriginAllowed(origin, allowedOrigins)
		},
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == "0.0.0.0/0" || normalized == origin {
			return true
		}
	}

	return false
}
