package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/config"
)

type SettingsHandler struct {
	cfg        *config.Config
	configPath string
}

type SettingsPayload struct {
	Security    config.SecurityConfig    `json:"security"`
	Logging     config.LoggingConfig     `json:"logging"`
	Supervision config.SupervisionConfig `json:"supervision"`
}

type SettingsResponse struct {
	Security        config.SecurityConfig    `json:"security"`
	Logging         config.LoggingConfig     `json:"logging"`
	Supervision     config.SupervisionConfig `json:"supervision"`
	RequiresRestart bool                     `json:"requires_restart"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{
		cfg:        cfg,
		configPath: config.GetConfigPath(),
	}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, SettingsResponse{
		Security:        h.cfg.Security,
		Logging:         h.cfg.Logging,
		Supervision:     h.cfg.Supervision,
		RequiresRestart: true,
	})
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var payload SettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload.Security.CORS.AllowedOrigins = normalizeList(payload.Security.CORS.AllowedOrigins)
	payload.Security.CORS.AllowedMethods = normalizeList(payload.Security.CORS.AllowedMethods)

	if payload.Supervision.CPUHistorySize <= 0 {
		payload.Supervision.CPUHistorySize = h.cfg.Supervision.CPUHistorySize
	}
	if payload.Supervision.ConsoleBufferMax <= 0 {
		payload.Supervision.ConsoleBufferMax = h.cfg.Supervision.ConsoleBufferMax
	}

	updated := *h.cfg
	updated.Security = payload.Security
	updated.Logging = payload.Logging
	updated.Supervision = payload.Supervision

	if err := config.Save(&updated, h.configPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings", "details": err.Error()})
		return
	}

	h.cfg.Security = updated.Security
	h.cfg.Logging = updated.Logging
	h.cfg.Supervision = updated.Supervision

	c.JSON(http.StatusOK, SettingsResponse{
		Security:        h.cfg.Security,
		Logging:         h.cfg.Logging,
		Supervision:     h.cfg.Supervision,
		RequiresRestart: true,
	})
}

func normalizeList(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	return clean
}
