package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/logging"
)

// ActivityHandler serves the recorded activity feed.
type ActivityHandler struct {
	activity *logging.ActivityLogger
}

func NewActivityHandler(activity *logging.ActivityLogger) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// Recent returns the latest activity entries
// GET /activity?installation=name&limit=N
func (h *ActivityHandler) Recent(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.activity.Recent(c.Query("installation"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
