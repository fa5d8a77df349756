package middleware

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Audit records every mutating API call into activity_logs. Reads are
// skipped so the activity feed stays a history of actions, not traffic.
func Audit(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/health" {
			return
		}

		status := c.Writer.Status()
		success := status < 400

		var userIDValue interface{}
		if value, exists := c.Get("user_id"); exists {
			userIDValue = value.(int64)
		}

		installation := c.Param("name")

		metadataJSON, _ := json.Marshal(map[string]interface{}{
			"status": status,
			"ip":     c.ClientIP(),
		})

		_, _ = db.Exec(`
			INSERT INTO activity_logs (installation, user_id, activity_type, description, metadata, success)
			VALUES (?, ?, ?, ?, ?, ?)
		`, installation, userIDValue, "api_call", fmt.Sprintf("%s %s", c.Request.Method, path), string(metadataJSON), success)
	}
}
