package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityLogger records lifecycle and administrative events to both the
// database and daily JSON-lines files.
type ActivityLogger struct {
	db          *sql.DB
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// Activity represents one logged event.
type Activity struct {
	Timestamp    time.Time              `json:"timestamp"`
	Installation string                 `json:"installation"`
	UserID       *int64                 `json:"user_id,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityServerStart     = "server.start"
	ActivityServerStop      = "server.stop"
	ActivityCommandExecute  = "command.execute"
	ActivityBackupCreate    = "backup.create"
	ActivityBackupRestore   = "backup.restore"
	ActivityReleaseDownload = "release.download"
	ActivityReleaseInstall  = "release.install"
	ActivityConfigUpdate    = "config.update"
	ActivityError           = "error"
)

// NewActivityLogger creates a new activity logger writing under logDir.
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	al := &ActivityLogger{
		db:     db,
		logDir: logDir,
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)
	return al, nil
}

// Log records an activity to both the database and the daily file. Database
// failures are logged and do not block file logging.
func (al *ActivityLogger) Log(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	if err := al.logToDatabase(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// LogServerStart records a server start attempt.
func (al *ActivityLogger) LogServerStart(installation string, userID *int64, success bool, errorMsg string) error {
	return al.Log(&Activity{
		Installation: installation,
		UserID:       userID,
		ActivityType: ActivityServerStart,
		Description:  "Server start requested",
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogServerStop records a server stop request.
func (al *ActivityLogger) LogServerStop(installation string, userID *int64) error {
	return al.Log(&Activity{
		Installation: installation,
		UserID:       userID,
		ActivityType: ActivityServerStop,
		Description:  "Server stop requested",
		Success:      true,
	})
}

// LogCommand records a console command execution.
func (al *ActivityLogger) LogCommand(installation string, userID *int64, command string, success bool, errorMsg string) error {
	return al.Log(&Activity{
		Installation: installation,
		UserID:       userID,
		ActivityType: ActivityCommandExecute,
		Description:  fmt.Sprintf("Command executed: %s", command),
		Metadata:     map[string]interface{}{"command": command},
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogBackup records a backup creation or restore.
func (al *ActivityLogger) LogBackup(installation, activityType, filename string, userID *int64, success bool, errorMsg string) error {
	return al.Log(&Activity{
		Installation: installation,
		UserID:       userID,
		ActivityType: activityType,
		Description:  fmt.Sprintf("Backup %s", filename),
		Metadata:     map[string]interface{}{"filename": filename},
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogRelease records a release download or install.
func (al *ActivityLogger) LogRelease(installation, activityType, version string, userID *int64, success bool, errorMsg string) error {
	return al.Log(&Activity{
		Installation: installation,
		UserID:       userID,
		ActivityType: activityType,
		Description:  fmt.Sprintf("Release %s", version),
		Metadata:     map[string]interface{}{"version": version},
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// Recent returns the newest activities, optionally filtered by installation.
func (al *ActivityLogger) Recent(installation string, limit int) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("activity database not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT created_at, installation, user_id, activity_type, description, metadata, success, error_message
		FROM activity_logs`
	args := []interface{}{}
	if installation != "" {
		query += " WHERE installation = ?"
		args = append(args, installation)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		var a Activity
		var userID sql.NullInt64
		var metadata sql.NullString
		var errMsg sql.NullString
		if err := rows.Scan(&a.Timestamp, &a.Installation, &userID, &a.ActivityType, &a.Description, &metadata, &a.Success, &errMsg); err != nil {
			return nil, err
		}
		if userID.Valid {
			a.UserID = &userID.Int64
		}
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &a.Metadata)
		}
		a.ErrorMessage = errMsg.String
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// Close closes the current log file.
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}
	return nil
}

func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	var metadata []byte
	if len(activity.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(activity.Metadata)
		if err != nil {
			return err
		}
	}

	var userID sql.NullInt64
	if activity.UserID != nil {
		userID = sql.NullInt64{Int64: *activity.UserID, Valid: true}
	}

	_, err := al.db.Exec(`
		INSERT INTO activity_logs (created_at, installation, user_id, activity_type, description, metadata, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, activity.Timestamp, activity.Installation, userID, activity.ActivityType, activity.Description, string(metadata), activity.Success, activity.ErrorMessage)
	return err
}

// logToFile appends the activity as one JSON line to the current day's
// file, rotating when the date changes.
func (al *ActivityLogger) logToFile(activity *Activity) error {
	date := activity.Timestamp.Format("2006-01-02")
	if al.currentFile == nil || al.currentDate != date {
		if al.currentFile != nil {
			al.currentFile.Close()
		}

		path := filepath.Join(al.logDir, fmt.Sprintf("activity_%s.jsonl", date))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open activity log: %w", err)
		}
		al.currentFile = file
		al.currentDate = date
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = al.currentFile.Write(line)
	return err
}
