package models

import "time"

// Backup status values
const (
	BackupStatusCreating  = "creating"
	BackupStatusUploading = "uploading"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

// Backup represents an archived server installation
type Backup struct {
	ID           string     `json:"id"`
	Installation string     `json:"installation"`
	Filename     string     `json:"filename"`
	Size         int64      `json:"size"` // bytes
	Destination  string     `json:"destination"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CreateBackupRequest represents a backup creation request
type CreateBackupRequest struct {
	Destinations []string `json:"destinations,omitempty"` // If empty, use all configured
	Force        bool     `json:"force,omitempty"`        // Archive even while the server runs
}

// RestoreBackupRequest represents a backup restore request
type RestoreBackupRequest struct {
	BackupID string `json:"backup_id" binding:"required"`
}

// BackupSchedule represents a recurring backup for one installation
type BackupSchedule struct {
	ID           int64      `json:"id"`
	Installation string     `json:"installation"`
	CronExpr     string     `json:"cron_expr"`
	Retention    int        `json:"retention"`
	Enabled      bool       `json:"enabled"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Release represents a downloaded Bedrock Dedicated Server build
type Release struct {
	ID           int64     `json:"id"`
	Version      string    `json:"version"`
	Patchline    string    `json:"patchline"` // "release" or "preview"
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	SHA256       string    `json:"sha256,omitempty"`
	Status       string    `json:"status"`
	DownloadedAt time.Time `json:"downloaded_at"`
}
