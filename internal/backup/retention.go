package backup

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
)

// RetentionManager prunes old backups down to a per-installation count.
type RetentionManager struct {
	db      *sql.DB
	manager *Manager
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(db *sql.DB, manager *Manager) *RetentionManager {
	return &RetentionManager{
		db:      db,
		manager: manager,
	}
}

// EnforceRetention deletes the oldest completed local backups beyond the
// retention count. Remote mirrors are left alone; their lifecycle belongs
// to the remote store.
func (rm *RetentionManager) EnforceRetention(installation string, retentionCount int) error {
	if retentionCount <= 0 {
		return nil
	}

	backups, err := rm.manager.ListBackups(installation)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	var completed []*BackupRecord
	for _, backup := range backups {
		if backup.Status == "completed" && backup.Destination == "local" {
			completed = append(completed, backup)
		}
	}

	if len(completed) <= retentionCount {
		return nil
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})

	deleted := 0
	for i := retentionCount; i < len(completed); i++ {
		backup := completed[i]
		log.Printf("[Retention] Deleting old backup: %s (created: %s)",
			backup.ID, backup.CreatedAt.Format("2006-01-02 15:04:05"))

		if err := rm.manager.DeleteBackup(backup.ID); err != nil {
			log.Printf("[Retention] Error deleting backup %s: %v", backup.ID, err)
			continue
		}
		deleted++
	}

	log.Printf("[Retention] Enforced retention for %s: deleted %d backups (keep %d)",
		installation, deleted, retentionCount)
	return nil
}

// EnforceAllRetentions prunes backups for every enabled schedule.
func (rm *RetentionManager) EnforceAllRetentions() error {
	rows, err := rm.db.Query(`
		SELECT installation, retention
		FROM backup_schedules
		WHERE enabled = 1 AND retention > 0
	`)
	if err != nil {
		return fmt.Errorf("failed to query backup schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var installation string
		var retention int
		if err := rows.Scan(&installation, &retention); err != nil {
			log.Printf("[Retention] Error scanning row: %v", err)
			continue
		}
		if err := rm.EnforceRetention(installation, retention); err != nil {
			log.Printf("[Retention] Error enforcing retention for %s: %v", installation, err)
		}
	}
	return rows.Err()
}
