package backup

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/bedrockd/internal/config"
)

// RunningFunc reports whether the supervised server is currently running.
type RunningFunc func() bool

// Manager orchestrates backup creation, mirroring, restore and deletion.
// Archives are always created in the local backup directory first; remote
// destinations receive copies.
type Manager struct {
	db           *sql.DB
	backupDir    string
	instancesDir string
	destinations []config.BackupDestination
	sshConfig    config.SSHConfig
	isRunning    RunningFunc
}

// BackupRecord represents a backup row in the database
type BackupRecord struct {
	ID           string     `json:"id"`
	Installation string     `json:"installation"`
	Filename     string     `json:"filename"`
	SizeBytes    int64      `json:"size_bytes"`
	Destination  string     `json:"destination"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewManager creates a backup manager. isRunning may be nil when no
// supervisor is wired (tools, tests).
func NewManager(db *sql.DB, cfg *config.Config, isRunning RunningFunc) *Manager {
	return &Manager{
		db:           db,
		backupDir:    cfg.Storage.BackupDir,
		instancesDir: cfg.Storage.InstancesDir,
		destinations: cfg.Backup.Destinations,
		sshConfig:    cfg.Security.SSH,
		isRunning:    isRunning,
	}
}

// CreateBackup archives the installation directory and mirrors the
// archive to the named remote destinations. Backing up a running server
// risks a torn world save, so it is refused unless force is set.
func (m *Manager) CreateBackup(inst config.Installation, destNames []string, force bool) (*BackupRecord, error) {
	if m.isRunning != nil && m.isRunning() && !force {
		return nil, fmt.Errorf("server is running; stop it first or force the backup")
	}

	backupID := "backup-" + uuid.New().String()[:8]
	log.Printf("[BackupMgr] Creating backup %s for %s", backupID, inst.Name)

	record := &BackupRecord{
		ID:           backupID,
		Installation: inst.Name,
		Destination:  "local",
		Status:       "creating",
		CreatedAt:    time.Now(),
	}
	if err := m.saveRecord(record); err != nil {
		return nil, fmt.Errorf("failed to save backup record: %w", err)
	}

	info, err := CreateArchive(inst.Path, inst.Name, m.backupDir)
	if err != nil {
		record.Status = "failed"
		record.ErrorMessage = err.Error()
		m.saveRecord(record)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	record.Filename = info.Filename
	record.SizeBytes = info.SizeBytes
	record.Status = "completed"
	now := time.Now()
	record.CompletedAt = &now
	if err := m.saveRecord(record); err != nil {
		log.Printf("[BackupMgr] Warning: Failed to update backup status: %v", err)
	}

	for _, destName := range destNames {
		if err := m.mirror(record, info, destName); err != nil {
			log.Printf("[BackupMgr] Mirror to %s failed: %v", destName, err)
		}
	}

	log.Printf("[BackupMgr] Backup %s created: %s (%d bytes)", backupID, info.Filename, info.SizeBytes)
	return record, nil
}

// mirror uploads the local archive to one named remote destination and
// records the copy as its own backup row.
func (m *Manager) mirror(local *BackupRecord, info *ArchiveInfo, destName string) error {
	destCfg, err := m.destinationConfig(destName)
	if err != nil {
		return err
	}

	record := &BackupRecord{
		ID:           "backup-" + uuid.New().String()[:8],
		Installation: local.Installation,
		Filename:     local.Filename,
		SizeBytes:    local.SizeBytes,
		Destination:  destName,
		Status:       "uploading",
		CreatedAt:    time.Now(),
	}
	if err := m.saveRecord(record); err != nil {
		return fmt.Errorf("failed to save mirror record: %w", err)
	}

	dest, err := NewDestination(destCfg)
	if err != nil {
		record.Status = "failed"
		record.ErrorMessage = err.Error()
		m.saveRecord(record)
		return err
	}
	if sftpDest, ok := dest.(*SFTPDestination); ok {
		defer sftpDest.Close()
	}

	file, err := os.Open(info.Path)
	if err != nil {
		record.Status = "failed"
		record.ErrorMessage = err.Error()
		m.saveRecord(record)
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	if err := dest.Upload(info.Filename, file, info.SizeBytes); err != nil {
		record.Status = "failed"
		record.ErrorMessage = err.Error()
		m.saveRecord(record)
		return err
	}

	record.Status = "completed"
	now := time.Now()
	record.CompletedAt = &now
	return m.saveRecord(record)
}

// RestoreBackup restores a backup into the instances directory and
// returns the restored path. Remote backups are fetched into the local
// backup directory first. Restoring over a running server is refused.
func (m *Manager) RestoreBackup(backupID string) (string, error) {
	if m.isRunning != nil && m.isRunning() {
		return "", fmt.Errorf("server is running; stop it before restoring")
	}

	record, err := m.GetBackup(backupID)
	if err != nil {
		return "", err
	}
	if record.Status != "completed" {
		return "", fmt.Errorf("backup is not in completed state: %s", record.Status)
	}

	archivePath := filepath.Join(m.backupDir, record.Filename)
	if record.Destination != "local" {
		if _, err := os.Stat(archivePath); err != nil {
			if err := m.fetch(record, archivePath); err != nil {
				return "", err
			}
		}
	}

	restored, err := RestoreArchive(archivePath, m.instancesDir, record.Installation)
	if err != nil {
		return "", fmt.Errorf("failed to restore backup: %w", err)
	}

	log.Printf("[BackupMgr] Backup %s restored to %s", backupID, restored)
	return restored, nil
}

// fetch downloads a remote backup archive to the local path.
func (m *Manager) fetch(record *BackupRecord, localPath string) error {
	destCfg, err := m.destinationConfig(record.Destination)
	if err != nil {
		return err
	}

	dest, err := NewDestination(destCfg)
	if err != nil {
		return err
	}
	if sftpDest, ok := dest.(*SFTPDestination); ok {
		defer sftpDest.Close()
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local archive: %w", err)
	}
	defer file.Close()

	if err := dest.Download(record.Filename, file); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download backup: %w", err)
	}
	return nil
}

// DeleteBackup removes the backup from its destination and deletes the row.
func (m *Manager) DeleteBackup(backupID string) error {
	record, err := m.GetBackup(backupID)
	if err != nil {
		return err
	}

	if record.Destination == "local" {
		if err := os.Remove(filepath.Join(m.backupDir, record.Filename)); err != nil && !os.IsNotExist(err) {
			log.Printf("[BackupMgr] Warning: Failed to delete archive file: %v", err)
		}
	} else if destCfg, err := m.destinationConfig(record.Destination); err == nil {
		if dest, err := NewDestination(destCfg); err == nil {
			if sftpDest, ok := dest.(*SFTPDestination); ok {
				defer sftpDest.Close()
			}
			if err := dest.Delete(record.Filename); err != nil {
				log.Printf("[BackupMgr] Warning: Failed to delete from destination: %v", err)
			}
		}
	}

	if _, err := m.db.Exec(`DELETE FROM backups WHERE id = ?`, backupID); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}

	log.Printf("[BackupMgr] Backup %s deleted", backupID)
	return nil
}

// ListBackups returns all backups for an installation, newest first.
// An empty installation lists everything.
func (m *Manager) ListBackups(installation string) ([]*BackupRecord, error) {
	query := `
		SELECT id, installation, filename, size_bytes, destination, status,
		       error_message, created_at, completed_at
		FROM backups
	`
	args := []interface{}{}
	if installation != "" {
		query += ` WHERE installation = ?`
		args = append(args, installation)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var backups []*BackupRecord
	for rows.Next() {
		record, err := scanBackup(rows.Scan)
		if err != nil {
			return nil, err
		}
		backups = append(backups, record)
	}
	return backups, rows.Err()
}

// GetBackup retrieves one backup by id.
func (m *Manager) GetBackup(backupID string) (*BackupRecord, error) {
	row := m.db.QueryRow(`
		SELECT id, installation, filename, size_bytes, destination, status,
		       error_message, created_at, completed_at
		FROM backups
		WHERE id = ?
	`, backupID)

	record, err := scanBackup(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup not found: %s", backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}
	return record, nil
}

func scanBackup(scan func(...interface{}) error) (*BackupRecord, error) {
	record := &BackupRecord{}
	var errorMsg sql.NullString
	var completedAt sql.NullTime

	err := scan(
		&record.ID,
		&record.Installation,
		&record.Filename,
		&record.SizeBytes,
		&record.Destination,
		&record.Status,
		&errorMsg,
		&record.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if errorMsg.Valid {
		record.ErrorMessage = errorMsg.String
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	return record, nil
}

func (m *Manager) saveRecord(record *BackupRecord) error {
	_, err := m.db.Exec(`
		INSERT OR REPLACE INTO backups
		(id, installation, filename, size_bytes, destination, status, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Installation,
		record.Filename,
		record.SizeBytes,
		record.Destination,
		record.Status,
		record.ErrorMessage,
		record.CreatedAt,
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

// destinationConfig resolves a configured remote destination by name.
func (m *Manager) destinationConfig(name string) (*DestinationConfig, error) {
	for _, d := range m.destinations {
		if d.Name != name {
			continue
		}
		cfg := &DestinationConfig{
			Type:            d.Type,
			Path:            d.Path,
			SFTPHost:        d.Host,
			SFTPPort:        d.Port,
			SFTPUsername:    d.Username,
			SFTPPassword:    d.Password,
			SFTPKeyPath:     d.KeyPath,
			KnownHostsPath:  m.sshConfig.KnownHostsPath,
			TrustOnFirstUse: m.sshConfig.TrustOnFirstUse,
			S3Bucket:        d.Bucket,
			S3Region:        d.Region,
			S3AccessKey:     d.AccessKey,
			S3SecretKey:     d.SecretKey,
			S3Endpoint:      d.Endpoint,
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("unknown backup destination: %s", name)
}
