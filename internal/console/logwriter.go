package console

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogWriter persists the console stream of one supervised run to disk.
// One file is opened per run and closed when the process exits.
type LogWriter struct {
	installation string
	logPath      string
	file         *os.File
	db           *sql.DB
	mu           sync.Mutex
	recordID     int64
}

// NewLogWriter opens a fresh timestamped log file for the installation and
// records it in console_log_files. db may be nil for file-only operation.
func NewLogWriter(db *sql.DB, logDir, installation string) (*LogWriter, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("console_%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	lw := &LogWriter{
		installation: installation,
		logPath:      logPath,
		file:         file,
		db:           db,
	}

	if db != nil {
		result, err := db.Exec(`
			INSERT INTO console_log_files (installation, path) VALUES (?, ?)
		`, installation, logPath)
		if err != nil {
			log.Printf("[LogWriter] Failed to record log file: %v", err)
		} else if id, err := result.LastInsertId(); err == nil {
			lw.recordID = id
		}
	}

	log.Printf("[LogWriter] Writing console log for %s: %s", installation, logPath)
	return lw, nil
}

// Path returns the on-disk path of the current log file.
func (lw *LogWriter) Path() string {
	return lw.logPath
}

// WriteLine appends a timestamped line to the log file.
func (lw *LogWriter) WriteLine(line string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.file == nil {
		return fmt.Errorf("log writer is closed")
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(lw.file, "[%s] %s\n", timestamp, line); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Close flushes and closes the log file and stamps the database record.
func (lw *LogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.file == nil {
		return nil
	}

	err := lw.file.Close()
	lw.file = nil

	if lw.db != nil && lw.recordID > 0 {
		if _, dbErr := lw.db.Exec(`
			UPDATE console_log_files SET closed_at = CURRENT_TIMESTAMP WHERE id = ?
		`, lw.recordID); dbErr != nil {
			log.Printf("[LogWriter] Failed to close log record: %v", dbErr)
		}
	}

	return err
}

// CleanupOldLogs deletes console log files older than the retention period.
func CleanupOldLogs(db *sql.DB, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	rows, err := db.Query(`
		SELECT id, path FROM console_log_files WHERE started_at < ?
	`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	type record struct {
		id   int64
		path string
	}
	var old []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.id, &r.path); err != nil {
			log.Printf("[LogWriter] Failed to scan log row: %v", err)
			continue
		}
		old = append(old, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	deleted := 0
	for _, r := range old {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			log.Printf("[LogWriter] Failed to delete log file %s: %v", r.path, err)
			continue
		}
		if _, err := db.Exec(`DELETE FROM console_log_files WHERE id = ?`, r.id); err != nil {
			log.Printf("[LogWriter] Failed to delete log record: %v", err)
			continue
		}
		deleted++
	}

	log.Printf("[LogWriter] Cleaned up %d old console logs (retention: %d days)", deleted, retentionDays)
	return nil
}
