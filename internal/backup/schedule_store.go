package backup

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yourusername/bedrockd/internal/models"
)

// ScheduleStore provides CRUD for backup schedules. One schedule per
// installation.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// ValidateCronExpr checks the expression against the standard 5-field
// cron format.
func ValidateCronExpr(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRun computes the next fire time of a cron expression after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// Upsert creates or replaces the schedule for an installation. The next
// run time is computed from the cron expression.
func (s *ScheduleStore) Upsert(installation, cronExpr string, retention int, enabled bool) (*models.BackupSchedule, error) {
	nextRun, err := NextRun(cronExpr, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if retention < 0 {
		retention = 0
	}

	_, err = s.db.Exec(`
		INSERT INTO backup_schedules (installation, cron_expr, retention, enabled, next_run)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(installation) DO UPDATE SET
			cron_expr = excluded.cron_expr,
			retention = excluded.retention,
			enabled = excluded.enabled,
			next_run = excluded.next_run
	`, installation, cronExpr, retention, enabled, nextRun)
	if err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	return s.Get(installation)
}

// Get returns the schedule for an installation.
func (s *ScheduleStore) Get(installation string) (*models.BackupSchedule, error) {
	row := s.db.QueryRow(`
		SELECT id, installation, cron_expr, retention, enabled, last_run, next_run, created_at
		FROM backup_schedules
		WHERE installation = ?
	`, installation)

	schedule, err := scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no schedule for installation: %s", installation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return schedule, nil
}

// List returns every schedule.
func (s *ScheduleStore) List() ([]*models.BackupSchedule, error) {
	rows, err := s.db.Query(`
		SELECT id, installation, cron_expr, retention, enabled, last_run, next_run, created_at
		FROM backup_schedules
		ORDER BY installation
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.BackupSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// ListDue returns enabled schedules whose next run is at or before now.
func (s *ScheduleStore) ListDue(now time.Time) ([]*models.BackupSchedule, error) {
	rows, err := s.db.Query(`
		SELECT id, installation, cron_expr, retention, enabled, last_run, next_run, created_at
		FROM backup_schedules
		WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.BackupSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// MarkRun records a run and advances the next fire time.
func (s *ScheduleStore) MarkRun(id int64, ranAt, nextRun time.Time) error {
	_, err := s.db.Exec(`
		UPDATE backup_schedules SET last_run = ?, next_run = ? WHERE id = ?
	`, ranAt, nextRun, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule run times: %w", err)
	}
	return nil
}

// Delete removes the schedule for an installation.
func (s *ScheduleStore) Delete(installation string) error {
	result, err := s.db.Exec(`DELETE FROM backup_schedules WHERE installation = ?`, installation)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("no schedule for installation: %s", installation)
	}
	return nil
}

func scanSchedule(scan func(...interface{}) error) (*models.BackupSchedule, error) {
	schedule := &models.BackupSchedule{}
	var lastRun, nextRun sql.NullTime

	err := scan(
		&schedule.ID,
		&schedule.Installation,
		&schedule.CronExpr,
		&schedule.Retention,
		&schedule.Enabled,
		&lastRun,
		&nextRun,
		&schedule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		schedule.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		schedule.NextRun = &nextRun.Time
	}
	return schedule, nil
}
