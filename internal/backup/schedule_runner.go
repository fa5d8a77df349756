package backup

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/models"
)

// ScheduleRunner executes scheduled backups. It polls the database for
// due schedules instead of keeping an in-memory cron table, so edits
// take effect without a restart.
type ScheduleRunner struct {
	registry  *config.InstallationRegistry
	manager   *Manager
	retention *RetentionManager
	store     *ScheduleStore
	interval  time.Duration
}

// NewScheduleRunner wires a runner over the given backup manager.
func NewScheduleRunner(db *sql.DB, registry *config.InstallationRegistry, manager *Manager) *ScheduleRunner {
	return &ScheduleRunner{
		registry:  registry,
		manager:   manager,
		retention: NewRetentionManager(db, manager),
		store:     NewScheduleStore(db),
		interval:  30 * time.Second,
	}
}

// Start launches the polling loop; it stops when ctx is cancelled.
func (sr *ScheduleRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[BackupSchedule] Stopping schedule runner")
				return
			case <-ticker.C:
				sr.runDueSchedules()
			}
		}
	}()
}

func (sr *ScheduleRunner) runDueSchedules() {
	now := time.Now()
	schedules, err := sr.store.ListDue(now)
	if err != nil {
		log.Printf("[BackupSchedule] Failed to list due schedules: %v", err)
		return
	}

	for _, schedule := range schedules {
		nextRun, err := NextRun(schedule.CronExpr, now)
		if err != nil {
			log.Printf("[BackupSchedule] Invalid expression for %s: %v", schedule.Installation, err)
			continue
		}

		if err := sr.store.MarkRun(schedule.ID, now, nextRun); err != nil {
			log.Printf("[BackupSchedule] Failed to update run times: %v", err)
		}

		go sr.execute(schedule)
	}
}

func (sr *ScheduleRunner) execute(schedule *models.BackupSchedule) {
	inst, ok := sr.registry.Get(schedule.Installation)
	if !ok {
		log.Printf("[BackupSchedule] Installation %s no longer exists; skipping", schedule.Installation)
		return
	}

	// Scheduled backups never force; a running server skips the cycle.
	if _, err := sr.manager.CreateBackup(inst, nil, false); err != nil {
		log.Printf("[BackupSchedule] Backup failed for %s: %v", schedule.Installation, err)
		return
	}

	if schedule.Retention > 0 {
		if err := sr.retention.EnforceRetention(schedule.Installation, schedule.Retention); err != nil {
			log.Printf("[BackupSchedule] Retention enforcement failed for %s: %v", schedule.Installation, err)
		}
	}
}
