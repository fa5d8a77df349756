package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/database"
)

func newTestManager(t *testing.T, isRunning RunningFunc) (*Manager, *database.DB, *config.Config) {
	t.Helper()

	root := t.TempDir()
	db, err := database.NewDB(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.Storage.BackupDir = filepath.Join(root, "backups")
	cfg.Storage.InstancesDir = filepath.Join(root, "instances")

	return NewManager(db.DB, cfg, isRunning), db, cfg
}

func testInstallation(t *testing.T) config.Installation {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "server.properties"), "level-name=world")
	writeFile(t, filepath.Join(dir, "worlds", "world", "level.dat"), "data")
	return config.Installation{Name: "main", Path: dir, ServerCmd: "./bedrock_server"}
}

func TestManagerCreateListGet(t *testing.T) {
	m, _, cfg := newTestManager(t, nil)
	inst := testInstallation(t)

	record, err := m.CreateBackup(inst, nil, false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if record.Status != "completed" || record.Destination != "local" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.BackupDir, record.Filename)); err != nil {
		t.Fatalf("archive missing on disk: %v", err)
	}

	backups, err := m.ListBackups("main")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(backups) != 1 || backups[0].ID != record.ID {
		t.Fatalf("unexpected list result: %+v", backups)
	}

	got, err := m.GetBackup(record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Filename != record.Filename {
		t.Fatalf("filename mismatch")
	}
}

func TestManagerRefusesWhileRunning(t *testing.T) {
	m, _, _ := newTestManager(t, func() bool { return true })
	inst := testInstallation(t)

	if _, err := m.CreateBackup(inst, nil, false); err == nil {
		t.Fatalf("expected backup of running server to be refused")
	}

	// force overrides the check
	if _, err := m.CreateBackup(inst, nil, true); err != nil {
		t.Fatalf("forced backup failed: %v", err)
	}
}

func TestManagerRestore(t *testing.T) {
	m, _, cfg := newTestManager(t, nil)
	inst := testInstallation(t)

	record, err := m.CreateBackup(inst, nil, false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	restored, err := m.RestoreBackup(record.ID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if filepath.Dir(restored) != cfg.Storage.InstancesDir {
		t.Fatalf("restored outside instances dir: %s", restored)
	}
	if _, err := os.Stat(filepath.Join(restored, "worlds", "world", "level.dat")); err != nil {
		t.Fatalf("world data missing after restore: %v", err)
	}
}

func TestManagerRestoreRefusedWhileRunning(t *testing.T) {
	running := false
	m, _, _ := newTestManager(t, func() bool { return running })
	inst := testInstallation(t)

	record, err := m.CreateBackup(inst, nil, false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	running = true
	if _, err := m.RestoreBackup(record.ID); err == nil {
		t.Fatalf("expected restore to be refused while running")
	}
}

func TestManagerDelete(t *testing.T) {
	m, _, cfg := newTestManager(t, nil)
	inst := testInstallation(t)

	record, err := m.CreateBackup(inst, nil, false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := m.DeleteBackup(record.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.BackupDir, record.Filename)); !os.IsNotExist(err) {
		t.Fatalf("expected archive file to be removed")
	}
	if _, err := m.GetBackup(record.ID); err == nil {
		t.Fatalf("expected record to be gone")
	}
}

func TestRetentionKeepsNewest(t *testing.T) {
	m, db, _ := newTestManager(t, nil)
	inst := testInstallation(t)

	var ids []string
	for i := 0; i < 4; i++ {
		record, err := m.CreateBackup(inst, nil, false)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		// Spread creation times so ordering is deterministic
		createdAt := time.Now().Add(time.Duration(i-4) * time.Minute)
		if _, err := db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, createdAt, record.ID); err != nil {
			t.Fatalf("failed to adjust created_at: %v", err)
		}
		ids = append(ids, record.ID)
	}

	rm := NewRetentionManager(db.DB, m)
	if err := rm.EnforceRetention("main", 2); err != nil {
		t.Fatalf("retention failed: %v", err)
	}

	backups, err := m.ListBackups("main")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after retention, got %d", len(backups))
	}
	// The two newest survive
	for _, b := range backups {
		if b.ID != ids[2] && b.ID != ids[3] {
			t.Fatalf("unexpected survivor %s", b.ID)
		}
	}
}
