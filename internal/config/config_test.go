package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigPathPrefersParentConfigs(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: 0.0.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	backendDir := filepath.Join(root, "backend")
	if err := os.MkdirAll(backendDir, 0755); err != nil {
		t.Fatalf("failed to create backend dir: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if err := os.Chdir(backendDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}

	resolved := resolveConfigPath()
	if resolved != "../configs/config.yaml" {
		t.Fatalf("expected ../configs/config.yaml, got %s", resolved)
	}
}

func TestResolveConfigPathUsesLocalConfigs(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: 0.0.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if err := os.Chdir(root); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}

	resolved := resolveConfigPath()
	if resolved != "./configs/config.yaml" {
		t.Fatalf("expected ./configs/config.yaml, got %s", resolved)
	}
}

func TestNormalizeStoragePathsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.normalizeStoragePaths("configs/config.yaml")

	if cfg.Storage.ConfigDir == "" {
		t.Fatalf("expected ConfigDir to be set")
	}
	if cfg.Storage.DataDir == "" {
		t.Fatalf("expected DataDir to be set")
	}
	if cfg.Storage.BackupDir == "" {
		t.Fatalf("expected BackupDir to be set")
	}
	if cfg.Security.SSH.KnownHostsPath == "" {
		t.Fatalf("expected KnownHostsPath to be set")
	}
}

func TestSupervisionDurationDefaults(t *testing.T) {
	var s SupervisionConfig

	if got := s.StatsIntervalDuration(); got.Seconds() != 1 {
		t.Fatalf("expected 1s stats interval default, got %s", got)
	}
	if got := s.StopGraceDuration(); got.Seconds() != 5 {
		t.Fatalf("expected 5s stop grace default, got %s", got)
	}
	if got := s.KillGraceDuration(); got.Seconds() != 3 {
		t.Fatalf("expected 3s kill grace default, got %s", got)
	}
}

func TestSupervisionDurationParsing(t *testing.T) {
	s := SupervisionConfig{
		StatsInterval:   "250ms",
		StopGracePeriod: "10s",
		KillGracePeriod: "garbage",
	}

	if got := s.StatsIntervalDuration().Milliseconds(); got != 250 {
		t.Fatalf("expected 250ms, got %dms", got)
	}
	if got := s.StopGraceDuration().Seconds(); got != 10 {
		t.Fatalf("expected 10s, got %s", s.StopGraceDuration())
	}
	if got := s.KillGraceDuration().Seconds(); got != 3 {
		t.Fatalf("invalid duration should fall back to 3s, got %s", s.KillGraceDuration())
	}
}

func TestValidateRejectsBadSupervision(t *testing.T) {
	cfg := &Config{
		Auth: AuthConfig{JWTSecret: "a-real-secret", BcryptCost: 12},
		Supervision: SupervisionConfig{
			CPUHistorySize:   0,
			ConsoleBufferMax: 2000,
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for zero cpu_history_size")
	}
}
