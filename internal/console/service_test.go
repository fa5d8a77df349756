package console

import (
	"strings"
	"testing"
	"time"

	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/models"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()

	configDir := t.TempDir()
	registry, err := config.NewInstallationRegistry(configDir)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	serverDir := t.TempDir()
	if err := registry.Add(config.Installation{Name: "main", Path: serverDir, ServerCmd: "./bedrock_server"}); err != nil {
		t.Fatalf("failed to add installation: %v", err)
	}

	svc := NewService(nil, nil, registry, nil, Options{
		BufferMax:       100,
		StopGracePeriod: 500 * time.Millisecond,
		KillGracePeriod: 500 * time.Millisecond,
	})
	return svc, serverDir
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func hasLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestAttachUnknownInstallation(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("nope"); err == nil {
		t.Fatalf("expected error for unknown installation")
	}
}

func TestStartWithoutAttach(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Start("", nil); err == nil {
		t.Fatalf("expected error when no installation is attached")
	}
}

func TestStartBuffersOutput(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	if err := svc.Start("printf 'line one\\nline two\\n'", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return hasLine(svc.History(), "line two")
	}, "output to reach the buffer")

	if !hasLine(svc.History(), "line one") {
		t.Fatalf("expected first line in buffer, got %v", svc.History())
	}

	waitFor(t, 2*time.Second, func() bool { return !svc.IsRunning() }, "process exit")
	if !hasLine(svc.History(), "Server exited") {
		t.Fatalf("expected exit notice in buffer")
	}
}

func TestAttachWhileRunningRejected(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	if err := svc.Start("sleep 5", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer svc.Stop(nil)

	if err := svc.Attach("main"); err == nil {
		t.Fatalf("expected attach to be rejected while running")
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	if got := svc.Status().State; got != models.StateStopped {
		t.Fatalf("expected stopped before start, got %s", got)
	}

	if err := svc.Start("sleep 5", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	status := svc.Status()
	if status.State != models.StateRunning {
		t.Fatalf("expected running, got %s", status.State)
	}
	if status.PID == 0 {
		t.Fatalf("expected PID to be populated")
	}
	if status.Installation != "main" {
		t.Fatalf("expected installation name, got %q", status.Installation)
	}

	svc.Stop(nil)
	waitFor(t, 2*time.Second, func() bool {
		return svc.Status().State == models.StateStopped
	}, "stopped state after Stop")
}

func TestSendNotRunning(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := svc.Send("say hi", nil); err == nil {
		t.Fatalf("expected send to fail when not running")
	}
}

func TestSendReachesProcess(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	// cat echoes stdin back to stdout
	if err := svc.Start("cat", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer svc.Stop(nil)

	if err := svc.Send("say hello", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return hasLine(svc.History(), "say hello")
	}, "echoed command in buffer")
}

func TestClearEmptiesBuffer(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Attach("main"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	if err := svc.Start("printf 'noise\\n'", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return !svc.IsRunning() }, "process exit")

	svc.Clear()
	if len(svc.History()) != 0 {
		t.Fatalf("expected empty buffer after clear")
	}
}
