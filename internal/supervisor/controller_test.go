package supervisor

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects log lines and status transitions from a controller under
// test and lets tests wait for asynchronous delivery.
type recorder struct {
	mu       sync.Mutex
	lines    []string
	statuses []bool
}

func (r *recorder) logLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) status(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, online)
}

func (r *recorder) snapshotLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *recorder) snapshotStatuses() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func (r *recorder) hasLine(substr string) bool {
	for _, line := range r.snapshotLines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
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

func newTestController(rec *recorder) *Controller {
	return NewController(rec.logLine, rec.status, Options{
		StopGracePeriod: 500 * time.Millisecond,
		KillGracePeriod: 500 * time.Millisecond,
	})
}

func TestIsRunningBeforeStart(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if c.IsRunning() {
		t.Fatalf("controller should not report running before start")
	}
	if _, ok := c.PID(); ok {
		t.Fatalf("PID should be absent before start")
	}
}

func TestStartStreamsOutput(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start(`printf 'hello\nworld\n'`, t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return rec.hasLine("hello") && rec.hasLine("world")
	}, "child output to reach the log sink")

	waitFor(t, 5*time.Second, func() bool {
		return rec.hasLine("Server exited (code 0).")
	}, "exit notice")

	waitFor(t, 5*time.Second, func() bool { return !c.IsRunning() }, "controller to release the handle")

	statuses := rec.snapshotStatuses()
	if len(statuses) != 2 || !statuses[0] || statuses[1] {
		t.Fatalf("expected online then offline, got %v", statuses)
	}
}

func TestStartReportsOnlineAndPID(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("sleep 30", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	if !c.IsRunning() {
		t.Fatalf("controller should report running after start")
	}
	if pid, ok := c.PID(); !ok || pid <= 0 {
		t.Fatalf("expected a valid PID, got %d (ok=%v)", pid, ok)
	}
	if !rec.hasLine("Server started (PID=") {
		t.Fatalf("expected start notice, got %v", rec.snapshotLines())
	}

	statuses := rec.snapshotStatuses()
	if len(statuses) != 1 || !statuses[0] {
		t.Fatalf("expected a single online status, got %v", statuses)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("sleep 30", t.TempDir()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Start("sleep 30", t.TempDir()); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if !rec.hasLine("Server is already running.") {
		t.Fatalf("expected already-running notice")
	}
	if statuses := rec.snapshotStatuses(); len(statuses) != 1 {
		t.Fatalf("second start must not fire the status callback again: %v", statuses)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	err := c.Start("sleep 30", "/nonexistent/working/dir")
	if err == nil {
		c.Stop()
		t.Fatalf("expected spawn failure for missing working directory")
	}

	if c.IsRunning() {
		t.Fatalf("no process state should exist after a failed spawn")
	}
	if statuses := rec.snapshotStatuses(); len(statuses) != 0 {
		t.Fatalf("failed spawn must not fire the status callback: %v", statuses)
	}
}

func TestSendWritesCommandWithNewline(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	// cat echoes stdin back to stdout, so the sink observing the exact text
	// proves the bytes `say hi\n` reached the child's input.
	if err := c.Start("cat", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Send("say hi"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return rec.hasLine("say hi") }, "command echo")
}

func TestSendWhileNotRunning(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Send("list"); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if !rec.hasLine("Server is not running.") {
		t.Fatalf("expected not-running notice")
	}
}

func TestStopWithoutProcessIsNoop(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	c.Stop()

	if lines := rec.snapshotLines(); len(lines) != 0 {
		t.Fatalf("no-op stop should not log, got %v", lines)
	}
	if statuses := rec.snapshotStatuses(); len(statuses) != 0 {
		t.Fatalf("no-op stop must not fire the status callback: %v", statuses)
	}
}

func TestStopGracefulShutdown(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("sleep 60", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not complete")
	}

	if c.IsRunning() {
		t.Fatalf("controller should be offline after stop")
	}
	if rec.hasLine("force killing") {
		t.Fatalf("cooperative child should not require a force kill")
	}

	statuses := rec.snapshotStatuses()
	if len(statuses) != 2 || !statuses[0] || statuses[1] {
		t.Fatalf("expected online then offline, got %v", statuses)
	}
}

func TestStopEscalatesToForceKill(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	// The shell ignores SIGTERM and keeps respawning short sleeps, so only
	// the SIGKILL escalation path can take it down.
	script := `trap '' TERM; while true; do sleep 0.1; done`
	if err := c.Start(script, t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("stop did not complete")
	}

	if !rec.hasLine("Server did not stop in time; force killing...") {
		t.Fatalf("expected force-kill notice, got %v", rec.snapshotLines())
	}
	if c.IsRunning() {
		t.Fatalf("controller should be offline after forced stop")
	}
}

func TestChildExitReleasesWithoutStop(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("exit 7", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return rec.hasLine("Server exited (code 7).")
	}, "exit notice with code")

	waitFor(t, 5*time.Second, func() bool { return !c.IsRunning() }, "handle release")

	// Stop after self-exit stays a no-op.
	c.Stop()

	statuses := rec.snapshotStatuses()
	if len(statuses) != 2 || !statuses[0] || statuses[1] {
		t.Fatalf("expected exactly online then offline, got %v", statuses)
	}
}

func TestChildExitObservedWhileDescendantHoldsPipes(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	// The backgrounded sleep inherits the shell's stdout/stderr, so the
	// pipes stay open long after the shell itself exits. Exit detection
	// must not depend on the pipes reaching EOF.
	if err := c.Start("sleep 60 & echo started; exit 7", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return rec.hasLine("started") }, "child output")
	waitFor(t, 5*time.Second, func() bool {
		return rec.hasLine("Server exited (code 7).")
	}, "exit notice despite the held pipes")
	waitFor(t, 5*time.Second, func() bool { return !c.IsRunning() }, "handle release")

	statuses := rec.snapshotStatuses()
	if len(statuses) != 2 || !statuses[0] || statuses[1] {
		t.Fatalf("expected online then offline, got %v", statuses)
	}
}

func TestSendAfterStdinClosed(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("cat", t.TempDir()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	c.mu.Lock()
	stdin := c.proc.stdin
	c.mu.Unlock()
	if err := stdin.Close(); err != nil {
		t.Fatalf("failed to close stdin: %v", err)
	}

	if err := c.Send("say hi"); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning on closed stdin, got %v", err)
	}
}

func TestRestartAfterExit(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec)

	if err := c.Start("echo one", t.TempDir()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return !c.IsRunning() }, "first run to finish")

	if err := c.Start("echo two", t.TempDir()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return rec.hasLine("two") }, "second run output")
	waitFor(t, 5*time.Second, func() bool { return !c.IsRunning() }, "second run to finish")
}
