package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start while a supervised process is active.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrNotRunning is returned by Send when no supervised process is active.
	ErrNotRunning = errors.New("server is not running")
)

// LogFunc receives every sanitized output line, status line, and exit notice.
// It must tolerate being called from multiple goroutines.
type LogFunc func(line string)

// StatusFunc is called with true immediately after a successful spawn and
// with false once the process is confirmed gone.
type StatusFunc func(online bool)

// Options tunes the shutdown escalation timing.
type Options struct {
	// StopGracePeriod is how long Stop waits after SIGTERM before escalating.
	StopGracePeriod time.Duration
	// KillGracePeriod is how long Stop waits after SIGKILL before falling
	// back to an unconditional wait.
	KillGracePeriod time.Duration
}

const (
	defaultStopGrace = 5 * time.Second
	defaultKillGrace = 3 * time.Second

	// drainGrace is how long the exit watcher lets the readers finish
	// consuming buffered output after the child is gone, before cancelling
	// them. Forked descendants can keep the write ends open forever.
	drainGrace = 500 * time.Millisecond
)

// Controller owns the lifecycle of a single supervised game-server process:
// it spawns the child as a process-group leader, streams its stdout/stderr
// through the log sink, forwards console commands to its stdin, and performs
// an escalating shutdown on Stop. At most one process is supervised at a time.
type Controller struct {
	logLine  LogFunc
	onStatus StatusFunc

	stopGrace time.Duration
	killGrace time.Duration

	mu   sync.Mutex
	proc *instance
}

// instance carries the per-run state of one supervised process. A fresh one
// is created on every Start so a restart never observes stale channels.
type instance struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	stopReaders chan struct{}
	cancelOnce  sync.Once
	readers     sync.WaitGroup

	// done is closed by the watcher once Wait has returned.
	done     chan struct{}
	exitCode int

	// released is guarded by the controller mutex; teardown is idempotent
	// because both Stop and the exit watcher may observe the same exit.
	released bool
}

// NewController creates a controller reporting output and status transitions
// through the given callbacks.
func NewController(logFn LogFunc, statusFn StatusFunc, opts Options) *Controller {
	if logFn == nil {
		logFn = func(string) {}
	}
	if statusFn == nil {
		statusFn = func(bool) {}
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = defaultStopGrace
	}
	if opts.KillGracePeriod <= 0 {
		opts.KillGracePeriod = defaultKillGrace
	}

	return &Controller{
		logLine:   logFn,
		onStatus:  statusFn,
		stopGrace: opts.StopGracePeriod,
		killGrace: opts.KillGracePeriod,
	}
}

// IsRunning reports whether a supervised process handle exists and its exit
// has not yet been observed.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil
}

// PID returns the supervised process id, if one is running.
func (c *Controller) PID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil || c.proc.cmd.Process == nil {
		return 0, false
	}
	return c.proc.cmd.Process.Pid, true
}

// Start spawns the command through the shell in the given working directory
// as a new process-group leader, with stdin/stdout/stderr piped. Output
// streaming and exit watching continue in background goroutines; spawn
// failures are returned to the caller and create no process state.
func (c *Controller) Start(command, workingDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc != nil {
		c.logLine("Server is already running.")
		return ErrAlreadyRunning
	}

	if workingDir != "" {
		c.logLine(fmt.Sprintf("Working directory: %s", workingDir))
	}
	c.logLine(fmt.Sprintf("Starting server: %s", command))

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	// Plain pipes instead of StdoutPipe/StderrPipe: the exit watcher must be
	// able to call Wait as soon as the child itself is gone, even while a
	// forked descendant keeps the write ends open.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeQuietly(stdin)
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeQuietly(stdin)
		closeQuietly(stdoutR)
		closeQuietly(stdoutW)
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeQuietly(stdin)
		closeQuietly(stdoutR)
		closeQuietly(stdoutW)
		closeQuietly(stderrR)
		closeQuietly(stderrW)
		return fmt.Errorf("failed to start server: %w", err)
	}

	// The child owns its copies of the write ends now; the parent's copies
	// must go so the read ends can see EOF.
	closeQuietly(stdoutW)
	closeQuietly(stderrW)

	inst := &instance{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdoutR,
		stderr:      stderrR,
		stopReaders: make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.proc = inst

	c.onStatus(true)
	c.logLine(fmt.Sprintf("Server started (PID=%d).", cmd.Process.Pid))

	inst.readers.Add(2)
	go c.readStream(inst, stdoutR)
	go c.readStream(inst, stderrR)
	go c.watchExit(inst)

	return nil
}

// Send writes the command followed by a newline to the child's stdin.
// Invalid UTF-8 in the outgoing text is replaced rather than rejected.
func (c *Controller) Send(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc == nil || c.proc.stdin == nil {
		c.logLine("Server is not running.")
		return ErrNotRunning
	}

	payload := strings.ToValidUTF8(command, "�") + "\n"
	if _, err := c.proc.stdin.Write([]byte(payload)); err != nil {
		// A closed stdin means a stop is in flight; report the same
		// not-running condition the caller already knows how to handle.
		if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
			c.logLine("Server is not running.")
			return ErrNotRunning
		}
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// Stop shuts the supervised process down: reader teardown, stdin close,
// SIGTERM to the process group, a bounded grace period, then SIGKILL and a
// final unconditional wait. Teardown failures are logged, never returned;
// a requested stop always ends in an observable offline state. Calling Stop
// with no process running is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	inst := c.proc
	c.mu.Unlock()

	if inst == nil {
		return
	}

	c.logLine("Stopping server...")

	c.cancelReaders(inst)
	closeQuietly(inst.stdin)

	pid := inst.cmd.Process.Pid
	signalProcessGroup(pid, syscall.SIGTERM)

	select {
	case <-inst.done:
		c.finalize(inst)
		return
	case <-time.After(c.stopGrace):
	}

	c.logLine("Server did not stop in time; force killing...")
	signalProcessGroup(pid, syscall.SIGKILL)

	select {
	case <-inst.done:
	case <-time.After(c.killGrace):
		// SIGKILL cannot be refused; wait it out rather than abandon the child.
		<-inst.done
	}

	c.finalize(inst)
}

// readStream reads one output pipe line by line, sanitizes each line, and
// forwards it to the log sink. EOF or a closed pipe ends the loop; the stop
// channel provides the cooperative cancellation path between reads.
func (c *Controller) readStream(inst *instance, pipe io.Reader) {
	defer inst.readers.Done()

	reader := bufio.NewReader(pipe)
	for {
		select {
		case <-inst.stopReaders:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if line != "" || err == nil {
			c.logLine(SanitizeLine(line))
		}
		if err != nil {
			return
		}
	}
}

// watchExit awaits child termination independently of both Stop and the
// output pipes. Wait returns as soon as the child itself is reaped; the
// readers then get a bounded drain window for buffered output before any
// still-running ones are cancelled, so a descendant holding the pipes open
// cannot suppress the exit notice.
func (c *Controller) watchExit(inst *instance) {
	err := inst.cmd.Wait()
	inst.exitCode = exitCodeOf(inst.cmd, err)

	drained := make(chan struct{})
	go func() {
		inst.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainGrace):
		c.cancelReaders(inst)
		<-drained
	}

	close(inst.done)
	c.logLine(fmt.Sprintf("Server exited (code %d).", inst.exitCode))
	c.finalize(inst)
}

// cancelReaders signals the reader goroutines, unblocks them by closing the
// pipes, and waits for them to finish. Pipe-close errors are expected here.
func (c *Controller) cancelReaders(inst *instance) {
	inst.cancelOnce.Do(func() {
		close(inst.stopReaders)
	})
	closeQuietly(inst.stdout)
	closeQuietly(inst.stderr)
	inst.readers.Wait()
}

// finalize releases the process handle and reports offline. Safe to call
// from both Stop and the exit watcher; only the first call has any effect.
func (c *Controller) finalize(inst *instance) {
	c.mu.Lock()
	if inst.released {
		c.mu.Unlock()
		return
	}
	inst.released = true
	if c.proc == inst {
		c.proc = nil
	}
	c.mu.Unlock()

	c.onStatus(false)
}

// signalProcessGroup delivers sig to the child's whole process group so
// forked subprocesses receive it too, falling back to the single process
// when group lookup fails.
func signalProcessGroup(pid int, sig syscall.Signal) {
	pgid, err := syscall.Getpgid(pid)
	if err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return
		}
	}
	if err := syscall.Kill(pid, sig); err != nil {
		log.Printf("[Supervisor] Failed to signal PID %d with %v: %v", pid, sig, err)
	}
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
