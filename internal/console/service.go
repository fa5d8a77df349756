package console

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/logging"
	"github.com/yourusername/bedrockd/internal/models"
	"github.com/yourusername/bedrockd/internal/supervisor"
	"github.com/yourusername/bedrockd/internal/websocket"
)

// Options configures the console service.
type Options struct {
	BufferMax       int
	StopGracePeriod time.Duration
	KillGracePeriod time.Duration
	LogDir          string
}

// Service owns the supervised server process and everything attached to
// its console: the in-memory line buffer, the per-run on-disk log, the
// WebSocket fan-out and the command history. One installation is active
// at a time; switching requires the server to be stopped.
type Service struct {
	db       *sql.DB
	hub      *websocket.Hub
	registry *config.InstallationRegistry
	activity *logging.ActivityLogger

	buffer *supervisor.LogBuffer
	ctrl   *supervisor.Controller
	logDir string

	mu        sync.RWMutex
	current   *config.Installation
	writer    *LogWriter
	startedAt time.Time
	stopping  bool
}

// NewService wires a console service. db, hub and activity may each be
// nil; the service degrades to in-memory operation.
func NewService(db *sql.DB, hub *websocket.Hub, registry *config.InstallationRegistry, activity *logging.ActivityLogger, opts Options) *Service {
	if opts.BufferMax <= 0 {
		opts.BufferMax = 2000
	}

	s := &Service{
		db:       db,
		hub:      hub,
		registry: registry,
		activity: activity,
		buffer:   supervisor.NewLogBuffer(opts.BufferMax),
		logDir:   opts.LogDir,
	}
	s.ctrl = supervisor.NewController(s.onLine, s.onStatus, supervisor.Options{
		StopGracePeriod: opts.StopGracePeriod,
		KillGracePeriod: opts.KillGracePeriod,
	})
	return s
}

// Attach selects the installation subsequent Start calls will run.
// Rejected while a server is running.
func (s *Service) Attach(name string) error {
	if s.ctrl.IsRunning() {
		return fmt.Errorf("cannot switch installation while the server is running")
	}

	inst, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown installation: %s", name)
	}

	s.mu.Lock()
	s.current = &inst
	s.mu.Unlock()

	log.Printf("[Console] Attached to installation %s (%s)", inst.Name, inst.Path)
	return nil
}

// Current returns the attached installation, if any.
func (s *Service) Current() (config.Installation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return config.Installation{}, false
	}
	return *s.current, true
}

// Start launches the attached installation's server process. A non-empty
// override replaces the stored launch command for this run only.
func (s *Service) Start(override string, userID *int64) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return fmt.Errorf("no installation attached")
	}
	inst := *s.current
	s.mu.Unlock()

	command := inst.ServerCmd
	if command == "" {
		command = config.DefaultServerCommand()
	}
	if override != "" {
		command = override
	}

	var writer *LogWriter
	if s.logDir != "" {
		var err error
		writer, err = NewLogWriter(s.db, s.logDir, inst.Name)
		if err != nil {
			log.Printf("[Console] Console log unavailable: %v", err)
			writer = nil
		}
	}

	s.mu.Lock()
	s.writer = writer
	s.mu.Unlock()

	if err := s.ctrl.Start(command, inst.Path); err != nil {
		s.mu.Lock()
		s.writer = nil
		s.mu.Unlock()
		if writer != nil {
			writer.Close()
		}
		if s.activity != nil {
			s.activity.LogServerStart(inst.Name, userID, false, err.Error())
		}
		return err
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.activity != nil {
		s.activity.LogServerStart(inst.Name, userID, true, "")
	}
	return nil
}

// Stop runs the escalating shutdown sequence and blocks until the
// process is confirmed gone. A no-op when nothing is running.
func (s *Service) Stop(userID *int64) {
	if !s.ctrl.IsRunning() {
		return
	}

	s.mu.Lock()
	s.stopping = true
	inst := s.current
	s.mu.Unlock()

	s.broadcastStatus()

	s.ctrl.Stop()

	if s.activity != nil && inst != nil {
		s.activity.LogServerStop(inst.Name, userID)
	}
}

// Send forwards a console command to the server's stdin and records it
// in the command history.
func (s *Service) Send(command string, userID *int64) error {
	err := s.ctrl.Send(command)

	s.mu.RLock()
	inst := s.current
	s.mu.RUnlock()

	if s.db != nil && inst != nil {
		var uid interface{}
		if userID != nil {
			uid = *userID
		}
		if _, dbErr := s.db.Exec(`
			INSERT INTO command_history (installation, user_id, command, success)
			VALUES (?, ?, ?, ?)
		`, inst.Name, uid, command, err == nil); dbErr != nil {
			log.Printf("[Console] Failed to record command: %v", dbErr)
		}
	}
	if s.activity != nil && inst != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		s.activity.LogCommand(inst.Name, userID, command, err == nil, errMsg)
	}

	return err
}

// IsRunning reports whether a supervised process is active.
func (s *Service) IsRunning() bool {
	return s.ctrl.IsRunning()
}

// PID reports the supervised process id for the telemetry monitor.
func (s *Service) PID() (int32, bool) {
	pid, ok := s.ctrl.PID()
	return int32(pid), ok
}

// Status reports the runtime state of the attached installation.
func (s *Service) Status() models.ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.ServerStatus{
		State:       models.StateStopped,
		LastChecked: time.Now(),
	}
	if s.current != nil {
		status.Installation = s.current.Name
	}

	if pid, ok := s.ctrl.PID(); ok {
		status.State = models.StateRunning
		status.PID = pid
		if !s.startedAt.IsZero() {
			started := s.startedAt
			status.StartedAt = &started
			status.Uptime = int64(time.Since(started).Seconds())
		}
	}
	if s.stopping && status.State == models.StateRunning {
		status.State = models.StateStopping
	}
	return status
}

// History returns the buffered console lines, oldest first.
func (s *Service) History() []string {
	return s.buffer.Messages()
}

// Rendered returns the buffered console lines wrapped to the given width.
func (s *Service) Rendered(width int) []string {
	return s.buffer.Render(width)
}

// Clear empties the console buffer and notifies subscribers.
func (s *Service) Clear() {
	s.buffer.Clear()
	if s.hub != nil {
		s.hub.BroadcastToRoom(websocket.RoomConsole, &websocket.Message{
			Type:      "console_cleared",
			Timestamp: time.Now(),
		})
	}
}

// CommandHistory returns the most recent commands for the installation,
// newest first.
func (s *Service) CommandHistory(installation string, limit int) ([]CommandRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT command, success, created_at
		FROM command_history
		WHERE installation = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, installation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.Command, &r.Success, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CommandRecord is one entry of the persisted command history.
type CommandRecord struct {
	Command   string    `json:"command"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// onLine receives every sanitized console line from the controller.
func (s *Service) onLine(line string) {
	s.buffer.Append(line)

	s.mu.RLock()
	writer := s.writer
	s.mu.RUnlock()
	if writer != nil {
		if err := writer.WriteLine(line); err != nil {
			log.Printf("[Console] Failed to persist line: %v", err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(websocket.RoomConsole, &websocket.Message{
			Type:      "console_line",
			Payload:   map[string]interface{}{"line": line},
			Timestamp: time.Now(),
		})
	}
}

// onStatus receives online/offline transitions from the controller.
func (s *Service) onStatus(online bool) {
	if !online {
		s.mu.Lock()
		writer := s.writer
		s.writer = nil
		s.stopping = false
		s.startedAt = time.Time{}
		s.mu.Unlock()
		if writer != nil {
			writer.Close()
		}
	}

	s.broadcastStatus()
}

func (s *Service) broadcastStatus() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToRoom(websocket.RoomStatus, &websocket.Message{
		Type:      "server_status",
		Payload:   s.Status(),
		Timestamp: time.Now(),
	})
}
