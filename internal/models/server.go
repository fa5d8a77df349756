package models

import "time"

// ServerState represents the runtime state of the supervised process
type ServerState string

const (
	// StateStopped - no bedrock_server process is running
	StateStopped ServerState = "stopped"
	// StateRunning - the supervised process is alive and streaming output
	StateRunning ServerState = "running"
	// StateStopping - an escalating stop sequence is in progress
	StateStopping ServerState = "stopping"
)

// ServerStatus represents the current status of the supervised server
type ServerStatus struct {
	Installation string      `json:"installation"`
	State        ServerState `json:"state"`
	PID          int         `json:"pid,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	Uptime       int64       `json:"uptime"` // seconds
	LastChecked  time.Time   `json:"last_checked"`
}

// CommandRequest represents a console command request
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// CommandResponse represents the response to a command
type CommandResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ServerStartRequest carries an optional command override for one run
type ServerStartRequest struct {
	ServerCmd *string `json:"server_cmd,omitempty"`
}

// InstallationListItem represents a registered installation with its state
type InstallationListItem struct {
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	ServerCmd string      `json:"server_cmd"`
	State     ServerState `json:"state"`
}
