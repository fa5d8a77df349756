package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Users table (single-admin model, but kept generic)
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    is_admin BOOLEAN DEFAULT 1,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_users_username ON users(username);

-- Refresh tokens table
CREATE TABLE refresh_tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    token_hash TEXT UNIQUE NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    revoked BOOLEAN DEFAULT 0,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX idx_refresh_tokens_user ON refresh_tokens(user_id);
CREATE INDEX idx_refresh_tokens_hash ON refresh_tokens(token_hash);
CREATE INDEX idx_refresh_tokens_expires ON refresh_tokens(expires_at);

-- Console command history
CREATE TABLE command_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    installation TEXT NOT NULL,
    user_id INTEGER,
    command TEXT NOT NULL,
    success BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX idx_command_history_installation ON command_history(installation);
CREATE INDEX idx_command_history_created ON command_history(created_at);

-- Backups
CREATE TABLE backups (
    id TEXT PRIMARY KEY,
    installation TEXT NOT NULL,
    filename TEXT NOT NULL,
    size_bytes INTEGER DEFAULT 0,
    destination TEXT NOT NULL DEFAULT 'local',
    status TEXT NOT NULL DEFAULT 'creating',
    error_message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE INDEX idx_backups_installation ON backups(installation);
CREATE INDEX idx_backups_status ON backups(status);
CREATE INDEX idx_backups_created ON backups(created_at);

-- Backup schedules (cron expressions)
CREATE TABLE backup_schedules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    installation TEXT UNIQUE NOT NULL,
    cron_expr TEXT NOT NULL,
    retention INTEGER DEFAULT 5,
    enabled BOOLEAN DEFAULT 1,
    last_run DATETIME,
    next_run DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_backup_schedules_next ON backup_schedules(next_run);

-- Downloaded server releases
CREATE TABLE releases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version TEXT NOT NULL,
    patchline TEXT NOT NULL DEFAULT 'release',
    file_path TEXT NOT NULL,
    file_size INTEGER DEFAULT 0,
    sha256 TEXT,
    status TEXT NOT NULL DEFAULT 'downloading',
    downloaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(version, patchline)
);

-- Activity log
CREATE TABLE activity_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    installation TEXT,
    user_id INTEGER,
    activity_type TEXT NOT NULL,
    description TEXT,
    metadata TEXT,
    success BOOLEAN DEFAULT 1,
    error_message TEXT,
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX idx_activity_logs_created ON activity_logs(created_at);
CREATE INDEX idx_activity_logs_installation ON activity_logs(installation);
`,
		Down: `
DROP TABLE activity_logs;
DROP TABLE releases;
DROP TABLE backup_schedules;
DROP TABLE backups;
DROP TABLE command_history;
DROP TABLE refresh_tokens;
DROP TABLE users;
`,
	},
	{
		Version: "002_console_log_files",
		Up: `
-- On-disk console log files written by the console service
CREATE TABLE console_log_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    installation TEXT NOT NULL,
    path TEXT NOT NULL,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME
);

CREATE INDEX idx_console_log_files_installation ON console_log_files(installation);
`,
		Down: `
DROP TABLE console_log_files;
`,
	},
}
