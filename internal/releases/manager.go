package releases

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/models"
)

type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusRunning  JobStatus = "running"
	StatusFailed   JobStatus = "failed"
	StatusComplete JobStatus = "complete"
)

// Job tracks one long-running release operation (download, install,
// upgrade). Jobs live in memory; clients follow them over the stream API.
type Job struct {
	ID           string     `json:"id"`
	Action       string     `json:"action"`
	Version      string     `json:"version,omitempty"`
	Patchline    string     `json:"patchline,omitempty"`
	Installation string     `json:"installation,omitempty"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Output       []string   `json:"output"`
	Downloaded   int64      `json:"downloaded"`
	Total        int64      `json:"total"`
	Error        string     `json:"error,omitempty"`
}

type StreamEvent struct {
	Event string
	Data  string
}

// RunningFunc reports whether the supervised process for an installation
// is currently running. Upgrades are refused while it is.
type RunningFunc func(installation string) bool

type Manager struct {
	cfg       *config.Config
	db        *sql.DB
	registry  *config.InstallationRegistry
	isRunning RunningFunc
	client    *http.Client

	mu   sync.Mutex
	jobs map[string]*Job
	subs map[string]map[chan StreamEvent]struct{}
}

func NewManager(cfg *config.Config, db *sql.DB, registry *config.InstallationRegistry, isRunning RunningFunc) *Manager {
	if isRunning == nil {
		isRunning = func(string) bool { return false }
	}
	return &Manager{
		cfg:       cfg,
		db:        db,
		registry:  registry,
		isRunning: isRunning,
		client:    &http.Client{Timeout: 10 * time.Minute},
		jobs:      make(map[string]*Job),
		subs:      make(map[string]map[chan StreamEvent]struct{}),
	}
}

func (m *Manager) CreateJob(action string) *Job {
	job := &Job{
		ID:        fmt.Sprintf("job-%d", time.Now().UnixNano()),
		Action:    action,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		Output:    []string{},
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	if _, ok := m.subs[job.ID]; !ok {
		m.subs[job.ID] = make(map[chan StreamEvent]struct{})
	}
	m.mu.Unlock()
	return job
}

func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

func (m *Manager) ListJobs(limit int) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}

func (m *Manager) AppendOutput(job *Job, line string) {
	m.mu.Lock()
	job.Output = append(job.Output, line)
	m.mu.Unlock()
	m.emit(job.ID, StreamEvent{Event: "log", Data: line})
}

func (m *Manager) SetStatus(job *Job, status JobStatus, err error) {
	now := time.Now()
	m.mu.Lock()
	job.Status = status
	if status == StatusRunning {
		job.StartedAt = &now
	}
	if status == StatusFailed || status == StatusComplete {
		job.FinishedAt = &now
		if err != nil {
			job.Error = err.Error()
		}
	}
	m.mu.Unlock()
	m.emit(job.ID, StreamEvent{Event: "status", Data: string(status)})
}

func (m *Manager) setProgress(job *Job, downloaded, total int64) {
	m.mu.Lock()
	job.Downloaded = downloaded
	job.Total = total
	m.mu.Unlock()
	m.emit(job.ID, StreamEvent{Event: "progress", Data: fmt.Sprintf(`{"downloaded":%d,"total":%d}`, downloaded, total)})
}

func (m *Manager) Subscribe(jobID string) (chan StreamEvent, func()) {
	ch := make(chan StreamEvent, 64)
	m.mu.Lock()
	if _, ok := m.subs[jobID]; !ok {
		m.subs[jobID] = make(map[chan StreamEvent]struct{})
	}
	m.subs[jobID][ch] = struct{}{}
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		if subs, ok := m.subs[jobID]; ok {
			delete(subs, ch)
		}
		m.mu.Unlock()
		close(ch)
	}
}

func (m *Manager) emit(jobID string, event StreamEvent) {
	m.mu.Lock()
	subs := m.subs[jobID]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Versions fetches the currently published Release and Preview versions.
func (m *Manager) Versions(ctx context.Context) ([]VersionInfo, error) {
	return FetchVersions(ctx, m.client)
}

// Download fetches a release archive into the releases directory and
// records it. The work runs in the background; follow the returned job.
func (m *Manager) Download(info VersionInfo) (*Job, error) {
	if !ValidateVersionFormat(info.Version) {
		return nil, fmt.Errorf("invalid version format: %s", info.Version)
	}
	job := m.CreateJob("download")
	job.Version = info.Version
	job.Patchline = info.Patchline

	go func() {
		m.SetStatus(job, StatusRunning, nil)
		if _, err := m.ensureArchive(job, info); err != nil {
			m.SetStatus(job, StatusFailed, err)
			return
		}
		m.SetStatus(job, StatusComplete, nil)
	}()
	return job, nil
}

// Install extracts a release into a fresh installation directory and
// registers it. The archive is downloaded first if it is not on disk.
func (m *Manager) Install(info VersionInfo, name string, overwrite bool) (*Job, error) {
	if err := ValidateInstallationName(name); err != nil {
		return nil, err
	}
	if m.isRunning(name) {
		return nil, fmt.Errorf("installation %q is running; stop it first", name)
	}

	job := m.CreateJob("install")
	job.Version = info.Version
	job.Patchline = info.Patchline
	job.Installation = name

	go func() {
		m.SetStatus(job, StatusRunning, nil)
		if err := m.install(job, info, name, overwrite); err != nil {
			m.SetStatus(job, StatusFailed, err)
			return
		}
		m.SetStatus(job, StatusComplete, nil)
	}()
	return job, nil
}

// Upgrade extracts a release over an existing installation, keeping
// server.properties, allowlist.json, permissions.json and worlds/.
func (m *Manager) Upgrade(info VersionInfo, name string) (*Job, error) {
	inst, ok := m.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("installation not found: %s", name)
	}
	if m.isRunning(name) {
		return nil, fmt.Errorf("installation %q is running; stop it first", name)
	}

	job := m.CreateJob("upgrade")
	job.Version = info.Version
	job.Patchline = info.Patchline
	job.Installation = name

	go func() {
		m.SetStatus(job, StatusRunning, nil)
		archive, err := m.ensureArchive(job, info)
		if err != nil {
			m.SetStatus(job, StatusFailed, err)
			return
		}
		m.AppendOutput(job, fmt.Sprintf("[+] Upgrading %s to %s...", name, info.Version))
		if err := extractServerArchive(archive, inst.Path, true); err != nil {
			m.SetStatus(job, StatusFailed, err)
			return
		}
		m.AppendOutput(job, "[+] Upgrade complete.")
		m.SetStatus(job, StatusComplete, nil)
	}()
	return job, nil
}

func (m *Manager) install(job *Job, info VersionInfo, name string, overwrite bool) error {
	archive, err := m.ensureArchive(job, info)
	if err != nil {
		return err
	}

	instancePath := filepath.Join(m.cfg.Storage.InstancesDir, name)
	if _, err := os.Stat(instancePath); err == nil {
		if !overwrite {
			return fmt.Errorf("installation %q already exists", name)
		}
		m.AppendOutput(job, fmt.Sprintf("[+] Removing existing installation %q...", name))
		if err := os.RemoveAll(instancePath); err != nil {
			return fmt.Errorf("failed to remove existing installation: %w", err)
		}
	}

	m.AppendOutput(job, "[+] Extracting...")
	if err := os.MkdirAll(instancePath, 0755); err != nil {
		return err
	}
	if err := extractServerArchive(archive, instancePath, false); err != nil {
		os.RemoveAll(instancePath)
		return err
	}
	m.AppendOutput(job, "[+] Extraction complete.")

	inst := config.Installation{Name: name, Path: instancePath, ServerCmd: config.DefaultServerCommand()}
	if _, exists := m.registry.Get(name); exists {
		err = m.registry.Update(name, inst)
	} else {
		err = m.registry.Add(inst)
	}
	if err != nil {
		return fmt.Errorf("failed to register installation: %w", err)
	}
	m.AppendOutput(job, fmt.Sprintf("[+] Installation %q created.", name))
	return nil
}

// ensureArchive returns the local path of the release archive, downloading
// it first when the recorded file is missing.
func (m *Manager) ensureArchive(job *Job, info VersionInfo) (string, error) {
	if rel, err := m.GetReleaseByVersion(info.Version, info.Patchline); err == nil && rel.Status == "ready" {
		if _, statErr := os.Stat(rel.FilePath); statErr == nil {
			m.AppendOutput(job, fmt.Sprintf("[+] Using cached archive %s", filepath.Base(rel.FilePath)))
			return rel.FilePath, nil
		}
	}
	return m.download(job, info)
}

func (m *Manager) download(job *Job, info VersionInfo) (string, error) {
	if err := os.MkdirAll(m.cfg.Storage.ReleasesDir, 0755); err != nil {
		return "", err
	}

	url := info.DownloadURL()
	target := filepath.Join(m.cfg.Storage.ReleasesDir, filepath.Base(url))
	m.AppendOutput(job, fmt.Sprintf("[+] Downloading %s...", filepath.Base(url)))

	if err := m.upsertRelease(&models.Release{
		Version:   info.Version,
		Patchline: info.Patchline,
		FilePath:  target,
		Status:    "downloading",
	}); err != nil {
		return "", err
	}

	size, sha, err := m.fetchArchive(job, url, target)
	if err != nil {
		os.Remove(target)
		m.markReleaseFailed(info, err)
		return "", err
	}

	m.AppendOutput(job, "[+] Download complete.")
	if err := m.upsertRelease(&models.Release{
		Version:      info.Version,
		Patchline:    info.Patchline,
		FilePath:     target,
		FileSize:     size,
		SHA256:       sha,
		Status:       "ready",
		DownloadedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	log.Printf("[Releases] Downloaded %s %s (%d bytes, sha256=%s)", info.Patchline, info.Version, size, sha)
	return target, nil
}

func (m *Manager) fetchArchive(job *Job, url, target string) (int64, string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	file, err := os.Create(target)
	if err != nil {
		return 0, "", err
	}
	defer file.Close()

	hasher := sha256.New()
	total := resp.ContentLength
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return 0, "", werr
			}
			hasher.Write(buf[:n])
			written += int64(n)
			if total > 0 {
				m.setProgress(job, written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, "", readErr
		}
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (m *Manager) upsertRelease(rel *models.Release) error {
	if m.db == nil {
		return nil
	}
	_, err := m.db.Exec(`
		INSERT INTO releases (version, patchline, file_path, file_size, sha256, status, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version, patchline) DO UPDATE SET
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			sha256 = excluded.sha256,
			status = excluded.status,
			downloaded_at = excluded.downloaded_at
	`, rel.Version, rel.Patchline, rel.FilePath, rel.FileSize, rel.SHA256, rel.Status, rel.DownloadedAt)
	return err
}

func (m *Manager) markReleaseFailed(info VersionInfo, cause error) {
	if m.db == nil {
		return
	}
	_, err := m.db.Exec(`UPDATE releases SET status = 'failed' WHERE version = ? AND patchline = ?`, info.Version, info.Patchline)
	if err != nil {
		log.Printf("[Releases] Failed to mark release %s failed: %v (cause: %v)", info.Version, err, cause)
	}
}

func (m *Manager) ListReleases(limit int) ([]*models.Release, error) {
	if m.db == nil {
		return []*models.Release{}, nil
	}
	query := `
		SELECT id, version, patchline, file_path, file_size, COALESCE(sha256, ''), status, downloaded_at
		FROM releases
		ORDER BY downloaded_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = m.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = m.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	releases := []*models.Release{}
	for rows.Next() {
		rel := &models.Release{}
		if err := rows.Scan(&rel.ID, &rel.Version, &rel.Patchline, &rel.FilePath, &rel.FileSize, &rel.SHA256, &rel.Status, &rel.DownloadedAt); err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}

func (m *Manager) GetRelease(id int64) (*models.Release, error) {
	if m.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	row := m.db.QueryRow(`
		SELECT id, version, patchline, file_path, file_size, COALESCE(sha256, ''), status, downloaded_at
		FROM releases WHERE id = ?
	`, id)
	rel := &models.Release{}
	if err := row.Scan(&rel.ID, &rel.Version, &rel.Patchline, &rel.FilePath, &rel.FileSize, &rel.SHA256, &rel.Status, &rel.DownloadedAt); err != nil {
		return nil, err
	}
	return rel, nil
}

func (m *Manager) GetReleaseByVersion(version, patchline string) (*models.Release, error) {
	if m.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	row := m.db.QueryRow(`
		SELECT id, version, patchline, file_path, file_size, COALESCE(sha256, ''), status, downloaded_at
		FROM releases WHERE version = ? AND patchline = ?
	`, version, patchline)
	rel := &models.Release{}
	if err := row.Scan(&rel.ID, &rel.Version, &rel.Patchline, &rel.FilePath, &rel.FileSize, &rel.SHA256, &rel.Status, &rel.DownloadedAt); err != nil {
		return nil, err
	}
	return rel, nil
}

// DeleteRelease removes the archive from disk and the record.
func (m *Manager) DeleteRelease(id int64) error {
	rel, err := m.GetRelease(id)
	if err != nil {
		return err
	}
	if rel.FilePath != "" {
		if err := os.Remove(rel.FilePath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	_, err = m.db.Exec(`DELETE FROM releases WHERE id = ?`, id)
	return err
}
