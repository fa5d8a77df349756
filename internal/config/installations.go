package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// serverBinaryName is the Bedrock Dedicated Server executable we look for
// when discovering installations.
const serverBinaryName = "bedrock_server"

// Installation is one named server directory the daemon can supervise.
type Installation struct {
	Name      string `yaml:"name" json:"name"`
	Path      string `yaml:"path" json:"path"`
	ServerCmd string `yaml:"server_cmd" json:"server_cmd"`
}

// DefaultServerCommand returns the launch command for the current
// architecture. ARM machines run the x86 binary through box64.
func DefaultServerCommand() string {
	switch runtime.GOARCH {
	case "arm64":
		return "box64 " + serverBinaryName
	case "amd64":
		return "./" + serverBinaryName
	default:
		return "./" + serverBinaryName
	}
}

// InstallationRegistry persists the list of named installations as YAML
// under the config directory.
type InstallationRegistry struct {
	storePath     string
	mu            sync.RWMutex
	installations []Installation
}

// NewInstallationRegistry loads (or initializes) the registry stored in
// configDir. A missing store file is not an error.
func NewInstallationRegistry(configDir string) (*InstallationRegistry, error) {
	r := &InstallationRegistry{
		storePath: filepath.Join(configDir, "installations.yaml"),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *InstallationRegistry) load() error {
	data, err := os.ReadFile(r.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read installations: %w", err)
	}

	var raw []Installation
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse installations: %w", err)
	}

	// Drop malformed entries instead of failing the whole registry.
	installations := make([]Installation, 0, len(raw))
	for _, inst := range raw {
		if strings.TrimSpace(inst.Name) == "" || strings.TrimSpace(inst.Path) == "" {
			continue
		}
		if strings.TrimSpace(inst.ServerCmd) == "" {
			inst.ServerCmd = DefaultServerCommand()
		}
		installations = append(installations, inst)
	}

	r.installations = installations
	return nil
}

func (r *InstallationRegistry) save() error {
	data, err := yaml.Marshal(r.installations)
	if err != nil {
		return fmt.Errorf("failed to marshal installations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.storePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(r.storePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write installations: %w", err)
	}
	return nil
}

// List returns all installations in stored order.
func (r *InstallationRegistry) List() []Installation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Installation, len(r.installations))
	copy(out, r.installations)
	return out
}

// Get returns the installation with the given name.
func (r *InstallationRegistry) Get(name string) (Installation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.installations {
		if inst.Name == name {
			return inst, true
		}
	}
	return Installation{}, false
}

// Add registers a new installation. Duplicate names are rejected.
func (r *InstallationRegistry) Add(inst Installation) error {
	inst.Name = strings.TrimSpace(inst.Name)
	inst.Path = strings.TrimSpace(inst.Path)
	if inst.Name == "" {
		return fmt.Errorf("installation name is required")
	}
	if inst.Path == "" {
		return fmt.Errorf("installation path is required")
	}
	if strings.TrimSpace(inst.ServerCmd) == "" {
		inst.ServerCmd = DefaultServerCommand()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.installations {
		if existing.Name == inst.Name {
			return fmt.Errorf("installation %q already exists", inst.Name)
		}
	}

	r.installations = append(r.installations, inst)
	return r.save()
}

// Remove deletes the named installation from the registry. The directory on
// disk is left untouched.
func (r *InstallationRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, inst := range r.installations {
		if inst.Name == name {
			r.installations = append(r.installations[:i], r.installations[i+1:]...)
			return r.save()
		}
	}
	return fmt.Errorf("installation %q not found", name)
}

// Rename changes an installation's name, keeping its path and command.
func (r *InstallationRegistry) Rename(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("new name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inst := range r.installations {
		if inst.Name == newName {
			return fmt.Errorf("installation %q already exists", newName)
		}
	}

	for i, inst := range r.installations {
		if inst.Name == oldName {
			r.installations[i].Name = newName
			return r.save()
		}
	}
	return fmt.Errorf("installation %q not found", oldName)
}

// Update replaces the stored entry for name.
func (r *InstallationRegistry) Update(name string, inst Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.installations {
		if existing.Name == name {
			if strings.TrimSpace(inst.ServerCmd) == "" {
				inst.ServerCmd = DefaultServerCommand()
			}
			inst.Name = name
			r.installations[i] = inst
			return r.save()
		}
	}
	return fmt.Errorf("installation %q not found", name)
}

// Discover scans each root directory and one child level below it for a
// Bedrock server binary, de-duplicating by resolved path. Found directories
// are returned as installation candidates, not persisted.
func Discover(roots []string) []Installation {
	seen := make(map[string]bool)
	var found []Installation

	consider := func(dir string) {
		resolved, err := filepath.Abs(dir)
		if err != nil || seen[resolved] {
			return
		}
		if !hasServerBinary(resolved) {
			return
		}
		seen[resolved] = true
		found = append(found, Installation{
			Name:      filepath.Base(resolved),
			Path:      resolved,
			ServerCmd: DefaultServerCommand(),
		})
	}

	for _, root := range roots {
		root = expandHome(root)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}

		consider(root)

		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				consider(filepath.Join(root, entry.Name()))
			}
		}
	}

	return found
}

func hasServerBinary(dir string) bool {
	for _, name := range []string{serverBinaryName, serverBinaryName + ".exe"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
