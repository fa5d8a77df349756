package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestRegistry(t *testing.T) *InstallationRegistry {
	t.Helper()
	r, err := NewInstallationRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return r
}

func TestRegistryAddListRemove(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Add(Installation{Name: "survival", Path: "/srv/bedrock/survival"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := r.Add(Installation{Name: "creative", Path: "/srv/bedrock/creative"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 installations, got %d", len(list))
	}
	if list[0].ServerCmd == "" {
		t.Fatalf("expected default server command to be filled in")
	}

	if err := r.Remove("survival"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := r.Get("survival"); ok {
		t.Fatalf("removed installation still present")
	}
	if err := r.Remove("survival"); err == nil {
		t.Fatalf("expected error removing missing installation")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Add(Installation{Name: "main", Path: "/srv/a"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := r.Add(Installation{Name: "main", Path: "/srv/b"}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
}

func TestRegistryRename(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Add(Installation{Name: "old", Path: "/srv/a"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := r.Rename("old", "new"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatalf("renamed installation not found")
	}
	if err := r.Rename("missing", "other"); err == nil {
		t.Fatalf("expected error renaming missing installation")
	}
}

func TestRegistryPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	r, err := NewInstallationRegistry(dir)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	if err := r.Add(Installation{Name: "main", Path: "/srv/a", ServerCmd: "./bedrock_server"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	reloaded, err := NewInstallationRegistry(dir)
	if err != nil {
		t.Fatalf("failed to reload registry: %v", err)
	}
	inst, ok := reloaded.Get("main")
	if !ok {
		t.Fatalf("installation lost on reload")
	}
	if inst.Path != "/srv/a" || inst.ServerCmd != "./bedrock_server" {
		t.Fatalf("unexpected installation after reload: %+v", inst)
	}
}

func TestRegistryDropsMalformedEntriesOnLoad(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "installations.yaml")
	payload := "- name: good\n  path: /srv/good\n- name: \"\"\n  path: /srv/anon\n- name: nopath\n  path: \"\"\n"
	if err := os.WriteFile(store, []byte(payload), 0644); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	r, err := NewInstallationRegistry(dir)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	list := r.List()
	if len(list) != 1 || list[0].Name != "good" {
		t.Fatalf("expected only the valid entry, got %+v", list)
	}
}

func TestDiscoverFindsServerBinaries(t *testing.T) {
	root := t.TempDir()

	direct := root
	if err := os.WriteFile(filepath.Join(direct, "bedrock_server"), []byte("#!"), 0755); err != nil {
		t.Fatalf("failed to create binary: %v", err)
	}

	nested := filepath.Join(root, "second")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "bedrock_server"), []byte("#!"), 0755); err != nil {
		t.Fatalf("failed to create nested binary: %v", err)
	}

	empty := filepath.Join(root, "empty")
	if err := os.MkdirAll(empty, 0755); err != nil {
		t.Fatalf("failed to create empty dir: %v", err)
	}

	found := Discover([]string{root, root}) // duplicate root must not double-count
	if len(found) != 2 {
		t.Fatalf("expected 2 installations, got %d: %+v", len(found), found)
	}
	for _, inst := range found {
		if inst.ServerCmd == "" {
			t.Errorf("expected server command for %s", inst.Name)
		}
	}
}
