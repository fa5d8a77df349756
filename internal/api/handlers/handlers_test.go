package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/console"
)

type testEnv struct {
	cfg      *config.Config
	registry *config.InstallationRegistry
	service  *console.Service
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	instDir := filepath.Join(root, "instances", "main")
	if err := os.MkdirAll(instDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	registry, err := config.NewInstallationRegistry(root)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	if err := registry.Add(config.Installation{Name: "main", Path: instDir, ServerCmd: "./bedrock_server"}); err != nil {
		t.Fatalf("failed to add installation: %v", err)
	}

	cfg := &config.Config{}
	cfg.Storage.InstancesDir = filepath.Join(root, "instances")

	service := console.NewService(nil, nil, registry, nil, console.Options{LogDir: filepath.Join(root, "logs")})

	env := &testEnv{
		cfg:      cfg,
		registry: registry,
		service:  service,
		router:   gin.New(),
	}

	serverHandler := NewServerHandler(service)
	installationHandler := NewInstallationHandler(cfg, registry, service)
	consoleHandler := NewConsoleHandler(cfg, service, nil)

	env.router.POST("/server/attach/:name", serverHandler.Attach)
	env.router.POST("/server/stop", serverHandler.Stop)
	env.router.GET("/server/status", serverHandler.Status)
	env.router.POST("/server/command", serverHandler.ExecuteCommand)
	env.router.GET("/installations", installationHandler.List)
	env.router.POST("/installations", installationHandler.Create)
	env.router.GET("/installations/:name", installationHandler.Get)
	env.router.DELETE("/installations/:name", installationHandler.Delete)
	env.router.GET("/console/history", consoleHandler.GetHistory)
	env.router.POST("/console/clear", consoleHandler.ClearConsole)

	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func TestServerStatusStopped(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/server/status", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var status struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.State != "stopped" {
		t.Errorf("expected stopped, got %s", status.State)
	}
}

func TestAttachUnknownInstallation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/server/attach/missing", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/server/stop", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestExecuteCommandNotRunning(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/server/command", gin.H{"command": "list"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestExecuteCommandRequiresBody(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/server/command", gin.H{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestInstallationListAndGet(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/installations", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list struct {
		Installations []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"installations"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Installations) != 1 || list.Installations[0].Name != "main" {
		t.Fatalf("unexpected installations: %+v", list.Installations)
	}
	if list.Installations[0].State != "stopped" {
		t.Errorf("expected stopped state, got %s", list.Installations[0].State)
	}

	resp = env.do(t, http.MethodGet, "/installations/main", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/installations/other", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestInstallationCreateAndDelete(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	resp := env.do(t, http.MethodPost, "/installations", gin.H{"name": "second", "path": dir})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// Duplicate name rejected
	resp = env.do(t, http.MethodPost, "/installations", gin.H{"name": "second", "path": dir})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	// Bad path rejected
	resp = env.do(t, http.MethodPost, "/installations", gin.H{"name": "third", "path": filepath.Join(dir, "missing")})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodDelete, "/installations/second", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if _, ok := env.registry.Get("second"); ok {
		t.Error("installation still registered after delete")
	}
}

func TestConsoleHistoryAndClear(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/console/history", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var history struct {
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &history); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if history.Count != 0 {
		t.Errorf("expected empty history, got %d lines", history.Count)
	}

	resp = env.do(t, http.MethodPost, "/console/clear", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
