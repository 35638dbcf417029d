// internal/app/app_test.go
package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/di"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/storage"
)

// setupTest points every configured path at a temporary directory and
// resets the process-wide state.
func setupTest(t *testing.T) string {
	t.Helper()
	instance = nil
	di.GetContainer().Clear()

	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("STATIC_DIR", filepath.Join(dir, "static"))
	t.Setenv("TEMPLATES_DIR", filepath.Join(dir, "templates"))
	t.Setenv("SECRETS_FILE", filepath.Join(dir, "absent.toml"))
	t.Setenv("GOOGLE_CREDENTIALS_FILE", filepath.Join(dir, "absent.json"))
	t.Setenv("GOOGLE_TOKEN_FILE", filepath.Join(dir, "token.json"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_DRIVE_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PROJECT_STORE", "file")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PORT", "8599")
	t.Setenv("DEBUG_MODE", "")

	t.Cleanup(func() {
		instance = nil
		di.GetContainer().Clear()
	})
	return dir
}

type mockServer struct {
	listenErr      error
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return m.listenErr
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

func TestGetApp(t *testing.T) {
	instance = nil
	defer func() { instance = nil }()

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp returned nil")
	}
	if app1 != GetApp() {
		t.Fatal("GetApp should return the same instance")
	}
	if app1.stopChan == nil {
		t.Fatal("stopChan not initialized")
	}
}

func TestInitLogger(t *testing.T) {
	dir := setupTest(t)
	logDir := filepath.Join(dir, "custom_logs")

	if err := initLogger(logDir); err != nil {
		t.Fatalf("initLogger: %v", err)
	}
	want := filepath.Join(logDir, "moodboard_"+time.Now().Format("2006-01-02")+".log")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("log file %s: %v", want, err)
	}
}

func TestInitServicesRegistersEverything(t *testing.T) {
	dir := setupTest(t)
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("PROJECT_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "projects.db"))

	if err := config.InitConfig(filepath.Join(dir, "data")); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	if err := InitServices(); err != nil {
		t.Fatalf("InitServices: %v", err)
	}
	container := di.GetContainer()
	defer GetApp().cleanup()

	for _, name := range []string{di.Progress, di.LLM, di.Loader, di.Analyzer, di.Narrative,
		di.Video, di.Pipeline, di.Projects, di.Export, di.Stats, di.Files, di.ProjectRepo, di.AnalysisCache} {
		if !container.Has(name) {
			t.Errorf("service %q not registered", name)
		}
	}

	if _, ok := container.Get(di.AnalysisCache).(*storage.RedisAnalysisCache); !ok {
		t.Errorf("analysis cache = %T, want redis", container.Get(di.AnalysisCache))
	}
	if _, ok := container.Get(di.ProjectRepo).(*storage.SQLiteProjectRepository); !ok {
		t.Errorf("project repository = %T, want sqlite", container.Get(di.ProjectRepo))
	}

	llmService, err := di.Resolve[*services.LLMService](container, di.LLM)
	if err != nil {
		t.Fatal(err)
	}
	if llmService.IsReady() {
		t.Error("LLM service should not be ready without a key")
	}

	projects, err := di.Resolve[*services.ProjectService](container, di.Projects)
	if err != nil {
		t.Fatal(err)
	}
	saved, err := projects.Save(context.Background(), "Essai", models.ProjectData{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := projects.Load(context.Background(), saved.ID); err != nil {
		t.Errorf("Load: %v", err)
	}
}

func TestNewAnalysisCacheFallsBackToMemory(t *testing.T) {
	cfg := &config.AppConfig{Storage: config.StorageSettings{RedisAddr: "127.0.0.1:1"}}
	cache := newAnalysisCache(cfg)
	defer cache.Close()

	if _, ok := cache.(*storage.MemoryAnalysisCache); !ok {
		t.Errorf("cache = %T, want memory fallback", cache)
	}
}

func TestInitialize(t *testing.T) {
	dir := setupTest(t)
	templates := filepath.Join(dir, "templates")
	if err := os.MkdirAll(templates, 0755); err != nil {
		t.Fatal(err)
	}
	page := `<!DOCTYPE html><html><body>{{.title}}</body></html>`
	if err := os.WriteFile(filepath.Join(templates, "index.html"), []byte(page), 0644); err != nil {
		t.Fatal(err)
	}

	dataDir := filepath.Join(dir, "data")
	if err := Initialize(dataDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	app := GetApp()
	defer app.cleanup()

	if app.GetConfig() == nil || app.router == nil || app.handler == nil {
		t.Fatal("app not fully initialized")
	}
	srv, ok := app.server.(*http.Server)
	if !ok || srv.Addr != ":8599" {
		t.Errorf("server = %#v", app.server)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "settings.yaml")); err != nil {
		t.Errorf("settings file: %v", err)
	}
	if !app.IsDebugMode() {
		t.Error("debug mode should default to true")
	}

	for _, path := range []string{"/", "/api/health"} {
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestRun(t *testing.T) {
	setupTest(t)
	mockSrv := &mockServer{}
	instance = &App{
		config:   &config.AppConfig{Port: "8081"},
		server:   mockSrv,
		stopChan: make(chan os.Signal, 1),
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		instance.stopChan <- syscall.SIGTERM
	}()

	if err := Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !mockSrv.ShutdownCalled {
		t.Error("server.Shutdown not called")
	}
}

func TestRunReportsServerError(t *testing.T) {
	setupTest(t)
	instance = &App{
		server:   &mockServer{listenErr: errors.New("address already in use")},
		stopChan: make(chan os.Signal, 1),
	}

	err := Run()
	if err == nil {
		t.Fatal("Run should fail when the server cannot listen")
	}
}

func TestRunRequiresInitialize(t *testing.T) {
	setupTest(t)
	if err := Run(); err == nil {
		t.Error("Run without Initialize should fail")
	}
}

func TestIsDebugMode(t *testing.T) {
	tests := []struct {
		app  *App
		want bool
	}{
		{&App{}, false},
		{&App{config: &config.AppConfig{DebugMode: false}}, false},
		{&App{config: &config.AppConfig{DebugMode: true}}, true},
	}
	for _, tt := range tests {
		if got := tt.app.IsDebugMode(); got != tt.want {
			t.Errorf("IsDebugMode() = %v, want %v", got, tt.want)
		}
	}
}

func TestGetDIContainer(t *testing.T) {
	if (&App{}).GetDIContainer() != di.GetContainer() {
		t.Error("GetDIContainer should return the global container")
	}
}
