// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/api"
	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/di"
	"github.com/Corphon/MoodboardPitch/internal/drive"
	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/storage"
	"github.com/Corphon/MoodboardPitch/internal/utils"

	_ "github.com/Corphon/MoodboardPitch/internal/llm/providers/gemini"
)

const (
	shutdownTimeout = 30 * time.Second
	// finished results and trackers are kept this long for downloads
	resultRetention   = 2 * time.Hour
	cleanupInterval   = 10 * time.Minute
	metricsInterval   = 5 * time.Minute
	statsSaveInterval = 30 * time.Second
	analysisCacheMax  = 500
)

// server is the part of *http.Server the app drives.
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App owns the process lifecycle: configuration, services, HTTP server.
type App struct {
	config   *config.AppConfig
	router   http.Handler
	handler  *api.Handler
	server   server
	stopChan chan os.Signal
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp returns the process-wide application.
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = &App{stopChan: make(chan os.Signal, 1)}
	}
	return instance
}

// Initialize loads the configuration from dataDir, opens the log file,
// registers the services and builds the HTTP server.
func Initialize(dataDir string) error {
	app := GetApp()

	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("initialisation de la configuration: %w", err)
	}
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("initialisation des logs: %w", err)
	}
	if !app.config.DebugMode {
		utils.GetLogger().SetLogLevel(utils.INFO)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("initialisation des services: %w", err)
	}

	router, handler, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("configuration du routeur: %w", err)
	}
	app.router = router
	app.handler = handler
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// initLogger opens a dated log file under logDir.
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("moodboard_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices builds every service from the current configuration and
// registers it in the container. Order follows the dependencies.
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()
	logger := utils.GetLogger()

	files, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("stockage fichiers: %w", err)
	}
	container.Register(di.Files, files)

	var repo storage.ProjectRepository
	switch cfg.Storage.ProjectStore {
	case "sqlite":
		sqliteRepo, err := storage.NewSQLiteProjectRepository(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("base SQLite %s: %w", cfg.Storage.SQLitePath, err)
		}
		repo = sqliteRepo
	default:
		repo = storage.NewJSONProjectRepository(files)
	}
	container.Register(di.ProjectRepo, repo)

	cache := newAnalysisCache(cfg)
	container.Register(di.AnalysisCache, cache)

	progress := services.NewProgressService()
	container.Register(di.Progress, progress)

	stats := services.NewStatsService(files)
	container.Register(di.Stats, stats)

	llmService := services.NewLLMService()
	llmService.Stats = stats
	container.Register(di.LLM, llmService)
	if !llmService.IsReady() {
		logger.Warn("⚠️ LLM service not ready", map[string]interface{}{"state": llmService.GetReadyState()})
	}

	driveLoader := newDriveLoader(cfg)
	loader := services.NewLoaderService(driveLoader, cfg.Analyzer.ImageMaxSide, cfg.Analyzer.JPEGQuality)
	container.Register(di.Loader, loader)

	analyzer := services.NewAnalyzerService(llmService, cache, cfg.Analyzer)
	container.Register(di.Analyzer, analyzer)

	narrative := services.NewNarrativeService(llmService, cfg.Analyzer.NarrativeModel)
	container.Register(di.Narrative, narrative)

	container.Register(di.Video, services.NewVideoPromptService(llmService, cfg.Analyzer.NarrativeModel))

	exports := services.NewExportService(files)
	container.Register(di.Export, exports)
	container.Register(di.Projects, services.NewProjectService(repo, exports))

	container.Register(di.Pipeline, services.NewPipelineService(llmService, loader, analyzer, narrative, progress))

	logger.Info("✅ Services registered", map[string]interface{}{
		"services":      container.GetNames(),
		"project_store": cfg.Storage.ProjectStore,
		"drive_api":     driveLoader.UsesAPI(),
	})
	return nil
}

// newAnalysisCache prefers Redis when configured and falls back to memory
// when the server cannot be reached.
func newAnalysisCache(cfg *config.AppConfig) storage.AnalysisCache {
	if cfg.Storage.RedisAddr == "" {
		return storage.NewMemoryAnalysisCache(analysisCacheMax)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cache, err := storage.NewRedisAnalysisCache(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword)
	if err != nil {
		utils.GetLogger().Warn("⚠️ Redis unavailable, using memory cache", map[string]interface{}{
			"addr":  cfg.Storage.RedisAddr,
			"error": err.Error(),
		})
		return storage.NewMemoryAnalysisCache(analysisCacheMax)
	}
	return cache
}

func newDriveLoader(cfg *config.AppConfig) *drive.Loader {
	opts := []drive.Option{drive.WithImageSize(cfg.Analyzer.ImageMaxSide, cfg.Analyzer.JPEGQuality)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc, err := drive.NewService(ctx, drive.Credentials{
		APIKey:          cfg.GoogleAPIKey,
		CredentialsFile: cfg.CredentialsFile,
		TokenFile:       cfg.TokenFile,
		TokenSecret:     cfg.TokenSecret,
	})
	if err != nil {
		utils.GetLogger().Warn("⚠️ Drive API unavailable, using public pages", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if svc != nil {
		opts = append(opts, drive.WithService(svc))
	}
	return drive.NewLoader(opts...)
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func Run() error {
	app := GetApp()
	if app.server == nil {
		return errors.New("application non initialisée")
	}
	logger := utils.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.startBackground(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	port := ""
	if app.config != nil {
		port = app.config.Port
	}
	logger.Info("🌐 Server listening", map[string]interface{}{"port": port})

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("serveur HTTP: %w", err)
	case sig := <-app.stopChan:
		logger.Info("🛑 Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if app.handler != nil {
		app.handler.Sockets.Shutdown()
	}
	err := app.server.Shutdown(shutdownCtx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("arrêt forcé du serveur: %w", err)
	}
	logger.Info("✅ Server stopped", nil)
	return nil
}

// startBackground launches the periodic result cleanup, metrics report and
// usage stats save.
// All stop with ctx.
func (a *App) startBackground(ctx context.Context) {
	container := di.GetContainer()
	if pipeline, err := di.Resolve[*services.PipelineService](container, di.Pipeline); err == nil {
		pipeline.StartCleanup(ctx, cleanupInterval, resultRetention)
		pipeline.Metrics.StartMetricsCollection(ctx, metricsInterval)
	}
	if stats, err := di.Resolve[*services.StatsService](container, di.Stats); err == nil {
		stats.StartPeriodicSave(ctx, statsSaveInterval)
	}
}

// cleanup closes the stores registered by InitServices and the log file.
func (a *App) cleanup() {
	logger := utils.GetLogger()
	container := di.GetContainer()

	for _, name := range []string{di.Stats, di.AnalysisCache, di.ProjectRepo, di.Files} {
		closer, ok := container.Get(name).(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			logger.Warn("⚠️ Close failed", map[string]interface{}{"service": name, "error": err.Error()})
		}
	}
	logger.Close()
}

// GetConfig returns the configuration the app was initialized with.
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

func (a *App) GetDIContainer() *di.Container {
	return di.GetContainer()
}

func (a *App) IsDebugMode() bool {
	return a.config != nil && a.config.DebugMode
}
