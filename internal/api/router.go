// internal/api/router.go
package api

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/di"
	"github.com/Corphon/MoodboardPitch/internal/services"
)

// RouterOptions are the file system inputs of the router. Empty directories
// disable the page and the static files.
type RouterOptions struct {
	StaticDir    string
	TemplatesDir string
	// MaxUploadMB caps the multipart memory of uploads.
	MaxUploadMB int64
}

// SetupRouter builds the router from the services registered in the container.
func SetupRouter() (*gin.Engine, *Handler, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	llmService, err := di.Resolve[*services.LLMService](container, di.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("LLM service: %w", err)
	}
	progress, err := di.Resolve[*services.ProgressService](container, di.Progress)
	if err != nil {
		return nil, nil, fmt.Errorf("progress service: %w", err)
	}
	pipeline, err := di.Resolve[*services.PipelineService](container, di.Pipeline)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline service: %w", err)
	}
	narrative, err := di.Resolve[*services.NarrativeService](container, di.Narrative)
	if err != nil {
		return nil, nil, fmt.Errorf("narrative service: %w", err)
	}
	video, err := di.Resolve[*services.VideoPromptService](container, di.Video)
	if err != nil {
		return nil, nil, fmt.Errorf("video prompt service: %w", err)
	}
	export, err := di.Resolve[*services.ExportService](container, di.Export)
	if err != nil {
		return nil, nil, fmt.Errorf("export service: %w", err)
	}
	projects, err := di.Resolve[*services.ProjectService](container, di.Projects)
	if err != nil {
		return nil, nil, fmt.Errorf("project service: %w", err)
	}

	handler := NewHandler(llmService, progress, pipeline, narrative, video, export, projects)
	handler.Stores["projects"] = cfg.Storage.ProjectStore
	handler.Stores["analysis_cache"] = "memory"
	if cfg.Storage.RedisAddr != "" {
		handler.Stores["analysis_cache"] = "redis"
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewRouter(handler, RouterOptions{
		StaticDir:    cfg.StaticDir,
		TemplatesDir: cfg.TemplatesDir,
		MaxUploadMB:  200,
	}), handler, nil
}

// NewRouter wires every route to handler.
func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(handler.Metrics), corsMiddleware())
	if opts.MaxUploadMB > 0 {
		r.MaxMultipartMemory = opts.MaxUploadMB << 20
	}

	if opts.StaticDir != "" {
		if _, err := os.Stat(opts.StaticDir); err == nil {
			r.Static("/static", opts.StaticDir)
		}
	}
	if opts.TemplatesDir != "" {
		if matches, _ := filepath.Glob(filepath.Join(opts.TemplatesDir, "*.html")); len(matches) > 0 {
			r.LoadHTMLGlob(filepath.Join(opts.TemplatesDir, "*.html"))
			r.GET("/", handler.IndexPage)
		}
	}

	limiter := NewRateLimiter()
	generationLimit := GenerationRateLimit(limiter)

	r.GET("/ws/progress/:taskID", handler.ProgressWebSocket)

	api := r.Group("/api")
	api.Use(DefaultRateLimit(limiter))
	{
		api.GET("/health", handler.Health)
		api.GET("/options", handler.GetOptions)

		// ===============================
		// generation tasks
		// ===============================
		api.POST("/pitch", generationLimit, handler.StartPitch)
		api.POST("/pitch/upload", generationLimit, handler.StartPitchUpload)
		api.GET("/progress/:taskID", handler.SubscribeProgress)
		api.POST("/cancel/:taskID", handler.CancelTask)

		results := api.Group("/results/:taskID")
		{
			results.GET("", handler.GetResult)
			results.POST("/refine", handler.RefinePitch)
			results.POST("/references", handler.AddReferences)
			results.POST("/treatment", handler.GenerateTreatment)
			results.POST("/video-prompts", handler.GenerateVideoPrompts)
			results.POST("/images/:imageID/video-prompt", handler.ImageVideoPrompt)
			results.GET("/export/pdf", handler.ExportPDF)
			results.GET("/export/markdown", handler.ExportMarkdown)
			results.GET("/export/prompts", handler.ExportVideoPrompts)
			results.POST("/save", handler.SaveResult)
		}

		// ===============================
		// saved projects
		// ===============================
		projects := api.Group("/projects")
		{
			projects.GET("", handler.ListProjects)
			projects.POST("", handler.CreateProject)
			projects.GET("/:id", handler.GetProject)
			projects.PUT("/:id", handler.UpdateProject)
			projects.DELETE("/:id", handler.DeleteProject)
			projects.GET("/:id/export", handler.ExportProject)
		}

		// ===============================
		// LLM configuration
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		analyzerGroup := api.Group("/analyzer")
		{
			analyzerGroup.GET("/config", handler.GetAnalyzerConfig)
			analyzerGroup.PUT("/config", handler.UpdateAnalyzerConfig)
		}
	}

	return r
}
