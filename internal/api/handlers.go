// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/MoodboardPitch/internal/config"
	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	// llmRequestTimeout bounds the synchronous model calls (refine, treatment, prompts).
	llmRequestTimeout   = 5 * time.Minute
	modelRefreshTimeout = 10 * time.Second
	sseHeartbeat        = 15 * time.Second

	maxUploadFileBytes = 20 << 20
)

// Handler serves the HTTP API.
type Handler struct {
	LLM       *services.LLMService
	Progress  *services.ProgressService
	Pipeline  *services.PipelineService
	Narrative *services.NarrativeService
	Refiner   *services.PitchRefiner
	Video     *services.VideoPromptService
	Export    *services.ExportService
	Projects  *services.ProjectService
	Metrics   *utils.AppMetrics
	Sockets   *WebSocketManager
	Response  *ResponseHelper

	// Stores names the storage backends for the health endpoint.
	Stores map[string]string
}

// APIResponse is the JSON envelope of every API answer.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewHandler(
	llmService *services.LLMService,
	progress *services.ProgressService,
	pipeline *services.PipelineService,
	narrative *services.NarrativeService,
	video *services.VideoPromptService,
	export *services.ExportService,
	projects *services.ProjectService,
) *Handler {
	metrics := pipeline.Metrics
	if metrics == nil {
		metrics = utils.NewAppMetrics(nil)
	}
	return &Handler{
		LLM:       llmService,
		Progress:  progress,
		Pipeline:  pipeline,
		Narrative: narrative,
		Refiner:   services.NewPitchRefiner(narrative),
		Video:     video,
		Export:    export,
		Projects:  projects,
		Metrics:   metrics,
		Sockets:   NewWebSocketManager(),
		Response:  NewResponseHelper(),
		Stores:    map[string]string{},
	}
}

// llmContext bounds a model call by the request lifetime and llmRequestTimeout.
func llmContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), llmRequestTimeout)
}

// ------------------------------------------------
// pages and metadata

func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":     "Moodboard → Pitch",
		"formats":   models.Formats,
		"durations": models.Durations,
		"tones":     models.Tones,
		"platforms": platformOptions(),
		"llmReady":  h.LLM.IsReady(),
		"llmState":  h.LLM.GetReadyState(),
	})
}

func platformOptions() []gin.H {
	out := make([]gin.H, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		_, tpl := services.Template(p)
		out = append(out, gin.H{
			"id":                p,
			"name":              tpl.Name,
			"max_length":        tpl.MaxLength,
			"supports_duration": tpl.SupportsDuration,
		})
	}
	return out
}

func (h *Handler) GetOptions(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"sources":        []string{models.SourceDrive, models.SourceUpload, models.SourceLinks},
		"formats":        models.Formats,
		"durations":      models.Durations,
		"tones":          models.Tones,
		"platforms":      platformOptions(),
		"export_formats": []string{models.FormatJSON, models.FormatMarkdown, models.FormatPDF},
	})
}

// Health reports the LLM readiness, the storage backends and the task counters.
func (h *Handler) Health(c *gin.Context) {
	ready, state := h.LLM.GetProviderStatus()
	status := "ok"
	if !ready {
		status = "degraded"
	}
	h.Response.Success(c, gin.H{
		"status": status,
		"llm": gin.H{
			"ready":    ready,
			"state":    state,
			"provider": h.LLM.GetProviderName(),
			"model":    h.LLM.GetDefaultModel(),
		},
		"stores":    h.Stores,
		"tasks":     gin.H{"running": h.Progress.ActiveCount()},
		"websocket": h.Sockets.GetStatus(),
		"metrics":   h.Metrics.Collector().GetMetrics(),
	})
}

// ------------------------------------------------
// generation

type pitchRequest struct {
	Source    string                 `json:"source" binding:"required,oneof=drive links"`
	FolderURL string                 `json:"folder_url" binding:"max=2048"`
	Links     string                 `json:"links" binding:"max=200000"`
	Context   models.CreativeContext `json:"context"`
}

// StartPitch starts a generation from a Drive folder or a list of links.
func (h *Handler) StartPitch(c *gin.Context) {
	var req pitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorInvalidSource, "Requête invalide", err.Error())
		return
	}
	h.start(c, models.GenerationRequest{
		Source:    req.Source,
		FolderURL: strings.TrimSpace(req.FolderURL),
		Links:     req.Links,
		Context:   req.Context,
	})
}

// StartPitchUpload starts a generation from multipart images[] files.
func (h *Handler) StartPitchUpload(c *gin.Context) {
	var cc models.CreativeContext
	if err := c.ShouldBind(&cc); err != nil {
		h.Response.BadRequest(c, "Contexte créatif invalide", err.Error())
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "Veuillez uploader au moins une image", err.Error())
		return
	}
	files := form.File["images[]"]
	if len(files) == 0 {
		files = form.File["images"]
	}

	uploads := make([]models.UploadedFile, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadFileBytes {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge,
				fmt.Sprintf("Fichier trop volumineux : %s", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "Lecture du fichier impossible : "+fh.Filename, err.Error())
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadFileBytes+1))
		f.Close()
		if err != nil {
			h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "Lecture du fichier impossible : "+fh.Filename, err.Error())
			return
		}
		uploads = append(uploads, models.UploadedFile{Name: fh.Filename, Data: data})
	}

	h.start(c, models.GenerationRequest{
		Source:  models.SourceUpload,
		Uploads: uploads,
		Context: cc,
	})
}

func (h *Handler) start(c *gin.Context, req models.GenerationRequest) {
	taskID, err := h.Pipeline.Start(req)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Accepted(c, gin.H{
		"task_id":       taskID,
		"progress_url":  "/api/progress/" + taskID,
		"websocket_url": "/ws/progress/" + taskID,
		"result_url":    "/api/results/" + taskID,
	}, "Génération démarrée, suivez la progression")
}

// SubscribeProgress streams task updates as server-sent events.
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "Tâche introuvable : "+taskID)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"task_id\":%q}\n\n", taskID)
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			writeProgressEvent(c, update)
			if isFinal(update) {
				return
			}
		case <-tracker.Done:
			writeProgressEvent(c, tracker.Snapshot())
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

func writeProgressEvent(c *gin.Context, update services.ProgressUpdate) {
	data, _ := json.Marshal(update)
	fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", data)
	c.Writer.Flush()
}

func isFinal(update services.ProgressUpdate) bool {
	return update.Status == services.StatusCompleted || update.Status == services.StatusFailed
}

// ProgressWebSocket sends the same updates as SubscribeProgress over a WebSocket.
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	taskID := c.Param("taskID")
	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "Tâche introuvable : "+taskID)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket upgrade failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err,
		})
		return
	}

	client := newWebSocketClient(conn, taskID)
	h.Sockets.register(client)
	defer h.Sockets.unregister(client)

	go client.readLoop()
	client.streamProgress(tracker)
}

func (h *Handler) CancelTask(c *gin.Context) {
	if err := h.Pipeline.Cancel(c.Param("taskID")); err != nil {
		h.Response.FromError(c, err, ErrorTaskNotFound)
		return
	}
	h.Response.Success(c, gin.H{"task_id": c.Param("taskID")}, "Tâche annulée")
}

func (h *Handler) GetResult(c *gin.Context) {
	result, err := h.Pipeline.Result(c.Param("taskID"))
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	h.Response.Success(c, result)
}

// ------------------------------------------------
// result refinement

// RefinePitch rewrites the pitch of a result in the requested tone.
func (h *Handler) RefinePitch(c *gin.Context) {
	var req struct {
		Tone string `json:"tone" binding:"max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	h.rewritePitch(c, func(ctx context.Context, pitch string) (string, error) {
		return h.Refiner.RefineForTone(ctx, pitch, req.Tone)
	}, func(r *models.GenerationResult) {
		r.Request.Context.Tone = req.Tone
	})
}

// AddReferences weaves film references into the pitch of a result.
func (h *Handler) AddReferences(c *gin.Context) {
	var req struct {
		References []string `json:"references" binding:"max=20,dive,max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	h.rewritePitch(c, func(ctx context.Context, pitch string) (string, error) {
		return h.Refiner.AddReferences(ctx, pitch, req.References)
	}, nil)
}

func (h *Handler) rewritePitch(c *gin.Context, rewrite func(ctx context.Context, pitch string) (string, error), after func(r *models.GenerationResult)) {
	taskID := c.Param("taskID")
	result, err := h.Pipeline.Result(taskID)
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}

	ctx, cancel := llmContext(c)
	defer cancel()

	pitch, err := rewrite(ctx, result.Narrative.Pitch)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if _, err := h.Pipeline.UpdateResult(taskID, func(r *models.GenerationResult) {
		r.Narrative.Pitch = pitch
		if after != nil {
			after(r)
		}
	}); err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	h.Response.Success(c, gin.H{"pitch": pitch}, "Pitch mis à jour")
}

// GenerateTreatment writes the long-form treatment of a result.
func (h *Handler) GenerateTreatment(c *gin.Context) {
	taskID := c.Param("taskID")
	result, err := h.Pipeline.Result(taskID)
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	if strings.TrimSpace(result.Narrative.Pitch) == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportDataEmpty, "Aucun pitch à développer")
		return
	}

	ctx, cancel := llmContext(c)
	defer cancel()

	treatment, err := h.Narrative.GenerateTreatment(ctx, result.Narrative.Pitch, result.Narrative.Sequencer)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if _, err := h.Pipeline.UpdateResult(taskID, func(r *models.GenerationResult) {
		r.Narrative.Treatment = treatment
	}); err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	h.Response.Success(c, gin.H{"treatment": treatment})
}

type videoPromptsRequest struct {
	Platform string `json:"platform" binding:"omitempty,oneof=all veo3 kling runway"`
	Style    string `json:"style" binding:"max=300"`
	Duration int    `json:"duration" binding:"min=0,max=60"`
}

// GenerateVideoPrompts turns the découpage of a result into text-to-video prompts.
func (h *Handler) GenerateVideoPrompts(c *gin.Context) {
	var req videoPromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	if req.Platform == "" {
		req.Platform = models.PlatformVeo3
	}

	taskID := c.Param("taskID")
	result, err := h.Pipeline.Result(taskID)
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	if strings.TrimSpace(result.Narrative.Decoupage) == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportDataEmpty, "Aucun découpage à convertir")
		return
	}

	ctx, cancel := llmContext(c)
	defer cancel()

	var (
		prompts []models.VideoPrompt
		byPlat  map[string][]models.VideoPrompt
	)
	if req.Platform == "all" {
		byPlat, err = h.Video.PromptsForAllPlatforms(ctx, result.Narrative.Decoupage, req.Style, req.Duration)
		for _, p := range models.Platforms {
			prompts = append(prompts, byPlat[p]...)
		}
	} else {
		prompts, err = h.Video.PromptsFromDecoupage(ctx, result.Narrative.Decoupage, req.Platform, req.Style, req.Duration)
		byPlat = map[string][]models.VideoPrompt{req.Platform: prompts}
	}
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	if _, err := h.Pipeline.UpdateResult(taskID, func(r *models.GenerationResult) {
		r.VideoPrompts = prompts
	}); err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	h.Response.Success(c, gin.H{"platform": req.Platform, "prompts": byPlat, "count": len(prompts)})
}

// ImageVideoPrompt asks the vision model for a prompt animating one image of a result.
func (h *Handler) ImageVideoPrompt(c *gin.Context) {
	var req struct {
		Action   string `json:"action" binding:"max=500"`
		Platform string `json:"platform" binding:"omitempty,oneof=veo3 kling runway"`
		Duration int    `json:"duration" binding:"min=0,max=60"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}

	result, err := h.Pipeline.Result(c.Param("taskID"))
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	imageID := c.Param("imageID")
	var image *models.MoodImage
	for i := range result.Images {
		if result.Images[i].ID == imageID {
			image = &result.Images[i]
			break
		}
	}
	if image == nil {
		h.Response.NotFound(c, ErrorNotFound, "Image introuvable : "+imageID)
		return
	}

	ctx, cancel := llmContext(c)
	defer cancel()

	prompt, err := h.Video.PromptFromImage(ctx, *image, req.Action, req.Platform, req.Duration)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, prompt)
}

// ------------------------------------------------
// exports

func (h *Handler) ExportPDF(c *gin.Context) {
	result, ok := h.exportableResult(c)
	if !ok {
		return
	}
	export, err := h.Export.ExportPDF(c.Query("title"), result.Narrative, result.Images)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Metrics.RecordExport(export.Format)
	h.Response.DownloadResponse(c, export)
}

func (h *Handler) ExportMarkdown(c *gin.Context) {
	result, ok := h.exportableResult(c)
	if !ok {
		return
	}
	export := h.Export.ExportMarkdown(result.Narrative)
	h.Metrics.RecordExport(export.Format)
	h.Response.DownloadResponse(c, export)
}

func (h *Handler) ExportVideoPrompts(c *gin.Context) {
	result, err := h.Pipeline.Result(c.Param("taskID"))
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}
	if len(result.VideoPrompts) == 0 {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportDataEmpty, "Aucun prompt vidéo à exporter")
		return
	}
	export := h.Export.ExportVideoPrompts(result.VideoPrompts)
	h.Metrics.RecordExport(export.Format)
	h.Response.DownloadResponse(c, export)
}

func (h *Handler) exportableResult(c *gin.Context) (*models.GenerationResult, bool) {
	result, err := h.Pipeline.Result(c.Param("taskID"))
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return nil, false
	}
	if result.Narrative.Pitch == "" && result.Narrative.Sequencer == "" && result.Narrative.Decoupage == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportDataEmpty, "Aucun contenu à exporter")
		return nil, false
	}
	return result, true
}

// ------------------------------------------------
// projects

// SaveResult stores a finished result as a project.
func (h *Handler) SaveResult(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	result, err := h.Pipeline.Result(c.Param("taskID"))
	if err != nil {
		h.Response.FromError(c, err, ErrorResultNotFound)
		return
	}

	project, err := h.Projects.Save(c.Request.Context(), req.Name, result.ProjectData())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, project, "Projet sauvegardé")
}

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Projects.List(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if projects == nil {
		projects = []models.ProjectSummary{}
	}
	h.Response.Success(c, projects)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req struct {
		Name string             `json:"name" binding:"max=200"`
		Data models.ProjectData `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	project, err := h.Projects.Save(c.Request.Context(), req.Name, req.Data)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, project, "Projet sauvegardé")
}

func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.Projects.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err, ErrorProjectNotFound)
		return
	}
	h.Response.Success(c, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var req struct {
		Data models.ProjectData `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}
	project, err := h.Projects.Update(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		h.Response.FromError(c, err, ErrorProjectNotFound)
		return
	}
	h.Response.Success(c, project, "Projet mis à jour")
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.Projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.FromError(c, err, ErrorProjectNotFound)
		return
	}
	h.Response.Success(c, gin.H{"id": c.Param("id")}, "Projet supprimé")
}

func (h *Handler) ExportProject(c *gin.Context) {
	format := c.DefaultQuery("format", models.FormatJSON)
	if format == "markdown" {
		format = models.FormatMarkdown
	}
	export, err := h.Projects.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		if apperrors.IsValidationError(err) {
			h.Response.Error(c, http.StatusBadRequest, ErrorExportFormatInvalid, apperrors.MessageOf(err))
			return
		}
		h.Response.FromError(c, err, ErrorProjectNotFound)
		return
	}
	h.Metrics.RecordExport(export.Format)
	h.Response.DownloadResponse(c, export)
}

// ------------------------------------------------
// LLM configuration

func (h *Handler) GetLLMStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	ready, state := h.LLM.GetProviderStatus()
	status := gin.H{
		"ready":       ready,
		"status":      state,
		"provider":    h.LLM.GetProviderName(),
		"model":       h.LLM.GetDefaultModel(),
		"has_api_key": cfg.LLMConfig["api_key"] != "" || cfg.GeminiAPIKey != "",
		"providers":   llm.ListProviders(),
		"models":      h.LLM.SupportedModels(),
	}
	if h.LLM.Stats != nil {
		status["usage"] = h.LLM.Stats.GetUsageStats()
	}
	h.Response.Success(c, status)
}

// UpdateLLMConfig swaps the provider. A blank api_key keeps the current key;
// the key itself is never written to disk.
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required,max=50"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}

	current := config.GetCurrentConfig()
	merged := make(map[string]string, len(req.Config)+1)
	for k, v := range req.Config {
		merged[k] = strings.TrimSpace(v)
	}
	if merged["api_key"] == "" {
		merged["api_key"] = current.LLMConfig["api_key"]
	}
	if merged["api_key"] == "" {
		merged["api_key"] = current.GeminiAPIKey
	}

	if err := h.LLM.UpdateProvider(req.Provider, merged); err != nil {
		if errors.Is(err, llm.ErrUnknownProvider) {
			h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "Fournisseur LLM inconnu : "+req.Provider)
			return
		}
		if errors.Is(err, services.ErrLLMNotReady) {
			h.Response.Error(c, http.StatusBadRequest, ErrorAPIKeyMissing, apperrors.MessageOf(err))
			return
		}
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "Configuration LLM invalide", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), modelRefreshTimeout)
	defer cancel()
	if err := h.LLM.RefreshModels(ctx); err != nil {
		utils.GetLogger().Warn("Model list not refreshed", map[string]interface{}{"error": err})
	}

	if err := config.UpdateLLMConfig(req.Provider, merged); err != nil {
		utils.GetLogger().Warn("LLM settings not persisted", map[string]interface{}{"error": err})
		h.Response.Success(c, gin.H{"provider": req.Provider}, "Configuration appliquée (non persistée)")
		return
	}
	h.Response.Success(c, gin.H{"provider": req.Provider, "model": h.LLM.GetDefaultModel()}, "Configuration LLM mise à jour")
}

func (h *Handler) GetAnalyzerConfig(c *gin.Context) {
	h.Response.Success(c, h.Pipeline.Analyzer.Settings())
}

// UpdateAnalyzerConfig validates and persists new analyzer tuning. Batch size,
// pacing, retries and models apply to the next analysis; image size and JPEG
// quality are read at startup.
func (h *Handler) UpdateAnalyzerConfig(c *gin.Context) {
	var settings config.AnalyzerSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.Response.BadRequest(c, "Requête invalide", err.Error())
		return
	}

	err := config.UpdateAnalyzerSettings(settings)
	if errors.Is(err, config.ErrInvalidConfig) {
		h.Response.Error(c, http.StatusBadRequest, ErrorAnalyzerConfigInvalid, "Réglages de l'analyse invalides", err.Error())
		return
	}
	h.Pipeline.Analyzer.UpdateSettings(settings)
	if err != nil {
		utils.GetLogger().Warn("Analyzer settings not persisted", map[string]interface{}{"error": err})
		h.Response.Success(c, settings, "Réglages appliqués (non persistés)")
		return
	}
	h.Response.Success(c, settings, "Réglages de l'analyse mis à jour")
}
