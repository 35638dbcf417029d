// internal/services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	// GenerationTimeout bounds one background generation task.
	GenerationTimeout = 15 * time.Minute

	NoImagesMessage      = "Aucune image n'a pu être chargée"
	NoValidImagesMessage = "Aucune image valide n'a pu être téléchargée"
	TimeoutMessage       = "La génération a dépassé le délai autorisé"
)

// PipelineService runs moodboard-to-pitch generations as background tasks
// and keeps their results in memory.
type PipelineService struct {
	LLMService *LLMService
	Loader     *LoaderService
	Analyzer   *AnalyzerService
	Narrative  *NarrativeService
	Progress   *ProgressService
	Metrics    *utils.AppMetrics

	timeout time.Duration

	resultsMu sync.RWMutex
	results   map[string]*models.GenerationResult
}

func NewPipelineService(llmService *LLMService, loader *LoaderService, analyzer *AnalyzerService,
	narrative *NarrativeService, progress *ProgressService) *PipelineService {
	return &PipelineService{
		LLMService: llmService,
		Loader:     loader,
		Analyzer:   analyzer,
		Narrative:  narrative,
		Progress:   progress,
		Metrics:    utils.NewAppMetrics(nil),
		timeout:    GenerationTimeout,
		results:    make(map[string]*models.GenerationResult),
	}
}

// Validate checks the request before a task is started.
func (s *PipelineService) Validate(req models.GenerationRequest) error {
	switch req.Source {
	case models.SourceDrive:
		if req.FolderURL == "" {
			return apperrors.NewValidationError("Veuillez entrer un lien Google Drive", nil)
		}
	case models.SourceUpload:
		if len(req.Uploads) == 0 {
			return apperrors.NewValidationError("Veuillez uploader au moins une image", nil)
		}
	case models.SourceLinks:
		if req.Links == "" {
			return apperrors.NewValidationError("Veuillez coller au moins un lien d'image", nil)
		}
	default:
		return apperrors.NewValidationError(fmt.Sprintf("Source d'images inconnue : %q", req.Source), nil)
	}
	if !s.LLMService.IsReady() {
		return apperrors.NewUnauthorizedError(MissingKeyMessage, ErrLLMNotReady)
	}
	return nil
}

// Start validates req and runs it in the background. The returned task id
// identifies the progress tracker and, once done, the result.
func (s *PipelineService) Start(req models.GenerationRequest) (string, error) {
	if err := s.Validate(req); err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	tracker := s.Progress.CreateTracker(taskID)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	tracker.SetCancel(cancel)
	s.Metrics.RecordGenerationStarted(req.Source)
	started := time.Now()

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				utils.GetLogger().Error("Generation task panicked", map[string]interface{}{
					"task_id": taskID,
					"panic":   fmt.Sprint(r),
				})
				tracker.Fail("Erreur interne pendant la génération")
				s.Metrics.RecordGenerationFinished(StatusFailed, time.Since(started), 0)
			}
		}()

		result, err := s.Run(ctx, tracker, req)
		if err != nil {
			s.Metrics.RecordGenerationFinished(StatusFailed, time.Since(started), 0)
			tracker.Fail(failureMessage(ctx, err))
			utils.GetLogger().Warn("❌ Generation failed", map[string]interface{}{
				"task_id": taskID,
				"error":   err,
			})
			return
		}
		result.TaskID = taskID
		s.storeResult(result)
		s.Metrics.RecordGenerationFinished(StatusCompleted, time.Since(started), len(result.Images))
		tracker.Complete("Génération terminée !")
	}()

	utils.GetLogger().Info("🚀 Generation started", map[string]interface{}{
		"task_id": taskID,
		"source":  req.Source,
	})
	return taskID, nil
}

func failureMessage(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutMessage
	}
	if errors.Is(err, context.Canceled) {
		return "Tâche annulée"
	}
	return apperrors.MessageOf(err)
}

// Run executes the whole generation synchronously, reporting to tracker.
func (s *PipelineService) Run(ctx context.Context, tracker *ProgressTracker, req models.GenerationRequest) (*models.GenerationResult, error) {
	tracker.UpdateProgress(10, "Chargement des images...")
	images, err := s.Loader.Load(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	tracker.UpdateProgress(30, fmt.Sprintf("%d images chargées", len(images)))
	if len(images) == 0 {
		return nil, apperrors.NewValidationError(NoImagesMessage, nil)
	}

	valid := models.WithData(images)
	if len(valid) == 0 {
		return nil, apperrors.NewValidationError(NoValidImagesMessage, nil)
	}

	tracker.UpdateProgress(40, fmt.Sprintf("Analyse de %d images...", len(valid)))
	analysis, err := s.Analyzer.AnalyzeBatch(ctx, valid, func(p float64, msg string) {
		tracker.UpdateProgress(40+int(p*30), msg)
	})
	if err != nil {
		return nil, err
	}
	tracker.UpdateProgress(70, "Analyse terminée")

	tracker.UpdateProgress(80, "Génération du pitch...")
	narrative, err := s.Narrative.GenerateAll(ctx, analysis, req.Context)
	if err != nil {
		return nil, err
	}

	req.Uploads = nil
	return &models.GenerationResult{
		Request:     req,
		Images:      images,
		Analysis:    analysis,
		Narrative:   narrative,
		CompletedAt: time.Now(),
	}, nil
}

func (s *PipelineService) storeResult(r *models.GenerationResult) {
	s.resultsMu.Lock()
	s.results[r.TaskID] = r
	s.resultsMu.Unlock()
}

// Result returns a copy of the finished result of taskID.
func (s *PipelineService) Result(taskID string) (*models.GenerationResult, error) {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	r, ok := s.results[taskID]
	if !ok {
		return nil, apperrors.NewNotFoundError("Résultat introuvable pour la tâche "+taskID, nil)
	}
	return r.Clone(), nil
}

// UpdateResult applies fn to the stored result of taskID under the results lock
// and returns a copy of the updated result.
func (s *PipelineService) UpdateResult(taskID string, fn func(r *models.GenerationResult)) (*models.GenerationResult, error) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	r, ok := s.results[taskID]
	if !ok {
		return nil, apperrors.NewNotFoundError("Résultat introuvable pour la tâche "+taskID, nil)
	}
	fn(r)
	return r.Clone(), nil
}

// Cancel stops a running task.
func (s *PipelineService) Cancel(taskID string) error {
	tracker, ok := s.Progress.GetTracker(taskID)
	if !ok {
		return apperrors.NewNotFoundError("Tâche introuvable : "+taskID, nil)
	}
	if !tracker.Cancel() {
		return apperrors.NewConflictError("La tâche n'est plus en cours", nil)
	}
	utils.GetLogger().Info("🛑 Generation cancelled", map[string]interface{}{"task_id": taskID})
	return nil
}

// Cleanup drops finished trackers and results older than maxAge.
func (s *PipelineService) Cleanup(maxAge time.Duration) int {
	removed := s.Progress.CleanupCompletedTasks(maxAge)

	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	n := 0
	for _, id := range removed {
		if _, ok := s.results[id]; ok {
			delete(s.results, id)
			n++
		}
	}
	cutoff := time.Now().Add(-maxAge)
	for id, r := range s.results {
		if r.CompletedAt.Before(cutoff) {
			delete(s.results, id)
			n++
		}
	}
	return n
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *PipelineService) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Cleanup(maxAge); n > 0 {
					utils.GetLogger().Debug("Expired results removed", map[string]interface{}{"count": n})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
