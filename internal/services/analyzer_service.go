// internal/services/analyzer_service.go
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/config"
	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/storage"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// ProgressFunc receives a completion fraction in [0, 1] and a status line.
type ProgressFunc func(fraction float64, message string)

func (p ProgressFunc) report(fraction float64, message string) {
	if p != nil {
		p(fraction, message)
	}
}

const (
	// BlockedPlaceholder replaces the description of an image the model refused.
	BlockedPlaceholder = "[Image non analysée - filtre de sécurité]"

	analysisCacheTTL = 7 * 24 * time.Hour
	rateLimitBase    = 5 * time.Second
	retryPause       = 2 * time.Second
)

// AnalyzerService reads moodboard images with the vision model, batching
// several images per request.
type AnalyzerService struct {
	LLMService *LLMService
	cache      storage.AnalysisCache

	settingsMu sync.RWMutex
	settings   config.AnalyzerSettings

	// sleep waits d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	requestMu   sync.Mutex
	lastRequest time.Time

	modelMu sync.Mutex
	model   string
}

// analysisRun holds the counters of one AnalyzeBatch call.
type analysisRun struct {
	requests int
	blocked  int
	cached   int
}

func NewAnalyzerService(llmService *LLMService, cache storage.AnalysisCache, settings config.AnalyzerSettings) *AnalyzerService {
	defaults := config.DefaultAnalyzerSettings()
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = defaults.MaxRetries
	}
	if settings.VisionModel == "" {
		settings.VisionModel = defaults.VisionModel
	}
	return &AnalyzerService{
		LLMService: llmService,
		cache:      cache,
		settings:   settings,
		sleep:      sleepContext,
		model:      settings.VisionModel,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settings returns the tuning in use.
func (s *AnalyzerService) Settings() config.AnalyzerSettings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the tuning for the next requests. A new vision
// model also resets any fallback switch.
func (s *AnalyzerService) UpdateSettings(settings config.AnalyzerSettings) {
	s.settingsMu.Lock()
	previous := s.settings.VisionModel
	s.settings = settings
	s.settingsMu.Unlock()

	if settings.VisionModel != previous {
		s.modelMu.Lock()
		s.model = settings.VisionModel
		s.modelMu.Unlock()
	}
	utils.GetLogger().Info("🔧 Analyzer settings updated", map[string]interface{}{
		"batch_size":   settings.BatchSize,
		"vision_model": settings.VisionModel,
	})
}

// Model is the vision model currently in use.
func (s *AnalyzerService) Model() string {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()
	return s.model
}

// switchToFallback moves to the fallback model once. It reports whether a switch happened.
func (s *AnalyzerService) switchToFallback() bool {
	fallback := s.Settings().FallbackModel

	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	if fallback == "" || s.model == fallback {
		return false
	}
	utils.GetLogger().Warn("⚠️ Vision model unavailable, switching to fallback", map[string]interface{}{
		"model":    s.model,
		"fallback": fallback,
	})
	s.model = fallback
	return true
}

// waitForSlot enforces the minimum delay between two requests of this analyzer.
func (s *AnalyzerService) waitForSlot(ctx context.Context) error {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()

	minDelay := time.Duration(s.Settings().MinDelayMs) * time.Millisecond
	if elapsed := time.Since(s.lastRequest); elapsed < minDelay {
		if err := s.sleep(ctx, minDelay-elapsed); err != nil {
			return err
		}
	}
	s.lastRequest = time.Now()
	return nil
}

// request sends req with retries. A blocked answer is not an error: it
// returns "" and counts the block.
func (s *AnalyzerService) request(ctx context.Context, run *analysisRun, req llm.CompletionRequest) (string, error) {
	req.DisableSafety = true
	maxRetries := s.Settings().MaxRetries

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := s.waitForSlot(ctx); err != nil {
			return "", err
		}
		req.Model = s.Model()
		resp, err := s.LLMService.CompleteDirect(ctx, req)
		run.requests++
		if err == nil {
			return resp.Text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err

		switch {
		case apperrors.IsBlockedError(err):
			run.blocked++
			utils.GetLogger().Warn("⚠️ Content blocked by safety filters", map[string]interface{}{"model": req.Model})
			return "", nil
		case apperrors.IsUnauthorizedError(err):
			return "", err
		case apperrors.IsRateLimitedError(err):
			wait := rateLimitBase + time.Duration(attempt)*rateLimitBase
			utils.GetLogger().Warn("Rate limited, backing off", map[string]interface{}{
				"wait":    wait.String(),
				"attempt": attempt + 1,
			})
			if err := s.sleep(ctx, wait); err != nil {
				return "", err
			}
		case llm.IsModelNotFound(err):
			if !s.switchToFallback() {
				return "", err
			}
		default:
			if attempt == maxRetries-1 {
				return "", err
			}
			if err := s.sleep(ctx, retryPause); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// AnalyzeBatch analyzes every image and builds the global synthesis.
func (s *AnalyzerService) AnalyzeBatch(ctx context.Context, images []models.MoodImage, progress ProgressFunc) (*models.GlobalAnalysis, error) {
	total := len(images)
	run := &analysisRun{}
	batchSize := s.Settings().BatchSize

	progress.report(0, fmt.Sprintf("Démarrage de l'analyse de %d images...", total))

	analyses := make([]models.ImageAnalysis, 0, total)
	numBatches := (total + batchSize - 1) / batchSize
	for k := 0; k < numBatches; k++ {
		start := k * batchSize
		end := min(start+batchSize, total)
		batch := images[start:end]

		fraction := float64(k) / float64(numBatches) * 0.8
		progress.report(fraction, fmt.Sprintf("Lot %d/%d (%d-%d/%d)", k+1, numBatches, start+1, end, total))

		result, err := s.analyzeBatchWithCache(ctx, run, batch, func() {
			progress.report(fraction, fmt.Sprintf("Lot %d bloqué - analyse individuelle...", k+1))
		})
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, result...)
	}

	analyzed := 0
	for _, a := range analyses {
		if !a.Empty() && a.Description != BlockedPlaceholder {
			analyzed++
		}
	}
	if run.blocked > 0 {
		progress.report(0.85, fmt.Sprintf("Synthèse... (%d/%d images analysées, %d bloquées)", analyzed, total, run.blocked))
	} else {
		progress.report(0.85, fmt.Sprintf("Synthèse de %d images...", analyzed))
	}

	var global *models.GlobalAnalysis
	if analyzed > 0 {
		var err error
		global, err = s.synthesize(ctx, run, analyses)
		if err != nil {
			return nil, err
		}
	} else {
		global = &models.GlobalAnalysis{
			VisualStyle:      "Analyse non disponible",
			NarrativeThreads: []string{"Les images n'ont pas pu être analysées"},
		}
	}
	global.IndividualAnalyses = analyses
	global.Stats = models.AnalysisStats{
		Total:    total,
		Analyzed: analyzed,
		Blocked:  run.blocked,
		Requests: run.requests,
		Cached:   run.cached,
	}

	progress.report(1.0, fmt.Sprintf("✓ %d/%d images analysées (%d requêtes)", analyzed, total, run.requests))
	utils.GetLogger().Info("🖼️ Image analysis finished", map[string]interface{}{
		"total":    total,
		"analyzed": analyzed,
		"blocked":  run.blocked,
		"requests": run.requests,
		"cached":   run.cached,
	})
	return global, nil
}

// analyzeBatchWithCache serves cached images, sends the rest in one request
// and falls back to one request per image when the whole request came back empty.
func (s *AnalyzerService) analyzeBatchWithCache(ctx context.Context, run *analysisRun, batch []models.MoodImage, onBlocked func()) ([]models.ImageAnalysis, error) {
	out := make([]models.ImageAnalysis, len(batch))
	var pending []int
	for i, img := range batch {
		out[i] = emptyAnalysis(img)
		if !img.HasData() {
			continue
		}
		if cached, ok := s.cachedAnalysis(ctx, img); ok {
			out[i] = cached
			run.cached++
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	toSend := make([]models.MoodImage, len(pending))
	for j, i := range pending {
		toSend[j] = batch[i]
	}
	results, err := s.analyzeMany(ctx, run, toSend)
	if err != nil {
		return nil, err
	}

	allEmpty := true
	for _, r := range results {
		if !r.Empty() {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		onBlocked()
		for j, img := range toSend {
			single, err := s.analyzeSingle(ctx, run, img)
			if err != nil {
				return nil, err
			}
			results[j] = single
		}
	}

	for j, i := range pending {
		out[i] = results[j]
		if !results[j].Empty() && results[j].Description != BlockedPlaceholder {
			s.storeAnalysis(ctx, batch[i], results[j])
		}
	}
	return out, nil
}

// analyzeMany sends all images in a single request. Failures other than
// cancellation produce empty analyses.
func (s *AnalyzerService) analyzeMany(ctx context.Context, run *analysisRun, batch []models.MoodImage) ([]models.ImageAnalysis, error) {
	empty := make([]models.ImageAnalysis, len(batch))
	for i, img := range batch {
		empty[i] = emptyAnalysis(img)
	}

	req := llm.CompletionRequest{Prompt: batchPrompt(len(batch))}
	for _, img := range batch {
		req.Images = append(req.Images, llm.ImagePart{MimeType: mimeOrJPEG(img.MimeType), Data: img.Data})
	}

	text, err := s.request(ctx, run, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		utils.GetLogger().Warn("Batch analysis failed", map[string]interface{}{"images": len(batch), "error": err})
		return empty, nil
	}
	if text == "" {
		return empty, nil
	}

	entries, err := parseAnalysisEntries(text)
	if err != nil {
		utils.GetLogger().Warn("Batch analysis JSON unreadable", map[string]interface{}{"error": err})
		return empty, nil
	}
	out := empty
	for i := range batch {
		if i < len(entries) {
			out[i] = entries[i].toAnalysis(batch[i])
		}
	}
	return out, nil
}

func (s *AnalyzerService) analyzeSingle(ctx context.Context, run *analysisRun, img models.MoodImage) (models.ImageAnalysis, error) {
	req := llm.CompletionRequest{
		Prompt: singleImagePrompt,
		Images: []llm.ImagePart{{MimeType: mimeOrJPEG(img.MimeType), Data: img.Data}},
	}
	text, err := s.request(ctx, run, req)
	if err != nil && ctx.Err() != nil {
		return models.ImageAnalysis{}, ctx.Err()
	}
	if err == nil && text != "" {
		var entry analysisEntry
		if DecodeJSON(text, &entry) == nil && entry.Description != "" {
			return entry.toAnalysis(img), nil
		}
	}
	blocked := emptyAnalysis(img)
	blocked.Description = BlockedPlaceholder
	return blocked, nil
}

func emptyAnalysis(img models.MoodImage) models.ImageAnalysis {
	return models.ImageAnalysis{ImageID: img.ID, ImageName: img.Name}
}

func mimeOrJPEG(m string) string {
	if m == "" {
		return "image/jpeg"
	}
	return m
}

func (s *AnalyzerService) cacheKey(img models.MoodImage) string {
	sum := sha256.Sum256(img.Data)
	return hex.EncodeToString(sum[:]) + ":" + s.Model()
}

func (s *AnalyzerService) cachedAnalysis(ctx context.Context, img models.MoodImage) (models.ImageAnalysis, bool) {
	if s.cache == nil {
		return models.ImageAnalysis{}, false
	}
	data, ok, err := s.cache.Get(ctx, s.cacheKey(img))
	if err != nil {
		utils.GetLogger().Warn("Analysis cache read failed", map[string]interface{}{"error": err})
		return models.ImageAnalysis{}, false
	}
	if !ok {
		return models.ImageAnalysis{}, false
	}
	var a models.ImageAnalysis
	if err := json.Unmarshal(data, &a); err != nil || a.Empty() {
		return models.ImageAnalysis{}, false
	}
	a.ImageID, a.ImageName = img.ID, img.Name
	return a, true
}

func (s *AnalyzerService) storeAnalysis(ctx context.Context, img models.MoodImage, a models.ImageAnalysis) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(img), data, analysisCacheTTL); err != nil {
		utils.GetLogger().Warn("Analysis cache write failed", map[string]interface{}{"error": err})
	}
}

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "" {
			*l = stringList{s}
		}
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, it := range items {
		if str := strings.TrimSpace(fmt.Sprint(it)); str != "" && it != nil {
			*l = append(*l, str)
		}
	}
	return nil
}

type analysisEntry struct {
	Description        string     `json:"description"`
	Subjects           stringList `json:"subjects"`
	Setting            string     `json:"setting"`
	Mood               string     `json:"mood"`
	Colors             stringList `json:"colors"`
	Actions            stringList `json:"actions"`
	Objects            stringList `json:"objects"`
	NarrativePotential string     `json:"narrative_potential"`
	TechnicalNotes     string     `json:"technical_notes"`
}

func (e analysisEntry) toAnalysis(img models.MoodImage) models.ImageAnalysis {
	return models.ImageAnalysis{
		ImageID:            img.ID,
		ImageName:          img.Name,
		Description:        e.Description,
		Subjects:           e.Subjects,
		Setting:            e.Setting,
		Mood:               e.Mood,
		Colors:             e.Colors,
		Actions:            e.Actions,
		Objects:            e.Objects,
		NarrativePotential: e.NarrativePotential,
		TechnicalNotes:     e.TechnicalNotes,
	}
}

// parseAnalysisEntries accepts an array of entries or a single object.
func parseAnalysisEntries(text string) ([]analysisEntry, error) {
	var raw json.RawMessage
	if err := DecodeJSON(text, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var single analysisEntry
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []analysisEntry{single}, nil
	}
	var entries []analysisEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// countRanked counts non-empty values, most frequent first, ties in first-seen order.
func countRanked(values []string) []models.CountedItem {
	index := make(map[string]int)
	var items []models.CountedItem
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i, ok := index[v]; ok {
			items[i].Count++
			continue
		}
		index[v] = len(items)
		items = append(items, models.CountedItem{Name: v, Count: 1})
	}
	// insertion sort keeps first-seen order among equal counts
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Count > items[j-1].Count; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items
}

func topNames(items []models.CountedItem, n int) []string {
	names := make([]string, 0, min(n, len(items)))
	for i := 0; i < len(items) && i < n; i++ {
		names = append(names, items[i].Name)
	}
	return names
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

type synthesisReply struct {
	VisualStyle      string                   `json:"visual_style"`
	NarrativeThreads stringList               `json:"narrative_threads"`
	ThematicClusters []models.ThematicCluster `json:"thematic_clusters"`
}

func (s *AnalyzerService) synthesize(ctx context.Context, run *analysisRun, analyses []models.ImageAnalysis) (*models.GlobalAnalysis, error) {
	var subjects, settings, moods, colors, samples []string
	for _, a := range analyses {
		subjects = append(subjects, a.Subjects...)
		if a.Setting != "" {
			settings = append(settings, a.Setting)
		}
		if a.Mood != "" {
			moods = append(moods, a.Mood)
		}
		colors = append(colors, a.Colors...)
		if a.Description != "" && a.Description != BlockedPlaceholder {
			samples = append(samples, fmt.Sprintf("[%s] %s", a.ImageName, a.Description))
		}
	}

	subjectCounts := countRanked(subjects)
	if len(subjectCounts) > 15 {
		subjectCounts = subjectCounts[:15]
	}
	global := &models.GlobalAnalysis{
		RecurringSubjects: subjectCounts,
		RecurringSettings: topNames(countRanked(settings), 5),
		DominantMoods:     topNames(countRanked(moods), 5),
		ColorPalette:      topNames(countRanked(colors), 10),
	}

	prompt := fmt.Sprintf(synthesisPromptTemplate,
		len(analyses),
		strings.Join(firstN(samples, 25), "\n"),
		strings.Join(topNames(subjectCounts, 10), ", "),
		strings.Join(global.RecurringSettings, ", "),
		strings.Join(global.DominantMoods, ", "),
		strings.Join(firstN(global.ColorPalette, 8), ", "),
	)

	text, err := s.request(ctx, run, llm.CompletionRequest{Prompt: prompt})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var reply synthesisReply
	if err == nil && text != "" && DecodeJSON(text, &reply) == nil {
		global.VisualStyle = reply.VisualStyle
		global.NarrativeThreads = reply.NarrativeThreads
		global.ThematicClusters = reply.ThematicClusters
		return global, nil
	}
	if err != nil {
		utils.GetLogger().Warn("Synthesis failed, using defaults", map[string]interface{}{"error": err})
	}
	global.VisualStyle = "Style varié à déterminer"
	global.NarrativeThreads = []string{"Narration à développer"}
	global.ThematicClusters = []models.ThematicCluster{}
	return global, nil
}

func batchPrompt(n int) string {
	return fmt.Sprintf(`Analyse ces %[1]d images pour un projet audiovisuel.

Pour CHAQUE image (dans l'ordre), fournis une analyse JSON:
[
  {
    "index": 0,
    "description": "description détaillée de la scène (2-3 phrases)",
    "subjects": ["sujet principal", "autres sujets"],
    "setting": "lieu/environnement",
    "mood": "ambiance/émotion dominante",
    "colors": ["couleurs principales"],
    "actions": ["actions visibles"],
    "objects": ["objets notables"]
  },
  ...
]

IMPORTANT: Réponds UNIQUEMENT avec le JSON, sans texte avant ou après.
Analyse les %[1]d images dans l'ordre où elles apparaissent.`, n)
}

const singleImagePrompt = `Analyse cette image pour un projet audiovisuel.

Fournis une analyse JSON:
{
    "description": "description détaillée de la scène",
    "subjects": ["sujets visibles"],
    "setting": "lieu/environnement",
    "mood": "ambiance",
    "colors": ["couleurs principales"],
    "actions": ["actions visibles"],
    "objects": ["objets notables"]
}

Réponds UNIQUEMENT avec le JSON.`

const synthesisPromptTemplate = `Analyse ces données pour créer une synthèse narrative:

ÉCHANTILLON D'IMAGES (%d total):
%s

SUJETS RÉCURRENTS: %s
LIEUX: %s
AMBIANCES: %s
PALETTE: %s

Génère un JSON:
{
    "visual_style": "description du style visuel global (1-2 phrases)",
    "narrative_threads": ["potentiel narratif 1", "potentiel 2", "potentiel 3"],
    "thematic_clusters": [
        {"theme": "thème identifié", "description": "explication courte"}
    ]
}

Réponds UNIQUEMENT avec le JSON.`
