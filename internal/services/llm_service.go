// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/config"
	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// ErrUnreadableOutput marks a structured completion whose text is not the expected JSON.
var ErrUnreadableOutput = errors.New("unreadable structured output")

// MissingKeyMessage is shown when no Gemini key is configured.
const MissingKeyMessage = "Veuillez configurer votre clé API Gemini"

const (
	readyStateReady   = "Ready"
	readyStateMissing = "API key not configured"
	llmCacheTTL       = 30 * time.Minute
	llmCacheMaxSize   = 500
)

// LLMService is the single entry point to the configured model provider.
type LLMService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	cache              *LLMCache
	isReady            bool
	readyState         string
	activeDefaultModel string

	// Stats, when set, counts every call that reached the provider.
	Stats *StatsService
}

// LLMCache keeps recent completions keyed by request hash.
type LLMCache struct {
	cache      map[string]*LLMCacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type LLMCacheEntry struct {
	Response  llm.CompletionResponse
	CreatedAt time.Time
}

func newLLMCache() *LLMCache {
	return &LLMCache{
		cache:      make(map[string]*LLMCacheEntry),
		expiration: llmCacheTTL,
	}
}

// NewLLMService builds the service from the current configuration. A missing
// key yields a service that reports itself not ready instead of an error.
func NewLLMService() *LLMService {
	service := &LLMService{cache: newLLMCache(), readyState: "Uninitialized"}

	cfg := config.GetCurrentConfig()
	if cfg.LLMProvider == "" || cfg.LLMConfig["api_key"] == "" {
		service.readyState = readyStateMissing
		return service
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service
	}
	if custom := splitModels(cfg.LLMConfig["models"]); len(custom) > 0 {
		provider.SetCustomModels(custom)
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.activeDefaultModel = extractDefaultModel(cfg.LLMConfig)
	service.isReady = true
	service.readyState = readyStateReady
	return service
}

// NewLLMServiceWithProvider wraps an already initialized provider.
func NewLLMServiceWithProvider(provider llm.Provider, defaultModel string) *LLMService {
	return &LLMService{
		provider:           provider,
		providerName:       provider.GetName(),
		cache:              newLLMCache(),
		isReady:            true,
		readyState:         readyStateReady,
		activeDefaultModel: defaultModel,
	}
}

func (s *LLMService) IsReady() bool {
	if s == nil {
		return false
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil
}

func (s *LLMService) GetReadyState() string {
	if s == nil {
		return "LLM service not initialized"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderStatus returns readiness and a readable description.
func (s *LLMService) GetProviderStatus() (bool, string) {
	return s.IsReady(), s.GetReadyState()
}

func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider swaps the provider and clears the cache.
func (s *LLMService) UpdateProvider(providerName string, cfg map[string]string) error {
	if cfg["api_key"] == "" {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = readyStateMissing
		s.providerMutex.Unlock()
		return apperrors.NewUnauthorizedError(MissingKeyMessage, ErrLLMNotReady)
	}

	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	if custom := splitModels(cfg["models"]); len(custom) > 0 {
		provider.SetCustomModels(custom)
	}

	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = extractDefaultModel(cfg)
	s.isReady = true
	s.readyState = readyStateReady
	s.cache = newLLMCache()

	utils.GetLogger().Info("🤖 LLM provider updated", map[string]interface{}{
		"provider": providerName,
		"model":    s.activeDefaultModel,
	})
	return nil
}

// Complete sends req to the provider, serving identical requests from cache.
func (s *LLMService) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	provider, err := s.readyProvider()
	if err != nil {
		return nil, err
	}
	req.Model = s.resolveModel(req.Model)

	key := s.generateCacheKey(req)
	if cached, ok := s.cache.get(key); ok {
		utils.GetLogger().Debug("LLM cache hit", map[string]interface{}{"cache_key_prefix": key[:8]})
		return &cached, nil
	}

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return nil, llm.ClassifyError(err)
	}
	s.Stats.RecordRequest(req.Model, resp.TokensUsed)
	s.cache.put(key, *resp)
	return resp, nil
}

// CompleteDirect sends req without touching the cache.
func (s *LLMService) CompleteDirect(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	provider, err := s.readyProvider()
	if err != nil {
		return nil, err
	}
	req.Model = s.resolveModel(req.Model)

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return nil, llm.ClassifyError(err)
	}
	s.Stats.RecordRequest(req.Model, resp.TokensUsed)
	return resp, nil
}

// CreateStructuredCompletion asks for JSON and decodes it into outputSchema.
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, req llm.CompletionRequest, outputSchema interface{}) error {
	if req.SystemPrompt != "" {
		req.SystemPrompt += "\n\n"
	}
	req.SystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."
	if req.Temperature == 0 {
		req.Temperature = 0.3
	}

	resp, err := s.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := DecodeJSON(resp.Text, outputSchema); err != nil {
		return apperrors.NewUpstreamError("réponse du modèle illisible", fmt.Errorf("%w: %v", ErrUnreadableOutput, err))
	}
	return nil
}

// RefreshModels asks the provider for the models it currently serves.
func (s *LLMService) RefreshModels(ctx context.Context) error {
	provider, err := s.readyProvider()
	if err != nil {
		return err
	}
	if err := provider.FetchAvailableModels(ctx); err != nil {
		return llm.ClassifyError(err)
	}
	return nil
}

// SupportedModels lists the models of the active provider.
func (s *LLMService) SupportedModels() []string {
	provider, err := s.readyProvider()
	if err != nil {
		return nil
	}
	return provider.GetSupportedModels()
}

// splitModels reads a comma-separated model list.
func splitModels(list string) []string {
	var out []string
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (s *LLMService) GetDefaultModel() string {
	return s.resolveModel("")
}

func (s *LLMService) readyProvider() (llm.Provider, error) {
	if s == nil {
		return nil, apperrors.NewUnauthorizedError(MissingKeyMessage, ErrLLMNotReady)
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if !s.isReady || s.provider == nil {
		return nil, apperrors.NewUnauthorizedError(MissingKeyMessage,
			fmt.Errorf("%w: %s", ErrLLMNotReady, s.readyState))
	}
	return s.provider, nil
}

// resolveModel picks the requested model, else the configured default, else
// the provider's first model.
func (s *LLMService) resolveModel(requestedModel string) string {
	if trimmed := strings.TrimSpace(requestedModel); trimmed != "" {
		return trimmed
	}

	s.providerMutex.RLock()
	provider := s.provider
	activeDefault := s.activeDefaultModel
	s.providerMutex.RUnlock()

	if activeDefault != "" {
		return activeDefault
	}
	if provider != nil {
		if models := provider.GetSupportedModels(); len(models) > 0 {
			return models[0]
		}
	}
	return config.DefaultAnalyzerSettings().NarrativeModel
}

func extractDefaultModel(cfg map[string]string) string {
	if model := strings.TrimSpace(cfg["default_model"]); model != "" {
		return model
	}
	return strings.TrimSpace(cfg["model"])
}

// generateCacheKey hashes everything that changes the answer, images included.
func (s *LLMService) generateCacheKey(req llm.CompletionRequest) string {
	s.providerMutex.RLock()
	providerName := s.providerName
	s.providerMutex.RUnlock()

	h := md5.New()
	fmt.Fprintf(h, "%s:::%s:::%s:::%s:::%.2f:::%d:::%t",
		req.Prompt, req.SystemPrompt, req.Model, providerName, req.Temperature, req.MaxTokens, req.DisableSafety)
	for _, img := range req.Images {
		sum := sha256.Sum256(img.Data)
		fmt.Fprintf(h, ":::%s:%x", img.MimeType, sum)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *LLMCache) get(key string) (llm.CompletionResponse, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists || time.Since(entry.CreatedAt) > c.expiration {
		return llm.CompletionResponse{}, false
	}
	return entry.Response, true
}

func (c *LLMCache) put(key string, response llm.CompletionResponse) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = &LLMCacheEntry{Response: response, CreatedAt: time.Now()}
	if len(c.cache) > llmCacheMaxSize {
		c.cleanupOldest(llmCacheMaxSize / 10)
	}
}

func (c *LLMCache) cleanupOldest(count int) {
	type keyAge struct {
		key string
		age time.Time
	}
	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].age.Before(entries[j].age)
	})
	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.cache, entries[i].key)
	}
}

// ExtractJSON pulls the JSON payload out of a model answer: the first ```json
// fence, else the first ``` fence, else everything from the first '[' or '{'.
func ExtractJSON(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	start := strings.IndexAny(text, "[{")
	if start != -1 {
		return strings.TrimSpace(text[start:])
	}
	return strings.TrimSpace(text)
}

// DecodeJSON decodes the first JSON value found by ExtractJSON. Trailing prose
// after the value is ignored.
func DecodeJSON(text string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(ExtractJSON(text)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
