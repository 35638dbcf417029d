// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
)

var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrModelNotFound is wrapped by providers when the requested model is
	// missing or does not support generateContent.
	ErrModelNotFound = errors.New("model not found or not supported")
)

// ImagePart is one inline image sent alongside the prompt.
type ImagePart struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

type CompletionRequest struct {
	Prompt        string                 `json:"prompt"`
	SystemPrompt  string                 `json:"system_prompt,omitempty"`
	Images        []ImagePart            `json:"images,omitempty"`
	MaxTokens     int                    `json:"max_tokens,omitempty"`
	Temperature   float32                `json:"temperature,omitempty"`
	TopP          float32                `json:"top_p,omitempty"`
	Model         string                 `json:"model,omitempty"`
	StopWords     []string               `json:"stop_words,omitempty"`
	DisableSafety bool                   `json:"disable_safety,omitempty"`
	ExtraParams   map[string]interface{} `json:"extra_params,omitempty"`
}

type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider is implemented by every model backend.
type Provider interface {
	Initialize(config map[string]string) error
	GetName() string
	GetSupportedModels() []string
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// FetchAvailableModels refreshes the list GetSupportedModels returns.
	FetchAvailableModels(ctx context.Context) error
	// SetCustomModels pins the supported model list; nil restores it.
	SetCustomModels(models []string)
}

// ProviderFactory builds an uninitialized provider.
type ProviderFactory func() Provider

var (
	providers   = make(map[string]ProviderFactory)
	providersMu sync.RWMutex
)

// Register makes a provider available under name. Providers call it from init.
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// GetProvider creates and initializes the named provider.
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders returns the registered provider names, sorted.
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassifyError turns an upstream failure into a typed AppError based on
// the wording the Gemini API uses. Already-typed errors pass through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked"), strings.Contains(msg, "prohibited"), strings.Contains(msg, "safety"):
		return apperrors.NewBlockedError("contenu bloqué par le filtre de sécurité", err)
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"), strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "exhausted"):
		return apperrors.NewRateLimitedError("limite de requêtes atteinte", err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not supported"):
		return apperrors.NewUpstreamError("modèle indisponible", errors.Join(ErrModelNotFound, err))
	default:
		return apperrors.NewUpstreamError("appel au modèle échoué", err)
	}
}

// IsModelNotFound reports whether err says the model is unavailable.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
