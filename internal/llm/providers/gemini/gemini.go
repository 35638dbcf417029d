// internal/llm/providers/gemini/gemini.go
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
)

const providerName = "gemini"

func init() {
	llm.Register(providerName, func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-flash",
				"gemini-2.5-pro",
				"gemini-2.0-flash",
			},
		}
	})
}

// Provider talks to the Gemini API through the official SDK.
type Provider struct {
	mu              sync.RWMutex
	client          *genai.Client
	defaultModel    string
	models          []string
	availableModels []string
	customModels    []string
	clientOptions   []option.ClientOption
}

// Initialize expects api_key; default_model and base_url are optional.
func (p *Provider) Initialize(config map[string]string) error {
	apiKey := strings.TrimSpace(config["api_key"])
	if apiKey == "" {
		return apperrors.NewUnauthorizedError("clé API Gemini non fournie", nil)
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(config["base_url"]); baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	opts = append(opts, p.clientOptions...)

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
	}
	p.client = client
	p.defaultModel = strings.TrimSpace(config["default_model"])
	if p.defaultModel == "" {
		p.defaultModel = p.models[0]
	}
	return nil
}

func (p *Provider) GetName() string {
	return providerName
}

func (p *Provider) GetSupportedModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case len(p.customModels) > 0:
		return append([]string(nil), p.customModels...)
	case len(p.availableModels) > 0:
		return append([]string(nil), p.availableModels...)
	default:
		return append([]string(nil), p.models...)
	}
}

func (p *Provider) SetCustomModels(models []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customModels = append([]string(nil), models...)
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Provider) model(req llm.CompletionRequest) (*genai.GenerativeModel, string, error) {
	p.mu.RLock()
	client := p.client
	name := p.defaultModel
	p.mu.RUnlock()

	if client == nil {
		return nil, "", apperrors.NewUnauthorizedError("fournisseur Gemini non initialisé", nil)
	}
	if m := strings.TrimSpace(req.Model); m != "" {
		name = m
	}

	model := client.GenerativeModel(name)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.StopWords) > 0 {
		model.StopSequences = req.StopWords
	}
	if req.DisableSafety {
		model.SafetySettings = permissiveSafety()
	}
	return model, name, nil
}

// permissiveSafety lets moodboard imagery through the four adjustable harm filters.
func permissiveSafety() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockNone})
	}
	return settings
}

func parts(req llm.CompletionRequest) []genai.Part {
	out := make([]genai.Part, 0, len(req.Images)+1)
	out = append(out, genai.Text(req.Prompt))
	for _, img := range req.Images {
		out = append(out, genai.ImageData(imageFormat(img.MimeType), img.Data))
	}
	return out
}

// imageFormat maps a mime type to the short form genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model, name, err := p.model(req)
	if err != nil {
		return nil, err
	}

	resp, err := model.GenerateContent(ctx, parts(req)...)
	if err != nil {
		return nil, translateError(err)
	}

	text, finish, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	out := &llm.CompletionResponse{
		Text:         text,
		FinishReason: finish,
		ModelName:    name,
		ProviderName: providerName,
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// responseText joins the text parts of the first candidate. A prompt blocked
// by the safety filter surfaces as a Blocked AppError.
func responseText(resp *genai.GenerateContentResponse) (string, string, error) {
	if resp == nil {
		return "", "", apperrors.NewUpstreamError("réponse Gemini vide", nil)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", "", apperrors.NewBlockedError("prompt bloqué: "+resp.PromptFeedback.BlockReason.String(), nil)
	}
	if len(resp.Candidates) == 0 {
		return "", "", apperrors.NewBlockedError("aucune réponse candidate (filtre de sécurité)", nil)
	}

	cand := resp.Candidates[0]
	finish := cand.FinishReason.String()
	if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonRecitation {
		return "", finish, apperrors.NewBlockedError("réponse bloquée: "+finish, nil)
	}
	if cand.Content == nil {
		return "", finish, nil
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), finish, nil
}

func translateError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return apperrors.NewBlockedError("contenu bloqué par le filtre de sécurité", err)
	}
	return llm.ClassifyError(err)
}

// FetchAvailableModels lists the models that support content generation.
func (p *Provider) FetchAvailableModels(ctx context.Context) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return apperrors.NewUnauthorizedError("fournisseur Gemini non initialisé", nil)
	}

	var names []string
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return translateError(err)
		}
		if !supportsGenerate(m.SupportedGenerationMethods) {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}

	p.mu.Lock()
	p.availableModels = names
	p.mu.Unlock()
	return nil
}

func supportsGenerate(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}
