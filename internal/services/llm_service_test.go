// internal/services/llm_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/llm/llmtest"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"json fence", "Voici:\n```json\n[{\"a\":1}]\n```\nMerci", `[{"a":1}]`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"object first", `Réponse : {"a":[1,2]}`, `{"a":[1,2]}`},
		{"array first", `ok [1, {"b":2}]`, `[1, {"b":2}]`},
		{"no json", "  rien  ", "rien"},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("%s: ExtractJSON = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDecodeJSONIgnoresTrailingProse(t *testing.T) {
	var v struct {
		Style string `json:"visual_style"`
	}
	if err := DecodeJSON(`{"visual_style":"néon"} J'espère que cela aide !`, &v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v.Style != "néon" {
		t.Errorf("Style = %q", v.Style)
	}
	if err := DecodeJSON("pas de json", &v); err == nil {
		t.Error("expected an error for prose")
	}
}

func TestCompleteUsesCache(t *testing.T) {
	p := llmtest.Texts("première", "seconde")
	s := newTestLLM(p)
	ctx := context.Background()

	req := llm.CompletionRequest{Prompt: "bonjour"}
	r1, err := s.Complete(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := s.Complete(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Text != "première" || r2.Text != "première" {
		t.Errorf("cached texts = %q, %q", r1.Text, r2.Text)
	}
	if n := len(p.Requests()); n != 1 {
		t.Errorf("provider saw %d requests, want 1", n)
	}
	if got := p.Requests()[0].Model; got != "test-model" {
		t.Errorf("model = %q, want the default model", got)
	}

	// a different image changes the key
	req.Images = []llm.ImagePart{{MimeType: "image/jpeg", Data: []byte{1, 2, 3}}}
	if r3, _ := s.Complete(ctx, req); r3.Text != "seconde" {
		t.Errorf("request with image served %q", r3.Text)
	}
}

func TestCompleteDirectSkipsCache(t *testing.T) {
	p := llmtest.Texts("a", "b")
	s := newTestLLM(p)
	req := llm.CompletionRequest{Prompt: "x", Model: "vision"}
	r1, _ := s.CompleteDirect(context.Background(), req)
	r2, _ := s.CompleteDirect(context.Background(), req)
	if r1.Text != "a" || r2.Text != "b" {
		t.Errorf("texts = %q, %q", r1.Text, r2.Text)
	}
	if p.Requests()[0].Model != "vision" {
		t.Errorf("explicit model not kept: %q", p.Requests()[0].Model)
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	p := llmtest.New(llmtest.Reply{Err: errors.New("googleapi: Error 429: Resource has been exhausted")})
	_, err := newTestLLM(p).Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	if !apperrors.IsRateLimitedError(err) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}

func TestNotReadyService(t *testing.T) {
	s := &LLMService{cache: newLLMCache(), readyState: readyStateMissing}
	if s.IsReady() {
		t.Fatal("service without provider reports ready")
	}
	_, err := s.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	if !apperrors.IsUnauthorizedError(err) || !errors.Is(err, ErrLLMNotReady) {
		t.Fatalf("err = %v, want unauthorized wrapping ErrLLMNotReady", err)
	}
	if apperrors.MessageOf(err) != MissingKeyMessage {
		t.Errorf("message = %q", apperrors.MessageOf(err))
	}

	if err := s.UpdateProvider("gemini", map[string]string{"api_key": ""}); !apperrors.IsUnauthorizedError(err) {
		t.Errorf("UpdateProvider with blank key = %v", err)
	}
}

func TestCreateStructuredCompletion(t *testing.T) {
	p := llmtest.Texts("```json\n{\"theme\":\"mer\"}\n```")
	var out struct {
		Theme string `json:"theme"`
	}
	if err := newTestLLM(p).CreateStructuredCompletion(context.Background(), llm.CompletionRequest{Prompt: "x"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Theme != "mer" {
		t.Errorf("Theme = %q", out.Theme)
	}
	req := p.Requests()[0]
	if req.Temperature != 0.3 || req.SystemPrompt == "" {
		t.Errorf("structured request = temp %v, system %q", req.Temperature, req.SystemPrompt)
	}
}

func TestModelListing(t *testing.T) {
	p := llmtest.New()
	llm.Register("models-test", func() llm.Provider { return p })

	s := &LLMService{cache: newLLMCache(), readyState: readyStateMissing}
	if s.SupportedModels() != nil {
		t.Error("models listed without a provider")
	}
	if err := s.RefreshModels(context.Background()); !errors.Is(err, ErrLLMNotReady) {
		t.Errorf("RefreshModels before configuration = %v", err)
	}

	cfg := map[string]string{"api_key": "k", "models": " gemini-a, ,gemini-b "}
	if err := s.UpdateProvider("models-test", cfg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"gemini-a", "gemini-b"}, s.SupportedModels()); diff != "" {
		t.Errorf("custom models mismatch (-want +got):\n%s", diff)
	}
	if s.GetDefaultModel() != "gemini-a" {
		t.Errorf("default model = %q", s.GetDefaultModel())
	}

	if err := s.RefreshModels(context.Background()); err != nil {
		t.Fatalf("RefreshModels: %v", err)
	}
	if p.Fetches() != 1 {
		t.Errorf("provider fetched %d times", p.Fetches())
	}
}
