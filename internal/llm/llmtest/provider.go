// internal/llm/llmtest/provider.go

// Package llmtest provides a scripted llm.Provider for service tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/Corphon/MoodboardPitch/internal/llm"
)

// Reply is one scripted answer. When Err is set it is returned instead of Text.
type Reply struct {
	Text   string
	Tokens int
	Err    error
}

// Provider answers requests from a queue of replies and records every request.
// Match rules are checked before the queue; the queue is consumed in order.
type Provider struct {
	mu       sync.Mutex
	queue    []Reply
	rules    []rule
	requests []llm.CompletionRequest
	models   []string
	fetches  int
	Fallback Reply
}

type rule struct {
	substr string
	reply  Reply
}

func New(replies ...Reply) *Provider {
	return &Provider{queue: replies}
}

// Texts builds a Provider whose replies are the given strings.
func Texts(texts ...string) *Provider {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return New(replies...)
}

// When answers every prompt containing substr with reply.
func (p *Provider) When(substr string, reply Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rule{substr: substr, reply: reply})
	return p
}

func (p *Provider) Push(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, replies...)
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

func (p *Provider) Initialize(config map[string]string) error { return nil }
func (p *Provider) GetName() string                           { return "llmtest" }

func (p *Provider) GetSupportedModels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.models) > 0 {
		return append([]string(nil), p.models...)
	}
	return []string{"test-model"}
}

// FetchAvailableModels counts its calls; see Fetches.
func (p *Provider) FetchAvailableModels(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	return ctx.Err()
}

func (p *Provider) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func (p *Provider) SetCustomModels(models []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = append([]string(nil), models...)
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	reply := p.Fallback
	matched := false
	for _, r := range p.rules {
		if strings.Contains(req.Prompt, r.substr) {
			reply, matched = r.reply, true
			break
		}
	}
	if !matched && len(p.queue) > 0 {
		reply = p.queue[0]
		p.queue = p.queue[1:]
	}
	p.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.CompletionResponse{
		Text:         reply.Text,
		TokensUsed:   reply.Tokens,
		ModelName:    req.Model,
		ProviderName: "llmtest",
	}, nil
}
