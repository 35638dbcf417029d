// internal/services/helpers_test.go
package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/llm/llmtest"
	"github.com/Corphon/MoodboardPitch/internal/storage"
)

func newTestLLM(p llm.Provider) *LLMService {
	return NewLLMServiceWithProvider(p, "test-model")
}

func testSettings() config.AnalyzerSettings {
	return config.AnalyzerSettings{
		BatchSize:      2,
		MinDelayMs:     0,
		MaxRetries:     3,
		VisionModel:    "vision",
		FallbackModel:  "vision-lite",
		NarrativeModel: "narrative",
		ImageMaxSide:   256,
		JPEGQuality:    80,
	}
}

// sleepRecorder replaces AnalyzerService.sleep and records requested waits.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestAnalyzer(p llm.Provider) (*AnalyzerService, *sleepRecorder) {
	a := NewAnalyzerService(newTestLLM(p), storage.NewMemoryAnalysisCache(100), testSettings())
	rec := &sleepRecorder{}
	a.sleep = rec.sleep
	return a, rec
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// blockingProvider answers nothing until the request context is done.
type blockingProvider struct {
	*llmtest.Provider
}

func (p blockingProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// progressLog collects ProgressFunc calls.
type progressLog struct {
	mu        sync.Mutex
	fractions []float64
	messages  []string
}

func (l *progressLog) fn() ProgressFunc {
	return func(f float64, msg string) {
		l.mu.Lock()
		l.fractions = append(l.fractions, f)
		l.messages = append(l.messages, msg)
		l.mu.Unlock()
	}
}
