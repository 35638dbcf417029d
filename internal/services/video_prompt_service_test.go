// internal/services/video_prompt_service_test.go
package services

import (
	"context"
	"encoding/json"
	"image/color"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm/llmtest"
	"github.com/Corphon/MoodboardPitch/internal/models"
)

func handShot() models.Shot {
	return models.Shot{
		SequenceNumber: 2,
		SequenceTitle:  "Le rivage",
		ShotNumber:     3,
		ShotValue:      "GP",
		CameraMovement: "Travelling",
		Description:    "Une main sur le sable",
		Mood:           "mélancolique",
		Duration:       4,
	}
}

func TestPromptForShot(t *testing.T) {
	cases := []struct {
		platform, wantPlatform, wantName, want string
	}{
		{
			models.PlatformVeo3, models.PlatformVeo3, "Google Veo 3",
			"[SCENE]: close-up shot, face detail, Une main sur le sable\n" +
				"[CAMERA]: tracking shot, camera dolly movement\n" +
				"[STYLE]: cinematic, natural lighting, film grain\n" +
				"[LIGHTING]: natural ambient lighting\n" +
				"[DURATION]: 4s\n" +
				"[MOOD]: mélancolique",
		},
		{
			models.PlatformKling, models.PlatformKling, "Kling 2.6",
			"close-up shot, face detail, Une main sur le sable. tracking shot forward. " +
				"cinematic, natural lighting, film grain. natural ambient lighting. mélancolique. --duration 4",
		},
		{
			models.PlatformRunway, models.PlatformRunway, "Runway Gen-4",
			"close-up shot, face detail, Une main sur le sable, smooth tracking shot, " +
				"cinematic, natural lighting, film grain, natural ambient lighting, mélancolique, cinematic quality, 4K",
		},
		{
			"sora", models.PlatformVeo3, "Google Veo 3",
			"[SCENE]: close-up shot, face detail, Une main sur le sable\n" +
				"[CAMERA]: tracking shot, camera dolly movement\n" +
				"[STYLE]: cinematic, natural lighting, film grain\n" +
				"[LIGHTING]: natural ambient lighting\n" +
				"[DURATION]: 4s\n" +
				"[MOOD]: mélancolique",
		},
	}
	for _, tc := range cases {
		got := PromptForShot(handShot(), tc.platform, "")
		if got.Platform != tc.wantPlatform || got.PlatformName != tc.wantName {
			t.Errorf("%s: platform = %q / %q", tc.platform, got.Platform, got.PlatformName)
		}
		if diff := cmp.Diff(tc.want, got.Prompt); diff != "" {
			t.Errorf("%s: prompt mismatch (-want +got):\n%s", tc.platform, diff)
		}
		if got.Shot != handShot() {
			t.Errorf("%s: shot not carried: %+v", tc.platform, got.Shot)
		}
	}
}

func TestPromptForShotKeepsUnknownValues(t *testing.T) {
	shot := models.Shot{ShotValue: "Plongée", CameraMovement: "Grue", Description: "La foule"}
	got := PromptForShot(shot, models.PlatformKling, "noir et blanc")
	want := "Plongée, La foule. Grue. noir et blanc. natural ambient lighting. . --duration 5"
	if got.Prompt != want {
		t.Errorf("prompt = %q, want %q", got.Prompt, want)
	}
	if got.Shot.Duration != 5 {
		t.Errorf("duration = %d, want default 5", got.Shot.Duration)
	}
}

func TestPromptForShotTruncates(t *testing.T) {
	shot := handShot()
	shot.Description = strings.Repeat("é", 1200)
	got := PromptForShot(shot, models.PlatformRunway, "")
	if n := utf8.RuneCountInString(got.Prompt); n != 1000 {
		t.Errorf("prompt has %d runes, want 1000", n)
	}
	if !strings.HasSuffix(got.Prompt, "...") {
		t.Error("truncated prompt should end with an ellipsis")
	}
}

const parsedShotsJSON = `Voici les plans :
[
  {"sequence_number":"1","sequence_title":"L'aube","shot_number":1,"shot_value":"","camera_movement":"Drone","description":"La baie","image_ref":"a.jpg","duration":"4s"},
  {"sequence_number":1.0,"sequence_title":"L'aube","shot_number":2,"description":"Le quai"}
]`

func TestParseShots(t *testing.T) {
	p := llmtest.Texts(parsedShotsJSON)
	s := NewVideoPromptService(newTestLLM(p), "narrative")

	shots, err := s.ParseShots(context.Background(), "| 1 | PG | Drone | La baie |", 6)
	if err != nil {
		t.Fatalf("ParseShots: %v", err)
	}
	want := []models.Shot{
		{SequenceNumber: 1, SequenceTitle: "L'aube", ShotNumber: 1, ShotValue: "PM", CameraMovement: "Drone", Description: "La baie", ImageRef: "a.jpg", Duration: 4},
		{SequenceNumber: 1, SequenceTitle: "L'aube", ShotNumber: 2, ShotValue: "PM", CameraMovement: "Fixe", Description: "Le quai", Duration: 6},
	}
	if diff := cmp.Diff(want, shots); diff != "" {
		t.Errorf("shots mismatch (-want +got):\n%s", diff)
	}
	req := p.Requests()[0]
	if !strings.Contains(req.Prompt, "DÉCOUPAGE:\n| 1 | PG | Drone | La baie |") {
		t.Errorf("prompt does not carry the découpage")
	}
	if !strings.Contains(req.SystemPrompt, "valid JSON") || req.Model != "narrative" {
		t.Errorf("parse request = model %q, system %q", req.Model, req.SystemPrompt)
	}
}

func TestFlexIntBounds(t *testing.T) {
	tests := []struct {
		raw  string
		want flexInt
	}{
		{`5`, 5},
		{`"12s"`, 12},
		{`4.9`, 4},
		{`1e300`, maxShotNumber},
		{`"NaN"`, 0},
		{`"Inf"`, maxShotNumber},
		{`-3`, 0},
		{`"bientôt"`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var n flexInt
		if err := json.Unmarshal([]byte(tt.raw), &n); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.raw, err)
			continue
		}
		if n != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.raw, n, tt.want)
		}
	}
}

func TestParseShotsErrors(t *testing.T) {
	s := NewVideoPromptService(newTestLLM(llmtest.Texts("aucun plan ici")), "narrative")
	if _, err := s.ParseShots(context.Background(), "  ", 5); !apperrors.IsValidationError(err) {
		t.Errorf("empty découpage err = %v", err)
	}
	_, err := s.ParseShots(context.Background(), "découpage", 5)
	if !apperrors.IsUpstreamError(err) || apperrors.MessageOf(err) != "Découpage illisible par le modèle" {
		t.Errorf("prose reply err = %v", err)
	}
}

func TestPromptsForAllPlatforms(t *testing.T) {
	p := llmtest.Texts(parsedShotsJSON)
	s := NewVideoPromptService(newTestLLM(p), "narrative")

	all, err := s.PromptsForAllPlatforms(context.Background(), "découpage", "", 7)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(p.Requests()); n != 1 {
		t.Errorf("%d model calls, want a single parse", n)
	}
	for _, platform := range models.Platforms {
		prompts := all[platform]
		if len(prompts) != 2 {
			t.Errorf("%s: %d prompts", platform, len(prompts))
			continue
		}
		if prompts[0].Platform != platform || prompts[1].Shot.Description != "Le quai" {
			t.Errorf("%s: prompts = %+v", platform, prompts)
		}
		if prompts[0].Shot.Duration != 4 || prompts[1].Shot.Duration != 7 {
			t.Errorf("%s: durations = %d, %d, want 4 and the requested default 7",
				platform, prompts[0].Shot.Duration, prompts[1].Shot.Duration)
		}
	}
	if !strings.Contains(all[models.PlatformVeo3][0].Prompt, "aerial drone shot") {
		t.Errorf("drone wording missing: %q", all[models.PlatformVeo3][0].Prompt)
	}
}

func TestPromptsFromDecoupage(t *testing.T) {
	s := NewVideoPromptService(newTestLLM(llmtest.Texts(parsedShotsJSON)), "narrative")
	prompts, err := s.PromptsFromDecoupage(context.Background(), "découpage", models.PlatformKling, "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(prompts) != 2 || !strings.HasSuffix(prompts[0].Prompt, "--duration 4") {
		t.Errorf("prompts = %+v", prompts)
	}
}

func TestPromptFromImage(t *testing.T) {
	p := llmtest.Texts("  " + strings.Repeat("a", 1200) + "  ")
	s := NewVideoPromptService(newTestLLM(p), "narrative")
	img := models.MoodImage{ID: "x", Name: "x.png", MimeType: "image/png", Data: pngBytes(t, 2, 2, color.White)}

	if _, err := s.PromptFromImage(context.Background(), models.MoodImage{Name: "vide"}, "", "", 0); !apperrors.IsValidationError(err) {
		t.Errorf("image without data err = %v", err)
	}

	got, err := s.PromptFromImage(context.Background(), img, "la caméra s'élève", models.PlatformRunway, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Prompt) != 1000 || got.Shot.ImageRef != "x.png" || got.Shot.Duration != 5 {
		t.Errorf("prompt len %d, shot %+v", len(got.Prompt), got.Shot)
	}
	req := p.Requests()[0]
	if len(req.Images) != 1 || req.Images[0].MimeType != "image/png" {
		t.Errorf("image not attached: %+v", req.Images)
	}
	for _, want := range []string{"vidéo de 5 secondes", "Action souhaitée: la caméra s'élève", "optimisé pour RUNWAY"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt lacks %q", want)
		}
	}
}

func TestFormatForExport(t *testing.T) {
	prompts := []models.VideoPrompt{
		{PlatformName: "Google Veo 3", Prompt: "p1", Shot: models.Shot{SequenceNumber: 1, SequenceTitle: "L'aube", ShotNumber: 1, ShotValue: "PG", CameraMovement: "Drone", Duration: 4, ImageRef: "a.jpg"}},
		{PlatformName: "Google Veo 3", Prompt: "p2", Shot: models.Shot{SequenceNumber: 1, SequenceTitle: "L'aube", ShotNumber: 2, Duration: 5}},
		{Prompt: "p3", Shot: models.Shot{SequenceNumber: 2, SequenceTitle: "La nuit", ShotNumber: 1, Duration: 5}},
	}

	full := FormatForExport(prompts, true)
	if strings.Count(full, "SÉQUENCE 1 - L'aube") != 1 || !strings.Contains(full, "SÉQUENCE 2 - La nuit") {
		t.Errorf("sequence headers wrong:\n%s", full)
	}
	for _, want := range []string{
		"--- Plan 1 ---\nValeur: PG | Mouvement: Drone | Durée: 4s\nImage ref: a.jpg\n\nPROMPT (Google Veo 3):\np1\n",
		"Valeur: N/A | Mouvement: N/A | Durée: 5s",
		"PROMPT (N/A):\np3",
	} {
		if !strings.Contains(full, want) {
			t.Errorf("export lacks %q:\n%s", want, full)
		}
	}

	bare := FormatForExport(prompts, false)
	if strings.Contains(bare, "Valeur:") || strings.Contains(bare, "Image ref") {
		t.Errorf("metadata present without includeMetadata:\n%s", bare)
	}
}
