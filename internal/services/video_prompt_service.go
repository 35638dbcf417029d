// internal/services/video_prompt_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	defaultVideoStyle    = "cinematic, natural lighting, film grain"
	defaultVideoLighting = "natural ambient lighting"
	defaultShotDuration  = 5
)

// PlatformTemplate describes how one text-to-video platform wants its prompt.
type PlatformTemplate struct {
	Name             string
	MaxLength        int
	SupportsDuration bool
	render           func(p promptParts) string
}

type promptParts struct {
	scene, camera, style, lighting, mood string
	duration                             int
}

var platformTemplates = map[string]PlatformTemplate{
	models.PlatformVeo3: {
		Name:             "Google Veo 3",
		MaxLength:        2000,
		SupportsDuration: true,
		render: func(p promptParts) string {
			return fmt.Sprintf("[SCENE]: %s\n[CAMERA]: %s\n[STYLE]: %s\n[LIGHTING]: %s\n[DURATION]: %ds\n[MOOD]: %s",
				p.scene, p.camera, p.style, p.lighting, p.duration, p.mood)
		},
	},
	models.PlatformKling: {
		Name:             "Kling 2.6",
		MaxLength:        1500,
		SupportsDuration: true,
		render: func(p promptParts) string {
			return fmt.Sprintf("%s. %s. %s. %s. %s. --duration %d",
				p.scene, p.camera, p.style, p.lighting, p.mood, p.duration)
		},
	},
	models.PlatformRunway: {
		Name:      "Runway Gen-4",
		MaxLength: 1000,
		render: func(p promptParts) string {
			return fmt.Sprintf("%s, %s, %s, %s, %s, cinematic quality, 4K",
				p.scene, p.camera, p.style, p.lighting, p.mood)
		},
	},
}

// camera movement -> platform -> wording
var cameraMovements = map[string]map[string]string{
	"Fixe": {
		models.PlatformVeo3:   "static shot, locked camera",
		models.PlatformKling:  "static camera",
		models.PlatformRunway: "static shot",
	},
	"Panoramique": {
		models.PlatformVeo3:   "slow pan shot, horizontal camera movement",
		models.PlatformKling:  "pan left to right",
		models.PlatformRunway: "smooth panning movement",
	},
	"Travelling": {
		models.PlatformVeo3:   "tracking shot, camera dolly movement",
		models.PlatformKling:  "tracking shot forward",
		models.PlatformRunway: "smooth tracking shot",
	},
	"Zoom": {
		models.PlatformVeo3:   "slow zoom in, lens zoom",
		models.PlatformKling:  "zoom in slowly",
		models.PlatformRunway: "gradual zoom",
	},
	"Steadicam": {
		models.PlatformVeo3:   "steadicam shot, floating camera movement",
		models.PlatformKling:  "steadicam smooth",
		models.PlatformRunway: "smooth floating camera",
	},
	"Épaule": {
		models.PlatformVeo3:   "handheld camera, slight shake, documentary style",
		models.PlatformKling:  "handheld camera movement",
		models.PlatformRunway: "handheld documentary style",
	},
	"Drone": {
		models.PlatformVeo3:   "aerial drone shot, bird eye view, flying camera",
		models.PlatformKling:  "drone aerial shot",
		models.PlatformRunway: "aerial cinematic drone",
	},
}

var shotValues = map[string]string{
	"TGP": "extreme close-up, macro detail",
	"GP":  "close-up shot, face detail",
	"PE":  "medium close-up, head and shoulders",
	"PM":  "medium shot, waist up",
	"PA":  "american shot, knee up",
	"PG":  "wide shot, full body with environment",
	"TPG": "extreme wide shot, establishing shot, landscape",
}

// Template returns the template of platform, falling back to veo3.
func Template(platform string) (string, PlatformTemplate) {
	if t, ok := platformTemplates[platform]; ok {
		return platform, t
	}
	return models.PlatformVeo3, platformTemplates[models.PlatformVeo3]
}

// VideoPromptService turns découpage shots into text-to-video prompts.
type VideoPromptService struct {
	LLMService *LLMService
	model      string
}

func NewVideoPromptService(llmService *LLMService, model string) *VideoPromptService {
	return &VideoPromptService{LLMService: llmService, model: model}
}

// PromptForShot renders shot for platform. No model call is involved.
func PromptForShot(shot models.Shot, platform, style string) models.VideoPrompt {
	platform, tpl := Template(platform)

	camera := shot.CameraMovement
	if byPlatform, ok := cameraMovements[shot.CameraMovement]; ok {
		camera = byPlatform[platform]
	}
	value := shot.ShotValue
	if v, ok := shotValues[shot.ShotValue]; ok {
		value = v
	}
	if style == "" {
		style = defaultVideoStyle
	}
	if shot.Duration <= 0 {
		shot.Duration = defaultShotDuration
	}

	text := tpl.render(promptParts{
		scene:    fmt.Sprintf("%s, %s", value, shot.Description),
		camera:   camera,
		style:    style,
		lighting: defaultVideoLighting,
		mood:     shot.Mood,
		duration: shot.Duration,
	})
	return models.VideoPrompt{
		Platform:     platform,
		PlatformName: tpl.Name,
		Shot:         shot,
		Prompt:       truncatePrompt(text, tpl.MaxLength),
	}
}

func truncatePrompt(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max-3]) + "..."
}

// ParseShots asks the model to extract the shots of a découpage.
func (s *VideoPromptService) ParseShots(ctx context.Context, decoupage string, defaultDuration int) ([]models.Shot, error) {
	if strings.TrimSpace(decoupage) == "" {
		return nil, apperrors.NewValidationError("Aucun découpage à analyser", nil)
	}
	if defaultDuration <= 0 {
		defaultDuration = defaultShotDuration
	}

	var entries []shotEntry
	err := s.LLMService.CreateStructuredCompletion(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(shotParsePrompt, decoupage),
		Model:  s.model,
	}, &entries)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrUnreadableOutput):
		return nil, apperrors.NewUpstreamError("Découpage illisible par le modèle", err)
	default:
		return nil, apperrors.WrapError(err, "Échec de l'analyse du découpage", apperrors.ErrorTypeUpstream)
	}

	shots := make([]models.Shot, 0, len(entries))
	for _, e := range entries {
		shot := models.Shot{
			SequenceNumber: int(e.SequenceNumber),
			SequenceTitle:  e.SequenceTitle,
			ShotNumber:     int(e.ShotNumber),
			ShotValue:      e.ShotValue,
			CameraMovement: e.CameraMovement,
			Description:    e.Description,
			ImageRef:       e.ImageRef,
			Mood:           e.Mood,
			Duration:       int(e.Duration),
		}
		if shot.ShotValue == "" {
			shot.ShotValue = "PM"
		}
		if shot.CameraMovement == "" {
			shot.CameraMovement = "Fixe"
		}
		if shot.Duration <= 0 {
			shot.Duration = defaultDuration
		}
		shots = append(shots, shot)
	}
	return shots, nil
}

// PromptsFromDecoupage parses the découpage and renders every shot for platform.
func (s *VideoPromptService) PromptsFromDecoupage(ctx context.Context, decoupage, platform, style string, defaultDuration int) ([]models.VideoPrompt, error) {
	shots, err := s.ParseShots(ctx, decoupage, defaultDuration)
	if err != nil {
		return nil, err
	}
	prompts := make([]models.VideoPrompt, 0, len(shots))
	for _, shot := range shots {
		prompts = append(prompts, PromptForShot(shot, platform, style))
	}
	return prompts, nil
}

// PromptsForAllPlatforms parses once and renders for every platform.
func (s *VideoPromptService) PromptsForAllPlatforms(ctx context.Context, decoupage, style string, defaultDuration int) (map[string][]models.VideoPrompt, error) {
	shots, err := s.ParseShots(ctx, decoupage, defaultDuration)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]models.VideoPrompt, len(models.Platforms))
	for _, platform := range models.Platforms {
		prompts := make([]models.VideoPrompt, 0, len(shots))
		for _, shot := range shots {
			prompts = append(prompts, PromptForShot(shot, platform, style))
		}
		out[platform] = prompts
	}
	utils.GetLogger().Info("🎬 Video prompts generated", map[string]interface{}{
		"shots":     len(shots),
		"platforms": len(out),
	})
	return out, nil
}

// PromptFromImage asks the vision model for a prompt describing img in motion.
func (s *VideoPromptService) PromptFromImage(ctx context.Context, img models.MoodImage, actionHint, platform string, duration int) (models.VideoPrompt, error) {
	if !img.HasData() {
		return models.VideoPrompt{}, apperrors.NewValidationError("Image sans contenu: "+img.Name, nil)
	}
	if duration <= 0 {
		duration = defaultShotDuration
	}
	platform, tpl := Template(platform)

	hint := ""
	if actionHint != "" {
		hint = "Action souhaitée: " + actionHint
	}
	resp, err := s.LLMService.CompleteDirect(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(imageVideoPrompt, duration, hint, strings.ToUpper(platform)),
		Images: []llm.ImagePart{{MimeType: mimeOrJPEG(img.MimeType), Data: img.Data}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.VideoPrompt{}, ctx.Err()
		}
		return models.VideoPrompt{}, apperrors.WrapError(err, "Échec de la génération du prompt vidéo", apperrors.ErrorTypeUpstream)
	}

	return models.VideoPrompt{
		Platform:     platform,
		PlatformName: tpl.Name,
		Shot:         models.Shot{ImageRef: img.Name, Duration: duration},
		Prompt:       truncatePrompt(strings.TrimSpace(resp.Text), tpl.MaxLength),
	}, nil
}

// FormatForExport renders prompts as plain text grouped by sequence.
func FormatForExport(prompts []models.VideoPrompt, includeMetadata bool) string {
	separator := strings.Repeat("=", 60)
	var out []string
	current := -1
	for _, p := range prompts {
		if p.Shot.SequenceNumber != current {
			current = p.Shot.SequenceNumber
			out = append(out,
				"\n"+separator,
				fmt.Sprintf("SÉQUENCE %d - %s", current, p.Shot.SequenceTitle),
				separator+"\n",
			)
		}
		out = append(out, fmt.Sprintf("--- Plan %d ---", p.Shot.ShotNumber))
		if includeMetadata {
			out = append(out, fmt.Sprintf("Valeur: %s | Mouvement: %s | Durée: %ds",
				orNA(p.Shot.ShotValue), orNA(p.Shot.CameraMovement), p.Shot.Duration))
			if p.Shot.ImageRef != "" {
				out = append(out, "Image ref: "+p.Shot.ImageRef)
			}
		}
		out = append(out, fmt.Sprintf("\nPROMPT (%s):", orNA(p.PlatformName)), p.Prompt, "")
	}
	return strings.Join(out, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// flexInt accepts 5, 5.0 or "5s" from the model.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	s = strings.TrimRight(strings.TrimSpace(s), "s ")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// unreadable numbers keep the zero value
		return nil
	}
	*n = flexInt(clampShotNumber(f))
	return nil
}

// maxShotNumber bounds numbers read from the model: durations in seconds,
// sequence and shot numbers.
const maxShotNumber = 3600

func clampShotNumber(f float64) int {
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= maxShotNumber:
		return maxShotNumber
	default:
		return int(f)
	}
}

type shotEntry struct {
	SequenceNumber flexInt `json:"sequence_number"`
	SequenceTitle  string  `json:"sequence_title"`
	ShotNumber     flexInt `json:"shot_number"`
	ShotValue      string  `json:"shot_value"`
	CameraMovement string  `json:"camera_movement"`
	Description    string  `json:"description"`
	ImageRef       string  `json:"image_ref"`
	Mood           string  `json:"mood"`
	Duration       flexInt `json:"duration"`
}

const shotParsePrompt = `Analyse ce découpage technique et extrais chaque plan sous forme de JSON.

DÉCOUPAGE:
%s

Pour chaque plan, extrais:
- sequence_number: numéro de la séquence
- sequence_title: titre de la séquence
- shot_number: numéro du plan dans la séquence
- shot_value: valeur de plan (TGP, GP, PE, PM, PA, PG, TPG)
- camera_movement: mouvement de caméra (Fixe, Panoramique, Travelling, Zoom, Steadicam, Épaule, Drone)
- description: description du plan
- image_ref: nom du fichier image de référence (si mentionné)
- mood: ambiance/atmosphère
- duration: durée en secondes (ou 5 par défaut)

Réponds UNIQUEMENT avec un JSON valide, format:
[
    {
        "sequence_number": 1,
        "sequence_title": "...",
        "shot_number": 1,
        "shot_value": "PM",
        "camera_movement": "Fixe",
        "description": "...",
        "image_ref": "...",
        "mood": "...",
        "duration": 5
    }
]`

const imageVideoPrompt = `Analyse cette image et génère un prompt pour créer une vidéo de %d secondes.

%s

Le prompt doit décrire:
1. La scène principale (sujet, environnement)
2. Un mouvement suggéré pour le sujet ou la caméra
3. L'atmosphère et l'éclairage
4. Le style visuel

Génère un prompt optimisé pour %s, en anglais, de maximum 500 caractères.
Réponds UNIQUEMENT avec le prompt, sans explication.`
