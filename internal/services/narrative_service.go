// internal/services/narrative_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/llm"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// NarrativeService writes the pitch, the sequencer and the technical
// découpage from a moodboard analysis.
type NarrativeService struct {
	LLMService *LLMService
	model      string
}

func NewNarrativeService(llmService *LLMService, model string) *NarrativeService {
	return &NarrativeService{LLMService: llmService, model: model}
}

// GenerateAll runs pitch, sequencer and découpage in order; each step feeds the next.
func (s *NarrativeService) GenerateAll(ctx context.Context, analysis *models.GlobalAnalysis, cc models.CreativeContext) (models.Narrative, error) {
	pitch, err := s.GeneratePitch(ctx, analysis, cc)
	if err != nil {
		return models.Narrative{}, err
	}
	sequencer, err := s.GenerateSequencer(ctx, analysis, cc, pitch)
	if err != nil {
		return models.Narrative{}, err
	}
	decoupage, err := s.GenerateDecoupage(ctx, cc, sequencer)
	if err != nil {
		return models.Narrative{}, err
	}
	return models.Narrative{Pitch: pitch, Sequencer: sequencer, Decoupage: decoupage}, nil
}

func (s *NarrativeService) GeneratePitch(ctx context.Context, analysis *models.GlobalAnalysis, cc models.CreativeContext) (string, error) {
	tone := cc.Tone
	if tone == "" {
		tone = "naturaliste"
	}
	prompt := fmt.Sprintf(pitchPrompt,
		models.OrDefault(cc.Brief),
		models.OrDefault(cc.Format),
		models.OrDefault(cc.Duration),
		models.OrDefault(cc.Tone),
		FormatAnalysisSummary(analysis),
		tone,
	)
	return s.generate(ctx, "pitch", prompt)
}

func (s *NarrativeService) GenerateSequencer(ctx context.Context, analysis *models.GlobalAnalysis, cc models.CreativeContext, pitch string) (string, error) {
	var images []string
	if analysis != nil {
		for _, a := range analysis.IndividualAnalyses {
			images = append(images, fmt.Sprintf("- %s: %s...", a.ImageName, truncateRunes(a.Description, 80)))
		}
	}
	prompt := fmt.Sprintf(sequencerPrompt,
		pitch,
		strings.Join(images, "\n"),
		models.OrDefault(cc.Format),
		models.OrDefault(cc.Duration),
	)
	return s.generate(ctx, "séquencier", prompt)
}

func (s *NarrativeService) GenerateDecoupage(ctx context.Context, cc models.CreativeContext, sequencer string) (string, error) {
	prompt := fmt.Sprintf(decoupagePrompt, sequencer, models.OrDefault(cc.Format), models.OrDefault(cc.Tone))
	return s.generate(ctx, "découpage", prompt)
}

// GenerateTreatment writes the optional long-form prose version.
func (s *NarrativeService) GenerateTreatment(ctx context.Context, pitch, sequencer string) (string, error) {
	if strings.TrimSpace(pitch) == "" {
		return "", apperrors.NewValidationError("Aucun pitch à développer", nil)
	}
	return s.generate(ctx, "traitement", fmt.Sprintf(treatmentPrompt, pitch, sequencer))
}

func (s *NarrativeService) generate(ctx context.Context, step, prompt string) (string, error) {
	resp, err := s.LLMService.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Model: s.model})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if apperrors.IsUnauthorizedError(err) {
			return "", err
		}
		return "", apperrors.WrapError(err, fmt.Sprintf("Échec de la génération (%s)", step), apperrors.ErrorTypeUpstream)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperrors.NewUpstreamError(fmt.Sprintf("Réponse vide du modèle (%s)", step), nil)
	}
	utils.GetLogger().Debug("Narrative step generated", map[string]interface{}{
		"step":  step,
		"chars": len(text),
	})
	return text, nil
}

// FormatAnalysisSummary renders the analysis as the context block of the prompts.
func FormatAnalysisSummary(analysis *models.GlobalAnalysis) string {
	if analysis == nil {
		return ""
	}
	var lines []string

	if len(analysis.RecurringSubjects) > 0 {
		var parts []string
		for i, s := range analysis.RecurringSubjects {
			if i == 10 {
				break
			}
			parts = append(parts, fmt.Sprintf("%s (x%d)", s.Name, s.Count))
		}
		lines = append(lines, "SUJETS RÉCURRENTS: "+strings.Join(parts, ", "))
	}
	if len(analysis.RecurringSettings) > 0 {
		lines = append(lines, "LIEUX: "+strings.Join(firstN(analysis.RecurringSettings, 5), ", "))
	}
	if len(analysis.DominantMoods) > 0 {
		lines = append(lines, "AMBIANCES: "+strings.Join(firstN(analysis.DominantMoods, 5), ", "))
	}
	if len(analysis.ColorPalette) > 0 {
		lines = append(lines, "PALETTE: "+strings.Join(firstN(analysis.ColorPalette, 8), ", "))
	}
	if analysis.VisualStyle != "" {
		lines = append(lines, "STYLE VISUEL: "+analysis.VisualStyle)
	}
	if len(analysis.NarrativeThreads) > 0 {
		lines = append(lines, "FILS NARRATIFS POTENTIELS: "+strings.Join(analysis.NarrativeThreads, ", "))
	}
	if len(analysis.ThematicClusters) > 0 {
		clusters := []string{"CLUSTERS THÉMATIQUES:"}
		for i, c := range analysis.ThematicClusters {
			if i == 5 {
				break
			}
			theme := c.Theme
			if theme == "" {
				theme = "N/A"
			}
			clusters = append(clusters, fmt.Sprintf("- %s: %s", theme, c.Description))
		}
		lines = append(lines, strings.Join(clusters, "\n"))
	}

	lines = append(lines, "\nÉCHANTILLON D'IMAGES ANALYSÉES:")
	for i, a := range analysis.IndividualAnalyses {
		if i == 20 {
			break
		}
		lines = append(lines, fmt.Sprintf("• [%s] %s...", a.ImageName, truncateRunes(a.Description, 100)))
	}
	return strings.Join(lines, "\n")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const pitchPrompt = `Tu es un scénariste et réalisateur de renom, spécialisé dans l'écriture de projets audiovisuels originaux avec une forte identité visuelle.

BRIEF CRÉATIF:
%s

FORMAT: %s
DURÉE CIBLE: %s
TONALITÉ: %s

ANALYSE DES IMAGES DE RÉFÉRENCE:
%s

---

À partir de ces éléments visuels et du brief, rédige un PITCH NARRATIF complet.

Le pitch doit inclure :

1. **TITRE** (provisoire, évocateur)

2. **LOGLINE** (1-2 phrases qui résument le concept)

3. **SYNOPSIS** (300-500 mots)
   - Présentation de l'univers
   - Présentation des personnages principaux (basés sur les sujets récurrents des images)
   - Arc narratif général
   - Tonalité et atmosphère

4. **NOTE D'INTENTION** (200-300 mots)
   - Ta vision artistique
   - Les thèmes explorés
   - L'approche visuelle et narrative
   - Les références/inspirations

5. **PERSONNAGES PRINCIPAUX**
   - Descriptions basées sur les figures identifiées dans les images

Écris de manière cinématographique, évocatrice. Intègre naturellement les éléments visuels identifiés dans les images.
Le ton doit correspondre à la tonalité demandée : %s.`

const sequencerPrompt = `Tu es un scénariste professionnel. Voici le pitch d'un projet audiovisuel :

---
%s
---

LISTE DES IMAGES DISPONIBLES:
%s

FORMAT: %s
DURÉE CIBLE: %s

---

Crée un SÉQUENCIER DÉTAILLÉ qui structure le projet en séquences.

Pour chaque séquence, indique :

**SÉQUENCE [N] - [TITRE DE LA SÉQUENCE]**
- **Durée estimée** : XX secondes / XX minutes
- **Lieu** : [description du lieu]
- **Personnages** : [personnages présents]
- **Action** : [description de l'action en 2-3 phrases]
- **Intention** : [ce que cette séquence apporte au récit]
- **Images de référence** : [LISTE DES NOMS DE FICHIERS des images qui correspondent à cette séquence]
- **Ambiance** : [atmosphère, lumière, son]

---

Le séquencier doit :
1. Couvrir l'intégralité du récit décrit dans le pitch
2. Attribuer TOUTES les images disponibles aux séquences appropriées
3. Créer une progression narrative cohérente
4. Respecter la durée cible
5. Alterner les rythmes et les ambiances

Génère entre 8 et 15 séquences selon la durée du projet.`

const decoupagePrompt = `Tu es un réalisateur expérimenté. Voici le séquencier d'un projet audiovisuel :

---
%s
---

FORMAT: %s
TONALITÉ: %s

---

Crée un DÉCOUPAGE TECHNIQUE détaillé pour chaque séquence.

Pour chaque plan :

**Séquence [N] - [Titre]**

| # | Valeur | Mouvement | Description | Image ref | Son | Durée |
|---|--------|-----------|-------------|-----------|-----|-------|
| 1 | [TPE/PE/PM/PA/PG/TGP] | [Fixe/Pano/Travelling/etc.] | [Description du plan] | [Nom fichier image] | [Son diégétique/musique] | [Xs] |

---

LÉGENDE DES VALEURS DE PLAN:
- TGP : Très Gros Plan
- GP : Gros Plan
- PE : Plan Épaule
- PM : Plan Moyen
- PA : Plan Américain
- PG : Plan General
- TPG : Très Plan Général

MOUVEMENTS:
- Fixe
- Panoramique (gauche/droite/haut/bas)
- Travelling (avant/arrière/latéral)
- Zoom (in/out)
- Steadicam
- Épaule
- Drone

---

Le découpage doit :
1. Détailler chaque plan de chaque séquence
2. Associer chaque plan à une image de référence quand pertinent
3. Inclure des indications de rythme et de montage
4. Proposer des intentions de mise en scène
5. Suggérer l'ambiance sonore

Sois précis et technique tout en restant créatif.`

const treatmentPrompt = `En tant que scénariste, développe un TRAITEMENT complet à partir du pitch et du séquencier suivants.

PITCH:
%s

SÉQUENCIER:
%s

---

Le traitement doit :
1. Développer chaque séquence en prose narrative (comme un roman court)
2. Inclure les dialogues esquissés
3. Décrire les émotions et les intentions des personnages
4. Détailler l'atmosphère visuelle et sonore
5. Créer des transitions fluides entre les séquences

Écris environ 2000-3000 mots, dans un style littéraire et évocateur.`
