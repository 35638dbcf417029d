// internal/services/refiner_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
)

var toneInstructions = map[string]string{
	models.ToneNaturalist: `- Langage direct, sans fioritures
- Descriptions réalistes et ancrées
- Dialogues authentiques, argotiques si pertinent
- Éviter le lyrisme excessif
- Privilégier l'observation à l'interprétation`,
	models.TonePoetic: `- Langage évocateur et métaphorique
- Rythme lent, respirations narratives
- Attention aux détails sensoriels
- Silences significatifs
- Beauté dans l'ordinaire`,
	models.ToneDreamlike: `- Logique de rêve, associations libres
- Glissements temporels et spatiaux
- Symbolisme fort
- Ambiguïté narrative assumée
- Images mentales puissantes`,
	models.ToneDocumentary: `- Neutralité du regard
- Respect des sujets
- Contextualisation sociale
- Absence de jugement
- Vérité des situations`,
	models.ToneFictional: `- Arc dramatique classique
- Personnages développés
- Enjeux clairs
- Progression narrative
- Résolution satisfaisante`,
}

// ToneInstructions returns the writing rules for tone, or "" for an unknown tone.
func ToneInstructions(tone string) string {
	return toneInstructions[tone]
}

// PitchRefiner rewrites an existing pitch.
type PitchRefiner struct {
	narrative *NarrativeService
}

func NewPitchRefiner(narrative *NarrativeService) *PitchRefiner {
	return &PitchRefiner{narrative: narrative}
}

// RefineForTone rewrites pitch in tone while keeping its structure.
func (r *PitchRefiner) RefineForTone(ctx context.Context, pitch, tone string) (string, error) {
	if strings.TrimSpace(pitch) == "" {
		return "", apperrors.NewValidationError("Aucun pitch à affiner", nil)
	}
	if strings.TrimSpace(tone) == "" {
		return "", apperrors.NewValidationError("Veuillez choisir une tonalité", nil)
	}
	prompt := fmt.Sprintf(refineTonePrompt, pitch, tone, ToneInstructions(tone))
	return r.narrative.generate(ctx, "tonalité", prompt)
}

// AddReferences weaves film references into pitch.
func (r *PitchRefiner) AddReferences(ctx context.Context, pitch string, references []string) (string, error) {
	if strings.TrimSpace(pitch) == "" {
		return "", apperrors.NewValidationError("Aucun pitch à enrichir", nil)
	}
	var refs []string
	for _, ref := range references {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return "", apperrors.NewValidationError("Veuillez indiquer au moins une référence", nil)
	}
	prompt := fmt.Sprintf(referencesPrompt, pitch, strings.Join(refs, ", "))
	return r.narrative.generate(ctx, "références", prompt)
}

const refineTonePrompt = `Réécris ce pitch pour qu'il corresponde parfaitement à la tonalité demandée.

PITCH ORIGINAL:
%s

TONALITÉ CIBLE: %s

INSTRUCTIONS DE TON:
%s

Conserve la structure et les éléments narratifs, mais adapte le style d'écriture.`

const referencesPrompt = `Enrichis ce pitch en y intégrant subtilement les influences des références suivantes.

PITCH:
%s

RÉFÉRENCES À INTÉGRER:
%s

Ajoute une section "RÉFÉRENCES ET INFLUENCES" et intègre des clins d'œil stylistiques tout au long du texte.`
