// internal/models/narrative.go
package models

// Creative options offered by the UI. Other values are accepted as free text.
var (
	Formats = []string{
		"Clip musical",
		"Court-métrage",
		"Documentaire",
		"Film publicitaire",
		"Vidéo artistique",
	}
	Durations = []string{
		"1-2 min",
		"3-5 min",
		"5-10 min",
		"10-20 min",
		"20+ min",
	}
)

// Tone names understood by the refiner.
const (
	ToneNaturalist  = "Naturaliste / Brut"
	TonePoetic      = "Poétique / Contemplatif"
	ToneDreamlike   = "Onirique / Surréaliste"
	ToneDocumentary = "Documentaire / Observationnel"
	ToneFictional   = "Fictionnel / Narratif"
)

var Tones = []string{ToneNaturalist, TonePoetic, ToneDreamlike, ToneDocumentary, ToneFictional}

// NotSpecified replaces empty context fields in prompts.
const NotSpecified = "Non spécifié"

// CreativeContext is the user brief that steers the narrative.
type CreativeContext struct {
	Brief    string `json:"brief" form:"brief" binding:"max=5000"`
	Format   string `json:"format" form:"format" binding:"max=100"`
	Duration string `json:"duration" form:"duration" binding:"max=100"`
	Tone     string `json:"tone" form:"tone" binding:"max=100"`
}

// OrDefault returns v, or NotSpecified when v is blank.
func OrDefault(v string) string {
	if v == "" {
		return NotSpecified
	}
	return v
}

// Narrative is the generated writing for one moodboard.
type Narrative struct {
	Pitch     string `json:"pitch"`
	Sequencer string `json:"sequencer"`
	Decoupage string `json:"decoupage"`
	Treatment string `json:"treatment,omitempty"`
}
