// internal/models/analysis.go
package models

// ImageAnalysis is the model's reading of a single image.
type ImageAnalysis struct {
	ImageID            string   `json:"image_id"`
	ImageName          string   `json:"image_name"`
	Description        string   `json:"description"`
	Subjects           []string `json:"subjects"`
	Setting            string   `json:"setting"`
	Mood               string   `json:"mood"`
	Colors             []string `json:"colors"`
	Actions            []string `json:"actions"`
	Objects            []string `json:"objects"`
	NarrativePotential string   `json:"narrative_potential,omitempty"`
	TechnicalNotes     string   `json:"technical_notes,omitempty"`
}

// Empty reports whether the model produced no description.
func (a ImageAnalysis) Empty() bool {
	return a.Description == ""
}

// CountedItem is a recurring value and how many images show it.
type CountedItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ThematicCluster struct {
	Theme       string `json:"theme"`
	Description string `json:"description"`
}

// AnalysisStats counts the work done for one analysis run.
type AnalysisStats struct {
	Total    int `json:"total"`
	Analyzed int `json:"analyzed"`
	Blocked  int `json:"blocked"`
	Requests int `json:"requests"`
	Cached   int `json:"cached"`
}

// GlobalAnalysis aggregates every image analysis of a moodboard.
type GlobalAnalysis struct {
	IndividualAnalyses []ImageAnalysis   `json:"individual_analyses"`
	RecurringSubjects  []CountedItem     `json:"recurring_subjects"`
	RecurringSettings  []string          `json:"recurring_settings"`
	DominantMoods      []string          `json:"dominant_moods"`
	ColorPalette       []string          `json:"color_palette"`
	ThematicClusters   []ThematicCluster `json:"thematic_clusters"`
	NarrativeThreads   []string          `json:"narrative_threads"`
	VisualStyle        string            `json:"visual_style"`
	Stats              AnalysisStats     `json:"stats"`
}
