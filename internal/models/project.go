// internal/models/project.go
package models

import "time"

// ProjectData is everything a saved project restores. Images carry metadata only.
type ProjectData struct {
	Brief        string          `json:"brief"`
	Context      CreativeContext `json:"context"`
	Source       string          `json:"source,omitempty"`
	SourceURL    string          `json:"source_url,omitempty"`
	Pitch        string          `json:"pitch"`
	Sequencer    string          `json:"sequencer"`
	Decoupage    string          `json:"decoupage"`
	Treatment    string          `json:"treatment,omitempty"`
	Images       []MoodImage     `json:"images"`
	Analysis     *GlobalAnalysis `json:"analysis,omitempty"`
	VideoPrompts []VideoPrompt   `json:"video_prompts,omitempty"`
}

// Narrative returns the text part of the project.
func (d ProjectData) Narrative() Narrative {
	return Narrative{Pitch: d.Pitch, Sequencer: d.Sequencer, Decoupage: d.Decoupage, Treatment: d.Treatment}
}

type Project struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Data      ProjectData `json:"data"`
}

// ProjectSummary is the list view of a project.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source,omitempty"`
}

func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt, Source: p.Data.Source}
}
