// internal/models/generation.go
package models

import "time"

// GenerationRequest describes one moodboard-to-pitch run.
type GenerationRequest struct {
	Source    string          `json:"source"`
	FolderURL string          `json:"folder_url,omitempty"`
	Links     string          `json:"links,omitempty"`
	Uploads   []UploadedFile  `json:"-"`
	Context   CreativeContext `json:"context"`
}

// UploadedFile is a user-provided image before normalization.
type UploadedFile struct {
	Name string
	Data []byte
}

// GenerationResult is what a finished run produced.
type GenerationResult struct {
	TaskID       string            `json:"task_id"`
	Request      GenerationRequest `json:"request"`
	Images       []MoodImage       `json:"images"`
	Analysis     *GlobalAnalysis   `json:"analysis"`
	Narrative    Narrative         `json:"narrative"`
	VideoPrompts []VideoPrompt     `json:"video_prompts,omitempty"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// Clone copies r so the copy can be read while the original is updated.
// Image bytes and the analysis are shared; neither changes after a run ends.
func (r *GenerationResult) Clone() *GenerationResult {
	cp := *r
	cp.Request.Uploads = nil
	cp.Images = append([]MoodImage(nil), r.Images...)
	cp.VideoPrompts = append([]VideoPrompt(nil), r.VideoPrompts...)
	return &cp
}

// ProjectData converts the result into its persisted form.
func (r *GenerationResult) ProjectData() ProjectData {
	return ProjectData{
		Brief:        r.Request.Context.Brief,
		Context:      r.Request.Context,
		Source:       r.Request.Source,
		SourceURL:    r.Request.FolderURL,
		Pitch:        r.Narrative.Pitch,
		Sequencer:    r.Narrative.Sequencer,
		Decoupage:    r.Narrative.Decoupage,
		Treatment:    r.Narrative.Treatment,
		Images:       StripData(r.Images),
		Analysis:     r.Analysis,
		VideoPrompts: r.VideoPrompts,
	}
}
