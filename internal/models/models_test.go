// internal/models/models_test.go
package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStripDataAndWithData(t *testing.T) {
	images := []MoodImage{
		{ID: "a", Name: "a.jpg", Data: []byte{1, 2}},
		{ID: "b", Name: "b.jpg", Error: "timeout"},
	}

	stripped := StripData(images)
	if stripped[0].HasData() {
		t.Fatal("StripData kept bytes")
	}
	if !images[0].HasData() {
		t.Fatal("StripData must not modify its input")
	}

	loaded := WithData(images)
	if diff := cmp.Diff([]string{"a"}, []string{loaded[0].ID}); diff != "" || len(loaded) != 1 {
		t.Fatalf("WithData = %+v", loaded)
	}
}

func TestGenerationResultProjectData(t *testing.T) {
	r := &GenerationResult{
		Request: GenerationRequest{
			Source:    SourceDrive,
			FolderURL: "https://drive.google.com/drive/folders/abc",
			Context:   CreativeContext{Brief: "une ville la nuit", Tone: TonePoetic},
		},
		Images:    []MoodImage{{ID: "1", Name: "1.jpg", Data: []byte{9}}},
		Narrative: Narrative{Pitch: "P", Sequencer: "S", Decoupage: "D"},
	}

	d := r.ProjectData()
	if d.Brief != "une ville la nuit" || d.Source != SourceDrive || d.Pitch != "P" {
		t.Fatalf("unexpected project data %+v", d)
	}
	if d.Images[0].HasData() {
		t.Fatal("project data must not carry image bytes")
	}
	if got := d.Narrative(); got != r.Narrative {
		t.Fatalf("Narrative() = %+v", got)
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault("") != NotSpecified || OrDefault("Clip musical") != "Clip musical" {
		t.Fatal("OrDefault mismatch")
	}
}
