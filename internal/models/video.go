// internal/models/video.go
package models

// Video generation platforms.
const (
	PlatformVeo3   = "veo3"
	PlatformKling  = "kling"
	PlatformRunway = "runway"
)

var Platforms = []string{PlatformVeo3, PlatformKling, PlatformRunway}

// Shot is one row of a découpage table.
type Shot struct {
	SequenceNumber int    `json:"sequence_number"`
	SequenceTitle  string `json:"sequence_title"`
	ShotNumber     int    `json:"shot_number"`
	ShotValue      string `json:"shot_value"`
	CameraMovement string `json:"camera_movement"`
	Description    string `json:"description"`
	ImageRef       string `json:"image_ref"`
	Mood           string `json:"mood"`
	Duration       int    `json:"duration"`
}

// VideoPrompt is a text-to-video prompt derived from a shot.
type VideoPrompt struct {
	Platform     string `json:"platform"`
	PlatformName string `json:"platform_name"`
	Shot         Shot   `json:"shot"`
	Prompt       string `json:"prompt"`
}
