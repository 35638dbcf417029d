// internal/models/image.go
package models

// Image sources accepted by the generator.
const (
	SourceDrive  = "drive"
	SourceUpload = "upload"
	SourceLinks  = "links"
)

// MoodImage is one moodboard picture. Data holds the normalized JPEG bytes
// and is never persisted; Error is set when the download failed.
type MoodImage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Data         []byte `json:"-"`
	Error        string `json:"error,omitempty"`
}

// HasData reports whether the image bytes were loaded.
func (m MoodImage) HasData() bool {
	return len(m.Data) > 0
}

// StripData returns copies of images without their bytes.
func StripData(images []MoodImage) []MoodImage {
	out := make([]MoodImage, len(images))
	for i, img := range images {
		img.Data = nil
		out[i] = img
	}
	return out
}

// WithData keeps the images that have bytes.
func WithData(images []MoodImage) []MoodImage {
	out := make([]MoodImage, 0, len(images))
	for _, img := range images {
		if img.HasData() {
			out = append(out, img)
		}
	}
	return out
}
