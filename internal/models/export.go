// internal/models/export.go
package models

import "time"

// Export formats.
const (
	FormatPDF      = "pdf"
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatText     = "txt"
)

// ExportResult is a rendered document ready to be downloaded.
type ExportResult struct {
	Title       string    `json:"title"`
	Format      string    `json:"format"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Size is the byte length of the rendered document.
func (r *ExportResult) Size() int {
	return len(r.Content)
}
