// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/pdf"
	"github.com/Corphon/MoodboardPitch/internal/storage"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const exportsDir = "exports"

// ExportService renders generation results and projects as downloadable
// documents. When files is set every export is also kept under exports/.
type ExportService struct {
	files *storage.FileStorage
	now   func() time.Time
}

func NewExportService(files *storage.FileStorage) *ExportService {
	return &ExportService{files: files, now: time.Now}
}

// ExportPDF renders the narrative with the image thumbnails.
func (s *ExportService) ExportPDF(title string, n models.Narrative, images []models.MoodImage) (*models.ExportResult, error) {
	now := s.now()
	content, err := pdf.Render(pdf.Document{
		Title:     title,
		Date:      now,
		Pitch:     n.Pitch,
		Sequencer: n.Sequencer,
		Decoupage: n.Decoupage,
		Images:    images,
	})
	if err != nil {
		return nil, apperrors.NewProcessingError("Erreur lors de l'export PDF", err)
	}
	if title == "" {
		title = pdf.DefaultTitle
	}
	return s.finish(&models.ExportResult{
		Title:       title,
		Format:      models.FormatPDF,
		Filename:    pdf.Filename(now),
		ContentType: "application/pdf",
		Content:     content,
		GeneratedAt: now,
	}), nil
}

// ExportMarkdown renders the three narrative documents as one Markdown file.
func (s *ExportService) ExportMarkdown(n models.Narrative) *models.ExportResult {
	now := s.now()
	return s.finish(&models.ExportResult{
		Title:       "Pitch",
		Format:      models.FormatMarkdown,
		Filename:    "pitch_" + now.Format("20060102_1504") + ".md",
		ContentType: "text/markdown; charset=utf-8",
		Content:     []byte(NarrativeMarkdown(n)),
		GeneratedAt: now,
	})
}

// ExportVideoPrompts renders prompts as plain text.
func (s *ExportService) ExportVideoPrompts(prompts []models.VideoPrompt) *models.ExportResult {
	now := s.now()
	return s.finish(&models.ExportResult{
		Title:       "Prompts vidéo",
		Format:      models.FormatText,
		Filename:    "prompts_" + now.Format("20060102_1504") + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Content:     []byte(FormatForExport(prompts, true)),
		GeneratedAt: now,
	})
}

// ExportProject renders a saved project as json, md or pdf.
func (s *ExportService) ExportProject(p *models.Project, format string) (*models.ExportResult, error) {
	now := s.now()
	result := &models.ExportResult{
		Title:       projectTitle(p),
		Format:      format,
		GeneratedAt: now,
	}
	switch format {
	case models.FormatJSON:
		content, err := json.MarshalIndent(p.Data, "", "  ")
		if err != nil {
			return nil, apperrors.NewProcessingError("Erreur lors de l'export JSON", err)
		}
		result.Content = content
		result.ContentType = "application/json"
	case models.FormatMarkdown:
		result.Content = []byte(ProjectMarkdown(p))
		result.ContentType = "text/markdown; charset=utf-8"
	case models.FormatPDF:
		return s.ExportPDF(projectTitle(p), p.Data.Narrative(), p.Data.Images)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("Format d'export non supporté : %q (json, md, pdf)", format), nil)
	}
	result.Filename = fmt.Sprintf("projet_%s.%s", p.ID, format)
	return s.finish(result), nil
}

func (s *ExportService) finish(r *models.ExportResult) *models.ExportResult {
	if s.files == nil {
		return r
	}
	if err := s.files.SaveTextFile(exportsDir, r.Filename, r.Content); err != nil {
		utils.GetLogger().Warn("Export copy not saved", map[string]interface{}{
			"filename": r.Filename,
			"error":    err,
		})
		return r
	}
	utils.GetLogger().Info("📄 Export written", map[string]interface{}{
		"filename": r.Filename,
		"format":   r.Format,
		"bytes":    r.Size(),
	})
	return r
}

// NarrativeMarkdown is the Markdown download of a generation result.
func NarrativeMarkdown(n models.Narrative) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pitch\n\n%s\n\n---\n\n# Séquencier\n\n%s\n\n---\n\n# Découpage technique\n\n%s\n",
		n.Pitch, n.Sequencer, n.Decoupage)
	if n.Treatment != "" {
		fmt.Fprintf(&b, "\n---\n\n# Traitement\n\n%s\n", n.Treatment)
	}
	return b.String()
}

// ProjectMarkdown is the Markdown export of a saved project.
func ProjectMarkdown(p *models.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Pitch\n\n%s\n\n---\n\n## Séquencier\n\n%s\n\n---\n\n## Découpage technique\n\n%s\n\n---\n\n## Images de référence\n\n",
		projectTitle(p), p.Data.Pitch, p.Data.Sequencer, p.Data.Decoupage)
	for _, img := range p.Data.Images {
		name := img.Name
		if name == "" {
			name = "Sans nom"
		}
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

func projectTitle(p *models.Project) string {
	if p.Name == "" {
		return "Projet sans titre"
	}
	return p.Name
}
