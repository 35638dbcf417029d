// internal/services/loader_service.go
package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/Corphon/MoodboardPitch/internal/drive"
	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/imaging"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// LoaderService gathers the moodboard images of a request from Drive, from
// uploads or from a list of file links.
type LoaderService struct {
	drive   *drive.Loader
	maxSide int
	quality int
	workers int
}

func NewLoaderService(loader *drive.Loader, maxSide, quality int) *LoaderService {
	if maxSide <= 0 {
		maxSide = imaging.DefaultMaxSide
	}
	if quality <= 0 {
		quality = imaging.DefaultQuality
	}
	return &LoaderService{
		drive:   loader,
		maxSide: maxSide,
		quality: quality,
		workers: runtime.NumCPU(),
	}
}

// UsesDriveAPI reports whether Drive folders are listed through the API.
func (s *LoaderService) UsesDriveAPI() bool {
	return s.drive != nil && s.drive.UsesAPI()
}

// Load returns the images of req. Entries may carry an Error when their
// download failed; callers filter with models.WithData.
func (s *LoaderService) Load(ctx context.Context, req models.GenerationRequest, progress ProgressFunc) ([]models.MoodImage, error) {
	switch req.Source {
	case models.SourceDrive:
		if strings.TrimSpace(req.FolderURL) == "" {
			return nil, apperrors.NewValidationError("Veuillez entrer un lien Google Drive", nil)
		}
		return s.drive.LoadFolder(ctx, strings.TrimSpace(req.FolderURL), drive.ProgressFunc(progress))
	case models.SourceUpload:
		return s.LoadUploads(ctx, req.Uploads, progress)
	case models.SourceLinks:
		return s.LoadLinks(ctx, req.Links, progress)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("Source d'images inconnue : %q", req.Source), nil)
	}
}

// LoadUploads normalizes the uploaded files in parallel. Unsupported
// extensions and undecodable files are skipped.
func (s *LoaderService) LoadUploads(ctx context.Context, files []models.UploadedFile, progress ProgressFunc) ([]models.MoodImage, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError("Veuillez uploader au moins une image", nil)
	}

	var (
		inputs  [][]byte
		indexes []int
	)
	for i, f := range files {
		if !imaging.IsSupportedUpload(f.Name) {
			utils.GetLogger().Warn("Unsupported upload skipped", map[string]interface{}{"name": f.Name})
			continue
		}
		inputs = append(inputs, f.Data)
		indexes = append(indexes, i)
	}

	progress.report(0, fmt.Sprintf("Traitement de %d images...", len(inputs)))
	results := imaging.NormalizeAll(inputs, s.maxSide, s.quality, s.workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := make([]models.MoodImage, 0, len(results))
	for j, r := range results {
		f := files[indexes[j]]
		progress.report(float64(j+1)/float64(len(results)), "Traitement : "+f.Name)
		if r.Err != nil {
			utils.GetLogger().Warn("⚠️ Upload could not be decoded", map[string]interface{}{
				"name":  f.Name,
				"error": r.Err,
			})
			continue
		}
		images = append(images, models.MoodImage{
			ID:       fmt.Sprintf("upload_%d", indexes[j]),
			Name:     f.Name,
			MimeType: "image/jpeg",
			Data:     r.Data,
		})
	}
	progress.report(1.0, fmt.Sprintf("%d images chargées", len(images)))
	return images, nil
}

// LoadLinks downloads the Drive files referenced in a pasted list of links.
func (s *LoaderService) LoadLinks(ctx context.Context, links string, progress ProgressFunc) ([]models.MoodImage, error) {
	if strings.TrimSpace(links) == "" {
		return nil, apperrors.NewValidationError("Veuillez coller au moins un lien d'image", nil)
	}
	ids := drive.ExtractFileIDs(links)
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("Aucun lien valide trouvé. Vérifiez le format des liens.", nil)
	}
	return s.drive.LoadFromIDs(ctx, ids, drive.ProgressFunc(progress))
}
