// internal/services/project_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/storage"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// ProjectService saves and restores generated projects.
type ProjectService struct {
	repo    storage.ProjectRepository
	exports *ExportService
	locks   *LockManager
	now     func() time.Time
	newID   func() string
}

func NewProjectService(repo storage.ProjectRepository, exports *ExportService) *ProjectService {
	return &ProjectService{
		repo:    repo,
		exports: exports,
		locks:   NewLockManager(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String()[:8] },
	}
}

// Save stores data as a new project. Image bytes are never persisted.
func (s *ProjectService) Save(ctx context.Context, name string, data models.ProjectData) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("Le nom du projet est requis", nil)
	}
	now := s.now()
	p := &models.Project{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      prepareData(data),
	}
	if err := s.repo.Put(ctx, p); err != nil {
		return nil, apperrors.NewProcessingError("Impossible de sauvegarder le projet", err)
	}
	utils.GetLogger().Info("💾 Project saved", map[string]interface{}{
		"project_id": p.ID,
		"name":       p.Name,
		"images":     len(p.Data.Images),
	})
	return p, nil
}

func (s *ProjectService) Load(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(id, err)
	}
	return p, nil
}

// List returns the saved projects, most recently updated first.
func (s *ProjectService) List(ctx context.Context) ([]models.ProjectSummary, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewProcessingError("Impossible de lister les projets", err)
	}
	if list == nil {
		list = []models.ProjectSummary{}
	}
	return list, nil
}

// Update replaces the data of an existing project and bumps UpdatedAt.
// Concurrent updates of the same project are applied one after the other.
func (s *ProjectService) Update(ctx context.Context, id string, data models.ProjectData) (*models.Project, error) {
	var updated *models.Project
	err := s.locks.WithLock(id, func() error {
		p, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		p.Data = prepareData(data)
		p.UpdatedAt = s.now()
		if err := s.repo.Put(ctx, p); err != nil {
			return apperrors.NewProcessingError("Impossible de mettre à jour le projet", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	err := s.locks.WithLock(id, func() error {
		if err := s.repo.Delete(ctx, id); err != nil {
			return s.mapError(id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	utils.GetLogger().Info("🗑️ Project deleted", map[string]interface{}{"project_id": id})
	return nil
}

// Export renders a saved project as json, md or pdf.
func (s *ProjectService) Export(ctx context.Context, id, format string) (*models.ExportResult, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exports.ExportProject(p, strings.ToLower(format))
}

func (s *ProjectService) mapError(id string, err error) error {
	if errors.Is(err, storage.ErrProjectNotFound) {
		return apperrors.NewNotFoundError("Projet introuvable : "+id, err)
	}
	return apperrors.NewProcessingError("Erreur d'accès au projet "+id, err)
}

func prepareData(data models.ProjectData) models.ProjectData {
	data.Images = models.StripData(data.Images)
	if data.Brief == "" {
		data.Brief = data.Context.Brief
	}
	return data
}
