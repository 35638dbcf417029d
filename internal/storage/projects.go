// internal/storage/projects.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Corphon/MoodboardPitch/internal/models"
)

// ErrProjectNotFound is returned by repositories for unknown ids.
var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository persists saved projects.
type ProjectRepository interface {
	// Put inserts or replaces the project with p.ID.
	Put(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]models.ProjectSummary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

const projectsDir = "projects"

// JSONProjectRepository keeps one <id>.json document per project.
type JSONProjectRepository struct {
	files *FileStorage
}

func NewJSONProjectRepository(files *FileStorage) *JSONProjectRepository {
	return &JSONProjectRepository{files: files}
}

func (r *JSONProjectRepository) Put(_ context.Context, p *models.Project) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	return r.files.SaveJSONFile(projectsDir, p.ID+".json", p)
}

func (r *JSONProjectRepository) Get(_ context.Context, id string) (*models.Project, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	var p models.Project
	if err := r.files.LoadJSONFile(projectsDir, id+".json", &p); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (r *JSONProjectRepository) List(ctx context.Context) ([]models.ProjectSummary, error) {
	names, err := r.files.ListFiles(projectsDir, ".json")
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ProjectSummary, 0, len(names))
	for _, name := range names {
		p, err := r.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			// unreadable documents are skipped, not fatal for the listing
			continue
		}
		summaries = append(summaries, p.Summary())
	}
	SortSummaries(summaries)
	return summaries, nil
}

func (r *JSONProjectRepository) Delete(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := r.files.DeleteFile(projectsDir, id+".json"); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return err
	}
	return nil
}

func (r *JSONProjectRepository) Close() error {
	return nil
}

// SortSummaries orders by UpdatedAt descending, ties by id.
func SortSummaries(s []models.ProjectSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}

// validID rejects ids that could escape the projects directory.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("%w: %q", ErrProjectNotFound, id)
	}
	return nil
}
