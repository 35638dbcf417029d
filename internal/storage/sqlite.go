// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Corphon/MoodboardPitch/internal/models"
)

const projectsSchema = `CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	data TEXT NOT NULL
)`

// SQLiteProjectRepository stores projects in one table; data is the JSON of ProjectData.
type SQLiteProjectRepository struct {
	db *sql.DB
}

// NewSQLiteProjectRepository opens dsn (a file path or ":memory:") and creates the table.
func NewSQLiteProjectRepository(dsn string) (*SQLiteProjectRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(projectsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create projects table: %w", err)
	}
	return &SQLiteProjectRepository{db: db}, nil
}

func (r *SQLiteProjectRepository) Put(ctx context.Context, p *models.Project) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal project data: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO projects (id, name, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at, data = excluded.data`,
		p.ID, p.Name, formatTime(p.CreatedAt), formatTime(p.UpdatedAt), string(data))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (r *SQLiteProjectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at, data FROM projects WHERE id = ?", id)

	var (
		p                models.Project
		created, updated string
		data             []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &created, &updated, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &p.Data); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return &p, nil
}

func (r *SQLiteProjectRepository) List(ctx context.Context) ([]models.ProjectSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at, json_extract(data, '$.source') FROM projects")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var summaries []models.ProjectSummary
	for rows.Next() {
		var (
			s                models.ProjectSummary
			created, updated string
			source           sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &created, &updated, &source); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		s.Source = source.String
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortSummaries(summaries)
	return summaries, nil
}

func (r *SQLiteProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return nil
}

func (r *SQLiteProjectRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
