package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// ProjectRepositoryImpl implements repository.ProjectRepository with SQLite
type ProjectRepositoryImpl struct {
	db *sql.DB
}

// NewProjectRepository creates a new SQLite-based project repository
func NewProjectRepository(db *sql.DB) repository.ProjectRepository {
	return &ProjectRepositoryImpl{db: db}
}

// Find retrieves a project by its ID
func (r *ProjectRepositoryImpl) Find(ctx context.Context, id project.ID) (*project.Project, error) {
	query := `
		SELECT id, name, work_dir, status, created_at, updated_at, completed_at
		FROM projects WHERE id = ?
	`

	var (
		rawID, name, workDir, status string
		createdAt, updatedAt         string
		completedAt                  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID, &name, &workDir, &status, &createdAt, &updatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	completed, err := parseTimePtr(completedAt)
	if err != nil {
		return nil, err
	}

	return project.Reconstruct(
		project.ID(rawID), name, workDir, project.Status(status),
		created, updated, completed,
	), nil
}

// Save upserts a project row
func (r *ProjectRepositoryImpl) Save(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO projects (id, name, work_dir, status, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			work_dir = excluded.work_dir,
			status = excluded.status,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`

	var completedAt any
	if t := p.CompletedAt(); t != nil {
		completedAt = formatTime(*t)
	}

	return withContentionRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			p.ID().String(), p.Name(), p.WorkDir(), p.Status().String(),
			formatTime(p.CreatedAt()), formatTime(p.UpdatedAt()), completedAt,
		)
		if err != nil {
			return fmt.Errorf("save project: %w", err)
		}
		return nil
	})
}

// List retrieves projects, optionally filtered by status
func (r *ProjectRepositoryImpl) List(ctx context.Context, statuses ...project.Status) ([]*project.Project, error) {
	query := `
		SELECT id, name, work_dir, status, created_at, updated_at, completed_at
		FROM projects
	`
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, s.String())
		}
	}
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		var (
			rawID, name, workDir, status string
			createdAt, updatedAt         string
			completedAt                  sql.NullString
		)
		if err := rows.Scan(&rawID, &name, &workDir, &status, &createdAt, &updatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		updated, err := parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		completed, err := parseTimePtr(completedAt)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project.Reconstruct(
			project.ID(rawID), name, workDir, project.Status(status),
			created, updated, completed,
		))
	}
	return projects, rows.Err()
}
