package repository

import (
	"context"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// ProjectRepository manages Project entities
type ProjectRepository interface {
	// Find retrieves a project by its ID
	Find(ctx context.Context, id project.ID) (*project.Project, error)

	// Save persists a project (insert or update)
	Save(ctx context.Context, p *project.Project) error

	// List retrieves projects, optionally filtered by status
	List(ctx context.Context, statuses ...project.Status) ([]*project.Project, error)
}
