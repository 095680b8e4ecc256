package repository

import (
	"context"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// ExecutionStateRepository persists the single durable cursor per project.
// Save upserts: there is never more than one row per project.
type ExecutionStateRepository interface {
	// Find retrieves the cursor for a project; returns ErrNotFound if absent
	Find(ctx context.Context, projectID project.ID) (*execution.ExecutionState, error)

	// Save upserts the cursor
	Save(ctx context.Context, state *execution.ExecutionState) error
}
