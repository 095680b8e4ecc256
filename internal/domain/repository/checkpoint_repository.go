package repository

import (
	"context"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// CheckpointRepository manages durable human-input requests
type CheckpointRepository interface {
	// Find retrieves a checkpoint by id; returns ErrNotFound if unknown
	Find(ctx context.Context, id checkpoint.ID) (*checkpoint.Checkpoint, error)

	// Save persists a checkpoint (insert or update)
	Save(ctx context.Context, cp *checkpoint.Checkpoint) error

	// ListPending returns pending checkpoints for a project, oldest first
	ListPending(ctx context.Context, projectID project.ID) ([]*checkpoint.Checkpoint, error)
}
