package repository

import (
	"context"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// PhaseHistoryRepository is the append-only log of executed phases.
// Entries are never mutated or deleted.
type PhaseHistoryRepository interface {
	// Append records one executed phase
	Append(ctx context.Context, entry *history.Entry) error

	// Recent returns up to limit entries for a project, newest first
	Recent(ctx context.Context, projectID project.ID, limit int) ([]*history.Entry, error)

	// AppendTouch records one file-modifying tool invocation
	AppendTouch(ctx context.Context, touch *history.FileTouch) error

	// Touches returns file touches for a project; cycle < 0 means all cycles
	Touches(ctx context.Context, projectID project.ID, cycle int) ([]*history.FileTouch, error)
}
