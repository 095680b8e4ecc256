package repository

import (
	"context"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// EventRepository is the append-only activity log. Append assigns the
// store-monotonic event ID.
type EventRepository interface {
	// Append persists an event and fills in its assigned ID
	Append(ctx context.Context, ev *event.Event) error

	// Since returns up to limit events for a project with ID > sinceID,
	// in ascending ID order
	Since(ctx context.Context, projectID project.ID, sinceID int64, limit int) ([]*event.Event, error)
}
