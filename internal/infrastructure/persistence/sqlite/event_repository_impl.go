package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// EventRepositoryImpl implements repository.EventRepository with SQLite.
// The AUTOINCREMENT primary key is the store-monotonic replay cursor.
type EventRepositoryImpl struct {
	db *sql.DB
}

// NewEventRepository creates a new SQLite-based event repository
func NewEventRepository(db *sql.DB) repository.EventRepository {
	return &EventRepositoryImpl{db: db}
}

// Append persists an event and fills in its assigned ID
func (r *EventRepositoryImpl) Append(ctx context.Context, ev *event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `
		INSERT INTO events (project_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`
	return withContentionRetry(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, query,
			ev.ProjectID.String(), ev.Type, string(payload), formatTime(ev.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("event insert id: %w", err)
		}
		ev.ID = id
		return nil
	})
}

// Since returns events for a project with ID > sinceID in ascending order
func (r *EventRepositoryImpl) Since(ctx context.Context, projectID project.ID, sinceID int64, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event_type, payload, created_at
		FROM events
		WHERE project_id = ? AND id > ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String(), sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var (
			id                          int64
			eventType, payload, created string
		)
		if err := rows.Scan(&id, &eventType, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ts, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		events = append(events, &event.Event{
			ID:        id,
			ProjectID: projectID,
			Type:      eventType,
			Payload:   decoded,
			Timestamp: ts,
		})
	}
	return events, rows.Err()
}
