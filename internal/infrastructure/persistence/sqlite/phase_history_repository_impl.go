package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// PhaseHistoryRepositoryImpl implements repository.PhaseHistoryRepository
// with SQLite. The tables are append-only; no update or delete statements
// exist here on purpose.
type PhaseHistoryRepositoryImpl struct {
	db *sql.DB
}

// NewPhaseHistoryRepository creates a new SQLite-based phase history repository
func NewPhaseHistoryRepository(db *sql.DB) repository.PhaseHistoryRepository {
	return &PhaseHistoryRepositoryImpl{db: db}
}

// Append records one executed phase
func (r *PhaseHistoryRepositoryImpl) Append(ctx context.Context, entry *history.Entry) error {
	query := `
		INSERT INTO phase_history (id, project_id, cycle_number, phase, task_description, fingerprint, outcome, review_score, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var score any
	if entry.ReviewScore != nil {
		score = *entry.ReviewScore
	}

	return withContentionRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			entry.ID, entry.ProjectID.String(), entry.CycleNumber,
			entry.Phase.String(), entry.TaskDescription, entry.Fingerprint,
			string(entry.Outcome), score, entry.Duration.Milliseconds(),
			formatTime(entry.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append phase history: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit entries for a project, newest first
func (r *PhaseHistoryRepositoryImpl) Recent(ctx context.Context, projectID project.ID, limit int) ([]*history.Entry, error) {
	query := `
		SELECT id, cycle_number, phase, task_description, fingerprint, outcome, review_score, duration_ms, created_at
		FROM phase_history
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query phase history: %w", err)
	}
	defer rows.Close()

	var entries []*history.Entry
	for rows.Next() {
		var (
			id, phase, task, fingerprint, outcome, createdAt string
			cycleNumber                                      int
			score                                            sql.NullInt64
			durationMs                                       int64
		)
		if err := rows.Scan(&id, &cycleNumber, &phase, &task, &fingerprint, &outcome, &score, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan phase history: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		entry := &history.Entry{
			ID:              id,
			ProjectID:       projectID,
			CycleNumber:     cycleNumber,
			Phase:           execution.Phase(phase),
			TaskDescription: task,
			Fingerprint:     fingerprint,
			Outcome:         history.Outcome(outcome),
			Duration:        time.Duration(durationMs) * time.Millisecond,
			CreatedAt:       created,
		}
		if score.Valid {
			s := int(score.Int64)
			entry.ReviewScore = &s
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendTouch records one file-modifying tool invocation
func (r *PhaseHistoryRepositoryImpl) AppendTouch(ctx context.Context, touch *history.FileTouch) error {
	query := `
		INSERT INTO file_touches (project_id, cycle_number, path, created_at)
		VALUES (?, ?, ?, ?)
	`
	return withContentionRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			touch.ProjectID.String(), touch.CycleNumber, touch.Path, formatTime(touch.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append file touch: %w", err)
		}
		return nil
	})
}

// Touches returns file touches for a project; cycle < 0 means all cycles
func (r *PhaseHistoryRepositoryImpl) Touches(ctx context.Context, projectID project.ID, cycle int) ([]*history.FileTouch, error) {
	query := `
		SELECT cycle_number, path, created_at FROM file_touches
		WHERE project_id = ?
	`
	args := []any{projectID.String()}
	if cycle >= 0 {
		query += " AND cycle_number = ?"
		args = append(args, cycle)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query file touches: %w", err)
	}
	defer rows.Close()

	var touches []*history.FileTouch
	for rows.Next() {
		var (
			cycleNumber     int
			path, createdAt string
		)
		if err := rows.Scan(&cycleNumber, &path, &createdAt); err != nil {
			return nil, fmt.Errorf("scan file touch: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		touches = append(touches, &history.FileTouch{
			ProjectID:   projectID,
			CycleNumber: cycleNumber,
			Path:        path,
			CreatedAt:   created,
		})
	}
	return touches, rows.Err()
}

var _ repository.PhaseHistoryRepository = (*PhaseHistoryRepositoryImpl)(nil)
