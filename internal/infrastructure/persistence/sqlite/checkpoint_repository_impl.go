package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// CheckpointRepositoryImpl implements repository.CheckpointRepository with SQLite
type CheckpointRepositoryImpl struct {
	db *sql.DB
}

// NewCheckpointRepository creates a new SQLite-based checkpoint repository
func NewCheckpointRepository(db *sql.DB) repository.CheckpointRepository {
	return &CheckpointRepositoryImpl{db: db}
}

// Find retrieves a checkpoint by id
func (r *CheckpointRepositoryImpl) Find(ctx context.Context, id checkpoint.ID) (*checkpoint.Checkpoint, error) {
	query := `
		SELECT id, project_id, type, question, context, response, status, created_at, answered_at
		FROM checkpoints WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id.String())
	cp, err := scanCheckpoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find checkpoint: %w", err)
	}
	return cp, nil
}

// Save upserts a checkpoint row
func (r *CheckpointRepositoryImpl) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, project_id, type, question, context, response, status, created_at, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			response = excluded.response,
			status = excluded.status,
			answered_at = excluded.answered_at
	`

	var answeredAt any
	if t := cp.AnsweredAt(); t != nil {
		answeredAt = formatTime(*t)
	}

	return withContentionRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			cp.ID().String(), cp.ProjectID().String(), string(cp.Type()),
			cp.Question(), cp.Context(), cp.Response(), string(cp.Status()),
			formatTime(cp.CreatedAt()), answeredAt,
		)
		if err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		return nil
	})
}

// ListPending returns pending checkpoints for a project, oldest first
func (r *CheckpointRepositoryImpl) ListPending(ctx context.Context, projectID project.ID) ([]*checkpoint.Checkpoint, error) {
	query := `
		SELECT id, project_id, type, question, context, response, status, created_at, answered_at
		FROM checkpoints
		WHERE project_id = ? AND status = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String(), string(checkpoint.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

func scanCheckpoint(scan func(dest ...any) error) (*checkpoint.Checkpoint, error) {
	var (
		id, projectID, ctype, question, cpContext, response, status, createdAt string
		answeredAt                                                             sql.NullString
	)
	if err := scan(&id, &projectID, &ctype, &question, &cpContext, &response, &status, &createdAt, &answeredAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	answered, err := parseTimePtr(answeredAt)
	if err != nil {
		return nil, err
	}
	return checkpoint.Reconstruct(
		checkpoint.ID(id), project.ID(projectID), checkpoint.Type(ctype),
		question, cpContext, response, checkpoint.Status(status),
		created, answered,
	), nil
}
