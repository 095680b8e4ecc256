package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// ExecutionStateRepositoryImpl implements repository.ExecutionStateRepository
// with SQLite. The projects/execution_states pair holds exactly one row
// per project; Save upserts.
type ExecutionStateRepositoryImpl struct {
	db *sql.DB
}

// NewExecutionStateRepository creates a new SQLite-based execution state repository
func NewExecutionStateRepository(db *sql.DB) repository.ExecutionStateRepository {
	return &ExecutionStateRepositoryImpl{db: db}
}

// Find retrieves the cursor for a project
func (r *ExecutionStateRepositoryImpl) Find(ctx context.Context, projectID project.ID) (*execution.ExecutionState, error) {
	query := `
		SELECT state, cycle_number, plan_snapshot, last_outcome, stuck_timer_start, last_escalation_at, updated_at
		FROM execution_states WHERE project_id = ?
	`

	var (
		state            string
		cycleNumber      int
		planSnapshot     []byte
		lastOutcome      []byte
		stuckTimerStart  sql.NullString
		lastEscalationAt sql.NullString
		updatedAt        string
	)
	err := r.db.QueryRowContext(ctx, query, projectID.String()).Scan(
		&state, &cycleNumber, &planSnapshot, &lastOutcome, &stuckTimerStart, &lastEscalationAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution state for project %s: %w", projectID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find execution state: %w", err)
	}

	outcome, err := execution.UnmarshalOutcomeBlob(lastOutcome)
	if err != nil {
		return nil, err
	}
	stuck, err := parseTimePtr(stuckTimerStart)
	if err != nil {
		return nil, err
	}
	escalated, err := parseTimePtr(lastEscalationAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &execution.ExecutionState{
		ProjectID:        projectID,
		State:            execution.State(state),
		CycleNumber:      cycleNumber,
		PlanSnapshot:     planSnapshot,
		LastOutcome:      outcome,
		StuckTimerStart:  stuck,
		LastEscalationAt: escalated,
		UpdatedAt:        updated,
	}, nil
}

// Save upserts the project's cursor
func (r *ExecutionStateRepositoryImpl) Save(ctx context.Context, state *execution.ExecutionState) error {
	outcomeBlob, err := state.LastOutcome.MarshalBlob()
	if err != nil {
		return err
	}

	var stuck any
	if state.StuckTimerStart != nil {
		stuck = formatTime(*state.StuckTimerStart)
	}
	var escalated any
	if state.LastEscalationAt != nil {
		escalated = formatTime(*state.LastEscalationAt)
	}

	query := `
		INSERT INTO execution_states (project_id, state, cycle_number, plan_snapshot, last_outcome, stuck_timer_start, last_escalation_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			state = excluded.state,
			cycle_number = excluded.cycle_number,
			plan_snapshot = excluded.plan_snapshot,
			last_outcome = excluded.last_outcome,
			stuck_timer_start = excluded.stuck_timer_start,
			last_escalation_at = excluded.last_escalation_at,
			updated_at = excluded.updated_at
	`

	return withContentionRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			state.ProjectID.String(), state.State.String(), state.CycleNumber,
			state.PlanSnapshot, outcomeBlob, stuck, escalated, formatTime(state.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("save execution state: %w", err)
		}
		return nil
	})
}
