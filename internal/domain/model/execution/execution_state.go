package execution

import (
	"fmt"
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// ExecutionState is the durable orchestrator cursor for one project.
// Exactly one row exists per project; it is upserted on every transition
// and read back at process start to resume.
type ExecutionState struct {
	ProjectID        project.ID
	State            State
	CycleNumber      int
	PlanSnapshot     []byte
	LastOutcome      LastOutcome
	StuckTimerStart  *time.Time
	LastEscalationAt *time.Time
	UpdatedAt        time.Time
}

// NewExecutionState creates the initial cursor for a project
func NewExecutionState(projectID project.ID) *ExecutionState {
	return &ExecutionState{
		ProjectID:   projectID,
		State:       StateInitializing,
		CycleNumber: 0,
		LastOutcome: NoOutcome(),
		UpdatedAt:   time.Now().UTC(),
	}
}

// TransitionTo moves the cursor to a new state
func (e *ExecutionState) TransitionTo(next State) error {
	if !next.IsValid() {
		return fmt.Errorf("invalid execution state: %s", next)
	}
	if e.State.IsTerminal() {
		return fmt.Errorf("cannot transition from terminal state %s to %s", e.State, next)
	}
	e.State = next
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Resume re-enters the loop at the deciding sentinel so the agent is
// re-asked "what next" rather than blindly continuing a stale action.
func (e *ExecutionState) Resume() error {
	if e.State.IsTerminal() {
		return fmt.Errorf("cannot resume terminal state %s", e.State)
	}
	e.State = StateDeciding
	e.StuckTimerStart = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Abandon marks the project's execution as terminally stopped
func (e *ExecutionState) Abandon() {
	e.State = StateAbandoned
	e.UpdatedAt = time.Now().UTC()
}

// Complete marks the project's execution as terminally finished
func (e *ExecutionState) Complete() {
	e.State = StateCompleted
	e.UpdatedAt = time.Now().UTC()
}

// AdvanceCycle increments the cycle counter at the start of a new pass
func (e *ExecutionState) AdvanceCycle() {
	e.CycleNumber++
	e.UpdatedAt = time.Now().UTC()
}

// SetPlan stores a serialized plan snapshot
func (e *ExecutionState) SetPlan(p *Plan) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	e.PlanSnapshot = data
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Plan deserializes the stored snapshot
func (e *ExecutionState) Plan() (*Plan, error) {
	return ParsePlan(e.PlanSnapshot)
}

// RecordOutcome stores the typed result of the last iteration
func (e *ExecutionState) RecordOutcome(o LastOutcome) {
	e.LastOutcome = o
	e.UpdatedAt = time.Now().UTC()
}

// MarkEscalated records when a loop pattern was last raised to a human.
// Pattern detection only weighs history written after this point, so an
// answered escalation cannot re-trip on the same stale evidence.
func (e *ExecutionState) MarkEscalated(now time.Time) {
	t := now.UTC()
	e.LastEscalationAt = &t
	e.UpdatedAt = t
}

// MarkStuck starts the stuck timer if not already running
func (e *ExecutionState) MarkStuck(now time.Time) {
	if e.StuckTimerStart == nil {
		t := now.UTC()
		e.StuckTimerStart = &t
	}
}

// ClearStuck resets the stuck timer
func (e *ExecutionState) ClearStuck() {
	e.StuckTimerStart = nil
}
