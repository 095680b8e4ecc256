package event

import (
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// Event type constants for the durable activity log
const (
	TypeProjectStarted   = "project.started"
	TypeProjectPaused    = "project.paused"
	TypeProjectResumed   = "project.resumed"
	TypeProjectStopped   = "project.stopped"
	TypeProjectCompleted = "project.completed"

	TypeStateTransition = "state.transition"

	TypeDecisionMade   = "decision.made"
	TypePhaseStarted   = "phase.started"
	TypePhaseCompleted = "phase.completed"
	TypePhaseFailed    = "phase.failed"
	TypePlanUpdated    = "plan.updated"
	TypeTaskSkipped    = "task.skipped"

	TypeCheckpointCreated  = "checkpoint.created"
	TypeCheckpointAnswered = "checkpoint.answered"

	TypeLoopDetected  = "loop.detected"
	TypeChurnDetected = "churn.detected"

	TypeBreakerTripped = "breaker.tripped"
	TypeErrorPaused    = "error.paused"
)

// Event is an immutable fact about project activity. The id is assigned
// by the store, monotonically increasing, and drives replay.
type Event struct {
	ID        int64
	ProjectID project.ID
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// New creates an unpersisted event (ID zero until appended)
func New(projectID project.ID, eventType string, payload map[string]any) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		ProjectID: projectID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
