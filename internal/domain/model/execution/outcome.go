package execution

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind discriminates the last-outcome variants
type OutcomeKind string

const (
	OutcomeNone               OutcomeKind = "none"
	OutcomeTaskSucceeded      OutcomeKind = "task_succeeded"
	OutcomeTaskFailed         OutcomeKind = "task_failed"
	OutcomeReplanned          OutcomeKind = "replanned"
	OutcomeTaskSkipped        OutcomeKind = "task_skipped"
	OutcomeMilestoneComplete  OutcomeKind = "milestone_complete"
	OutcomeCheckpointAnswered OutcomeKind = "checkpoint_answered"
)

// FailureReason classifies why the agent could not complete a task
type FailureReason string

const (
	FailureMaxTurns        FailureReason = "max_turns_exceeded"
	FailureBudget          FailureReason = "budget_exceeded"
	FailureOutputRetries   FailureReason = "output_retries_exhausted"
	FailureDependency      FailureReason = "dependency_unavailable"
	FailureExecutionError  FailureReason = "execution_error"
)

// LastOutcome is the typed result of the previous loop iteration, fed back
// into the next decision call. It replaces a free-form context bag: the
// in-memory contract is explicit and serialization happens only at the
// persistence boundary.
type LastOutcome struct {
	Kind        OutcomeKind   `json:"kind"`
	TaskID      string        `json:"task_id,omitempty"`
	Phase       Phase         `json:"phase,omitempty"`
	Output      string        `json:"output,omitempty"`
	Reason      FailureReason `json:"reason,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Milestone   string        `json:"milestone,omitempty"`
	Answer      string        `json:"answer,omitempty"`
	ReviewScore *int          `json:"review_score,omitempty"`
}

// NoOutcome is the zero value used before any iteration has run
func NoOutcome() LastOutcome {
	return LastOutcome{Kind: OutcomeNone}
}

// TaskSucceeded records a successfully executed task
func TaskSucceeded(taskID string, phase Phase, output string, reviewScore *int) LastOutcome {
	return LastOutcome{
		Kind:        OutcomeTaskSucceeded,
		TaskID:      taskID,
		Phase:       phase,
		Output:      output,
		ReviewScore: reviewScore,
	}
}

// TaskFailed records a task the agent could not complete
func TaskFailed(taskID string, phase Phase, reason FailureReason, detail string) LastOutcome {
	return LastOutcome{
		Kind:   OutcomeTaskFailed,
		TaskID: taskID,
		Phase:  phase,
		Reason: reason,
		Detail: detail,
	}
}

// Replanned records that a fresh plan snapshot was produced
func Replanned(detail string) LastOutcome {
	return LastOutcome{Kind: OutcomeReplanned, Detail: detail}
}

// TaskSkipped records a skipped plan task
func TaskSkipped(taskID, reason string) LastOutcome {
	return LastOutcome{Kind: OutcomeTaskSkipped, TaskID: taskID, Detail: reason}
}

// MilestoneComplete records a finished milestone
func MilestoneComplete(milestone string) LastOutcome {
	return LastOutcome{Kind: OutcomeMilestoneComplete, Milestone: milestone}
}

// CheckpointAnswered records a human answer carried into the next decision
func CheckpointAnswered(question, answer string) LastOutcome {
	return LastOutcome{Kind: OutcomeCheckpointAnswered, Detail: question, Answer: answer}
}

// MarshalBlob serializes the outcome for durable storage
func (o LastOutcome) MarshalBlob() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal last outcome: %w", err)
	}
	return data, nil
}

// UnmarshalOutcomeBlob deserializes a persisted outcome blob.
// An empty blob is treated as "no outcome yet".
func UnmarshalOutcomeBlob(data []byte) (LastOutcome, error) {
	if len(data) == 0 {
		return NoOutcome(), nil
	}
	var o LastOutcome
	if err := json.Unmarshal(data, &o); err != nil {
		return LastOutcome{}, fmt.Errorf("unmarshal last outcome: %w", err)
	}
	if o.Kind == "" {
		o.Kind = OutcomeNone
	}
	return o, nil
}
