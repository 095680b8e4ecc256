package execution

import "github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"

// Confidence expresses how certain the agent is about a decision
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// IsValid checks if the confidence is a known value
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// DecisionKind discriminates the decision variants
type DecisionKind string

const (
	DecisionKindExecuteTask DecisionKind = "execute_task"
	DecisionKindReplan      DecisionKind = "replan"
	DecisionKindCheckpoint  DecisionKind = "checkpoint"
	DecisionKindComplete    DecisionKind = "complete"
	DecisionKindSkipTask    DecisionKind = "skip_task"
)

// Decision is the agent's structured answer to "what should happen next".
// It is a sum type: exactly one concrete variant per decision kind, each
// carrying only the fields relevant to it.
type Decision interface {
	Kind() DecisionKind
	Why() string
	ConfidenceLevel() Confidence
}

// Rationale holds the fields common to every decision variant
type Rationale struct {
	Reasoning  string
	Confidence Confidence
}

func (r Rationale) Why() string                 { return r.Reasoning }
func (r Rationale) ConfidenceLevel() Confidence { return r.Confidence }

// ExecuteTask directs the orchestrator to run one task in a given phase
type ExecuteTask struct {
	Rationale
	TaskID          string
	TaskDescription string
	Phase           Phase
}

func (ExecuteTask) Kind() DecisionKind { return DecisionKindExecuteTask }

// Replan directs the orchestrator to ask the agent for a fresh plan
type Replan struct {
	Rationale
	Reason string
}

func (Replan) Kind() DecisionKind { return DecisionKindReplan }

// RequestCheckpoint directs the orchestrator to pause for human input
type RequestCheckpoint struct {
	Rationale
	CheckpointType checkpoint.Type
	Question       string
	Context        string
}

func (RequestCheckpoint) Kind() DecisionKind { return DecisionKindCheckpoint }

// CompleteScope distinguishes finishing a milestone from finishing the project
type CompleteScope string

const (
	ScopeMilestone CompleteScope = "milestone"
	ScopeProject   CompleteScope = "project"
)

// Complete reports that a milestone or the whole project is finished
type Complete struct {
	Rationale
	Scope     CompleteScope
	Milestone string
}

func (Complete) Kind() DecisionKind { return DecisionKindComplete }

// SkipTask marks one plan task as skipped
type SkipTask struct {
	Rationale
	TaskID string
	Reason string
}

func (SkipTask) Kind() DecisionKind { return DecisionKindSkipTask }
