package output

import (
	"context"
	"fmt"
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
)

// AgentRole distinguishes decision-making calls from task execution
type AgentRole string

const (
	RoleDecider  AgentRole = "decider"
	RoleExecutor AgentRole = "executor"
	RolePlanner  AgentRole = "planner"
)

// AgentRequest is one invocation across the Agent Invocation Port.
// Every call is a potential long-latency suspension point.
type AgentRequest struct {
	Role         AgentRole
	Phase        execution.Phase
	Model        string
	Prompt       string
	WorkDir      string
	AllowedTools []string
	MaxTurns     int
	OutputSchema string        // JSON Schema the structured output must satisfy
	Timeout      time.Duration // per-call maximum duration
}

// AgentStatus is the coarse call result
type AgentStatus string

const (
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// FailureKind classifies a failed agent call for error handling
type FailureKind string

const (
	FailureKindMaxTurns      FailureKind = "max_turns"
	FailureKindBudget        FailureKind = "budget"
	FailureKindOutputRetries FailureKind = "output_retries"
	FailureKindTransport     FailureKind = "transport"
	FailureKindExecution     FailureKind = "execution"
)

// AgentResponse is the result of one agent invocation
type AgentResponse struct {
	Status        AgentStatus
	Output        string // structured (JSON) or opaque text
	TokensInput   int
	TokensOutput  int
	Duration      time.Duration
	FailureKind   FailureKind // set when Status is failed
	FailureDetail string
	TouchedFiles  []string // paths modified by the agent's tools, when reported
}

// BusinessError reports that the agent could not complete a task. The
// orchestrator records it and lets the next decision call choose how to
// proceed rather than retrying the task itself. Response holds the
// failed invocation as reported, including any files it touched before
// giving up.
type BusinessError struct {
	Kind     FailureKind
	Detail   string
	Response *AgentResponse
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("agent task failed (%s): %s", e.Kind, e.Detail)
}

// AgentGateway is the Agent Invocation Port: the black-box external
// code-generation capability.
type AgentGateway interface {
	// Invoke runs one agent call. Cooperative cancellation flows
	// through ctx.
	Invoke(ctx context.Context, req AgentRequest) (*AgentResponse, error)

	// HealthCheck verifies the agent backend is reachable
	HealthCheck(ctx context.Context) error
}
