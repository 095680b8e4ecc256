// Package agent adapts external code-generation backends to the Agent
// Invocation Port and parses their structured decision output.
package agent

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
)

//go:embed decision_schema.json
var decisionSchemaJSON string

// ProtocolError reports a decision response that violates the agent
// contract (missing/invalid required fields). It is not a business
// failure: the orchestrator pauses with an error instead of retrying.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("agent protocol violation: %s", e.Detail)
}

// DecisionSchema returns the JSON Schema decision responses must satisfy,
// passed to the agent as the requested output schema.
func DecisionSchema() string {
	return decisionSchemaJSON
}

// decisionPayload is the raw wire shape before it becomes a typed variant
type decisionPayload struct {
	Action          string `json:"action"`
	Reasoning       string `json:"reasoning"`
	Confidence      string `json:"confidence"`
	TaskID          string `json:"task_id"`
	TaskDescription string `json:"task_description"`
	Phase           string `json:"phase"`
	Reason          string `json:"reason"`
	CheckpointType  string `json:"checkpoint_type"`
	Question        string `json:"question"`
	Context         string `json:"context"`
	Scope           string `json:"scope"`
	Milestone       string `json:"milestone"`
}

// DecisionParser validates agent decision output against the embedded
// schema and converts it into the typed decision union.
type DecisionParser struct {
	schema *jsonschema.Schema
}

// NewDecisionParser compiles the embedded decision schema
func NewDecisionParser() (*DecisionParser, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decision_schema.json", strings.NewReader(decisionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add decision schema: %w", err)
	}
	schema, err := compiler.Compile("decision_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	return &DecisionParser{schema: schema}, nil
}

// Parse turns raw agent output into a typed decision. Any contract
// violation returns a ProtocolError.
func (p *DecisionParser) Parse(raw string) (execution.Decision, error) {
	raw = extractJSON(raw)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decision is not valid JSON: %v", err)}
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decision schema violation: %v", err)}
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decode decision: %v", err)}
	}
	return payload.toDecision()
}

func (d decisionPayload) toDecision() (execution.Decision, error) {
	confidence := execution.Confidence(d.Confidence)
	if d.Confidence == "" {
		confidence = execution.ConfidenceMedium
	}
	rationale := execution.Rationale{Reasoning: d.Reasoning, Confidence: confidence}

	switch execution.DecisionKind(d.Action) {
	case execution.DecisionKindExecuteTask:
		return execution.ExecuteTask{
			Rationale:       rationale,
			TaskID:          d.TaskID,
			TaskDescription: d.TaskDescription,
			Phase:           execution.Phase(d.Phase),
		}, nil
	case execution.DecisionKindReplan:
		return execution.Replan{Rationale: rationale, Reason: d.Reason}, nil
	case execution.DecisionKindCheckpoint:
		return execution.RequestCheckpoint{
			Rationale:      rationale,
			CheckpointType: checkpoint.Type(d.CheckpointType),
			Question:       d.Question,
			Context:        d.Context,
		}, nil
	case execution.DecisionKindComplete:
		return execution.Complete{
			Rationale: rationale,
			Scope:     execution.CompleteScope(d.Scope),
			Milestone: d.Milestone,
		}, nil
	case execution.DecisionKindSkipTask:
		return execution.SkipTask{Rationale: rationale, TaskID: d.TaskID, Reason: d.Reason}, nil
	default:
		return nil, &ProtocolError{Detail: fmt.Sprintf("unknown decision action %q", d.Action)}
	}
}

// extractJSON strips surrounding prose or a markdown fence the agent may
// wrap around the JSON object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			return raw[start : end+1]
		}
	}
	return raw
}
