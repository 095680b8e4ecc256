package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
)

func newParser(t *testing.T) *DecisionParser {
	t.Helper()
	p, err := NewDecisionParser()
	require.NoError(t, err)
	return p
}

func TestDecisionParser_ExecuteTask(t *testing.T) {
	p := newParser(t)

	d, err := p.Parse(`{
		"action": "execute_task",
		"reasoning": "next pending task is the invoice endpoint",
		"confidence": "high",
		"task_id": "t-3",
		"task_description": "implement invoice endpoint",
		"phase": "execute"
	}`)
	require.NoError(t, err)

	task, ok := d.(execution.ExecuteTask)
	require.True(t, ok)
	assert.Equal(t, "t-3", task.TaskID)
	assert.Equal(t, execution.PhaseExecute, task.Phase)
	assert.Equal(t, execution.ConfidenceHigh, task.ConfidenceLevel())
	assert.Equal(t, "next pending task is the invoice endpoint", task.Why())
}

func TestDecisionParser_Checkpoint(t *testing.T) {
	p := newParser(t)

	d, err := p.Parse(`{
		"action": "checkpoint",
		"reasoning": "auth provider choice was never settled",
		"checkpoint_type": "clarification",
		"question": "Which auth provider?",
		"context": "OAuth vs SAML"
	}`)
	require.NoError(t, err)

	cp, ok := d.(execution.RequestCheckpoint)
	require.True(t, ok)
	assert.Equal(t, checkpoint.TypeClarification, cp.CheckpointType)
	assert.Equal(t, "Which auth provider?", cp.Question)
}

func TestDecisionParser_CompleteAndSkip(t *testing.T) {
	p := newParser(t)

	d, err := p.Parse(`{"action": "complete", "reasoning": "all milestone tasks done", "scope": "milestone", "milestone": "m1"}`)
	require.NoError(t, err)
	complete, ok := d.(execution.Complete)
	require.True(t, ok)
	assert.Equal(t, execution.ScopeMilestone, complete.Scope)
	assert.Equal(t, "m1", complete.Milestone)

	d, err = p.Parse(`{"action": "skip_task", "reasoning": "duplicate of t-2", "task_id": "t-5", "reason": "covered elsewhere"}`)
	require.NoError(t, err)
	skip, ok := d.(execution.SkipTask)
	require.True(t, ok)
	assert.Equal(t, "t-5", skip.TaskID)
}

func TestDecisionParser_DefaultConfidence(t *testing.T) {
	p := newParser(t)

	d, err := p.Parse(`{"action": "replan", "reasoning": "plan is stale"}`)
	require.NoError(t, err)
	assert.Equal(t, execution.ConfidenceMedium, d.ConfidenceLevel())
}

func TestDecisionParser_MissingReasoningIsProtocolError(t *testing.T) {
	p := newParser(t)

	_, err := p.Parse(`{"action": "replan"}`)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestDecisionParser_MissingActionIsProtocolError(t *testing.T) {
	p := newParser(t)

	_, err := p.Parse(`{"reasoning": "I think we should do something"}`)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestDecisionParser_VariantFieldsEnforced(t *testing.T) {
	p := newParser(t)

	// execute_task without phase/task_description
	_, err := p.Parse(`{"action": "execute_task", "reasoning": "do the thing"}`)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)

	// checkpoint without question
	_, err = p.Parse(`{"action": "checkpoint", "reasoning": "need input", "checkpoint_type": "approval"}`)
	require.ErrorAs(t, err, &perr)
}

func TestDecisionParser_NonJSONIsProtocolError(t *testing.T) {
	p := newParser(t)

	_, err := p.Parse("I would suggest executing the next task.")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestDecisionParser_StripsMarkdownFence(t *testing.T) {
	p := newParser(t)

	d, err := p.Parse("Here is my decision:\n```json\n{\"action\": \"replan\", \"reasoning\": \"scope changed\"}\n```\n")
	require.NoError(t, err)
	assert.Equal(t, execution.DecisionKindReplan, d.Kind())
}
