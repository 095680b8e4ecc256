package service

import (
	"fmt"
	"strings"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
)

// PromptBuilderService renders the prompts sent across the Agent
// Invocation Port: the "what next" decision prompt and per-phase task
// prompts.
type PromptBuilderService struct{}

// NewPromptBuilderService creates a prompt builder
func NewPromptBuilderService() *PromptBuilderService {
	return &PromptBuilderService{}
}

// BuildDecisionPrompt renders the decision call: plan digest, last
// outcome, and the answer of the most recently resolved checkpoint.
func (s *PromptBuilderService) BuildDecisionPrompt(plan *execution.Plan, outcome execution.LastOutcome, cycle int) string {
	var b strings.Builder
	b.WriteString("You are orchestrating an autonomous build workflow.\n\n")
	fmt.Fprintf(&b, "Cycle: %d\n\nCurrent plan:\n%s\n\n", cycle, plan.Summary())

	b.WriteString("Previous iteration: ")
	b.WriteString(describeOutcome(outcome))
	b.WriteString("\n\n")

	b.WriteString("Decide the single next step. Respond with one JSON object " +
		"matching the provided schema: action is one of execute_task, replan, " +
		"checkpoint, complete, skip_task, with reasoning and confidence.\n")
	return b.String()
}

// BuildTaskPrompt renders a phase execution prompt
func (s *PromptBuilderService) BuildTaskPrompt(phase execution.Phase, taskDescription string, plan *execution.Plan) string {
	var b strings.Builder
	switch phase {
	case execution.PhaseReview:
		b.WriteString("Review the changes for the task below. Report problems and a score from 0 to 100.\n\n")
	case execution.PhaseTest:
		b.WriteString("Write and run tests for the task below. Report failures verbatim.\n\n")
	case execution.PhasePropose:
		b.WriteString("Prepare a commit proposal for the task below: summary, file list, commit message.\n\n")
	case execution.PhaseResearch:
		b.WriteString("Research the codebase for the task below and summarize relevant findings.\n\n")
	default:
		b.WriteString("Implement the task below. Keep changes minimal and focused.\n\n")
	}
	fmt.Fprintf(&b, "Task: %s\n\nProject plan context:\n%s\n", taskDescription, plan.Summary())
	return b.String()
}

// BuildReplanPrompt renders the plan-regeneration prompt
func (s *PromptBuilderService) BuildReplanPrompt(plan *execution.Plan, reason string) string {
	var b strings.Builder
	b.WriteString("Produce a fresh project plan as YAML with goal and milestones, " +
		"each milestone holding tasks with id, description, phase and status fields.\n\n")
	if reason != "" {
		fmt.Fprintf(&b, "Replan reason: %s\n\n", reason)
	}
	if !plan.IsEmpty() {
		fmt.Fprintf(&b, "Previous plan:\n%s\n", plan.Summary())
	}
	return b.String()
}

func describeOutcome(o execution.LastOutcome) string {
	switch o.Kind {
	case execution.OutcomeNone:
		return "none (first iteration)"
	case execution.OutcomeTaskSucceeded:
		return fmt.Sprintf("task %s succeeded in phase %s", o.TaskID, o.Phase)
	case execution.OutcomeTaskFailed:
		return fmt.Sprintf("task %s FAILED in phase %s (%s): %s", o.TaskID, o.Phase, o.Reason, o.Detail)
	case execution.OutcomeReplanned:
		return "plan was regenerated"
	case execution.OutcomeTaskSkipped:
		return fmt.Sprintf("task %s was skipped: %s", o.TaskID, o.Detail)
	case execution.OutcomeMilestoneComplete:
		return fmt.Sprintf("milestone %q completed", o.Milestone)
	case execution.OutcomeCheckpointAnswered:
		return fmt.Sprintf("human answered %q with: %s", o.Detail, o.Answer)
	default:
		return string(o.Kind)
	}
}
