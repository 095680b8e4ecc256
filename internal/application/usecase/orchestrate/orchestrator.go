// Package orchestrate holds the per-project control loop: on each
// iteration it checks for loop/churn conditions, asks the external agent
// "what next", and dispatches the decision into a state transition.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
	"github.com/StatsAiGuy/exeflow/internal/application/service"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
	"github.com/StatsAiGuy/exeflow/internal/domain/service/detect"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/fingerprint"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/metrics"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/resilience"
)

// DecisionParser converts raw agent output into a typed decision.
// Every error it returns is by contract a protocol failure.
type DecisionParser interface {
	Parse(raw string) (execution.Decision, error)
}

// Config tunes the orchestrator
type Config struct {
	Model           string
	DecisionTimeout time.Duration
	TaskTimeout     time.Duration
	MaxTurns        int
	AllowedTools    []string // tool allowlist passed to executor calls
	DetectorWindow  int
	ChurnThreshold  int
	AgentBackoff    resilience.BackoffConfig
	OutputSchema    string // JSON Schema sent with decision calls
}

func (c Config) withDefaults() Config {
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 2 * time.Minute
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 15 * time.Minute
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 30
	}
	if c.AgentBackoff == (resilience.BackoffConfig{}) {
		c.AgentBackoff = resilience.DefaultBackoffConfig()
	}
	return c
}

// Orchestrator drives one iteration of the control loop at a time.
// All per-project steps are strictly sequential: there is never more
// than one in-flight agent call per project.
type Orchestrator struct {
	config Config

	projects    repository.ProjectRepository
	states      repository.ExecutionStateRepository
	histories   repository.PhaseHistoryRepository
	checkpoints *service.CheckpointService
	prompts     *service.PromptBuilderService

	gateway output.AgentGateway
	parser  DecisionParser
	breaker *resilience.CircuitBreaker

	loopDetector  *detect.LoopDetector
	churnDetector *detect.ChurnDetector
	hasher        *fingerprint.Hasher

	bus     *eventbus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Projects    repository.ProjectRepository
	States      repository.ExecutionStateRepository
	Histories   repository.PhaseHistoryRepository
	Checkpoints *service.CheckpointService
	Prompts     *service.PromptBuilderService
	Gateway     output.AgentGateway
	Parser      DecisionParser
	Breaker     *resilience.CircuitBreaker
	Hasher      *fingerprint.Hasher
	Bus         *eventbus.Bus
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// New creates an orchestrator
func New(config Config, deps Deps) *Orchestrator {
	config = config.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("agent", resilience.DefaultBreakerConfig())
	}
	return &Orchestrator{
		config:        config,
		projects:      deps.Projects,
		states:        deps.States,
		histories:     deps.Histories,
		checkpoints:   deps.Checkpoints,
		prompts:       deps.Prompts,
		gateway:       deps.Gateway,
		parser:        deps.Parser,
		breaker:       breaker,
		loopDetector:  detect.NewLoopDetector(config.DetectorWindow),
		churnDetector: detect.NewChurnDetector(config.ChurnThreshold),
		hasher:        deps.Hasher,
		bus:           deps.Bus,
		metrics:       m,
		logger:        logger,
	}
}

// RunIteration executes one pass of the loop body. It returns false when
// the loop must stop (terminal, paused, or awaiting input); any error is
// an engine-level failure the caller converts into paused_error.
func (o *Orchestrator) RunIteration(ctx context.Context, projectID project.ID) (bool, error) {
	state, err := o.states.Find(ctx, projectID)
	if err != nil {
		return false, fmt.Errorf("load execution state: %w", err)
	}
	if state.State.IsTerminal() || state.State.IsPaused() {
		return false, nil
	}

	if state.State == execution.StateInitializing {
		if err := o.transition(ctx, state, execution.StateDeciding); err != nil {
			return false, err
		}
	}

	// Pattern check runs before any new decision call is issued. Entries
	// written before the last human escalation are excluded: once a loop
	// checkpoint was answered, only fresh evidence may trip again.
	entries, err := o.histories.Recent(ctx, projectID, o.loopDetector.Window())
	if err != nil {
		return false, fmt.Errorf("load phase history: %w", err)
	}
	if result := o.loopDetector.Detect(entriesSince(entries, state.LastEscalationAt)); result.Detected {
		return false, o.escalateLoop(ctx, state, result)
	}

	decision, err := o.decide(ctx, state)
	if err != nil {
		return false, err
	}

	return o.dispatch(ctx, state, decision)
}

// decide asks the agent "what next" through breaker and backoff
func (o *Orchestrator) decide(ctx context.Context, state *execution.ExecutionState) (execution.Decision, error) {
	plan, err := state.Plan()
	if err != nil {
		return nil, err
	}

	proj, err := o.projects.Find(ctx, state.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	req := output.AgentRequest{
		Role:         output.RoleDecider,
		Model:        o.config.Model,
		Prompt:       o.prompts.BuildDecisionPrompt(plan, state.LastOutcome, state.CycleNumber),
		WorkDir:      proj.WorkDir(),
		OutputSchema: o.config.OutputSchema,
		Timeout:      o.config.DecisionTimeout,
	}

	resp, err := o.invokeAgent(ctx, req)
	if err != nil {
		var berr *output.BusinessError
		if errors.As(err, &berr) {
			return nil, o.pause(ctx, state, execution.StatePausedError,
				fmt.Sprintf("decision call failed (%s): %s", berr.Kind, berr.Detail))
		}
		// Dependency failure after exhausted retries: the loop cannot
		// re-decide without the agent, so pause for the network
		return nil, o.pause(ctx, state, execution.StatePausedNetwork, err.Error())
	}

	decision, err := o.parser.Parse(resp.Output)
	if err != nil {
		// Protocol failure: not retried, requires operator attention
		return nil, o.pause(ctx, state, execution.StatePausedError, err.Error())
	}

	o.metrics.Decisions.WithLabelValues(string(decision.Kind())).Inc()
	o.bus.Emit(ctx, state.ProjectID, event.TypeDecisionMade, map[string]any{
		"kind":       string(decision.Kind()),
		"reasoning":  decision.Why(),
		"confidence": string(decision.ConfidenceLevel()),
	})
	return decision, nil
}

// errPaused marks iterations ended by a deliberate pause; the supervisor
// treats it as a clean stop, not an engine failure.
var errPaused = errors.New("project paused")

// invokeAgent wraps one Agent Invocation Port call with circuit breaker
// and backoff. Only transport-level failures count against the breaker
// and are retried; a reported business failure comes back as a typed
// *output.BusinessError for the caller to classify.
func (o *Orchestrator) invokeAgent(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	var resp *output.AgentResponse
	err := resilience.WithBackoff(ctx, o.config.AgentBackoff, func(ctx context.Context) error {
		return o.breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := o.gateway.Invoke(ctx, req)
			if err != nil {
				return err
			}
			if r.Status == output.AgentFailed && r.FailureKind == output.FailureKindTransport {
				return fmt.Errorf("agent transport failure: %s", r.FailureDetail)
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("agent unavailable after retries: %w", err)
	}
	if resp.Status == output.AgentFailed {
		return nil, &output.BusinessError{Kind: resp.FailureKind, Detail: resp.FailureDetail, Response: resp}
	}
	return resp, nil
}

// failedResponse converts an invocation error back into a failed
// response so the task outcome path records both failure classes the
// same way. A business failure keeps the response as reported; a
// transport exhaustion synthesizes one.
func failedResponse(err error, elapsed time.Duration) *output.AgentResponse {
	var berr *output.BusinessError
	if errors.As(err, &berr) && berr.Response != nil {
		return berr.Response
	}
	return &output.AgentResponse{
		Status:        output.AgentFailed,
		FailureKind:   output.FailureKindTransport,
		FailureDetail: err.Error(),
		Duration:      elapsed,
	}
}

// dispatch routes one typed decision into a state transition
func (o *Orchestrator) dispatch(ctx context.Context, state *execution.ExecutionState, decision execution.Decision) (bool, error) {
	switch d := decision.(type) {
	case execution.ExecuteTask:
		return o.executeTask(ctx, state, d)
	case execution.Replan:
		return o.replan(ctx, state, d)
	case execution.RequestCheckpoint:
		return false, o.requestCheckpoint(ctx, state, d)
	case execution.Complete:
		return o.complete(ctx, state, d)
	case execution.SkipTask:
		return o.skipTask(ctx, state, d)
	default:
		return false, o.pause(ctx, state, execution.StatePausedError,
			fmt.Sprintf("unhandled decision kind %s", decision.Kind()))
	}
}

// executeTask runs one phase and records its outcome; the loop then
// re-enters at the deciding sentinel regardless of success or failure.
func (o *Orchestrator) executeTask(ctx context.Context, state *execution.ExecutionState, d execution.ExecuteTask) (bool, error) {
	phase := d.Phase
	if !phase.IsValid() {
		phase = execution.PhaseExecute
	}
	if err := o.transition(ctx, state, execution.StateForPhase(phase)); err != nil {
		return false, err
	}
	o.bus.Emit(ctx, state.ProjectID, event.TypePhaseStarted, map[string]any{
		"phase": phase.String(),
		"task":  d.TaskDescription,
	})

	proj, err := o.projects.Find(ctx, state.ProjectID)
	if err != nil {
		return false, fmt.Errorf("load project: %w", err)
	}
	plan, err := state.Plan()
	if err != nil {
		return false, err
	}

	req := output.AgentRequest{
		Role:         output.RoleExecutor,
		Phase:        phase,
		Model:        o.config.Model,
		Prompt:       o.prompts.BuildTaskPrompt(phase, d.TaskDescription, plan),
		WorkDir:      proj.WorkDir(),
		AllowedTools: o.config.AllowedTools,
		MaxTurns:     o.config.MaxTurns,
		Timeout:      o.config.TaskTimeout,
	}

	start := time.Now()
	resp, err := o.invokeAgent(ctx, req)
	if err != nil {
		// Any failure here is a business failure for this task: the
		// next decision call chooses how to proceed
		resp = failedResponse(err, time.Since(start))
	}

	var score *int
	if phase == execution.PhaseReview && resp.Status == output.AgentCompleted {
		score = parseReviewScore(resp.Output)
	}

	entry := history.NewEntry(state.ProjectID, state.CycleNumber, phase, d.TaskDescription, outcomeOf(resp)).
		WithDuration(resp.Duration)
	if score != nil {
		entry.WithScore(*score)
	}

	if len(resp.TouchedFiles) > 0 {
		if fp, ferr := o.hasher.Changes(resp.TouchedFiles); ferr == nil {
			entry.WithFingerprint(fp)
		}
		o.recordTouches(ctx, state, resp.TouchedFiles)
	}

	if err := o.histories.Append(ctx, entry); err != nil {
		return false, fmt.Errorf("append phase history: %w", err)
	}
	o.metrics.PhaseExecutions.WithLabelValues(phase.String(), string(entry.Outcome)).Inc()

	if resp.Status == output.AgentFailed {
		o.bus.Emit(ctx, state.ProjectID, event.TypePhaseFailed, map[string]any{
			"phase":  phase.String(),
			"task":   d.TaskDescription,
			"reason": string(resp.FailureKind),
			"detail": resp.FailureDetail,
		})
		state.RecordOutcome(execution.TaskFailed(d.TaskID, phase, failureReason(resp.FailureKind), resp.FailureDetail))
		state.MarkStuck(time.Now())
	} else {
		o.bus.Emit(ctx, state.ProjectID, event.TypePhaseCompleted, map[string]any{
			"phase": phase.String(),
			"task":  d.TaskDescription,
		})
		if d.TaskID != "" {
			if merr := plan.MarkTaskDone(d.TaskID); merr == nil {
				if serr := state.SetPlan(plan); serr != nil {
					return false, serr
				}
			}
		}
		state.RecordOutcome(execution.TaskSucceeded(d.TaskID, phase, resp.Output, score))
		state.ClearStuck()
	}

	// Re-enter the loop to re-decide
	return true, o.transition(ctx, state, execution.StateDeciding)
}

// replan asks the agent for a fresh plan snapshot
func (o *Orchestrator) replan(ctx context.Context, state *execution.ExecutionState, d execution.Replan) (bool, error) {
	if err := o.transition(ctx, state, execution.StatePlanning); err != nil {
		return false, err
	}

	plan, err := state.Plan()
	if err != nil {
		return false, err
	}
	proj, err := o.projects.Find(ctx, state.ProjectID)
	if err != nil {
		return false, fmt.Errorf("load project: %w", err)
	}

	req := output.AgentRequest{
		Role:    output.RolePlanner,
		Phase:   execution.PhasePlan,
		Model:   o.config.Model,
		Prompt:  o.prompts.BuildReplanPrompt(plan, d.Reason),
		WorkDir: proj.WorkDir(),
		Timeout: o.config.TaskTimeout,
	}

	resp, err := o.invokeAgent(ctx, req)
	if err != nil {
		var berr *output.BusinessError
		if errors.As(err, &berr) {
			return false, o.pause(ctx, state, execution.StatePausedError,
				fmt.Sprintf("replan failed (%s): %s", berr.Kind, berr.Detail))
		}
		return false, o.pause(ctx, state, execution.StatePausedNetwork, err.Error())
	}

	newPlan, err := execution.ParsePlan([]byte(resp.Output))
	if err != nil {
		return false, o.pause(ctx, state, execution.StatePausedError,
			fmt.Sprintf("replan produced unparsable plan: %v", err))
	}
	if err := state.SetPlan(newPlan); err != nil {
		return false, err
	}
	state.RecordOutcome(execution.Replanned(d.Reason))
	o.bus.Emit(ctx, state.ProjectID, event.TypePlanUpdated, map[string]any{"reason": d.Reason})

	return true, o.transition(ctx, state, execution.StateDeciding)
}

// requestCheckpoint creates the human-input request and pauses the loop
func (o *Orchestrator) requestCheckpoint(ctx context.Context, state *execution.ExecutionState, d execution.RequestCheckpoint) error {
	ctype := d.CheckpointType
	if !ctype.IsValid() {
		ctype = checkpoint.TypeClarification
	}
	if _, err := o.checkpoints.Create(ctx, state.ProjectID, ctype, d.Question, d.Context); err != nil {
		return err
	}
	return o.pause(ctx, state, execution.StatePausedAwaitingInput, d.Question)
}

// complete finishes the project or records a milestone and keeps looping
func (o *Orchestrator) complete(ctx context.Context, state *execution.ExecutionState, d execution.Complete) (bool, error) {
	if d.Scope == execution.ScopeProject {
		state.Complete()
		if err := o.states.Save(ctx, state); err != nil {
			return false, err
		}
		if err := o.setProjectStatus(ctx, state.ProjectID, project.StatusComplete); err != nil {
			return false, err
		}
		o.bus.Emit(ctx, state.ProjectID, event.TypeProjectCompleted, map[string]any{
			"cycles": state.CycleNumber,
		})
		o.logger.Info("project completed", zap.String("project_id", state.ProjectID.String()))
		return false, nil
	}

	plan, err := state.Plan()
	if err != nil {
		return false, err
	}
	if d.Milestone != "" {
		if merr := plan.MarkMilestoneDone(d.Milestone); merr == nil {
			if serr := state.SetPlan(plan); serr != nil {
				return false, serr
			}
		}
	}
	state.RecordOutcome(execution.MilestoneComplete(d.Milestone))
	state.AdvanceCycle()
	return true, o.transition(ctx, state, execution.StateDeciding)
}

// skipTask marks the referenced plan task skipped and keeps looping
func (o *Orchestrator) skipTask(ctx context.Context, state *execution.ExecutionState, d execution.SkipTask) (bool, error) {
	plan, err := state.Plan()
	if err != nil {
		return false, err
	}
	if merr := plan.MarkTaskSkipped(d.TaskID, d.Reason); merr == nil {
		if serr := state.SetPlan(plan); serr != nil {
			return false, serr
		}
	}
	state.RecordOutcome(execution.TaskSkipped(d.TaskID, d.Reason))
	o.bus.Emit(ctx, state.ProjectID, event.TypeTaskSkipped, map[string]any{
		"task_id": d.TaskID,
		"reason":  d.Reason,
	})
	return true, o.transition(ctx, state, execution.StateDeciding)
}

// escalateLoop pauses the project and raises a clarification checkpoint
// describing the detected pattern and its evidence.
func (o *Orchestrator) escalateLoop(ctx context.Context, state *execution.ExecutionState, result detect.LoopResult) error {
	o.metrics.LoopDetections.WithLabelValues(string(result.Pattern)).Inc()
	o.bus.Emit(ctx, state.ProjectID, event.TypeLoopDetected, map[string]any{
		"pattern":  string(result.Pattern),
		"evidence": result.Evidence,
	})
	o.logger.Warn("loop pattern detected",
		zap.String("project_id", state.ProjectID.String()),
		zap.String("pattern", string(result.Pattern)),
		zap.String("evidence", result.Evidence),
	)

	question := fmt.Sprintf(
		"The workflow appears stuck in a %s loop (%s). How should it proceed?",
		result.Pattern, result.Evidence,
	)
	if _, err := o.checkpoints.Create(ctx, state.ProjectID, checkpoint.TypeClarification, question, result.Evidence); err != nil {
		return err
	}
	state.MarkEscalated(time.Now())
	return o.pause(ctx, state, execution.StatePausedLoopDetected, result.Evidence)
}

// entriesSince drops history entries at or before the given cutoff
func entriesSince(entries []*history.Entry, cutoff *time.Time) []*history.Entry {
	if cutoff == nil {
		return entries
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if e.CreatedAt.After(*cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// recordTouches logs file modifications and emits churn diagnostics
func (o *Orchestrator) recordTouches(ctx context.Context, state *execution.ExecutionState, paths []string) {
	now := time.Now().UTC()
	for _, path := range paths {
		touch := &history.FileTouch{
			ProjectID:   state.ProjectID,
			CycleNumber: state.CycleNumber,
			Path:        path,
			CreatedAt:   now,
		}
		if err := o.histories.AppendTouch(ctx, touch); err != nil {
			o.logger.Warn("record file touch failed", zap.String("path", path), zap.Error(err))
		}
	}

	touches, err := o.histories.Touches(ctx, state.ProjectID, state.CycleNumber)
	if err != nil {
		return
	}
	if churned := o.churnDetector.Detect(touches); len(churned) > 0 {
		payload := map[string]any{}
		for _, c := range churned {
			payload[c.Path] = c.Count
		}
		o.bus.Emit(ctx, state.ProjectID, event.TypeChurnDetected, payload)
	}
}

// transition moves and persists the cursor; every dispatch persists
// before the loop re-enters, so a crash resumes from durable state.
func (o *Orchestrator) transition(ctx context.Context, state *execution.ExecutionState, next execution.State) error {
	from := state.State
	if err := state.TransitionTo(next); err != nil {
		return err
	}
	if err := o.states.Save(ctx, state); err != nil {
		return fmt.Errorf("persist execution state: %w", err)
	}
	o.bus.Emit(ctx, state.ProjectID, event.TypeStateTransition, map[string]any{
		"from": from.String(),
		"to":   next.String(),
	})
	return nil
}

// pause transitions to a paused state, records the reason, and returns
// errPaused so the caller stops the loop without treating it as failure.
func (o *Orchestrator) pause(ctx context.Context, state *execution.ExecutionState, paused execution.State, reason string) error {
	if paused == execution.StatePausedError || paused == execution.StatePausedNetwork {
		o.logger.Error("pausing project",
			zap.String("project_id", state.ProjectID.String()),
			zap.String("state", paused.String()),
			zap.String("reason", reason),
		)
		o.bus.Emit(ctx, state.ProjectID, event.TypeErrorPaused, map[string]any{
			"state":  paused.String(),
			"reason": reason,
		})
	}
	if err := o.transition(ctx, state, paused); err != nil {
		return err
	}
	if err := o.setProjectStatus(ctx, state.ProjectID, project.StatusPaused); err != nil {
		return err
	}
	o.bus.Emit(ctx, state.ProjectID, event.TypeProjectPaused, map[string]any{
		"state":  paused.String(),
		"reason": reason,
	})
	return errPaused
}

func (o *Orchestrator) setProjectStatus(ctx context.Context, projectID project.ID, status project.Status) error {
	proj, err := o.projects.Find(ctx, projectID)
	if err != nil {
		return err
	}
	if proj.Status() == status {
		return nil
	}
	if err := proj.ChangeStatus(status); err != nil {
		return err
	}
	return o.projects.Save(ctx, proj)
}

var reviewScoreRe = regexp.MustCompile(`(?i)\bscore\b[^0-9]{0,12}(\d{1,3})`)

// parseReviewScore pulls the 0-100 score a review phase reports.
// Reviews that never state a score stay unscored.
func parseReviewScore(s string) *int {
	m := reviewScoreRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return nil
	}
	return &n
}

func outcomeOf(resp *output.AgentResponse) history.Outcome {
	if resp.Status == output.AgentFailed {
		return history.OutcomeFailure
	}
	return history.OutcomeSuccess
}

func failureReason(kind output.FailureKind) execution.FailureReason {
	switch kind {
	case output.FailureKindMaxTurns:
		return execution.FailureMaxTurns
	case output.FailureKindBudget:
		return execution.FailureBudget
	case output.FailureKindOutputRetries:
		return execution.FailureOutputRetries
	case output.FailureKindTransport:
		return execution.FailureDependency
	default:
		return execution.FailureExecutionError
	}
}
