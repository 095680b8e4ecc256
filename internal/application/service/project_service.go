package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
)

// ProjectService handles project lifecycle outside the control loop:
// creation, status aggregation, and feeding checkpoint answers back
// into execution state.
type ProjectService struct {
	projects    repository.ProjectRepository
	states      repository.ExecutionStateRepository
	checkpoints *CheckpointService
	bus         *eventbus.Bus
	logger      *zap.Logger
}

// NewProjectService creates a project service
func NewProjectService(
	projects repository.ProjectRepository,
	states repository.ExecutionStateRepository,
	checkpoints *CheckpointService,
	bus *eventbus.Bus,
	logger *zap.Logger,
) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		projects:    projects,
		states:      states,
		checkpoints: checkpoints,
		bus:         bus,
		logger:      logger,
	}
}

// Create registers a project with its initial plan. The execution state
// starts at initializing; the first loop iteration moves it to deciding.
func (s *ProjectService) Create(ctx context.Context, name, workDir string, planYAML []byte) (*project.Project, error) {
	proj, err := project.New(name, workDir)
	if err != nil {
		return nil, err
	}

	state := execution.NewExecutionState(proj.ID())
	if len(planYAML) > 0 {
		plan, perr := execution.ParsePlan(planYAML)
		if perr != nil {
			return nil, fmt.Errorf("parse initial plan: %w", perr)
		}
		if serr := state.SetPlan(plan); serr != nil {
			return nil, serr
		}
	}

	if err := s.projects.Save(ctx, proj); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	if err := s.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save execution state: %w", err)
	}

	s.logger.Info("project created",
		zap.String("project_id", proj.ID().String()),
		zap.String("name", proj.Name()),
	)
	return proj, nil
}

// ProjectStatus aggregates everything an operator needs in one view
type ProjectStatus struct {
	Project     *project.Project
	State       *execution.ExecutionState
	PlanSummary string
	Pending     []*checkpoint.Checkpoint
}

// Status loads the combined project/execution/checkpoint snapshot
func (s *ProjectService) Status(ctx context.Context, projectID project.ID) (*ProjectStatus, error) {
	proj, err := s.projects.Find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	pending, err := s.checkpoints.ListPending(ctx, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project: proj,
		State:   state,
		Pending: pending,
	}
	if plan, perr := state.Plan(); perr == nil && plan != nil {
		status.PlanSummary = plan.Summary()
	}
	return status, nil
}

// List returns all projects
func (s *ProjectService) List(ctx context.Context) ([]*project.Project, error) {
	return s.projects.List(ctx)
}

// AnswerCheckpoint records a human answer and threads it into the
// project's last outcome, so the next decision call sees it. Answering
// does not resume the loop; that stays an explicit operator action.
func (s *ProjectService) AnswerCheckpoint(ctx context.Context, id checkpoint.ID, response string) (*checkpoint.Checkpoint, error) {
	cp, err := s.checkpoints.Answer(ctx, id, response)
	if err != nil || cp == nil {
		return cp, err
	}

	state, err := s.states.Find(ctx, cp.ProjectID())
	if err != nil {
		return cp, fmt.Errorf("load execution state: %w", err)
	}
	state.RecordOutcome(execution.CheckpointAnswered(cp.Question(), cp.Response()))
	if err := s.states.Save(ctx, state); err != nil {
		return cp, fmt.Errorf("persist execution state: %w", err)
	}
	return cp, nil
}

// PauseStored pauses a project whose loop is not running in this
// process by transitioning its durable state directly.
func (s *ProjectService) PauseStored(ctx context.Context, projectID project.ID, reason string) error {
	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		return err
	}
	if err := state.TransitionTo(execution.StatePausedUserRequested); err != nil {
		return err
	}
	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("persist execution state: %w", err)
	}

	proj, err := s.projects.Find(ctx, projectID)
	if err != nil {
		return err
	}
	if proj.Status() != project.StatusPaused {
		if err := proj.ChangeStatus(project.StatusPaused); err != nil {
			return err
		}
		if err := s.projects.Save(ctx, proj); err != nil {
			return err
		}
	}
	s.bus.Emit(ctx, projectID, event.TypeProjectPaused, map[string]any{
		"state":  execution.StatePausedUserRequested.String(),
		"reason": reason,
	})
	return nil
}

// Events replays the durable event log from an id cursor
func (s *ProjectService) Events(ctx context.Context, projectID project.ID, sinceID int64, limit int) ([]*event.Event, error) {
	return s.bus.ReplaySince(ctx, projectID, sinceID, limit)
}
