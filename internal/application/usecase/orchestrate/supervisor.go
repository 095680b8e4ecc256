package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// ErrLoopRunning is returned when a start would double-run a project
var ErrLoopRunning = errors.New("project loop already running")

// ErrLoopNotRunning is returned by controls that need an active loop
var ErrLoopNotRunning = errors.New("project loop not running")

// ErrCapacity is returned when the concurrent-loop limit is reached
var ErrCapacity = errors.New("concurrent loop limit reached")

// loopHandle tracks one running project loop. cancel stops the loop's
// context; done closes when the goroutine has fully exited.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	pauseNext   bool
	pauseReason string
}

func (h *loopHandle) requestPause(reason string) {
	h.mu.Lock()
	h.pauseNext = true
	h.pauseReason = reason
	h.mu.Unlock()
}

func (h *loopHandle) takePause() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pauseNext {
		return "", false
	}
	h.pauseNext = false
	return h.pauseReason, true
}

// Supervisor owns the loop registry: one goroutine per started project,
// bounded by MaxConcurrent. It is the only component that creates or
// joins loop goroutines; everything else asks it.
type Supervisor struct {
	orchestrator *Orchestrator
	states       repository.ExecutionStateRepository
	logger       *zap.Logger

	maxConcurrent int

	mu    sync.Mutex
	loops map[project.ID]*loopHandle

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewSupervisor creates a supervisor with the given concurrency bound;
// non-positive means unbounded.
func NewSupervisor(orch *Orchestrator, maxConcurrent int, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		orchestrator:  orch,
		states:        orch.states,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		loops:         make(map[project.ID]*loopHandle),
		baseCtx:       ctx,
		baseCancel:    cancel,
	}
}

// Start launches the control loop for a project. The project must not
// already be running, and its execution state must not be terminal.
func (s *Supervisor) Start(ctx context.Context, projectID project.ID) error {
	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load execution state: %w", err)
	}
	if state.State.IsTerminal() {
		return fmt.Errorf("project %s is %s", projectID, state.State)
	}
	if state.State.IsPaused() {
		return fmt.Errorf("project %s is paused; resume it instead", projectID)
	}

	s.mu.Lock()
	if _, running := s.loops[projectID]; running {
		s.mu.Unlock()
		return ErrLoopRunning
	}
	if s.maxConcurrent > 0 && len(s.loops) >= s.maxConcurrent {
		s.mu.Unlock()
		return ErrCapacity
	}
	handle := s.launch(projectID)
	s.loops[projectID] = handle
	s.mu.Unlock()

	if err := s.orchestrator.setProjectStatus(ctx, projectID, project.StatusRunning); err != nil {
		s.logger.Warn("set project status running failed", zap.Error(err))
	}
	s.orchestrator.bus.Emit(ctx, projectID, event.TypeProjectStarted, nil)
	return nil
}

// Resume re-enters a paused project at the deciding sentinel and starts
// its loop. Prior context reaches the agent through the recorded last
// outcome, not through a replayed transition.
func (s *Supervisor) Resume(ctx context.Context, projectID project.ID) error {
	s.mu.Lock()
	_, running := s.loops[projectID]
	s.mu.Unlock()
	if running {
		return ErrLoopRunning
	}

	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load execution state: %w", err)
	}
	if err := state.Resume(); err != nil {
		return err
	}
	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("persist execution state: %w", err)
	}

	s.mu.Lock()
	if _, running := s.loops[projectID]; running {
		s.mu.Unlock()
		return ErrLoopRunning
	}
	if s.maxConcurrent > 0 && len(s.loops) >= s.maxConcurrent {
		s.mu.Unlock()
		return ErrCapacity
	}
	handle := s.launch(projectID)
	s.loops[projectID] = handle
	s.mu.Unlock()

	if err := s.orchestrator.setProjectStatus(ctx, projectID, project.StatusRunning); err != nil {
		s.logger.Warn("set project status running failed", zap.Error(err))
	}
	s.orchestrator.bus.Emit(ctx, projectID, event.TypeProjectResumed, nil)
	return nil
}

// Pause requests a pause at the next iteration boundary. The in-flight
// agent call, if any, runs to completion first.
func (s *Supervisor) Pause(ctx context.Context, projectID project.ID, reason string) error {
	s.mu.Lock()
	handle, running := s.loops[projectID]
	s.mu.Unlock()
	if !running {
		return ErrLoopNotRunning
	}
	handle.requestPause(reason)
	return nil
}

// Stop cancels the project's loop immediately, joins the goroutine, and
// marks the execution abandoned. Stop on a non-running project still
// abandons its durable state.
func (s *Supervisor) Stop(ctx context.Context, projectID project.ID) error {
	s.mu.Lock()
	handle, running := s.loops[projectID]
	if running {
		delete(s.loops, projectID)
	}
	s.mu.Unlock()

	if running {
		handle.cancel()
		<-handle.done
	}

	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load execution state: %w", err)
	}
	if state.State == execution.StateCompleted {
		return nil
	}
	if !state.State.IsTerminal() {
		state.Abandon()
		if err := s.states.Save(ctx, state); err != nil {
			return fmt.Errorf("persist execution state: %w", err)
		}
	}
	if err := s.orchestrator.setProjectStatus(ctx, projectID, project.StatusStopped); err != nil {
		return err
	}
	s.orchestrator.bus.Emit(ctx, projectID, event.TypeProjectStopped, nil)
	return nil
}

// Running reports whether a project's loop is currently active
func (s *Supervisor) Running(projectID project.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.loops[projectID]
	return running
}

// ActiveCount returns the number of running loops
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// Shutdown cancels every loop and waits for all goroutines to exit
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.baseCancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until a project's loop goroutine exits. It returns
// immediately when no loop is running.
func (s *Supervisor) Wait(projectID project.ID) {
	s.mu.Lock()
	handle, running := s.loops[projectID]
	s.mu.Unlock()
	if running {
		<-handle.done
	}
}

func (s *Supervisor) launch(projectID project.ID) *loopHandle {
	loopCtx, cancel := context.WithCancel(s.baseCtx)
	handle := &loopHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.orchestrator.metrics.ActiveLoops.Inc()
	s.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			s.orchestrator.metrics.ActiveLoops.Dec()
			s.mu.Lock()
			if s.loops[projectID] == handle {
				delete(s.loops, projectID)
			}
			s.mu.Unlock()
			close(handle.done)
			s.wg.Done()
		}()
		s.runLoop(loopCtx, projectID, handle)
	}()
	return handle
}

// runLoop is the goroutine body: iterate until terminal, paused,
// stopped, or a pause was requested at the boundary.
func (s *Supervisor) runLoop(ctx context.Context, projectID project.ID, handle *loopHandle) {
	logger := s.logger.With(zap.String("project_id", projectID.String()))
	logger.Info("control loop started")

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("control loop cancelled")
			return
		}
		if reason, requested := handle.takePause(); requested {
			s.pauseAtBoundary(projectID, reason, logger)
			return
		}

		cont, err := s.orchestrator.RunIteration(ctx, projectID)
		if err != nil {
			if errors.Is(err, errPaused) {
				logger.Info("control loop paused")
				return
			}
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				logger.Info("control loop cancelled")
				return
			}
			// Engine-level failure: pause rather than crash-loop
			logger.Error("iteration failed", zap.Error(err))
			s.pauseOnError(projectID, err, logger)
			return
		}
		if !cont {
			logger.Info("control loop finished")
			return
		}
	}
}

// pauseAtBoundary handles an operator pause request between iterations
func (s *Supervisor) pauseAtBoundary(projectID project.ID, reason string, logger *zap.Logger) {
	ctx := context.Background()
	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		logger.Error("pause: load execution state failed", zap.Error(err))
		return
	}
	if state.State.IsTerminal() || state.State.IsPaused() {
		return
	}
	if err := state.TransitionTo(execution.StatePausedUserRequested); err != nil {
		logger.Error("pause: transition failed", zap.Error(err))
		return
	}
	if err := s.states.Save(ctx, state); err != nil {
		logger.Error("pause: persist failed", zap.Error(err))
		return
	}
	if err := s.orchestrator.setProjectStatus(ctx, projectID, project.StatusPaused); err != nil {
		logger.Warn("pause: set project status failed", zap.Error(err))
	}
	s.orchestrator.bus.Emit(ctx, projectID, event.TypeProjectPaused, map[string]any{
		"state":  execution.StatePausedUserRequested.String(),
		"reason": reason,
	})
	logger.Info("control loop paused by operator", zap.String("reason", reason))
}

// pauseOnError moves the project to paused_error after an engine failure
func (s *Supervisor) pauseOnError(projectID project.ID, cause error, logger *zap.Logger) {
	ctx := context.Background()
	state, err := s.states.Find(ctx, projectID)
	if err != nil {
		logger.Error("error pause: load execution state failed", zap.Error(err))
		return
	}
	if state.State.IsTerminal() || state.State.IsPaused() {
		return
	}
	if err := state.TransitionTo(execution.StatePausedError); err != nil {
		logger.Error("error pause: transition failed", zap.Error(err))
		return
	}
	if err := s.states.Save(ctx, state); err != nil {
		logger.Error("error pause: persist failed", zap.Error(err))
		return
	}
	if err := s.orchestrator.setProjectStatus(ctx, projectID, project.StatusPaused); err != nil {
		logger.Warn("error pause: set project status failed", zap.Error(err))
	}
	s.orchestrator.bus.Emit(ctx, projectID, event.TypeErrorPaused, map[string]any{
		"state":  execution.StatePausedError.String(),
		"reason": cause.Error(),
	})
}
