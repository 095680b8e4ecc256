package orchestrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// verifyNoLeaks ignores the sql pool's opener goroutine: the harness
// closes the database in t.Cleanup, which runs after deferred checks.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func TestSupervisor_RunsProjectToCompletion(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	h.gateway.ScriptDecision(`{
		"action": "execute_task",
		"reasoning": "run t1",
		"task_id": "t1",
		"task_description": "Scaffold HTTP handlers",
		"phase": "execute"
	}`)
	h.gateway.Script(&output.AgentResponse{Status: output.AgentCompleted, Output: "done"}, nil)
	h.gateway.ScriptDecision(`{"action": "complete", "reasoning": "enough", "scope": "project"}`)

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	sup.Wait(h.proj.ID())

	state := h.state(t)
	assert.Equal(t, execution.StateCompleted, state.State)
	assert.False(t, sup.Running(h.proj.ID()))

	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_StartRejectsDoubleRun(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	// Keep the first loop alive briefly: checkpoint pauses it
	h.gateway.ScriptDecision(`{
		"action": "checkpoint",
		"reasoning": "stop here",
		"checkpoint_type": "approval",
		"question": "Continue?"
	}`)

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	// Either the loop is still registered (ErrLoopRunning) or it has
	// already parked on the checkpoint (paused, resume required).
	assert.Error(t, sup.Start(ctx, h.proj.ID()))
	sup.Wait(h.proj.ID())
	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_CapacityBound(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 1, zap.NewNop())
	ctx := context.Background()

	second, err := h.projectSvc.Create(ctx, "second-project", "/tmp/second", []byte(testPlanYAML))
	require.NoError(t, err)

	// Block the first loop on an unscripted gateway: the mock returns an
	// execution failure, which re-enters the loop, then pauses on the
	// next unparsable decision. Script a checkpoint to park it cleanly.
	h.gateway.ScriptDecision(`{
		"action": "checkpoint",
		"reasoning": "park",
		"checkpoint_type": "approval",
		"question": "Proceed?"
	}`)

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	if sup.Running(h.proj.ID()) {
		err = sup.Start(ctx, second.ID())
		assert.ErrorIs(t, err, ErrCapacity)
	}
	sup.Wait(h.proj.ID())
	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_StopAbandonsExecution(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	h.gateway.ScriptDecision(`{
		"action": "checkpoint",
		"reasoning": "park",
		"checkpoint_type": "approval",
		"question": "Proceed?"
	}`)

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	sup.Wait(h.proj.ID())

	require.NoError(t, sup.Stop(ctx, h.proj.ID()))

	state := h.state(t)
	assert.Equal(t, execution.StateAbandoned, state.State)

	proj, err := h.projects.Find(ctx, h.proj.ID())
	require.NoError(t, err)
	assert.Equal(t, project.StatusStopped, proj.Status())

	// Stopped projects cannot be started or resumed
	assert.Error(t, sup.Start(ctx, h.proj.ID()))
	assert.Error(t, sup.Resume(ctx, h.proj.ID()))

	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_PauseAtBoundaryAndResume(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	// Park the loop via checkpoint, answer it, then resume and complete
	h.gateway.ScriptDecision(`{
		"action": "checkpoint",
		"reasoning": "need approval",
		"checkpoint_type": "approval",
		"question": "Ship it?"
	}`)

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	sup.Wait(h.proj.ID())

	state := h.state(t)
	require.Equal(t, execution.StatePausedAwaitingInput, state.State)

	pending, err := h.checkpoint.ListPending(ctx, h.proj.ID())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = h.projectSvc.AnswerCheckpoint(ctx, pending[0].ID(), "Ship it")
	require.NoError(t, err)

	h.gateway.ScriptDecision(`{"action": "complete", "reasoning": "approved", "scope": "project"}`)
	require.NoError(t, sup.Resume(ctx, h.proj.ID()))
	sup.Wait(h.proj.ID())

	state = h.state(t)
	assert.Equal(t, execution.StateCompleted, state.State)

	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_OperatorPauseRequest(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	// Plenty of scripted work keeps the loop spinning until the pause
	// request lands at an iteration boundary.
	for i := 0; i < 200; i++ {
		h.gateway.ScriptDecision(`{
			"action": "execute_task",
			"reasoning": "keep going",
			"task_id": "t1",
			"task_description": "Scaffold HTTP handlers",
			"phase": "execute"
		}`)
		h.gateway.Script(&output.AgentResponse{Status: output.AgentCompleted, Output: "ok"}, nil)
	}

	require.NoError(t, sup.Start(ctx, h.proj.ID()))
	require.NoError(t, sup.Pause(ctx, h.proj.ID(), "maintenance window"))
	sup.Wait(h.proj.ID())

	state := h.state(t)
	// The operator pause lands at a boundary, or the script runs out
	// and the loop parks on the resulting failure. Paused either way.
	assert.True(t, state.State.IsPaused(), "state: %s", state.State)

	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisor_ShutdownCancelsLoops(t *testing.T) {
	defer verifyNoLeaks(t)

	h := newHarness(t)
	sup := NewSupervisor(h.orch, 4, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		h.gateway.ScriptDecision(`{
			"action": "complete",
			"reasoning": "milestone done",
			"scope": "milestone",
			"milestone": "API skeleton"
		}`)
	}

	require.NoError(t, sup.Start(ctx, h.proj.ID()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(shutdownCtx))
	assert.Equal(t, 0, sup.ActiveCount())
}
