package service

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/persistence/sqlite"
)

func setupCheckpointService(t *testing.T) (*CheckpointService, *eventbus.Bus, project.ID) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.NewMigrator(db).Migrate())

	proj, err := project.New("billing-service", "/tmp/billing")
	require.NoError(t, err)
	require.NoError(t, sqlite.NewProjectRepository(db).Save(context.Background(), proj))

	bus := eventbus.New(sqlite.NewEventRepository(db), zap.NewNop())
	svc := NewCheckpointService(sqlite.NewCheckpointRepository(db), bus, zap.NewNop())
	return svc, bus, proj.ID()
}

func TestCheckpointService_CreateEmitsEvent(t *testing.T) {
	svc, bus, projectID := setupCheckpointService(t)
	ctx := context.Background()

	var got []*event.Event
	bus.Subscribe(event.TypeCheckpointCreated, projectID, func(ev *event.Event) {
		got = append(got, ev)
	})

	cp, err := svc.Create(ctx, projectID, checkpoint.TypeApproval, "Deploy to prod?", "release v2")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusPending, cp.Status())
	require.Len(t, got, 1)
	assert.Equal(t, cp.ID().String(), got[0].Payload["checkpoint_id"])
}

func TestCheckpointService_AnswerIsIdempotent(t *testing.T) {
	svc, bus, projectID := setupCheckpointService(t)
	ctx := context.Background()

	answered := 0
	bus.Subscribe(event.TypeCheckpointAnswered, projectID, func(*event.Event) { answered++ })

	cp, err := svc.Create(ctx, projectID, checkpoint.TypeClarification, "Schema?", "")
	require.NoError(t, err)

	first, err := svc.Answer(ctx, cp.ID(), "append-only")
	require.NoError(t, err)
	assert.Equal(t, "append-only", first.Response())
	assert.Equal(t, checkpoint.StatusAnswered, first.Status())

	// Repeat answers return the stored row untouched and emit nothing
	second, err := svc.Answer(ctx, cp.ID(), "something else entirely")
	require.NoError(t, err)
	assert.Equal(t, "append-only", second.Response())
	assert.Equal(t, 1, answered)
}

func TestCheckpointService_AnswerUnknownIDIsNoOp(t *testing.T) {
	svc, _, _ := setupCheckpointService(t)

	cp, err := svc.Answer(context.Background(), checkpoint.NewID(), "hello?")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointService_ListPendingOldestFirst(t *testing.T) {
	svc, _, projectID := setupCheckpointService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, projectID, checkpoint.TypeClarification, "first?", "")
	require.NoError(t, err)
	second, err := svc.Create(ctx, projectID, checkpoint.TypeReview, "second?", "")
	require.NoError(t, err)

	_, err = svc.Answer(ctx, first.ID(), "done")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID(), pending[0].ID())
}
