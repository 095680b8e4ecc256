package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// memoryEventRepo is an in-memory EventRepository for bus tests
type memoryEventRepo struct {
	mu     sync.Mutex
	events []*event.Event
	nextID int64
	fail   bool
}

func (r *memoryEventRepo) Append(ctx context.Context, ev *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("append failed")
	}
	r.nextID++
	ev.ID = r.nextID
	r.events = append(r.events, ev)
	return nil
}

func (r *memoryEventRepo) Since(ctx context.Context, projectID project.ID, sinceID int64, limit int) ([]*event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*event.Event
	for _, ev := range r.events {
		if ev.ProjectID == projectID && ev.ID > sinceID {
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

const p1 = project.ID("proj-1")

func TestBus_EmitNotifiesTypeAndWildcardSubscribers(t *testing.T) {
	bus := New(&memoryEventRepo{}, zap.NewNop())

	var order []string
	bus.Subscribe(event.TypePhaseCompleted, "", func(ev *event.Event) {
		order = append(order, "typed")
	})
	bus.Subscribe(WildcardType, "", func(ev *event.Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe(event.TypeCheckpointCreated, "", func(ev *event.Event) {
		order = append(order, "other-type")
	})

	ev := bus.Emit(context.Background(), p1, event.TypePhaseCompleted, map[string]any{"phase": "execute"})

	require.Equal(t, []string{"typed", "wildcard"}, order, "registration order, non-matching skipped")
	assert.Equal(t, int64(1), ev.ID, "store assigned the monotonic id")
}

func TestBus_ProjectScopedSubscription(t *testing.T) {
	bus := New(&memoryEventRepo{}, zap.NewNop())

	var got []project.ID
	bus.Subscribe(WildcardType, p1, func(ev *event.Event) {
		got = append(got, ev.ProjectID)
	})

	bus.Emit(context.Background(), p1, event.TypePhaseStarted, nil)
	bus.Emit(context.Background(), project.ID("proj-2"), event.TypePhaseStarted, nil)

	assert.Equal(t, []project.ID{p1}, got)
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	bus := New(&memoryEventRepo{}, zap.NewNop())

	called := false
	bus.Subscribe(WildcardType, "", func(ev *event.Event) {
		panic("subscriber bug")
	})
	bus.Subscribe(WildcardType, "", func(ev *event.Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), p1, event.TypePhaseStarted, nil)
	})
	assert.True(t, called, "later subscribers still run")
}

func TestBus_AppendFailureStillNotifies(t *testing.T) {
	bus := New(&memoryEventRepo{fail: true}, zap.NewNop())

	notified := false
	bus.Subscribe(WildcardType, "", func(ev *event.Event) {
		notified = true
	})

	ev := bus.Emit(context.Background(), p1, event.TypePhaseStarted, nil)
	assert.True(t, notified)
	assert.Zero(t, ev.ID, "unpersisted event carries no store id")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(&memoryEventRepo{}, zap.NewNop())

	count := 0
	unsub := bus.Subscribe(WildcardType, "", func(ev *event.Event) { count++ })

	bus.Emit(context.Background(), p1, event.TypePhaseStarted, nil)
	unsub()
	bus.Emit(context.Background(), p1, event.TypePhaseStarted, nil)

	assert.Equal(t, 1, count)
}

func TestBus_ReplaySince(t *testing.T) {
	repo := &memoryEventRepo{}
	bus := New(repo, zap.NewNop())
	ctx := context.Background()

	bus.Emit(ctx, p1, event.TypePhaseStarted, nil)
	bus.Emit(ctx, p1, event.TypePhaseCompleted, nil)
	bus.Emit(ctx, p1, event.TypeDecisionMade, nil)

	events, err := bus.ReplaySince(ctx, p1, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypePhaseCompleted, events[0].Type)
	assert.Equal(t, event.TypeDecisionMade, events[1].Type)
}
