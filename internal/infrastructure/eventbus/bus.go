// Package eventbus provides in-process publish/subscribe with a durable,
// replayable append log per project. It is the seam between the engine
// and every observer (UI, notifications, transcripts).
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
)

// Handler consumes one event
type Handler func(ev *event.Event)

// UnsubscribeFunc removes a subscription
type UnsubscribeFunc func()

// WildcardType subscribes a handler to every event type
const WildcardType = "*"

type subscription struct {
	id        int64
	eventType string
	projectID project.ID // empty = all projects
	handler   Handler
}

// Bus dispatches events synchronously to subscribers in registration
// order and appends them to the durable log. Durability is best-effort:
// a failed append never suppresses in-memory notification.
type Bus struct {
	repo   repository.EventRepository
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int64
	subs   []subscription
}

// New creates a bus over the given durable event log
func New(repo repository.EventRepository, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{repo: repo, logger: logger}
}

// Subscribe registers a handler for one event type (or WildcardType),
// optionally scoped to a single project by passing a non-empty id.
func (b *Bus) Subscribe(eventType string, projectID project.ID, handler Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{
		id:        id,
		eventType: eventType,
		projectID: projectID,
		handler:   handler,
	})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit appends the event to the durable log, then notifies matching
// subscribers in registration order. A panicking subscriber must not
// prevent other subscribers from running nor propagate to the emitter.
func (b *Bus) Emit(ctx context.Context, projectID project.ID, eventType string, payload map[string]any) *event.Event {
	ev := event.New(projectID, eventType, payload)

	if err := b.repo.Append(ctx, ev); err != nil {
		b.logger.Warn("event append failed, notifying in-memory only",
			zap.String("project_id", projectID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.eventType != WildcardType && s.eventType != eventType {
			continue
		}
		if s.projectID != "" && s.projectID != projectID {
			continue
		}
		b.notify(s, ev)
	}
	return ev
}

func (b *Bus) notify(s subscription, ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.String("event_type", ev.Type),
				zap.Any("panic", r),
			)
		}
	}()
	s.handler(ev)
}

// ReplaySince returns ordered historical events for reconnecting
// observers: all events for the project with ID greater than sinceID.
func (b *Bus) ReplaySince(ctx context.Context, projectID project.ID, sinceID int64, limit int) ([]*event.Event, error) {
	return b.repo.Since(ctx, projectID, sinceID, limit)
}
