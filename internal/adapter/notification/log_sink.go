// Package notification delivers operator-significant engine events to
// outward channels. The log sink is the built-in channel; webhook or
// chat sinks plug in behind the same port.
package notification

import (
	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
)

// OperatorEventTypes are the events a human on call wants to see
var OperatorEventTypes = []string{
	event.TypeCheckpointCreated,
	event.TypeLoopDetected,
	event.TypeErrorPaused,
	event.TypeProjectCompleted,
	event.TypeBreakerTripped,
}

// LogSink writes notifications to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink over the given logger
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notify")}
}

// Notify logs one event with its payload
func (s *LogSink) Notify(ev *event.Event) {
	s.logger.Info("operator notification",
		zap.String("project_id", ev.ProjectID.String()),
		zap.String("type", ev.Type),
		zap.Any("payload", ev.Payload),
	)
}

var _ output.NotificationSink = (*LogSink)(nil)

// Bridge subscribes a sink to every operator-significant event type on
// the bus. The returned function unsubscribes all of them.
func Bridge(bus *eventbus.Bus, sink output.NotificationSink) func() {
	var unsubs []eventbus.UnsubscribeFunc
	for _, eventType := range OperatorEventTypes {
		unsubs = append(unsubs, bus.Subscribe(eventType, "", sink.Notify))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
