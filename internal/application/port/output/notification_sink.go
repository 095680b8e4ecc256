package output

import "github.com/StatsAiGuy/exeflow/internal/domain/model/event"

// NotificationSink receives engine events for channel-specific delivery.
// Delivery is fire-and-forget: the engine assumes nothing about sink
// availability and never blocks on one.
type NotificationSink interface {
	Notify(ev *event.Event)
}
