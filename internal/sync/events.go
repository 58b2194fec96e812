package sync

import "time"

// EventType identifies a sync notification pushed to UI-facing listeners.
type EventType string

const (
	EventPassStarted       EventType = "sync.pass_started"
	EventPassCompleted     EventType = "sync.pass_completed"
	EventPassFailed        EventType = "sync.pass_failed"
	EventOpFailed          EventType = "sync.op_failed"
	EventConflictDetected  EventType = "sync.conflict_detected"
	EventCachesInvalidated EventType = "sync.caches_invalidated"
)

// Event is a sync notification. Data keys are event-specific.
type Event struct {
	Type      EventType
	Data      map[string]interface{}
	Timestamp time.Time
}

// EventHandler receives sync events. Handlers must not block: they run on
// the sync goroutine.
type EventHandler func(Event)

// emit delivers an event to the handler, if one is set.
func (e *Engine) emit(t EventType, data map[string]interface{}) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(Event{Type: t, Data: data, Timestamp: time.Now()})
}
