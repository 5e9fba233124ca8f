package groupchat

import "time"

// EventType classifies stream events delivered to external consumers.
type EventType string

const (
	EventStatus      EventType = "status"
	EventAgentStart  EventType = "agent_start"
	EventAgentUpdate EventType = "agent_update"
	EventAgentDone   EventType = "agent_complete"
	EventSection     EventType = "section_update"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
)

// Event is one unit of streamed progress. Data is optional structured
// payload (section snapshots, usage counters).
type Event struct {
	Type      EventType              `json:"type"`
	Agent     string                 `json:"agent,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// EventSink receives progress events from the round loop. Emission happens
// on the loop goroutine, so implementations must not block for long.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// NopSink discards all events.
var NopSink EventSink = EventSinkFunc(func(Event) {})

func newEvent(typ EventType, agent, message string) Event {
	return Event{
		Type:      typ,
		Agent:     agent,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
