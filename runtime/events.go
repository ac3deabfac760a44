package runtime

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventKind names what an Event records.
type EventKind string

// Run lifecycle. A run emits run.started, then for each scene it enters a
// scene.started followed by one tick.finished per tick (with any
// event.triggered and diagnostic events of that tick before it), and a
// scene.changed when the scene hands over. run.finished is always last.
const (
	EventRunStarted   EventKind = "run.started"
	EventSceneStarted EventKind = "scene.started"
	EventTriggered    EventKind = "event.triggered"
	EventDiagnostic   EventKind = "diagnostic"
	EventTickFinished EventKind = "tick.finished"
	EventSceneChanged EventKind = "scene.changed"
	EventRunFinished  EventKind = "run.finished"
)

var eventKinds = []EventKind{
	EventRunStarted,
	EventSceneStarted,
	EventTriggered,
	EventDiagnostic,
	EventTickFinished,
	EventSceneChanged,
	EventRunFinished,
}

// EventKinds lists every kind a run can emit, in lifecycle order.
func EventKinds() []EventKind {
	return append([]EventKind(nil), eventKinds...)
}

// ParseEventKind accepts the wire name of a kind.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range eventKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q (want one of %v)", s, eventKinds)
}

func (k EventKind) String() string { return string(k) }

// RunLevel reports whether events of this kind belong to the run as a
// whole rather than to one scene.
func (k EventKind) RunLevel() bool {
	return k == EventRunStarted || k == EventRunFinished
}

// Event is one record of a run. Scene and Tick are empty for run-level
// kinds. Seq numbers the events of a run from 1 without gaps; TraceID and
// SpanID are hex ids filled in only when tracing is set up.
type Event struct {
	Kind    EventKind
	RunID   string
	Seq     uint64
	Scene   string
	Tick    uint64
	Time    time.Time
	Elapsed time.Duration // since the run started
	Payload map[string]any

	TraceID string
	SpanID  string
}

// NewEvent returns an event of kind stamped with the current time.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: map[string]any{},
	}
}

// WithScene places the event at tick of scene.
func (e Event) WithScene(scene string, tick uint64) Event {
	e.Scene, e.Tick = scene, tick
	return e
}

func (e Event) WithElapsed(d time.Duration) Event {
	e.Elapsed = d
	return e
}

// WithPayload sets one payload entry. The payload map is shared with the
// receiver; copy it before changing an event you did not create.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	e.Payload[key] = value
	return e
}

// EventHandler receives events synchronously on the run's goroutine.
type EventHandler func(Event)

// EventEmitter is the sink the runner writes events into.
type EventEmitter func(Event)

// EventEmitterDecorator wraps the runner's emitter, e.g. to stamp trace ids
// or to coalesce tick events.
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventPublisher is implemented by bus.EventBus; the runner publishes to it
// without depending on the bus package.
type EventPublisher interface {
	Publish(event Event)
}

// MultiEventHandler calls each non-nil handler in order.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

type seqGen struct{ n atomic.Uint64 }

func (g *seqGen) next() uint64 { return g.n.Add(1) }
