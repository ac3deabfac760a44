// Package bus distributes runner events to subscribers and persists them.
// The runner publishes to an EventBus; observers such as the CLI stream
// printer and the store subscriber consume it without the runner knowing
// about them.
package bus

import (
	"slices"

	"github.com/petal-labs/eventsheet/runtime"
)

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event runtime.Event)

	// Subscribe registers a subscriber for a specific run. A nil filter
	// accepts every event of the run.
	Subscribe(runID string, filter Filter) Subscription

	// SubscribeAll registers a subscriber that receives events from all runs.
	SubscribeAll(filter Filter) Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription. It is
	// closed when the subscription or the bus is closed.
	Events() <-chan runtime.Event

	// Dropped returns how many events were discarded because the
	// subscriber did not keep up.
	Dropped() uint64

	// Close unsubscribes and releases resources.
	Close() error
}

// Filter selects the events a subscription receives.
type Filter func(runtime.Event) bool

// KindFilter accepts events of the given kinds.
func KindFilter(kinds ...runtime.EventKind) Filter {
	return func(e runtime.Event) bool {
		return slices.Contains(kinds, e.Kind)
	}
}

// SceneFilter accepts events of one scene plus run-level events.
func SceneFilter(scene string) Filter {
	return func(e runtime.Event) bool {
		return e.Kind.RunLevel() || e.Scene == scene
	}
}

func (f Filter) accepts(e runtime.Event) bool {
	return f == nil || f(e)
}
