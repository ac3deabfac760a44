package bus

import (
	"context"
	"log/slog"

	"github.com/petal-labs/eventsheet/runtime"
)

// StoreSubscriber persists run events. Use Handle as a runtime.EventHandler
// for a single run, or Consume to drain a bus subscription shared by many
// runs (the schedule command does this).
type StoreSubscriber struct {
	store  EventStore
	logger *slog.Logger
}

func NewStoreSubscriber(store EventStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{store: store, logger: logger.With("component", "event-store")}
}

// Handle appends event. A failed append is logged and the run goes on.
func (s *StoreSubscriber) Handle(event runtime.Event) {
	err := s.store.Append(context.Background(), event)
	if err == nil {
		return
	}
	s.logger.Error("event not persisted",
		"run_id", event.RunID, "kind", event.Kind, "seq", event.Seq, "error", err)
}

// Consume appends events from sub until the subscription is closed or ctx
// is done, and returns the number of events sub dropped on the way.
func (s *StoreSubscriber) Consume(ctx context.Context, sub Subscription) uint64 {
	defer func() {
		if n := sub.Dropped(); n > 0 {
			s.logger.Warn("event store fell behind the bus", "dropped", n)
		}
	}()
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return sub.Dropped()
		case e, open := <-events:
			if !open {
				return sub.Dropped()
			}
			s.Handle(e)
		}
	}
}
