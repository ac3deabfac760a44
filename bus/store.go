package bus

import (
	"context"
	"errors"
	"time"

	"github.com/petal-labs/eventsheet/runtime"
)

// ErrDuplicateSeq is returned by Append when the run already holds an
// event with the same Seq.
var ErrDuplicateSeq = errors.New("duplicate event sequence number")

// EventStore keeps the events of finished and running runs so they can be
// listed and replayed later.
type EventStore interface {
	// Append stores an event. Seq must be unique within the run.
	Append(ctx context.Context, event runtime.Event) error

	// List returns the events of runID with Seq > afterSeq, in Seq order,
	// at most limit of them when limit > 0.
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error)

	// LatestSeq returns the highest Seq stored for runID, 0 for none.
	LatestSeq(ctx context.Context, runID string) (uint64, error)

	// Runs summarizes the stored runs, most recently started first.
	Runs(ctx context.Context) ([]RunSummary, error)
}

// RunSummary describes one stored run.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	Game    string    `json:"game,omitempty"`   // from run.started
	Status  string    `json:"status,omitempty"` // from run.finished, empty while running
	Events  int       `json:"events"`
	Started time.Time `json:"started"` // time of the earliest stored event
}

// add folds one more event of the run into the summary.
func (s *RunSummary) add(e runtime.Event) {
	s.Events++
	if s.Started.IsZero() || e.Time.Before(s.Started) {
		s.Started = e.Time
	}
	game, status := runFields(e)
	if game != "" {
		s.Game = game
	}
	if status != "" {
		s.Status = status
	}
}

// runFields extracts the summary columns an event contributes to.
func runFields(e runtime.Event) (game, status string) {
	switch e.Kind {
	case runtime.EventRunStarted:
		game, _ = e.Payload["game"].(string)
	case runtime.EventRunFinished:
		status, _ = e.Payload["status"].(string)
	}
	return game, status
}
