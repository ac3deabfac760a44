package bus

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/petal-labs/eventsheet/runtime"
)

// MemEventStore keeps events in memory. It is safe for concurrent use and
// is what `eventsheet run` uses when no store path is configured.
type MemEventStore struct {
	mu   sync.RWMutex
	runs map[string]*memRun
}

// memRun holds the events of one run sorted by Seq, and its summary.
type memRun struct {
	summary RunSummary
	events  []runtime.Event
}

func NewMemEventStore() *MemEventStore {
	return &MemEventStore{runs: map[string]*memRun{}}
}

func bySeq(e runtime.Event, seq uint64) int { return cmp.Compare(e.Seq, seq) }

func (s *MemEventStore) Append(_ context.Context, event runtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.runs[event.RunID]
	if r == nil {
		r = &memRun{summary: RunSummary{RunID: event.RunID}}
		s.runs[event.RunID] = r
	}
	i, found := slices.BinarySearchFunc(r.events, event.Seq, bySeq)
	if found {
		return fmt.Errorf("%w: run %s seq %d", ErrDuplicateSeq, event.RunID, event.Seq)
	}
	r.events = slices.Insert(r.events, i, event)
	r.summary.add(event)
	return nil
}

func (s *MemEventStore) List(_ context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.runs[runID]
	if r == nil {
		return nil, nil
	}
	start, found := slices.BinarySearchFunc(r.events, afterSeq, bySeq)
	if found {
		start++
	}
	tail := r.events[start:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	return slices.Clone(tail), nil
}

func (s *MemEventStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.runs[runID]; r != nil && len(r.events) > 0 {
		return r.events[len(r.events)-1].Seq, nil
	}
	return 0, nil
}

func (s *MemEventStore) Runs(_ context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	out := make([]RunSummary, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.summary)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b RunSummary) int {
		if c := b.Started.Compare(a.Started); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
	return out, nil
}

var _ EventStore = (*MemEventStore)(nil)
