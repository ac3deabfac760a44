package bus

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/eventsheet/runtime"
)

// testDSN returns a unique shared-memory DSN for test isolation.
func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func newTestStore(t *testing.T, cfg ...SQLiteStoreConfig) *SQLiteEventStore {
	t.Helper()
	var c SQLiteStoreConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.DSN == "" {
		c.DSN = testDSN(t)
	}
	store, err := NewSQLiteEventStore(c)
	if err != nil {
		t.Fatalf("NewSQLiteEventStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeEvent(runID string, seq uint64, kind runtime.EventKind) runtime.Event {
	e := runtime.NewEvent(kind, runID)
	e.Seq = seq
	return e
}

func TestSQLiteEventStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := makeEvent("run-1", 1, runtime.EventTriggered).
		WithScene("Level", 42).
		WithElapsed(3*time.Millisecond).
		WithPayload("path", "1.2").
		WithPayload("name", "Scoring")
	in.TraceID = "trace-abc"
	in.SpanID = "span-def"
	if err := store.Append(ctx, in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := store.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.Kind != runtime.EventTriggered || got.Scene != "Level" || got.Tick != 42 {
		t.Errorf("got kind=%q scene=%q tick=%d", got.Kind, got.Scene, got.Tick)
	}
	if got.Elapsed != 3*time.Millisecond {
		t.Errorf("Elapsed = %v, want 3ms", got.Elapsed)
	}
	if got.TraceID != "trace-abc" || got.SpanID != "span-def" {
		t.Errorf("trace = %q/%q", got.TraceID, got.SpanID)
	}
	if !got.Time.Equal(in.Time) {
		t.Errorf("Time = %v, want %v", got.Time, in.Time)
	}
	want := map[string]any{"path": "1.2", "name": "Scoring"}
	if diff := cmp.Diff(want, got.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteEventStore_NumericPayloadDecodesAsFloat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := makeEvent("run-1", 1, runtime.EventTickFinished).WithPayload("objects", 3)
	store.Append(ctx, e)

	events, _ := store.List(ctx, "run-1", 0, 0)
	if v := events[0].Payload["objects"]; v != float64(3) {
		t.Errorf("objects = %v (%T), want float64 3", v, v)
	}
}

func TestSQLiteEventStore_NilPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := makeEvent("run-1", 1, runtime.EventRunStarted)
	e.Payload = nil
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	events, _ := store.List(ctx, "run-1", 0, 0)
	if events[0].Payload == nil || len(events[0].Payload) != 0 {
		t.Errorf("Payload = %v, want empty map", events[0].Payload)
	}
}

func TestSQLiteEventStore_DuplicateSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := makeEvent("run-1", 1, runtime.EventRunStarted)
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, e); !errors.Is(err, ErrDuplicateSeq) {
		t.Fatalf("duplicate (run_id, seq): err = %v, want ErrDuplicateSeq", err)
	}
	if runs, _ := store.Runs(ctx); len(runs) != 1 || runs[0].Events != 1 {
		t.Errorf("rejected append changed the run summary: %+v", runs)
	}
}

func TestSQLiteEventStore_ListCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 10; i++ {
		if err := store.Append(ctx, makeEvent("run-1", i, runtime.EventTickFinished)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	store.Append(ctx, makeEvent("run-2", 1, runtime.EventTickFinished))

	tests := []struct {
		afterSeq uint64
		limit    int
		want     []uint64
	}{
		{0, 3, []uint64{1, 2, 3}},
		{7, 0, []uint64{8, 9, 10}},
		{5, 2, []uint64{6, 7}},
		{10, 0, []uint64{}},
	}
	for _, tt := range tests {
		got, err := store.List(ctx, "run-1", tt.afterSeq, tt.limit)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if diff := cmp.Diff(tt.want, seqs(got)); diff != "" {
			t.Errorf("List(after=%d, limit=%d) mismatch (-want +got):\n%s", tt.afterSeq, tt.limit, diff)
		}
	}
}

func TestSQLiteEventStore_LatestSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if seq, err := store.LatestSeq(ctx, "run-1"); err != nil || seq != 0 {
		t.Fatalf("LatestSeq on empty = %d, %v", seq, err)
	}
	for _, seq := range []uint64{2, 9, 4} {
		store.Append(ctx, makeEvent("run-1", seq, runtime.EventTickFinished))
	}
	if seq, _ := store.LatestSeq(ctx, "run-1"); seq != 9 {
		t.Errorf("LatestSeq = %d, want 9", seq)
	}
}

func TestSQLiteEventStore_Runs(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	appendRun(t, store, "old", "Pong", base, true)
	appendRun(t, store, "new", "Breakout", base.Add(time.Minute), false)

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	want := []RunSummary{
		{RunID: "new", Game: "Breakout", Events: 2, Started: base.Add(time.Minute)},
		{RunID: "old", Game: "Pong", Status: "completed", Events: 3, Started: base},
	}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Errorf("Runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteEventStore_PruneByAge(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{RetentionAge: time.Hour, PruneInterval: time.Hour})
	ctx := context.Background()

	old := makeEvent("run-old", 1, runtime.EventRunStarted)
	old.Time = time.Now().Add(-2 * time.Hour)
	store.Append(ctx, old)
	store.Append(ctx, makeEvent("run-new", 1, runtime.EventRunStarted))

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got, _ := store.List(ctx, "run-old", 0, 0); len(got) != 0 {
		t.Errorf("old run kept %d events", len(got))
	}
	if got, _ := store.List(ctx, "run-new", 0, 0); len(got) != 1 {
		t.Errorf("new run has %d events, want 1", len(got))
	}
}

func TestSQLiteEventStore_PruneByRuns(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{RetentionRuns: 2, PruneInterval: time.Hour})
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		appendRun(t, store, fmt.Sprintf("run-%d", i), "Pong", base.Add(time.Duration(i)*time.Minute), true)
	}
	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	runs, _ := store.Runs(ctx)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	if diff := cmp.Diff([]string{"run-3", "run-2"}, ids); diff != "" {
		t.Errorf("kept runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteEventStore_PersistenceAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	first, err := NewSQLiteEventStore(SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 3; i++ {
		first.Append(ctx, makeEvent("run-1", i, runtime.EventTickFinished))
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newTestStore(t, SQLiteStoreConfig{DSN: dsn})
	if seq, _ := second.LatestSeq(ctx, "run-1"); seq != 3 {
		t.Errorf("LatestSeq after reopen = %d, want 3", seq)
	}
}

func TestSQLiteEventStore_ConcurrentReadWrite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	store := newTestStore(t, SQLiteStoreConfig{DSN: dsn})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 50; i++ {
			if err := store.Append(ctx, makeEvent("run-1", i, runtime.EventTickFinished)); err != nil {
				errs <- err
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := store.List(ctx, "run-1", 0, 0); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access: %v", err)
	}

	if seq, _ := store.LatestSeq(ctx, "run-1"); seq != 50 {
		t.Errorf("LatestSeq = %d, want 50", seq)
	}
}

func TestSQLiteEventStore_CloseIdempotentPruner(t *testing.T) {
	store, err := NewSQLiteEventStore(SQLiteStoreConfig{
		DSN:           testDSN(t),
		RetentionRuns: 1,
		PruneInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSQLiteEventStore: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

var _ EventStore = (*SQLiteEventStore)(nil)
