package bus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/petal-labs/eventsheet/runtime"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// timeLayout is fixed width so stored times order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// SQLiteStoreConfig configures the SQLite event store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string, usually a file path.
	DSN string

	// RetentionAge drops events recorded longer ago than this. Zero
	// disables age based pruning.
	RetentionAge time.Duration

	// RetentionRuns keeps only the most recently started runs. Zero keeps
	// every run.
	RetentionRuns int

	// PruneInterval is the period of the background pruner (default 1h).
	PruneInterval time.Duration
}

// SQLiteEventStore keeps run events in SQLite. Each run also has a row in
// a runs table, updated in the same transaction as its events, which
// answers Runs without scanning the event log. WAL mode lets
// `eventsheet events` read while a scheduled run is writing.
type SQLiteEventStore struct {
	db  *sql.DB
	cfg SQLiteStoreConfig

	stop chan struct{}
	done chan struct{}
}

// NewSQLiteEventStore opens the database at cfg.DSN, creating the schema
// if needed. A pruner goroutine is started when a retention limit is set.
func NewSQLiteEventStore(cfg SQLiteStoreConfig) (*SQLiteEventStore, error) {
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Hour
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", cfg.DSN, err)
	}
	for _, stmt := range append(sqlitePragmas, sqliteSchema) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitestore: init: %w", err)
		}
	}

	s := &SQLiteEventStore{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.RetentionAge > 0 || cfg.RetentionRuns > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Append stores event and folds it into its run's summary row.
func (s *SQLiteEventStore) Append(ctx context.Context, event runtime.Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode payload of %s: %w", event.Kind, err)
	}
	at := event.Time.UTC().Format(timeLayout)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, seq, kind, scene, tick, time, elapsed, payload, trace_id, span_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.RunID, event.Seq, string(event.Kind), event.Scene, event.Tick,
			at, int64(event.Elapsed), string(encoded), event.TraceID, event.SpanID,
		); err != nil {
			var serr *sqlite.Error
			// every other column has a default, so a constraint failure is the (run_id, seq) key
			if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
				return fmt.Errorf("%w: run %s seq %d", ErrDuplicateSeq, event.RunID, event.Seq)
			}
			return fmt.Errorf("sqlitestore: append %s/%d: %w", event.RunID, event.Seq, err)
		}

		game, status := runFields(event)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, game, status, started, events) VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT (run_id) DO UPDATE SET
			     game    = CASE WHEN excluded.game <> '' THEN excluded.game ELSE runs.game END,
			     status  = CASE WHEN excluded.status <> '' THEN excluded.status ELSE runs.status END,
			     started = MIN(runs.started, excluded.started),
			     events  = runs.events + 1`,
			event.RunID, game, status, at,
		); err != nil {
			return fmt.Errorf("sqlitestore: update run %s: %w", event.RunID, err)
		}
		return nil
	})
}

// List returns the events of runID with Seq above afterSeq, in Seq order.
func (s *SQLiteEventStore) List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error) {
	query := `SELECT seq, kind, scene, tick, time, elapsed, payload, trace_id, span_id
	          FROM events WHERE run_id = ? AND seq > ? ORDER BY seq`
	args := []any{runID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list %s: %w", runID, err)
	}
	defer rows.Close()

	var out []runtime.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		e.RunID = runID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list %s: %w", runID, err)
	}
	return out, nil
}

// LatestSeq returns the highest stored Seq of runID, or 0.
func (s *SQLiteEventStore) LatestSeq(ctx context.Context, runID string) (uint64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?`, runID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: latest seq of %s: %w", runID, err)
	}
	if seq < 0 {
		return 0, nil
	}
	return uint64(seq), nil // #nosec G115 -- checked non-negative above
}

// Runs lists the stored runs, most recently started first.
func (s *SQLiteEventStore) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, game, status, started, events FROM runs
		 WHERE events > 0 ORDER BY started DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			started string
		)
		if err := rows.Scan(&r.RunID, &r.Game, &r.Status, &started, &r.Events); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run: %w", err)
		}
		if r.Started, err = parseStoredTime(started); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: runs: %w", err)
	}
	return runs, nil
}

// Close stops the pruner and closes the database. Calling it twice is safe
// until the database itself reports the second close.
func (s *SQLiteEventStore) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

// Prune applies the retention policy once. Age pruning drops individual
// events and then recounts the runs they belonged to; run pruning drops
// whole runs beyond the newest RetentionRuns.
func (s *SQLiteEventStore) Prune(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if s.cfg.RetentionAge > 0 {
			cutoff := time.Now().Add(-s.cfg.RetentionAge).UTC().Format(timeLayout)
			res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE time < ?`, cutoff)
			if err != nil {
				return fmt.Errorf("sqlitestore: prune by age: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if _, err := tx.ExecContext(ctx,
					`UPDATE runs SET
					     events  = (SELECT COUNT(*) FROM events e WHERE e.run_id = runs.run_id),
					     started = COALESCE((SELECT MIN(time) FROM events e WHERE e.run_id = runs.run_id), started)`,
				); err != nil {
					return fmt.Errorf("sqlitestore: recount runs: %w", err)
				}
			}
		}

		if s.cfg.RetentionRuns > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM runs WHERE run_id NOT IN (
				     SELECT run_id FROM runs WHERE events > 0
				     ORDER BY started DESC, run_id LIMIT ?)`,
				s.cfg.RetentionRuns,
			); err != nil {
				return fmt.Errorf("sqlitestore: prune by runs: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE events = 0`); err != nil {
			return fmt.Errorf("sqlitestore: drop empty runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE run_id NOT IN (SELECT run_id FROM runs)`,
		); err != nil {
			return fmt.Errorf("sqlitestore: drop orphaned events: %w", err)
		}
		return nil
	})
}

func (s *SQLiteEventStore) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}

func (s *SQLiteEventStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, ignoreDone(tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (runtime.Event, error) {
	var (
		e       runtime.Event
		kind    string
		at      string
		elapsed int64
		payload string
	)
	if err := row.Scan(&e.Seq, &kind, &e.Scene, &e.Tick, &at, &elapsed, &payload, &e.TraceID, &e.SpanID); err != nil {
		return e, fmt.Errorf("sqlitestore: scan event: %w", err)
	}
	e.Kind = runtime.EventKind(kind)
	e.Elapsed = time.Duration(elapsed)

	var err error
	if e.Time, err = parseStoredTime(at); err != nil {
		return e, err
	}
	e.Payload = map[string]any{}
	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return e, fmt.Errorf("sqlitestore: decode payload of %s: %w", kind, err)
		}
	}
	return e, nil
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: stored time %q: %w", s, err)
	}
	return t, nil
}

var _ EventStore = (*SQLiteEventStore)(nil)
