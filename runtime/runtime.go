// Package runtime runs games: it instantiates scenes, ticks their event
// trees on a simulated clock, follows scene changes and emits events
// describing the run.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/expression"
)

// Runtime errors
var (
	ErrNoScenes     = errors.New("game has no scenes")
	ErrUnknownScene = errors.New("unknown scene")
	ErrRunCanceled  = errors.New("run was canceled")
)

// Extensions resolves everything an event tree refers to by name.
// *registry.Registry implements it.
type Extensions interface {
	expression.Functions
	events.Instructions
}

// RunOptions controls execution behavior.
type RunOptions struct {
	// MaxTicks bounds the run (default: 600). Reaching it ends the run
	// without error and with Completed false.
	MaxTicks int

	// TimeDelta is the simulated length of one tick (default: 1/60 s).
	TimeDelta time.Duration

	// Seed seeds the random source of every scene. Zero picks a random
	// seed, reported in the Result.
	Seed uint64

	// StartScene overrides the game's first scene.
	StartScene string

	// Logger receives run progress and the output of Log actions.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// EventHandler receives events during execution.
	EventHandler EventHandler

	// EventEmitterDecorator wraps the internal event emitter.
	EventEmitterDecorator EventEmitterDecorator

	// EventBus distributes events to subscribers.
	EventBus EventPublisher
}

// DefaultRunOptions returns sensible default options.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxTicks:  600,
		TimeDelta: time.Second / 60,
	}
}

// Result summarizes a run.
type Result struct {
	RunID       string
	Game        string
	Seed        uint64
	Completed   bool // the game quit on its own
	Ticks       int  // over all scenes
	Scene       string
	Scenes      []string // in the order they were entered
	Variables   map[string]any
	Globals     map[string]any
	Objects     map[string]int // live instances per object name
	Diagnostics []core.Diagnostic
	Elapsed     time.Duration
}

// Runner executes games against one set of extensions.
type Runner struct {
	ext     Extensions
	eventCh chan Event
}

// NewRunner creates a runner resolving names with ext.
func NewRunner(ext Extensions) *Runner {
	return &Runner{
		ext:     ext,
		eventCh: make(chan Event, 100),
	}
}

// Events returns a buffered channel receiving every event. Events are
// dropped when nobody drains it.
func (r *Runner) Events() <-chan Event {
	return r.eventCh
}

type run struct {
	id      string
	opts    RunOptions
	emit    EventEmitter
	logger  *slog.Logger
	started time.Time
	result  *Result
}

// Run plays game until it quits, MaxTicks ticks have run or ctx is done.
func (r *Runner) Run(ctx context.Context, game *Game, opts RunOptions) (*Result, error) {
	if opts.MaxTicks <= 0 {
		opts.MaxTicks = DefaultRunOptions().MaxTicks
	}
	if opts.TimeDelta <= 0 {
		opts.TimeDelta = DefaultRunOptions().TimeDelta
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(game.Scenes) == 0 {
		return nil, ErrNoScenes
	}
	game.prepare(r.ext)
	startScene := opts.StartScene
	if startScene == "" {
		startScene = game.FirstScene()
	}

	runID := uuid.NewString()
	seq := &seqGen{}
	var emit EventEmitter = func(e Event) {
		e.Seq = seq.next()
		if opts.EventBus != nil {
			opts.EventBus.Publish(e)
		}
		if opts.EventHandler != nil {
			opts.EventHandler(e)
		}
		select {
		case r.eventCh <- e:
		default:
		}
	}
	if opts.EventEmitterDecorator != nil {
		emit = opts.EventEmitterDecorator(emit)
	}

	rn := &run{
		id:      runID,
		opts:    opts,
		emit:    emit,
		logger:  logger.With("run_id", runID, "game", game.Name),
		started: opts.Now(),
		result:  &Result{RunID: runID, Game: game.Name, Seed: opts.Seed},
	}

	emit(NewEvent(EventRunStarted, runID).
		WithPayload("game", game.Name).
		WithPayload("scene", startScene).
		WithPayload("max_ticks", opts.MaxTicks).
		WithPayload("seed", opts.Seed))
	rn.logger.Info("run started", "scene", startScene, "max_ticks", opts.MaxTicks, "seed", opts.Seed)

	err := r.play(ctx, rn, game, startScene)

	res := rn.result
	res.Elapsed = opts.Now().Sub(rn.started)
	finish := NewEvent(EventRunFinished, runID).
		WithElapsed(res.Elapsed).
		WithPayload("ticks", res.Ticks).
		WithPayload("completed", res.Completed)
	if err != nil {
		finish = finish.
			WithPayload("status", "failed").
			WithPayload("error", err.Error())
		rn.logger.Error("run failed", "ticks", res.Ticks, "error", err)
	} else {
		finish = finish.WithPayload("status", "completed")
		rn.logger.Info("run finished", "ticks", res.Ticks, "completed", res.Completed, "elapsed", res.Elapsed)
	}
	emit(finish)

	return res, err
}

func (r *Runner) play(ctx context.Context, rn *run, game *Game, sceneName string) error {
	globals := game.NewGlobals()
	res := rn.result

	for entered := 0; ; entered++ {
		spec, ok := game.Scene(sceneName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownScene, sceneName)
		}
		scene := spec.Instantiate(globals,
			core.WithSeed(rn.opts.Seed+uint64(entered)),
			core.WithLogger(rn.logger.With("scene", spec.Name)),
		)
		res.Scene = spec.Name
		res.Scenes = append(res.Scenes, spec.Name)

		change, err := r.playScene(ctx, rn, spec, scene)
		res.Variables = scene.Variables.Snapshot()
		res.Globals = globals.Snapshot()
		res.Objects = objectCounts(scene.Objects)
		res.Diagnostics = append(res.Diagnostics, scene.Diagnostics.Entries()...)
		if err != nil {
			return err
		}

		switch change.Kind {
		case core.SceneQuit:
			res.Completed = true
			return nil
		case core.SceneGoto:
			sceneName = change.Target
		default:
			// tick budget exhausted
			return nil
		}
	}
}

// playScene ticks scene until it requests a change, the tick budget is
// spent or ctx is done. A zero SceneChange means the budget ran out.
func (r *Runner) playScene(ctx context.Context, rn *run, spec *SceneSpec, scene *core.Scene) (core.SceneChange, error) {
	emitScene := func(kind EventKind) Event {
		return NewEvent(kind, rn.id).
			WithScene(scene.Name, scene.Clock.Frame()).
			WithElapsed(rn.opts.Now().Sub(rn.started))
	}

	eval := expression.NewEvaluator(scene, r.ext)
	exec := events.NewExecutor(eval, r.ext, spec.Events, events.WithTrigger(func(path string, ev *events.Event) {
		rn.emit(emitScene(EventTriggered).
			WithPayload("path", path).
			WithPayload("name", ev.Name))
	}))

	rn.emit(emitScene(EventSceneStarted).
		WithPayload("objects", scene.Objects.Len()).
		WithPayload("events", len(spec.Events)))
	rn.logger.Debug("scene started", "scene", scene.Name, "objects", scene.Objects.Len())

	reported := 0
	for rn.result.Ticks < rn.opts.MaxTicks {
		if err := checkRunContext(ctx); err != nil {
			return core.NoChange(), err
		}

		tickStart := rn.opts.Now()
		scene.Clock.Tick(rn.opts.TimeDelta)
		scene.Timers.Advance(rn.opts.TimeDelta)
		change := exec.ExecuteEventsScene()
		rn.result.Ticks++

		for _, d := range scene.Diagnostics.Since(reported) {
			rn.emit(emitScene(EventDiagnostic).
				WithPayload("code", d.Code).
				WithPayload("severity", d.Severity).
				WithPayload("message", d.Message).
				WithPayload("source", d.Source))
			rn.logger.Warn("sheet diagnostic", "scene", scene.Name, "code", d.Code, "message", d.Message, "source", d.Source)
		}
		reported = scene.Diagnostics.Len()

		rn.emit(emitScene(EventTickFinished).
			WithPayload("duration", rn.opts.Now().Sub(tickStart)).
			WithPayload("objects", scene.Objects.Len()))

		if change.Pending() {
			ev := emitScene(EventSceneChanged).WithPayload("from", scene.Name)
			if change.Kind == core.SceneQuit {
				ev = ev.WithPayload("quit", true)
			} else {
				ev = ev.WithPayload("to", change.Target)
			}
			rn.emit(ev)
			rn.logger.Info("scene changed", "scene", scene.Name, "change", change.String())
			return change, nil
		}
	}
	return core.NoChange(), nil
}

func checkRunContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRunCanceled, ctx.Err())
	default:
		return nil
	}
}

func objectCounts(t *core.ObjectTable) map[string]int {
	out := make(map[string]int)
	for _, name := range t.Names() {
		if n := t.Count(name); n > 0 {
			out[name] = n
		}
	}
	return out
}
