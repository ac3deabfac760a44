package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/eventsheet/bus"
	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
)

func ins(typ string, params ...string) events.Instruction {
	return events.NewInstruction(typ, params...)
}

// counterGame increments n every tick and quits once n reaches limit.
func counterGame(limit string) *runtime.Game {
	return &runtime.Game{
		Name: "counter",
		Scenes: []*runtime.SceneSpec{{
			Name: "Main",
			Events: []*events.Event{
				{Actions: []events.Instruction{ins("ModVarScene", "n", "1", "+")}},
				{
					Conditions: []events.Instruction{ins("VarScene", "n", limit, ">=")},
					Actions:    []events.Instruction{ins("Quit")},
				},
			},
		}},
	}
}

func newRunner() *runtime.Runner {
	return runtime.NewRunner(registry.NewWithBuiltins())
}

func testOptions() runtime.RunOptions {
	opts := runtime.DefaultRunOptions()
	opts.Seed = 42
	opts.MaxTicks = 100
	return opts
}

func TestRunner_QuitCompletesRun(t *testing.T) {
	res, err := newRunner().Run(context.Background(), counterGame("3"), testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Completed || res.Ticks != 3 {
		t.Errorf("Completed = %v, Ticks = %d, want true, 3", res.Completed, res.Ticks)
	}
	if got := res.Variables["n"]; got != 3.0 {
		t.Errorf("n = %v, want 3", got)
	}
	if res.RunID == "" || res.Seed != 42 {
		t.Errorf("RunID = %q, Seed = %d", res.RunID, res.Seed)
	}
}

func TestRunner_MaxTicksStopsWithoutError(t *testing.T) {
	opts := testOptions()
	opts.MaxTicks = 5
	res, err := newRunner().Run(context.Background(), counterGame("1000"), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Completed || res.Ticks != 5 {
		t.Errorf("Completed = %v, Ticks = %d, want false, 5", res.Completed, res.Ticks)
	}
}

func TestRunner_SceneChangeKeepsGlobalsOnly(t *testing.T) {
	game := &runtime.Game{
		Name:    "two-scenes",
		Globals: []runtime.VariableSpec{{Name: "visits", Value: 10}},
		Scenes: []*runtime.SceneSpec{{
			Name: "Menu",
			Events: []*events.Event{{Actions: []events.Instruction{
				ins("ModVarGlobal", "visits", "1", "+"),
				ins("ModVarScene", "local", "1", "="),
				ins("Scene", "Level"),
			}}},
		}, {
			Name:    "Level",
			Objects: []runtime.ObjectSpec{{Name: "Hero", X: 1}, {Name: "Hero", X: 2}},
			Events: []*events.Event{{
				Conditions: []events.Instruction{
					ins("VarGlobal", "visits", "11", "="),
					ins("VarSceneDef", "local").Not(),
				},
				Actions: []events.Instruction{ins("Quit")},
			}},
		}},
	}
	res, err := newRunner().Run(context.Background(), game, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Completed {
		t.Fatal("Level did not see the carried global and a fresh scene")
	}
	if diff := cmp.Diff([]string{"Menu", "Level"}, res.Scenes); diff != "" {
		t.Errorf("scenes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"Hero": 2}, res.Objects); diff != "" {
		t.Errorf("objects (-want +got):\n%s", diff)
	}
	if res.Ticks != 2 || res.Scene != "Level" {
		t.Errorf("Ticks = %d, Scene = %q", res.Ticks, res.Scene)
	}
}

func TestRunner_StartSceneOption(t *testing.T) {
	game := &runtime.Game{Scenes: []*runtime.SceneSpec{
		{Name: "A"},
		{Name: "B", Events: []*events.Event{{Actions: []events.Instruction{ins("Quit")}}}},
	}}
	opts := testOptions()
	opts.StartScene = "B"
	res, err := newRunner().Run(context.Background(), game, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Completed || res.Ticks != 1 {
		t.Errorf("Completed = %v, Ticks = %d", res.Completed, res.Ticks)
	}
}

func TestRunner_Errors(t *testing.T) {
	gotoNowhere := &runtime.Game{Scenes: []*runtime.SceneSpec{{
		Name:   "Main",
		Events: []*events.Event{{Actions: []events.Instruction{ins("Scene", "Nowhere")}}},
	}}}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		game *runtime.Game
		want error
	}{
		{"no scenes", context.Background(), &runtime.Game{}, runtime.ErrNoScenes},
		{"unknown target", context.Background(), gotoNowhere, runtime.ErrUnknownScene},
		{"canceled", canceled, counterGame("3"), runtime.ErrRunCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRunner().Run(tt.ctx, tt.game, testOptions())
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunner_EventStream(t *testing.T) {
	game := counterGame("2")
	game.Scenes[0].Events[1].Name = "quit when done"
	game.Scenes[0].Events[1].Actions = append(game.Scenes[0].Events[1].Actions, ins("NoSuchAction"))

	var seen []runtime.Event
	opts := testOptions()
	opts.EventHandler = func(e runtime.Event) { seen = append(seen, e) }
	if _, err := newRunner().Run(context.Background(), game, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kinds := make([]runtime.EventKind, len(seen))
	for i, e := range seen {
		kinds[i] = e.Kind
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d has Seq %d", i, e.Seq)
		}
	}
	want := []runtime.EventKind{
		runtime.EventRunStarted,
		runtime.EventSceneStarted,
		runtime.EventTriggered, runtime.EventTickFinished,
		runtime.EventTriggered, runtime.EventTriggered, runtime.EventTickFinished,
		runtime.EventSceneChanged,
		runtime.EventRunFinished,
	}
	// Quit stops the tick before the unknown action is reached.
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds (-want +got):\n%s", diff)
	}
	if got := seen[5].Payload["path"]; got != "1" {
		t.Errorf("trigger path = %v, want 1", got)
	}
	if got := seen[5].Payload["name"]; got != "quit when done" {
		t.Errorf("trigger name = %v", got)
	}
	if got := seen[len(seen)-1].Payload["status"]; got != "completed" {
		t.Errorf("run.finished status = %v", got)
	}
}

func TestRunner_DiagnosticsAreEmitted(t *testing.T) {
	game := &runtime.Game{Scenes: []*runtime.SceneSpec{{
		Name: "Main",
		Events: []*events.Event{{Actions: []events.Instruction{
			ins("ModVarScene", "x", "OBJ(Hero", "="),
			ins("NoSuchAction"),
		}}},
	}}}
	var diags []runtime.Event
	opts := testOptions()
	opts.MaxTicks = 3
	opts.EventHandler = func(e runtime.Event) {
		if e.Kind == runtime.EventDiagnostic {
			diags = append(diags, e)
		}
	}
	res, err := newRunner().Run(context.Background(), game, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	codes := make([]any, len(diags))
	for i, d := range diags {
		codes[i] = d.Payload["code"]
	}
	want := []any{core.CodeMissingParen, core.CodeUnknownAction}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("diagnostic codes (-want +got):\n%s", diff)
	}
	if len(res.Diagnostics) != 2 {
		t.Errorf("Result.Diagnostics = %v", res.Diagnostics)
	}
}

// bouncingGame enters A, B, A, B and quits. A holds a malformed expression.
func bouncingGame() *runtime.Game {
	return &runtime.Game{
		Name: "bouncing",
		Scenes: []*runtime.SceneSpec{{
			Name: "A",
			Events: []*events.Event{{Actions: []events.Instruction{
				ins("ModVarScene", "x", "OBJ(Hero", "="),
				ins("ModVarGlobal", "visits", "1", "+"),
				ins("Scene", "B"),
			}}},
		}, {
			Name: "B",
			Events: []*events.Event{
				{
					Conditions: []events.Instruction{ins("VarGlobal", "visits", "2", ">=")},
					Actions:    []events.Instruction{ins("Quit")},
				},
				{Actions: []events.Instruction{ins("Scene", "A")}},
			},
		}},
	}
}

func diagnosticCodes(diags []core.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestRunner_DiagnosticsOnEveryRunAndSceneEntry(t *testing.T) {
	game := bouncingGame()
	runner := newRunner()
	want := []string{core.CodeMissingParen, core.CodeMissingParen}

	for run := 1; run <= 2; run++ {
		emitted := 0
		opts := testOptions()
		opts.EventHandler = func(e runtime.Event) {
			if e.Kind == runtime.EventDiagnostic {
				emitted++
			}
		}
		res, err := runner.Run(context.Background(), game, opts)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if diff := cmp.Diff([]string{"A", "B", "A", "B"}, res.Scenes); diff != "" {
			t.Fatalf("run %d scenes (-want +got):\n%s", run, diff)
		}
		if diff := cmp.Diff(want, diagnosticCodes(res.Diagnostics)); diff != "" {
			t.Errorf("run %d diagnostics (-want +got):\n%s", run, diff)
		}
		if emitted != 2 {
			t.Errorf("run %d emitted %d diagnostic events, want 2", run, emitted)
		}
	}
}

func TestRunner_ConcurrentRunsOfOneGame(t *testing.T) {
	game := bouncingGame()
	runner := newRunner()

	var wg sync.WaitGroup
	results := make([]*runtime.Result, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = runner.Run(context.Background(), game, testOptions())
		}()
	}
	wg.Wait()

	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		if !res.Completed || len(res.Diagnostics) != 2 {
			t.Errorf("run %d: Completed = %v, Diagnostics = %v", i, res.Completed, res.Diagnostics)
		}
	}
}

func TestRunner_SameSeedSameRun(t *testing.T) {
	game := &runtime.Game{Scenes: []*runtime.SceneSpec{{
		Name: "Main",
		Events: []*events.Event{{Actions: []events.Instruction{
			ins("ModVarScene", "sum", "VAL(Random[100])", "+"),
		}}},
	}}}
	opts := testOptions()
	opts.MaxTicks = 20
	a, err := newRunner().Run(context.Background(), game, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newRunner().Run(context.Background(), game, opts)
	if err != nil {
		t.Fatal(err)
	}
	if a.Variables["sum"] != b.Variables["sum"] {
		t.Errorf("sums differ: %v vs %v", a.Variables["sum"], b.Variables["sum"])
	}
}

func TestRunner_TimersFollowTimeDelta(t *testing.T) {
	game := &runtime.Game{Scenes: []*runtime.SceneSpec{{
		Name: "Main",
		Events: []*events.Event{{
			Conditions: []events.Instruction{ins("Timer", "0.5", "t")},
			Actions:    []events.Instruction{ins("Quit")},
		}},
	}}}
	opts := testOptions()
	opts.TimeDelta = 100 * time.Millisecond
	res, err := newRunner().Run(context.Background(), game, opts)
	if err != nil {
		t.Fatal(err)
	}
	// the timer is created on tick 1 and reaches 0.5 s five ticks later
	if !res.Completed || res.Ticks != 6 {
		t.Errorf("Completed = %v, Ticks = %d, want true, 6", res.Completed, res.Ticks)
	}
}

func TestRunner_WithEventBus(t *testing.T) {
	b := bus.NewMemBus(bus.MemBusConfig{})
	defer b.Close()

	globalSub := b.SubscribeAll(nil)
	defer globalSub.Close()

	opts := testOptions()
	opts.EventBus = b
	res, err := newRunner().Run(context.Background(), counterGame("1"), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	count := 0
	for {
		select {
		case e := <-globalSub.Events():
			if e.RunID != res.RunID {
				t.Errorf("event for run %q, want %q", e.RunID, res.RunID)
			}
			count++
		case <-time.After(100 * time.Millisecond):
			goto done
		}
	}
done:
	// run.started, scene.started, 2x event.triggered, tick.finished,
	// scene.changed, run.finished
	if count != 7 {
		t.Errorf("received %d events via bus, want 7", count)
	}
}

func TestSceneSpec_InstantiateIsIndependent(t *testing.T) {
	spec := &runtime.SceneSpec{
		Name:        "Main",
		Variables:   []runtime.VariableSpec{{Name: "title", Text: "hello"}},
		ObjectTypes: map[string]string{"Hero": "Sprite"},
		Objects: []runtime.ObjectSpec{{
			Name: "Hero", X: 3, Angle: 90,
			Variables: []runtime.VariableSpec{{Name: "hp", Value: 5}},
		}},
	}
	globals := core.NewVariables()
	a := spec.Instantiate(globals)
	b := spec.Instantiate(globals)

	hero := a.Objects.Get(a.Objects.Instances("Hero")[0])
	if hero.Type != "Sprite" || hero.X != 3 || hero.Angle != 90 || hero.Variables.Value("hp") != 5 {
		t.Errorf("hero = %+v", hero)
	}
	if a.Variables.Text("title") != "hello" {
		t.Errorf("title = %q", a.Variables.Text("title"))
	}
	hero.Variables.FindOrCreate("hp").SetValue(0)
	if b.Objects.Get(b.Objects.Instances("Hero")[0]).Variables.Value("hp") != 5 {
		t.Error("instances share object state")
	}
	a.Globals.FindOrCreate("shared").SetValue(1)
	if b.Globals.Value("shared") != 1 {
		t.Error("globals must be shared")
	}
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

func TestParseCron(t *testing.T) {
	schedule, err := runtime.ParseCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCron error: %v", err)
	}
	next := schedule.Next(time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC))
	want := time.Date(2026, 2, 20, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next=%s, want=%s", next.Format(time.RFC3339), want.Format(time.RFC3339))
	}

	for _, expr := range []string{"", "TZ=UTC * * * * *", "every minute", "* * * *"} {
		if _, err := runtime.ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) expected error", expr)
		}
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestScheduler_RunOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	results := make(chan *runtime.Result, 4)
	s, err := runtime.NewScheduler(runtime.SchedulerConfig{
		Runner:   newRunner(),
		Game:     counterGame("2"),
		Options:  testOptions(),
		Cron:     "* * * * *",
		Now:      clock.Now,
		OnResult: func(res *runtime.Result, err error) { results <- res },
	})
	if err != nil {
		t.Fatalf("NewScheduler error: %v", err)
	}
	if want := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC); !s.NextRun().Equal(want) {
		t.Fatalf("NextRun = %s, want %s", s.NextRun(), want)
	}

	if s.RunOnce(context.Background()) {
		t.Fatal("RunOnce started a run before it was due")
	}

	clock.Set(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC))
	if !s.RunOnce(context.Background()) {
		t.Fatal("RunOnce did not start a due run")
	}
	select {
	case res := <-results:
		if res == nil || !res.Completed || res.Ticks != 2 {
			t.Errorf("scheduled result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not finish")
	}
	if want := time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC); !s.NextRun().Equal(want) {
		t.Errorf("NextRun = %s, want %s", s.NextRun(), want)
	}
	if runs, skipped := s.Stats(); runs != 1 || skipped != 0 {
		t.Errorf("Stats = %d, %d", runs, skipped)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := runtime.NewScheduler(runtime.SchedulerConfig{
		Runner:       newRunner(),
		Game:         counterGame("1"),
		Cron:         "0 0 1 1 *",
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	s.Start()
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop error: %v", err)
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := runtime.NewScheduler(runtime.SchedulerConfig{Game: counterGame("1"), Cron: "* * * * *"}); err == nil {
		t.Error("expected error for missing runner")
	}
	if _, err := runtime.NewScheduler(runtime.SchedulerConfig{Runner: newRunner(), Cron: "* * * * *"}); err == nil {
		t.Error("expected error for missing game")
	}
	if _, err := runtime.NewScheduler(runtime.SchedulerConfig{Runner: newRunner(), Game: counterGame("1"), Cron: "bad"}); err == nil {
		t.Error("expected error for bad cron")
	}
}

func TestParseEventKind(t *testing.T) {
	for _, k := range runtime.EventKinds() {
		got, err := runtime.ParseEventKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseEventKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := runtime.ParseEventKind("tick"); err == nil {
		t.Error("ParseEventKind(tick): expected error")
	}
	if !runtime.EventRunFinished.RunLevel() || runtime.EventTickFinished.RunLevel() {
		t.Error("RunLevel misclassifies run.finished or tick.finished")
	}
}
