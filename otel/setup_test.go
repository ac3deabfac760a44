package otel_test

import (
	"context"
	"testing"

	"github.com/petal-labs/eventsheet/events"
	sheetotel "github.com/petal-labs/eventsheet/otel"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
)

func TestTelemetry_RunSummary(t *testing.T) {
	ctx := context.Background()
	tel, err := sheetotel.Setup(ctx, sheetotel.Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	game := &runtime.Game{
		Name: "Count",
		Scenes: []*runtime.SceneSpec{{
			Name: "Main",
			Events: []*events.Event{
				{Actions: []events.Instruction{events.NewInstruction("ModVarScene", "n", "1", "+")}},
				{
					Name:       "stop",
					Conditions: []events.Instruction{events.NewInstruction("VarScene", "n", "4", ">=")},
					Actions:    []events.Instruction{events.NewInstruction("Quit")},
				},
			},
		}},
	}

	var stamped int
	opts := runtime.RunOptions{
		MaxTicks: 20,
		Seed:     3,
		EventHandler: runtime.MultiEventHandler(tel.Handler(), func(e runtime.Event) {
			if e.TraceID != "" {
				stamped++
			}
		}),
		EventEmitterDecorator: tel.Decorator(),
	}
	if _, err := runtime.NewRunner(registry.NewWithBuiltins()).Run(ctx, game, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stamped == 0 {
		t.Error("no event carried a trace id")
	}

	summary, err := tel.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	values := map[string]sheetotel.MetricValue{}
	for _, v := range summary {
		values[v.Name+"{"+v.Attributes+"}"] = v
	}

	if v := values[sheetotel.MetricTicks+"{scene=Main}"]; v.Value != 4 {
		t.Errorf("ticks = %+v, want 4", v)
	}
	if v := values[sheetotel.MetricTriggered+"{event=stop,scene=Main}"]; v.Value != 1 {
		t.Errorf("triggered stop = %+v, want 1", v)
	}
	if v := values[sheetotel.MetricRunDuration+"{status=completed}"]; v.Count != 1 {
		t.Errorf("run duration count = %d, want 1", v.Count)
	}
}
