package sheet_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
	"github.com/petal-labs/eventsheet/sheet"
)

func cond(typ string, params ...string) sheet.InstructionDef {
	return sheet.InstructionDef{Type: typ, Params: params}
}

func counterDef() *sheet.Definition {
	return &sheet.Definition{
		Name:    "Counter",
		Globals: []sheet.VariableDef{{Name: "best", Value: 1}},
		Scenes: []sheet.SceneDef{
			{
				Name:      "Main",
				Variables: []sheet.VariableDef{{Name: "n"}},
				Objects:   []sheet.ObjectDef{{Name: "Ball", X: 5, Y: 10}},
				Events: []sheet.EventDef{
					{
						Name:    "count",
						Actions: []sheet.InstructionDef{cond("ModVarScene", "n", "1", "+")},
					},
					{
						Name:       "done",
						Conditions: []sheet.InstructionDef{cond("VarScene", "n", "3", ">=")},
						Actions: []sheet.InstructionDef{
							cond("ModVarGlobal", "best", "VAL(n) * 2", "="),
							cond("Quit"),
						},
					},
				},
			},
		},
	}
}

func codes(diags []sheet.Diagnostic) []string {
	out := []string{}
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestValidate_CleanDefinition(t *testing.T) {
	diags := counterDef().Validate(registry.NewWithBuiltins())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *sheet.Definition)
		want   []string
		path   string
	}{
		{
			name:   "no scenes",
			mutate: func(d *sheet.Definition) { d.Scenes = nil },
			want:   []string{sheet.CodeNoScenes},
			path:   "scenes",
		},
		{
			name: "duplicate scene",
			mutate: func(d *sheet.Definition) {
				d.Scenes = append(d.Scenes, sheet.SceneDef{Name: "Main"})
			},
			want: []string{sheet.CodeDuplicateScene},
			path: "scenes[1].name",
		},
		{
			name:   "unknown start scene",
			mutate: func(d *sheet.Definition) { d.StartScene = "Nowhere" },
			want:   []string{sheet.CodeUnknownStartScene},
			path:   "start_scene",
		},
		{
			name: "unknown condition",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[1].Conditions[0].Type = "Blink"
			},
			want: []string{sheet.CodeUnknownCondition},
			path: "scenes[0].events[1].conditions[0].type",
		},
		{
			name: "unknown action in sub-event",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Events = []sheet.EventDef{{Actions: []sheet.InstructionDef{cond("Explode")}}}
			},
			want: []string{sheet.CodeUnknownAction},
			path: "scenes[0].events[0].events[0].actions[0].type",
		},
		{
			name:   "bad mode",
			mutate: func(d *sheet.Definition) { d.Scenes[0].Events[0].Mode = "xor" },
			want:   []string{sheet.CodeBadKind},
			path:   "scenes[0].events[0].mode",
		},
		{
			name: "bad kind",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Conditions = []sheet.InstructionDef{{Kind: "loop"}}
			},
			want: []string{sheet.CodeBadKind},
			path: "scenes[0].events[0].conditions[0].kind",
		},
		{
			name: "repeat without count",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Conditions = []sheet.InstructionDef{{Kind: "repeat"}}
			},
			want: []string{sheet.CodeControlParams},
			path: "scenes[0].events[0].conditions[0].params",
		},
		{
			name: "while among actions",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Actions = []sheet.InstructionDef{{Kind: "while", Params: []string{"True", "1"}}}
			},
			want: []string{sheet.CodeControlParams},
			path: "scenes[0].events[0].actions[0].kind",
		},
		{
			name: "while covering too many conditions",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Conditions = []sheet.InstructionDef{
					{Kind: "while", Params: []string{"True", "2"}},
					cond("VarScene", "n", "3", "<"),
				}
			},
			want: []string{sheet.CodeControlParams},
			path: "scenes[0].events[0].conditions[0].params",
		},
		{
			name: "unbalanced call",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Actions[0].Params[1] = "VAL(n + 1"
			},
			want: []string{sheet.CodeBadExpression},
			path: "scenes[0].events[0].actions[0].params[1]",
		},
		{
			name: "unknown function",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[0].Actions[0].Params[1] = "VAL(Wobble[2])"
			},
			want: []string{sheet.CodeUnknownFunction},
			path: "scenes[0].events[0].actions[0].params[1]",
		},
		{
			name: "unknown scene target",
			mutate: func(d *sheet.Definition) {
				d.Scenes[0].Events[1].Actions = []sheet.InstructionDef{cond("Scene", "Level2")}
			},
			want: []string{sheet.CodeUnknownTarget},
			path: "scenes[0].events[1].actions[0].params[0]",
		},
		{
			name: "duplicate variable",
			mutate: func(d *sheet.Definition) {
				d.Globals = append(d.Globals, sheet.VariableDef{Name: "best"})
			},
			want: []string{sheet.CodeDuplicateName},
			path: "globals[1].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := counterDef()
			tt.mutate(d)
			diags := d.Validate(registry.NewWithBuiltins())
			if diff := cmp.Diff(tt.want, codes(diags)); diff != "" {
				t.Fatalf("codes mismatch (-want +got):\n%s\n%+v", diff, diags)
			}
			if diags[0].Path != tt.path {
				t.Errorf("Path = %q, want %q", diags[0].Path, tt.path)
			}
		})
	}
}

func TestValidate_NilRegistrySkipsTypeChecks(t *testing.T) {
	d := counterDef()
	d.Scenes[0].Events[0].Actions[0].Type = "Anything"
	if diags := d.Validate(nil); len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestDiagnosticHelpers(t *testing.T) {
	diags := []sheet.Diagnostic{
		{Code: "A", Severity: sheet.SeverityWarning},
		{Code: "B", Severity: sheet.SeverityError},
	}
	if !sheet.HasErrors(diags) {
		t.Error("HasErrors = false")
	}
	if got := codes(sheet.Errors(diags)); !cmp.Equal(got, []string{"B"}) {
		t.Errorf("Errors = %v", got)
	}
	if got := codes(sheet.Warnings(diags)); !cmp.Equal(got, []string{"A"}) {
		t.Errorf("Warnings = %v", got)
	}
	if sheet.HasErrors(diags[:1]) {
		t.Error("HasErrors on warnings only = true")
	}
}

func TestBuild_Structure(t *testing.T) {
	d := counterDef()
	d.Scenes[0].ObjectTypes = map[string]string{"Ball": "Sprite"}
	d.Scenes[0].Events[1].Mode = "OR"
	d.Scenes[0].Events[1].Conditions = append(d.Scenes[0].Events[1].Conditions,
		sheet.InstructionDef{Kind: "foreach", Params: []string{"Ball"}},
		sheet.InstructionDef{Type: "PosX", Params: []string{"Ball", "3", ">"}, Inverted: true},
	)

	game, err := d.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if game.Name != "Counter" || game.FirstScene() != "Main" {
		t.Errorf("game = %q first %q", game.Name, game.FirstScene())
	}
	scene, ok := game.Scene("Main")
	if !ok {
		t.Fatal("scene Main missing")
	}
	if scene.ObjectTypes["Ball"] != "Sprite" {
		t.Errorf("ObjectTypes = %v", scene.ObjectTypes)
	}
	if diff := cmp.Diff([]runtime.ObjectSpec{{Name: "Ball", X: 5, Y: 10}}, scene.Objects); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}

	ev := scene.Events[1]
	if ev.Mode != events.Or {
		t.Errorf("Mode = %v, want or", ev.Mode)
	}
	var got []string
	for _, in := range ev.Conditions {
		got = append(got, in.String())
	}
	want := []string{"VarScene(n, 3, >=)", "foreach(Ball)", "!PosX(Ball, 3, >)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conditions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_RejectsBadKind(t *testing.T) {
	d := counterDef()
	d.Scenes[0].Events[0].Events = []sheet.EventDef{{Conditions: []sheet.InstructionDef{{Kind: "loop"}}}}
	if _, err := d.Build(); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuild_Runs(t *testing.T) {
	game, err := counterDef().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reg := registry.NewWithBuiltins()
	res, err := runtime.NewRunner(reg).Run(context.Background(), game, runtime.RunOptions{MaxTicks: 10, Seed: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.Ticks != 3 {
		t.Errorf("Completed=%v Ticks=%d, want true/3", res.Completed, res.Ticks)
	}
	if got := res.Globals["best"]; got != float64(6) {
		t.Errorf("best = %v, want 6", got)
	}
}
