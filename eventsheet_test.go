package eventsheet_test

import (
	"context"
	"testing"

	"github.com/petal-labs/eventsheet"
	"github.com/petal-labs/eventsheet/core"
)

func TestEval(t *testing.T) {
	scene := eventsheet.NewScene("test", core.WithSeed(1))
	scene.Variables.FindOrCreate("lives").SetValue(3)
	scene.Globals.FindOrCreate("player").SetText("Ada")
	scene.Objects.Create("Coin", 0, 0)
	scene.Objects.Create("Coin", 5, 0)

	if got := eventsheet.Eval(scene, "VAL(lives) * 10 + OBJ(Coin[count])"); got != 32 {
		t.Errorf("Eval = %v, want 32", got)
	}
	if got := eventsheet.EvalText(scene, `TXT"GBL(player[])" has CAL"VAL(lives)" lives`); got != "Ada has 3 lives" {
		t.Errorf("EvalText = %q", got)
	}
	if len(scene.Diagnostics.Entries()) != 0 {
		t.Errorf("unexpected diagnostics: %v", scene.Diagnostics.Entries())
	}
}

func TestEval_MalformedIsZero(t *testing.T) {
	scene := eventsheet.NewScene("test")
	if got := eventsheet.Eval(scene, "OBJ(Player) + 3"); got != 3 {
		t.Errorf("Eval = %v, want 3", got)
	}
	if len(scene.Diagnostics.Entries()) == 0 {
		t.Error("expected a diagnostic")
	}
}

func TestLoadAndRun(t *testing.T) {
	game, diags, err := eventsheet.LoadGame("loader/testdata/pong.hcl")
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}

	opts := eventsheet.DefaultRunOptions()
	opts.Seed = 3
	res, err := eventsheet.Run(context.Background(), game, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.Ticks != 11 {
		t.Errorf("completed=%v ticks=%d", res.Completed, res.Ticks)
	}
	if res.Globals["hits"] != 2.0 {
		t.Errorf("globals = %v", res.Globals)
	}
}
