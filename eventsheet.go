// Package eventsheet is a headless interpreter for event-sheet game logic:
// GDL-style textual expressions and the condition/action event trees that
// use them.
//
// This file re-exports the types most programs need and wires the built-in
// extensions. For finer control, import the subpackages directly:
//
//	import "github.com/petal-labs/eventsheet/expression"
//	import "github.com/petal-labs/eventsheet/events"
//	import "github.com/petal-labs/eventsheet/registry"
//	import "github.com/petal-labs/eventsheet/runtime"
package eventsheet

import (
	"context"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expression"
	"github.com/petal-labs/eventsheet/loader"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
	"github.com/petal-labs/eventsheet/sheet"
)

type (
	// Scene is the runtime state of one running scene.
	Scene = core.Scene

	// Diagnostic is a problem absorbed while preprocessing or executing.
	Diagnostic = core.Diagnostic

	// Expression is a textual formula and its preprocessed form.
	Expression = expression.Expression

	// Registry holds the conditions, actions and functions a sheet may use.
	Registry = registry.Registry

	// Game is a runnable set of scenes.
	Game = runtime.Game

	// RunOptions controls a run.
	RunOptions = runtime.RunOptions

	// Result summarizes a run.
	Result = runtime.Result

	// Event is a record emitted while a game runs.
	Event = runtime.Event

	// Definition is the serializable form of a game.
	Definition = sheet.Definition
)

// NewScene returns an empty scene.
func NewScene(name string, opts ...core.SceneOption) *Scene {
	return core.NewScene(name, opts...)
}

// NewRegistry returns a registry holding the built-in extensions.
func NewRegistry() *Registry {
	return registry.NewWithBuiltins()
}

// DefaultRunOptions returns the default run options.
func DefaultRunOptions() RunOptions {
	return runtime.DefaultRunOptions()
}

// Eval evaluates text numerically against scene using the built-in
// extensions. Malformed text evaluates to 0 and leaves diagnostics in
// scene.Diagnostics.
func Eval(scene *Scene, text string) float64 {
	ev := expression.NewEvaluator(scene, registry.NewWithBuiltins())
	return ev.EvalExp(nil, expression.New(text), core.NoObject, core.NoObject)
}

// EvalText renders text as a text parameter against scene.
func EvalText(scene *Scene, text string) string {
	ev := expression.NewEvaluator(scene, registry.NewWithBuiltins())
	return ev.EvalTxt(nil, expression.New(text), core.NoObject, core.NoObject)
}

// LoadGame loads, validates and builds a JSON, YAML or HCL sheet against
// the built-in extensions. Warnings are returned alongside the game.
func LoadGame(path string) (*Game, []sheet.Diagnostic, error) {
	return loader.LoadGame(path, registry.NewWithBuiltins())
}

// Run plays game with the built-in extensions.
func Run(ctx context.Context, game *Game, opts RunOptions) (*Result, error) {
	return runtime.NewRunner(registry.NewWithBuiltins()).Run(ctx, game, opts)
}
