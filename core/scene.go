package core

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// SceneChangeKind is the kind of transition requested by the event tree.
type SceneChangeKind int

const (
	SceneNoChange SceneChangeKind = iota
	SceneQuit
	SceneGoto
)

// SceneChange is the result of executing a scene's events for one tick.
type SceneChange struct {
	Kind   SceneChangeKind
	Target string // scene name for SceneGoto
}

// NoChange keeps running the current scene.
func NoChange() SceneChange { return SceneChange{} }

// Quit ends the game.
func Quit() SceneChange { return SceneChange{Kind: SceneQuit} }

// Goto switches to the named scene.
func Goto(scene string) SceneChange { return SceneChange{Kind: SceneGoto, Target: scene} }

// Pending reports whether a transition was requested.
func (c SceneChange) Pending() bool { return c.Kind != SceneNoChange }

func (c SceneChange) String() string {
	switch c.Kind {
	case SceneNoChange:
		return "none"
	case SceneQuit:
		return "quit"
	case SceneGoto:
		return fmt.Sprintf("goto %q", c.Target)
	}
	return fmt.Sprintf("change(%d)", int(c.Kind))
}

// Scene is the mutable runtime state of one running scene: its objects,
// variables, timers and clock, plus the game-wide globals it shares with
// other scenes.
type Scene struct {
	Name        string
	Objects     *ObjectTable
	Variables   *Variables
	Globals     *Variables
	Timers      *Timers
	Clock       *Clock
	Diagnostics *DiagnosticLog
	Rand        *rand.Rand
	Logger      *slog.Logger

	change SceneChange
}

// SceneOption configures a Scene.
type SceneOption func(*Scene)

// WithSeed makes the scene's random source deterministic.
func WithSeed(seed uint64) SceneOption {
	return func(s *Scene) { s.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the logger used by logging actions.
func WithLogger(l *slog.Logger) SceneOption {
	return func(s *Scene) { s.Logger = l }
}

// WithGlobals shares an existing global variable store.
func WithGlobals(g *Variables) SceneOption {
	return func(s *Scene) { s.Globals = g }
}

// NewScene returns an empty scene.
func NewScene(name string, opts ...SceneOption) *Scene {
	s := &Scene{
		Name:        name,
		Objects:     NewObjectTable(),
		Variables:   NewVariables(),
		Globals:     NewVariables(),
		Timers:      NewTimers(),
		Clock:       &Clock{},
		Diagnostics: &DiagnosticLog{},
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// RequestChange records a pending transition. The first request of a tick
// wins.
func (s *Scene) RequestChange(c SceneChange) {
	if !s.change.Pending() {
		s.change = c
	}
}

// PendingChange returns the requested transition, if any.
func (s *Scene) PendingChange() SceneChange { return s.change }

// TakeChange returns and clears the requested transition.
func (s *Scene) TakeChange() SceneChange {
	c := s.change
	s.change = SceneChange{}
	return c
}
