package runtime

import (
	"sync"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/expression"
)

// Game is a runnable set of scenes sharing global variables. The first run
// preprocesses every expression of the game against that runner's
// extensions; afterwards runs only read the event trees, so one Game may be
// run by several goroutines at once.
type Game struct {
	Name       string
	Globals    []VariableSpec
	Scenes     []*SceneSpec
	StartScene string // defaults to the first scene

	prepareMu sync.Mutex
	prepared  bool
}

// VariableSpec is the initial value of one variable.
type VariableSpec struct {
	Name  string
	Value float64
	Text  string
}

// ObjectSpec is one instance present when a scene starts.
type ObjectSpec struct {
	Name      string
	X, Y      float64
	Angle     float64
	Variables []VariableSpec
}

// SceneSpec describes a scene: its initial state and its event tree.
type SceneSpec struct {
	Name        string
	Variables   []VariableSpec
	ObjectTypes map[string]string // object name -> object type
	Objects     []ObjectSpec
	Events      []*events.Event
}

// Scene returns the scene called name.
func (g *Game) Scene(name string) (*SceneSpec, bool) {
	for _, s := range g.Scenes {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// FirstScene returns the name of the scene a run starts in.
func (g *Game) FirstScene() string {
	if g.StartScene != "" {
		return g.StartScene
	}
	if len(g.Scenes) == 0 {
		return ""
	}
	return g.Scenes[0].Name
}

// NewGlobals returns a fresh global variable store with the game's initial
// values.
func (g *Game) NewGlobals() *core.Variables {
	vars := core.NewVariables()
	applyVariables(vars, g.Globals)
	return vars
}

// Instantiate builds the runtime state of the scene. Every call returns an
// independent scene; globals are shared as given.
func (s *SceneSpec) Instantiate(globals *core.Variables, opts ...core.SceneOption) *core.Scene {
	opts = append([]core.SceneOption{core.WithGlobals(globals)}, opts...)
	scene := core.NewScene(s.Name, opts...)
	applyVariables(scene.Variables, s.Variables)
	for name, typ := range s.ObjectTypes {
		scene.Objects.DeclareType(name, typ)
	}
	for _, o := range s.Objects {
		id := scene.Objects.Create(o.Name, o.X, o.Y)
		obj := scene.Objects.Get(id)
		obj.Angle = o.Angle
		applyVariables(obj.Variables, o.Variables)
	}
	return scene
}

func applyVariables(vars *core.Variables, specs []VariableSpec) {
	for _, v := range specs {
		dst := vars.FindOrCreate(v.Name)
		dst.SetValue(v.Value)
		dst.SetText(v.Text)
	}
}

// prepare preprocesses the expressions of every scene once. Diagnostics
// stay on the expressions; each scene instance copies them into its own
// log when it first evaluates them.
func (g *Game) prepare(funcs expression.Functions) {
	g.prepareMu.Lock()
	defer g.prepareMu.Unlock()
	if g.prepared {
		return
	}
	for _, s := range g.Scenes {
		types := objectTypes(s.ObjectTypes)
		events.Walk(s.Events, func(e *expression.Expression) {
			expression.Preprocess(e, funcs, types, nil)
		})
	}
	g.prepared = true
}

// objectTypes resolves object types the way a scene's object table does
// before any instance exists.
type objectTypes map[string]string

func (t objectTypes) TypeOf(name string) string {
	if typ := t[name]; typ != "" {
		return typ
	}
	return core.BaseType
}
