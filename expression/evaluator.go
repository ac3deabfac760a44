package expression

import (
	"strings"

	"github.com/petal-labs/eventsheet/core"
)

// Context is what a function call sees during one evaluation.
type Context struct {
	Scene *core.Scene
	Scope *core.Scope
	Obj1  core.ObjectID // primary current object, or core.NoObject
	Obj2  core.ObjectID // secondary current object, or core.NoObject

	eval *Evaluator
}

// Evaluator returns the evaluator running the call.
func (c *Context) Evaluator() *Evaluator { return c.eval }

// Number evaluates e numerically with the same scope and current objects.
func (c *Context) Number(e *Expression) float64 {
	return c.eval.EvalExp(c.Scope, e, c.Obj1, c.Obj2)
}

// Text evaluates e as a text parameter.
func (c *Context) Text(e *Expression) string {
	return c.eval.EvalTxt(c.Scope, e, c.Obj1, c.Obj2)
}

// NumberAt evaluates params[i], or returns 0 if it is missing.
func (c *Context) NumberAt(params []*Expression, i int) float64 {
	if i < 0 || i >= len(params) {
		return 0
	}
	return c.Number(params[i])
}

// NameAt returns the trimmed source of params[i], or "".
func NameAt(params []*Expression, i int) string {
	if i < 0 || i >= len(params) {
		return ""
	}
	return strings.TrimSpace(params[i].PlainString())
}

// Evaluator evaluates expressions against one scene. It is not safe for
// concurrent use.
type Evaluator struct {
	scene *core.Scene
	funcs Functions
	inner map[string]*Expression   // CAL"..." bodies, preprocessed once
	seen  map[*Expression]struct{} // diagnostics already in the scene log
}

// NewEvaluator returns an evaluator for scene resolving names with funcs.
func NewEvaluator(scene *core.Scene, funcs Functions) *Evaluator {
	return &Evaluator{
		scene: scene,
		funcs: funcs,
		inner: make(map[string]*Expression),
		seen:  make(map[*Expression]struct{}),
	}
}

// Scene returns the scene the evaluator reads and writes.
func (ev *Evaluator) Scene() *core.Scene { return ev.scene }

// Functions returns the function tables used during preprocessing.
func (ev *Evaluator) Functions() Functions { return ev.funcs }

// Preprocess preprocesses e against the scene's object types unless that
// already happened, possibly for an earlier scene. The first time this
// evaluator sees e, the diagnostics of e are copied into the scene's log,
// so every scene instance reports its malformed expressions.
func (ev *Evaluator) Preprocess(e *Expression) {
	if _, ok := ev.seen[e]; ok {
		return
	}
	ev.seen[e] = struct{}{}
	Preprocess(e, ev.funcs, ev.scene.Objects, nil)
	for _, d := range e.diags {
		ev.scene.Diagnostics.Add(d)
	}
}

// Context builds the per-call evaluation context.
func (ev *Evaluator) Context(scope *core.Scope, obj1, obj2 core.ObjectID) *Context {
	if scope == nil {
		scope = core.NewScope(ev.scene.Objects)
	}
	return &Context{Scene: ev.scene, Scope: scope, Obj1: obj1, Obj2: obj2, eval: ev}
}

// EvalExp evaluates e numerically. Steps run strictly left to right, once
// each, because object functions may narrow the scope seen by later steps.
func (ev *Evaluator) EvalExp(scope *core.Scope, e *Expression, obj1, obj2 core.ObjectID) float64 {
	ev.Preprocess(e)
	c := ev.Context(scope, obj1, obj2)
	steps := e.calls
	vals := make([]float64, len(steps))
	for i, s := range steps {
		vals[i] = ev.evalStep(c, s)
	}
	return e.EvalMathExpression(vals)
}

func (ev *Evaluator) evalStep(c *Context, s Step) float64 {
	switch st := s.(type) {
	case GlobalVariableStep:
		return ev.scene.Globals.Value(st.Name)

	case ContextStep:
		if st.Func != nil {
			return st.Func(c, st.Params)
		}
		return ev.scene.Variables.Value(st.Name)

	case ObjectStep:
		if st.Kind == ObjectCount {
			return float64(len(c.Scope.Pick(st.Object)))
		}
		obj := ev.scene.Objects.Get(core.Resolve(c.Scope.Pick(st.Object), c.Obj1, c.Obj2))
		if obj == nil {
			return 0
		}
		if st.Kind == ObjectFunction && st.Func != nil {
			return st.Func(c, obj, st.Params)
		}
		return obj.Variables.Value(st.Name)

	default:
		// ConstantStep never reaches here; InvalidStep contributes 0.
		return 0
	}
}

// Number is a convenience for evaluating source text directly.
func (ev *Evaluator) Number(scope *core.Scope, text string) float64 {
	return ev.EvalExp(scope, ev.cached(text), core.NoObject, core.NoObject)
}

func (ev *Evaluator) cached(text string) *Expression {
	e, ok := ev.inner[text]
	if !ok {
		e = New(text)
		ev.inner[text] = e
	}
	return e
}
