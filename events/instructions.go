package events

import (
	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expression"
)

// Picking tells the executor how an instruction relates to object scope.
type Picking int

const (
	// PickNone: the instruction runs once and does not touch the scope.
	PickNone Picking = iota
	// PickObjects: params[0] names an object. Conditions are tested per
	// picked instance and the scope is narrowed to the passing ones;
	// actions run once per picked instance. The instance is Call.Obj1.
	PickObjects
	// PickCustom: the condition picks (and honours Inverted) itself.
	PickCustom
)

// Condition is a registered condition implementation.
type Condition struct {
	Picking Picking
	Test    func(c *Call) bool
}

// Action is a registered action implementation.
type Action struct {
	Picking Picking
	Do      func(c *Call)
}

// Instructions resolves condition and action types.
type Instructions interface {
	Condition(typ string) (Condition, bool)
	Action(typ string) (Action, bool)
}

// Call is the view a condition or action has of the running event.
type Call struct {
	Scene    *core.Scene
	Scope    *core.Scope
	Obj1     core.ObjectID
	Obj2     core.ObjectID
	Params   []*expression.Expression
	Inverted bool

	eval *expression.Evaluator
}

// Evaluator returns the expression evaluator of the scene.
func (c *Call) Evaluator() *expression.Evaluator { return c.eval }

// Number evaluates params[i] numerically, 0 if missing.
func (c *Call) Number(i int) float64 {
	if i < 0 || i >= len(c.Params) {
		return 0
	}
	return c.eval.EvalExp(c.Scope, c.Params[i], c.Obj1, c.Obj2)
}

// Text evaluates params[i] as text, "" if missing.
func (c *Call) Text(i int) string {
	if i < 0 || i >= len(c.Params) {
		return ""
	}
	return c.eval.EvalTxt(c.Scope, c.Params[i], c.Obj1, c.Obj2)
}

// Name returns params[i] verbatim (trimmed), for names and signs.
func (c *Call) Name(i int) string {
	return expression.NameAt(c.Params, i)
}

// Relation parses params[i] as a comparison sign. A bad sign is reported
// and compares as "=".
func (c *Call) Relation(i int) core.Relation {
	r, err := core.ParseRelation(c.Name(i))
	if err != nil {
		c.Scene.Diagnostics.Errorf(core.CodeBadParameter, c.Name(i), "%v", err)
	}
	return r
}

// Operator parses params[i] as a modification sign. A bad sign is reported
// and acts as "=".
func (c *Call) Operator(i int) core.Operator {
	op, err := core.ParseOperator(c.Name(i))
	if err != nil {
		c.Scene.Diagnostics.Errorf(core.CodeBadParameter, c.Name(i), "%v", err)
	}
	return op
}

// Object returns the current primary object, or nil.
func (c *Call) Object() *core.Object {
	return c.Scene.Objects.Get(c.Obj1)
}
