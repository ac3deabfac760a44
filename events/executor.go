package events

import (
	"strconv"
	"strings"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expression"
)

// TriggerFunc observes events whose conditions held. path is the index
// path of the event in the tree, e.g. "0/2".
type TriggerFunc func(path string, ev *Event)

// Option configures an Executor.
type Option func(*Executor)

// WithTrigger registers fn to be called each time an event's actions are
// about to run (once per iteration inside control constructs).
func WithTrigger(fn TriggerFunc) Option {
	return func(x *Executor) { x.onTrigger = fn }
}

// Executor walks the event tree of one scene. It is single-threaded: the
// tree is executed depth first, left to right, on the caller's goroutine.
type Executor struct {
	scene     *core.Scene
	eval      *expression.Evaluator
	instrs    Instructions
	events    []*Event
	onTrigger TriggerFunc

	path     []int
	reported map[string]bool
}

// NewExecutor returns an executor for events running on the evaluator's
// scene.
func NewExecutor(eval *expression.Evaluator, instrs Instructions, events []*Event, opts ...Option) *Executor {
	x := &Executor{
		scene:    eval.Scene(),
		eval:     eval,
		instrs:   instrs,
		events:   events,
		reported: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Scene returns the scene the executor runs on.
func (x *Executor) Scene() *core.Scene { return x.scene }

// ExecuteEventsScene runs the whole tree once and returns the scene change
// requested during the walk.
func (x *Executor) ExecuteEventsScene() core.SceneChange {
	x.path = x.path[:0]
	x.ExecuteEvents(x.events, core.NewScope(x.scene.Objects))
	return x.scene.TakeChange()
}

// ExecuteEvents runs list in order, each event in a scope inherited from
// parent. It reports whether processing was stopped.
func (x *Executor) ExecuteEvents(list []*Event, parent *core.Scope) (stopped bool) {
	for i, ev := range list {
		if ev == nil || ev.Disabled {
			continue
		}
		x.path = append(x.path, i)
		stopped = x.executeEvent(ev, parent.Inherit())
		x.path = x.path[:len(x.path)-1]
		if stopped {
			return true
		}
	}
	return false
}

func (x *Executor) executeEvent(ev *Event, scope *core.Scope) (stopped bool) {
	switch x.ExecuteConditions(ev, scope, 0) {
	case ConditionsTrue:
		x.trigger(ev)
		return x.bodyFrom(ev, scope, 0)
	case ConditionsStop:
		return true
	default:
		return false
	}
}

// ExecuteConditions evaluates ev's conditions from start. In And mode the
// first false condition ends the evaluation, in Or mode the first true one.
// A control construct takes over the rest of the event and the result is
// ConditionsHandled or ConditionsStop.
func (x *Executor) ExecuteConditions(ev *Event, scope *core.Scope, start int) ConditionResult {
	for i := start; i < len(ev.Conditions); i++ {
		in := &ev.Conditions[i]
		switch in.Kind {
		case Repeat:
			return x.repeatConditions(ev, scope, i)
		case ForEach:
			return x.forEachConditions(ev, scope, i)
		case While:
			return x.whileConditions(ev, scope, i)
		}
		ok := x.testCondition(in, scope)
		if ev.Mode == And && !ok {
			return ConditionsFalse
		}
		if ev.Mode == Or && ok {
			return ConditionsTrue
		}
	}
	if ev.Mode == Or && start < len(ev.Conditions) {
		return ConditionsFalse
	}
	return ConditionsTrue
}

// iterate runs ev from condition next onwards in scope.
func (x *Executor) iterate(ev *Event, scope *core.Scope, next int) (stopped bool) {
	switch x.ExecuteConditions(ev, scope, next) {
	case ConditionsStop:
		return true
	case ConditionsTrue:
		x.trigger(ev)
		return x.bodyFrom(ev, scope, 0)
	default:
		return false
	}
}

func (x *Executor) repeatConditions(ev *Event, scope *core.Scope, i int) ConditionResult {
	count := x.count(&ev.Conditions[i], scope)
	if count <= 0 {
		return ConditionsFalse
	}
	for k := 0; k < count; k++ {
		if x.iterate(ev, scope.Inherit(), i+1) {
			return ConditionsStop
		}
	}
	return ConditionsHandled
}

func (x *Executor) forEachConditions(ev *Event, scope *core.Scope, i int) ConditionResult {
	name := expression.NameAt(ev.Conditions[i].Params, 0)
	for _, id := range scope.PickAndRemove(name) {
		if !x.scene.Objects.Alive(id) {
			continue
		}
		iter := scope.Inherit()
		iter.AddObject(id)
		if x.iterate(ev, iter, i+1) {
			return ConditionsStop
		}
	}
	return ConditionsHandled
}

// whileConditions loops while the n inner conditions after the construct
// evaluate to the expected value. Every iteration starts from the enclosing
// scope; the conditions after the inner range gate each iteration's body.
func (x *Executor) whileConditions(ev *Event, scope *core.Scope, i int) ConditionResult {
	in := &ev.Conditions[i]
	expected := !strings.EqualFold(expression.NameAt(in.Params, 0), "False")
	n := 1
	if len(in.Params) > 1 {
		n = int(x.eval.EvalExp(scope, in.Params[1], core.NoObject, core.NoObject))
	}
	if n < 1 {
		n = 1
	}
	end := min(i+1+n, len(ev.Conditions))

	for {
		iter := scope.Inherit()
		if x.innerHolds(ev, iter, i+1, end) != expected {
			return ConditionsHandled
		}
		if x.iterate(ev, iter, end) {
			return ConditionsStop
		}
	}
}

func (x *Executor) innerHolds(ev *Event, scope *core.Scope, from, to int) bool {
	for k := from; k < to; k++ {
		in := &ev.Conditions[k]
		if in.Kind != Standard {
			x.reportOnce(core.CodeBadParameter, in.String(), "control construct %s cannot be a While condition", in.Kind)
			return false
		}
		if !x.testCondition(in, scope) {
			return false
		}
	}
	return true
}

func (x *Executor) testCondition(in *Instruction, scope *core.Scope) bool {
	def, ok := x.instrs.Condition(in.Type)
	if !ok || def.Test == nil {
		x.reportOnce(core.CodeUnknownCondition, in.Type, "unknown condition %q", in.Type)
		return false
	}
	call := x.call(in, scope)
	switch def.Picking {
	case PickObjects:
		name := call.Name(0)
		picked := scope.Pick(name)
		keep := picked[:0]
		for _, id := range picked {
			call.Obj1 = id
			if def.Test(call) != in.Inverted {
				keep = append(keep, id)
			}
		}
		scope.Narrow(name, keep)
		return len(keep) > 0
	case PickCustom:
		return def.Test(call)
	default:
		return def.Test(call) != in.Inverted
	}
}

// ExecuteActions runs ev's actions from start in order.
func (x *Executor) ExecuteActions(ev *Event, scope *core.Scope, start int) Outcome {
	j := start
	for j < len(ev.Actions) {
		out := x.executeAction(ev, scope, j)
		if out.Kind != Continue {
			return out
		}
		j = out.Next
	}
	return Outcome{Kind: Done}
}

func (x *Executor) executeAction(ev *Event, scope *core.Scope, j int) Outcome {
	in := &ev.Actions[j]
	switch in.Kind {
	case Repeat:
		return x.repeatActions(ev, scope, j)
	case ForEach:
		return x.forEachActions(ev, scope, j)
	case While:
		x.reportOnce(core.CodeBadParameter, in.String(), "While is only allowed among conditions")
		return continueAt(j + 1)
	}

	def, ok := x.instrs.Action(in.Type)
	if !ok || def.Do == nil {
		x.reportOnce(core.CodeUnknownAction, in.Type, "unknown action %q", in.Type)
		return continueAt(j + 1)
	}
	call := x.call(in, scope)
	if def.Picking == PickObjects {
		for _, id := range scope.Pick(call.Name(0)) {
			call.Obj1 = id
			def.Do(call)
		}
	} else {
		def.Do(call)
	}
	if x.scene.PendingChange().Pending() {
		return Outcome{Kind: Stop}
	}
	return continueAt(j + 1)
}

// bodyFrom runs the actions from j and then, unless a construct already
// did, the sub-events.
func (x *Executor) bodyFrom(ev *Event, scope *core.Scope, j int) (stopped bool) {
	switch x.ExecuteActions(ev, scope, j).Kind {
	case Stop:
		return true
	case Handled:
		return false
	default:
		return x.ExecuteEvents(ev.SubEvents, scope)
	}
}

func (x *Executor) repeatActions(ev *Event, scope *core.Scope, j int) Outcome {
	count := x.count(&ev.Actions[j], scope)
	for k := 0; k < count; k++ {
		if x.bodyFrom(ev, scope.Inherit(), j+1) {
			return Outcome{Kind: Stop}
		}
	}
	return Outcome{Kind: Handled}
}

func (x *Executor) forEachActions(ev *Event, scope *core.Scope, j int) Outcome {
	name := expression.NameAt(ev.Actions[j].Params, 0)
	for _, id := range scope.PickAndRemove(name) {
		if !x.scene.Objects.Alive(id) {
			continue
		}
		iter := scope.Inherit()
		iter.AddObject(id)
		if x.bodyFrom(ev, iter, j+1) {
			return Outcome{Kind: Stop}
		}
	}
	return Outcome{Kind: Handled}
}

func (x *Executor) count(in *Instruction, scope *core.Scope) int {
	if len(in.Params) == 0 {
		return 0
	}
	return int(x.eval.EvalExp(scope, in.Params[0], core.NoObject, core.NoObject))
}

func (x *Executor) call(in *Instruction, scope *core.Scope) *Call {
	return &Call{
		Scene:    x.scene,
		Scope:    scope,
		Params:   in.Params,
		Inverted: in.Inverted,
		eval:     x.eval,
	}
}

func (x *Executor) trigger(ev *Event) {
	if x.onTrigger == nil {
		return
	}
	parts := make([]string, len(x.path))
	for i, p := range x.path {
		parts[i] = strconv.Itoa(p)
	}
	x.onTrigger(strings.Join(parts, "/"), ev)
}

func (x *Executor) reportOnce(code, source, format string, args ...any) {
	key := code + "\x00" + source
	if x.reported[key] {
		return
	}
	x.reported[key] = true
	x.scene.Diagnostics.Errorf(code, source, format, args...)
}
