package registry

import (
	"math"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expression"
)

// registerBuiltins registers the standard extensions.
// Called by NewWithBuiltins.
func registerBuiltins(r *Registry) {
	registerExpressions(r)
	registerMathExtension(r)
	registerConditions(r)
	registerActions(r)
}

func registerExpressions(r *Registry) {
	// Object expressions, available on every object type.
	r.RegisterObjectFunction(InstructionDef{
		Type: "X", Category: "objects", Description: "Horizontal position",
	}, func(_ *expression.Context, obj *core.Object, _ []*expression.Expression) float64 {
		return obj.X
	})
	r.RegisterObjectFunction(InstructionDef{
		Type: "Y", Category: "objects", Description: "Vertical position",
	}, func(_ *expression.Context, obj *core.Object, _ []*expression.Expression) float64 {
		return obj.Y
	})
	r.RegisterObjectFunction(InstructionDef{
		Type: "Angle", Category: "objects", Description: "Angle in degrees",
	}, func(_ *expression.Context, obj *core.Object, _ []*expression.Expression) float64 {
		return obj.Angle
	})
	r.RegisterObjectFunction(InstructionDef{
		Type: "Distance", Category: "objects", Description: "Distance to another object",
		Params: []string{"object"},
	}, func(c *expression.Context, obj *core.Object, params []*expression.Expression) float64 {
		other := otherObject(c, params)
		if other == nil {
			return 0
		}
		return math.Sqrt(sqDistance(obj, other))
	})
	r.RegisterObjectFunction(InstructionDef{
		Type: "SqDistance", Category: "objects", Description: "Squared distance to another object",
		Params: []string{"object"},
	}, func(c *expression.Context, obj *core.Object, params []*expression.Expression) float64 {
		other := otherObject(c, params)
		if other == nil {
			return 0
		}
		return sqDistance(obj, other)
	})
	r.RegisterObjectFunction(InstructionDef{
		Type: "Variable", Category: "variables", Description: "Value of an object variable",
		Params: []string{"variable"},
	}, func(_ *expression.Context, obj *core.Object, params []*expression.Expression) float64 {
		return obj.Variables.Value(expression.NameAt(params, 0))
	})

	// VAL(...) built-ins.
	r.RegisterBuiltin(InstructionDef{
		Type: "Variable", Category: "variables", Description: "Value of a scene variable",
		Params: []string{"variable"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		return c.Scene.Variables.Value(expression.NameAt(params, 0))
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "GlobalVariable", Category: "variables", Description: "Value of a global variable",
		Params: []string{"variable"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		return c.Scene.Globals.Value(expression.NameAt(params, 0))
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "Random", Category: "math", Description: "Random integer between 0 and max inclusive",
		Params: []string{"max"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		limit := c.NumberAt(params, 0)
		if limit < 1 || math.IsNaN(limit) || math.IsInf(limit, 0) {
			return 0
		}
		return float64(c.Scene.Rand.IntN(int(limit) + 1))
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "TimeDelta", Category: "timers", Description: "Length of the last frame in seconds",
	}, func(c *expression.Context, _ []*expression.Expression) float64 {
		return c.Scene.Clock.Delta()
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "Time", Category: "timers", Description: "Seconds since the scene started",
	}, func(c *expression.Context, _ []*expression.Expression) float64 {
		return c.Scene.Clock.Elapsed()
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "Frame", Category: "timers", Description: "Number of ticks since the scene started",
	}, func(c *expression.Context, _ []*expression.Expression) float64 {
		return float64(c.Scene.Clock.Frame())
	})
	r.RegisterBuiltin(InstructionDef{
		Type: "Timer", Category: "timers", Description: "Elapsed seconds of a timer",
		Params: []string{"timer"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		return c.Scene.Timers.Seconds(expression.NameAt(params, 0))
	})
}

func registerMathExtension(r *Registry) {
	r.RegisterExtension(InstructionDef{
		Type: "Clamp", Category: "math", Description: "Clamp a value to [min, max]",
		Params: []string{"value", "min", "max"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		v, lo, hi := c.NumberAt(params, 0), c.NumberAt(params, 1), c.NumberAt(params, 2)
		return math.Max(lo, math.Min(hi, v))
	})
	r.RegisterExtension(InstructionDef{
		Type: "Lerp", Category: "math", Description: "Linear interpolation from a to b",
		Params: []string{"a", "b", "t"},
	}, func(c *expression.Context, params []*expression.Expression) float64 {
		a, b, t := c.NumberAt(params, 0), c.NumberAt(params, 1), c.NumberAt(params, 2)
		return a + (b-a)*t
	})
}

// otherObject resolves the object named by params[0] within the caller's
// scope, preferring the secondary current object.
func otherObject(c *expression.Context, params []*expression.Expression) *core.Object {
	name := expression.NameAt(params, 0)
	if name == "" {
		return nil
	}
	id := core.Resolve(c.Scope.Pick(name), c.Obj2, c.Obj1)
	return c.Scene.Objects.Get(id)
}

func sqDistance(a, b *core.Object) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return dx*dx + dy*dy
}
