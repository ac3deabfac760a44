package registry

import (
	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
)

func registerActions(r *Registry) {
	registerVariableActions(r, "ModVarScene", "scene", func(c *events.Call) *core.Variables { return c.Scene.Variables })
	registerVariableActions(r, "ModVarGlobal", "global", func(c *events.Call) *core.Variables { return c.Scene.Globals })

	r.RegisterAction(InstructionDef{
		Type: "ModVarObject", Category: "variables", Description: "Modify an object variable",
		Params: []string{"object", "variable", "value", "sign"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		c.Object().Variables.FindOrCreate(c.Name(1)).Apply(c.Operator(3), c.Number(2))
	}})
	r.RegisterAction(InstructionDef{
		Type: "ModVarObjectTxt", Category: "variables", Description: "Modify the text of an object variable",
		Params: []string{"object", "variable", "text", "sign"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		applyText(c, c.Object().Variables.FindOrCreate(c.Name(1)), 3, c.Text(2))
	}})

	r.RegisterAction(InstructionDef{
		Type: "SetX", Category: "objects", Description: "Modify the X position of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		obj := c.Object()
		obj.X = apply(c.Operator(2), obj.X, c.Number(1))
	}})
	r.RegisterAction(InstructionDef{
		Type: "SetY", Category: "objects", Description: "Modify the Y position of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		obj := c.Object()
		obj.Y = apply(c.Operator(2), obj.Y, c.Number(1))
	}})
	r.RegisterAction(InstructionDef{
		Type: "SetXY", Category: "objects", Description: "Move an object",
		Params: []string{"object", "x", "y"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		obj := c.Object()
		obj.X, obj.Y = c.Number(1), c.Number(2)
	}})
	r.RegisterAction(InstructionDef{
		Type: "SetAngle", Category: "objects", Description: "Modify the angle of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		obj := c.Object()
		obj.Angle = apply(c.Operator(2), obj.Angle, c.Number(1))
	}})

	r.RegisterAction(InstructionDef{
		Type: "Create", Category: "objects", Description: "Create an instance and pick it",
		Params: []string{"object", "x", "y"},
	}, events.Action{Do: func(c *events.Call) {
		id := c.Scene.Objects.Create(c.Name(0), c.Number(1), c.Number(2))
		c.Scope.AddObject(id)
	}})
	r.RegisterAction(InstructionDef{
		Type: "Duplicate", Category: "objects", Description: "Duplicate the picked instances",
		Params: []string{"object"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		src := c.Object()
		id := c.Scene.Objects.Create(src.Name, src.X, src.Y)
		dup := c.Scene.Objects.Get(id)
		dup.Angle = src.Angle
		dup.Variables = src.Variables.Clone()
		c.Scope.AddObject(id)
	}})
	r.RegisterAction(InstructionDef{
		Type: "Delete", Category: "objects", Description: "Delete the picked instances",
		Params: []string{"object"},
	}, events.Action{Picking: events.PickObjects, Do: func(c *events.Call) {
		c.Scene.Objects.Delete(c.Obj1)
	}})

	r.RegisterAction(InstructionDef{
		Type: "ResetTimer", Category: "timers", Description: "Restart a timer from zero",
		Params: []string{"timer"},
	}, events.Action{Do: func(c *events.Call) { c.Scene.Timers.Reset(c.Name(0)) }})
	r.RegisterAction(InstructionDef{
		Type: "PauseTimer", Category: "timers", Description: "Pause a timer",
		Params: []string{"timer"},
	}, events.Action{Do: func(c *events.Call) { c.Scene.Timers.Pause(c.Name(0)) }})
	r.RegisterAction(InstructionDef{
		Type: "UnPauseTimer", Category: "timers", Description: "Resume a paused timer",
		Params: []string{"timer"},
	}, events.Action{Do: func(c *events.Call) { c.Scene.Timers.Resume(c.Name(0)) }})
	r.RegisterAction(InstructionDef{
		Type: "RemoveTimer", Category: "timers", Description: "Delete a timer",
		Params: []string{"timer"},
	}, events.Action{Do: func(c *events.Call) { c.Scene.Timers.Remove(c.Name(0)) }})

	r.RegisterAction(InstructionDef{
		Type: "Scene", Category: "scene", Description: "Change to another scene",
		Params: []string{"scene"},
	}, events.Action{Do: func(c *events.Call) { c.Scene.RequestChange(core.Goto(c.Text(0))) }})
	r.RegisterAction(InstructionDef{
		Type: "Quit", Category: "scene", Description: "Quit the game",
	}, events.Action{Do: func(c *events.Call) { c.Scene.RequestChange(core.Quit()) }})
	r.RegisterAction(InstructionDef{
		Type: "Log", Category: "scene", Description: "Write a message to the log",
		Params: []string{"message"},
	}, events.Action{Do: func(c *events.Call) {
		c.Scene.Logger.Info("sheet log",
			"scene", c.Scene.Name,
			"frame", c.Scene.Clock.Frame(),
			"message", c.Text(0),
		)
	}})
}

// registerVariableActions registers prefix (numeric) and prefix+"Txt" on
// one variable store.
func registerVariableActions(r *Registry, prefix, store string, vars func(*events.Call) *core.Variables) {
	r.RegisterAction(InstructionDef{
		Type: prefix, Category: "variables", Description: "Modify a " + store + " variable",
		Params: []string{"variable", "value", "sign"},
	}, events.Action{Do: func(c *events.Call) {
		vars(c).FindOrCreate(c.Name(0)).Apply(c.Operator(2), c.Number(1))
	}})
	r.RegisterAction(InstructionDef{
		Type: prefix + "Txt", Category: "variables", Description: "Modify the text of a " + store + " variable",
		Params: []string{"variable", "text", "sign"},
	}, events.Action{Do: func(c *events.Call) {
		applyText(c, vars(c).FindOrCreate(c.Name(0)), 2, c.Text(1))
	}})
}

func applyText(c *events.Call, v *core.Variable, signAt int, text string) {
	op := c.Operator(signAt)
	if !v.ApplyText(op, text) {
		c.Scene.Diagnostics.Errorf(core.CodeBadParameter, c.Name(signAt), "operator %s does not apply to text", op)
	}
}

func apply(op core.Operator, cur, x float64) float64 {
	v := core.Variable{}
	v.SetValue(cur)
	v.Apply(op, x)
	return v.Value()
}
