package registry

import (
	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
)

func registerConditions(r *Registry) {
	r.RegisterCondition(InstructionDef{
		Type: "Always", Category: "scene", Description: "Always true",
	}, events.Condition{Test: func(*events.Call) bool { return true }})

	registerVariableConditions(r, "VarScene", "scene", func(c *events.Call) *core.Variables { return c.Scene.Variables })
	registerVariableConditions(r, "VarGlobal", "global", func(c *events.Call) *core.Variables { return c.Scene.Globals })

	r.RegisterCondition(InstructionDef{
		Type: "PosX", Category: "objects", Description: "Compare the X position of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Relation(2).Compare(c.Object().X, c.Number(1))
	}})
	r.RegisterCondition(InstructionDef{
		Type: "PosY", Category: "objects", Description: "Compare the Y position of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Relation(2).Compare(c.Object().Y, c.Number(1))
	}})
	r.RegisterCondition(InstructionDef{
		Type: "Angle", Category: "objects", Description: "Compare the angle of an object",
		Params: []string{"object", "value", "sign"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Relation(2).Compare(c.Object().Angle, c.Number(1))
	}})
	r.RegisterCondition(InstructionDef{
		Type: "VarObject", Category: "variables", Description: "Compare an object variable",
		Params: []string{"object", "variable", "value", "sign"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Relation(3).Compare(c.Object().Variables.Value(c.Name(1)), c.Number(2))
	}})
	r.RegisterCondition(InstructionDef{
		Type: "VarObjectTxt", Category: "variables", Description: "Compare the text of an object variable",
		Params: []string{"object", "variable", "text", "sign"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Relation(3).CompareText(c.Object().Variables.Text(c.Name(1)), c.Text(2))
	}})
	r.RegisterCondition(InstructionDef{
		Type: "VarObjectDef", Category: "variables", Description: "Test if an object variable exists",
		Params: []string{"object", "variable"},
	}, events.Condition{Picking: events.PickObjects, Test: func(c *events.Call) bool {
		return c.Object().Variables.Has(c.Name(1))
	}})

	r.RegisterCondition(InstructionDef{
		Type: "NbObject", Category: "objects", Description: "Compare the number of picked instances",
		Params: []string{"object", "value", "sign"},
	}, events.Condition{Picking: events.PickCustom, Test: func(c *events.Call) bool {
		n := float64(len(c.Scope.Pick(c.Name(0))))
		return c.Relation(2).Compare(n, c.Number(1)) != c.Inverted
	}})
	r.RegisterCondition(InstructionDef{
		Type: "Distance", Category: "objects", Description: "Pick the pairs of instances within a distance",
		Params: []string{"object", "other", "distance"},
	}, events.Condition{Picking: events.PickCustom, Test: distanceCondition})

	r.RegisterCondition(InstructionDef{
		Type: "Timer", Category: "timers", Description: "Test if a timer reached a duration. Starts the timer if it does not exist.",
		Params: []string{"seconds", "timer"},
	}, events.Condition{Test: func(c *events.Call) bool {
		name := c.Name(1)
		if !c.Scene.Timers.Exists(name) {
			c.Scene.Timers.Reset(name)
			return false
		}
		return c.Scene.Timers.Seconds(name) >= c.Number(0)
	}})
	r.RegisterCondition(InstructionDef{
		Type: "TimerPaused", Category: "timers", Description: "Test if a timer is paused",
		Params: []string{"timer"},
	}, events.Condition{Test: func(c *events.Call) bool {
		return c.Scene.Timers.Paused(c.Name(0))
	}})
}

// registerVariableConditions registers the numeric, text and existence
// comparisons on one variable store under prefix, prefix+"Txt" and
// prefix+"Def".
func registerVariableConditions(r *Registry, prefix, store string, vars func(*events.Call) *core.Variables) {
	r.RegisterCondition(InstructionDef{
		Type: prefix, Category: "variables", Description: "Compare a " + store + " variable",
		Params: []string{"variable", "value", "sign"},
	}, events.Condition{Test: func(c *events.Call) bool {
		return c.Relation(2).Compare(vars(c).Value(c.Name(0)), c.Number(1))
	}})
	r.RegisterCondition(InstructionDef{
		Type: prefix + "Txt", Category: "variables", Description: "Compare the text of a " + store + " variable",
		Params: []string{"variable", "text", "sign"},
	}, events.Condition{Test: func(c *events.Call) bool {
		return c.Relation(2).CompareText(vars(c).Text(c.Name(0)), c.Text(1))
	}})
	r.RegisterCondition(InstructionDef{
		Type: prefix + "Def", Category: "variables", Description: "Test if a " + store + " variable exists",
		Params: []string{"variable"},
	}, events.Condition{Test: func(c *events.Call) bool {
		return vars(c).Has(c.Name(0))
	}})
}

// distanceCondition keeps the instances of both objects that have at least
// one partner of the other object closer than the distance (or, inverted,
// not closer). Both picks are narrowed.
func distanceCondition(c *events.Call) bool {
	name1, name2 := c.Name(0), c.Name(1)
	list1, list2 := c.Scope.Pick(name1), c.Scope.Pick(name2)
	limit := c.Number(2)
	limitSq := limit * limit

	keep1 := make([]core.ObjectID, 0, len(list1))
	keep2 := make(map[core.ObjectID]bool, len(list2))
	for _, a := range list1 {
		objA := c.Scene.Objects.Get(a)
		matched := false
		for _, b := range list2 {
			if a == b {
				continue
			}
			objB := c.Scene.Objects.Get(b)
			if (sqDistance(objA, objB) < limitSq) != c.Inverted {
				matched = true
				keep2[b] = true
			}
		}
		if matched {
			keep1 = append(keep1, a)
		}
	}

	if name1 == name2 {
		for _, id := range list1 {
			if keep2[id] && !containsObject(keep1, id) {
				keep1 = append(keep1, id)
			}
		}
		c.Scope.Narrow(name1, keep1)
		return len(keep1) > 0
	}
	kept2 := make([]core.ObjectID, 0, len(keep2))
	for _, id := range list2 {
		if keep2[id] {
			kept2 = append(kept2, id)
		}
	}
	c.Scope.Narrow(name1, keep1)
	c.Scope.Narrow(name2, kept2)
	return len(keep1) > 0
}

func containsObject(ids []core.ObjectID, id core.ObjectID) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}
