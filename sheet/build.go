package sheet

import (
	"fmt"
	"strings"

	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/expression"
	"github.com/petal-labs/eventsheet/runtime"
)

// Build converts the definition into a runnable game. It fails only on
// kinds and modes it cannot represent; run Validate first for everything
// else.
func (d *Definition) Build() (*runtime.Game, error) {
	game := &runtime.Game{
		Name:       d.Name,
		Globals:    variableSpecs(d.Globals),
		StartScene: d.StartScene,
	}
	for i := range d.Scenes {
		scene, err := buildScene(&d.Scenes[i])
		if err != nil {
			return nil, fmt.Errorf("scene %q: %w", d.Scenes[i].Name, err)
		}
		game.Scenes = append(game.Scenes, scene)
	}
	return game, nil
}

func buildScene(s *SceneDef) (*runtime.SceneSpec, error) {
	spec := &runtime.SceneSpec{
		Name:        s.Name,
		Variables:   variableSpecs(s.Variables),
		ObjectTypes: make(map[string]string, len(s.ObjectTypes)),
	}
	for name, typ := range s.ObjectTypes {
		spec.ObjectTypes[name] = typ
	}
	for _, o := range s.Objects {
		spec.Objects = append(spec.Objects, runtime.ObjectSpec{
			Name:      o.Name,
			X:         o.X,
			Y:         o.Y,
			Angle:     o.Angle,
			Variables: variableSpecs(o.Variables),
		})
	}
	for i := range s.Events {
		ev, err := buildEvent(&s.Events[i])
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		spec.Events = append(spec.Events, ev)
	}
	return spec, nil
}

func buildEvent(def *EventDef) (*events.Event, error) {
	mode, err := parseMode(def.Mode)
	if err != nil {
		return nil, err
	}
	ev := &events.Event{
		Name:     def.Name,
		Disabled: def.Disabled,
		Mode:     mode,
	}
	if ev.Conditions, err = buildInstructions(def.Conditions); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	if ev.Actions, err = buildInstructions(def.Actions); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	for i := range def.Events {
		sub, err := buildEvent(&def.Events[i])
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		ev.SubEvents = append(ev.SubEvents, sub)
	}
	return ev, nil
}

func buildInstructions(defs []InstructionDef) ([]events.Instruction, error) {
	out := make([]events.Instruction, 0, len(defs))
	for _, d := range defs {
		kind, err := events.ParseKind(d.Kind)
		if err != nil {
			return nil, err
		}
		in := events.Instruction{
			Type:     d.Type,
			Kind:     kind,
			Inverted: d.Inverted,
			Params:   make([]*expression.Expression, len(d.Params)),
		}
		for i, p := range d.Params {
			in.Params[i] = expression.New(p)
		}
		out = append(out, in)
	}
	return out, nil
}

func parseMode(s string) (events.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return events.And, nil
	case "or":
		return events.Or, nil
	}
	return events.And, fmt.Errorf("unknown event mode %q", s)
}

func variableSpecs(defs []VariableDef) []runtime.VariableSpec {
	if len(defs) == 0 {
		return nil
	}
	out := make([]runtime.VariableSpec, len(defs))
	for i, v := range defs {
		out[i] = runtime.VariableSpec{Name: v.Name, Value: v.Value, Text: v.Text}
	}
	return out
}
