// Package sheet holds the serializable form of a game: scenes, their
// initial state and their event trees. Definitions are loaded from JSON,
// YAML or HCL files, validated against an extension registry and built
// into a runnable runtime.Game.
package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Diagnostic represents a validation error or warning found in a
// definition.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "SH-004"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // path to the offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Validation codes.
const (
	CodeNoScenes          = "SH-001"
	CodeDuplicateScene    = "SH-002"
	CodeUnknownStartScene = "SH-003"
	CodeUnknownCondition  = "SH-004"
	CodeUnknownAction     = "SH-005"
	CodeBadKind           = "SH-006"
	CodeControlParams     = "SH-007"
	CodeBadExpression     = "SH-008"
	CodeUnknownFunction   = "SH-009"
	CodeUnknownTarget     = "SH-010"
	CodeDuplicateName     = "SH-011"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// Definition is the serializable representation of a game. The hcl tags
// describe the HCL layout: top-level attributes plus "global" and "scene"
// blocks.
type Definition struct {
	Name       string        `json:"name" hcl:"name"`
	StartScene string        `json:"start_scene,omitempty" hcl:"start_scene,optional"`
	Globals    []VariableDef `json:"globals,omitempty" hcl:"global,block"`
	Scenes     []SceneDef    `json:"scenes" hcl:"scene,block"`
}

// VariableDef is the initial value of a variable.
type VariableDef struct {
	Name  string  `json:"name" hcl:"name,label"`
	Value float64 `json:"value,omitempty" hcl:"value,optional"`
	Text  string  `json:"text,omitempty" hcl:"text,optional"`
}

// ObjectDef is an instance present when its scene starts.
type ObjectDef struct {
	Name      string        `json:"name" hcl:"name,label"`
	X         float64       `json:"x,omitempty" hcl:"x,optional"`
	Y         float64       `json:"y,omitempty" hcl:"y,optional"`
	Angle     float64       `json:"angle,omitempty" hcl:"angle,optional"`
	Variables []VariableDef `json:"variables,omitempty" hcl:"variable,block"`
}

// SceneDef describes one scene.
type SceneDef struct {
	Name        string            `json:"name" hcl:"name,label"`
	Variables   []VariableDef     `json:"variables,omitempty" hcl:"variable,block"`
	ObjectTypes map[string]string `json:"object_types,omitempty" hcl:"object_types,optional"`
	Objects     []ObjectDef       `json:"objects,omitempty" hcl:"object,block"`
	Events      []EventDef        `json:"events,omitempty" hcl:"event,block"`
}

// EventDef is a node of an event tree.
type EventDef struct {
	Name       string           `json:"name,omitempty" hcl:"name,optional"`
	Disabled   bool             `json:"disabled,omitempty" hcl:"disabled,optional"`
	Mode       string           `json:"mode,omitempty" hcl:"mode,optional"` // "and" (default) or "or"
	Conditions []InstructionDef `json:"conditions,omitempty" hcl:"condition,block"`
	Actions    []InstructionDef `json:"actions,omitempty" hcl:"action,block"`
	Events     []EventDef       `json:"events,omitempty" hcl:"event,block"`
}

// InstructionDef is a condition or action. Control constructs set Kind
// ("repeat", "foreach", "while") and leave Type empty.
type InstructionDef struct {
	Type     string `json:"type,omitempty" hcl:"type,optional"`
	Kind     string `json:"kind,omitempty" hcl:"kind,optional"`
	Params   Params `json:"params,omitempty" hcl:"params,optional"`
	Inverted bool   `json:"inverted,omitempty" hcl:"inverted,optional"`
}

// Scene returns the scene called name.
func (d *Definition) Scene(name string) (*SceneDef, bool) {
	for i := range d.Scenes {
		if d.Scenes[i].Name == name {
			return &d.Scenes[i], true
		}
	}
	return nil, false
}

// Params are instruction parameters in source form. JSON numbers and
// booleans are kept as their literal text, so YAML authors can write
// `params: [score, 1, "+"]`.
type Params []string

func (p *Params) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Params, len(raw))
	for i, r := range raw {
		r = bytes.TrimSpace(r)
		switch {
		case len(r) > 0 && r[0] == '"':
			if err := json.Unmarshal(r, &out[i]); err != nil {
				return err
			}
		case len(r) > 0 && (r[0] == '{' || r[0] == '['):
			return fmt.Errorf("params[%d]: expected a scalar, got %s", i, r)
		case bytes.Equal(r, []byte("null")):
			out[i] = ""
		default:
			out[i] = string(r)
		}
	}
	*p = out
	return nil
}
