package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/expression"
	"github.com/petal-labs/eventsheet/runtime"
)

// Validate checks the definition. Structural rules always apply; rules
// about instruction types and functions apply when ext is not nil:
//   - SH-001: at least one scene
//   - SH-002: scene names are unique
//   - SH-003: start scene exists
//   - SH-004, SH-005: condition and action types are registered
//   - SH-006: kinds and modes are known
//   - SH-007: control construct parameters
//   - SH-008: expressions are well formed
//   - SH-009: VAL functions exist (warning)
//   - SH-010: literal Scene targets exist (warning)
//   - SH-011: duplicate variable names (warning)
func (d *Definition) Validate(ext runtime.Extensions) []Diagnostic {
	v := &validator{def: d, ext: ext}

	if len(d.Scenes) == 0 {
		v.errorf(CodeNoScenes, "scenes", "Game %q has no scenes", d.Name)
	}

	seen := make(map[string]bool, len(d.Scenes))
	for i, s := range d.Scenes {
		if seen[s.Name] {
			v.errorf(CodeDuplicateScene, fmt.Sprintf("scenes[%d].name", i), "Duplicate scene name %q", s.Name)
		}
		seen[s.Name] = true
	}

	if d.StartScene != "" && !seen[d.StartScene] {
		v.errorf(CodeUnknownStartScene, "start_scene", "Start scene %q does not exist", d.StartScene)
	}

	v.variables("globals", d.Globals)
	for i := range d.Scenes {
		v.scene(fmt.Sprintf("scenes[%d]", i), &d.Scenes[i])
	}
	return v.diags
}

type validator struct {
	def   *Definition
	ext   runtime.Extensions
	types objectTypes
	diags []Diagnostic
}

// objectTypes resolves object types while preprocessing outside a scene.
type objectTypes map[string]string

func (t objectTypes) TypeOf(name string) string {
	if typ, ok := t[name]; ok && typ != "" {
		return typ
	}
	return core.BaseType
}

func (v *validator) errorf(code, path, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Path: path})
}

func (v *validator) warnf(code, path, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Path: path})
}

func (v *validator) variables(path string, vars []VariableDef) {
	seen := make(map[string]bool, len(vars))
	for i, vr := range vars {
		if seen[vr.Name] {
			v.warnf(CodeDuplicateName, fmt.Sprintf("%s[%d].name", path, i), "Variable %q is declared more than once; the last value wins", vr.Name)
		}
		seen[vr.Name] = true
	}
}

func (v *validator) scene(path string, s *SceneDef) {
	v.types = objectTypes(s.ObjectTypes)
	v.variables(path+".variables", s.Variables)
	for i, o := range s.Objects {
		v.variables(fmt.Sprintf("%s.objects[%d].variables", path, i), o.Variables)
	}
	for i := range s.Events {
		v.event(fmt.Sprintf("%s.events[%d]", path, i), &s.Events[i])
	}
}

func (v *validator) event(path string, ev *EventDef) {
	if _, err := parseMode(ev.Mode); err != nil {
		v.errorf(CodeBadKind, path+".mode", "%v", err)
	}

	for i, in := range ev.Conditions {
		p := fmt.Sprintf("%s.conditions[%d]", path, i)
		v.instruction(p, in, true, len(ev.Conditions)-i-1)
	}
	for i, in := range ev.Actions {
		p := fmt.Sprintf("%s.actions[%d]", path, i)
		v.instruction(p, in, false, 0)
	}
	for i := range ev.Events {
		v.event(fmt.Sprintf("%s.events[%d]", path, i), &ev.Events[i])
	}
}

// instruction checks one condition or action. following is the number of
// conditions after it, which bounds a While's inner range.
func (v *validator) instruction(path string, in InstructionDef, condition bool, following int) {
	kind, err := events.ParseKind(in.Kind)
	if err != nil {
		v.errorf(CodeBadKind, path+".kind", "%v", err)
		return
	}

	switch kind {
	case events.Standard:
		v.standard(path, in, condition)
	case events.Repeat, events.ForEach:
		if len(in.Params) != 1 || strings.TrimSpace(in.Params[0]) == "" {
			v.errorf(CodeControlParams, path+".params", "%s takes exactly one parameter", kind)
		}
	case events.While:
		if !condition {
			v.errorf(CodeControlParams, path+".kind", "While is only allowed among conditions")
			return
		}
		v.while(path, in, following)
	}

	for i, p := range in.Params {
		v.expression(fmt.Sprintf("%s.params[%d]", path, i), p)
	}
}

func (v *validator) standard(path string, in InstructionDef, condition bool) {
	if in.Type == "" {
		v.errorf(CodeBadKind, path+".type", "Instruction has neither a type nor a control kind")
		return
	}
	if v.ext == nil {
		return
	}
	if condition {
		if _, ok := v.ext.Condition(in.Type); !ok {
			v.errorf(CodeUnknownCondition, path+".type", "Unknown condition type %q", in.Type)
		}
		return
	}
	if _, ok := v.ext.Action(in.Type); !ok {
		v.errorf(CodeUnknownAction, path+".type", "Unknown action type %q", in.Type)
		return
	}
	if in.Type == "Scene" && len(in.Params) > 0 {
		target := strings.TrimSpace(in.Params[0])
		if !strings.Contains(target, `"`) {
			if _, ok := v.def.Scene(target); !ok {
				v.warnf(CodeUnknownTarget, path+".params[0]", "Scene %q does not exist", target)
			}
		}
	}
}

func (v *validator) while(path string, in InstructionDef, following int) {
	if len(in.Params) == 0 {
		v.errorf(CodeControlParams, path+".params", "While needs an expected value")
		return
	}
	exp := strings.TrimSpace(in.Params[0])
	if !strings.EqualFold(exp, "True") && !strings.EqualFold(exp, "False") {
		v.errorf(CodeControlParams, path+".params[0]", "While expects True or False, got %q", exp)
	}
	n := 1
	if len(in.Params) > 1 {
		parsed, err := strconv.Atoi(strings.TrimSpace(in.Params[1]))
		if err != nil {
			v.errorf(CodeControlParams, path+".params[1]", "While inner condition count %q is not an integer", in.Params[1])
			return
		}
		n = parsed
	}
	if n < 1 || n > following {
		v.warnf(CodeControlParams, path+".params", "While covers %d inner conditions but %d follow it", n, following)
	}
}

// expression preprocesses text as the runner would and reports structural
// problems. Formula compile failures are ignored: many parameters are
// names, not numbers.
func (v *validator) expression(path, text string) {
	e := expression.New(text)
	log := &core.DiagnosticLog{}
	expression.Preprocess(e, v.ext, v.types, log)

	for _, d := range log.Entries() {
		if d.Code == core.CodeBadFormula {
			continue
		}
		v.errorf(CodeBadExpression, path, "%s: %s", d.Code, d.Message)
	}
	if v.ext != nil {
		for _, name := range unknownFunctions(e.Steps()) {
			v.warnf(CodeUnknownFunction, path, "VAL function %q is not registered and evaluates to 0", name)
		}
	}
}

func unknownFunctions(steps []expression.Step) []string {
	var out []string
	for _, s := range steps {
		var params []*expression.Expression
		switch st := s.(type) {
		case expression.ContextStep:
			// without parameters VAL(name) reads a scene variable
			if st.Func == nil && len(st.Params) > 0 {
				out = append(out, st.Name)
			}
			params = st.Params
		case expression.ObjectStep:
			params = st.Params
		}
		for _, p := range params {
			out = append(out, unknownFunctions(p.Steps())...)
		}
	}
	return out
}
