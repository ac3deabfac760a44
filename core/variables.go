package core

import (
	"fmt"
	"sort"
)

// Variable holds a number and a text value under one name, like the
// variables of scenes, globals and objects.
type Variable struct {
	Name  string
	value float64
	text  string
}

// Value returns the numeric value.
func (v *Variable) Value() float64 { return v.value }

// Text returns the text value.
func (v *Variable) Text() string { return v.text }

// SetValue sets the numeric value.
func (v *Variable) SetValue(x float64) { v.value = x }

// SetText sets the text value.
func (v *Variable) SetText(s string) { v.text = s }

// Apply applies a numeric compound assignment.
func (v *Variable) Apply(op Operator, x float64) {
	switch op {
	case OpSet:
		v.value = x
	case OpAdd:
		v.value += x
	case OpSub:
		v.value -= x
	case OpMul:
		v.value *= x
	case OpDiv:
		v.value /= x
	}
}

// ApplyText applies a text assignment. Only OpSet and OpAdd (append) are
// meaningful for text; other operators leave the value unchanged and
// report false.
func (v *Variable) ApplyText(op Operator, s string) bool {
	switch op {
	case OpSet:
		v.text = s
	case OpAdd:
		v.text += s
	default:
		return false
	}
	return true
}

// Variables is a named variable store. Reads of undeclared names yield
// zero values; writes create the variable.
type Variables struct {
	byName map[string]*Variable
	order  []string
}

// NewVariables returns an empty store.
func NewVariables() *Variables {
	return &Variables{byName: make(map[string]*Variable)}
}

// Get returns the named variable if it exists.
func (vs *Variables) Get(name string) (*Variable, bool) {
	v, ok := vs.byName[name]
	return v, ok
}

// FindOrCreate returns the named variable, creating it on first use.
func (vs *Variables) FindOrCreate(name string) *Variable {
	if v, ok := vs.byName[name]; ok {
		return v
	}
	v := &Variable{Name: name}
	vs.byName[name] = v
	vs.order = append(vs.order, name)
	return v
}

// Value returns the numeric value of name, or 0.
func (vs *Variables) Value(name string) float64 {
	if v, ok := vs.byName[name]; ok {
		return v.value
	}
	return 0
}

// Text returns the text value of name, or "".
func (vs *Variables) Text(name string) string {
	if v, ok := vs.byName[name]; ok {
		return v.text
	}
	return ""
}

// Has reports whether name has been created.
func (vs *Variables) Has(name string) bool {
	_, ok := vs.byName[name]
	return ok
}

// Len returns the number of variables.
func (vs *Variables) Len() int { return len(vs.order) }

// Names returns variable names in creation order.
func (vs *Variables) Names() []string {
	return append([]string(nil), vs.order...)
}

// Clone returns a deep copy.
func (vs *Variables) Clone() *Variables {
	out := NewVariables()
	for _, name := range vs.order {
		v := vs.byName[name]
		c := out.FindOrCreate(name)
		c.value, c.text = v.value, v.text
	}
	return out
}

// Snapshot returns a name to value view for reporting. Text-only variables
// appear with their text; others with their number.
func (vs *Variables) Snapshot() map[string]any {
	out := make(map[string]any, len(vs.order))
	for _, name := range vs.order {
		v := vs.byName[name]
		if v.text != "" && v.value == 0 {
			out[name] = v.text
			continue
		}
		out[name] = v.value
	}
	return out
}

// String renders the store sorted by name, for logs.
func (vs *Variables) String() string {
	names := vs.Names()
	sort.Strings(names)
	s := "{"
	for i, name := range names {
		if i > 0 {
			s += " "
		}
		v := vs.byName[name]
		s += fmt.Sprintf("%s=%g", name, v.value)
		if v.text != "" {
			s += fmt.Sprintf("/%q", v.text)
		}
	}
	return s + "}"
}
