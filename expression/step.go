package expression

import (
	"fmt"
	"strings"
)

// Step is one element of a preprocessed expression. The set of variants is
// closed: ConstantStep, GlobalVariableStep, ContextStep, ObjectStep and
// InvalidStep.
type Step interface {
	step() // marker method
	String() string
}

// ConstantStep is literal text between calls.
type ConstantStep struct {
	Text string
}

// GlobalVariableStep reads a global variable (GBL).
type GlobalVariableStep struct {
	Name string
}

// ContextStep is a VAL call: an extension or built-in function when Func is
// set, otherwise a scene variable read.
type ContextStep struct {
	Name   string
	Func   Func
	Params []*Expression
}

// ObjectStepKind selects what an ObjectStep reads.
type ObjectStepKind int

const (
	ObjectCount    ObjectStepKind = iota // number of picked instances
	ObjectFunction                       // capability table function
	ObjectVariable                       // named object variable
)

func (k ObjectStepKind) String() string {
	switch k {
	case ObjectCount:
		return "count"
	case ObjectFunction:
		return "function"
	case ObjectVariable:
		return "variable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ObjectStep is an OBJ call against the instances picked for Object.
type ObjectStep struct {
	Object string
	Kind   ObjectStepKind
	Name   string // function or variable name, empty for ObjectCount
	Func   ObjectFunc
	Params []*Expression // arguments after the function name
}

// InvalidStep stands in for a malformed call so that placeholders stay
// aligned with steps. It evaluates to 0.
type InvalidStep struct {
	Text   string
	Reason string
}

func (ConstantStep) step()       {}
func (GlobalVariableStep) step() {}
func (ContextStep) step()        {}
func (ObjectStep) step()         {}
func (InvalidStep) step()        {}

func (s ConstantStep) String() string { return fmt.Sprintf("const %q", s.Text) }

func (s GlobalVariableStep) String() string { return fmt.Sprintf("global %s", s.Name) }

func (s ContextStep) String() string {
	if s.Func == nil {
		return fmt.Sprintf("scene %s", s.Name)
	}
	return fmt.Sprintf("func %s%s", s.Name, formatParams(s.Params))
}

func (s ObjectStep) String() string {
	switch s.Kind {
	case ObjectCount:
		return fmt.Sprintf("object %s count", s.Object)
	case ObjectFunction:
		return fmt.Sprintf("object %s func %s%s", s.Object, s.Name, formatParams(s.Params))
	default:
		return fmt.Sprintf("object %s variable %s", s.Object, s.Name)
	}
}

func (s InvalidStep) String() string { return fmt.Sprintf("invalid %q: %s", s.Text, s.Reason) }

func formatParams(params []*Expression) string {
	if len(params) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range params {
		sb.WriteByte('[')
		sb.WriteString(p.PlainString())
		sb.WriteByte(']')
	}
	return sb.String()
}
