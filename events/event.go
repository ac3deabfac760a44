// Package events executes event trees. An event holds conditions, actions
// and sub-events; each tick the tree is walked depth first. Conditions pick
// object instances into a scope that actions and sub-events then work on.
//
// Repeat, ForEach and While are control constructs placed among the
// conditions (Repeat and ForEach also among the actions). They run the rest
// of the event once per iteration in a scope inherited from the enclosing
// one, then report the event as handled.
package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/petal-labs/eventsheet/expression"
)

// Kind distinguishes ordinary instructions from control constructs.
type Kind int

const (
	Standard Kind = iota
	Repeat        // params: [count]
	ForEach       // params: [object name]
	While         // params: [expected "True"/"False", inner condition count]
)

var kindNames = map[Kind]string{
	Standard: "standard",
	Repeat:   "repeat",
	ForEach:  "foreach",
	While:    "while",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name, case-insensitively. The empty string is
// Standard.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Standard, nil
	}
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return Standard, fmt.Errorf("unknown instruction kind %q", s)
}

// Instruction is one condition or action.
type Instruction struct {
	Type     string // registry key; empty for control constructs
	Kind     Kind
	Params   []*expression.Expression
	Inverted bool // conditions only
}

// NewInstruction returns a standard instruction with the given parameters.
func NewInstruction(typ string, params ...string) Instruction {
	return Instruction{Type: typ, Params: exprs(params)}
}

// NewRepeat returns a Repeat construct over count.
func NewRepeat(count string) Instruction {
	return Instruction{Kind: Repeat, Params: exprs([]string{count})}
}

// NewForEach returns a ForEach construct over the instances of object.
func NewForEach(object string) Instruction {
	return Instruction{Kind: ForEach, Params: exprs([]string{object})}
}

// NewWhile returns a While construct. The inner conditions are the n
// conditions that follow it; looping continues while their result equals
// expected.
func NewWhile(expected bool, n int) Instruction {
	exp := "True"
	if !expected {
		exp = "False"
	}
	return Instruction{Kind: While, Params: exprs([]string{exp, strconv.Itoa(n)})}
}

// Not returns a copy of the instruction with its result inverted.
func (in Instruction) Not() Instruction {
	in.Inverted = !in.Inverted
	return in
}

func (in Instruction) String() string {
	var sb strings.Builder
	if in.Inverted {
		sb.WriteByte('!')
	}
	if in.Kind == Standard {
		sb.WriteString(in.Type)
	} else {
		sb.WriteString(in.Kind.String())
	}
	sb.WriteByte('(')
	for i, p := range in.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.PlainString())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Walk calls fn for every parameter of every instruction in list, depth
// first, sub-events included.
func Walk(list []*Event, fn func(*expression.Expression)) {
	for _, ev := range list {
		for _, group := range [][]Instruction{ev.Conditions, ev.Actions} {
			for _, in := range group {
				for _, p := range in.Params {
					fn(p)
				}
			}
		}
		Walk(ev.SubEvents, fn)
	}
}

func exprs(texts []string) []*expression.Expression {
	out := make([]*expression.Expression, len(texts))
	for i, t := range texts {
		out[i] = expression.New(t)
	}
	return out
}

// Mode is how an event combines its conditions.
type Mode int

const (
	And Mode = iota // all conditions must hold
	Or              // any condition holding suffices
)

func (m Mode) String() string {
	if m == Or {
		return "or"
	}
	return "and"
}

// Event is a node of the event tree. It is not modified by execution.
type Event struct {
	Name       string
	Disabled   bool
	Mode       Mode
	Conditions []Instruction
	Actions    []Instruction
	SubEvents  []*Event
}
