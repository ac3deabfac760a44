package core

import (
	"fmt"
	"strings"
)

// Operator is an assignment operator of a variable modification.
type Operator int

const (
	OpSet Operator = iota // =
	OpAdd                 // +
	OpSub                 // -
	OpMul                 // *
	OpDiv                 // /
)

var operatorNames = map[Operator]string{
	OpSet: "=",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("operator(%d)", int(op))
}

// ParseOperator parses "=", "+", "-", "*" or "/".
func ParseOperator(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	for op, name := range operatorNames {
		if s == name {
			return op, nil
		}
	}
	return OpSet, fmt.Errorf("unknown operator %q", s)
}

// Relation is a comparison operator of a condition.
type Relation int

const (
	RelEq  Relation = iota // =
	RelNeq                 // !=
	RelLt                  // <
	RelLte                 // <=
	RelGt                  // >
	RelGte                 // >=
)

var relationNames = map[Relation]string{
	RelEq:  "=",
	RelNeq: "!=",
	RelLt:  "<",
	RelLte: "<=",
	RelGt:  ">",
	RelGte: ">=",
}

func (r Relation) String() string {
	if s, ok := relationNames[r]; ok {
		return s
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

// ParseRelation parses a comparison sign. "==" is accepted for "=".
func ParseRelation(s string) (Relation, error) {
	s = strings.TrimSpace(s)
	if s == "==" {
		return RelEq, nil
	}
	for r, name := range relationNames {
		if s == name {
			return r, nil
		}
	}
	return RelEq, fmt.Errorf("unknown relation %q", s)
}

// Compare applies the relation to two numbers.
func (r Relation) Compare(a, b float64) bool {
	switch r {
	case RelEq:
		return a == b
	case RelNeq:
		return a != b
	case RelLt:
		return a < b
	case RelLte:
		return a <= b
	case RelGt:
		return a > b
	case RelGte:
		return a >= b
	}
	return false
}

// CompareText applies the relation to two strings, ordering lexically.
func (r Relation) CompareText(a, b string) bool {
	return r.Compare(float64(strings.Compare(a, b)), 0)
}
