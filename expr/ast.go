// Package expr compiles and evaluates the numeric formulas produced by the
// expression preprocessor. A formula is plain arithmetic over numbered
// parameters (x0, x1, ...) with comparison, logic and the usual math
// functions. Booleans are represented as 1 and 0.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is the interface implemented by all AST nodes.
type Expr interface {
	expr() // marker method
	String() string
}

// NumberExpr is a numeric literal or named constant.
type NumberExpr struct {
	Value float64
}

func (e *NumberExpr) expr() {}
func (e *NumberExpr) String() string {
	return strconv.FormatFloat(e.Value, 'g', -1, 64)
}

// ParamExpr references one formula parameter by position.
type ParamExpr struct {
	Name  string
	Index int
}

func (e *ParamExpr) expr() {}
func (e *ParamExpr) String() string {
	return e.Name
}

// UnaryExpr represents -a, +a or !a.
type UnaryExpr struct {
	Op      TokenKind
	Operand Expr
}

func (e *UnaryExpr) expr() {}
func (e *UnaryExpr) String() string {
	return fmt.Sprintf("(%s%s)", e.Op, e.Operand)
}

// BinaryExpr represents a binary operation (e.g. a + b, a && b).
type BinaryExpr struct {
	Left  Expr
	Op    TokenKind
	Right Expr
}

func (e *BinaryExpr) expr() {}
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// CallExpr is a call to a built-in math function.
type CallExpr struct {
	Name string
	Args []Expr
	fn   *function
}

func (e *CallExpr) expr() {}
func (e *CallExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}
