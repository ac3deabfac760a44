package expr

import (
	"fmt"
	"math"
)

// Eval evaluates a parsed formula. Missing parameters read as zero.
func Eval(e Expr, inputs []float64) (float64, error) {
	ev := &evaluator{inputs: inputs}
	return ev.eval(e)
}

type evaluator struct {
	inputs []float64
}

func (ev *evaluator) eval(e Expr) (float64, error) {
	switch n := e.(type) {
	case *NumberExpr:
		return n.Value, nil

	case *ParamExpr:
		if n.Index < 0 || n.Index >= len(ev.inputs) {
			return 0, nil
		}
		return ev.inputs[n.Index], nil

	case *UnaryExpr:
		return ev.evalUnary(n)

	case *BinaryExpr:
		return ev.evalBinary(n)

	case *CallExpr:
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := ev.eval(a)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		fn := n.fn
		if fn == nil {
			fn = functions[n.Name]
		}
		if fn == nil {
			return 0, fmt.Errorf("unknown function %q", n.Name)
		}
		return fn.call(args), nil

	default:
		return 0, fmt.Errorf("unknown expression type %T", e)
	}
}

func (ev *evaluator) evalUnary(n *UnaryExpr) (float64, error) {
	val, err := ev.eval(n.Operand)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case TokenMinus:
		return -val, nil
	case TokenPlus:
		return val, nil
	case TokenNot:
		return boolValue(!IsTruthy(val)), nil
	default:
		return 0, fmt.Errorf("unknown unary operator %s", n.Op)
	}
}

func (ev *evaluator) evalBinary(n *BinaryExpr) (float64, error) {
	// Short-circuit for logical operators
	switch n.Op {
	case TokenAnd:
		left, err := ev.eval(n.Left)
		if err != nil {
			return 0, err
		}
		if !IsTruthy(left) {
			return 0, nil
		}
		right, err := ev.eval(n.Right)
		if err != nil {
			return 0, err
		}
		return boolValue(IsTruthy(right)), nil

	case TokenOr:
		left, err := ev.eval(n.Left)
		if err != nil {
			return 0, err
		}
		if IsTruthy(left) {
			return 1, nil
		}
		right, err := ev.eval(n.Right)
		if err != nil {
			return 0, err
		}
		return boolValue(IsTruthy(right)), nil
	}

	left, err := ev.eval(n.Left)
	if err != nil {
		return 0, err
	}
	right, err := ev.eval(n.Right)
	if err != nil {
		return 0, err
	}

	switch n.Op {
	case TokenPlus:
		return left + right, nil
	case TokenMinus:
		return left - right, nil
	case TokenStar:
		return left * right, nil
	case TokenSlash:
		return left / right, nil
	case TokenPercent:
		return math.Mod(left, right), nil
	case TokenCaret:
		return math.Pow(left, right), nil
	case TokenEq:
		return boolValue(left == right), nil
	case TokenNeq:
		return boolValue(left != right), nil
	case TokenGt:
		return boolValue(left > right), nil
	case TokenGte:
		return boolValue(left >= right), nil
	case TokenLt:
		return boolValue(left < right), nil
	case TokenLte:
		return boolValue(left <= right), nil
	default:
		return 0, fmt.Errorf("unknown binary operator %s", n.Op)
	}
}

// IsTruthy reports whether a formula value counts as true: any non-zero,
// non-NaN number.
func IsTruthy(v float64) bool {
	return v != 0 && !math.IsNaN(v)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
