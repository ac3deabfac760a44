package expr

import "math"

type function struct {
	minArgs int
	maxArgs int // -1 means variadic
	call    func(args []float64) float64
}

func unary(f func(float64) float64) *function {
	return &function{minArgs: 1, maxArgs: 1, call: func(a []float64) float64 { return f(a[0]) }}
}

func binary(f func(float64, float64) float64) *function {
	return &function{minArgs: 2, maxArgs: 2, call: func(a []float64) float64 { return f(a[0], a[1]) }}
}

var constants = map[string]float64{
	"pi": math.Pi,
	"Pi": math.Pi,
	"PI": math.Pi,
	"e":  math.E,
}

var functions = map[string]*function{
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"atan2": binary(math.Atan2),
	"sinh":  unary(math.Sinh),
	"cosh":  unary(math.Cosh),
	"tanh":  unary(math.Tanh),
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"int":   unary(math.Floor),
	"ent":   unary(math.Floor),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"pow":   binary(math.Pow),
	"mod":   binary(math.Mod),
	"sign": unary(func(v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	}),
	"min": {minArgs: 1, maxArgs: -1, call: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {minArgs: 1, maxArgs: -1, call: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"if": {minArgs: 3, maxArgs: 3, call: func(a []float64) float64 {
		if IsTruthy(a[0]) {
			return a[1]
		}
		return a[2]
	}},
}

// IsFunction reports whether name is a built-in formula function.
func IsFunction(name string) bool {
	_, ok := functions[name]
	return ok
}
