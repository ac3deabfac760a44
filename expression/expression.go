// Package expression implements the textual expressions used as condition
// and action parameters. Source text may embed three call forms:
//
//	OBJ(name[function-or-variable][args...])  object data of a picked instance
//	VAL(name[args...])                        function, or scene variable
//	GBL(name)                                 global variable
//
// Preprocessing splits the text into call steps and rewrites it into a
// numeric formula where the i-th call is replaced by the placeholder x<i>.
// Evaluation runs the steps left to right and feeds the results to the
// formula. Malformed input never fails: it degrades to 0 or "" and leaves a
// diagnostic in the scene's log.
package expression

import (
	"strconv"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expr"
)

// Expression is one textual formula and its preprocessed form.
type Expression struct {
	text string

	parts        []Step // every step in source order, constants included
	calls        []Step // call steps only; calls[i] feeds placeholder x<i>
	formula      *expr.Formula
	preprocessed bool
	diags        []core.Diagnostic // found while preprocessing
}

// New returns an unpreprocessed expression over text.
func New(text string) *Expression {
	return &Expression{text: text, formula: expr.Zero}
}

// PlainString returns the source text.
func (e *Expression) PlainString() string { return e.text }

// IsPreprocessed reports whether preprocessing has run.
func (e *Expression) IsPreprocessed() bool { return e.preprocessed }

// SetPreprocessed marks the expression preprocessed. There is no way back.
func (e *Expression) SetPreprocessed() { e.preprocessed = true }

// AddStep appends a step. Constant steps are kept for text rendering only
// and do not consume a placeholder.
func (e *Expression) AddStep(s Step) {
	e.parts = append(e.parts, s)
	if _, ok := s.(ConstantStep); !ok {
		e.calls = append(e.calls, s)
	}
}

// Diagnostics returns the problems preprocessing found in the source.
func (e *Expression) Diagnostics() []core.Diagnostic {
	return append([]core.Diagnostic(nil), e.diags...)
}

// Steps returns the call steps in placeholder order.
func (e *Expression) Steps() []Step { return append([]Step(nil), e.calls...) }

// Parts returns all steps, constants included, in source order.
func (e *Expression) Parts() []Step { return append([]Step(nil), e.parts...) }

// ParseMathExpression compiles formula over params. On failure the
// expression falls back to the constant zero formula and the compile error
// is returned.
func (e *Expression) ParseMathExpression(formula string, params []string) error {
	f, err := expr.Compile(formula, params)
	if err != nil {
		e.formula = expr.Zero
		return err
	}
	e.formula = f
	return nil
}

// EvalMathExpression evaluates the compiled formula with one input per
// placeholder.
func (e *Expression) EvalMathExpression(inputs []float64) float64 {
	return e.formula.Eval(inputs)
}

// Formula returns the compiled formula.
func (e *Expression) Formula() *expr.Formula { return e.formula }

func (e *Expression) String() string { return strconv.Quote(e.text) }

func placeholders(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = placeholder(i)
	}
	return names
}

func placeholder(i int) string { return "x" + strconv.Itoa(i) }
