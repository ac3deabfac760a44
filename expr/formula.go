package expr

import "fmt"

// Formula is a compiled formula bound to an ordered parameter list.
type Formula struct {
	source string
	params []string
	root   Expr
}

// Zero is the trivial formula "0" with no parameters.
var Zero = &Formula{source: "0", root: &NumberExpr{Value: 0}}

// Compile parses src with the given parameter names. The returned formula
// consumes one input per parameter, in params order.
func Compile(src string, params []string) (*Formula, error) {
	root, err := Parse(src, params)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Formula{
		source: src,
		params: append([]string(nil), params...),
		root:   root,
	}, nil
}

// Source returns the formula text the formula was compiled from.
func (f *Formula) Source() string { return f.source }

// Params returns the parameter names in input order.
func (f *Formula) Params() []string { return append([]string(nil), f.params...) }

// NumParams is the number of inputs the formula consumes.
func (f *Formula) NumParams() int { return len(f.params) }

// Eval evaluates the formula. Evaluation of a compiled tree cannot fail;
// numeric faults follow IEEE-754 (1/0 is +Inf).
func (f *Formula) Eval(inputs []float64) float64 {
	v, err := Eval(f.root, inputs)
	if err != nil {
		return 0
	}
	return v
}

// String returns the canonical, fully parenthesized form.
func (f *Formula) String() string { return f.root.String() }

// ValidateSyntax checks whether a formula string is syntactically valid for
// the given parameters.
func ValidateSyntax(formula string, params []string) error {
	_, err := Parse(formula, params)
	return err
}
