package expression

import (
	"strings"

	"github.com/petal-labs/eventsheet/core"
)

// Func is a VAL function: an extension or built-in expression.
type Func func(c *Context, params []*Expression) float64

// ObjectFunc is an object expression function, called on the resolved
// instance.
type ObjectFunc func(c *Context, obj *core.Object, params []*Expression) float64

// Functions resolves function names during preprocessing.
type Functions interface {
	// ObjectFunction looks name up in the capability table of objectType.
	ObjectFunction(objectType, name string) (ObjectFunc, bool)
	// ExtensionFunction looks name up among extension global functions.
	ExtensionFunction(name string) (Func, bool)
	// BuiltinFunction looks name up among built-in expressions.
	BuiltinFunction(name string) (Func, bool)
}

// TypeResolver maps an object name to its object type.
type TypeResolver interface {
	TypeOf(name string) string
}

type markerKind int

const (
	markerOBJ markerKind = iota
	markerVAL
	markerGBL
)

var markers = [...]string{
	markerOBJ: "OBJ(",
	markerVAL: "VAL(",
	markerGBL: "GBL(",
}

const markerLen = 4

// nextMarker returns the earliest call marker at or after pos.
func nextMarker(src string, pos int) (start int, kind markerKind, ok bool) {
	start = -1
	for k, m := range markers {
		i := strings.Index(src[pos:], m)
		if i < 0 {
			continue
		}
		if start < 0 || pos+i < start {
			start, kind = pos+i, markerKind(k)
		}
	}
	return start, kind, start >= 0
}

// callEnd returns the index just past the ')' closing the call whose body
// starts at pos. Parentheses nested in the body are balanced; brackets are
// ignored here. It returns -1 if the call is never closed.
func callEnd(src string, pos int) int {
	depth := 0
	for i := pos; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i + 1
			}
			depth--
		}
	}
	return -1
}

// splitCall splits a call body "name[a][b]" into its name and bracketed
// parameters. Brackets are balanced, so a parameter may itself contain
// calls with brackets. Text outside brackets after the name is ignored.
func splitCall(body string) (name string, params []string, hasBracket, terminated bool) {
	open := strings.IndexByte(body, '[')
	if open < 0 {
		return strings.TrimSpace(body), nil, false, true
	}
	name = strings.TrimSpace(body[:open])
	pos := open
	for pos < len(body) {
		if body[pos] != '[' {
			pos++
			continue
		}
		depth := 0
		closed := -1
		for i := pos; i < len(body); i++ {
			if body[i] == '[' {
				depth++
			} else if body[i] == ']' {
				depth--
				if depth == 0 {
					closed = i
					break
				}
			}
		}
		if closed < 0 {
			return name, params, true, false
		}
		params = append(params, body[pos+1:closed])
		pos = closed + 1
	}
	return name, params, true, true
}

// Preprocess decomposes e into steps and compiles its placeholder formula.
// It is a no-op on an already preprocessed expression. Problems are kept
// on e (see Diagnostics) and also reported to log, which may be nil.
func Preprocess(e *Expression, funcs Functions, types TypeResolver, log *core.DiagnosticLog) {
	if e.IsPreprocessed() {
		return
	}
	p := &preprocessor{funcs: funcs, types: types, log: &core.DiagnosticLog{}}
	p.run(e, false)
	e.diags = p.log.Entries()
	for _, d := range e.diags {
		log.Add(d)
	}
}

type preprocessor struct {
	funcs Functions
	types TypeResolver
	log   *core.DiagnosticLog
}

// run walks the source once. Each call occurrence emits exactly one call
// step and exactly one placeholder, so step i always feeds x<i>.
// Parameters are often names rather than numbers, so formula failures are
// only reported for the outermost expression.
func (p *preprocessor) run(e *Expression, nested bool) {
	src := e.PlainString()
	var formula strings.Builder
	pos := 0
	n := 0

	for {
		start, kind, ok := nextMarker(src, pos)
		if !ok {
			break
		}
		if start > pos {
			e.AddStep(ConstantStep{Text: src[pos:start]})
			formula.WriteString(src[pos:start])
		}

		end := callEnd(src, start+markerLen)
		if end < 0 {
			p.log.Errorf(core.CodeMissingParen, src, "%s call at position %d has no closing parenthesis", markers[kind], start)
			e.AddStep(InvalidStep{Text: src[start:], Reason: "missing closing parenthesis"})
			formula.WriteString(placeholder(n))
			n++
			pos = len(src)
			break
		}

		e.AddStep(p.callStep(kind, src[start:end], src[start+markerLen:end-1], src))
		formula.WriteString(placeholder(n))
		n++
		pos = end
	}
	if pos < len(src) {
		e.AddStep(ConstantStep{Text: src[pos:]})
		formula.WriteString(src[pos:])
	}

	text := formula.String()
	if strings.TrimSpace(text) == "" {
		// Pure text parameters have no numeric meaning.
		text = "0"
	}
	if err := e.ParseMathExpression(text, placeholders(n)); err != nil && !nested {
		p.log.Warnf(core.CodeBadFormula, src, "formula %q does not compile, using 0: %v", text, err)
	}
	e.SetPreprocessed()
}

func (p *preprocessor) callStep(kind markerKind, call, body, src string) Step {
	name, rawParams, hasBracket, terminated := splitCall(body)
	if !terminated {
		p.log.Errorf(core.CodeMissingBracket, src, "%s has a parameter without closing bracket", call)
		return InvalidStep{Text: call, Reason: "unterminated parameter"}
	}
	if name == "" {
		p.log.Errorf(core.CodeMissingName, src, "%s has no name", call)
		return InvalidStep{Text: call, Reason: "missing name"}
	}

	params := make([]*Expression, len(rawParams))
	for i, raw := range rawParams {
		params[i] = New(raw)
		p.run(params[i], true)
	}

	switch kind {
	case markerOBJ:
		if !hasBracket {
			p.log.Errorf(core.CodeMissingBracket, src, "%s does not name a function or variable", call)
			return InvalidStep{Text: call, Reason: "missing bracket"}
		}
		return p.objectStep(name, params)
	case markerVAL:
		if p.funcs != nil {
			if fn, ok := p.funcs.ExtensionFunction(name); ok {
				return ContextStep{Name: name, Func: fn, Params: params}
			}
			if fn, ok := p.funcs.BuiltinFunction(name); ok {
				return ContextStep{Name: name, Func: fn, Params: params}
			}
		}
		return ContextStep{Name: name}
	default:
		return GlobalVariableStep{Name: name}
	}
}

func (p *preprocessor) objectStep(object string, params []*Expression) Step {
	member := strings.TrimSpace(params[0].PlainString())
	if member == "count" {
		return ObjectStep{Object: object, Kind: ObjectCount, Params: params[1:]}
	}
	if p.funcs != nil {
		objectType := core.BaseType
		if p.types != nil {
			objectType = p.types.TypeOf(object)
		}
		if fn, ok := p.funcs.ObjectFunction(objectType, member); ok {
			return ObjectStep{Object: object, Kind: ObjectFunction, Name: member, Func: fn, Params: params[1:]}
		}
	}
	return ObjectStep{Object: object, Kind: ObjectVariable, Name: member, Params: params[1:]}
}
