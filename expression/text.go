package expression

import (
	"strconv"
	"strings"

	"github.com/petal-labs/eventsheet/core"
)

const (
	calMarker = `CAL"`
	txtMarker = `TXT"`

	// maxTextPasses bounds TXT substitution for text variables that end up
	// referring to themselves.
	maxTextPasses = 32
)

// EvalTxt renders a text parameter. CAL"formula" is replaced by the number
// the formula evaluates to and TXT"text" by the text substitution of
// EvalExpTxt. All CAL occurrences are handled before TXT occurrences.
// Substituted text may itself hold TXT markers, so the TXT pass repeats
// until none are left or maxTextPasses is reached.
func (ev *Evaluator) EvalTxt(scope *core.Scope, e *Expression, obj1, obj2 core.ObjectID) string {
	src := e.PlainString()
	out := ev.replaceQuoted(src, calMarker, func(inner string) string {
		return FormatNumber(ev.EvalExp(scope, ev.cached(inner), obj1, obj2))
	})
	for pass := 0; strings.Contains(out, txtMarker); pass++ {
		if pass == maxTextPasses {
			ev.scene.Diagnostics.Errorf(core.CodeTextLoop, src, "text substitution still has %s after %d passes", txtMarker, maxTextPasses)
			break
		}
		out = ev.replaceQuoted(out, txtMarker, func(inner string) string {
			return ev.EvalExpTxt(scope, New(inner), obj1, obj2)
		})
	}
	return out
}

// replaceQuoted replaces every marker"..." in src by fn(...). An
// unterminated occurrence is dropped together with the rest of the text.
func (ev *Evaluator) replaceQuoted(src, marker string, fn func(inner string) string) string {
	if !strings.Contains(src, marker) {
		return src
	}
	var sb strings.Builder
	pos := 0
	for pos < len(src) {
		i := strings.Index(src[pos:], marker)
		if i < 0 {
			break
		}
		start := pos + i
		sb.WriteString(src[pos:start])
		body := start + len(marker)
		j := strings.IndexByte(src[body:], '"')
		if j < 0 {
			ev.scene.Diagnostics.Errorf(core.CodeMissingQuote, src, "%s at position %d has no closing quote", marker, start)
			return sb.String()
		}
		sb.WriteString(fn(src[body : body+j]))
		pos = body + j + 1
	}
	sb.WriteString(src[pos:])
	return sb.String()
}

// EvalExpTxt substitutes the text value of OBJ(name[variable]),
// VAL(name[...]) and GBL(name[...]) references. Unlike the numeric
// preprocessor there is no nesting: a reference ends at the first ')' and
// only the first bracket is read.
func (ev *Evaluator) EvalExpTxt(scope *core.Scope, e *Expression, obj1, obj2 core.ObjectID) string {
	if scope == nil {
		scope = core.NewScope(ev.scene.Objects)
	}
	src := e.PlainString()
	var sb strings.Builder
	pos := 0
	for {
		start, kind, ok := nextMarker(src, pos)
		if !ok {
			break
		}
		sb.WriteString(src[pos:start])
		bodyStart := start + markerLen
		end := strings.IndexByte(src[bodyStart:], ')')
		if end < 0 {
			ev.scene.Diagnostics.Errorf(core.CodeMissingParen, src, "%s reference at position %d has no closing parenthesis", markers[kind], start)
			return sb.String()
		}
		name, prop := splitSimple(src[bodyStart : bodyStart+end])
		sb.WriteString(ev.textValue(scope, kind, name, prop, obj1, obj2))
		pos = bodyStart + end + 1
	}
	sb.WriteString(src[pos:])
	return sb.String()
}

// splitSimple reads "name[prop]" without nesting.
func splitSimple(body string) (name, prop string) {
	open := strings.IndexByte(body, '[')
	if open < 0 {
		return strings.TrimSpace(body), ""
	}
	name = strings.TrimSpace(body[:open])
	rest := body[open+1:]
	if end := strings.IndexByte(rest, ']'); end >= 0 {
		rest = rest[:end]
	}
	return name, strings.TrimSpace(rest)
}

func (ev *Evaluator) textValue(scope *core.Scope, kind markerKind, name, prop string, obj1, obj2 core.ObjectID) string {
	switch kind {
	case markerOBJ:
		obj := ev.scene.Objects.Get(core.Resolve(scope.Pick(name), obj1, obj2))
		if obj == nil {
			return ""
		}
		if !obj.Variables.Has(prop) {
			return "0"
		}
		return obj.Variables.Text(prop)
	case markerVAL:
		return ev.scene.Variables.Text(name)
	default:
		return ev.scene.Globals.Text(name)
	}
}

// FormatNumber renders v with six significant digits, never in exponent
// notation, without trailing zeros or a trailing decimal point.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'g', 6, 64)
	if strings.ContainsRune(s, 'e') {
		s = strconv.FormatFloat(v, 'f', 6, 64)
	}
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
