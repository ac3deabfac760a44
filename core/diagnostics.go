package core

import "fmt"

// Diagnostic codes reported while preprocessing and executing events.
const (
	CodeMissingParen     = "EX-001" // OBJ(/VAL(/GBL( without closing parenthesis
	CodeMissingName      = "EX-002" // empty object or function name
	CodeMissingBracket   = "EX-003" // call without [ or with unterminated [
	CodeBadFormula       = "EX-004" // substituted formula failed to compile
	CodeMissingQuote     = "EX-005" // CAL" or TXT" without closing quote
	CodeTextLoop         = "EX-006" // TXT substitution did not settle
	CodeUnknownCondition = "EV-001"
	CodeUnknownAction    = "EV-002"
	CodeBadParameter     = "EV-003"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic is one problem absorbed during evaluation.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source,omitempty"` // expression text or instruction type
}

func (d Diagnostic) String() string {
	if d.Source == "" {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s %s: %s (in %q)", d.Severity, d.Code, d.Message, d.Source)
}

// DiagnosticLog accumulates diagnostics for later display. A nil log
// discards everything.
type DiagnosticLog struct {
	entries []Diagnostic
}

// Add appends d.
func (l *DiagnosticLog) Add(d Diagnostic) {
	if l == nil {
		return
	}
	l.entries = append(l.entries, d)
}

// Errorf appends an error diagnostic.
func (l *DiagnosticLog) Errorf(code, source, format string, args ...any) {
	l.Add(Diagnostic{Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Source: source})
}

// Warnf appends a warning diagnostic.
func (l *DiagnosticLog) Warnf(code, source, format string, args ...any) {
	l.Add(Diagnostic{Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Source: source})
}

// Len returns the number of diagnostics.
func (l *DiagnosticLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Entries returns a copy of all diagnostics.
func (l *DiagnosticLog) Entries() []Diagnostic {
	return l.Since(0)
}

// Since returns the diagnostics appended after the first n.
func (l *DiagnosticLog) Since(n int) []Diagnostic {
	if l == nil || n >= len(l.entries) {
		return nil
	}
	return append([]Diagnostic(nil), l.entries[n:]...)
}

// Reset clears the log.
func (l *DiagnosticLog) Reset() {
	if l != nil {
		l.entries = nil
	}
}
