package events

import "fmt"

// ConditionResult is the result of ExecuteConditions.
type ConditionResult int

const (
	ConditionsFalse ConditionResult = iota
	ConditionsTrue
	// ConditionsHandled means a control construct already ran the rest of
	// the event, actions and sub-events included.
	ConditionsHandled
	// ConditionsStop means a scene change or quit was requested.
	ConditionsStop
)

func (r ConditionResult) String() string {
	switch r {
	case ConditionsFalse:
		return "false"
	case ConditionsTrue:
		return "true"
	case ConditionsHandled:
		return "handled"
	case ConditionsStop:
		return "stop"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// Done: every action ran; sub-events are still due.
	Done OutcomeKind = iota
	// Handled: a control construct ran the remaining actions and the
	// sub-events itself; the caller must not run them again.
	Handled
	// Continue: resume the action list at Next.
	Continue
	// Stop: a scene change or quit was requested.
	Stop
)

// Outcome is the result of executing actions.
type Outcome struct {
	Kind OutcomeKind
	Next int // for Continue
}

func (o Outcome) String() string {
	switch o.Kind {
	case Done:
		return "done"
	case Handled:
		return "handled"
	case Continue:
		return fmt.Sprintf("continue(%d)", o.Next)
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("outcome(%d)", int(o.Kind))
}

func continueAt(next int) Outcome { return Outcome{Kind: Continue, Next: next} }
