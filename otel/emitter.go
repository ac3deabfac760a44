package otel

import (
	"github.com/petal-labs/eventsheet/runtime"
)

// EnrichEmitter wraps an EventEmitter so that events carry the trace and
// span ids of the run's active scene span (or run span). Events pass
// through unchanged when no span is active.
func EnrichEmitter(emit runtime.EventEmitter, tracing *TracingHandler) runtime.EventEmitter {
	return func(e runtime.Event) {
		if e.TraceID == "" && e.RunID != "" {
			if sc := tracing.ActiveSpanContext(e.RunID); sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		emit(e)
	}
}

// EnrichDecorator returns EnrichEmitter as a runtime.EventEmitterDecorator
// for RunOptions.
func EnrichDecorator(tracing *TracingHandler) runtime.EventEmitterDecorator {
	return func(emit runtime.EventEmitter) runtime.EventEmitter {
		return EnrichEmitter(emit, tracing)
	}
}
