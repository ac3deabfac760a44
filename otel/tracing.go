// Package otel provides OpenTelemetry integration for eventsheet runtime
// events: spans per run and scene, metrics, and trace-id enrichment.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/eventsheet/runtime"
)

// TracingHandler translates runtime events into OpenTelemetry spans. A run
// gets a root span, each scene a child span. Triggered events and
// diagnostics become span events on the scene span.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span      // runID -> span
	runCtxs    map[string]context.Context // runID -> context (for child spans)
	sceneSpans map[string]*sceneSpan      // runID -> active scene
}

type sceneSpan struct {
	span  trace.Span
	ticks int64
}

// NewTracingHandler creates a TracingHandler using tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		sceneSpans: make(map[string]*sceneSpan),
	}
}

// Handle processes a runtime event and creates or ends spans accordingly.
// It implements runtime.EventHandler semantics.
func (h *TracingHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventRunStarted:
		h.handleRunStarted(e)
	case runtime.EventSceneStarted:
		h.handleSceneStarted(e)
	case runtime.EventTickFinished:
		h.handleTick(e)
	case runtime.EventTriggered, runtime.EventDiagnostic:
		h.handleSpanEvent(e)
	case runtime.EventSceneChanged:
		h.endScene(e)
	case runtime.EventRunFinished:
		h.endScene(e)
		h.handleRunFinished(e)
	}
}

func (h *TracingHandler) handleRunStarted(e runtime.Event) {
	game := payloadString(e, "game")
	spanName := "run:" + e.RunID
	if game != "" {
		spanName = "run:" + game
	}

	attrs := []attribute.KeyValue{attribute.String("eventsheet.run_id", e.RunID)}
	if game != "" {
		attrs = append(attrs, attribute.String("eventsheet.game", game))
	}
	if seed, ok := e.Payload["seed"].(uint64); ok {
		attrs = append(attrs, attribute.Int64("eventsheet.seed", int64(seed))) // #nosec G115 -- attribute only
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handleSceneStarted(e runtime.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()
	if !ok {
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "scene:"+e.Scene,
		trace.WithAttributes(
			attribute.String("eventsheet.run_id", e.RunID),
			attribute.String("eventsheet.scene", e.Scene),
			attribute.Int("eventsheet.objects", payloadInt(e, "objects")),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.sceneSpans[e.RunID] = &sceneSpan{span: span}
	h.mu.Unlock()
}

func (h *TracingHandler) handleTick(e runtime.Event) {
	h.mu.Lock()
	if s, ok := h.sceneSpans[e.RunID]; ok {
		s.ticks++
	}
	h.mu.Unlock()
}

func (h *TracingHandler) handleSpanEvent(e runtime.Event) {
	h.mu.RLock()
	s, ok := h.sceneSpans[e.RunID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("eventsheet.tick", int64(e.Tick))} // #nosec G115 -- attribute only
	for _, key := range []string{"path", "name", "code", "severity", "message", "source"} {
		if v := payloadString(e, key); v != "" {
			attrs = append(attrs, attribute.String("eventsheet."+key, v))
		}
	}
	s.span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// endScene ends the active scene span of the run, if any.
func (h *TracingHandler) endScene(e runtime.Event) {
	h.mu.Lock()
	s, ok := h.sceneSpans[e.RunID]
	if ok {
		delete(h.sceneSpans, e.RunID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	s.span.SetAttributes(attribute.Int64("eventsheet.ticks", s.ticks))
	if e.Kind == runtime.EventSceneChanged {
		if to := payloadString(e, "to"); to != "" {
			s.span.SetAttributes(attribute.String("eventsheet.next_scene", to))
		}
		if quit, _ := e.Payload["quit"].(bool); quit {
			s.span.SetAttributes(attribute.Bool("eventsheet.quit", true))
		}
	}
	s.span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleRunFinished(e runtime.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	status := payloadString(e, "status")
	completed, _ := e.Payload["completed"].(bool)
	span.SetAttributes(
		attribute.String("eventsheet.duration", e.Elapsed.String()),
		attribute.String("eventsheet.status", status),
		attribute.Int("eventsheet.ticks", payloadInt(e, "ticks")),
		attribute.Bool("eventsheet.completed", completed),
	)
	if status == "failed" {
		errMsg := payloadString(e, "error")
		if errMsg == "" {
			errMsg = "run failed"
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(spanError(errMsg), trace.WithTimestamp(e.Time))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the span context of the run's active scene,
// falling back to the run span. It is empty when neither is active.
func (h *TracingHandler) ActiveSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s, ok := h.sceneSpans[runID]; ok {
		return s.span.SpanContext()
	}
	if span, ok := h.runSpans[runID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

func payloadString(e runtime.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// payloadInt reads an integer payload entry, which is a float64 after a
// JSON round trip.
func payloadInt(e runtime.Event, key string) int {
	switch v := e.Payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

type spanError string

func (e spanError) Error() string { return string(e) }
