package otel_test

import (
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sheetotel "github.com/petal-labs/eventsheet/otel"
	"github.com/petal-labs/eventsheet/runtime"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func ev(kind runtime.EventKind, scene string, at time.Time, payload map[string]any) runtime.Event {
	return runtime.Event{Kind: kind, RunID: "run-1", Scene: scene, Time: at, Payload: payload}
}

// playScripted feeds a run with two scenes to h.
func playScripted(h *sheetotel.TracingHandler, now time.Time) {
	h.Handle(ev(runtime.EventRunStarted, "", now, map[string]any{"game": "Pong", "seed": uint64(9)}))
	h.Handle(ev(runtime.EventSceneStarted, "Menu", now, map[string]any{"objects": 0}))
	h.Handle(ev(runtime.EventTickFinished, "Menu", now, nil))
	h.Handle(ev(runtime.EventSceneChanged, "Menu", now.Add(time.Millisecond), map[string]any{"from": "Menu", "to": "Play"}))
	h.Handle(ev(runtime.EventSceneStarted, "Play", now.Add(time.Millisecond), map[string]any{"objects": 1}))
	h.Handle(ev(runtime.EventTriggered, "Play", now.Add(2*time.Millisecond), map[string]any{"path": "2", "name": "bounce"}))
	h.Handle(ev(runtime.EventDiagnostic, "Play", now.Add(2*time.Millisecond), map[string]any{"code": "EV-002", "severity": "error"}))
	h.Handle(ev(runtime.EventTickFinished, "Play", now.Add(2*time.Millisecond), nil))
	h.Handle(ev(runtime.EventTickFinished, "Play", now.Add(3*time.Millisecond), nil))
	h.Handle(ev(runtime.EventSceneChanged, "Play", now.Add(3*time.Millisecond), map[string]any{"from": "Play", "quit": true}))
	h.Handle(ev(runtime.EventRunFinished, "", now.Add(4*time.Millisecond), map[string]any{"status": "completed", "ticks": 3, "completed": true}))
}

func spanAttr(s tracetest.SpanStub, key string) (string, bool) {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestTracingHandler_RunAndSceneSpans(t *testing.T) {
	exporter, tp := newTestTracer()
	h := sheetotel.NewTracingHandler(tp.Tracer("test"))

	playScripted(h, time.Now())

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	menu, play, run := spans[0], spans[1], spans[2]

	if run.Name != "run:Pong" {
		t.Errorf("run span name = %q", run.Name)
	}
	if run.Status.Code != otelcodes.Ok {
		t.Errorf("run status = %v, want Ok", run.Status.Code)
	}
	if v, _ := spanAttr(run, "eventsheet.seed"); v != "9" {
		t.Errorf("seed attr = %q", v)
	}

	for _, s := range []tracetest.SpanStub{menu, play} {
		if s.Parent.SpanID() != run.SpanContext.SpanID() {
			t.Errorf("%s parent = %v, want run span", s.Name, s.Parent.SpanID())
		}
		if s.SpanContext.TraceID() != run.SpanContext.TraceID() {
			t.Errorf("%s in another trace", s.Name)
		}
	}
	if menu.Name != "scene:Menu" || play.Name != "scene:Play" {
		t.Errorf("scene span names = %q, %q", menu.Name, play.Name)
	}
	if v, _ := spanAttr(menu, "eventsheet.next_scene"); v != "Play" {
		t.Errorf("menu next_scene = %q", v)
	}
	if v, _ := spanAttr(play, "eventsheet.ticks"); v != "2" {
		t.Errorf("play ticks = %q, want 2", v)
	}
	if v, _ := spanAttr(play, "eventsheet.quit"); v != "true" {
		t.Errorf("play quit = %q", v)
	}

	if len(play.Events) != 2 {
		t.Fatalf("play span has %d events, want 2", len(play.Events))
	}
	if play.Events[0].Name != string(runtime.EventTriggered) || play.Events[1].Name != string(runtime.EventDiagnostic) {
		t.Errorf("span events = %q, %q", play.Events[0].Name, play.Events[1].Name)
	}
}

func TestTracingHandler_FailedRunEndsOpenScene(t *testing.T) {
	exporter, tp := newTestTracer()
	h := sheetotel.NewTracingHandler(tp.Tracer("test"))
	now := time.Now()

	h.Handle(ev(runtime.EventRunStarted, "", now, map[string]any{"game": "Pong"}))
	h.Handle(ev(runtime.EventSceneStarted, "Menu", now, nil))
	h.Handle(ev(runtime.EventRunFinished, "", now.Add(time.Second), map[string]any{"status": "failed", "error": "run was canceled"}))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	run := spans[1]
	if run.Status.Code != otelcodes.Error || run.Status.Description != "run was canceled" {
		t.Errorf("run status = %v %q", run.Status.Code, run.Status.Description)
	}
	if h.ActiveSpanContext("run-1").IsValid() {
		t.Error("span context should be gone after run.finished")
	}
}

func TestTracingHandler_RunIDSpanNameWithoutGame(t *testing.T) {
	exporter, tp := newTestTracer()
	h := sheetotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(ev(runtime.EventRunStarted, "", time.Now(), nil))
	h.Handle(ev(runtime.EventRunFinished, "", time.Now(), map[string]any{"status": "completed"}))

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "run:run-1" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestTracingHandler_EventsWithoutSpansAreIgnored(t *testing.T) {
	exporter, tp := newTestTracer()
	h := sheetotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(ev(runtime.EventTriggered, "Menu", time.Now(), nil))
	h.Handle(ev(runtime.EventSceneChanged, "Menu", time.Now(), nil))
	h.Handle(ev(runtime.EventRunFinished, "", time.Now(), nil))

	if n := len(exporter.GetSpans()); n != 0 {
		t.Errorf("got %d spans, want 0", n)
	}
}
