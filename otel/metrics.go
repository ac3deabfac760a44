package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/eventsheet/runtime"
)

// Metric names.
const (
	MetricTicks        = "eventsheet.ticks"
	MetricTriggered    = "eventsheet.events.triggered"
	MetricDiagnostics  = "eventsheet.diagnostics"
	MetricSceneChanges = "eventsheet.scene.changes"
	MetricTickDuration = "eventsheet.tick.duration"
	MetricRunDuration  = "eventsheet.run.duration"
)

// MetricsHandler translates runtime events into OpenTelemetry metrics.
type MetricsHandler struct {
	ticks        metric.Int64Counter
	triggered    metric.Int64Counter
	diagnostics  metric.Int64Counter
	sceneChanges metric.Int64Counter
	tickDuration metric.Float64Histogram
	runDuration  metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler with instruments from meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	ticks, err := meter.Int64Counter(MetricTicks,
		metric.WithDescription("Number of ticks executed"),
	)
	if err != nil {
		return nil, err
	}

	triggered, err := meter.Int64Counter(MetricTriggered,
		metric.WithDescription("Number of events whose conditions held"),
	)
	if err != nil {
		return nil, err
	}

	diags, err := meter.Int64Counter(MetricDiagnostics,
		metric.WithDescription("Number of diagnostics absorbed during evaluation"),
	)
	if err != nil {
		return nil, err
	}

	changes, err := meter.Int64Counter(MetricSceneChanges,
		metric.WithDescription("Number of scene changes and quits"),
	)
	if err != nil {
		return nil, err
	}

	tickDur, err := meter.Float64Histogram(MetricTickDuration,
		metric.WithDescription("Wall-clock duration of one tick in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Wall-clock duration of a run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		ticks:        ticks,
		triggered:    triggered,
		diagnostics:  diags,
		sceneChanges: changes,
		tickDuration: tickDur,
		runDuration:  runDur,
	}, nil
}

// Handle records the metrics of one event. It implements
// runtime.EventHandler semantics.
func (h *MetricsHandler) Handle(e runtime.Event) {
	ctx := context.Background()
	switch e.Kind {
	case runtime.EventTickFinished:
		attrs := metric.WithAttributes(attribute.String("scene", e.Scene))
		h.ticks.Add(ctx, 1, attrs)
		if d, ok := e.Payload["duration"].(time.Duration); ok {
			h.tickDuration.Record(ctx, d.Seconds(), attrs)
		}
	case runtime.EventTriggered:
		h.triggered.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scene", e.Scene),
			attribute.String("event", payloadString(e, "name")),
		))
	case runtime.EventDiagnostic:
		h.diagnostics.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", payloadString(e, "code")),
			attribute.String("severity", payloadString(e, "severity")),
		))
	case runtime.EventSceneChanged:
		to := payloadString(e, "to")
		if quit, _ := e.Payload["quit"].(bool); quit {
			to = "<quit>"
		}
		h.sceneChanges.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", e.Scene),
			attribute.String("to", to),
		))
	case runtime.EventRunFinished:
		h.runDuration.Record(ctx, e.Elapsed.Seconds(), metric.WithAttributes(
			attribute.String("status", payloadString(e, "status")),
		))
	}
}
