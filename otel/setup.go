package otel

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/eventsheet/runtime"
)

const instrumentationName = "github.com/petal-labs/eventsheet"

// Config selects telemetry outputs.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address (host:port). Empty
	// disables span export; spans are still created for trace ids.
	Endpoint string

	// ServiceName is reported as service.name (default "eventsheet").
	ServiceName string

	// Insecure sends spans over plain HTTP.
	Insecure bool
}

// Telemetry owns the tracer and meter providers of a process.
type Telemetry struct {
	Tracing *TracingHandler
	Metrics *MetricsHandler

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
}

// Setup builds the providers and event handlers described by cfg.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "eventsheet"
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	metrics, err := NewMetricsHandler(mp.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating metrics handler: %w", err)
	}
	return &Telemetry{
		Tracing:        NewTracingHandler(tp.Tracer(instrumentationName)),
		Metrics:        metrics,
		tracerProvider: tp,
		meterProvider:  mp,
		reader:         reader,
	}, nil
}

// Handler returns a runtime.EventHandler feeding both tracing and metrics.
func (t *Telemetry) Handler() runtime.EventHandler {
	return runtime.MultiEventHandler(t.Tracing.Handle, t.Metrics.Handle)
}

// Decorator stamps trace ids on emitted events.
func (t *Telemetry) Decorator() runtime.EventEmitterDecorator {
	return EnrichDecorator(t.Tracing)
}

// MetricValue is one aggregated series of a collected metric.
type MetricValue struct {
	Name       string
	Attributes string // "k=v,k=v" sorted by key
	Count      uint64 // histogram sample count, 0 for counters
	Value      float64
}

// Summary collects the metrics recorded so far. Counters report their sum;
// histograms their sample count and sum.
func (t *Telemetry) Summary(ctx context.Context) ([]MetricValue, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	var out []MetricValue
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, MetricValue{Name: m.Name, Attributes: attrString(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, MetricValue{Name: m.Name, Attributes: attrString(dp.Attributes), Count: dp.Count, Value: dp.Sum})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Attributes < out[j].Attributes
	})
	return out, nil
}

// Shutdown flushes exported spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}

func attrString(set attribute.Set) string {
	var s string
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		if s != "" {
			s += ","
		}
		s += string(kv.Key) + "=" + kv.Value.Emit()
	}
	return s
}
