package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/petal-labs/eventsheet/core"
	sheetotel "github.com/petal-labs/eventsheet/otel"
	"github.com/petal-labs/eventsheet/runtime"
)

// eventJSON is the wire form of a runtime.Event in JSON output.
type eventJSON struct {
	Seq       uint64         `json:"seq"`
	Kind      string         `json:"kind"`
	RunID     string         `json:"run_id"`
	Scene     string         `json:"scene,omitempty"`
	Tick      uint64         `json:"tick,omitempty"`
	Time      time.Time      `json:"time"`
	ElapsedMS float64        `json:"elapsed_ms"`
	Payload   map[string]any `json:"payload,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
}

func toEventJSON(e runtime.Event) eventJSON {
	return eventJSON{
		Seq:       e.Seq,
		Kind:      e.Kind.String(),
		RunID:     e.RunID,
		Scene:     e.Scene,
		Tick:      e.Tick,
		Time:      e.Time,
		ElapsedMS: float64(e.Elapsed) / float64(time.Millisecond),
		Payload:   e.Payload,
		TraceID:   e.TraceID,
		SpanID:    e.SpanID,
	}
}

// describeEvent renders the scene, tick and payload of e on one line.
func describeEvent(e runtime.Event) string {
	var sb strings.Builder
	if e.Scene != "" {
		fmt.Fprintf(&sb, "%s@%d", e.Scene, e.Tick)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Payload)) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%v", k, e.Payload[k])
	}
	return sb.String()
}

// eventPrinter writes events as text lines or JSON lines. It is called
// from the runner and from the throttle's flush goroutine.
type eventPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func (p *eventPrinter) print(e runtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		_ = json.NewEncoder(p.w).Encode(toEventJSON(e))
		return
	}
	fmt.Fprintf(p.w, "%4d %-15s %s\n", e.Seq, e.Kind, describeEvent(e))
}

// runOutput is the JSON form of a run result.
type runOutput struct {
	RunID       string            `json:"run_id"`
	Game        string            `json:"game"`
	Completed   bool              `json:"completed"`
	Seed        uint64            `json:"seed"`
	Ticks       int               `json:"ticks"`
	Scene       string            `json:"scene"`
	Scenes      []string          `json:"scenes"`
	Globals     map[string]any    `json:"globals"`
	Variables   map[string]any    `json:"variables"`
	Objects     map[string]int    `json:"objects"`
	Diagnostics []core.Diagnostic `json:"diagnostics,omitempty"`
	ElapsedMS   float64           `json:"elapsed_ms"`
	Metrics     []metricJSON      `json:"metrics,omitempty"`
}

type metricJSON struct {
	Name       string  `json:"name"`
	Attributes string  `json:"attributes,omitempty"`
	Count      uint64  `json:"count,omitempty"`
	Value      float64 `json:"value"`
}

func writeRunResult(w io.Writer, res *runtime.Result, metrics []sheetotel.MetricValue, format string) error {
	if format == "json" {
		out := runOutput{
			RunID:       res.RunID,
			Game:        res.Game,
			Completed:   res.Completed,
			Seed:        res.Seed,
			Ticks:       res.Ticks,
			Scene:       res.Scene,
			Scenes:      res.Scenes,
			Globals:     res.Globals,
			Variables:   res.Variables,
			Objects:     res.Objects,
			Diagnostics: res.Diagnostics,
			ElapsedMS:   float64(res.Elapsed) / float64(time.Millisecond),
		}
		for _, m := range metrics {
			out.Metrics = append(out.Metrics, metricJSON(m))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	status := "stopped at tick limit"
	if res.Completed {
		status = "completed"
	}
	fmt.Fprintf(w, "=== Run %s ===\n", res.RunID)
	fmt.Fprintf(w, "  Game:    %s\n", res.Game)
	fmt.Fprintf(w, "  Status:  %s\n", status)
	fmt.Fprintf(w, "  Ticks:   %d\n", res.Ticks)
	fmt.Fprintf(w, "  Scenes:  %s\n", strings.Join(res.Scenes, " -> "))
	fmt.Fprintf(w, "  Seed:    %d\n", res.Seed)
	fmt.Fprintf(w, "  Elapsed: %s\n", res.Elapsed.Round(time.Microsecond))
	writeValues(w, "Globals", res.Globals)
	writeValues(w, "Variables", res.Variables)
	if len(res.Objects) > 0 {
		fmt.Fprintf(w, "\n=== Objects ===\n")
		for _, name := range slices.Sorted(maps.Keys(res.Objects)) {
			fmt.Fprintf(w, "  %s: %d\n", name, res.Objects[name])
		}
	}
	if len(res.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n=== Diagnostics (%d) ===\n", len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	writeMetricsText(w, metrics)
	return nil
}

func writeValues(w io.Writer, title string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	for _, name := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(w, "  %s: %v\n", name, values[name])
	}
}

func writeMetricsText(w io.Writer, metrics []sheetotel.MetricValue) {
	if len(metrics) == 0 {
		return
	}
	fmt.Fprintf(w, "\n=== Metrics ===\n")
	for _, m := range metrics {
		name := m.Name
		if m.Attributes != "" {
			name += "{" + m.Attributes + "}"
		}
		if m.Count > 0 {
			fmt.Fprintf(w, "  %s: count=%d sum=%g\n", name, m.Count, m.Value)
		} else {
			fmt.Fprintf(w, "  %s: %g\n", name, m.Value)
		}
	}
}
