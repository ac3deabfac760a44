package bus

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/petal-labs/eventsheet/runtime"
)

// ThrottleConfig controls the behavior of ThrottledEmitter.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced tick events.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledEmitter wraps a runtime.EventEmitter and coalesces tick.finished
// events, which arrive once per tick. Within each interval only the latest
// tick of every (run, scene) pair is forwarded, with a "coalesced" payload
// entry counting the ticks it stands for. Other events pass through
// immediately; scene.changed and run.finished first flush the pending tick
// of their run so a stream never ends on a stale tick.
type ThrottledEmitter struct {
	emit     runtime.EventEmitter
	interval time.Duration

	// emitMu serializes downstream emission: ticks taken by a flush are
	// forwarded before any event emitted after the take.
	emitMu sync.Mutex

	mu      sync.Mutex
	pending map[tickKey]runtime.Event
	counts  map[tickKey]int
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type tickKey struct {
	run   string
	scene string
}

// NewThrottledEmitter creates a ThrottledEmitter forwarding to emit.
func NewThrottledEmitter(emit runtime.EventEmitter, cfg ThrottleConfig) *ThrottledEmitter {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	te := &ThrottledEmitter{
		emit:     emit,
		interval: interval,
		pending:  make(map[tickKey]runtime.Event),
		counts:   make(map[tickKey]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go te.run()
	return te
}

// Emit forwards or coalesces e.
func (te *ThrottledEmitter) Emit(e runtime.Event) {
	if e.Kind == runtime.EventTickFinished {
		key := tickKey{run: e.RunID, scene: e.Scene}
		te.mu.Lock()
		defer te.mu.Unlock()
		if te.closed {
			return
		}
		te.pending[key] = e
		te.counts[key]++
		return
	}

	te.emitMu.Lock()
	defer te.emitMu.Unlock()
	if e.Kind == runtime.EventSceneChanged || e.Kind == runtime.EventRunFinished {
		te.forward(te.take(func(k tickKey) bool { return k.run == e.RunID }))
	}
	te.emit(e)
}

// Handler returns Emit as a runtime.EventHandler.
func (te *ThrottledEmitter) Handler() runtime.EventHandler {
	return te.Emit
}

// Close flushes pending tick events and stops the background ticker.
// It is safe to call Close multiple times.
func (te *ThrottledEmitter) Close() {
	te.mu.Lock()
	if te.closed {
		te.mu.Unlock()
		return
	}
	te.closed = true
	te.mu.Unlock()

	close(te.stopCh)
	<-te.doneCh
}

func (te *ThrottledEmitter) run() {
	defer close(te.doneCh)

	ticker := time.NewTicker(te.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			te.flush()
		case <-te.stopCh:
			te.flush()
			return
		}
	}
}

// flush forwards every pending tick.
func (te *ThrottledEmitter) flush() {
	te.emitMu.Lock()
	defer te.emitMu.Unlock()
	te.forward(te.take(func(tickKey) bool { return true }))
}

// take removes the pending ticks selected by match and stamps their
// coalesced count.
func (te *ThrottledEmitter) take(match func(tickKey) bool) []runtime.Event {
	te.mu.Lock()
	defer te.mu.Unlock()
	var out []runtime.Event
	for key, e := range te.pending {
		if !match(key) {
			continue
		}
		payload := make(map[string]any, len(e.Payload)+1)
		for k, v := range e.Payload {
			payload[k] = v
		}
		payload["coalesced"] = te.counts[key]
		e.Payload = payload
		out = append(out, e)
		delete(te.pending, key)
		delete(te.counts, key)
	}
	return out
}

// forward emits events oldest Seq first. Callers hold emitMu.
func (te *ThrottledEmitter) forward(events []runtime.Event) {
	slices.SortFunc(events, func(a, b runtime.Event) int { return cmp.Compare(a.Seq, b.Seq) })
	for _, e := range events {
		te.emit(e)
	}
}
