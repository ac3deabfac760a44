package bus

import (
	"sync"
	"sync/atomic"

	"github.com/petal-labs/eventsheet/runtime"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel capacity of each subscription
	// (default 256).
	SubscriberBufferSize int
}

// anyRun keys the subscriptions that receive every run.
const anyRun = ""

// MemBus is an in-memory event bus. Publish never blocks the run: when a
// subscription's buffer is full the event is dropped for that subscriber
// and counted in its Dropped.
type MemBus struct {
	bufSize int

	mu     sync.RWMutex
	subs   map[string]map[*memSub]struct{} // run id, or anyRun
	closed bool
}

func NewMemBus(cfg MemBusConfig) *MemBus {
	size := cfg.SubscriberBufferSize
	if size <= 0 {
		size = 256
	}
	return &MemBus{bufSize: size, subs: map[string]map[*memSub]struct{}{}}
}

// Publish delivers event to the subscribers of its run and to those of all
// runs. After Close it does nothing.
func (b *MemBus) Publish(event runtime.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if event.RunID != anyRun {
		for sub := range b.subs[event.RunID] {
			sub.offer(event)
		}
	}
	for sub := range b.subs[anyRun] {
		sub.offer(event)
	}
}

// Subscribe follows a single run.
func (b *MemBus) Subscribe(runID string, filter Filter) Subscription {
	return b.attach(runID, filter)
}

// SubscribeAll follows every run published on the bus.
func (b *MemBus) SubscribeAll(filter Filter) Subscription {
	return b.attach(anyRun, filter)
}

func (b *MemBus) attach(key string, filter Filter) *memSub {
	sub := &memSub{ch: make(chan runtime.Event, b.bufSize), filter: filter}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.shut()
		return sub
	}
	set := b.subs[key]
	if set == nil {
		set = map[*memSub]struct{}{}
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	sub.detach = func() { b.detach(key, sub) }
	return sub
}

func (b *MemBus) detach(key string, sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[key], sub)
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
}

// Subscribers counts the open subscriptions.
func (b *MemBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

// Close ends every subscription; their channels are closed. Later
// subscriptions start closed.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.shut()
		}
	}
	clear(b.subs)
	return nil
}

type memSub struct {
	ch      chan runtime.Event
	filter  Filter
	detach  func()
	dropped atomic.Uint64

	mu   sync.Mutex
	done bool
}

func (s *memSub) Events() <-chan runtime.Event { return s.ch }

func (s *memSub) Dropped() uint64 { return s.dropped.Load() }

// Close leaves the bus and closes the channel.
func (s *memSub) Close() error {
	if s.shut() && s.detach != nil {
		s.detach()
	}
	return nil
}

// shut closes the channel and reports whether it was still open.
func (s *memSub) shut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	close(s.ch)
	return true
}

func (s *memSub) offer(event runtime.Event) {
	if !s.filter.accepts(event) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

var (
	_ EventBus               = (*MemBus)(nil)
	_ Subscription           = (*memSub)(nil)
	_ runtime.EventPublisher = (*MemBus)(nil)
)
