package core

import (
	"sort"
	"time"
)

// Timer measures scene time from its last reset.
type Timer struct {
	Name    string
	elapsed time.Duration
	paused  bool
}

// Elapsed returns the time since the last reset.
func (t *Timer) Elapsed() time.Duration { return t.elapsed }

// Paused reports whether the timer ignores clock advances.
func (t *Timer) Paused() bool { return t.paused }

// Timers holds the named timers of a scene.
type Timers struct {
	byName map[string]*Timer
}

// NewTimers returns an empty timer set.
func NewTimers() *Timers {
	return &Timers{byName: make(map[string]*Timer)}
}

// Reset creates name if needed and restarts it from zero.
func (ts *Timers) Reset(name string) {
	t := ts.findOrCreate(name)
	t.elapsed = 0
}

// Pause stops name from advancing.
func (ts *Timers) Pause(name string) { ts.findOrCreate(name).paused = true }

// Resume lets name advance again.
func (ts *Timers) Resume(name string) { ts.findOrCreate(name).paused = false }

// Paused reports whether name exists and is paused.
func (ts *Timers) Paused(name string) bool {
	t, ok := ts.byName[name]
	return ok && t.paused
}

// Remove deletes name.
func (ts *Timers) Remove(name string) { delete(ts.byName, name) }

// Exists reports whether name has been created.
func (ts *Timers) Exists(name string) bool {
	_, ok := ts.byName[name]
	return ok
}

// Seconds returns the elapsed seconds of name, or 0 if it does not exist.
func (ts *Timers) Seconds(name string) float64 {
	if t, ok := ts.byName[name]; ok {
		return t.elapsed.Seconds()
	}
	return 0
}

// Advance moves every running timer forward by d.
func (ts *Timers) Advance(d time.Duration) {
	for _, t := range ts.byName {
		if !t.paused {
			t.elapsed += d
		}
	}
}

// Names returns timer names, sorted.
func (ts *Timers) Names() []string {
	names := make([]string, 0, len(ts.byName))
	for name := range ts.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ts *Timers) findOrCreate(name string) *Timer {
	if t, ok := ts.byName[name]; ok {
		return t
	}
	t := &Timer{Name: name}
	ts.byName[name] = t
	return t
}

// Clock is the simulated scene clock. It only moves when ticked.
type Clock struct {
	delta   time.Duration
	elapsed time.Duration
	frame   uint64
}

// Tick advances the clock by one frame of length d.
func (c *Clock) Tick(d time.Duration) {
	c.delta = d
	c.elapsed += d
	c.frame++
}

// Delta returns the length of the last frame in seconds.
func (c *Clock) Delta() float64 { return c.delta.Seconds() }

// Elapsed returns the scene time in seconds.
func (c *Clock) Elapsed() float64 { return c.elapsed.Seconds() }

// Frame returns the number of ticks so far.
func (c *Clock) Frame() uint64 { return c.frame }
