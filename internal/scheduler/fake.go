package scheduler

import (
	"sync"
	"time"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// FakeClock is a manually advanced Clock for tests. Safe for concurrent use.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	armed  chan struct{}
}

// NewFakeClock creates a FakeClock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, armed: make(chan struct{}, 64)}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer creates a timer that fires once the clock is advanced past d.
func (c *FakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &fakeTimer{ch: make(chan time.Time, 1), deadline: c.now.Add(d), clock: c}
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	select {
	case c.armed <- struct{}{}:
	default:
	}
	return t
}

// Armed receives a value every time a timer is created. Tests use it to
// wait for the driver to re-arm before advancing the clock.
func (c *FakeClock) Armed() <-chan struct{} {
	return c.armed
}

// Set moves the clock to t without firing timers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every due timer.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var pending []*fakeTimer
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if !t.deadline.After(now) {
			t.stopped = true
			t.ch <- now
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
	c.mu.Unlock()
}

// FireAll fires every armed timer without moving the clock, simulating a
// timer that wakes up early.
func (c *FakeClock) FireAll() {
	c.mu.Lock()
	now := c.now
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			t.ch <- now
		}
	}
	c.timers = nil
	c.mu.Unlock()
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// NextDeadline returns the earliest armed deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if !found || t.deadline.Before(next) {
			next = t.deadline
			found = true
		}
	}
	return next, found
}

type fakeTimer struct {
	ch       chan time.Time
	deadline time.Time
	stopped  bool
	clock    *FakeClock
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// FakeNotifier records published events for test assertions.
// Safe for concurrent use.
type FakeNotifier struct {
	mu     sync.Mutex
	events []logic.Event

	// PublishError, if set, is returned by Publish after recording the event.
	PublishError error

	published chan logic.Event
}

// NewFakeNotifier creates a FakeNotifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{published: make(chan logic.Event, 256)}
}

// Publish records the event.
func (f *FakeNotifier) Publish(event logic.Event) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	err := f.PublishError
	f.mu.Unlock()

	select {
	case f.published <- event:
	default:
	}
	return err
}

// Events returns a copy of the recorded events.
func (f *FakeNotifier) Events() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.Event, len(f.events))
	copy(out, f.events)
	return out
}

// OfType returns the recorded events of type t.
func (f *FakeNotifier) OfType(t logic.EventType) []logic.Event {
	var out []logic.Event
	for _, e := range f.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Published receives every event as it is published.
func (f *FakeNotifier) Published() <-chan logic.Event {
	return f.published
}

// Reset clears recorded events.
func (f *FakeNotifier) Reset() {
	f.mu.Lock()
	f.events = nil
	f.PublishError = nil
	f.mu.Unlock()
}
