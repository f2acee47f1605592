package timesync

import (
	"context"
	"errors"
	"io/fs"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var (
	epoch = time.Unix(120, 0)
	valid = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
)

type clock struct{ v atomic.Value }

func newClock(t time.Time) *clock {
	c := &clock{}
	c.v.Store(t)
	return c
}

func (c *clock) now() time.Time   { return c.v.Load().(time.Time) }
func (c *clock) set(t time.Time) { c.v.Store(t) }

func TestReadyPlausibility(t *testing.T) {
	c := newClock(epoch)
	w := &Watcher{Now: c.now, Logger: zerolog.Nop()}

	if w.Ready() {
		t.Error("clock near the epoch must not be ready")
	}
	c.set(valid)
	if !w.Ready() {
		t.Error("plausible clock should be ready")
	}
}

func TestReadyWaitsForMarker(t *testing.T) {
	exists := false
	w := &Watcher{
		Now:    func() time.Time { return valid },
		Marker: "/run/marker",
		Logger: zerolog.Nop(),
		stat: func(name string) (fs.FileInfo, error) {
			if name != "/run/marker" {
				t.Errorf("stat %q", name)
			}
			if !exists {
				return nil, fs.ErrNotExist
			}
			return nil, nil
		},
	}

	if w.Ready() {
		t.Error("should wait for marker")
	}
	exists = true
	if !w.Ready() {
		t.Error("should be ready once marker exists")
	}
}

func TestRunCallsReadyOnce(t *testing.T) {
	c := newClock(epoch)
	w := &Watcher{Now: c.now, Logger: zerolog.Nop()}

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), time.Millisecond, func(context.Context) { calls.Add(1) })
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("ready called before clock was valid")
	}
	c.set(valid)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after clock became valid")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("ready calls: got %d, want 1", got)
	}
}

func TestRunImmediateWhenAlreadyValid(t *testing.T) {
	w := &Watcher{Now: func() time.Time { return valid }, Logger: zerolog.Nop()}
	called := false
	w.Run(context.Background(), time.Hour, func(context.Context) { called = true })
	if !called {
		t.Error("expected immediate ready call")
	}
}

func TestWaitCancelled(t *testing.T) {
	w := &Watcher{Now: func() time.Time { return epoch }, Logger: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Wait(ctx, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}

	called := false
	w.Run(ctx, time.Millisecond, func(context.Context) { called = true })
	if called {
		t.Error("ready must not be called after cancel")
	}
}
