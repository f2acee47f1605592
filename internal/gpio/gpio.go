// Package gpio reads the maintenance input line with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// Reader reads a single logical input.
type Reader interface {
	// Read returns true while the input is asserted.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Watcher turns polled samples of a Reader into edge notifications.
type Watcher struct {
	r      Reader
	state  logic.State
	logger zerolog.Logger
}

// NewWatcher creates a watcher over r. The first successful Poll always
// reports a change.
func NewWatcher(r Reader, logger zerolog.Logger) *Watcher {
	return &Watcher{r: r, logger: logger}
}

// Poll samples the reader once. changed is true when the logical level
// differs from the previous successful sample.
func (w *Watcher) Poll() (on, changed bool, err error) {
	on, err = w.r.Read()
	if err != nil {
		return false, false, err
	}
	var tr logic.Transition
	w.state, tr = logic.Step(w.state, on)
	return on, tr != logic.TransitionNone, nil
}

// Run polls every interval until ctx is done and calls fn on every change.
// Read errors are logged and the previous level is kept.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, fn func(on bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.poll(fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(fn)
		}
	}
}

func (w *Watcher) poll(fn func(on bool)) {
	on, changed, err := w.Poll()
	if err != nil {
		w.logger.Warn().Err(err).Msg("gpio read failed")
		return
	}
	if changed {
		w.logger.Info().Bool("on", on).Msg("maintenance input changed")
		fn(on)
	}
}
