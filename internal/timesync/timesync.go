// Package timesync waits for the wall clock to become trustworthy and then
// signals the scheduler once.
package timesync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// SystemdMarker is the file systemd-timesyncd creates after the first
// successful synchronisation.
const SystemdMarker = "/run/systemd/timesync/synchronized"

// Watcher polls the clock until it is plausible and, when a marker file is
// configured, until that file exists.
type Watcher struct {
	Now    func() time.Time
	Marker string
	Logger zerolog.Logger

	stat func(string) (fs.FileInfo, error)
}

// NewWatcher creates a watcher on the real clock. An empty marker relies on
// plausibility alone.
func NewWatcher(marker string, logger zerolog.Logger) *Watcher {
	return &Watcher{Now: time.Now, Marker: marker, Logger: logger, stat: os.Stat}
}

// Ready reports whether the clock can be trusted.
func (w *Watcher) Ready() bool {
	if !logic.ClockPlausible(w.Now()) {
		return false
	}
	if w.Marker == "" {
		return true
	}
	stat := w.stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(w.Marker)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.Logger.Warn().Err(err).Str("marker", w.Marker).Msg("cannot check time sync marker")
	}
	return err == nil
}

// Wait blocks until Ready or ctx is done, checking every interval. It
// returns ctx.Err() when cancelled first.
func (w *Watcher) Wait(ctx context.Context, interval time.Duration) error {
	if w.Ready() {
		return nil
	}
	w.Logger.Info().Time("now", w.Now()).Msg("waiting for valid wall clock")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.Ready() {
				w.Logger.Info().Time("now", w.Now()).Msg("wall clock valid")
				return nil
			}
		}
	}
}

// Run waits for the clock and then calls ready exactly once. Nothing is
// called when ctx ends first.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, ready func(context.Context)) {
	if err := w.Wait(ctx, interval); err != nil {
		return
	}
	ready(ctx)
}
