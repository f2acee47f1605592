package eventbus

import (
	"errors"
	"io"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// Fanout delivers each event to every sink in order. A failing sink does
// not stop delivery to the others; all errors are joined.
type Fanout []Sink

// Publish sends event to every sink.
func (f Fanout) Publish(event logic.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
