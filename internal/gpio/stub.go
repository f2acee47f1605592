//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: maintenance input requires Linux gpiochip support")

// RealReader is a placeholder on platforms without the gpiochip character device.
type RealReader struct{}

// NewRealReader always fails here; the daemon runs without a maintenance input.
func NewRealReader(chipName string, pin int) (*RealReader, error) {
	return nil, errUnsupported
}

func (r *RealReader) Read() (bool, error) { return false, errUnsupported }

func (r *RealReader) Close() error { return nil }
