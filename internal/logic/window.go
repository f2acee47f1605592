package logic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of distinct minute-of-day values.
const MinutesPerDay = 24 * 60

var (
	// ErrInvalidMinute indicates a minute-of-day outside [0, 1440).
	ErrInvalidMinute = errors.New("minute of day must be in [00:00, 23:59]")

	// ErrInvalidWindow indicates a window that cannot be parsed.
	ErrInvalidWindow = errors.New(`window must look like "HH:MM-HH:MM"`)
)

// Minute is a minute of the day in [0, MinutesPerDay).
type Minute uint16

// MinuteOf returns the minute of the day of t in t's location.
func MinuteOf(t time.Time) Minute {
	return Minute(t.Hour()*60 + t.Minute())
}

// NewMinute builds a Minute from an hour and minute.
func NewMinute(hour, minute int) (Minute, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%02d:%02d: %w", hour, minute, ErrInvalidMinute)
	}
	return Minute(hour*60 + minute), nil
}

// ParseMinute parses "HH:MM". The hour may be a single digit; anything
// besides the two digit groups and surrounding space is rejected.
func ParseMinute(s string) (Minute, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	h, hok := parseDigits(hs)
	m, mok := parseDigits(ms)
	if !ok || !hok || !mok {
		return 0, fmt.Errorf("parse %q: %w", s, ErrInvalidMinute)
	}
	return NewMinute(h, m)
}

// parseDigits accepts one or two ASCII digits.
func parseDigits(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// WindowSource yields the current value of a window. Sources are re-read on
// every evaluation so externally edited windows apply on the next tick.
type WindowSource interface {
	Window() Window
}

// Window is a daily interval [Start, End). When Start > End the window wraps
// past midnight. When Start == End the window is empty and never active.
type Window struct {
	Start Minute
	End   Minute
}

// Window returns w itself, so a fixed Window is its own WindowSource.
func (w Window) Window() Window {
	return w
}

// Contains reports whether m falls inside the window.
func (w Window) Contains(m Minute) bool {
	if w.Start <= w.End {
		return w.Start <= m && m < w.End
	}
	return m >= w.Start || m < w.End
}

// ContainsTime reports whether the wall-clock time of t falls inside the window.
func (w Window) ContainsTime(t time.Time) bool {
	return w.Contains(MinuteOf(t))
}

// Empty reports whether the window can never be active.
func (w Window) Empty() bool {
	return w.Start == w.End
}

// Wraps reports whether the window spans midnight.
func (w Window) Wraps() bool {
	return w.Start > w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("parse %q: %w", s, ErrInvalidWindow)
	}
	sm, err := ParseMinute(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	em, err := ParseMinute(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	return Window{Start: sm, End: em}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Window) UnmarshalText(text []byte) error {
	parsed, err := ParseWindow(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// AnyContains reports whether any of the sources contains m.
func AnyContains(sources []WindowSource, m Minute) bool {
	for _, src := range sources {
		if src != nil && src.Window().Contains(m) {
			return true
		}
	}
	return false
}
