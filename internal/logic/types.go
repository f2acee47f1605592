// Package logic contains the pure time-window evaluation engine.
// This package has NO external dependencies (no MQTT, timers, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is the last known membership of a monitored window.
// The zero value is StateUnknown, so a fresh entry always reports a
// transition on its first evaluation.
type State int8

const (
	StateUnknown State = iota
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "OFF"
	case StateActive:
		return "ON"
	default:
		return "UNKNOWN"
	}
}

// Transition is the outcome of one edge-trigger step.
type Transition int8

const (
	TransitionNone Transition = iota
	BecameActive
	BecameInactive
)

func (t Transition) String() string {
	switch t {
	case BecameActive:
		return "BECAME_ACTIVE"
	case BecameInactive:
		return "BECAME_INACTIVE"
	default:
		return "NONE"
	}
}

// Tier is the tariff band selected by TariffSelector.
type Tier uint8

const (
	TierDefault Tier = 1
	TierSelf    Tier = 2
	TierNight   Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierSelf:
		return "SELF"
	case TierNight:
		return "NIGHT"
	default:
		return "DEFAULT"
	}
}

// EventType identifies a notification emitted by the scheduler.
type EventType string

const (
	EventMinute     EventType = "MINUTE"
	EventHourStart  EventType = "HOUR_START"
	EventDayStart   EventType = "DAY_START"
	EventWeekStart  EventType = "WEEK_START"
	EventMonthStart EventType = "MONTH_START"
	EventYearStart  EventType = "YEAR_START"
	EventWindowOn   EventType = "WINDOW_ON"
	EventWindowOff  EventType = "WINDOW_OFF"
	EventSilentOn   EventType = "SILENT_ON"
	EventSilentOff  EventType = "SILENT_OFF"
	EventTariff     EventType = "TARIFF"
)

// Item is the typed payload carried by a schedule entry from registration
// through evaluation to the published notification.
type Item struct {
	Name  string
	Value uint32
}

// Event represents a notification to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Field holds the calendar value for boundary events: minute, hour,
	// day of month, weekday, month or year.
	Field int
	// Item is set for EventWindowOn and EventWindowOff.
	Item Item
	// Tier is set for EventTariff.
	Tier Tier
}
