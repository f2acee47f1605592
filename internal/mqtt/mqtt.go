// Package mqtt publishes scheduler events to MQTT, with an abstraction for
// testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/scheduler"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a scheduler event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ClockPublisher publishes the retained current time. Implemented by
// publishers that can retain messages.
type ClockPublisher interface {
	PublishTime(now time.Time) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, sysinfo).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "SYSINFO", "TASKLIST"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TopicFor returns the topic for an event type under prefix.
func TopicFor(prefix string, t logic.EventType) string {
	var suffix string
	switch t {
	case logic.EventMinute:
		suffix = "time/minute"
	case logic.EventHourStart:
		suffix = "time/hour"
	case logic.EventDayStart:
		suffix = "time/day"
	case logic.EventWeekStart:
		suffix = "time/week"
	case logic.EventMonthStart:
		suffix = "time/month"
	case logic.EventYearStart:
		suffix = "time/year"
	case logic.EventWindowOn:
		suffix = "schedule/on"
	case logic.EventWindowOff:
		suffix = "schedule/off"
	case logic.EventSilentOn:
		suffix = "silent/on"
	case logic.EventSilentOff:
		suffix = "silent/off"
	case logic.EventTariff:
		suffix = "tariff"
	default:
		suffix = "events"
	}
	return prefix + "/" + suffix
}

// SystemTopic returns the topic for system lifecycle events.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// TimeTopic returns the retained topic carrying the current time.
func TimeTopic(prefix string) string {
	return prefix + "/time/now"
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Scheduler SchedulerPayload `json:"scheduler"`
}

// SchedulerPayload contains the event details. Exactly one of Field, Window
// and Tariff is set, depending on the event type.
type SchedulerPayload struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Field     *int           `json:"field,omitempty"`
	Window    *WindowPayload `json:"window,omitempty"`
	Tariff    *TariffPayload `json:"tariff,omitempty"`
}

// WindowPayload carries a schedule entry's name and typed value.
type WindowPayload struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// TariffPayload carries the selected tier.
type TariffPayload struct {
	Tier uint8  `json:"tier"`
	Band string `json:"band"`
}

// FormatPayload creates the JSON payload for a scheduler event.
func FormatPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(Payload{Scheduler: NewSchedulerPayload(event)})
}

// NewSchedulerPayload builds the inner payload for a scheduler event.
func NewSchedulerPayload(event logic.Event) SchedulerPayload {
	inner := SchedulerPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
	}
	switch event.Type {
	case logic.EventWindowOn, logic.EventWindowOff:
		inner.Window = &WindowPayload{Name: event.Item.Name, Value: event.Item.Value}
	case logic.EventTariff:
		inner.Tariff = &TariffPayload{Tier: uint8(event.Tier), Band: event.Tier.String()}
	case logic.EventSilentOn, logic.EventSilentOff:
	default:
		field := event.Field
		inner.Field = &field
	}
	return inner
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// TimePayload is the retained current-time message.
type TimePayload struct {
	Time TimePayloadInner `json:"time"`
}

// TimePayloadInner holds the local wall-clock time in several formats.
type TimePayloadInner struct {
	Timestamp string `json:"timestamp"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Weekday   string `json:"weekday"`
}

// FormatTimePayload creates the current-time payload. now is formatted in
// its own location.
func FormatTimePayload(now time.Time) ([]byte, error) {
	return json.Marshal(TimePayload{Time: TimePayloadInner{
		Timestamp: now.Format(time.RFC3339),
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04"),
		Weekday:   now.Weekday().String(),
	}})
}
