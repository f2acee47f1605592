// Package eventbus forwards scheduler events to message brokers other than
// MQTT. Every sink wraps the MQTT payload in a common envelope so consumers
// see the same body whichever transport they subscribe on.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/mqtt"
)

// Sink receives scheduler events.
type Sink interface {
	Publish(event logic.Event) error
}

// Message is the envelope published on every bus.
type Message struct {
	MessageID string          `json:"message_id"`
	NodeID    string          `json:"node_id"`
	EventType logic.EventType `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMessage wraps event for nodeID.
func NewMessage(event logic.Event, nodeID string) (Message, error) {
	payload, err := mqtt.FormatPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format payload: %w", err)
	}
	return Message{
		MessageID: uuid.NewString(),
		NodeID:    nodeID,
		EventType: event.Type,
		Timestamp: event.Timestamp.UTC(),
		Payload:   payload,
	}, nil
}

func marshalMessage(event logic.Event, nodeID string) ([]byte, error) {
	msg, err := NewMessage(event, nodeID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// UnmarshalMessage parses an envelope.
func UnmarshalMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}

// Subject returns the NATS subject for an event: the MQTT topic with
// slashes replaced by dots.
func Subject(prefix string, t logic.EventType) string {
	return strings.ReplaceAll(mqtt.TopicFor(prefix, t), "/", ".")
}

// Channel returns the Redis channel for an event, identical to its MQTT topic.
func Channel(prefix string, t logic.EventType) string {
	return mqtt.TopicFor(prefix, t)
}

// NodeID returns hostname plus a random suffix, identifying this process on
// a shared bus.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "time-scheduler"
	}
	return host + "-" + uuid.NewString()[:8]
}
