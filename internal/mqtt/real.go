package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	Prefix     string
	ClientID   string // defaults to "time-scheduler-<random>"
	BufferSize int

	// OnCommand receives parsed control messages. Nil disables the
	// command subscription.
	OnCommand func(Command)

	Logger zerolog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	prefix    string
	logger    zerolog.Logger
	onCommand func(Command)

	mu        sync.Mutex
	outbox    *outbox
	connected bool // at least one successful connection
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It never blocks on the broker.
func NewRealPublisher(opts Options) *RealPublisher {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.ClientID == "" {
		opts.ClientID = "time-scheduler-" + uuid.NewString()[:8]
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		prefix:    opts.Prefix,
		logger:    opts.Logger.With().Str("component", "mqtt").Logger(),
		onCommand: opts.OnCommand,
		outbox:    newOutbox(opts.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(opts.Prefix), string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn().Err(err).Msg("connection lost")
		})

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

func (p *RealPublisher) handleConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	queued, dropped := p.outbox.drain()
	p.mu.Unlock()

	p.logger.Info().Bool("reconnect", reconnect).Int("queued", len(queued)).Int("dropped", dropped).Msg("connected to broker")

	if p.onCommand != nil {
		c.Subscribe(CommandTopic(p.prefix), 1, p.handleMessage)
	}

	for _, m := range queued {
		if err := p.send(m); err != nil {
			p.logger.Warn().Err(err).Str("topic", m.topic).Msg("replay failed")
		}
	}

	if reconnect {
		ev := SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}
		if err := p.PublishSystem(ev); err != nil {
			p.logger.Warn().Err(err).Msg("failed to publish reconnect event")
		}
	}
}

func (p *RealPublisher) handleMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(p.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring command")
		return
	}
	p.logger.Info().Str("topic", msg.Topic()).Msg("command received")
	p.onCommand(cmd)
}

// Publish sends a scheduler event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(queuedMsg{topic: TopicFor(p.prefix, event.Type), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events should not be lost
	return p.publish(queuedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

// PublishTime replaces the retained current time. It is skipped while
// disconnected; a stale time is never buffered.
func (p *RealPublisher) PublishTime(now time.Time) error {
	if !p.client.IsConnectionOpen() {
		return nil
	}
	payload, err := FormatTimePayload(now)
	if err != nil {
		return fmt.Errorf("format time payload: %w", err)
	}
	return p.send(queuedMsg{topic: TimeTopic(p.prefix), payload: payload, retained: true})
}

func (p *RealPublisher) publish(m queuedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.outbox.push(m)
		p.mu.Unlock()
		if dropped {
			p.logger.Warn().Str("topic", m.topic).Msg("offline buffer full, dropped oldest message")
		}
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m queuedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
