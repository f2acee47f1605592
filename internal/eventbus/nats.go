package eventbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// natsConn is the part of *nats.Conn used by NATSSink.
type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSSink publishes scheduler events to NATS subjects.
type NATSSink struct {
	conn   natsConn
	prefix string
	nodeID string
	logger zerolog.Logger
}

// NewNATSSink connects to NATS. Reconnection is handled by the client.
func NewNATSSink(cfg NATSConfig, prefix, nodeID string, logger zerolog.Logger) (*NATSSink, error) {
	logger = logger.With().Str("component", "nats").Logger()
	opts := []nats.Option{
		nats.Name(nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", cfg.URL).Msg("NATS sink initialized")
	return newNATSSink(conn, prefix, nodeID, logger), nil
}

func newNATSSink(conn natsConn, prefix, nodeID string, logger zerolog.Logger) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix, nodeID: nodeID, logger: logger}
}

// Publish sends event to its subject.
func (s *NATSSink) Publish(event logic.Event) error {
	data, err := marshalMessage(event, s.nodeID)
	if err != nil {
		return err
	}
	subject := Subject(s.prefix, event.Type)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	s.logger.Debug().Str("subject", subject).Msg("published event")
	return nil
}

// Close closes the connection.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
