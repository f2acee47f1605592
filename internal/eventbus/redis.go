package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// ErrCircuitOpen is returned while the Redis sink is backing off after
// repeated failures.
var ErrCircuitOpen = errors.New("redis sink circuit open")

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Timeouts
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PublishTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		DialTimeout:    5 * time.Second,
		WriteTimeout:   3 * time.Second,
		PublishTimeout: 2 * time.Second,
		MaxFailures:    5,
		RetryInterval:  30 * time.Second,
	}
}

// redisPublisher is the part of *redis.Client used by RedisSink.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes scheduler events with Redis PUBLISH. After MaxFailures
// consecutive failures it stops trying for RetryInterval.
type RedisSink struct {
	client redisPublisher
	cfg    RedisConfig
	prefix string
	nodeID string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	failCount int
	openUntil time.Time
}

// NewRedisSink creates a Redis sink. The connection is checked with PING but
// a failure is only logged; publishing retries lazily.
func NewRedisSink(cfg RedisConfig, prefix, nodeID string, logger zerolog.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	logger = logger.With().Str("component", "redis").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis not reachable yet")
	} else {
		logger.Info().Str("addr", cfg.Addr).Msg("Redis sink initialized")
	}
	return newRedisSink(client, cfg, prefix, nodeID, logger, time.Now)
}

func newRedisSink(client redisPublisher, cfg RedisConfig, prefix, nodeID string, logger zerolog.Logger, now func() time.Time) *RedisSink {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	return &RedisSink{client: client, cfg: cfg, prefix: prefix, nodeID: nodeID, logger: logger, now: now}
}

// Publish sends event to its channel.
func (s *RedisSink) Publish(event logic.Event) error {
	s.mu.Lock()
	open := s.now().Before(s.openUntil)
	s.mu.Unlock()
	if open {
		return ErrCircuitOpen
	}

	data, err := marshalMessage(event, s.nodeID)
	if err != nil {
		return err
	}

	channel := Channel(s.prefix, event.Type)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}

	s.mu.Lock()
	s.failCount = 0
	s.mu.Unlock()
	s.logger.Debug().Str("channel", channel).Msg("published event")
	return nil
}

func (s *RedisSink) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCount++
	if s.failCount >= s.cfg.MaxFailures {
		s.openUntil = s.now().Add(s.cfg.RetryInterval)
		s.failCount = 0
		s.logger.Warn().Dur("retry_in", s.cfg.RetryInterval).Msg("Redis failure threshold reached, pausing publishes")
	}
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
