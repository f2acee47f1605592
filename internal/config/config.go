// Package config loads the scheduler configuration from a YAML file with
// environment overrides, and holds the window parameters that can change at
// runtime.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TIMESCHED_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full daemon configuration.
type Config struct {
	Location       string  `yaml:"location"`
	FirstDayOfWeek Weekday `yaml:"first_day_of_week"`

	Log   LogConfig   `yaml:"log"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	NATS  NATSConfig  `yaml:"nats"`
	Redis RedisConfig `yaml:"redis"`
	HTTP  HTTPConfig  `yaml:"http"`
	GPIO  GPIOConfig  `yaml:"gpio"`
	Jobs  JobsConfig  `yaml:"jobs"`

	Windows []WindowConfig `yaml:"windows"`
	Silent  SilentConfig   `yaml:"silent"`
	Tariff  TariffConfig   `yaml:"tariff"`
}

// LogConfig selects the log level and output format ("console" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MQTTConfig configures the primary notification sink.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Prefix     string `yaml:"prefix"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// NATSConfig configures the optional NATS sink.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
}

// RedisConfig configures the optional Redis sink.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// GPIOConfig configures the maintenance input line.
type GPIOConfig struct {
	Enabled bool          `yaml:"enabled"`
	Chip    string        `yaml:"chip"`
	Pin     int           `yaml:"pin"`
	Poll    time.Duration `yaml:"poll"`
}

// JobsConfig sets the periodic publication intervals. Zero disables a job.
type JobsConfig struct {
	Sysinfo  time.Duration `yaml:"sysinfo"`
	Tasklist time.Duration `yaml:"tasklist"`
}

// WindowConfig is one named schedule entry.
type WindowConfig struct {
	Name   string       `yaml:"name"`
	Window logic.Window `yaml:"window"`
	Value  uint32       `yaml:"value"`
}

// SilentConfig configures silent mode. A nil Window disables it entirely.
type SilentConfig struct {
	Enabled bool          `yaml:"enabled"`
	Window  *logic.Window `yaml:"window"`
}

// TariffConfig lists the night and self-consumption windows. Tariff
// selection is off when both are empty.
type TariffConfig struct {
	Night []logic.Window `yaml:"night"`
	Self  []logic.Window `yaml:"self"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Location:       "Local",
		FirstDayOfWeek: Weekday(time.Monday),
		Log:            LogConfig{Level: "info", Format: "console"},
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			Prefix:     "home/scheduler",
			BufferSize: 256,
		},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		GPIO:  GPIOConfig{Chip: "gpiochip0", Pin: 17, Poll: 200 * time.Millisecond},
		Jobs:  JobsConfig{Sysinfo: 15 * time.Minute, Tasklist: time.Hour},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Location = getEnv("LOCATION", c.Location)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Prefix = getEnv("MQTT_PREFIX", c.MQTT.Prefix)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	if url := getEnv("NATS_URL", ""); url != "" {
		c.NATS.Enabled = true
		c.NATS.URL = url
	}
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.GPIO.Enabled = getEnvBool("GPIO_ENABLED", c.GPIO.Enabled)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.LoadLocation(); err != nil {
		errs = append(errs, fmt.Errorf("location: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.Prefix == "" || strings.ContainsAny(c.MQTT.Prefix, "#+") {
		errs = append(errs, fmt.Errorf("mqtt.prefix %q is not a valid topic prefix", c.MQTT.Prefix))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.GPIO.Enabled && c.GPIO.Poll <= 0 {
		errs = append(errs, errors.New("gpio.poll must be positive"))
	}
	if c.Jobs.Sysinfo < 0 || c.Jobs.Tasklist < 0 {
		errs = append(errs, errors.New("job intervals must not be negative"))
	}

	seen := make(map[string]bool)
	for i, w := range c.Windows {
		switch {
		case w.Name == "":
			errs = append(errs, fmt.Errorf("windows[%d]: name is required", i))
		case strings.ContainsAny(w.Name, "/#+"):
			errs = append(errs, fmt.Errorf("windows[%d]: name %q must not contain / # +", i, w.Name))
		case seen[w.Name]:
			errs = append(errs, fmt.Errorf("windows[%d]: duplicate name %q", i, w.Name))
		}
		seen[w.Name] = true
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// LoadLocation resolves the configured time zone.
func (c *Config) LoadLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}

// Weekday is a time.Weekday that decodes from a day name.
type Weekday time.Weekday

// UnmarshalText accepts full or three-letter English day names.
func (w *Weekday) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("unknown weekday %q", text)
}

// MarshalText implements encoding.TextMarshaler.
func (w Weekday) MarshalText() ([]byte, error) {
	return []byte(time.Weekday(w).String()), nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}
