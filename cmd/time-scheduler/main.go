// Command time-scheduler publishes calendar ticks, schedule window
// transitions, silent mode and tariff changes to MQTT once per minute.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/time-scheduler/internal/config"
	"github.com/sweeney/time-scheduler/internal/eventbus"
	"github.com/sweeney/time-scheduler/internal/gpio"
	"github.com/sweeney/time-scheduler/internal/logging"
	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/mqtt"
	"github.com/sweeney/time-scheduler/internal/scheduler"
	"github.com/sweeney/time-scheduler/internal/timesync"
	"github.com/sweeney/time-scheduler/internal/web"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "time-scheduler",
		Short:         "Minute-aligned time window scheduler",
		Long:          "time-scheduler evaluates daily time windows once per minute and publishes calendar, schedule, silent-mode and tariff events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file (defaults only when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(opts), newCheckCmd(opts), newValidateCmd(opts))
	return root
}

// loadConfig loads configuration and sets up logging (called by commands
// that need it).
func loadConfig(opts *globalOptions, w io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var syncMarker string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts, os.Stdout)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, syncMarker, logger)
		},
	}
	cmd.Flags().StringVar(&syncMarker, "sync-marker", "", "file that must exist before the clock is trusted (e.g. "+timesync.SystemdMarker+")")
	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config, syncMarker string, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info().Str("broker", cfg.MQTT.Broker).Str("prefix", cfg.MQTT.Prefix).Int("windows", len(cfg.Windows)).Msg("time-scheduler starting")

	cmds := make(chan mqtt.Command, 16)
	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		Prefix:     cfg.MQTT.Prefix,
		ClientID:   cfg.MQTT.ClientID,
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger,
		OnCommand: func(c mqtt.Command) {
			select {
			case cmds <- c:
			default:
				logger.Warn().Msg("command queue full, dropping command")
			}
		},
	})

	d, err := newDaemon(cfg, publisher, optionalSinks(cfg, logger), scheduler.RealClock{}, logger)
	if err != nil {
		publisher.Close()
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing sinks")
		}
	}()
	d.timesync.Marker = syncMarker

	if cfg.GPIO.Enabled {
		reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Pin)
		if err != nil {
			logger.Error().Err(err).Msg("gpio unavailable, maintenance input disabled")
		} else {
			defer reader.Close()
			d.gpio = reader
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, d.tracker, d, d.metrics.Handler(), logging.Component(logger, "http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.run(ctx, sigCh, cmds)
}

// optionalSinks connects the NATS and Redis sinks that are enabled. A sink
// that cannot connect is logged and skipped.
func optionalSinks(cfg *config.Config, logger zerolog.Logger) []eventbus.Sink {
	var sinks []eventbus.Sink
	nodeID := eventbus.NodeID()
	if cfg.NATS.Enabled {
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATS.URL
		nc.Token = cfg.NATS.Token
		s, err := eventbus.NewNATSSink(nc, cfg.MQTT.Prefix, nodeID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("nats sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Redis.Enabled {
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		sinks = append(sinks, eventbus.NewRedisSink(rc, cfg.MQTT.Prefix, nodeID, logger))
	}
	return sinks
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the current window states and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			return check(cmd.OutOrStdout(), cfg, now, logger)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC 3339 time instead of now")
	return cmd
}

// check evaluates every window once at now without publishing anything.
func check(w io.Writer, cfg *config.Config, now time.Time, logger zerolog.Logger) error {
	loc, err := cfg.LoadLocation()
	if err != nil {
		return err
	}
	params := config.NewParams(cfg)
	opts := scheduler.Options{
		Location:       loc,
		FirstDayOfWeek: time.Weekday(cfg.FirstDayOfWeek),
	}
	opts.TariffNight, opts.TariffSelf = params.TariffSources()
	if src := params.SilentSource(); src != nil {
		opts.SilentWindow = src
		opts.SilentEnabled = params.SilentEnabled
	}
	pipe := scheduler.NewPipeline(opts, nil, logger)
	for _, e := range params.Entries() {
		if _, err := pipe.Register(e.Param, logic.Item{Name: e.Name, Value: e.Value}); err != nil {
			return err
		}
	}

	r := pipe.Reevaluate(now, false)
	if !r.Plausible {
		return fmt.Errorf("clock not plausible: %s", now.Format(time.RFC3339))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Time:\t%s\n", r.Time.Format("2006-01-02 15:04 MST"))
	for _, e := range r.Entries {
		note := ""
		if e.Window.Empty() {
			note = "\t(empty, never active)"
		}
		fmt.Fprintf(tw, "%s:\t%s\t%s\tvalue=%d%s\n", e.Item.Name, e.State, e.Window, e.Item.Value, note)
	}
	if r.SilentConfigured {
		state := "OFF"
		if r.SilentActive {
			state = "ON"
		}
		enabled := ""
		if !r.SilentEnabled {
			enabled = "\t(disabled)"
		}
		fmt.Fprintf(tw, "Silent:\t%s\t%s%s\n", state, r.SilentWindow, enabled)
	}
	if r.TariffConfigured {
		fmt.Fprintf(tw, "Tariff:\t%s\ttier=%d\n", r.Tier, r.Tier)
	}
	return tw.Flush()
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d windows, silent=%t, tariff bands=%d\n",
				len(cfg.Windows), cfg.Silent.Window != nil, len(cfg.Tariff.Night)+len(cfg.Tariff.Self))
			return nil
		},
	}
}
