package main

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/config"
	"github.com/sweeney/time-scheduler/internal/eventbus"
	"github.com/sweeney/time-scheduler/internal/gpio"
	"github.com/sweeney/time-scheduler/internal/logging"
	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/metrics"
	"github.com/sweeney/time-scheduler/internal/mqtt"
	"github.com/sweeney/time-scheduler/internal/scheduler"
	"github.com/sweeney/time-scheduler/internal/status"
	"github.com/sweeney/time-scheduler/internal/timesync"
)

// clockCheckInterval is how often the daemon re-checks an implausible clock.
var clockCheckInterval = time.Second

// daemon ties the scheduler to its sinks, status consumers and control
// inputs.
type daemon struct {
	cfg       *config.Config
	params    *config.Params
	publisher mqtt.Publisher
	sinks     eventbus.Fanout
	clock     scheduler.Clock
	driver    *scheduler.Driver
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	timesync  *timesync.Watcher
	gpio      gpio.Reader
	logger    zerolog.Logger

	mu          sync.Mutex
	maintenance bool
}

func newDaemon(cfg *config.Config, publisher mqtt.Publisher, extra []eventbus.Sink, clock scheduler.Clock, logger zerolog.Logger) (*daemon, error) {
	loc, err := cfg.LoadLocation()
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:       cfg,
		params:    config.NewParams(cfg),
		publisher: publisher,
		sinks:     append(eventbus.Fanout{publisher}, extra...),
		clock:     clock,
		metrics:   metrics.New(true),
		logger:    logger,
	}

	sinkNames := []string{"mqtt"}
	for _, s := range extra {
		switch s.(type) {
		case *eventbus.NATSSink:
			sinkNames = append(sinkNames, "nats")
		case *eventbus.RedisSink:
			sinkNames = append(sinkNames, "redis")
		}
	}
	d.tracker = status.NewTracker(clock.Now(), status.Config{
		Broker:         cfg.MQTT.Broker,
		Prefix:         cfg.MQTT.Prefix,
		HTTPAddr:       cfg.HTTP.Addr,
		Location:       loc.String(),
		FirstDayOfWeek: time.Weekday(cfg.FirstDayOfWeek).String(),
		Sinks:          sinkNames,
	})
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}

	opts := scheduler.Options{
		Location:       loc,
		FirstDayOfWeek: time.Weekday(cfg.FirstDayOfWeek),
		OnMinute:       d.housekeeping,
	}
	opts.TariffNight, opts.TariffSelf = d.params.TariffSources()
	if src := d.params.SilentSource(); src != nil {
		opts.SilentWindow = src
		opts.SilentEnabled = d.params.SilentEnabled
	}
	pipe := scheduler.NewPipeline(opts, d.sinks, logging.Component(logger, "pipeline"))

	d.driver = scheduler.NewDriver(pipe, clock, logging.Component(logger, "driver"))
	for _, e := range d.params.Entries() {
		if _, err := d.driver.Register(e.Param, logic.Item{Name: e.Name, Value: e.Value}); err != nil {
			return nil, err
		}
	}
	d.driver.AddObserver(d.tracker)
	d.driver.AddObserver(d.metrics)

	if cfg.Jobs.Sysinfo > 0 {
		d.driver.AddJob(scheduler.Job{Name: "sysinfo", Interval: cfg.Jobs.Sysinfo, Run: d.publishSysinfo})
	}
	if cfg.Jobs.Tasklist > 0 {
		d.driver.AddJob(scheduler.Job{Name: "tasklist", Interval: cfg.Jobs.Tasklist, Run: d.publishTaskList})
	}

	d.params.OnChange(d.paramsChanged)

	d.timesync = timesync.NewWatcher("", logging.Component(logger, "timesync"))
	d.timesync.Now = clock.Now
	return d, nil
}

// run blocks until a signal arrives or ctx ends, then shuts down.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal, cmds <-chan mqtt.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.publishStatus("STARTUP", "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.timesync.Run(ctx, clockCheckInterval, d.clockReady)
	}()
	if d.gpio != nil {
		gw := gpio.NewWatcher(d.gpio, logging.Component(d.logger, "gpio"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			gw.Run(ctx, d.cfg.GPIO.Poll, func(on bool) {
				if err := d.SetMaintenance(on); err != nil {
					d.logger.Error().Err(err).Msg("maintenance from gpio")
				}
			})
		}()
	}

	reason := "CONTEXT_DONE"
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case s := <-sig:
			reason = signalName(s)
			d.logger.Info().Str("signal", reason).Msg("shutting down")
			break loop
		case c := <-cmds:
			d.handleCommand(c)
		}
	}

	cancel()
	wg.Wait()
	d.driver.Stop()
	d.syncState()
	d.publishStatus("SHUTDOWN", reason)
	return nil
}

// Close releases every sink, including the MQTT publisher.
func (d *daemon) Close() error {
	return d.sinks.Close()
}

func (d *daemon) clockReady(ctx context.Context) {
	if err := d.driver.ClockReady(ctx); err != nil {
		d.logger.Error().Err(err).Msg("scheduler start failed")
		return
	}
	d.mu.Lock()
	maintenance := d.maintenance
	d.mu.Unlock()
	if maintenance {
		d.driver.Suspend()
	}
	d.syncState()
}

// SetMaintenance suspends or resumes the scheduler.
func (d *daemon) SetMaintenance(on bool) error {
	d.mu.Lock()
	d.maintenance = on
	d.mu.Unlock()

	if d.driver.SetMaintenance(on) {
		d.logger.Info().Bool("on", on).Msg("maintenance mode changed")
	}
	d.tracker.SetMaintenance(on)
	d.syncState()
	return nil
}

// SetWindow replaces a named schedule window.
func (d *daemon) SetWindow(name string, w logic.Window) error {
	return d.params.SetWindow(name, w)
}

// SetSilent updates the silent-mode switch and/or window.
func (d *daemon) SetSilent(enabled *bool, w *logic.Window) error {
	return d.params.SetSilent(enabled, w)
}

// SetTariff replaces window idx of a tariff band.
func (d *daemon) SetTariff(band string, idx int, w logic.Window) error {
	return d.params.SetTariff(band, idx, w)
}

func (d *daemon) handleCommand(c mqtt.Command) {
	var err error
	switch c.Kind {
	case mqtt.CommandMaintenance:
		err = d.SetMaintenance(c.On)
	case mqtt.CommandSilent:
		err = d.SetSilent(c.Enabled, c.Window)
	case mqtt.CommandWindow:
		if c.Window != nil {
			err = d.SetWindow(c.Name, *c.Window)
		}
	case mqtt.CommandTariff:
		if c.Window != nil {
			err = d.SetTariff(c.Band, c.Index, *c.Window)
		}
	}
	if err != nil {
		d.logger.Warn().Err(err).Msg("command rejected")
	}
}

func (d *daemon) paramsChanged(c config.Change) {
	kind := scheduler.ReevaluateAll
	if c.Kind == config.ChangeSilent {
		kind = scheduler.ReevaluateSilent
	}
	d.logger.Info().Str("window", c.Name).Bool("silent", c.Kind == config.ChangeSilent).Bool("tariff", c.Kind == config.ChangeTariff).Msg("parameters changed")
	d.driver.Reevaluate(kind)
}

func (d *daemon) syncState() {
	s := d.driver.State()
	d.tracker.SetState(s)
	d.metrics.SetRunState(s)
}

// housekeeping runs on every tick from the driver goroutine.
func (d *daemon) housekeeping(now time.Time) {
	if cs, ok := d.publisher.(mqtt.ConnectionStatus); ok {
		d.tracker.SetMQTTConnected(cs.IsConnected())
	}
	if !logic.ClockPlausible(now) {
		return
	}
	if cp, ok := d.publisher.(mqtt.ClockPublisher); ok {
		if err := cp.PublishTime(now); err != nil {
			d.logger.Warn().Err(err).Msg("failed to publish current time")
		}
	}
}

func (d *daemon) publishSysinfo(context.Context) {
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	d.publishStatus("SYSINFO", "")
}

func (d *daemon) publishTaskList(context.Context) {
	snap := d.tracker.Snapshot()
	snap.Now = d.clock.Now()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "TASKLIST",
		RawPayload: status.FormatTaskList(snap),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.logger.Warn().Err(err).Msg("failed to publish task list")
	}
}

func (d *daemon) publishStatus(event, reason string) {
	if cs, ok := d.publisher.(mqtt.ConnectionStatus); ok {
		d.tracker.SetMQTTConnected(cs.IsConnected())
	}
	snap := d.tracker.Snapshot()
	snap.Now = d.clock.Now()
	se := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "SYSINFO",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		d.logger.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	d.logger.Debug().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
