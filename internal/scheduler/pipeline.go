// Package scheduler drives the time-window engine once per minute and
// publishes the resulting notifications.
package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

// Notifier delivers scheduler events to subscribers.
// Publish may block; a returned error is logged and never retried.
type Notifier interface {
	Publish(event logic.Event) error
}

// Observer receives a report after every tick and out-of-band evaluation.
// Observe is called from the driver goroutine and must not block.
type Observer interface {
	Observe(report Report)
}

// Options configures a Pipeline. Silent mode and tariff selection are only
// active when their windows are set.
type Options struct {
	// Location is the zone windows are evaluated in. Defaults to time.Local.
	Location *time.Location

	// FirstDayOfWeek selects the day that emits EventWeekStart.
	FirstDayOfWeek time.Weekday

	SilentWindow  logic.WindowSource
	SilentEnabled func() bool

	TariffNight []logic.WindowSource
	TariffSelf  []logic.WindowSource

	// OnMinute is the housekeeping call-out invoked on every tick.
	OnMinute func(now time.Time)
}

// EntryStatus is a point-in-time view of one schedule entry.
type EntryStatus struct {
	Handle logic.Handle
	Item   logic.Item
	Window logic.Window
	State  logic.State
}

// Report is a point-in-time view of the pipeline. It is a value type and
// safe to keep after the tick.
type Report struct {
	Time      time.Time
	Plausible bool
	Entries   []EntryStatus

	SilentConfigured bool
	SilentEnabled    bool
	SilentActive     bool
	SilentWindow     logic.Window

	TariffConfigured bool
	Tier             logic.Tier

	WorkTime      time.Duration
	Ticks         int
	Published     int
	PublishErrors int

	// Events lists what was published during this evaluation.
	Events []logic.Event
}

// Pipeline is the per-minute evaluation body. It owns the schedule
// registry, silent mode and tariff selector. Not safe for concurrent use;
// the Driver serialises all access on its own goroutine.
type Pipeline struct {
	registry logic.Registry[logic.Item]
	silent   *logic.SilentMode
	tariff   *logic.TariffSelector

	notifier Notifier
	logger   zerolog.Logger
	loc      *time.Location
	firstDay time.Weekday
	onMinute func(time.Time)

	workTime      time.Duration
	ticks         int
	published     int
	publishErrors int
	pending       []logic.Event
}

// NewPipeline creates a pipeline publishing to notifier.
func NewPipeline(opts Options, notifier Notifier, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		notifier: notifier,
		logger:   logger,
		loc:      opts.Location,
		firstDay: opts.FirstDayOfWeek,
		onMinute: opts.OnMinute,
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if opts.SilentWindow != nil {
		p.silent = logic.NewSilentMode(opts.SilentWindow, opts.SilentEnabled)
	}
	if len(opts.TariffNight) > 0 || len(opts.TariffSelf) > 0 {
		p.tariff = logic.NewTariffSelector(opts.TariffNight, opts.TariffSelf)
	}
	return p
}

// Register adds a schedule entry. Must be called before the driver starts.
func (p *Pipeline) Register(src logic.WindowSource, item logic.Item) (logic.Handle, error) {
	return p.registry.Register(src, item)
}

// Tick runs one full minute evaluation at now.
func (p *Pipeline) Tick(now time.Time) Report {
	now = now.In(p.loc)
	p.ticks++

	for _, ev := range logic.CalendarEvents(now, p.firstDay) {
		p.publish(ev)
	}

	p.workTime += time.Minute
	if p.onMinute != nil {
		p.onMinute(now)
	}

	plausible := logic.ClockPlausible(now)
	if plausible {
		m := logic.MinuteOf(now)
		p.evaluateRegistry(now, m)
		p.evaluateSilent(now, m)
		p.evaluateTariff(now, m)
	} else {
		p.logger.Debug().Time("now", now).Msg("clock not plausible, skipping window evaluation")
	}

	return p.report(now, plausible, p.drain())
}

// Reevaluate runs window evaluation outside the minute cadence, e.g. after
// a configuration change. With silentOnly set only silent mode is checked.
func (p *Pipeline) Reevaluate(now time.Time, silentOnly bool) Report {
	now = now.In(p.loc)
	plausible := logic.ClockPlausible(now)
	if plausible {
		m := logic.MinuteOf(now)
		if !silentOnly {
			p.evaluateRegistry(now, m)
		}
		p.evaluateSilent(now, m)
		if !silentOnly {
			p.evaluateTariff(now, m)
		}
	}
	return p.report(now, plausible, p.drain())
}

func (p *Pipeline) evaluateRegistry(now time.Time, m logic.Minute) {
	for _, c := range p.registry.Evaluate(m) {
		typ := logic.EventWindowOff
		if c.Transition == logic.BecameActive {
			typ = logic.EventWindowOn
		}
		p.logger.Info().
			Str("window", c.Value.Name).
			Str("span", c.Window.String()).
			Uint32("value", c.Value.Value).
			Str("transition", c.Transition.String()).
			Msg("schedule window changed")
		p.publish(logic.Event{Timestamp: now, Type: typ, Item: c.Value})
	}
}

func (p *Pipeline) evaluateSilent(now time.Time, m logic.Minute) {
	if p.silent == nil {
		return
	}
	switch p.silent.Evaluate(m) {
	case logic.BecameActive:
		p.logger.Info().Msg("silent mode activated")
		p.publish(logic.Event{Timestamp: now, Type: logic.EventSilentOn})
	case logic.BecameInactive:
		p.logger.Info().Msg("silent mode disabled")
		p.publish(logic.Event{Timestamp: now, Type: logic.EventSilentOff})
	}
}

func (p *Pipeline) evaluateTariff(now time.Time, m logic.Minute) {
	if p.tariff == nil {
		return
	}
	if tier, changed := p.tariff.Evaluate(m); changed {
		p.logger.Info().Uint8("tier", uint8(tier)).Str("band", tier.String()).Msg("tariff changed")
		p.publish(logic.Event{Timestamp: now, Type: logic.EventTariff, Tier: tier})
	}
}

func (p *Pipeline) publish(ev logic.Event) {
	p.pending = append(p.pending, ev)
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ev); err != nil {
		p.publishErrors++
		p.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish failed")
		return
	}
	p.published++
}

func (p *Pipeline) drain() []logic.Event {
	events := p.pending
	p.pending = nil
	return events
}

func (p *Pipeline) report(now time.Time, plausible bool, events []logic.Event) Report {
	r := Report{
		Time:          now,
		Plausible:     plausible,
		WorkTime:      p.workTime,
		Ticks:         p.ticks,
		Published:     p.published,
		PublishErrors: p.publishErrors,
		Events:        events,
	}

	for i, e := range p.registry.Entries() {
		r.Entries = append(r.Entries, EntryStatus{
			Handle: logic.Handle(i),
			Item:   e.Value,
			Window: e.Source.Window(),
			State:  e.State,
		})
	}
	if p.silent != nil {
		r.SilentConfigured = true
		r.SilentEnabled = p.silent.Enabled()
		r.SilentActive = p.silent.Active()
		r.SilentWindow = p.silent.Window()
	}
	if p.tariff != nil {
		r.TariffConfigured = true
		r.Tier = p.tariff.Tier()
	} else {
		r.Tier = logic.TierDefault
	}
	return r
}

// Snapshot returns the current report without evaluating anything.
func (p *Pipeline) Snapshot(now time.Time) Report {
	now = now.In(p.loc)
	return p.report(now, logic.ClockPlausible(now), nil)
}

// Reset releases the registry and forgets silent and tariff state.
func (p *Pipeline) Reset() {
	p.registry.Clear()
	if p.silent != nil {
		p.silent.Reset()
	}
	if p.tariff != nil {
		p.tariff.Reset()
	}
	p.pending = nil
}
