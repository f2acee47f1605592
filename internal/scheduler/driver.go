package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/logic"
)

var (
	// ErrInit indicates Start failed and was rolled back.
	ErrInit = errors.New("scheduler initialization failed")

	// ErrAlreadyStarted indicates Start was called while not stopped.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrRegisterRunning indicates Register was called after Start.
	ErrRegisterRunning = errors.New("cannot register entries while scheduler is running")
)

// FirstTickDelay is how long after Start the first tick runs.
const FirstTickDelay = time.Second

// RunState is the lifecycle state of a Driver.
type RunState int

const (
	Stopped RunState = iota
	Running
	Suspended
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Suspended:
		return "SUSPENDED"
	default:
		return "STOPPED"
	}
}

// ReevaluateKind selects what an out-of-band evaluation covers.
type ReevaluateKind int

const (
	ReevaluateAll ReevaluateKind = iota
	ReevaluateSilent
)

type cmdKind int

const (
	cmdSuspend cmdKind = iota
	cmdResume
	cmdReevaluate
	cmdStop
)

type command struct {
	kind       cmdKind
	reevaluate ReevaluateKind
	ack        chan struct{}
}

// Driver runs the pipeline once per minute, aligned to the minute boundary.
// All pipeline access happens on the driver goroutine; control calls are
// queued to it and applied between ticks.
type Driver struct {
	pipe   *Pipeline
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	state  RunState
	jobs   []Job
	ctx    context.Context
	cancel context.CancelFunc
	ctl    chan command
	done   chan struct{}
	runner *jobRunner

	// obsMu guards observers. The loop never takes mu.
	obsMu     sync.Mutex
	observers []Observer
}

// NewDriver creates a stopped driver for pipe.
func NewDriver(pipe *Pipeline, clock Clock, logger zerolog.Logger) *Driver {
	return &Driver{pipe: pipe, clock: clock, logger: logger}
}

// AddJob adds a periodic job started with the driver.
func (d *Driver) AddJob(job Job) {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
}

// AddObserver adds an observer notified after every evaluation.
func (d *Driver) AddObserver(o Observer) {
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
}

// Register adds a schedule entry. Only allowed while stopped.
func (d *Driver) Register(src logic.WindowSource, item logic.Item) (logic.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Stopped {
		return 0, ErrRegisterRunning
	}
	return d.pipe.Register(src, item)
}

// State returns the current lifecycle state.
func (d *Driver) State() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start moves the driver from Stopped to Running. The first tick runs
// FirstTickDelay later. On failure everything is rolled back and the
// returned error wraps ErrInit.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Stopped {
		return ErrAlreadyStarted
	}
	entries := 0
	if d.pipe != nil {
		entries = d.pipe.registry.Len()
	}
	if err := d.init(ctx); err != nil {
		if d.pipe != nil {
			d.pipe.Reset()
		}
		d.logger.Error().Err(err).Msg("scheduler start failed")
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	d.state = Running
	d.logger.Info().Int("entries", entries).Msg("scheduler started")
	return nil
}

func (d *Driver) init(ctx context.Context) error {
	if d.pipe == nil {
		return errors.New("no pipeline")
	}
	if d.clock == nil {
		return errors.New("no clock")
	}
	if err := validateJobs(d.jobs); err != nil {
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.runner = startJobs(d.ctx, d.clock, d.jobs, d.logger)
	d.ctl = make(chan command)
	d.done = make(chan struct{})
	go d.loop(d.ctx, d.ctl, d.done)
	return nil
}

// Suspend stops the tick timer and periodic jobs, keeping all state.
// Reports whether the driver was running. If the start context has ended
// the driver is stopped instead and Suspend reports false.
func (d *Driver) Suspend() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Running {
		return false
	}
	if !d.send(command{kind: cmdSuspend}) {
		d.loopGone()
		return false
	}
	d.runner.halt()
	d.runner = nil
	d.state = Suspended
	d.logger.Info().Msg("scheduler suspended")
	return true
}

// Resume re-arms a suspended driver. Reports whether it was suspended and
// its start context is still live; otherwise the driver is stopped.
func (d *Driver) Resume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Suspended {
		return false
	}
	if d.ctx.Err() != nil {
		<-d.done
		d.loopGone()
		return false
	}
	d.runner = startJobs(d.ctx, d.clock, d.jobs, d.logger)
	if !d.send(command{kind: cmdResume}) {
		d.loopGone()
		return false
	}
	d.state = Running
	d.logger.Info().Msg("scheduler resumed")
	return true
}

// Stop halts the driver, waits for an in-flight tick, clears the registry
// and forgets silent and tariff state. Reports whether it was started.
func (d *Driver) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Stopped {
		return false
	}
	d.send(command{kind: cmdStop})
	<-d.done
	d.teardown()
	d.logger.Info().Msg("scheduler stopped")
	return true
}

// teardown releases jobs and pipeline state once the loop has exited.
// Must be called with mu held.
func (d *Driver) teardown() {
	d.cancel()
	if d.runner != nil {
		d.runner.halt()
		d.runner = nil
	}
	d.pipe.Reset()
	d.state = Stopped
}

// loopGone handles a control call that found the loop already exited
// because the parent context ended. Must be called with mu held.
func (d *Driver) loopGone() {
	d.teardown()
	d.logger.Warn().Msg("scheduler context ended, driver stopped")
}

// ClockReady handles an upstream clock-valid or time-synced signal: it
// starts a stopped driver and resumes a suspended one.
func (d *Driver) ClockReady(ctx context.Context) error {
	switch d.State() {
	case Stopped:
		return d.Start(ctx)
	case Suspended:
		d.Resume()
	}
	return nil
}

// SetMaintenance suspends the driver while on and resumes it when off.
// Reports whether the state changed.
func (d *Driver) SetMaintenance(on bool) bool {
	if on {
		return d.Suspend()
	}
	return d.Resume()
}

// Reevaluate queues an out-of-band evaluation on the driver goroutine and
// waits for it. Reports false when the driver is not running.
func (d *Driver) Reevaluate(kind ReevaluateKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Running {
		return false
	}
	if !d.send(command{kind: cmdReevaluate, reevaluate: kind}) {
		d.loopGone()
		return false
	}
	return true
}

// send delivers cmd to the loop and waits for it to be applied. Must be
// called with mu held and the loop started.
func (d *Driver) send(cmd command) bool {
	cmd.ack = make(chan struct{})
	select {
	case d.ctl <- cmd:
	case <-d.done:
		return false
	}
	select {
	case <-cmd.ack:
		return true
	case <-d.done:
		return cmd.kind == cmdStop
	}
}

func (d *Driver) loop(ctx context.Context, ctl <-chan command, done chan<- struct{}) {
	defer close(done)

	timer := d.clock.NewTimer(FirstTickDelay)
	var last time.Time

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C()
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return

		case cmd := <-ctl:
			switch cmd.kind {
			case cmdStop:
				stopTimer(timer)
				close(cmd.ack)
				return
			case cmdSuspend:
				stopTimer(timer)
				timer = nil
			case cmdResume:
				if timer == nil {
					timer = d.clock.NewTimer(logic.NextTickDelay(d.clock.Now()))
				}
			case cmdReevaluate:
				silentOnly := cmd.reevaluate == ReevaluateSilent
				d.notify(d.pipe.Reevaluate(d.clock.Now(), silentOnly))
			}
			close(cmd.ack)

		case <-fire:
			now := d.clock.Now()
			minute := now.Truncate(time.Minute)
			if minute.Equal(last) {
				d.logger.Debug().Time("now", now).Msg("early wake-up, minute already processed")
			} else {
				last = minute
				d.notify(d.pipe.Tick(now))
			}
			delay := logic.NextTickDelay(d.clock.Now())
			timer = d.clock.NewTimer(delay)
			d.logger.Debug().Dur("delay", delay).Msg("tick timer re-armed")
		}
	}
}

func (d *Driver) notify(r Report) {
	d.obsMu.Lock()
	observers := d.observers
	d.obsMu.Unlock()
	for _, o := range observers {
		o.Observe(r)
	}
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
