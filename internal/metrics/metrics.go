// Package metrics exports scheduler reports as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/scheduler"
)

const namespace = "timesched"

// Metrics is a scheduler.Observer backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	events        *prometheus.CounterVec
	publishErrors prometheus.Gauge
	workSeconds   prometheus.Gauge
	tier          prometheus.Gauge
	silentActive  prometheus.Gauge
	clockValid    prometheus.Gauge
	windowActive  *prometheus.GaugeVec
	runState      prometheus.Gauge

	lastTicks int
}

// New creates and registers the scheduler metrics. When withRuntime is set
// the Go runtime and process collectors are registered as well.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Minute ticks evaluated.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Notifications emitted, by event type.",
		}, []string{"event"}),
		publishErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_errors",
			Help:      "Notifications the sink failed to deliver since start.",
		}),
		workSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "work_time_seconds",
			Help:      "Accumulated running time counted in ticks.",
		}),
		tier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tariff_tier",
			Help:      "Selected tariff tier (1 default, 2 self, 3 night).",
		}),
		silentActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "silent_active",
			Help:      "1 while silent mode is in effect.",
		}),
		clockValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_plausible",
			Help:      "1 when the last tick saw a plausible wall clock.",
		}),
		windowActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_active",
			Help:      "1 while the named schedule window is active.",
		}, []string{"window"}),
		runState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "Driver state (0 stopped, 1 running, 2 suspended).",
		}),
	}
	m.registry.MustRegister(
		m.ticks, m.events, m.publishErrors, m.workSeconds, m.tier,
		m.silentActive, m.clockValid, m.windowActive, m.runState,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Observe updates the metrics from a driver report.
func (m *Metrics) Observe(r scheduler.Report) {
	delta := r.Ticks - m.lastTicks
	if delta < 0 {
		// pipeline counters were reset
		delta = r.Ticks
	}
	m.ticks.Add(float64(delta))
	m.lastTicks = r.Ticks

	for _, ev := range r.Events {
		m.events.WithLabelValues(string(ev.Type)).Inc()
	}
	m.publishErrors.Set(float64(r.PublishErrors))
	m.workSeconds.Set(r.WorkTime.Seconds())
	m.tier.Set(float64(r.Tier))
	m.silentActive.Set(boolGauge(r.SilentActive))
	m.clockValid.Set(boolGauge(r.Plausible))
	for _, e := range r.Entries {
		m.windowActive.WithLabelValues(e.Item.Name).Set(boolGauge(e.State == logic.StateActive))
	}
}

// SetRunState records the driver lifecycle state.
func (m *Metrics) SetRunState(s scheduler.RunState) {
	m.runState.Set(float64(s))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
