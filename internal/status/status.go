// Package status provides a thread-safe status tracker for the scheduler
// daemon. It is fed by the driver after every evaluation and read by the
// HTTP handlers and the periodic system publications.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/scheduler"
)

// RecentLimit is how many published events a Tracker remembers.
const RecentLimit = 32

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker         string
	Prefix         string
	HTTPAddr       string
	Location       string
	FirstDayOfWeek string
	Sinks          []string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	State         scheduler.RunState
	Maintenance   bool
	HasReport     bool
	Report        scheduler.Report
	EventCounts   map[logic.EventType]int
	Recent        []logic.Event
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// It implements scheduler.Observer.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	counts map[logic.EventType]int
	recent []logic.Event
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		counts: make(map[logic.EventType]int),
		now:    time.Now,
	}
}

// Observe records a driver report.
func (t *Tracker) Observe(r scheduler.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Report = r
	t.snap.HasReport = true
	for _, ev := range r.Events {
		t.counts[ev.Type]++
		t.recent = append(t.recent, ev)
	}
	if n := len(t.recent); n > RecentLimit {
		t.recent = append(t.recent[:0:0], t.recent[n-RecentLimit:]...)
	}
}

// SetState records the driver lifecycle state.
func (t *Tracker) SetState(s scheduler.RunState) {
	t.mu.Lock()
	t.snap.State = s
	t.mu.Unlock()
}

// SetMaintenance records whether maintenance mode is on.
func (t *Tracker) SetMaintenance(on bool) {
	t.mu.Lock()
	t.snap.Maintenance = on
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.EventCounts = make(map[logic.EventType]int, len(t.counts))
	for k, v := range t.counts {
		s.EventCounts[k] = v
	}
	s.Recent = append([]logic.Event(nil), t.recent...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
