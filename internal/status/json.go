package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/mqtt"
	"github.com/sweeney/time-scheduler/internal/scheduler"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string                  `json:"event,omitempty"`
	Reason         string                  `json:"reason,omitempty"`
	State          string                  `json:"state"`
	Maintenance    bool                    `json:"maintenance"`
	ClockPlausible bool                    `json:"clock_plausible"`
	LastTick       string                  `json:"last_tick,omitempty"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
	StartTime      string                  `json:"start_time"`
	Timestamp      string                  `json:"timestamp"`
	MQTT           MQTTStatus              `json:"mqtt"`
	Windows        []WindowJSON            `json:"windows"`
	Silent         *SilentJSON             `json:"silent,omitempty"`
	Tariff         *TariffJSON             `json:"tariff,omitempty"`
	Counters       CountersJSON            `json:"counters"`
	EventCounts    map[string]int          `json:"event_counts"`
	Recent         []mqtt.SchedulerPayload `json:"recent_events,omitempty"`
	Network        *NetworkJSON            `json:"network,omitempty"`
	Config         ConfigJSON              `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// WindowJSON is one schedule entry.
type WindowJSON struct {
	Name   string `json:"name"`
	Value  uint32 `json:"value"`
	Window string `json:"window"`
	State  string `json:"state"`
}

// SilentJSON is the silent-mode state.
type SilentJSON struct {
	Enabled bool   `json:"enabled"`
	Active  bool   `json:"active"`
	Window  string `json:"window"`
}

// TariffJSON is the selected tariff band.
type TariffJSON struct {
	Tier uint8  `json:"tier"`
	Band string `json:"band"`
}

// CountersJSON holds the pipeline counters.
type CountersJSON struct {
	Ticks         int   `json:"ticks"`
	Published     int   `json:"published"`
	PublishErrors int   `json:"publish_errors"`
	WorkSeconds   int64 `json:"work_seconds"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker         string   `json:"broker"`
	Prefix         string   `json:"prefix"`
	HTTPAddr       string   `json:"http_addr,omitempty"`
	Location       string   `json:"location"`
	FirstDayOfWeek string   `json:"first_day_of_week"`
	Sinks          []string `json:"sinks"`
}

// TaskListJSON is the envelope of the periodic task list publication.
type TaskListJSON struct {
	TaskList TaskListInner `json:"tasklist"`
}

// TaskListInner lists the configured windows and modes.
type TaskListInner struct {
	Timestamp string       `json:"timestamp"`
	State     string       `json:"state"`
	Windows   []WindowJSON `json:"windows"`
	Silent    *SilentJSON  `json:"silent,omitempty"`
	Tariff    *TariffJSON  `json:"tariff,omitempty"`
}

func buildWindows(r scheduler.Report) []WindowJSON {
	out := make([]WindowJSON, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, WindowJSON{
			Name:   e.Item.Name,
			Value:  e.Item.Value,
			Window: e.Window.String(),
			State:  e.State.String(),
		})
	}
	return out
}

func buildModes(r scheduler.Report) (*SilentJSON, *TariffJSON) {
	var silent *SilentJSON
	var tariff *TariffJSON
	if r.SilentConfigured {
		silent = &SilentJSON{Enabled: r.SilentEnabled, Active: r.SilentActive, Window: r.SilentWindow.String()}
	}
	if r.TariffConfigured {
		tariff = &TariffJSON{Tier: uint8(r.Tier), Band: r.Tier.String()}
	}
	return silent, tariff
}

func buildInner(snap Snapshot) StatusInner {
	r := snap.Report
	inner := StatusInner{
		State:          snap.State.String(),
		Maintenance:    snap.Maintenance,
		ClockPlausible: logic.ClockPlausible(snap.Now),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Windows:        buildWindows(r),
		Counters: CountersJSON{
			Ticks:         r.Ticks,
			Published:     r.Published,
			PublishErrors: r.PublishErrors,
			WorkSeconds:   int64(r.WorkTime / time.Second),
		},
		EventCounts: make(map[string]int, len(snap.EventCounts)),
		Config: ConfigJSON{
			Broker:         snap.Config.Broker,
			Prefix:         snap.Config.Prefix,
			HTTPAddr:       snap.Config.HTTPAddr,
			Location:       snap.Config.Location,
			FirstDayOfWeek: snap.Config.FirstDayOfWeek,
			Sinks:          snap.Config.Sinks,
		},
	}
	if snap.HasReport {
		inner.LastTick = r.Time.UTC().Format(time.RFC3339)
	}
	inner.Silent, inner.Tariff = buildModes(r)
	for k, v := range snap.EventCounts {
		inner.EventCounts[string(k)] = v
	}
	for i := len(snap.Recent) - 1; i >= 0; i-- {
		inner.Recent = append(inner.Recent, mqtt.NewSchedulerPayload(snap.Recent[i]))
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatTaskList returns the JSON list of configured windows and modes.
func FormatTaskList(snap Snapshot) []byte {
	inner := TaskListInner{
		Timestamp: snap.Now.UTC().Format(time.RFC3339),
		State:     snap.State.String(),
		Windows:   buildWindows(snap.Report),
	}
	inner.Silent, inner.Tariff = buildModes(snap.Report)
	data, _ := json.Marshal(TaskListJSON{TaskList: inner})
	return data
}
