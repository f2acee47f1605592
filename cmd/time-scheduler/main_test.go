package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/config"
	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/mqtt"
	"github.com/sweeney/time-scheduler/internal/scheduler"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.100" || info.Status != "connected" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Gateway != "192.168.1.1" || info.WifiStatus != "connected" || info.SSID != "MyNetwork" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" {
		t.Errorf("Type: got %q, want empty", info.Type)
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

// One second before 23:00 so the first tick lands on the hour.
var startTime = time.Date(2026, 3, 4, 22, 59, 59, 0, time.UTC)

func mustWindow(t *testing.T, s string) logic.Window {
	t.Helper()
	w, err := logic.ParseWindow(s)
	if err != nil {
		t.Fatalf("ParseWindow(%q): %v", s, err)
	}
	return w
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	silent := mustWindow(t, "22:00-07:00")
	cfg := config.Default()
	cfg.Location = "UTC"
	cfg.HTTP.Addr = ""
	cfg.Jobs = config.JobsConfig{}
	cfg.Windows = []config.WindowConfig{
		{Name: "pump", Window: mustWindow(t, "06:00-07:00"), Value: 1},
		{Name: "lights", Window: mustWindow(t, "22:30-23:30"), Value: 2},
	}
	cfg.Silent = config.SilentConfig{Enabled: true, Window: &silent}
	cfg.Tariff = config.TariffConfig{
		Night: []logic.Window{mustWindow(t, "23:00-06:00")},
		Self:  []logic.Window{mustWindow(t, "10:00-14:00")},
	}
	return cfg
}

type harness struct {
	t     *testing.T
	clock *scheduler.FakeClock
	pub   *mqtt.FakePublisher
	d     *daemon
	sig   chan os.Signal
	cmds  chan mqtt.Command
	done  chan error
}

func newHarness(t *testing.T, cfg *config.Config, start time.Time) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: scheduler.NewFakeClock(start),
		pub:   mqtt.NewFakePublisher(),
		sig:   make(chan os.Signal, 1),
		cmds:  make(chan mqtt.Command, 4),
		done:  make(chan error, 1),
	}
	h.pub.Connected = true
	d, err := newDaemon(cfg, h.pub, nil, h.clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	h.d = d
	t.Cleanup(func() { d.Close() })
	return h
}

func (h *harness) run() {
	go func() { h.done <- h.d.run(context.Background(), h.sig, h.cmds) }()
}

// waitFor polls cond until it holds or a deadline passes.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// firstTick starts the daemon and drives it through its first tick.
// timers is the number of armed timers expected once running (tick + jobs).
func (h *harness) firstTick(timers int) {
	h.t.Helper()
	h.run()
	h.waitFor("driver running", func() bool { return h.d.driver.State() == scheduler.Running })
	h.waitFor("timers armed", func() bool { return h.clock.Pending() >= timers })
	h.clock.Advance(scheduler.FirstTickDelay)
	h.waitFor("first report", func() bool { return h.d.tracker.Snapshot().HasReport })
}

func (h *harness) stop(sig os.Signal) {
	h.t.Helper()
	h.sig <- sig
	select {
	case err := <-h.done:
		if err != nil {
			h.t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		h.t.Fatal("daemon did not shut down")
	}
}

func (h *harness) hasEvent(typ logic.EventType, name string) bool {
	for _, e := range h.pub.Recorded() {
		if e.Type == typ && e.Item.Name == name {
			return true
		}
	}
	return false
}

func TestDaemonLifecycle(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	h.firstTick(1)

	snap := h.d.tracker.Snapshot()
	if snap.State != scheduler.Running {
		t.Errorf("tracker state: got %v, want RUNNING", snap.State)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected after tick")
	}

	for _, want := range []struct {
		typ  logic.EventType
		name string
	}{
		{logic.EventMinute, ""},
		{logic.EventHourStart, ""},
		{logic.EventWindowOff, "pump"},
		{logic.EventWindowOn, "lights"},
		{logic.EventSilentOn, ""},
		{logic.EventTariff, ""},
	} {
		if !h.hasEvent(want.typ, want.name) {
			t.Errorf("missing %s %q in %v", want.typ, want.name, h.pub.EventTypes())
		}
	}

	if times := h.pub.PublishedTimes(); len(times) != 1 || times[0].Hour() != 23 || times[0].Minute() != 0 {
		t.Errorf("expected one retained time at 23:00, got %v", times)
	}

	h.stop(syscall.SIGTERM)

	names := h.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [STARTUP SHUTDOWN]", names)
	}
	if got := h.pub.SystemEvents[1].Reason; got != "SIGTERM" {
		t.Errorf("shutdown reason: got %q, want SIGTERM", got)
	}
	if !h.pub.SystemEvents[0].Retained || !h.pub.SystemEvents[1].Retained {
		t.Error("lifecycle events must be retained")
	}
	if h.d.driver.State() != scheduler.Stopped {
		t.Errorf("driver state after shutdown: %v", h.d.driver.State())
	}
}

func TestDaemonContextCancelled(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.d.run(ctx, h.sig, h.cmds) }()
	h.waitFor("driver running", func() bool { return h.d.driver.State() == scheduler.Running })

	cancel()
	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not shut down")
	}
	if got := h.pub.SystemEvents[len(h.pub.SystemEvents)-1].Reason; got != "CONTEXT_DONE" {
		t.Errorf("shutdown reason: got %q, want CONTEXT_DONE", got)
	}
}

func TestDaemonMaintenanceCommand(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	h.firstTick(1)

	h.cmds <- mqtt.Command{Kind: mqtt.CommandMaintenance, On: true}
	h.waitFor("suspended", func() bool { return h.d.driver.State() == scheduler.Suspended })
	h.waitFor("tracker maintenance", func() bool { return h.d.tracker.Snapshot().Maintenance })
	if h.clock.Pending() != 0 {
		t.Errorf("expected no armed timers while suspended, got %d", h.clock.Pending())
	}

	h.cmds <- mqtt.Command{Kind: mqtt.CommandMaintenance, On: false}
	h.waitFor("resumed", func() bool { return h.d.driver.State() == scheduler.Running })
	h.waitFor("tick re-armed", func() bool { return h.clock.Pending() == 1 })

	h.stop(syscall.SIGINT)
}

func TestDaemonWindowCommandReevaluates(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	h.firstTick(1)

	w := mustWindow(t, "05:00-05:30")
	h.cmds <- mqtt.Command{Kind: mqtt.CommandWindow, Name: "lights", Window: &w}
	h.waitFor("lights off", func() bool { return h.hasEvent(logic.EventWindowOff, "lights") })

	h.cmds <- mqtt.Command{Kind: mqtt.CommandWindow, Name: "nope", Window: &w}
	h.cmds <- mqtt.Command{Kind: mqtt.CommandWindow, Name: "pump"}

	h.stop(syscall.SIGTERM)
}

func TestDaemonTariffCommandReevaluates(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	h.firstTick(1)

	hasTier := func(tier logic.Tier) bool {
		for _, e := range h.pub.Recorded() {
			if e.Type == logic.EventTariff && e.Tier == tier {
				return true
			}
		}
		return false
	}
	if !hasTier(logic.TierNight) {
		t.Fatalf("expected TARIFF NIGHT at 23:00, got %v", h.pub.EventTypes())
	}

	w := mustWindow(t, "00:00-01:00")
	h.cmds <- mqtt.Command{Kind: mqtt.CommandTariff, Band: config.BandNight, Index: 0, Window: &w}
	h.waitFor("tariff default", func() bool { return hasTier(logic.TierDefault) })

	if err := h.d.SetTariff(config.BandSelf, 5, w); !errors.Is(err, config.ErrUnknownWindow) {
		t.Errorf("out of range band index: got %v, want ErrUnknownWindow", err)
	}
	h.stop(syscall.SIGTERM)
}

func TestDaemonSilentCommand(t *testing.T) {
	h := newHarness(t, testConfig(t), startTime)
	h.firstTick(1)

	w := mustWindow(t, "00:00-01:00")
	h.cmds <- mqtt.Command{Kind: mqtt.CommandSilent, Window: &w}
	h.waitFor("silent off", func() bool { return h.hasEvent(logic.EventSilentOff, "") })

	// Toggling the switch while outside the window publishes nothing new.
	off, on := false, true
	if err := h.d.SetSilent(&off, nil); err != nil {
		t.Fatal(err)
	}
	if err := h.d.SetSilent(&on, nil); err != nil {
		t.Fatal(err)
	}
	silent := 0
	for _, e := range h.pub.Recorded() {
		if e.Type == logic.EventSilentOn || e.Type == logic.EventSilentOff {
			silent++
		}
	}
	if silent != 2 {
		t.Errorf("expected SILENT_ON then SILENT_OFF only, got %v", h.pub.EventTypes())
	}

	if err := h.d.SetSilent(nil, nil); err != nil {
		t.Errorf("no-op silent update: %v", err)
	}
	h.stop(syscall.SIGTERM)
}

func TestDaemonMaintenanceBeforeClockReady(t *testing.T) {
	old := clockCheckInterval
	clockCheckInterval = 5 * time.Millisecond
	t.Cleanup(func() { clockCheckInterval = old })

	h := newHarness(t, testConfig(t), time.Unix(0, 0))
	h.run()

	if err := h.d.SetMaintenance(true); err != nil {
		t.Fatalf("SetMaintenance: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if h.d.driver.State() != scheduler.Stopped {
		t.Fatalf("driver must stay stopped on an implausible clock, got %v", h.d.driver.State())
	}

	h.clock.Set(startTime)
	h.waitFor("suspended", func() bool { return h.d.driver.State() == scheduler.Suspended })
	if h.pub.EventCount() != 0 {
		t.Errorf("no events expected in maintenance, got %v", h.pub.EventTypes())
	}
	if times := h.pub.PublishedTimes(); len(times) != 0 {
		t.Errorf("no time publication expected without a tick, got %v", times)
	}

	h.stop(syscall.SIGTERM)
}

func TestDaemonPeriodicJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs = config.JobsConfig{Sysinfo: time.Minute, Tasklist: time.Minute}
	h := newHarness(t, cfg, startTime)
	h.firstTick(3)

	h.clock.Advance(time.Minute)
	h.waitFor("job events", func() bool {
		names := strings.Join(h.pub.SystemEventNames(), ",")
		return strings.Contains(names, "SYSINFO") && strings.Contains(names, "TASKLIST")
	})

	h.stop(syscall.SIGTERM)

	for _, e := range h.pub.SystemEvents {
		if e.Event == "SYSINFO" && e.Retained {
			t.Error("SYSINFO must not be retained")
		}
		if e.Event == "TASKLIST" && !bytes.Contains(e.RawPayload, []byte("pump")) {
			t.Errorf("task list missing pump: %s", e.RawPayload)
		}
	}
}

func TestCheckOutput(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 4, 6, 30, 0, 0, time.UTC)
	if err := check(&buf, testConfig(t), at, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2026-03-04 06:30 UTC", "pump:", "06:00-07:00", "value=1", "lights:", "OFF", "Silent:", "ON", "Tariff:", "DEFAULT", "tier=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckMarksEmptyWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Windows = append(cfg.Windows, config.WindowConfig{Name: "idle", Window: mustWindow(t, "08:00-08:00")})
	var buf bytes.Buffer
	if err := check(&buf, cfg, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(buf.String(), "(empty, never active)") {
		t.Errorf("empty window not marked:\n%s", buf.String())
	}
}

func TestCheckImplausibleClock(t *testing.T) {
	var buf bytes.Buffer
	err := check(&buf, testConfig(t), time.Unix(0, 0), zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "not plausible") {
		t.Errorf("expected implausible clock error, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
location: UTC
windows:
  - name: pump
    window: "06:00-07:00"
silent:
  window: "22:00-07:00"
tariff:
  night: ["23:00-06:00"]
`)
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"validate", "-c", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "configuration OK: 1 windows, silent=true, tariff bands=1") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, "windows:\n  - name: a/b\n    window: \"06:00-07:00\"\n")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"validate", "--config", path})
	if err := root.Execute(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCheckCommandAt(t *testing.T) {
	path := writeConfig(t, "location: UTC\nwindows:\n  - name: pump\n    window: \"23:00-01:00\"\n    value: 7\n")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "-c", path, "--at", "2026-03-04T00:15:00Z"})
	if err := root.Execute(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "pump:") || !strings.Contains(got, "ON") {
		t.Errorf("expected wrapped window active after midnight:\n%s", got)
	}

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "-c", path, "--at", "yesterday"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for malformed --at")
	}
}
