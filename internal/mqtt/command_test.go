package mqtt

import (
	"errors"
	"testing"

	"github.com/sweeney/time-scheduler/internal/logic"
)

func TestParseCommandMaintenance(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"on", true},
		{"ON", true},
		{"true", true},
		{" 1\n", true},
		{"off", false},
		{"false", false},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			cmd, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/maintenance", []byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Kind != CommandMaintenance || cmd.On != tt.want {
				t.Errorf("got %+v, want maintenance on=%v", cmd, tt.want)
			}
		})
	}
}

func TestParseCommandMaintenanceBadPayload(t *testing.T) {
	_, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/maintenance", []byte("maybe"))
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}

func TestParseCommandSilent(t *testing.T) {
	cmd, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/silent",
		[]byte(`{"enabled":false,"window":"22:30-06:15"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != CommandSilent {
		t.Fatalf("unexpected kind: %v", cmd.Kind)
	}
	if cmd.Enabled == nil || *cmd.Enabled {
		t.Errorf("expected enabled=false, got %v", cmd.Enabled)
	}
	want := logic.Window{Start: 22*60 + 30, End: 6*60 + 15}
	if cmd.Window == nil || *cmd.Window != want {
		t.Errorf("expected window %v, got %v", want, cmd.Window)
	}
}

func TestParseCommandSilentPartial(t *testing.T) {
	cmd, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/silent", []byte(`{"enabled":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Enabled == nil || !*cmd.Enabled || cmd.Window != nil {
		t.Errorf("expected only enabled set, got %+v", cmd)
	}
}

func TestParseCommandSilentErrors(t *testing.T) {
	for _, payload := range []string{`{}`, `not json`, `{"window":"25:00-01:00"}`} {
		t.Run(payload, func(t *testing.T) {
			_, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/silent", []byte(payload))
			if !errors.Is(err, ErrBadPayload) {
				t.Errorf("expected ErrBadPayload, got %v", err)
			}
		})
	}
}

func TestParseCommandWindow(t *testing.T) {
	cmd, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/window/pump", []byte("23:00-06:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != CommandWindow || cmd.Name != "pump" {
		t.Errorf("unexpected command: %+v", cmd)
	}
	if cmd.Window == nil || !cmd.Window.Wraps() {
		t.Errorf("expected wrapping window, got %v", cmd.Window)
	}
}

func TestParseCommandWindowBadPayload(t *testing.T) {
	_, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/window/pump", []byte("tomorrow"))
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}

func TestParseCommandTariff(t *testing.T) {
	cmd, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/tariff/self/1", []byte("11:00-15:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != CommandTariff || cmd.Band != "self" || cmd.Index != 1 {
		t.Errorf("unexpected command: %+v", cmd)
	}
	want := logic.Window{Start: 11 * 60, End: 15 * 60}
	if cmd.Window == nil || *cmd.Window != want {
		t.Errorf("expected window %v, got %v", want, cmd.Window)
	}
}

func TestParseCommandTariffBadPayload(t *testing.T) {
	_, err := ParseCommand(DefaultPrefix, "home/scheduler/cmd/tariff/night/0", []byte("23:00-06:00-07:00"))
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}

func TestParseCommandUnknownTopics(t *testing.T) {
	topics := []string{
		"other/prefix/cmd/maintenance",
		"home/scheduler/cmd/reboot",
		"home/scheduler/cmd/window/",
		"home/scheduler/cmd/window/a/b",
		"home/scheduler/cmd/tariff/night",
		"home/scheduler/cmd/tariff/night/x",
		"home/scheduler/cmd/tariff/night/-1",
		"home/scheduler/cmd/tariff/night/0/1",
		"home/scheduler/cmd/tariff//0",
		"home/scheduler/system",
	}
	for _, topic := range topics {
		t.Run(topic, func(t *testing.T) {
			_, err := ParseCommand(DefaultPrefix, topic, []byte("on"))
			if !errors.Is(err, ErrUnknownCommand) {
				t.Errorf("expected ErrUnknownCommand, got %v", err)
			}
		})
	}
}

func TestCommandTopic(t *testing.T) {
	if got := CommandTopic("site"); got != "site/cmd/#" {
		t.Errorf("unexpected command topic: %s", got)
	}
}
