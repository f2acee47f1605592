package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("info", "json", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	logger.Debug().Msg("hidden")
	driverLogger := Component(logger, "driver")
	driverLogger.Info().Int("entries", 2).Msg("scheduler started")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["component"] != "driver" || rec["message"] != "scheduler started" || rec["level"] != "info" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestSetupConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("debug", "console", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}
	logger.Debug().Str("window", "pump").Msg("schedule window changed")
	out := buf.String()
	if !strings.Contains(out, "schedule window changed") || !strings.Contains(out, "window=pump") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestSetupRejectsBadInput(t *testing.T) {
	if _, err := Setup("loud", "json", nil); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := Setup("info", "xml", nil); err == nil {
		t.Error("expected error for bad format")
	}
}
