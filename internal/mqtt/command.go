package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/time-scheduler/internal/logic"
)

var (
	// ErrUnknownCommand indicates a message on an unrecognised command topic.
	ErrUnknownCommand = errors.New("unknown command topic")

	// ErrBadPayload indicates a command payload that cannot be parsed.
	ErrBadPayload = errors.New("invalid command payload")
)

// CommandKind identifies an inbound control message.
type CommandKind int

const (
	// CommandMaintenance toggles maintenance mode: <prefix>/cmd/maintenance, "on"|"off".
	CommandMaintenance CommandKind = iota + 1
	// CommandSilent updates silent mode: <prefix>/cmd/silent,
	// {"enabled":true,"window":"22:00-07:00"} with both fields optional.
	CommandSilent
	// CommandWindow replaces a named window: <prefix>/cmd/window/<name>, "HH:MM-HH:MM".
	CommandWindow
	// CommandTariff replaces one tariff band window:
	// <prefix>/cmd/tariff/<band>/<index>, "HH:MM-HH:MM".
	CommandTariff
)

// Command is a parsed control message.
type Command struct {
	Kind    CommandKind
	On      bool          // CommandMaintenance
	Enabled *bool         // CommandSilent
	Name    string        // CommandWindow
	Band    string        // CommandTariff
	Index   int           // CommandTariff
	Window  *logic.Window // CommandSilent, CommandWindow, CommandTariff
}

// CommandTopic is the wildcard subscription for control messages.
func CommandTopic(prefix string) string {
	return prefix + "/cmd/#"
}

type silentCommand struct {
	Enabled *bool         `json:"enabled"`
	Window  *logic.Window `json:"window"`
}

// ParseCommand decodes a control message received on topic.
func ParseCommand(prefix, topic string, payload []byte) (Command, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/cmd/")
	if !ok {
		return Command{}, fmt.Errorf("%s: %w", topic, ErrUnknownCommand)
	}
	body := strings.TrimSpace(string(payload))

	switch {
	case rest == "maintenance":
		on, err := parseSwitch(body)
		if err != nil {
			return Command{}, fmt.Errorf("maintenance: %w", err)
		}
		return Command{Kind: CommandMaintenance, On: on}, nil

	case rest == "silent":
		var sc silentCommand
		if err := json.Unmarshal([]byte(body), &sc); err != nil {
			return Command{}, fmt.Errorf("silent: %w: %v", ErrBadPayload, err)
		}
		if sc.Enabled == nil && sc.Window == nil {
			return Command{}, fmt.Errorf("silent: %w: nothing to change", ErrBadPayload)
		}
		return Command{Kind: CommandSilent, Enabled: sc.Enabled, Window: sc.Window}, nil

	case strings.HasPrefix(rest, "window/"):
		name := strings.TrimPrefix(rest, "window/")
		if name == "" || strings.Contains(name, "/") {
			return Command{}, fmt.Errorf("%s: %w", topic, ErrUnknownCommand)
		}
		w, err := logic.ParseWindow(body)
		if err != nil {
			return Command{}, fmt.Errorf("window %s: %w: %v", name, ErrBadPayload, err)
		}
		return Command{Kind: CommandWindow, Name: name, Window: &w}, nil

	case strings.HasPrefix(rest, "tariff/"):
		band, idx, ok := strings.Cut(strings.TrimPrefix(rest, "tariff/"), "/")
		i, err := strconv.Atoi(idx)
		if !ok || band == "" || err != nil || i < 0 || strings.Contains(idx, "+") {
			return Command{}, fmt.Errorf("%s: %w", topic, ErrUnknownCommand)
		}
		w, err := logic.ParseWindow(body)
		if err != nil {
			return Command{}, fmt.Errorf("tariff %s/%d: %w: %v", band, i, ErrBadPayload, err)
		}
		return Command{Kind: CommandTariff, Band: band, Index: i, Window: &w}, nil
	}
	return Command{}, fmt.Errorf("%s: %w", topic, ErrUnknownCommand)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrBadPayload, s)
}
