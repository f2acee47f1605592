package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/time-scheduler/internal/logic"
)

var (
	// ErrUnknownWindow indicates an update for a window that was never configured.
	ErrUnknownWindow = errors.New("unknown window")

	// ErrSilentNotConfigured indicates a silent-mode update when no silent
	// window was configured at startup.
	ErrSilentNotConfigured = errors.New("silent mode not configured")

	// ErrUnknownBand indicates a tariff update for a band other than night
	// or self.
	ErrUnknownBand = errors.New("unknown tariff band")
)

// Tariff band names accepted by SetTariff.
const (
	BandNight = "night"
	BandSelf  = "self"
)

// WindowParam is a window that can be replaced at runtime. It implements
// logic.WindowSource and is safe for concurrent use.
type WindowParam struct {
	mu sync.RWMutex
	w  logic.Window
}

// NewWindowParam creates a parameter holding w.
func NewWindowParam(w logic.Window) *WindowParam {
	return &WindowParam{w: w}
}

// Window returns the current value.
func (p *WindowParam) Window() logic.Window {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.w
}

// Set replaces the value.
func (p *WindowParam) Set(w logic.Window) {
	p.mu.Lock()
	p.w = w
	p.mu.Unlock()
}

// ChangeKind says which parameter changed.
type ChangeKind int

const (
	ChangeWindow ChangeKind = iota + 1
	ChangeSilent
	ChangeTariff
)

// Change describes a parameter update.
type Change struct {
	Kind ChangeKind
	Name string // window name, or "<band>/<index>" for ChangeTariff
}

// Entry is a named window with its payload value.
type Entry struct {
	Name  string
	Value uint32
	Param *WindowParam
}

// Params holds the runtime-mutable schedule parameters and notifies
// listeners after every change.
type Params struct {
	mu            sync.RWMutex
	entries       []Entry
	byName        map[string]*WindowParam
	silent        *WindowParam
	silentEnabled bool
	night         []*WindowParam
	self          []*WindowParam
	listeners     []func(Change)
}

// NewParams builds the parameters from cfg.
func NewParams(cfg *Config) *Params {
	p := &Params{byName: make(map[string]*WindowParam)}
	for _, w := range cfg.Windows {
		param := NewWindowParam(w.Window)
		p.entries = append(p.entries, Entry{Name: w.Name, Value: w.Value, Param: param})
		p.byName[w.Name] = param
	}
	if cfg.Silent.Window != nil {
		p.silent = NewWindowParam(*cfg.Silent.Window)
		p.silentEnabled = cfg.Silent.Enabled
	}
	for _, w := range cfg.Tariff.Night {
		p.night = append(p.night, NewWindowParam(w))
	}
	for _, w := range cfg.Tariff.Self {
		p.self = append(p.self, NewWindowParam(w))
	}
	return p
}

// Entries returns the configured windows in configuration order.
func (p *Params) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// SetWindow replaces the named window.
func (p *Params) SetWindow(name string, w logic.Window) error {
	p.mu.RLock()
	param, ok := p.byName[name]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownWindow)
	}
	param.Set(w)
	p.notify(Change{Kind: ChangeWindow, Name: name})
	return nil
}

// SilentSource returns the silent window source, or nil when silent mode is
// not configured.
func (p *Params) SilentSource() logic.WindowSource {
	if p.silent == nil {
		return nil
	}
	return p.silent
}

// SilentEnabled reports the silent-mode master switch.
func (p *Params) SilentEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.silentEnabled
}

// SetSilent updates the silent-mode switch and/or window. Nil arguments are
// left unchanged.
func (p *Params) SetSilent(enabled *bool, w *logic.Window) error {
	if p.silent == nil {
		return ErrSilentNotConfigured
	}
	if enabled == nil && w == nil {
		return nil
	}
	if enabled != nil {
		p.mu.Lock()
		p.silentEnabled = *enabled
		p.mu.Unlock()
	}
	if w != nil {
		p.silent.Set(*w)
	}
	p.notify(Change{Kind: ChangeSilent})
	return nil
}

// TariffSources returns the night and self-consumption band sources in
// configuration order.
func (p *Params) TariffSources() (night, self []logic.WindowSource) {
	return windowSources(p.night), windowSources(p.self)
}

func windowSources(params []*WindowParam) []logic.WindowSource {
	out := make([]logic.WindowSource, len(params))
	for i, param := range params {
		out[i] = param
	}
	return out
}

// SetTariff replaces window idx of the named band.
func (p *Params) SetTariff(band string, idx int, w logic.Window) error {
	var params []*WindowParam
	switch band {
	case BandNight:
		params = p.night
	case BandSelf:
		params = p.self
	default:
		return fmt.Errorf("%q: %w", band, ErrUnknownBand)
	}
	if idx < 0 || idx >= len(params) {
		return fmt.Errorf("%s[%d]: %w", band, idx, ErrUnknownWindow)
	}
	params[idx].Set(w)
	p.notify(Change{Kind: ChangeTariff, Name: fmt.Sprintf("%s/%d", band, idx)})
	return nil
}

// OnChange registers fn to be called after every successful update. fn runs
// on the caller's goroutine.
func (p *Params) OnChange(fn func(Change)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Params) notify(c Change) {
	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}
