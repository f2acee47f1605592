package logic

// SilentMode is a single edge-triggered quiet period with an optional
// master switch.
type SilentMode struct {
	source  WindowSource
	enabled func() bool
	state   State
}

// NewSilentMode creates a silent mode over src. A nil enabled func means
// always enabled.
func NewSilentMode(src WindowSource, enabled func() bool) *SilentMode {
	return &SilentMode{source: src, enabled: enabled}
}

// Enabled reports the master switch. An empty window counts as switched
// off.
func (s *SilentMode) Enabled() bool {
	if s.source == nil || s.source.Window().Empty() {
		return false
	}
	return s.enabled == nil || s.enabled()
}

// Evaluate checks the window at m. When disabled the check is skipped and
// the stored state is kept.
func (s *SilentMode) Evaluate(m Minute) Transition {
	if !s.Enabled() {
		return TransitionNone
	}
	next, tr := Step(s.state, s.source.Window().Contains(m))
	s.state = next
	return tr
}

// Active reports whether silent mode is currently in force.
func (s *SilentMode) Active() bool {
	return s.Enabled() && s.state == StateActive
}

// State returns the last evaluated state, ignoring the master switch.
func (s *SilentMode) State() State {
	return s.state
}

// Window returns the current silent window.
func (s *SilentMode) Window() Window {
	if s.source == nil {
		return Window{}
	}
	return s.source.Window()
}

// Reset forgets the last state.
func (s *SilentMode) Reset() {
	s.state = StateUnknown
}
