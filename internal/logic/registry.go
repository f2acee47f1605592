package logic

import "errors"

// ErrNilSource indicates a registration without a window source.
var ErrNilSource = errors.New("window source is required")

// Handle identifies an entry by its registration order.
type Handle int

// Entry is a registered window with its payload and last known state.
type Entry[V any] struct {
	Source WindowSource
	Value  V
	State  State
}

// Change is a transition produced by Registry.Evaluate.
type Change[V any] struct {
	Handle     Handle
	Value      V
	Window     Window
	Transition Transition
}

// Registry is an append-only, ordered list of schedule entries.
// The zero value is ready to use. Not safe for concurrent use: all
// registration must happen before evaluation starts, and evaluation must be
// done by a single owner.
type Registry[V any] struct {
	entries []Entry[V]
}

// Register appends a window with its payload. The entry starts in
// StateUnknown.
func (r *Registry[V]) Register(src WindowSource, value V) (Handle, error) {
	if src == nil {
		return 0, ErrNilSource
	}
	r.entries = append(r.entries, Entry[V]{Source: src, Value: value})
	return Handle(len(r.entries) - 1), nil
}

// Evaluate runs the edge trigger over every entry in registration order and
// returns the entries whose state changed. State is stored before returning,
// so a change is never reported twice.
func (r *Registry[V]) Evaluate(m Minute) []Change[V] {
	var changes []Change[V]
	for i := range r.entries {
		e := &r.entries[i]
		w := e.Source.Window()
		next, tr := Step(e.State, w.Contains(m))
		if tr == TransitionNone {
			continue
		}
		e.State = next
		changes = append(changes, Change[V]{
			Handle:     Handle(i),
			Value:      e.Value,
			Window:     w,
			Transition: tr,
		})
	}
	return changes
}

// Entries returns a copy of the registered entries.
func (r *Registry[V]) Entries() []Entry[V] {
	out := make([]Entry[V], len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered entries.
func (r *Registry[V]) Len() int {
	return len(r.entries)
}

// Clear releases all entries. Safe to call repeatedly.
func (r *Registry[V]) Clear() {
	r.entries = nil
}
