package logic

// Step converts a fresh membership result into a new state and the
// transition it implies. StateUnknown never equals a concrete state, so the
// first step after construction always reports a transition.
func Step(prev State, member bool) (State, Transition) {
	next := StateInactive
	if member {
		next = StateActive
	}
	if next == prev {
		return prev, TransitionNone
	}
	if next == StateActive {
		return next, BecameActive
	}
	return next, BecameInactive
}
