package logic

// SelectTier resolves the tariff tier at m. Night beats self, self beats
// default.
func SelectTier(night, self []WindowSource, m Minute) Tier {
	switch {
	case AnyContains(night, m):
		return TierNight
	case AnyContains(self, m):
		return TierSelf
	default:
		return TierDefault
	}
}

// TariffSelector tracks the current tier and reports changes.
type TariffSelector struct {
	night []WindowSource
	self  []WindowSource
	tier  Tier
}

// NewTariffSelector creates a selector starting at TierDefault.
func NewTariffSelector(night, self []WindowSource) *TariffSelector {
	return &TariffSelector{night: night, self: self, tier: TierDefault}
}

// Evaluate selects the tier at m and reports whether it changed.
func (t *TariffSelector) Evaluate(m Minute) (Tier, bool) {
	next := SelectTier(t.night, t.self, m)
	if next == t.Tier() {
		return next, false
	}
	t.tier = next
	return next, true
}

// Tier returns the current tier.
func (t *TariffSelector) Tier() Tier {
	if t.tier == 0 {
		return TierDefault
	}
	return t.tier
}

// Bands returns the number of night and self windows.
func (t *TariffSelector) Bands() (night, self int) {
	return len(t.night), len(t.self)
}

// Reset returns the selector to TierDefault.
func (t *TariffSelector) Reset() {
	t.tier = TierDefault
}
