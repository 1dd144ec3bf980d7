package model

import "slices"

// Tiers names the model used for each complexity tier and for synthesis.
type Tiers struct {
	Cheap     string `json:"cheap" mapstructure:"cheap"`
	Mid       string `json:"mid" mapstructure:"mid"`
	Best      string `json:"best" mapstructure:"best"`
	Synthesis string `json:"synthesis" mapstructure:"synthesis"`
}

// DefaultTiers returns the Claude model line-up.
func DefaultTiers() Tiers {
	return Tiers{
		Cheap:     "claude-haiku-4-5-20251001",
		Mid:       "claude-sonnet-4-5-20250929",
		Best:      "claude-opus-4-6",
		Synthesis: "claude-sonnet-4-5-20250929",
	}
}

// All returns the tier models from cheapest to best, without duplicates.
func (t Tiers) All() []string {
	out := make([]string, 0, 3)
	for _, m := range []string{t.Cheap, t.Mid, t.Best} {
		if m == "" {
			continue
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// For returns the models routed to complexity c, ordered as they should be
// called. Complex questions go best-first.
func (t Tiers) For(c Complexity) []string {
	switch c {
	case ComplexitySimple:
		return []string{t.Cheap}
	case ComplexityComplex:
		return []string{t.Best, t.Mid, t.Cheap}
	default:
		return []string{t.Cheap, t.Mid}
	}
}

// Single returns the one model used when a complexity tier gets a single call.
func (t Tiers) Single(c Complexity) string {
	switch c {
	case ComplexitySimple:
		return t.Cheap
	case ComplexityComplex:
		return t.Best
	default:
		return t.Mid
	}
}

// Label returns the tier name of model, or "" if it is not a tier model.
func (t Tiers) Label(m string) string {
	switch m {
	case t.Cheap:
		return "cheap"
	case t.Mid:
		return "mid"
	case t.Best:
		return "best"
	}
	return ""
}
