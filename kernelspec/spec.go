// Package kernelspec defines the validated coupling-physics parameter set
// shared by every engine component, the named coupling-kernel presets, and a
// hub that distributes versioned spec updates to subscribers.
package kernelspec

import "math"

// Published bounds and defaults for every scalar field. Construction clamps
// each value into its closed interval; non-finite input falls back to the
// default for that field.
const (
	MinGain, MaxGain, DefaultGain                         = 0.0, 2.0, 1.0
	MinK0, MaxK0, DefaultK0                               = 0.05, 8.0, 1.0
	MinQ, MaxQ, DefaultQ                                  = 0.5, 64.0, 12.0
	MinAnisotropy, MaxAnisotropy, DefaultAnisotropy       = -1.0, 1.0, 0.35
	MinChirality, MaxChirality, DefaultChirality          = -1.0, 1.0, 0.25
	MinTransparency, MaxTransparency, DefaultTransparency = 0.0, 1.0, 0.85

	// diffEpsilon is the smallest scalar movement Diff reports as a change.
	diffEpsilon = 1e-6
)

// Spec is an immutable-by-convention snapshot of the coupling physics knobs.
// Every Spec obtained from New or With has all scalars inside their published
// bounds and a known coupling preset; treat instances as values and derive
// changed copies through With.
type Spec struct {
	Gain           float64 `json:"gain"`
	K0             float64 `json:"k0"`
	Q              float64 `json:"Q"`
	Anisotropy     float64 `json:"anisotropy"`
	Chirality      float64 `json:"chirality"`
	Transparency   float64 `json:"transparency"`
	CouplingPreset Preset  `json:"couplingPreset"`
}

// Patch is a partial Spec. Nil fields are left untouched by With, which keeps
// JSON field absence distinguishable from an explicit zero. The yaml tags let
// configuration files use the same field names as the wire format.
type Patch struct {
	Gain           *float64 `json:"gain,omitempty" yaml:"gain,omitempty"`
	K0             *float64 `json:"k0,omitempty" yaml:"k0,omitempty"`
	Q              *float64 `json:"Q,omitempty" yaml:"Q,omitempty"`
	Anisotropy     *float64 `json:"anisotropy,omitempty" yaml:"anisotropy,omitempty"`
	Chirality      *float64 `json:"chirality,omitempty" yaml:"chirality,omitempty"`
	Transparency   *float64 `json:"transparency,omitempty" yaml:"transparency,omitempty"`
	CouplingPreset *Preset  `json:"couplingPreset,omitempty" yaml:"couplingPreset,omitempty"`
}

// Default returns the spec every field falls back to.
func Default() Spec {
	return Spec{
		Gain:           DefaultGain,
		K0:             DefaultK0,
		Q:              DefaultQ,
		Anisotropy:     DefaultAnisotropy,
		Chirality:      DefaultChirality,
		Transparency:   DefaultTransparency,
		CouplingPreset: DefaultPreset,
	}
}

// New builds a sanitized spec from a partial description. It never fails:
// missing fields take their defaults, out-of-range values clamp to the
// nearest bound, non-finite values and unknown presets fall back to defaults.
func New(p Patch) Spec {
	return Default().With(p)
}

// With merges a patch over the receiver and returns the sanitized result.
// The receiver is not modified.
func (s Spec) With(p Patch) Spec {
	if p.Gain != nil {
		s.Gain = *p.Gain
	}
	if p.K0 != nil {
		s.K0 = *p.K0
	}
	if p.Q != nil {
		s.Q = *p.Q
	}
	if p.Anisotropy != nil {
		s.Anisotropy = *p.Anisotropy
	}
	if p.Chirality != nil {
		s.Chirality = *p.Chirality
	}
	if p.Transparency != nil {
		s.Transparency = *p.Transparency
	}
	if p.CouplingPreset != nil {
		s.CouplingPreset = *p.CouplingPreset
	}
	return s.Sanitize()
}

// Sanitize clamps every scalar into its published bounds and replaces an
// unknown coupling preset with the default. It is total: any input, including
// the zero Spec, yields a usable value.
func (s Spec) Sanitize() Spec {
	s.Gain = clampScalar(s.Gain, MinGain, MaxGain, DefaultGain)
	s.K0 = clampScalar(s.K0, MinK0, MaxK0, DefaultK0)
	s.Q = clampScalar(s.Q, MinQ, MaxQ, DefaultQ)
	s.Anisotropy = clampScalar(s.Anisotropy, MinAnisotropy, MaxAnisotropy, DefaultAnisotropy)
	s.Chirality = clampScalar(s.Chirality, MinChirality, MaxChirality, DefaultChirality)
	s.Transparency = clampScalar(s.Transparency, MinTransparency, MaxTransparency, DefaultTransparency)
	if !s.CouplingPreset.Known() {
		s.CouplingPreset = DefaultPreset
	}
	return s
}

// Diff lists the published JSON names of fields whose numeric value moved by
// more than 1e-6, or whose preset differs, going from a to b. The order is
// the declaration order of Spec and is stable across calls.
func Diff(a, b Spec) []string {
	var changed []string
	if math.Abs(a.Gain-b.Gain) > diffEpsilon {
		changed = append(changed, "gain")
	}
	if math.Abs(a.K0-b.K0) > diffEpsilon {
		changed = append(changed, "k0")
	}
	if math.Abs(a.Q-b.Q) > diffEpsilon {
		changed = append(changed, "Q")
	}
	if math.Abs(a.Anisotropy-b.Anisotropy) > diffEpsilon {
		changed = append(changed, "anisotropy")
	}
	if math.Abs(a.Chirality-b.Chirality) > diffEpsilon {
		changed = append(changed, "chirality")
	}
	if math.Abs(a.Transparency-b.Transparency) > diffEpsilon {
		changed = append(changed, "transparency")
	}
	if a.CouplingPreset != b.CouplingPreset {
		changed = append(changed, "couplingPreset")
	}
	return changed
}

// clampScalar constrains v to [min, max], substituting fallback for
// non-finite input.
func clampScalar(v, min, max, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
