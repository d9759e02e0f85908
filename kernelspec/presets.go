package kernelspec

import (
	"encoding/json"
	"math"
)

// Preset names a built-in coupling-kernel parameter record.
type Preset string

const (
	// PresetDMT is a ring-dominant difference-of-Gaussians profile and the
	// reference preset for re-sanitization.
	PresetDMT Preset = "dmt"
	// PresetGaussian is a plain low-pass Gaussian neighborhood.
	PresetGaussian Preset = "gaussian"
	// PresetSurround is an inhibitory-center excitatory-surround profile.
	PresetSurround Preset = "surround"

	DefaultPreset = PresetDMT
)

// Presets returns the known preset names in stable order.
func Presets() []Preset {
	return []Preset{PresetDMT, PresetGaussian, PresetSurround}
}

// Known reports whether p names a built-in preset.
func (p Preset) Known() bool {
	switch p {
	case PresetDMT, PresetGaussian, PresetSurround:
		return true
	}
	return false
}

// Normalization selects how a built coupling table is scaled.
type Normalization uint8

const (
	// NormalizeL1 divides every weight, self-weight included, by the total
	// absolute kernel mass.
	NormalizeL1 Normalization = iota
	// NormalizeNone leaves raw difference-of-Gaussians weights in place.
	NormalizeNone
)

// String returns the wire form of the normalization mode.
func (n Normalization) String() string {
	if n == NormalizeNone {
		return "none"
	}
	return "l1"
}

// ParseNormalization maps a wire string to a mode. Unknown strings report
// ok=false and fall back to NormalizeL1.
func ParseNormalization(s string) (Normalization, bool) {
	switch s {
	case "l1":
		return NormalizeL1, true
	case "none":
		return NormalizeNone, true
	}
	return NormalizeL1, false
}

// MarshalJSON encodes the mode as its wire string.
func (n Normalization) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

// UnmarshalJSON decodes the wire string, silently falling back to l1 on
// unknown input. Configuration is sanitized, never rejected.
func (n *Normalization) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, _ := ParseNormalization(s)
	*n = mode
	return nil
}

// CouplingKernelParams describes a difference-of-Gaussians coupling stencil.
// The weight at integer offset (dx,dy) with Euclidean distance d is
// BaseGain + FarGain*exp(-d²/2FarSigma²) - NearGain*exp(-d²/2NearSigma²),
// with each Gaussian lobe zeroed when d exceeds Radius or its sigma is
// non-positive.
type CouplingKernelParams struct {
	Preset        Preset        `json:"preset"`
	Radius        int           `json:"radius"`
	NearSigma     float64       `json:"nearSigma"`
	NearGain      float64       `json:"nearGain"`
	FarSigma      float64       `json:"farSigma"`
	FarGain       float64       `json:"farGain"`
	BaseGain      float64       `json:"baseGain"`
	Normalization Normalization `json:"normalization"`
}

// MaxKernelRadius bounds the stencil window so a degenerate radius cannot
// allocate an unbounded table.
const MaxKernelRadius = 32

var presetTable = map[Preset]CouplingKernelParams{
	PresetDMT: {
		Preset:        PresetDMT,
		Radius:        6,
		NearSigma:     1.1,
		NearGain:      0.85,
		FarSigma:      2.8,
		FarGain:       1.0,
		BaseGain:      0.02,
		Normalization: NormalizeL1,
	},
	PresetGaussian: {
		Preset:        PresetGaussian,
		Radius:        5,
		NearSigma:     1.0,
		NearGain:      0.0,
		FarSigma:      2.2,
		FarGain:       1.0,
		BaseGain:      0.0,
		Normalization: NormalizeL1,
	},
	PresetSurround: {
		Preset:        PresetSurround,
		Radius:        4,
		NearSigma:     0.9,
		NearGain:      1.25,
		FarSigma:      2.0,
		FarGain:       0.9,
		BaseGain:      0.0,
		Normalization: NormalizeNone,
	},
}

// ParamsFor returns the sanitized parameter record for a preset. Unknown
// presets resolve to the default preset's record.
func ParamsFor(p Preset) CouplingKernelParams {
	params, ok := presetTable[p]
	if !ok {
		params = presetTable[DefaultPreset]
	}
	return params.Sanitize()
}

// Sanitize replaces non-finite fields with the reference (dmt) preset's
// values and clamps the radius to [1, MaxKernelRadius]. Non-positive sigmas
// are legal and switch the matching Gaussian lobe off.
func (p CouplingKernelParams) Sanitize() CouplingKernelParams {
	ref := presetTable[DefaultPreset]
	if !p.Preset.Known() {
		p.Preset = ref.Preset
	}
	if p.Radius < 1 {
		p.Radius = ref.Radius
	}
	if p.Radius > MaxKernelRadius {
		p.Radius = MaxKernelRadius
	}
	p.NearSigma = finiteOr(p.NearSigma, ref.NearSigma)
	p.NearGain = finiteOr(p.NearGain, ref.NearGain)
	p.FarSigma = finiteOr(p.FarSigma, ref.FarSigma)
	p.FarGain = finiteOr(p.FarGain, ref.FarGain)
	p.BaseGain = finiteOr(p.BaseGain, ref.BaseGain)
	if p.Normalization != NormalizeL1 && p.Normalization != NormalizeNone {
		p.Normalization = ref.Normalization
	}
	return p
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
