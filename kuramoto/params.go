// Package kuramoto advances the coupled-oscillator lattice one stochastic
// timestep at a time and aggregates the telemetry and irradiance outputs
// consumers read.
package kuramoto

import (
	"math"

	"github.com/QualiaResearchInstitute/indra/coupling"
)

// Default physical constants. Each Params field falls back to its default
// when non-finite.
const (
	DefaultAlpha            = 0.9
	DefaultGamma            = 0.1
	DefaultOmega0           = 1.5
	DefaultK0               = 2.4
	DefaultEps              = 0.003
	DefaultSmallWorldWeight = 0.15
	DefaultPSW              = 0.08
	DefaultSmallWorldDegree = 4
	DefaultSmallWorldSeed   = 1337
)

// Params are the integrator's physical constants. The JSON and yaml names
// follow the external parameter convention used by editor panels, the REST
// surface, and configuration files.
type Params struct {
	Alpha             float64 `json:"alphaKur" yaml:"alphaKur"`
	Gamma             float64 `json:"gammaKur" yaml:"gammaKur"`
	Omega0            float64 `json:"omega0" yaml:"omega0"`
	K0                float64 `json:"K0" yaml:"K0"`
	Eps               float64 `json:"epsKur" yaml:"epsKur"`
	FluxX             float64 `json:"fluxX" yaml:"fluxX"`
	FluxY             float64 `json:"fluxY" yaml:"fluxY"`
	SmallWorldWeight  float64 `json:"smallWorldWeight" yaml:"smallWorldWeight"`
	PSW               float64 `json:"p_sw" yaml:"p_sw"`
	SmallWorldEnabled bool    `json:"smallWorldEnabled" yaml:"smallWorldEnabled"`
	SmallWorldDegree  int     `json:"smallWorldDegree" yaml:"smallWorldDegree"`
	SmallWorldSeed    int64   `json:"smallWorldSeed" yaml:"smallWorldSeed"`
}

// DefaultParams returns the reference constants with small-world rewiring
// disabled.
func DefaultParams() Params {
	return Params{
		Alpha:            DefaultAlpha,
		Gamma:            DefaultGamma,
		Omega0:           DefaultOmega0,
		K0:               DefaultK0,
		Eps:              DefaultEps,
		SmallWorldWeight: DefaultSmallWorldWeight,
		PSW:              DefaultPSW,
		SmallWorldDegree: DefaultSmallWorldDegree,
		SmallWorldSeed:   DefaultSmallWorldSeed,
	}
}

// Sanitize replaces non-finite constants with their defaults, floors the
// noise amplitude at zero, and clamps the small-world degree into
// [0, coupling.MaxDegree]. Like all live configuration it never fails.
func (p Params) Sanitize() Params {
	p.Alpha = finiteOr(p.Alpha, DefaultAlpha)
	p.Gamma = finiteOr(p.Gamma, DefaultGamma)
	p.Omega0 = finiteOr(p.Omega0, DefaultOmega0)
	p.K0 = finiteOr(p.K0, DefaultK0)
	p.Eps = finiteOr(p.Eps, DefaultEps)
	if p.Eps < 0 {
		p.Eps = 0
	}
	p.FluxX = finiteOr(p.FluxX, 0)
	p.FluxY = finiteOr(p.FluxY, 0)
	p.SmallWorldWeight = finiteOr(p.SmallWorldWeight, DefaultSmallWorldWeight)
	p.PSW = finiteOr(p.PSW, DefaultPSW)
	if p.SmallWorldDegree < 0 {
		p.SmallWorldDegree = 0
	}
	if p.SmallWorldDegree > coupling.MaxDegree {
		p.SmallWorldDegree = coupling.MaxDegree
	}
	return p
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
