package kuramoto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/QualiaResearchInstitute/indra/coupling"
)

func TestParamsSanitizeRepairsNonFinite(t *testing.T) {
	p := Params{
		Alpha:            math.NaN(),
		Gamma:            math.Inf(1),
		Omega0:           math.Inf(-1),
		K0:               math.NaN(),
		Eps:              math.NaN(),
		FluxX:            math.NaN(),
		FluxY:            math.Inf(-1),
		SmallWorldWeight: math.NaN(),
		PSW:              math.Inf(1),
	}.Sanitize()

	assert.Equal(t, DefaultAlpha, p.Alpha)
	assert.Equal(t, DefaultGamma, p.Gamma)
	assert.Equal(t, DefaultOmega0, p.Omega0)
	assert.Equal(t, DefaultK0, p.K0)
	assert.Equal(t, DefaultEps, p.Eps)
	assert.Equal(t, 0.0, p.FluxX)
	assert.Equal(t, 0.0, p.FluxY)
	assert.Equal(t, DefaultSmallWorldWeight, p.SmallWorldWeight)
	assert.Equal(t, DefaultPSW, p.PSW)
}

func TestParamsSanitizeClampsDegreeAndEps(t *testing.T) {
	p := Params{Eps: -1, SmallWorldDegree: 500}.Sanitize()
	assert.Equal(t, 0.0, p.Eps)
	assert.Equal(t, coupling.MaxDegree, p.SmallWorldDegree)

	p = Params{SmallWorldDegree: -3}.Sanitize()
	assert.Equal(t, 0, p.SmallWorldDegree)
}

// The zero value is finite and legal: an inert lattice, not an error.
func TestParamsZeroValuePassesThrough(t *testing.T) {
	assert.Equal(t, Params{}, Params{}.Sanitize())
}

func TestDefaultParamsAreTheirOwnFixedPoint(t *testing.T) {
	assert.Equal(t, DefaultParams(), DefaultParams().Sanitize())
}
