package coupling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

func TestKernelTableMemoized(t *testing.T) {
	params := kernelspec.ParamsFor(kernelspec.PresetDMT)

	a := KernelTable(params)
	b := KernelTable(params)
	assert.Equal(t, a.Key, b.Key)
	assert.Same(t, a, b)

	// Sanitization canonicalizes before keying: a NaN field falls back to
	// the reference value, which for the dmt record reproduces the same key.
	dirty := params
	dirty.NearSigma = math.NaN()
	assert.Same(t, a, KernelTable(dirty))

	other := params
	other.FarGain = 0.5
	c := KernelTable(other)
	assert.NotEqual(t, a.Key, c.Key)
}

func TestKernelStencilShape(t *testing.T) {
	tbl := KernelTable(kernelspec.ParamsFor(kernelspec.PresetDMT))
	r := tbl.Radius

	require.Equal(t, len(tbl.OffsetsX), tbl.Len())
	require.Equal(t, len(tbl.OffsetsY), tbl.Len())
	require.Equal(t, len(tbl.Orientations), tbl.Len())

	for i := 0; i < tbl.Len(); i++ {
		dx, dy := int(tbl.OffsetsX[i]), int(tbl.OffsetsY[i])
		assert.False(t, dx == 0 && dy == 0, "center cell must not appear in the stencil")
		assert.LessOrEqual(t, dx*dx, r*r)
		assert.LessOrEqual(t, dy*dy, r*r)
		assert.GreaterOrEqual(t, math.Abs(float64(tbl.Weights[i])), pruneThreshold)

		want := (float64(dx*dx) - float64(dy*dy)) / float64(dx*dx+dy*dy)
		assert.InDelta(t, want, float64(tbl.Orientations[i]), 1e-6)
	}
}

func TestKernelOrientationAxes(t *testing.T) {
	tbl := KernelTable(kernelspec.ParamsFor(kernelspec.PresetDMT))
	find := func(dx, dy int32) float64 {
		for i := range tbl.OffsetsX {
			if tbl.OffsetsX[i] == dx && tbl.OffsetsY[i] == dy {
				return float64(tbl.Orientations[i])
			}
		}
		t.Fatalf("offset (%d,%d) not in stencil", dx, dy)
		return 0
	}

	assert.InDelta(t, 1.0, find(1, 0), 1e-6)
	assert.InDelta(t, -1.0, find(0, 1), 1e-6)
	assert.InDelta(t, 0.0, find(1, 1), 1e-6)
	assert.InDelta(t, 0.0, find(-2, 2), 1e-6)
}

func TestKernelL1NormalizationMass(t *testing.T) {
	tbl := KernelTable(kernelspec.ParamsFor(kernelspec.PresetDMT))
	require.Equal(t, kernelspec.NormalizeL1, tbl.Params.Normalization)

	mass := math.Abs(float64(tbl.SelfWeight))
	for _, w := range tbl.Weights {
		mass += math.Abs(float64(w))
	}
	assert.InDelta(t, 1.0, mass, 1e-4)
}

func TestKernelRawWeights(t *testing.T) {
	params := kernelspec.ParamsFor(kernelspec.PresetSurround)
	require.Equal(t, kernelspec.NormalizeNone, params.Normalization)
	tbl := KernelTable(params)

	// Spot-check the analytic profile at offset (1,0).
	want := params.BaseGain
	want += params.FarGain * math.Exp(-1/(2*params.FarSigma*params.FarSigma))
	want -= params.NearGain * math.Exp(-1/(2*params.NearSigma*params.NearSigma))
	for i := range tbl.OffsetsX {
		if tbl.OffsetsX[i] == 1 && tbl.OffsetsY[i] == 0 {
			assert.InDelta(t, want, float64(tbl.Weights[i]), 1e-6)
			return
		}
	}
	t.Fatal("offset (1,0) not in stencil")
}

func TestKernelGaussianPresetIsLowpass(t *testing.T) {
	params := kernelspec.ParamsFor(kernelspec.PresetGaussian)
	tbl := KernelTable(params)

	assert.Greater(t, tbl.SelfWeight, float32(0))
	r2 := params.Radius * params.Radius
	for i, w := range tbl.Weights {
		assert.Greater(t, w, float32(0))
		dx, dy := int(tbl.OffsetsX[i]), int(tbl.OffsetsY[i])
		// With a zero baseline, everything beyond the radius circle prunes.
		assert.LessOrEqual(t, dx*dx+dy*dy, r2)
	}
}

func TestKernelZeroMassSkipsNormalization(t *testing.T) {
	params := kernelspec.CouplingKernelParams{
		Preset:        kernelspec.PresetDMT,
		Radius:        2,
		NearSigma:     1,
		NearGain:      0,
		FarSigma:      1,
		FarGain:       0,
		BaseGain:      0,
		Normalization: kernelspec.NormalizeL1,
	}
	tbl := KernelTable(params)
	assert.Zero(t, tbl.Len())
	assert.Zero(t, tbl.SelfWeight)
	assert.False(t, math.IsNaN(float64(tbl.SelfWeight)))
}
