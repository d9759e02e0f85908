package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
	"github.com/QualiaResearchInstitute/indra/kuramoto"
)

// newHeadlessGame wires a game without the Ebiten loop so lattice and hub
// plumbing can be exercised directly.
func newHeadlessGame(t *testing.T) *Game {
	t.Helper()
	state, err := kuramoto.New(kuramoto.Config{
		Width:             16,
		Height:            16,
		Params:            kuramoto.DefaultParams(),
		Workers:           1,
		CaptureIrradiance: true,
		Logger:            zap.NewNop(),
	})
	require.NoError(t, err)
	hub := kernelspec.NewHub(kernelspec.HubConfig{Logger: zap.NewNop()})
	g := &Game{
		state:          state,
		hub:            hub,
		px:             8,
		py:             8,
		stepMultiplier: defaultStepMultiplier,
		pixels:         make([]byte, 16*16*4),
		logger:         zap.NewNop(),
	}
	g.detach = state.Attach(hub)
	t.Cleanup(g.shutdown)
	return g
}

func TestProbeFootprintIsDisc(t *testing.T) {
	for _, off := range probeFootprint {
		assert.LessOrEqual(t, off.dx*off.dx+off.dy*off.dy, probeRad*probeRad)
	}
	assert.Contains(t, probeFootprint, gridOffset{})
	assert.Contains(t, probeFootprint, gridOffset{dx: probeRad})
	assert.Contains(t, probeFootprint, gridOffset{dy: -probeRad})
}

func TestImprintVortexWindsPhase(t *testing.T) {
	g := newHeadlessGame(t)
	g.imprintVortex(8, 8)

	f := g.state.Field
	w := g.state.Width

	// to the right of the center the winding angle is zero
	idx := 8*w + 8 + probeRad
	assert.InDelta(t, 1, float64(f.Real[idx]), 1e-6)
	assert.InDelta(t, 0, float64(f.Imag[idx]), 1e-6)

	// below the center it is pi/2; y grows downward
	idx = (8+probeRad)*w + 8
	assert.InDelta(t, 0, float64(f.Real[idx]), 1e-6)
	assert.InDelta(t, 1, float64(f.Imag[idx]), 1e-6)

	for _, off := range probeFootprint {
		i := (8+off.dy)*w + 8 + off.dx
		re := float64(f.Real[i])
		im := float64(f.Imag[i])
		assert.InDelta(t, 1, re*re+im*im, 1e-6)
	}
}

func TestFillIrradiancePixels(t *testing.T) {
	irr := []float32{0, 0, 0, 0.5, 0.5, 0.5, 2, 2, 2}
	dst := make([]byte, 3*4)
	fillIrradiancePixels(dst, irr)

	assert.Equal(t, byte(0), dst[0])
	assert.Equal(t, byte(255), dst[3])
	assert.EqualValues(t, 127, dst[4])
	// overbright sites clamp to white
	assert.Equal(t, byte(255), dst[8])
	assert.Equal(t, byte(255), dst[11])
}

func TestAdjustStepMultiplierClamps(t *testing.T) {
	g := &Game{stepMultiplier: defaultStepMultiplier}
	g.adjustStepMultiplier(-1000)
	assert.Equal(t, minStepMultiplier, g.stepMultiplier)
	g.adjustStepMultiplier(1000)
	assert.Equal(t, maxStepMultiplier, g.stepMultiplier)
}

func TestTrimSpecReachesIntegrator(t *testing.T) {
	g := newHeadlessGame(t)

	g.trimSpec(gainTrim, 0)
	g.hub.Flush()
	require.NoError(t, g.state.Step())
	spec, version := g.state.Spec()
	assert.Equal(t, uint64(1), version)
	assert.InDelta(t, kernelspec.DefaultGain+gainTrim, spec.Gain, 1e-9)

	g.applyPreset(kernelspec.PresetSurround)
	g.hub.Flush()
	require.NoError(t, g.state.Step())
	spec, version = g.state.Spec()
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, kernelspec.PresetSurround, spec.CouplingPreset)
}
