package kuramoto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// zeroClockManager builds a manager whose timestamps start at zero so step
// timing assertions stay deterministic.
func zeroClockManager(t *testing.T, w, h int) *field.Manager {
	t.Helper()
	mgr, err := field.NewManager(field.Config{
		Width:  w,
		Height: h,
		Clock:  func() float64 { return 0 },
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return mgr
}

func newTestState(t *testing.T, cfg Config) *State {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRejectsResolutionMismatch(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	_, err := New(Config{Width: 8, Height: 8, Manager: mgr})
	assert.Error(t, err)

	s := newTestState(t, Config{Manager: mgr})
	assert.Equal(t, 4, s.Width)
	assert.Equal(t, 4, s.Height)
}

func TestPureRotationKeepsUnitAmplitude(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{
		Manager: mgr,
		Params:  Params{Omega0: 1.5},
		Noise:   func() float64 { return 0 },
	})
	s.InitWinding(1)
	require.NoError(t, s.Step())

	dt := s.Field.Meta.DT
	for i := 0; i < s.Width*s.Height; i++ {
		re := float64(s.Field.Real[i])
		im := float64(s.Field.Imag[i])
		assert.InDelta(t, 1.0, math.Hypot(re, im), 1e-6, "amplitude at site %d", i)

		x := i % s.Width
		want := field.WrapPhase(2*math.Pi*float64(x)/float64(s.Width) + 1.5*dt)
		assert.InDelta(t, want, math.Atan2(im, re), 1e-5, "phase at site %d", i)
	}
}

func TestOrderParameterBounds(t *testing.T) {
	s := newTestState(t, Config{
		Width:     8,
		Height:    8,
		Params:    DefaultParams(),
		NoiseSeed: 99,
	})
	s.InitRandom(5)
	require.NoError(t, s.StepN(5))

	assert.GreaterOrEqual(t, s.Telemetry.Order.Magnitude, 0.0)
	assert.LessOrEqual(t, s.Telemetry.Order.Magnitude, 1.0)
	assert.GreaterOrEqual(t, s.Telemetry.Interference.Variance, 0.0)
	assert.LessOrEqual(t, s.Telemetry.Order.SampleCount, 64)
}

func TestOrderParameterUniformField(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr})
	s.InitWinding(0)
	require.NoError(t, s.Step())

	assert.InDelta(t, 1.0, s.Telemetry.Order.Magnitude, 1e-12)
	assert.InDelta(t, 0.0, s.Telemetry.Order.Phase, 1e-12)
	assert.Equal(t, 16, s.Telemetry.Order.SampleCount)
	assert.InDelta(t, 1.0, s.Telemetry.Interference.Mean, 1e-12)
	assert.InDelta(t, 0.0, s.Telemetry.Interference.Variance, 1e-12)
	assert.InDelta(t, 1.0, s.Telemetry.Interference.Max, 1e-12)
}

func TestOrderParameterExcludesDeadSites(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr})
	n := s.Width * s.Height
	for i := 0; i < n/2; i++ {
		s.Field.Real[i] = 1
	}
	require.NoError(t, s.Step())

	assert.Equal(t, n/2, s.Telemetry.Order.SampleCount)
	assert.InDelta(t, 1.0, s.Telemetry.Order.Magnitude, 1e-12)
	assert.InDelta(t, 0.5, s.Telemetry.Interference.Mean, 1e-12)
	assert.InDelta(t, 0.25, s.Telemetry.Interference.Variance, 1e-12)
	assert.InDelta(t, 1.0, s.Telemetry.Interference.Max, 1e-12)
}

func TestNoiseGeneratorCallAccounting(t *testing.T) {
	calls := 0
	counting := func() float64 { calls++; return 0 }

	noisy := newTestState(t, Config{
		Width:  4,
		Height: 4,
		Params: Params{Eps: 0.003},
		Noise:  counting,
	})
	require.NoError(t, noisy.Step())
	assert.Equal(t, 32, calls, "one draw per component per site")
	require.NoError(t, noisy.StepN(2))
	assert.Equal(t, 96, calls)

	calls = 0
	silent := newTestState(t, Config{
		Width:  4,
		Height: 4,
		Noise:  counting,
	})
	require.NoError(t, silent.Step())
	assert.Equal(t, 0, calls, "zero epsKur never draws")
}

func TestStepStampsFramesAndTimestamps(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr, Params: DefaultParams()})
	s.InitRandom(1)
	dt := s.Field.Meta.DT

	for step := 1; step <= 4; step++ {
		require.NoError(t, s.Step())
		assert.Equal(t, int64(step), s.Telemetry.FrameID)
		assert.Equal(t, int64(step), s.Field.Meta.FrameID)
		assert.InDelta(t, float64(step)*dt, s.Telemetry.Timestamp, 1e-12)
		assert.Equal(t, dt, s.Telemetry.DT)
	}
}

func TestApplySpecDeferredToStepBoundary(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr})

	before, version := s.Spec()
	assert.Equal(t, uint64(0), version)
	assert.Equal(t, kernelspec.Default(), before)

	g := 1.7
	p := kernelspec.PresetSurround
	s.ApplySpec(kernelspec.Event{
		Spec:    kernelspec.New(kernelspec.Patch{Gain: &g, CouplingPreset: &p}),
		Version: 7,
	})

	// Nothing moves until the next step boundary.
	current, version := s.Spec()
	assert.Equal(t, before, current)
	assert.Equal(t, uint64(0), version)
	assert.Equal(t, before, s.Telemetry.Kernel)

	require.NoError(t, s.Step())
	current, version = s.Spec()
	assert.Equal(t, 1.7, current.Gain)
	assert.Equal(t, kernelspec.PresetSurround, current.CouplingPreset)
	assert.Equal(t, uint64(7), version)
	assert.Equal(t, current, s.Telemetry.Kernel)
	assert.Equal(t, uint64(7), s.Telemetry.KernelVersion)
}

func TestApplySpecKeepsLatestPending(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr})

	g1, g2 := 1.2, 1.9
	s.ApplySpec(kernelspec.Event{Spec: kernelspec.New(kernelspec.Patch{Gain: &g1}), Version: 3})
	s.ApplySpec(kernelspec.Event{Spec: kernelspec.New(kernelspec.Patch{Gain: &g2}), Version: 4})
	require.NoError(t, s.Step())

	current, version := s.Spec()
	assert.Equal(t, 1.9, current.Gain)
	assert.Equal(t, uint64(4), version)
}

func TestAttachAppliesHubSnapshot(t *testing.T) {
	hub := kernelspec.NewHub(kernelspec.HubConfig{Logger: zap.NewNop()})
	defer hub.Close()
	g := 0.4
	hub.Update(kernelspec.Patch{Gain: &g}, kernelspec.UpdateOptions{Source: "test"})

	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{Manager: mgr})
	detach := s.Attach(hub)
	defer detach()

	require.NoError(t, s.Step())
	current, version := s.Spec()
	assert.Equal(t, 0.4, current.Gain)
	assert.Equal(t, uint64(1), version)
}

func TestSmallWorldRewiringChangesDynamics(t *testing.T) {
	params := Params{
		Alpha:            DefaultAlpha,
		Gamma:            DefaultGamma,
		Omega0:           DefaultOmega0,
		K0:               DefaultK0,
		SmallWorldWeight: 0.5,
		PSW:              0.5,
		SmallWorldDegree: 4,
		SmallWorldSeed:   7,
	}
	run := func(enabled bool) []float32 {
		p := params
		p.SmallWorldEnabled = enabled
		s := newTestState(t, Config{
			Manager: zeroClockManager(t, 8, 8),
			Params:  p,
			Noise:   func() float64 { return 0 },
		})
		s.InitRandom(42)
		require.NoError(t, s.StepN(3))
		out := make([]float32, len(s.Field.Real))
		copy(out, s.Field.Real)
		return out
	}

	off := run(false)
	on := run(true)
	assert.Equal(t, run(true), on, "same configuration replays identically")
	assert.NotEqual(t, off, on, "long-range correction must alter the field")
}

func TestFluxTwistOnSeam(t *testing.T) {
	params := Params{K0: DefaultK0, Alpha: DefaultAlpha}
	run := func(fluxX float64) *State {
		p := params
		p.FluxX = fluxX
		s := newTestState(t, Config{
			Manager: zeroClockManager(t, 16, 8),
			Params:  p,
			Noise:   func() float64 { return 0 },
		})
		s.InitWinding(0)
		require.NoError(t, s.Step())
		return s
	}

	// An integer flux quantum twists wrapped lookups by a full turn, so a
	// uniform field stays uniform across the seam.
	whole := run(1)
	re0, im0 := whole.Field.Real[0], whole.Field.Imag[0]
	for i := range whole.Field.Real {
		assert.InDelta(t, float64(re0), float64(whole.Field.Real[i]), 1e-5, "site %d", i)
		assert.InDelta(t, float64(im0), float64(whole.Field.Imag[i]), 1e-5, "site %d", i)
	}

	// A fractional quantum makes wrapped lookups disagree with interior
	// ones, so seam columns must diverge from the center.
	half := run(0.5)
	y := 4
	seam := half.Field.Imag[y*half.Width]
	center := half.Field.Imag[y*half.Width+8]
	assert.Greater(t, math.Abs(float64(seam-center)), 1e-6)
}

func TestIrradianceCapture(t *testing.T) {
	mgr := zeroClockManager(t, 4, 4)
	s := newTestState(t, Config{
		Manager:           mgr,
		Params:            DefaultParams(),
		CaptureIrradiance: true,
		NoiseSeed:         3,
	})
	s.InitRandom(8)
	require.NoError(t, s.Step())

	n := s.Width * s.Height
	require.Len(t, s.Irradiance, 3*n)
	for i := 0; i < n; i++ {
		re := float64(s.Field.Real[i])
		im := float64(s.Field.Imag[i])
		a2 := s.Irradiance[3*i]
		assert.InDelta(t, re*re+im*im, float64(a2), 1e-5)
		assert.Equal(t, a2, s.Irradiance[3*i+1])
		assert.Equal(t, a2, s.Irradiance[3*i+2])
	}

	bare := newTestState(t, Config{Width: 4, Height: 4})
	require.NoError(t, bare.Step())
	assert.Nil(t, bare.Irradiance)
}

func TestCloseReleasesFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	mgr := zeroClockManager(t, 4, 4)
	s, err := New(Config{Manager: mgr, Params: DefaultParams()})
	require.NoError(t, err)
	s.InitRandom(1)
	require.NoError(t, s.StepN(2))
	require.Equal(t, 1, mgr.Stats().Live)

	require.NoError(t, s.Close())
	assert.Equal(t, 0, mgr.Stats().Live)
	assert.ErrorIs(t, s.Step(), ErrClosed)
	_, err = s.Derive()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestDeriveProducesReusedBuffers(t *testing.T) {
	mgr := zeroClockManager(t, 8, 8)
	s := newTestState(t, Config{Manager: mgr})
	s.InitWinding(1)

	out, err := s.Derive()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 8, out.Height)

	mid := 4*8 + 4
	assert.InDelta(t, 1.0, float64(out.Amp[mid]), 1e-5)
	assert.InDelta(t, 2*math.Pi/8, float64(out.GradX[mid]), 1e-4)
	assert.InDelta(t, 0.0, float64(out.GradY[mid]), 1e-4)

	again, err := s.Derive()
	require.NoError(t, err)
	assert.Same(t, out, again)
}
