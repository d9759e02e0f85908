package kuramoto

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/QualiaResearchInstitute/indra/coupling"
	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
	"github.com/QualiaResearchInstitute/indra/schedule"
)

// ErrClosed is returned by operations on a state whose frame has been
// released.
var ErrClosed = errors.New("kuramoto: state is closed")

// Config parameterizes New. Either Manager or Width/Height is required;
// when both are given the resolutions must agree. Params are used as given
// after sanitization, so a zero value really means an inert lattice; use
// DefaultParams for the reference constants.
type Config struct {
	Width  int
	Height int
	// Manager is adopted when non-nil. Otherwise the state constructs and
	// owns a manager for its resolution.
	Manager *field.Manager
	Params  Params
	// Spec's zero value means kernelspec.Default().
	Spec        kernelspec.Spec
	SpecVersion uint64
	// Noise draws one standard normal sample per call. Nil installs a
	// generator seeded with NoiseSeed (or 1 when that is zero too).
	Noise     func() float64
	NoiseSeed int64
	// Workers is the number of row bands stepped in parallel. Defaults to
	// GOMAXPROCS, capped at the lattice height.
	Workers int
	// Program is the derive schedule; nil means schedule.Default().
	Program []schedule.Step
	// CaptureIrradiance allocates the 3-channel irradiance buffer and fills
	// it on every step.
	CaptureIrradiance bool
	Logger            *zap.Logger
}

// State is one advancing lattice. It references but does not own its manager
// unless it constructed one, and holds exactly one live frame from Acquire
// until Close.
//
// Step, StepN, Derive, and the initializers must be serialized by the
// caller. ApplySpec may be called from any goroutine; the update takes
// effect at the next step boundary.
type State struct {
	Width   int
	Height  int
	Manager *field.Manager
	Field   *field.Frame
	// Telemetry is rewritten in place on every step.
	Telemetry Telemetry
	// Irradiance interleaves three equal channels (L=M=S) of squared
	// amplitude per site. Nil unless Config.CaptureIrradiance was set.
	Irradiance []float32

	params      Params
	spec        kernelspec.Spec
	specVersion uint64
	gains       schedule.Gains
	kernel      *coupling.Table
	rewire      *coupling.Rewiring
	noise       func() float64
	pending     atomic.Pointer[kernelspec.Event]

	nextRe   []float32
	nextIm   []float32
	noiseBuf []float64
	bands    []bandStats
	workers  int

	program     []schedule.Step
	pass        schedule.Pass
	ownsManager bool
	closed      bool
	logger      *zap.Logger
}

// New builds a state with a zeroed field. Seed the lattice with InitWinding,
// InitRandom, or Manager.Load before stepping.
func New(cfg Config) (*State, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := cfg.Manager
	owns := false
	if mgr == nil {
		var err error
		mgr, err = field.NewManager(field.Config{
			Width:  cfg.Width,
			Height: cfg.Height,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		owns = true
	} else if cfg.Width != 0 || cfg.Height != 0 {
		if cfg.Width != mgr.Width() || cfg.Height != mgr.Height() {
			return nil, fmt.Errorf("kuramoto: state %dx%d does not match manager %dx%d",
				cfg.Width, cfg.Height, mgr.Width(), mgr.Height())
		}
	}
	w, h := mgr.Width(), mgr.Height()
	n := w * h

	spec := cfg.Spec
	if spec == (kernelspec.Spec{}) {
		spec = kernelspec.Default()
	}

	noise := cfg.Noise
	if noise == nil {
		seed := cfg.NoiseSeed
		if seed == 0 {
			seed = 1
		}
		noise = rand.New(rand.NewSource(seed)).NormFloat64
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > h {
		workers = h
	}

	program := cfg.Program
	if program == nil {
		program = schedule.Default()
	}

	s := &State{
		Width:       w,
		Height:      h,
		Manager:     mgr,
		params:      cfg.Params.Sanitize(),
		noise:       noise,
		nextRe:      make([]float32, n),
		nextIm:      make([]float32, n),
		noiseBuf:    make([]float64, 2*n),
		bands:       make([]bandStats, workers),
		workers:     workers,
		program:     program,
		ownsManager: owns,
		logger:      logger,
	}
	if s.params.SmallWorldEnabled {
		s.rewire = coupling.SmallWorld(w, h, s.params.SmallWorldDegree, s.params.SmallWorldSeed)
	}
	if cfg.CaptureIrradiance {
		s.Irradiance = make([]float32, 3*n)
	}
	s.Field = mgr.Acquire(field.AcquireOptions{})
	s.applySpecNow(spec, cfg.SpecVersion)
	logger.Debug("kuramoto state ready",
		zap.Int("width", w), zap.Int("height", h),
		zap.Int("workers", workers), zap.Bool("smallWorld", s.rewire != nil))
	return s, nil
}

// ApplySpec records a kernel spec update for the next step boundary. Updates
// landing between steps overwrite each other; only the latest is applied.
func (s *State) ApplySpec(ev kernelspec.Event) {
	e := ev
	s.pending.Store(&e)
}

// Attach subscribes the state to a spec hub, applying the current snapshot
// immediately. The returned handle detaches.
func (s *State) Attach(hub *kernelspec.Hub) func() {
	return hub.Subscribe(s.ApplySpec, true)
}

func (s *State) applySpecNow(spec kernelspec.Spec, version uint64) {
	spec = spec.Sanitize()
	s.spec = spec
	s.specVersion = version
	s.gains = schedule.GainsFrom(spec)
	s.kernel = coupling.KernelTable(kernelspec.ParamsFor(spec.CouplingPreset))
	s.Telemetry.Kernel = spec
	s.Telemetry.KernelVersion = version
	s.logger.Debug("kernel spec applied",
		zap.Uint64("version", version),
		zap.String("preset", string(spec.CouplingPreset)))
}

// Spec returns the active sanitized kernel spec and its version.
func (s *State) Spec() (kernelspec.Spec, uint64) {
	return s.spec, s.specVersion
}

// Params returns the sanitized physical constants.
func (s *State) Params() Params {
	return s.params
}

// InitWinding fills the lattice with a unit-amplitude phase winding of
// charge q along x: Z(x,y) = e^{i·2πq·x/width}.
func (s *State) InitWinding(q int) {
	for y := 0; y < s.Height; y++ {
		row := y * s.Width
		for x := 0; x < s.Width; x++ {
			theta := 2 * math.Pi * float64(q) * float64(x) / float64(s.Width)
			s.Field.Real[row+x] = float32(math.Cos(theta))
			s.Field.Imag[row+x] = float32(math.Sin(theta))
		}
	}
}

// InitRandom fills the lattice with unit-amplitude samples at uniformly
// random phases from a deterministic seed.
func (s *State) InitRandom(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range s.Field.Real {
		theta := (2*rng.Float64() - 1) * math.Pi
		s.Field.Real[i] = float32(math.Cos(theta))
		s.Field.Imag[i] = float32(math.Sin(theta))
	}
}

// Derive runs the configured schedule against the live field and returns the
// derived buffers, which are reused across calls. The program mutates the
// field in place; the default program's flux element is the identity while
// both flux components are zero.
func (s *State) Derive() (*schedule.Derived, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.pass.Field = s.Field
	s.pass.Manager = s.Manager
	s.pass.Gains = s.gains
	s.pass.FluxX = s.params.FluxX
	s.pass.FluxY = s.params.FluxY
	if err := schedule.Run(s.program, &s.pass); err != nil {
		return nil, err
	}
	return s.pass.Out, nil
}

// Close releases the state's frame back to the manager. The state must not
// be used afterwards; Step and Derive report ErrClosed.
func (s *State) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.Manager.Release(s.Field)
	s.Field = nil
	return err
}
