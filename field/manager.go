package field

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default physical parameters stamped on frames when the caller does not
// override them.
const (
	DefaultPoolCapacity   = 3
	DefaultDT             = 1.0 / 60.0
	DefaultWavelengthNm   = 550.0
	DefaultPixelPitch     = 1e-5
	DefaultSolverName     = "kuramoto"
	DefaultSpace          = "lattice"
	DefaultAlignTolerance = 1e-6
)

var (
	// ErrNotLive is returned by operations on a frame outside the live set.
	ErrNotLive = errors.New("field: frame is not live")
	// ErrAnchorRange is returned when an anchor index is outside the sample
	// bounds.
	ErrAnchorRange = errors.New("field: anchor index out of range")
	// ErrSampleCount is returned when ingest data does not match the frame's
	// texel count.
	ErrSampleCount = errors.New("field: sample count mismatch")
)

// Config parameterizes NewManager. Width and Height are required; everything
// else falls back to the package defaults.
type Config struct {
	Width        int
	Height       int
	PoolCapacity int
	Solver       string
	DT           float64
	WavelengthNm float64
	PixelPitch   float64
	Space        string
	// Clock supplies timestamps in seconds. Injectable for tests and for
	// hosts that prefer a monotonic origin.
	Clock  func() float64
	Logger *zap.Logger
}

// AcquireOptions adjusts the fresh metadata stamped on an acquired frame.
type AcquireOptions struct {
	Space string
	Tags  map[string]string
}

// StampOptions is a partial metadata record; unset fields inherit the
// frame's previous values. FrameID zero requests allocation from the
// manager's counter.
type StampOptions struct {
	FrameID      int64
	Timestamp    *float64
	DT           *float64
	WavelengthNm *float64
	PixelPitch   *float64
	Space        string
	Tags         map[string]string
}

// AlignRequest asks for a uniform rotation bringing the phase at
// AnchorIndex to ReferencePhase. Tolerance zero means
// DefaultAlignTolerance.
type AlignRequest struct {
	AnchorIndex    int
	ReferencePhase float64
	Tolerance      float64
}

// PhaseEvent is delivered to every registered phase hook on each alignment,
// whether or not a rotation was applied.
type PhaseEvent struct {
	Frame   *Frame
	Request AlignRequest
	// PhaseDelta is the measured shortest angular delta, even when it was
	// inside tolerance and nothing rotated.
	PhaseDelta float64
}

// PhaseHook observes phase alignments.
type PhaseHook func(PhaseEvent)

// ManagerStats is a diagnostics snapshot.
type ManagerStats struct {
	Allocated   int64
	Pooled      int
	Live        int
	NextFrameID int64
}

// Manager owns the frame pool, the live set that is the single authority on
// frame ownership, the frame-id counter, and the solver identity stamped
// into metadata. The mutex guards pool and live-set mutation only; sample
// data of a live frame belongs exclusively to its holder.
type Manager struct {
	mu        sync.Mutex
	pool      []*Frame
	live      map[int64]*Frame
	nextID    int64
	allocated int64
	hooks     []registeredHook
	nextHook  int

	width    int
	height   int
	capacity int
	solver   string
	instance string
	dt       float64
	lambda   float64
	pitch    float64
	space    string
	clock    func() float64
	logger   *zap.Logger
}

type registeredHook struct {
	id int
	fn PhaseHook
}

// NewManager validates the resolution and builds an empty manager. The pool
// starts empty; frames are constructed on demand.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("field: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	m := &Manager{
		live:     make(map[int64]*Frame),
		nextID:   1,
		width:    cfg.Width,
		height:   cfg.Height,
		capacity: cfg.PoolCapacity,
		solver:   cfg.Solver,
		instance: uuid.NewString(),
		dt:       cfg.DT,
		lambda:   cfg.WavelengthNm,
		pitch:    cfg.PixelPitch,
		space:    cfg.Space,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if m.capacity < 1 {
		m.capacity = DefaultPoolCapacity
	}
	if m.solver == "" {
		m.solver = DefaultSolverName
	}
	if m.dt <= 0 || math.IsNaN(m.dt) || math.IsInf(m.dt, 0) {
		m.dt = DefaultDT
	}
	if m.lambda <= 0 {
		m.lambda = DefaultWavelengthNm
	}
	if m.pitch <= 0 {
		m.pitch = DefaultPixelPitch
	}
	if m.space == "" {
		m.space = DefaultSpace
	}
	if m.clock == nil {
		m.clock = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger.Debug("optical field manager ready",
		zap.Int("width", m.width), zap.Int("height", m.height),
		zap.Int("capacity", m.capacity), zap.String("instance", m.instance))
	return m, nil
}

// Width returns the managed lattice width.
func (m *Manager) Width() int { return m.width }

// Height returns the managed lattice height.
func (m *Manager) Height() int { return m.height }

// Instance returns the solver-instance id stamped into frame metadata.
func (m *Manager) Instance() string { return m.instance }

// Acquire pops a pooled frame or constructs one, stamps fresh metadata,
// zeroes the sample planes, and marks the frame live.
func (m *Manager) Acquire(opts AcquireOptions) *Frame {
	m.mu.Lock()
	var f *Frame
	if n := len(m.pool); n > 0 {
		f = m.pool[n-1]
		m.pool = m.pool[:n-1]
	} else {
		f = newFrame(m.width, m.height)
		m.allocated++
	}
	f.inUse = true
	m.live[f.ID] = f
	m.mu.Unlock()

	f.Zero()
	space := opts.Space
	if space == "" {
		space = m.space
	}
	f.Meta = Meta{
		SchemaVersion:    SchemaVersion,
		Solver:           m.solver,
		SolverInstance:   m.instance,
		Timestamp:        m.clock(),
		DT:               m.dt,
		WavelengthNm:     m.lambda,
		PixelPitchMeters: m.pitch,
		Space:            space,
		PhaseReference:   PhaseWrapped,
		Tags:             copyTags(opts.Tags),
	}
	return f
}

// Release removes the frame from the live set and returns it to the pool,
// or drops it when the pool is at capacity. Releasing a frame that is not
// live fails with ErrNotLive and changes nothing.
func (m *Manager) Release(f *Frame) error {
	if f == nil {
		return ErrNotLive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[f.ID]; !ok {
		return ErrNotLive
	}
	delete(m.live, f.ID)
	f.inUse = false
	if len(m.pool) < m.capacity {
		m.pool = append(m.pool, f)
		return nil
	}
	m.logger.Debug("frame dropped, pool full", zap.Int64("id", f.ID))
	return nil
}

// Stamp assigns a frame id and merges partial metadata over the frame's
// previous record. An explicit id at or past the counter advances the
// counter beyond it; a stale explicit id is ignored in favor of a fresh one,
// so ids stay unique and non-decreasing. Any previous phase alignment is
// invalidated.
func (m *Manager) Stamp(f *Frame, opts StampOptions) error {
	if f == nil {
		return ErrNotLive
	}
	m.mu.Lock()
	if _, ok := m.live[f.ID]; !ok {
		m.mu.Unlock()
		return ErrNotLive
	}
	var id int64
	if opts.FrameID >= m.nextID {
		id = opts.FrameID
		m.nextID = opts.FrameID + 1
	} else {
		id = m.nextID
		m.nextID++
	}
	m.mu.Unlock()

	f.Meta.FrameID = id
	if opts.Timestamp != nil {
		f.Meta.Timestamp = *opts.Timestamp
	}
	if opts.DT != nil {
		f.Meta.DT = *opts.DT
	}
	if opts.WavelengthNm != nil {
		f.Meta.WavelengthNm = *opts.WavelengthNm
	}
	if opts.PixelPitch != nil {
		f.Meta.PixelPitchMeters = *opts.PixelPitch
	}
	if opts.Space != "" {
		f.Meta.Space = opts.Space
	}
	if opts.Tags != nil {
		f.Meta.Tags = copyTags(opts.Tags)
	}
	f.Meta.PhaseOrigin = nil
	f.Meta.PhaseReference = PhaseWrapped
	return nil
}

// AlignPhase rotates the whole field so the phase at the anchor sample
// matches the reference phase, skipping the rotation when the measured
// delta is inside tolerance. Metadata always flips to the aligned reference
// with the applied delta recorded, and every phase hook is notified with
// the measured delta. The measured delta is returned.
func (m *Manager) AlignPhase(f *Frame, req AlignRequest) (float64, error) {
	if f == nil {
		return 0, ErrNotLive
	}
	m.mu.Lock()
	if _, ok := m.live[f.ID]; !ok {
		m.mu.Unlock()
		return 0, ErrNotLive
	}
	hooks := make([]registeredHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if req.AnchorIndex < 0 || req.AnchorIndex >= f.Samples() {
		return 0, fmt.Errorf("%w: %d outside [0,%d)", ErrAnchorRange, req.AnchorIndex, f.Samples())
	}
	tol := req.Tolerance
	if tol == 0 {
		tol = DefaultAlignTolerance
	}

	delta := WrapPhase(req.ReferencePhase - f.PhaseAt(req.AnchorIndex))
	applied := 0.0
	if math.Abs(delta) > tol {
		rotate(f.Real, f.Imag, delta)
		applied = delta
	}
	f.Meta.PhaseReference = PhaseAligned
	f.Meta.PhaseOrigin = &PhaseOrigin{
		AnchorIndex:    req.AnchorIndex,
		ReferencePhase: req.ReferencePhase,
		AppliedDelta:   applied,
	}
	for _, h := range hooks {
		h.fn(PhaseEvent{Frame: f, Request: req, PhaseDelta: delta})
	}
	return delta, nil
}

// Load ingests raw sample planes into a live frame. The plane lengths must
// match the frame's texel count exactly.
func (m *Manager) Load(f *Frame, re, im []float32) error {
	if f == nil {
		return ErrNotLive
	}
	m.mu.Lock()
	_, ok := m.live[f.ID]
	m.mu.Unlock()
	if !ok {
		return ErrNotLive
	}
	n := f.Samples()
	if len(re) != n || len(im) != n {
		return fmt.Errorf("%w: got %d/%d samples, want %d", ErrSampleCount, len(re), len(im), n)
	}
	copy(f.Real, re)
	copy(f.Imag, im)
	return nil
}

// LoadHalf ingests binary16 sample planes, expanding them to float32.
func (m *Manager) LoadHalf(f *Frame, re, im []uint16) error {
	if f == nil {
		return ErrNotLive
	}
	n := f.Samples()
	if len(re) != n || len(im) != n {
		return fmt.Errorf("%w: got %d/%d samples, want %d", ErrSampleCount, len(re), len(im), n)
	}
	reF := make([]float32, n)
	imF := make([]float32, n)
	DecodeHalf(reF, re)
	DecodeHalf(imF, im)
	return m.Load(f, reF, imF)
}

// RegisterPhaseHook adds an alignment observer and returns its removal
// handle.
func (m *Manager) RegisterPhaseHook(fn PhaseHook) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextHook
	m.nextHook++
	m.hooks = append(m.hooks, registeredHook{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, h := range m.hooks {
			if h.id == id {
				m.hooks = append(m.hooks[:i], m.hooks[i+1:]...)
				break
			}
		}
	}
}

// Stats returns pool diagnostics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		Allocated:   m.allocated,
		Pooled:      len(m.pool),
		Live:        len(m.live),
		NextFrameID: m.nextID,
	}
}

// rotate applies a uniform 2x2 rotation by theta to every (real, imag)
// sample pair.
func rotate(re, im []float32, theta float64) {
	c := float32(math.Cos(theta))
	s := float32(math.Sin(theta))
	for i := range re {
		r, q := re[i], im[i]
		re[i] = r*c - q*s
		im[i] = r*s + q*c
	}
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
