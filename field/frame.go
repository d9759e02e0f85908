// Package field implements the pooled complex-sample lattice buffers the
// engine integrates over, plus the manager that enforces their ownership
// lifecycle and metadata stamping.
package field

import (
	"math"
	"sync/atomic"
)

// SchemaVersion identifies the frame metadata layout.
const SchemaVersion = 1

// PhaseRef describes how a frame's phase field should be interpreted.
type PhaseRef string

const (
	// PhaseWrapped means raw per-sample phase, no common reference applied.
	PhaseWrapped PhaseRef = "wrapped"
	// PhaseAligned means the field was rotated to a reference phase at an
	// anchor sample.
	PhaseAligned PhaseRef = "aligned"
)

// PhaseOrigin records the outcome of a phase alignment.
type PhaseOrigin struct {
	AnchorIndex    int     `json:"anchorIndex"`
	ReferencePhase float64 `json:"referencePhase"`
	// AppliedDelta is the rotation actually applied; zero when the measured
	// delta was inside tolerance.
	AppliedDelta float64 `json:"appliedDelta"`
}

// Meta is the per-frame metadata record stamped by the manager.
type Meta struct {
	SchemaVersion    int               `json:"schemaVersion"`
	Solver           string            `json:"solver"`
	SolverInstance   string            `json:"solverInstance"`
	FrameID          int64             `json:"frameId"`
	Timestamp        float64           `json:"timestamp"`
	DT               float64           `json:"dt"`
	WavelengthNm     float64           `json:"wavelengthNm"`
	PixelPitchMeters float64           `json:"pixelPitchMeters"`
	Space            string            `json:"space"`
	PhaseReference   PhaseRef          `json:"phaseReference"`
	PhaseOrigin      *PhaseOrigin      `json:"phaseOrigin,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// frameConstructions hands out process-wide construction ids. Construction
// ids are never reused; they are distinct from the manager-assigned FrameID.
var frameConstructions atomic.Int64

// Frame is one complex lattice buffer. Real and Imag are views into a single
// contiguous backing store, each holding Width*Height samples indexed
// y*Width+x. A frame cycles between the manager's pool and a live state in
// which exactly one caller owns it.
type Frame struct {
	ID     int64
	Width  int
	Height int
	Meta   Meta

	Real []float32
	Imag []float32

	data  []float32
	inUse bool
}

func newFrame(width, height int) *Frame {
	n := width * height
	data := make([]float32, 2*n)
	return &Frame{
		ID:     frameConstructions.Add(1),
		Width:  width,
		Height: height,
		Real:   data[:n:n],
		Imag:   data[n:],
		data:   data,
	}
}

// Samples returns the texel count Width*Height.
func (f *Frame) Samples() int {
	return f.Width * f.Height
}

// InUse reports whether the frame is currently live.
func (f *Frame) InUse() bool {
	return f.inUse
}

// Zero clears both sample planes.
func (f *Frame) Zero() {
	for i := range f.data {
		f.data[i] = 0
	}
}

// CopyFrom copies the sample planes of src, which must have the same
// resolution. Metadata is not copied.
func (f *Frame) CopyFrom(src *Frame) {
	copy(f.Real, src.Real)
	copy(f.Imag, src.Imag)
}

// PhaseAt returns atan2(imag, real) at a sample index.
func (f *Frame) PhaseAt(idx int) float64 {
	return math.Atan2(float64(f.Imag[idx]), float64(f.Real[idx]))
}

// WrapPhase wraps an angle to the interval (-pi, pi].
func WrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x <= 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}
