package schedule

import (
	"errors"
	"fmt"
	"math"

	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// Derived holds the scalar overlay outputs, each sized Width*Height and
// indexed y*Width+x.
type Derived struct {
	Width  int
	Height int
	GradX  []float32
	GradY  []float32
	Vort   []float32
	Coh    []float32
	Amp    []float32
}

// NewDerived allocates zeroed derived buffers for a lattice.
func NewDerived(width, height int) *Derived {
	n := width * height
	return &Derived{
		Width:  width,
		Height: height,
		GradX:  make([]float32, n),
		GradY:  make([]float32, n),
		Vort:   make([]float32, n),
		Coh:    make([]float32, n),
		Amp:    make([]float32, n),
	}
}

// Gains are the operator scalings derived from the active kernel spec,
// each a ratio against the field's published default.
type Gains struct {
	Amplitude float64
	Coherence float64
	Gradient  float64
	Vorticity float64
	Flux      float64
}

// GainsFrom derives the operator gains from a sanitized spec.
func GainsFrom(spec kernelspec.Spec) Gains {
	return Gains{
		Amplitude: spec.Gain / kernelspec.DefaultGain,
		Coherence: spec.Transparency / kernelspec.DefaultTransparency,
		Gradient:  spec.K0 / kernelspec.DefaultK0,
		Vorticity: spec.Chirality / kernelspec.DefaultChirality,
		Flux:      spec.Gain / kernelspec.DefaultGain,
	}
}

// Pass is the mutable context one Run invocation threads through its steps.
// Field is required; Manager is needed only when the program contains beam
// splits; Out is allocated on first use when nil.
type Pass struct {
	Field   *field.Frame
	Manager *field.Manager
	Out     *Derived
	Gains   Gains
	FluxX   float64
	FluxY   float64

	phase  []float64
	thetaX []float64
}

var (
	errNoField = errors.New("schedule: pass has no field")
	// ErrNeedManager is returned when a beam split runs without a manager
	// to clone scratch frames from.
	ErrNeedManager = errors.New("schedule: beam split requires a manager")
)

// Run interprets the program left to right against the pass context.
func Run(steps []Step, p *Pass) error {
	if p == nil || p.Field == nil {
		return errNoField
	}
	for i := range steps {
		step := steps[i]
		if step.Split != nil {
			if err := runSplit(step.Split, p); err != nil {
				return err
			}
			continue
		}
		switch step.Op {
		case OpFlux:
			applyFlux(p)
		case OpAmplitude:
			if err := ensureOut(p); err != nil {
				return err
			}
			applyAmplitude(p)
		case OpPhase:
			if err := ensureOut(p); err != nil {
				return err
			}
			applyPhase(p)
		default:
			return fmt.Errorf("schedule: unknown operator %d", step.Op)
		}
	}
	return nil
}

func ensureOut(p *Pass) error {
	f := p.Field
	if p.Out == nil {
		p.Out = NewDerived(f.Width, f.Height)
		return nil
	}
	if p.Out.Width != f.Width || p.Out.Height != f.Height {
		return fmt.Errorf("schedule: derived buffers are %dx%d, field is %dx%d",
			p.Out.Width, p.Out.Height, f.Width, f.Height)
	}
	return nil
}

// applyFlux rotates each sample by the toroidal ramp
// theta(x,y) = fluxGain·2π·(fluxX·x/w + fluxY·y/h). Both flux components
// zero is a no-op.
func applyFlux(p *Pass) {
	if p.FluxX == 0 && p.FluxY == 0 {
		return
	}
	f := p.Field
	w, h := f.Width, f.Height
	g := p.Gains.Flux * 2 * math.Pi
	if cap(p.thetaX) < w {
		p.thetaX = make([]float64, w)
	}
	thetaX := p.thetaX[:w]
	for x := 0; x < w; x++ {
		thetaX[x] = g * p.FluxX * float64(x) / float64(w)
	}
	for y := 0; y < h; y++ {
		base := y * w
		ty := g * p.FluxY * float64(y) / float64(h)
		for x := 0; x < w; x++ {
			idx := base + x
			c := float32(math.Cos(thetaX[x] + ty))
			s := float32(math.Sin(thetaX[x] + ty))
			re, im := f.Real[idx], f.Imag[idx]
			f.Real[idx] = re*c - im*s
			f.Imag[idx] = re*s + im*c
		}
	}
}

// applyAmplitude writes scaled magnitude into Amp and clamped
// magnitude-times-transparency into Coh.
func applyAmplitude(p *Pass) {
	f, out := p.Field, p.Out
	ag, cg := p.Gains.Amplitude, p.Gains.Coherence
	for i := range f.Real {
		re := float64(f.Real[i])
		im := float64(f.Imag[i])
		mag := math.Sqrt(re*re + im*im)
		out.Amp[i] = float32(mag * ag)
		out.Coh[i] = clamp01(float32(mag * cg))
	}
}

// applyPhase derives central-difference gradients of the angular field and
// a plaquette curl, all differences wrapped to (-pi, pi] and all neighbor
// lookups toroidal.
func applyPhase(p *Pass) {
	f, out := p.Field, p.Out
	w, h := f.Width, f.Height
	n := w * h
	if cap(p.phase) < n {
		p.phase = make([]float64, n)
	}
	phase := p.phase[:n]
	for i := 0; i < n; i++ {
		phase[i] = math.Atan2(float64(f.Imag[i]), float64(f.Real[i]))
	}

	gg := p.Gains.Gradient
	vg := p.Gains.Vorticity / (2 * math.Pi)
	for y := 0; y < h; y++ {
		row := y * w
		rn := ((y + 1) % h) * w
		rp := ((y - 1 + h) % h) * w
		for x := 0; x < w; x++ {
			xr := (x + 1) % w
			xl := (x - 1 + w) % w
			i := row + x

			gx := field.WrapPhase(phase[row+xr]-phase[row+xl]) * 0.5
			gy := field.WrapPhase(phase[rn+x]-phase[rp+x]) * 0.5
			out.GradX[i] = float32(gx * gg)
			out.GradY[i] = float32(gy * gg)

			a := phase[i]
			b := phase[row+xr]
			c := phase[rn+xr]
			d := phase[rn+x]
			curl := field.WrapPhase(b-a) + field.WrapPhase(c-b) +
				field.WrapPhase(d-c) + field.WrapPhase(a-d)
			out.Vort[i] = float32(curl * vg)
		}
	}
}

// runSplit executes every weighted branch against an isolated clone and
// recombines the accumulation into the original field in place.
func runSplit(split *Split, p *Pass) error {
	if len(split.Branches) == 0 {
		return nil
	}
	var wSum, w2Sum float64
	for _, b := range split.Branches {
		wSum += b.Weight
		w2Sum += b.Weight * b.Weight
	}
	// Degenerate weights leave average and energy without a defined scale;
	// those splits fall through as silent no-ops. Sum keeps its literal
	// semantics.
	switch split.Mode {
	case RecombineAverage:
		if wSum == 0 {
			return nil
		}
	case RecombineEnergy:
		if w2Sum == 0 {
			return nil
		}
	}
	if p.Manager == nil {
		return ErrNeedManager
	}

	f := p.Field
	n := f.Samples()
	// Local accumulators: a nested split inside a branch must not clobber
	// this invocation's sums.
	accRe := make([]float64, n)
	accIm := make([]float64, n)

	for bi := range split.Branches {
		if err := runBranch(&split.Branches[bi], p, accRe, accIm); err != nil {
			return err
		}
	}

	norm := 1.0
	switch split.Mode {
	case RecombineAverage:
		norm = 1 / wSum
	case RecombineEnergy:
		norm = 1 / math.Sqrt(w2Sum)
	}
	for i := 0; i < n; i++ {
		f.Real[i] = float32(accRe[i] * norm)
		f.Imag[i] = float32(accIm[i] * norm)
	}
	return nil
}

// runBranch clones the field into a scratch frame, runs the branch program
// on the clone, and folds the weighted clone into the accumulators.
func runBranch(branch *Branch, p *Pass, accRe, accIm []float64) error {
	scratch := p.Manager.Acquire(field.AcquireOptions{})
	defer p.Manager.Release(scratch)

	if scratch.Samples() != p.Field.Samples() {
		return fmt.Errorf("schedule: manager lattice %dx%d does not match field %dx%d",
			scratch.Width, scratch.Height, p.Field.Width, p.Field.Height)
	}
	scratch.CopyFrom(p.Field)

	branchPass := *p
	branchPass.Field = scratch
	if err := Run(branch.Steps, &branchPass); err != nil {
		return err
	}
	p.Out = branchPass.Out

	w := branch.Weight
	for i := range accRe {
		accRe[i] += w * float64(scratch.Real[i])
		accIm[i] += w * float64(scratch.Imag[i])
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
