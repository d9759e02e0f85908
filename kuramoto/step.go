package kuramoto

import (
	"math"
	"sync"

	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// stepConsts carries the per-step constants shared by all band workers.
type stepConsts struct {
	dt       float64
	gamma    float64
	cg       float64
	aniso    float64
	cosA     float64
	sinA     float64
	rotC     float64
	rotS     float64
	fluxAngX float64
	fluxAngY float64
	swMix    float64
	capture  bool
}

// Step advances every lattice site by one timestep and refreshes the
// telemetry snapshot in place. A pending spec update is applied first, so a
// step always runs under a single coherent spec.
//
// Per site: the coupling field H is the stencil convolution with
// anisotropy-modulated weights, flux-twisted on toroidal wraps, plus the
// optional small-world mean-delta correction. H1 = H·e^{iα} and
// H2 = Z²·conj(H)·e^{-iα} drive the drift -γZ + cg·(H1-H2); the update is
// the exact rotation of Z by ω₀·dt plus Euler drift plus Gaussian noise
// scaled by sqrt(dt·ε) per component.
func (s *State) Step() error {
	if s.closed {
		return ErrClosed
	}
	if ev := s.pending.Swap(nil); ev != nil {
		s.applySpecNow(ev.Spec, ev.Version)
	}

	dt := s.Field.Meta.DT
	p := s.params
	c := stepConsts{
		dt:       dt,
		gamma:    p.Gamma,
		cg:       0.5 * p.K0 * (s.spec.Gain / kernelspec.DefaultGain),
		aniso:    s.spec.Anisotropy,
		cosA:     math.Cos(p.Alpha),
		sinA:     math.Sin(p.Alpha),
		rotC:     math.Cos(p.Omega0 * dt),
		rotS:     math.Sin(p.Omega0 * dt),
		fluxAngX: 2 * math.Pi * p.FluxX,
		fluxAngY: 2 * math.Pi * p.FluxY,
		swMix:    p.SmallWorldWeight * p.PSW,
		capture:  s.Irradiance != nil,
	}

	// The caller's generator is drawn serially before banding: worker
	// goroutines never touch it, and it sees exactly 2n calls per noisy
	// step regardless of worker count.
	sigma := math.Sqrt(dt * p.Eps)
	if sigma > 0 {
		for i := range s.noiseBuf {
			s.noiseBuf[i] = s.noise() * sigma
		}
	} else {
		for i := range s.noiseBuf {
			s.noiseBuf[i] = 0
		}
	}

	for i := range s.bands {
		s.bands[i] = bandStats{}
	}
	rowsPer := (s.Height + s.workers - 1) / s.workers
	var wg sync.WaitGroup
	for b := 0; b < s.workers; b++ {
		y0 := b * rowsPer
		if y0 >= s.Height {
			break
		}
		y1 := y0 + rowsPer
		if y1 > s.Height {
			y1 = s.Height
		}
		wg.Add(1)
		go func(band, y0, y1 int) {
			defer wg.Done()
			s.stepBand(y0, y1, &s.bands[band], &c)
		}(b, y0, y1)
	}
	wg.Wait()

	copy(s.Field.Real, s.nextRe)
	copy(s.Field.Imag, s.nextIm)
	reduceTelemetry(&s.Telemetry, s.bands, s.Width*s.Height)

	ts := s.Field.Meta.Timestamp + dt
	if err := s.Manager.Stamp(s.Field, field.StampOptions{Timestamp: &ts, DT: &dt}); err != nil {
		return err
	}
	s.Telemetry.FrameID = s.Field.Meta.FrameID
	s.Telemetry.Timestamp = ts
	s.Telemetry.DT = dt
	return nil
}

// StepN runs n consecutive steps, stopping at the first error.
func (s *State) StepN(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// stepBand updates rows [y0,y1) into the next buffers and accumulates this
// band's telemetry partials. Bands own disjoint row ranges, so the only
// shared reads are the frozen current planes.
func (s *State) stepBand(y0, y1 int, stats *bandStats, c *stepConsts) {
	w, h := s.Width, s.Height
	re, im := s.Field.Real, s.Field.Imag
	tbl := s.kernel
	r := tbl.Radius
	sw := float64(tbl.SelfWeight)

	for y := y0; y < y1; y++ {
		row := y * w
		interiorY := y >= r && y+r < h
		for x := 0; x < w; x++ {
			idx := row + x
			zr := float64(re[idx])
			zi := float64(im[idx])

			hr := sw * zr
			hi := sw * zi
			if interiorY && x >= r && x+r < w {
				for k := 0; k < len(tbl.Weights); k++ {
					ni := (y+int(tbl.OffsetsY[k]))*w + x + int(tbl.OffsetsX[k])
					wk := float64(tbl.Weights[k]) * (1 + c.aniso*float64(tbl.Orientations[k]))
					hr += wk * float64(re[ni])
					hi += wk * float64(im[ni])
				}
			} else {
				for k := 0; k < len(tbl.Weights); k++ {
					nx := x + int(tbl.OffsetsX[k])
					ny := y + int(tbl.OffsetsY[k])
					wrapX, wrapY := 0, 0
					for nx < 0 {
						nx += w
						wrapX--
					}
					for nx >= w {
						nx -= w
						wrapX++
					}
					for ny < 0 {
						ny += h
						wrapY--
					}
					for ny >= h {
						ny -= h
						wrapY++
					}
					nr := float64(re[ny*w+nx])
					nq := float64(im[ny*w+nx])
					theta := float64(wrapX)*c.fluxAngX + float64(wrapY)*c.fluxAngY
					if theta != 0 {
						tc, tsn := math.Cos(theta), math.Sin(theta)
						nr, nq = nr*tc-nq*tsn, nr*tsn+nq*tc
					}
					wk := float64(tbl.Weights[k]) * (1 + c.aniso*float64(tbl.Orientations[k]))
					hr += wk * nr
					hi += wk * nq
				}
			}

			if s.rewire != nil {
				var dr, di float64
				base := idx * s.rewire.Degree
				for k := 0; k < s.rewire.Degree; k++ {
					t := s.rewire.Targets[base+k]
					dr += float64(re[t]) - zr
					di += float64(im[t]) - zi
				}
				inv := c.swMix / float64(s.rewire.Degree)
				hr += dr * inv
				hi += di * inv
			}

			h1r := hr*c.cosA - hi*c.sinA
			h1i := hr*c.sinA + hi*c.cosA

			z2r := zr*zr - zi*zi
			z2i := 2 * zr * zi
			tr := z2r*hr + z2i*hi
			ti := z2i*hr - z2r*hi
			h2r := tr*c.cosA + ti*c.sinA
			h2i := ti*c.cosA - tr*c.sinA

			dr := -c.gamma*zr + c.cg*(h1r-h2r)
			di := -c.gamma*zi + c.cg*(h1i-h2i)

			nr := zr*c.rotC - zi*c.rotS + c.dt*dr + s.noiseBuf[2*idx]
			nq := zr*c.rotS + zi*c.rotC + c.dt*di + s.noiseBuf[2*idx+1]

			s.nextRe[idx] = float32(nr)
			s.nextIm[idx] = float32(nq)

			a2 := nr*nr + nq*nq
			stats.add(nr, nq, a2)
			if c.capture {
				v := float32(a2)
				s.Irradiance[3*idx+0] = v
				s.Irradiance[3*idx+1] = v
				s.Irradiance[3*idx+2] = v
			}
		}
	}
}
