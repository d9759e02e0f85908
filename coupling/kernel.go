// Package coupling derives the discretized interaction structures the
// integrator reads: a difference-of-Gaussians stencil table and a seeded
// small-world rewiring table. Both are pure functions of their parameters,
// memoized process-wide under canonical string keys; racing builders for a
// missing key are serialized by a mutex.
package coupling

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// pruneThreshold drops stencil entries whose weight magnitude is too small
// to influence the field.
const pruneThreshold = 1e-5

// Table is an immutable coupling stencil. The parallel slices list every
// retained offset with its weight and its orientation scalar
// (dx²-dy²)/(dx²+dy²); the center cell is carried separately as SelfWeight
// and has orientation 0 by definition.
type Table struct {
	Key          string
	Params       kernelspec.CouplingKernelParams
	Radius       int
	SelfWeight   float32
	OffsetsX     []int32
	OffsetsY     []int32
	Weights      []float32
	Orientations []float32
}

// Len returns the number of retained off-center stencil entries.
func (t *Table) Len() int {
	return len(t.Weights)
}

var (
	kernelMu    sync.Mutex
	kernelCache = map[string]*Table{}
)

// KernelTable returns the memoized stencil for the given parameters,
// building and caching it on first use. Identical parameter records always
// yield tables with identical keys, and in practice the same table value.
func KernelTable(params kernelspec.CouplingKernelParams) *Table {
	params = params.Sanitize()
	key := kernelKey(params)
	kernelMu.Lock()
	defer kernelMu.Unlock()
	if tbl, ok := kernelCache[key]; ok {
		return tbl
	}
	tbl := buildKernelTable(key, params)
	kernelCache[key] = tbl
	return tbl
}

func kernelKey(p kernelspec.CouplingKernelParams) string {
	return fmt.Sprintf("%s|r=%d|ns=%.9g|ng=%.9g|fs=%.9g|fg=%.9g|bg=%.9g|norm=%s",
		p.Preset, p.Radius, p.NearSigma, p.NearGain, p.FarSigma, p.FarGain, p.BaseGain,
		p.Normalization)
}

// buildKernelTable enumerates the (2r+1)² window around the center the way
// a circular footprint precompute does, evaluating the difference of
// Gaussians at each offset's Euclidean distance.
func buildKernelTable(key string, p kernelspec.CouplingKernelParams) *Table {
	r := p.Radius
	cells := (2*r+1)*(2*r+1) - 1

	offsX := make([]int32, 0, cells)
	offsY := make([]int32, 0, cells)
	weights := make([]float64, 0, cells)
	orients := make([]float32, 0, cells)

	self := kernelWeight(p, 0)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d2 := float64(dx*dx + dy*dy)
			w := kernelWeight(p, math.Sqrt(d2))
			if math.Abs(w) < pruneThreshold {
				continue
			}
			offsX = append(offsX, int32(dx))
			offsY = append(offsY, int32(dy))
			weights = append(weights, w)
			orients = append(orients, float32((float64(dx*dx)-float64(dy*dy))/d2))
		}
	}

	if p.Normalization == kernelspec.NormalizeL1 {
		mass := floats.Norm(weights, 1) + math.Abs(self)
		// Zero kernel mass is a designed degenerate state; leave the raw
		// weights in place rather than dividing by zero.
		if mass > 0 {
			floats.Scale(1/mass, weights)
			self /= mass
		}
	}

	tbl := &Table{
		Key:          key,
		Params:       p,
		Radius:       r,
		SelfWeight:   float32(self),
		OffsetsX:     offsX,
		OffsetsY:     offsY,
		Weights:      make([]float32, len(weights)),
		Orientations: orients,
	}
	for i, w := range weights {
		tbl.Weights[i] = float32(w)
	}
	return tbl
}

// kernelWeight evaluates the profile at Euclidean distance d: the baseline
// plus the far Gaussian minus the near Gaussian, each lobe zeroed beyond the
// radius or when its sigma is non-positive.
func kernelWeight(p kernelspec.CouplingKernelParams, d float64) float64 {
	w := p.BaseGain
	if d <= float64(p.Radius) {
		if p.FarSigma > 0 {
			w += p.FarGain * math.Exp(-d*d/(2*p.FarSigma*p.FarSigma))
		}
		if p.NearSigma > 0 {
			w -= p.NearGain * math.Exp(-d*d/(2*p.NearSigma*p.NearSigma))
		}
	}
	return w
}
