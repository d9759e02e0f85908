package kuramoto

import (
	"math"
	"math/cmplx"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// Sites with squared amplitude below amplitudeFloor are dead: they carry no
// usable phase and are excluded from the order parameter.
const amplitudeFloor = 1e-12

// OrderParameter is the Kuramoto order parameter of the live sites,
// r·e^{iψ} = mean of Z/|Z|.
type OrderParameter struct {
	Magnitude   float64 `json:"magnitude"`
	Phase       float64 `json:"phase"`
	Real        float64 `json:"real"`
	Imag        float64 `json:"imag"`
	SampleCount int     `json:"sampleCount"`
}

// Interference summarizes the squared-amplitude (irradiance) distribution of
// the lattice after a step.
type Interference struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Max      float64 `json:"max"`
}

// Telemetry is the per-step record the engine rewrites in place. Callers that
// need history copy it out between steps.
type Telemetry struct {
	FrameID       int64           `json:"frameId"`
	Timestamp     float64         `json:"timestamp"`
	DT            float64         `json:"dt"`
	KernelVersion uint64          `json:"kernelVersion"`
	Kernel        kernelspec.Spec `json:"kernel"`
	Order         OrderParameter  `json:"order"`
	Interference  Interference    `json:"interference"`
}

// bandStats is one worker band's contribution to the step telemetry.
// The reduce step sums bands serially, so no atomics are needed.
type bandStats struct {
	unitRe float64
	unitIm float64
	count  int
	sumA2  float64
	sumA4  float64
	maxA2  float64
}

// add records one site's updated value; a2 is its squared amplitude.
func (b *bandStats) add(re, im, a2 float64) {
	b.sumA2 += a2
	b.sumA4 += a2 * a2
	if a2 > b.maxA2 {
		b.maxA2 = a2
	}
	if a2 < amplitudeFloor {
		return
	}
	a := math.Sqrt(a2)
	b.unitRe += re / a
	b.unitIm += im / a
	b.count++
}

func reduceTelemetry(t *Telemetry, bands []bandStats, samples int) {
	var agg bandStats
	for i := range bands {
		agg.unitRe += bands[i].unitRe
		agg.unitIm += bands[i].unitIm
		agg.count += bands[i].count
		agg.sumA2 += bands[i].sumA2
		agg.sumA4 += bands[i].sumA4
		if bands[i].maxA2 > agg.maxA2 {
			agg.maxA2 = bands[i].maxA2
		}
	}
	t.Order = OrderParameter{SampleCount: agg.count}
	if agg.count > 0 {
		re := agg.unitRe / float64(agg.count)
		im := agg.unitIm / float64(agg.count)
		t.Order.Real = re
		t.Order.Imag = im
		t.Order.Magnitude, t.Order.Phase = cmplx.Polar(complex(re, im))
	}
	t.Interference = Interference{Max: agg.maxA2}
	if samples > 0 {
		mean := agg.sumA2 / float64(samples)
		t.Interference.Mean = mean
		variance := agg.sumA4/float64(samples) - mean*mean
		if variance < 0 {
			variance = 0
		}
		t.Interference.Variance = variance
	}
}
