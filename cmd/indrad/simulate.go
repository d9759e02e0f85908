package main

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
	"github.com/QualiaResearchInstitute/indra/kuramoto"
	"github.com/QualiaResearchInstitute/indra/schedule"
)

const (
	// maxSimCells bounds one batch request's lattice so a single POST cannot
	// pin the daemon's memory.
	maxSimCells = 1 << 21
	maxSimSteps = 20000
)

// simRequest is the body of POST /simulate. Params and Spec are optional
// overrides; Spec is merged over the daemon's live spec snapshot.
type simRequest struct {
	Width             int               `json:"width"`
	Height            int               `json:"height"`
	Steps             int               `json:"steps"`
	Seed              int64             `json:"seed,omitempty"`
	Params            *kuramoto.Params  `json:"params,omitempty"`
	Spec              *kernelspec.Patch `json:"spec,omitempty"`
	Schedule          []schedule.Step   `json:"schedule,omitempty"`
	CaptureIrradiance bool              `json:"captureIrradiance,omitempty"`
}

func (r simRequest) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("lattice %dx%d is not positive", r.Width, r.Height)
	}
	if r.Width*r.Height > maxSimCells {
		return fmt.Errorf("lattice %dx%d exceeds %d cells", r.Width, r.Height, maxSimCells)
	}
	if r.Steps <= 0 {
		return fmt.Errorf("steps %d is not positive", r.Steps)
	}
	if r.Steps > maxSimSteps {
		return fmt.Errorf("steps %d exceeds %d", r.Steps, maxSimSteps)
	}
	return nil
}

// simMetrics are the scalar summaries consumers sweep over.
type simMetrics struct {
	IndraIndex    float64 `json:"indraIndex"`
	RimMean       float64 `json:"rimMean"`
	CoherenceMean float64 `json:"coherenceMean"`
}

// simResult is the batch output: final-step telemetry, summary metrics, and
// optionally the irradiance buffer as base64 binary16.
type simResult struct {
	Telemetry  kuramoto.Telemetry `json:"telemetry"`
	Metrics    simMetrics         `json:"metrics"`
	Irradiance string             `json:"irradiance,omitempty"`
}

// runSimulation steps a fresh lattice to completion. The base spec is the
// caller's live snapshot; a request-level spec patch merges over it.
func runSimulation(req simRequest, base kernelspec.Spec, version uint64, workers int, logger *zap.Logger) (*simResult, error) {
	params := kuramoto.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}
	spec := base
	if req.Spec != nil {
		spec = base.With(*req.Spec)
	}

	st, err := kuramoto.New(kuramoto.Config{
		Width:             req.Width,
		Height:            req.Height,
		Params:            params,
		Spec:              spec,
		SpecVersion:       version,
		NoiseSeed:         req.Seed,
		Workers:           workers,
		Program:           req.Schedule,
		CaptureIrradiance: req.CaptureIrradiance,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	seed := req.Seed
	if seed == 0 {
		seed = 1
	}
	st.InitRandom(seed)

	if err := st.StepN(req.Steps); err != nil {
		return nil, err
	}
	derived, err := st.Derive()
	if err != nil {
		return nil, err
	}

	res := &simResult{
		Telemetry: st.Telemetry,
		Metrics:   metricsFrom(st.Telemetry, derived),
	}
	if req.CaptureIrradiance {
		res.Irradiance = encodeIrradiance(st.Irradiance)
	}
	return res, nil
}

// metricsFrom reduces the final frame to the sweep metrics: mean coherence,
// mean phase-gradient magnitude, and their product with the order parameter.
func metricsFrom(t kuramoto.Telemetry, d *schedule.Derived) simMetrics {
	n := len(d.Coh)
	if n == 0 {
		return simMetrics{}
	}
	var cohSum, rimSum float64
	for i := 0; i < n; i++ {
		cohSum += float64(d.Coh[i])
		gx := float64(d.GradX[i])
		gy := float64(d.GradY[i])
		rimSum += math.Sqrt(gx*gx + gy*gy)
	}
	cohMean := cohSum / float64(n)
	return simMetrics{
		IndraIndex:    t.Order.Magnitude * cohMean,
		RimMean:       rimSum / float64(n),
		CoherenceMean: cohMean,
	}
}

// encodeIrradiance packs the interleaved irradiance samples into binary16
// little-endian bytes and base64s them for the JSON envelope.
func encodeIrradiance(src []float32) string {
	half := make([]uint16, len(src))
	field.EncodeHalf(half, src)
	raw := make([]byte, 2*len(half))
	for i, v := range half {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	return base64.StdEncoding.EncodeToString(raw)
}
