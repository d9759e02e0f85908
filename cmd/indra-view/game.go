package main

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
	"github.com/QualiaResearchInstitute/indra/kuramoto"
)

// Game owns the live lattice, the spec hub the key bindings publish through,
// and the rendering buffer.
type Game struct {
	state  *kuramoto.State
	hub    *kernelspec.Hub
	detach func()

	px, py       float64
	imprintTimer int

	stepMultiplier   int
	lastStepDuration time.Duration

	pixels      []byte
	logger      *zap.Logger
	stopProfile func()
}

type gridOffset struct {
	dx int
	dy int
}

var probeFootprint = precomputeProbeFootprint(probeRad)

func precomputeProbeFootprint(radius int) []gridOffset {
	footprint := make([]gridOffset, 0, (2*radius+1)*(2*radius+1))
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= r2 {
				footprint = append(footprint, gridOffset{dx: x, dy: y})
			}
		}
	}
	return footprint
}

// newGame builds and seeds the lattice and wires the spec hub.
func newGame(logger *zap.Logger) (*Game, error) {
	preset := kernelspec.Preset(*presetFlag)
	if !preset.Known() {
		logger.Warn("unknown preset, using default", zap.String("preset", *presetFlag))
		preset = kernelspec.DefaultPreset
	}

	state, err := kuramoto.New(kuramoto.Config{
		Width:             *widthFlag,
		Height:            *heightFlag,
		Params:            kuramoto.DefaultParams(),
		Workers:           *workersFlag,
		CaptureIrradiance: true,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	state.InitRandom(*seedFlag)

	hub := kernelspec.NewHub(kernelspec.HubConfig{
		Initial: kernelspec.Patch{CouplingPreset: &preset},
		Logger:  logger,
	})

	g := &Game{
		state:          state,
		hub:            hub,
		px:             float64(state.Width / 2),
		py:             float64(state.Height / 2),
		stepMultiplier: defaultStepMultiplier,
		pixels:         make([]byte, state.Width*state.Height*4),
		logger:         logger,
	}
	g.detach = state.Attach(hub)

	if *cpuProfileFlag != "" {
		stop, err := startCPUProfile(*cpuProfileFlag)
		if err != nil {
			logger.Warn("CPU profile not started", zap.Error(err))
		} else {
			g.stopProfile = stop
		}
	}
	return g, nil
}

// Update moves the probe, applies key bindings, and advances the lattice.
func (g *Game) Update() error {
	dx, dy := g.movementVector()
	w, h := g.state.Width, g.state.Height
	g.px = math.Max(probeRad, math.Min(float64(w-probeRad-1), g.px+dx))
	g.py = math.Max(probeRad, math.Min(float64(h-probeRad-1), g.py+dy))

	g.handleSpecKeys()
	g.handleStepKeys()

	moving := dx != 0 || dy != 0
	if moving {
		g.imprintTimer++
		if g.imprintTimer >= imprintDelay {
			g.imprintTimer = 0
			g.imprintVortex(int(g.px), int(g.py))
		}
	} else {
		g.imprintTimer = imprintDelay
	}

	start := time.Now()
	if err := g.state.StepN(g.stepMultiplier); err != nil {
		return err
	}
	g.lastStepDuration = time.Since(start)
	return nil
}

// imprintVortex stamps a unit-amplitude phase winding centered on the probe.
// The lattice relaxes around the planted defect over the following steps.
func (g *Game) imprintVortex(cx, cy int) {
	f := g.state.Field
	w, h := g.state.Width, g.state.Height
	for _, off := range probeFootprint {
		x := cx + off.dx
		y := cy + off.dy
		if x < 0 || x >= w || y < 0 || y >= h {
			continue
		}
		theta := math.Atan2(float64(off.dy), float64(off.dx))
		idx := y*w + x
		f.Real[idx] = float32(math.Cos(theta))
		f.Imag[idx] = float32(math.Sin(theta))
	}
}

// shutdown releases the lattice and stops profiling after the game loop
// exits.
func (g *Game) shutdown() {
	if g.stopProfile != nil {
		g.stopProfile()
	}
	if g.detach != nil {
		g.detach()
	}
	g.hub.Close()
	if err := g.state.Close(); err != nil {
		g.logger.Warn("lattice close failed", zap.Error(err))
	}
}
