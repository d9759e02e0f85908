// Package indra implements the coupled-oscillator wavefield core of a
// real-time optical synthesizer.
//
// The engine advances a toroidal lattice of complex oscillators under a
// Kuramoto-Sakaguchi update with difference-of-Gaussians spatial coupling,
// optional small-world rewiring, anisotropic weight modulation, and
// toroidal flux twists, and derives the irradiance, telemetry, and phase
// overlay buffers that presentation layers consume. Nothing in here
// rasterizes, composits, or encodes video; consumers read the buffers the
// integrator publishes.
//
// # Package Structure
//
//   - kernelspec: validated coupling-kernel configuration, presets, and the
//     coalescing pub/sub hub that distributes versioned spec updates
//   - field: pooled complex field frames with ownership, metadata stamping,
//     phase alignment, and binary16 ingest
//   - coupling: cached difference-of-Gaussians stencils and small-world
//     rewiring tables keyed by canonical parameter strings
//   - schedule: the declarative thin-element operator schedule, including
//     beam-split branch/recombine execution
//   - kuramoto: the stochastic per-step integrator tying the above together
//   - cmd/indrad: REST daemon exposing spec editing and batch simulation
//   - cmd/indra-view: interactive lattice viewer
//
// # Basic Usage
//
//	state, err := kuramoto.New(kuramoto.Config{
//		Width:  256,
//		Height: 256,
//		Params: kuramoto.DefaultParams(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer state.Close()
//
//	state.InitRandom(1)
//	for running {
//		if err := state.Step(); err != nil {
//			log.Fatal(err)
//		}
//		consume(state.Telemetry, state.Irradiance)
//	}
package indra
