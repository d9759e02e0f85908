package main

import (
	"flag"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// Command-line flags that control the lattice, rendering, and runtime
// behavior of the viewer.
var (
	widthFlag  = flag.Int("width", defaultSize, "lattice width in sites")
	heightFlag = flag.Int("height", defaultSize, "lattice height in sites")

	// seedFlag fixes the initial random phase field for reproducible runs.
	seedFlag = flag.Int64("seed", 1, "seed for the initial phase field")

	presetFlag  = flag.String("preset", string(kernelspec.DefaultPreset), "initial coupling preset (dmt, gaussian, surround)")
	workersFlag = flag.Int("workers", 0, "integrator worker count (0 = one per CPU)")

	// debugFlag enables the FPS and telemetry overlay.
	debugFlag = flag.Bool("debug", false, "show FPS and telemetry overlay")

	// cpuProfileFlag records a CPU profile for the whole session.
	cpuProfileFlag = flag.String("cpuprofile", "", "write a CPU profile to this path")

	verboseFlag = flag.Bool("verbose", false, "enable debug logging")
)
