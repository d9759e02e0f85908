package main

// Lattice, probe, and interaction constants for the viewer. The lattice
// dimensions themselves come from flags; these govern timing and key
// increments.
const (
	defaultSize  = 256
	windowScale  = 2
	probeRad     = 3
	moveSpeed    = 2
	imprintDelay = 60 / 4
	defaultTPS   = 60.0

	defaultStepMultiplier = 2
	stepMultiplierStep    = 1
	minStepMultiplier     = 1
	maxStepMultiplier     = 64

	gainTrim      = 0.05
	chiralityTrim = 0.05
)
