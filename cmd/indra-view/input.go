package main

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

// movementVector returns WASD-based probe movement scaled by moveSpeed.
func (g *Game) movementVector() (float64, float64) {
	dx, dy := 0.0, 0.0
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		dy -= moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		dy += moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		dx -= moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		dx += moveSpeed
	}
	if dx != 0 && dy != 0 {
		dx *= 0.7071
		dy *= 0.7071
	}
	return dx, dy
}

// handleSpecKeys publishes kernel spec edits through the hub. Digits switch
// the coupling preset, vertical arrows trim gain, horizontal arrows trim
// chirality, R reseeds the phase field.
func (g *Game) handleSpecKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit1) {
		g.applyPreset(kernelspec.PresetDMT)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit2) {
		g.applyPreset(kernelspec.PresetGaussian)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit3) {
		g.applyPreset(kernelspec.PresetSurround)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		g.trimSpec(gainTrim, 0)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		g.trimSpec(-gainTrim, 0)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
		g.trimSpec(0, chiralityTrim)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
		g.trimSpec(0, -chiralityTrim)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.state.InitRandom(time.Now().UnixNano())
	}
}

func (g *Game) applyPreset(p kernelspec.Preset) {
	g.hub.Update(kernelspec.Patch{CouplingPreset: &p}, kernelspec.UpdateOptions{Source: "keys"})
}

// trimSpec nudges gain and chirality relative to the active spec. Bounds are
// enforced by spec sanitization on the hub side, so holding a trim key past
// the limit settles at the clamp.
func (g *Game) trimSpec(dGain, dChirality float64) {
	spec, _ := g.state.Spec()
	var patch kernelspec.Patch
	if dGain != 0 {
		v := spec.Gain + dGain
		patch.Gain = &v
	}
	if dChirality != 0 {
		v := spec.Chirality + dChirality
		patch.Chirality = &v
	}
	g.hub.Update(patch, kernelspec.UpdateOptions{Source: "keys"})
}

// handleStepKeys adjusts how many integrator steps run per frame.
func (g *Game) handleStepKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		g.adjustStepMultiplier(-stepMultiplierStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.adjustStepMultiplier(stepMultiplierStep)
	}
}

// adjustStepMultiplier clamps the per-frame step count delta within bounds.
func (g *Game) adjustStepMultiplier(delta int) {
	g.stepMultiplier += delta
	if g.stepMultiplier < minStepMultiplier {
		g.stepMultiplier = minStepMultiplier
	} else if g.stepMultiplier > maxStepMultiplier {
		g.stepMultiplier = maxStepMultiplier
	}
}

// stepsPerSecond returns the nominal integrator steps executed each second.
func (g *Game) stepsPerSecond() float64 {
	return defaultTPS * float64(g.stepMultiplier)
}
