package main

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// Draw renders the irradiance field, the probe marker, and the optional
// telemetry overlay.
func (g *Game) Draw(screen *ebiten.Image) {
	fillIrradiancePixels(g.pixels, g.state.Irradiance)
	screen.WritePixels(g.pixels)

	g.drawProbe(screen)

	if *debugFlag {
		t := g.state.Telemetry
		spec, version := g.state.Spec()
		msg := fmt.Sprintf("FPS: %.1f\nSteps: %d/frame, %.0f/s (+/-)\nOrder: %.3f at %.2f rad (%d live)\nSpec v%d: %s gain %.2f chi %.2f\nStep: %.2f ms",
			ebiten.ActualFPS(), g.stepMultiplier, g.stepsPerSecond(),
			t.Order.Magnitude, t.Order.Phase, t.Order.SampleCount,
			version, spec.CouplingPreset, spec.Gain, spec.Chirality,
			g.lastStepDuration.Seconds()*1000)
		ebitenutil.DebugPrint(screen, msg)
	}
}

// Layout reports the logical screen size used by Ebiten.
func (g *Game) Layout(_, _ int) (int, int) { return g.state.Width, g.state.Height }

// fillIrradiancePixels maps the first irradiance channel of each site to a
// grayscale RGBA buffer. The capture interleaves three channels per site.
func fillIrradiancePixels(dst []byte, irr []float32) {
	n := len(dst) / 4
	for i := 0; i < n; i++ {
		v := irr[3*i]
		if v > 1 {
			v = 1
		}
		intensity := byte(v * 255)
		base := i * 4
		dst[base] = intensity
		dst[base+1] = intensity
		dst[base+2] = intensity
		dst[base+3] = 255
	}
}

// drawProbe renders the probe as a filled square.
func (g *Game) drawProbe(screen *ebiten.Image) {
	w, h := g.state.Width, g.state.Height
	for y := -probeRad; y <= probeRad; y++ {
		for x := -probeRad; x <= probeRad; x++ {
			cx := int(g.px) + x
			cy := int(g.py) + y
			if cx >= 0 && cx < w && cy >= 0 && cy < h {
				screen.Set(cx, cy, color.RGBA{255, 0, 0, 255})
			}
		}
	}
}
