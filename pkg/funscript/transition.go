package funscript

import "math"

const (
	// Blend length bounds. A blend is a tenth of the incoming script, held
	// inside these bounds so short scripts still ramp while long scripts
	// don't wander for seconds before real playback begins.
	minBlendMs = 200
	maxBlendMs = 1000

	// blendStepMs is the sample spacing of synthesized ramp actions.
	blendStepMs = 100
)

// BlendDuration returns the transition ramp length for a script of the given
// duration: a tenth of the script, clamped to [200ms, 1000ms].
func BlendDuration(scriptDurationMs int64) int64 {
	d := scriptDurationMs / 10
	if d < minBlendMs {
		return minBlendMs
	}
	if d > maxBlendMs {
		return maxBlendMs
	}
	return d
}

// BlendInto builds the script played when one track hands off to another: an
// eased ramp from fromPos to the incoming script's first position, followed by
// the incoming actions shifted past the ramp. The device never jump-cuts
// between unrelated positions.
func BlendInto(fromPos int, incoming *Script, easingType EasingType) *Script {
	if len(incoming.Actions) == 0 {
		return incoming.Shift(0)
	}

	blendMs := BlendDuration(incoming.DurationMs())
	from := float64(clampPos(fromPos))
	to := float64(incoming.FirstPos())

	// Ramp samples stop one step short of blendMs so the shifted incoming
	// track starts strictly after them.
	steps := int(blendMs / blendStepMs)
	ramp := make([]Action, 0, steps)
	for i := 0; i < steps; i++ {
		progress := float64(i) / float64(steps)
		pos := Interpolate(from, to, progress, easingType)
		ramp = append(ramp, Action{
			At:  int64(i) * blendStepMs,
			Pos: clampPos(int(math.Round(pos))),
		})
	}

	out := incoming.Shift(blendMs)
	out.Actions = append(ramp, out.Actions...)
	return out
}
