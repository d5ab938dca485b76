package funscript

import "math"

// EasingType selects the curve used for synthesized motion.
type EasingType string

const (
	// EasingLinear moves at a constant rate.
	EasingLinear EasingType = "LINEAR"
	// EasingInOutSine accelerates and decelerates gently.
	EasingInOutSine EasingType = "EASE_IN_OUT_SINE"
	// EasingInOutCubic accelerates and decelerates steeply.
	EasingInOutCubic EasingType = "EASE_IN_OUT_CUBIC"
)

// ApplyEasing maps a linear progress value (0-1) onto the easing curve.
func ApplyEasing(progress float64, easingType EasingType) float64 {
	switch easingType {
	case EasingLinear:
		return progress

	case EasingInOutSine:
		return -(math.Cos(math.Pi*progress) - 1) / 2

	case EasingInOutCubic:
		if progress < 0.5 {
			return 4 * progress * progress * progress
		}
		temp := -2*progress + 2
		return 1 - temp*temp*temp/2

	default:
		return progress
	}
}

// Interpolate calculates an eased value between start and end at the given
// progress. An empty easing type falls back to EasingInOutSine.
func Interpolate(start, end, progress float64, easingType EasingType) float64 {
	if easingType == "" {
		easingType = EasingInOutSine
	}
	return start + (end-start)*ApplyEasing(progress, easingType)
}
