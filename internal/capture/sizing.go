package capture

import "math"

// EvenAlign rounds x to the nearest integer, then down to an even
// integer, with a floor of 2, per
// spec §4.4: even_align(x) = max(2, floor(round(x)/2)*2).
func EvenAlign(x float64) int {
	r := math.Round(x)
	v := int(math.Floor(r/2)) * 2
	if v < 2 {
		return 2
	}
	return v
}

// OutputSize computes the engine's target output dimensions from the
// window size, host scale factor, and output_scale, per spec §4.4.
func OutputSize(windowWidth, windowHeight, hostScale, outputScale float64) (width, height int) {
	width = EvenAlign(windowWidth * hostScale * outputScale)
	height = EvenAlign(windowHeight * hostScale * outputScale)
	return width, height
}

func fpsBucket(fps float64) int {
	switch {
	case fps >= 120:
		return 0
	case fps >= 60:
		return 1
	default:
		return 2
	}
}

var queueDepthTable = [3][3]int{
	// lowestLatency, balanced, smoothest
	{6, 8, 12},  // >=120fps
	{4, 6, 10},  // >=60fps
	{3, 4, 8},   // else
}

// QueueDepth returns the queue-depth hint for (latencyMode, fps), per the
// table in spec §4.4.
func QueueDepth(mode LatencyMode, fps float64) int {
	return queueDepthTable[fpsBucket(fps)][mode]
}

var poolExtraTable = [3][3]int{
	{2, 3, 4}, // >=120fps
	{2, 3, 5},
	{3, 4, 6}, // else
}

// PoolMinimum returns max(6, queue_depth + extra) for (latencyMode, fps),
// per spec §4.4.
func PoolMinimum(mode LatencyMode, fps float64) int {
	depth := QueueDepth(mode, fps)
	extra := poolExtraTable[fpsBucket(fps)][mode]
	min := depth + extra
	if min < 6 {
		return 6
	}
	return min
}

// FrameGapThresholdSeconds returns the watchdog's fallback-mode gap threshold for
// the given frame rate, per spec §4.4.
func FrameGapThresholdSeconds(fps float64) float64 {
	switch {
	case fps >= 120:
		return 0.18
	case fps >= 60:
		return 0.30
	case fps >= 30:
		return 0.50
	default:
		return 1.5
	}
}

// StallThresholdSeconds returns the watchdog's restart-triggering gap
// threshold for the given frame rate, per spec §4.4.
func StallThresholdSeconds(fps float64) float64 {
	switch {
	case fps >= 120:
		return 2.5
	case fps >= 60:
		return 2.0
	case fps >= 30:
		return 2.5
	default:
		return 4.0
	}
}

// KeyframeThresholdSeconds is the fallback duration beyond which a resumed
// frame must request a keyframe, per spec §4.4.
const KeyframeThresholdSeconds = 0.350

// DimensionChangeSignificant reports whether a dimension change from
// (oldW, oldH) to (newW, newH) crosses the significance threshold used by
// §4.4 (capture) and §4.7 (client resize): at least 2% or 20 px in either
// dimension.
func DimensionChangeSignificant(oldW, oldH, newW, newH int) bool {
	return dimDelta(oldW, newW) || dimDelta(oldH, newH)
}

func dimDelta(old, new_ int) bool {
	if old == 0 {
		return new_ != 0
	}
	diff := math.Abs(float64(new_ - old))
	if diff >= 20 {
		return true
	}
	return diff/float64(old) >= 0.02
}
