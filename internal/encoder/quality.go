package encoder

import "math"

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MapQuality implements spec §4.6's quality mapping: for q in [0.02, 1.0],
// q >= 0.98 targets quality alone; otherwise a QP range is also derived.
func MapQuality(q float64) QualitySettings {
	if q >= 0.98 {
		return QualitySettings{Quality: q, QualityOnly: true}
	}
	minQP := clampInt(int(math.Round(10+(1-q)*36)), 10, 46)
	maxQP := minQP + 12
	if maxQP > 51 {
		maxQP = 51
	}
	return QualitySettings{Quality: q, MinQP: minQP, MaxQP: maxQP}
}

// BitrateWindowSeconds returns the data-rate-limit window for fps, used
// when a max_bitrate cap is configured, per spec §4.6.
func BitrateWindowSeconds(fps float64) float64 {
	if fps >= 120 {
		return 0.25
	}
	return 0.5
}

// MaxFrameDelayCount returns the encoder's reorder-buffer depth for a
// latency preset, per spec §4.6. mode must be one of the three values in
// capture.LatencyMode's numeric space (0=lowestLatency, 1=balanced,
// 2=smoothest); encoder avoids importing capture to stay leaf-level, so
// callers pass the already-resolved int.
func MaxFrameDelayCount(mode int) int {
	switch mode {
	case 0:
		return 0
	case 1:
		return 1
	default:
		return 2
	}
}

// KeyframeIntervalFrames returns max(1, round(fps * intervalSeconds)), the
// frame-count form of a keyframe interval expressed in seconds.
func KeyframeIntervalFrames(fps, intervalSeconds float64) int {
	n := int(math.Round(fps * intervalSeconds))
	if n < 1 {
		return 1
	}
	return n
}

// KeyframeIntervalSeconds returns max(1, frames/fps), the seconds form of
// a keyframe interval expressed in frames, per spec §4.6.
func KeyframeIntervalSeconds(frames int, fps float64) float64 {
	if fps <= 0 {
		fps = 30
	}
	sec := float64(frames) / fps
	if sec < 1 {
		return 1
	}
	return sec
}

// ProfileFor returns Main10 for 10-bit pixel formats and Main otherwise,
// per spec §4.6.
func ProfileFor(bitDepth10 bool) Profile {
	if bitDepth10 {
		return ProfileMain10
	}
	return ProfileMain
}
