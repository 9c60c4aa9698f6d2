package core

import "math"

const (
	markerMinPx  = 6.0
	markerMaxPx  = 20.0
	markerScaleM = 1e6
	markerBasePx = 12.0
)

// MarkerPixelSize maps camera-to-marker distance in metres to an on-screen
// marker size: 12·1e6/(d+1e6), clamped to [6, 20].
func MarkerPixelSize(distanceM float64) float64 {
	if math.IsNaN(distanceM) {
		return markerBasePx
	}
	denom := distanceM + markerScaleM
	if denom == 0 {
		return markerMaxPx
	}
	return math.Min(markerMaxPx, math.Max(markerMinPx, markerBasePx*markerScaleM/denom))
}
