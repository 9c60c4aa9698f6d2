package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/orbit-tracker/model"
)

// FallbackPeriodMinutes is used when the element set yields no usable period.
const FallbackPeriodMinutes = 90.0

const (
	minPathDuration = 600 * time.Second
	minPathStep     = 5 * time.Second
	pathSegments    = 240

	// maxPathSeconds is the longest whole-second span a time.Duration holds.
	maxPathSeconds = float64(math.MaxInt64 / int64(time.Second))
)

// OrbitalPeriodMinutes is one revolution in minutes derived from the mean
// motion. Zero, negative or non-finite results fall back to 90 minutes.
func OrbitalPeriodMinutes(el model.OrbitalElements) float64 {
	period := 1 / (el.MeanMotionRadPerMin() / (2 * math.Pi))
	if math.IsNaN(period) || math.IsInf(period, 0) || period <= 0 {
		return FallbackPeriodMinutes
	}
	return period
}

// SamplePolicy is the step and span of the path drawn for one satellite.
type SamplePolicy struct {
	Step     time.Duration
	Duration time.Duration
}

// PolicyForPeriod covers one revolution (at least ten minutes) with about
// 240 segments, never finer than five seconds. Spans beyond what a
// time.Duration holds are capped.
func PolicyForPeriod(periodMinutes float64) SamplePolicy {
	if math.IsNaN(periodMinutes) || math.IsInf(periodMinutes, 0) || periodMinutes <= 0 {
		periodMinutes = FallbackPeriodMinutes
	}
	secs := math.Min(math.Max(math.Round(periodMinutes*60), minPathDuration.Seconds()), maxPathSeconds)
	step := math.Max(math.Round(secs/pathSegments), minPathStep.Seconds())
	return SamplePolicy{
		Step:     time.Duration(step) * time.Second,
		Duration: time.Duration(secs) * time.Second,
	}
}
