package model

import (
	"math"
	"time"
)

// MinutesPerDay is used to convert TLE rev/day rates to per-minute rates.
const MinutesPerDay = 1440.0

// OrbitalElements is the decoded content of a validated TLE pair.
//
// Angles are degrees, mean motion is revolutions per day and the drag term
// is in inverse Earth radii, exactly as they appear in the element set.
// Values are only ever produced by tle.Parse; a zero OrbitalElements is not
// a usable element set.
type OrbitalElements struct {
	CatalogNumber  int
	Classification byte
	Designator     string // international designator, e.g. "98067A"
	Epoch          time.Time
	MeanMotionDot  float64 // first derivative / 2, rev/day^2
	MeanMotionDDot float64 // second derivative / 6, rev/day^3
	BStar          float64
	EphemerisType  int
	ElementSetNo   int
	Inclination    float64
	RightAscension float64
	Eccentricity   float64
	ArgOfPerigee   float64
	MeanAnomaly    float64
	MeanMotion     float64
	RevolutionNo   int
	Line1Checksum  int
	Line2Checksum  int

	// Line1 and Line2 are the trimmed source lines the record was built from.
	Line1 string
	Line2 string
}

// MeanMotionRadPerMin converts the mean motion to radians per minute.
func (e OrbitalElements) MeanMotionRadPerMin() float64 {
	return e.MeanMotion * 2 * math.Pi / MinutesPerDay
}

// StateVector is a propagated position (km) and velocity (km/s) in the
// Earth-centred inertial (TEME) frame.
type StateVector struct {
	Time     time.Time
	Position Vec3
	Velocity Vec3
}

// GeodeticPoint is a position relative to the WGS-84 ellipsoid.
type GeodeticPoint struct {
	Longitude float64 // degrees, [-180, 180]
	Latitude  float64 // degrees, [-90, 90]
	Height    float64 // metres above the ellipsoid
}

// PathPoint is one sampled instant of a predicted ground track.
type PathPoint struct {
	Time time.Time
	GeodeticPoint
}

// PathSample is a predicted orbit arc ordered by strictly increasing time.
type PathSample []PathPoint

// Clone returns an independent copy of the path.
func (p PathSample) Clone() PathSample {
	if p == nil {
		return nil
	}
	out := make(PathSample, len(p))
	copy(out, p)
	return out
}
