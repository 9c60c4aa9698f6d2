package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orbit-tracker/model"
)

// WGS-84 ellipsoid and Earth rotation constants.
const (
	WGS84SemiMajorKm  = 6378.137
	WGS84Flattening   = 1.0 / 298.257223563
	wgs84Ecc2         = WGS84Flattening * (2 - WGS84Flattening)
	EarthRotationRads = 7.292115146706979e-5

	secondsPerDay = 86400.0
)

// JulianDate converts t to a Julian date at nanosecond resolution.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + float64(t.Day()) + b - 1524.5
	secs := float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
	return jd + secs/secondsPerDay
}

// SiderealTime returns Greenwich mean sidereal time (IAU-82) in radians,
// normalised to [0, 2π). UT1 is taken to equal UTC.
func SiderealTime(at time.Time) float64 {
	gmst := math.Mod(satellite.ThetaG_JD(JulianDate(at)), 2*math.Pi)
	if gmst < 0 {
		gmst += 2 * math.Pi
	}
	return gmst
}

// InertialToFixed rotates an inertial position into the Earth-fixed frame
// for the given sidereal angle. Units are preserved.
func InertialToFixed(pos model.Vec3, gmst float64) model.Vec3 {
	f := satellite.ECIToECEF(satellite.Vector3{X: pos.X, Y: pos.Y, Z: pos.Z}, gmst)
	return model.Vec3{X: f.X, Y: f.Y, Z: f.Z}
}

// InertialToFixedState rotates both vectors of a state and removes the
// Earth-rotation term ω×r from the velocity. Units are km and km/s.
func InertialToFixedState(sv model.StateVector, gmst float64) model.StateVector {
	r := InertialToFixed(sv.Position, gmst)
	v := InertialToFixed(sv.Velocity, gmst)
	v.X += EarthRotationRads * r.Y
	v.Y -= EarthRotationRads * r.X
	return model.StateVector{Time: sv.Time, Position: r, Velocity: v}
}

// FixedToGeodetic converts an Earth-fixed position in km to WGS-84 geodetic
// coordinates. Latitude is refined iteratively; height is returned in metres.
func FixedToGeodetic(pos model.Vec3) model.GeodeticPoint {
	x, y, z := pos.X, pos.Y, pos.Z
	p := math.Hypot(x, y)
	lon := math.Atan2(y, x)

	lat := math.Atan2(z, p*(1-wgs84Ecc2))
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := WGS84SemiMajorKm / math.Sqrt(1-wgs84Ecc2*sinLat*sinLat)
		next := math.Atan2(z+wgs84Ecc2*n*sinLat, p)
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := WGS84SemiMajorKm / math.Sqrt(1-wgs84Ecc2*sinLat*sinLat)
	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = p/cosLat - n
	} else {
		// at the poles
		h = math.Abs(z)/math.Abs(sinLat) - n*(1-wgs84Ecc2)
	}

	return model.GeodeticPoint{
		Longitude: normalizeLongitude(lon * 180 / math.Pi),
		Latitude:  lat * 180 / math.Pi,
		Height:    h * 1000,
	}
}

// GeodeticToFixed is the inverse of FixedToGeodetic: degrees and metres in,
// km out.
func GeodeticToFixed(g model.GeodeticPoint) model.Vec3 {
	lat := g.Latitude * math.Pi / 180
	lon := g.Longitude * math.Pi / 180
	h := g.Height / 1000

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := WGS84SemiMajorKm / math.Sqrt(1-wgs84Ecc2*sinLat*sinLat)
	return model.Vec3{
		X: (n + h) * cosLat * math.Cos(lon),
		Y: (n + h) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84Ecc2) + h) * sinLat,
	}
}

func normalizeLongitude(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}
