package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orbit-tracker/model"
)

const (
	// EarthEquatorialRadiusKm is the WGS-72 equatorial radius. A propagated
	// position inside it is reported as decayed.
	EarthEquatorialRadiusKm = 6378.135

	// earthMuKm3s2 is the WGS-72 gravitational parameter, used for the
	// sub-second two-body step.
	earthMuKm3s2 = 398600.8

	// sgp4Decayed is the library's error code for a decayed orbit.
	sgp4Decayed = 6
)

// Propagator yields the inertial (TEME) state of one satellite at an instant.
// Implementations must be safe for concurrent use.
type Propagator interface {
	Propagate(at time.Time) (model.StateVector, error)
}

// Gravity selects the geopotential constants the SGP4 model is run with.
type Gravity int

const (
	// GravityWGS72 is what NORAD element sets are fitted with.
	GravityWGS72 Gravity = iota
	GravityWGS84
)

func (g Gravity) String() string {
	switch g {
	case GravityWGS72:
		return "wgs72"
	case GravityWGS84:
		return "wgs84"
	default:
		return "Gravity(" + strconv.Itoa(int(g)) + ")"
	}
}

// ParseGravity maps "wgs72" / "wgs84" (case-insensitive) to a Gravity.
func ParseGravity(s string) (Gravity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wgs72":
		return GravityWGS72, nil
	case "wgs84":
		return GravityWGS84, nil
	default:
		return 0, fmt.Errorf("unknown gravity model %q", s)
	}
}

func (g Gravity) library() satellite.Gravity {
	if g == GravityWGS84 {
		return satellite.GravityWGS84
	}
	return satellite.GravityWGS72
}

// PropagatorOption configures an SGP4Propagator.
type PropagatorOption func(*SGP4Propagator)

// WithGravity overrides the default WGS-72 constants.
func WithGravity(g Gravity) PropagatorOption {
	return func(p *SGP4Propagator) {
		p.gravity = g
	}
}

// SGP4Propagator runs SGP4/SDP4 through go-satellite. Near-earth versus
// deep-space handling is chosen by the library from the mean motion.
//
// go-satellite only works in whole seconds: it truncates the element epoch
// when initialising and takes whole-second query instants. The propagator
// shifts each query by the truncated part of the epoch, propagates at the
// floor second and closes the remaining fraction with a two-body step.
type SGP4Propagator struct {
	elements model.OrbitalElements
	gravity  Gravity

	// read-only after construction; satellite.Propagate takes it by value
	sat         satellite.Satellite
	epochOffset time.Duration

	// SGP4 error code from initialisation; non-zero fails every instant
	initCode int64
}

// NewSGP4Propagator initialises SGP4 for el. el must come from tle.Parse.
func NewSGP4Propagator(el model.OrbitalElements, opts ...PropagatorOption) (*SGP4Propagator, error) {
	p := &SGP4Propagator{elements: el}
	for _, opt := range opts {
		opt(p)
	}

	libEpoch, err := libraryEpoch(el.Line1)
	if err != nil {
		return nil, &PropagationError{Reason: "decoding epoch: " + err.Error()}
	}
	p.epochOffset = el.Epoch.Sub(libEpoch)

	sat, err := initSatellite(el, p.gravity)
	if err != nil {
		return nil, err
	}
	p.sat = sat
	p.initCode = sat.Error
	return p, nil
}

// Elements returns the element set the propagator was built from.
func (p *SGP4Propagator) Elements() model.OrbitalElements { return p.elements }

// Gravity returns the geopotential model in use.
func (p *SGP4Propagator) Gravity() Gravity { return p.gravity }

// Propagate returns the TEME state at the given instant. Positions are in
// km, velocities in km/s. Elements SGP4 rejected at the epoch fail every
// instant: a decayed orbit with *DecayError, anything else with
// *PropagationError.
func (p *SGP4Propagator) Propagate(at time.Time) (model.StateVector, error) {
	at = at.UTC()
	if p.initCode != 0 && p.initCode != sgp4Decayed {
		return model.StateVector{}, &PropagationError{At: at, Reason: fmt.Sprintf("SGP4 error code %d", p.initCode)}
	}
	query := at.Add(-p.epochOffset)
	base := query.Truncate(time.Second)
	frac := query.Sub(base).Seconds()

	year, month, day := base.Date()
	hour, minute, second := base.Clock()
	pos, vel := satellite.Propagate(p.sat, year, int(month), day, hour, minute, second)

	r := model.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := model.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
	if p.initCode == sgp4Decayed {
		return model.StateVector{}, &DecayError{At: at, RadiusKm: r.Norm()}
	}
	if !r.IsFinite() || !v.IsFinite() {
		return model.StateVector{}, &PropagationError{At: at, Reason: "non-finite state"}
	}
	if r == (model.Vec3{}) {
		// go-satellite returns a zero vector when the model rejects the
		// elements at this instant (eccentricity out of range and similar).
		return model.StateVector{}, &PropagationError{At: at, Reason: "no solution"}
	}

	if frac > 0 {
		r, v = twoBodyStep(r, v, frac)
	}

	radius := r.Norm()
	if radius < EarthEquatorialRadiusKm {
		return model.StateVector{}, &DecayError{At: at, RadiusKm: radius}
	}
	return model.StateVector{Time: at, Position: r, Velocity: v}, nil
}

// twoBodyStep advances a state by dt seconds (dt < 1) with a second-order
// Taylor expansion under point-mass gravity.
func twoBodyStep(r, v model.Vec3, dt float64) (model.Vec3, model.Vec3) {
	rn := r.Norm()
	a := r.Scale(-earthMuKm3s2 / (rn * rn * rn))
	return r.Add(v.Scale(dt)).Add(a.Scale(0.5 * dt * dt)), v.Add(a.Scale(dt))
}

// initSatellite runs sgp4init. go-satellite panics on fields it cannot
// decode, so the panic is turned into an error. A model error code is left
// in sat.Error for the caller.
func initSatellite(el model.OrbitalElements, g Gravity) (sat satellite.Satellite, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PropagationError{Reason: fmt.Sprintf("initialising SGP4: %v", r)}
		}
	}()

	line1, line2 := el.Line1, el.Line2
	if el.CatalogNumber > 99999 {
		// go-satellite reads the catalog column as a plain integer and the
		// number plays no part in propagation.
		line1 = line1[:2] + "00000" + line1[7:]
		line2 = line2[:2] + "00000" + line2[7:]
	}

	return satellite.TLEToSat(line1, line2, g.library()), nil
}

// libraryEpoch reproduces the whole-second epoch go-satellite derives from
// the epoch day: hours and minutes are floored from the fractional day and
// the seconds truncated.
func libraryEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, strconv.ErrSyntax
	}
	yy, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return time.Time{}, err
	}
	days, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil {
		return time.Time{}, err
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	dayOfYear := math.Floor(days)
	temp := (days - dayOfYear) * 24
	hour := math.Floor(temp)
	temp = (temp - hour) * 60
	minute := math.Floor(temp)
	second := (temp - minute) * 60

	return time.Date(year, time.January, int(dayOfYear), int(hour), int(minute), int(second), 0, time.UTC), nil
}
