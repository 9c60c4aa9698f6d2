// Package tracking holds the single-satellite tracking session: it parses a
// TLE, samples one revolution of ground path, and on every clock tick
// re-propagates the satellite and pushes its Earth-fixed position to a Sink.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/internal/logging"
	"github.com/signalsfoundry/orbit-tracker/model"
	"github.com/signalsfoundry/orbit-tracker/tle"
)

// ErrInvalidSpeed is returned by SetSpeed for zero, negative or non-finite
// multipliers.
var ErrInvalidSpeed = errors.New("speed multiplier must be a positive finite number")

// State is the session's lifecycle state.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Clock supplies simulated time. The session repositions it on start and
// forwards speed changes to it.
type Clock interface {
	Now() time.Time
	SetTime(t time.Time)
	SetMultiplier(m float64)
}

// Sink receives render events. Positions are Earth-fixed, in metres. A nil
// position means "no position this frame".
type Sink interface {
	ReplacePath(path model.PathSample)
	UpdatePosition(pos *model.Vec3)
	UpdateMarkerSize(px float64)
	Remove()
}

// Recorder receives session metrics. *observability.SessionCollector
// implements it.
type Recorder interface {
	ObserveStart(result string)
	ObservePath(points int, periodMinutes float64, took time.Duration)
	ObserveFrame(ok bool)
	SetTracking(active bool)
	SetSpeed(multiplier float64)
}

// PropagatorFactory builds the propagator for a freshly parsed element set.
type PropagatorFactory func(el model.OrbitalElements) (core.Propagator, error)

// SGP4Factory returns a PropagatorFactory backed by core.NewSGP4Propagator.
func SGP4Factory(opts ...core.PropagatorOption) PropagatorFactory {
	return func(el model.OrbitalElements) (core.Propagator, error) {
		return core.NewSGP4Propagator(el, opts...)
	}
}

// Frame is the outcome of one tick. OK is false when nothing was tracked or
// the satellite could not be positioned at Time; Err says why in the latter
// case.
type Frame struct {
	Time     time.Time
	Position model.Vec3 // Earth-fixed, metres
	Velocity model.Vec3 // Earth-fixed, metres per second
	OK       bool
	Err      error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics wires a metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

// WithSampler replaces the sequential path sampler.
func WithSampler(sampler core.Sampler) Option {
	return func(s *Session) {
		s.sampler = sampler
	}
}

// WithPropagatorFactory replaces the default SGP4 factory.
func WithPropagatorFactory(f PropagatorFactory) Option {
	return func(s *Session) {
		if f != nil {
			s.newPropagator = f
		}
	}
}

// WithSpeed sets the initial speed multiplier. Invalid values are ignored.
func WithSpeed(m float64) Option {
	return func(s *Session) {
		if validSpeed(m) {
			s.speed = m
		}
	}
}

// Session tracks at most one satellite. All methods are safe for concurrent
// use: one mutex serialises state changes and per-frame emission, so once
// Stop returns no event derived from the discarded element set reaches the
// sink.
type Session struct {
	clock         Clock
	sink          Sink
	log           logging.Logger
	metrics       Recorder
	sampler       core.Sampler
	newPropagator PropagatorFactory
	tracer        trace.Tracer

	mu        sync.Mutex
	state     State
	speed     float64
	id        string
	elements  model.OrbitalElements
	prop      core.Propagator
	path      model.PathSample
	period    float64
	startTime time.Time
	marker    *model.Vec3
}

// New creates an idle session driving clock and emitting to sink.
func New(clock Clock, sink Sink, opts ...Option) *Session {
	s := &Session{
		clock:         clock,
		sink:          sink,
		log:           logging.Noop(),
		newPropagator: SGP4Factory(),
		tracer:        otel.Tracer("github.com/signalsfoundry/orbit-tracker/tracking"),
		speed:         1,
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start parses the TLE pair, samples one revolution from now and begins
// tracking. On error nothing changes: an idle session stays idle and an
// active one keeps its current satellite.
func (s *Session) Start(ctx context.Context, line1, line2 string, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "tracking.Start")
	defer span.End()

	fail := func(result string, err error) error {
		s.recordStart(result)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.log.Warn(ctx, "tracking start rejected", logging.String("result", result), logging.Err(err))
		return err
	}

	el, err := tle.Parse(line1, line2)
	if err != nil {
		return fail(startResult(err), fmt.Errorf("parse TLE: %w", err))
	}
	prop, err := s.newPropagator(el)
	if err != nil {
		return fail("propagator_error", fmt.Errorf("initialise propagator: %w", err))
	}

	period := core.OrbitalPeriodMinutes(el)
	policy := core.PolicyForPeriod(period)
	began := time.Now()
	path, err := s.sampler.Sample(ctx, prop, now, policy.Step, policy.Duration)
	if err != nil {
		return fail("sample_error", fmt.Errorf("sample orbit path: %w", err))
	}
	took := time.Since(began)

	s.mu.Lock()
	if s.state == Tracking {
		s.sink.Remove()
	}
	s.state = Tracking
	s.id = uuid.NewString()
	s.elements = el
	s.prop = prop
	s.path = path
	s.period = period
	s.startTime = now
	s.marker = nil
	s.clock.SetTime(now)
	s.clock.SetMultiplier(s.speed)
	s.sink.ReplacePath(path.Clone())
	first := s.emitLocked(ctx, now)
	id := s.id
	s.mu.Unlock()

	s.recordStart("ok")
	if s.metrics != nil {
		s.metrics.ObservePath(len(path), period, took)
		s.metrics.SetTracking(true)
	}
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.Int("satellite.catalog_number", el.CatalogNumber),
		attribute.Float64("orbit.period_minutes", period),
		attribute.Int("path.points", len(path)),
		attribute.Int64("path.step_seconds", int64(policy.Step/time.Second)),
	)
	s.log.Info(ctx, "tracking started",
		logging.String("session_id", id),
		logging.Int("catalog_number", el.CatalogNumber),
		logging.Time("epoch", el.Epoch),
		logging.Float64("period_min", period),
		logging.Int("path_points", len(path)),
		logging.Duration("path_step", policy.Step),
		logging.Bool("initial_position", first.OK),
	)
	return nil
}

// Tick propagates to the clock's current time and emits the marker
// position. It is a no-op returning a zero Frame while idle.
func (s *Session) Tick(ctx context.Context) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Tracking {
		return Frame{}
	}
	return s.emitLocked(ctx, s.clock.Now())
}

// emitLocked positions the marker at t. Any propagation failure becomes a
// nil position for this frame; tracking continues. Callers hold s.mu.
func (s *Session) emitLocked(ctx context.Context, t time.Time) Frame {
	sv, err := s.prop.Propagate(t)
	if err != nil {
		s.marker = nil
		s.sink.UpdatePosition(nil)
		if s.metrics != nil {
			s.metrics.ObserveFrame(false)
		}
		s.log.Debug(ctx, "no position this frame", logging.Time("sim_time", t), logging.Err(err))
		return Frame{Time: t, Err: err}
	}

	fixed := core.InertialToFixedState(sv, core.SiderealTime(t))
	pos := fixed.Position.Scale(1000)
	s.marker = &pos
	out := pos
	s.sink.UpdatePosition(&out)
	if s.metrics != nil {
		s.metrics.ObserveFrame(true)
	}
	return Frame{Time: t, Position: pos, Velocity: fixed.Velocity.Scale(1000), OK: true}
}

// ObserveCamera sizes the marker for a camera at the given Earth-fixed
// position (metres). It returns the pixel size sent to the sink, or false
// when there is no marker to size.
func (s *Session) ObserveCamera(camera model.Vec3) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Tracking || s.marker == nil {
		return 0, false
	}
	px := core.MarkerPixelSize(camera.DistanceTo(*s.marker))
	s.sink.UpdateMarkerSize(px)
	return px, true
}

// Stop discards the tracked satellite and removes its entities from the
// sink. Stopping an idle session does nothing.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != Tracking {
		s.mu.Unlock()
		return
	}
	id, catalog := s.id, s.elements.CatalogNumber
	s.state = Idle
	s.id = ""
	s.elements = model.OrbitalElements{}
	s.prop = nil
	s.path = nil
	s.period = 0
	s.startTime = time.Time{}
	s.marker = nil
	s.sink.Remove()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetTracking(false)
	}
	s.log.Info(ctx, "tracking stopped", logging.String("session_id", id), logging.Int("catalog_number", catalog))
}

// SetSpeed stores the multiplier and forwards it to the clock. It applies
// in either state; the sampled path is left as is.
func (s *Session) SetSpeed(m float64) error {
	if !validSpeed(m) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, m)
	}
	s.mu.Lock()
	s.speed = m
	s.clock.SetMultiplier(m)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetSpeed(m)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elements returns the tracked element set; ok is false while idle.
func (s *Session) Elements() (model.OrbitalElements, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements, s.state == Tracking
}

// Path returns a copy of the sampled ground path.
func (s *Session) Path() model.PathSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path.Clone()
}

// PeriodMinutes returns the orbital period used for sampling, 0 while idle.
func (s *Session) PeriodMinutes() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// StartTime returns the simulated instant tracking started at.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Speed returns the current speed multiplier.
func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SessionID identifies the current tracking run; empty while idle.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) recordStart(result string) {
	if s.metrics != nil {
		s.metrics.ObserveStart(result)
	}
}

func startResult(err error) string {
	switch {
	case errors.Is(err, tle.ErrChecksum):
		return "checksum_error"
	case errors.Is(err, tle.ErrFormat):
		return "format_error"
	default:
		return "error"
	}
}

func validSpeed(m float64) bool {
	return !math.IsNaN(m) && !math.IsInf(m, 0) && m > 0
}

type nopSink struct{}

func (nopSink) ReplacePath(model.PathSample) {}
func (nopSink) UpdatePosition(*model.Vec3)   {}
func (nopSink) UpdateMarkerSize(float64)     {}
func (nopSink) Remove()                      {}
