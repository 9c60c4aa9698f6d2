package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCollector exposes tracking-session metrics. It satisfies
// tracking.Recorder; every method is safe on a nil receiver.
type SessionCollector struct {
	gatherer prometheus.Gatherer

	Starts         *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	SampleDuration prometheus.Histogram
	PathPoints     prometheus.Gauge
	PeriodMinutes  prometheus.Gauge
	Tracking       prometheus.Gauge
	Speed          prometheus.Gauge
	Stops          prometheus.Counter
}

// NewSessionCollector registers session metrics against the provided registerer.
func NewSessionCollector(reg prometheus.Registerer) (*SessionCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	starts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_session_starts_total",
		Help: "Tracking start attempts, labeled by outcome.",
	}, []string{"result"}), "tracker_session_starts_total")
	if err != nil {
		return nil, err
	}
	frames, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_frames_total",
		Help: "Per-frame marker updates, labeled by whether a position was available.",
	}, []string{"result"}), "tracker_frames_total")
	if err != nil {
		return nil, err
	}

	sampleDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_path_sample_duration_seconds",
		Help:    "Time spent sampling the orbit path on start.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "tracker_path_sample_duration_seconds")
	if err != nil {
		return nil, err
	}

	pathPoints, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_path_points",
		Help: "Number of points in the current orbit path.",
	}), "tracker_path_points")
	if err != nil {
		return nil, err
	}
	period, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_orbital_period_minutes",
		Help: "Orbital period of the tracked satellite.",
	}), "tracker_orbital_period_minutes")
	if err != nil {
		return nil, err
	}
	tracking, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_tracking",
		Help: "1 while a satellite is being tracked, 0 when idle.",
	}), "tracker_tracking")
	if err != nil {
		return nil, err
	}
	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_speed_multiplier",
		Help: "Simulation speed multiplier.",
	}), "tracker_speed_multiplier")
	if err != nil {
		return nil, err
	}
	stops, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_session_stops_total",
		Help: "Tracking sessions stopped.",
	}), "tracker_session_stops_total")
	if err != nil {
		return nil, err
	}

	return &SessionCollector{
		gatherer:       gatherer,
		Starts:         starts,
		Frames:         frames,
		SampleDuration: sampleDuration,
		PathPoints:     pathPoints,
		PeriodMinutes:  period,
		Tracking:       tracking,
		Speed:          speed,
		Stops:          stops,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SessionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SessionCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveStart records a start attempt. result is "ok" or a failure class.
func (c *SessionCollector) ObserveStart(result string) {
	if c == nil || c.Starts == nil {
		return
	}
	c.Starts.WithLabelValues(result).Inc()
}

// ObservePath records the path produced by a successful start.
func (c *SessionCollector) ObservePath(points int, periodMinutes float64, took time.Duration) {
	if c == nil {
		return
	}
	if c.SampleDuration != nil {
		c.SampleDuration.Observe(took.Seconds())
	}
	if c.PathPoints != nil {
		c.PathPoints.Set(float64(points))
	}
	if c.PeriodMinutes != nil {
		c.PeriodMinutes.Set(periodMinutes)
	}
}

// ObserveFrame counts one per-frame update.
func (c *SessionCollector) ObserveFrame(ok bool) {
	if c == nil || c.Frames == nil {
		return
	}
	result := "position"
	if !ok {
		result = "no_position"
	}
	c.Frames.WithLabelValues(result).Inc()
}

// SetTracking flips the tracking gauge and, when stopping, counts the stop
// and clears the path gauges.
func (c *SessionCollector) SetTracking(active bool) {
	if c == nil || c.Tracking == nil {
		return
	}
	if active {
		c.Tracking.Set(1)
		return
	}
	c.Tracking.Set(0)
	if c.Stops != nil {
		c.Stops.Inc()
	}
	if c.PathPoints != nil {
		c.PathPoints.Set(0)
	}
	if c.PeriodMinutes != nil {
		c.PeriodMinutes.Set(0)
	}
}

// SetSpeed updates the speed gauge.
func (c *SessionCollector) SetSpeed(multiplier float64) {
	if c == nil || c.Speed == nil {
		return
	}
	c.Speed.Set(multiplier)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
