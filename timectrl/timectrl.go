package timectrl

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimClock is read access to simulation time, for components that only need
// to know "now" and should not depend on the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances by the wall-clock time elapsed between ticks, scaled
	// by the multiplier.
	RealTime Mode = iota
	// Accelerated advances by exactly Tick×multiplier per tick regardless of
	// how late the tick fires.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController drives simulation time and notifies registered listeners.
// Tracking sessions reposition it with SetTime and SetMultiplier.
type TimeController struct {
	mu   sync.RWMutex
	Tick time.Duration
	Mode Mode

	currentTime time.Time
	multiplier  float64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller at start running at 1×.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		multiplier:  1,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time to t. A running loop continues from t.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// SetMultiplier changes the rate of simulation time. Non-finite or
// non-positive values are ignored.
func (tc *TimeController) SetMultiplier(m float64) {
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
		return
	}
	tc.mu.Lock()
	tc.multiplier = m
	tc.mu.Unlock()
}

// Multiplier returns the current rate of simulation time.
func (tc *TimeController) Multiplier() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.multiplier
}

// AddListener registers a callback invoked on every tick with the new
// simulation time. Listeners run sequentially on the loop goroutine.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the tick loop in a separate goroutine until ctx is cancelled
// or, when duration > 0, until that much simulation time has elapsed. The
// returned channel is closed when the loop exits.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		var elapsed time.Duration
		last := time.Now()
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			var wall time.Time
			select {
			case <-ctx.Done():
				return
			case wall = <-ticker.C:
			}

			step := tc.Tick
			if tc.Mode == RealTime {
				step = wall.Sub(last)
			}
			last = wall

			tc.mu.Lock()
			advance := time.Duration(float64(step) * tc.multiplier)
			if duration > 0 && elapsed+advance > duration {
				advance = duration - elapsed
			}
			tc.currentTime = tc.currentTime.Add(advance)
			simTime := tc.currentTime
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.Unlock()
			elapsed += advance

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
