package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/orbit-tracker/model"
)

const (
	// DefaultStep is the spacing used when no period-derived policy applies.
	DefaultStep = 60 * time.Second
	// DefaultDuration covers roughly one low-Earth orbit.
	DefaultDuration = 5400 * time.Second
)

// Sampler turns a propagator into a ground path. With Workers > 1 the
// instants are propagated by a bounded worker pool; the result is the same
// as the sequential walk.
type Sampler struct {
	Workers int
}

// Sample walks start, start+step, ... up to start+duration inclusive.
// Instants that fail transiently are skipped. A decay ends the path at the
// last good point without an error. Any other failure, including context
// cancellation, returns the points gathered so far with the error.
func Sample(ctx context.Context, prop Propagator, start time.Time, step, duration time.Duration) (model.PathSample, error) {
	return Sampler{}.Sample(ctx, prop, start, step, duration)
}

// Sample implements the package-level Sample with s.Workers goroutines.
func (s Sampler) Sample(ctx context.Context, prop Propagator, start time.Time, step, duration time.Duration) (model.PathSample, error) {
	if step <= 0 {
		return nil, ErrInvalidStep
	}
	if duration < 0 {
		return nil, ErrInvalidDuration
	}

	n := int(duration/step) + 1
	if s.Workers <= 1 || n == 1 {
		return sampleSequential(ctx, prop, start, step, n)
	}
	return s.sampleParallel(ctx, prop, start, step, n)
}

type sampleOutcome struct {
	point model.PathPoint
	err   error
}

func sampleSequential(ctx context.Context, prop Propagator, start time.Time, step time.Duration, n int) (model.PathSample, error) {
	path := make(model.PathSample, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return path, err
		}
		out := sampleAt(prop, start.Add(time.Duration(i)*step))
		var stop bool
		var err error
		if path, stop, err = appendOutcome(path, out); stop {
			return path, err
		}
	}
	return path, nil
}

func (s Sampler) sampleParallel(ctx context.Context, prop Propagator, start time.Time, step time.Duration, n int) (model.PathSample, error) {
	outcomes := make([]sampleOutcome, n)

	// Lowest index that ends the walk; later instants need not be computed.
	var cutoff atomic.Int64
	cutoff.Store(int64(n))
	lowerCutoff := func(i int) {
		for {
			cur := cutoff.Load()
			if int64(i) >= cur || cutoff.CompareAndSwap(cur, int64(i)) {
				return
			}
		}
	}

	jobs := make(chan int, s.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < s.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if int64(i) > cutoff.Load() {
					continue
				}
				if err := ctx.Err(); err != nil {
					outcomes[i] = sampleOutcome{err: err}
					lowerCutoff(i)
					continue
				}
				out := sampleAt(prop, start.Add(time.Duration(i)*step))
				outcomes[i] = out
				if out.err != nil && !errors.Is(out.err, ErrPropagation) {
					lowerCutoff(i)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	path := make(model.PathSample, 0, n)
	last := int(cutoff.Load())
	for i := 0; i < n && i <= last; i++ {
		var stop bool
		var err error
		if path, stop, err = appendOutcome(path, outcomes[i]); stop {
			return path, err
		}
	}
	return path, nil
}

// appendOutcome applies the failure policy to one instant. stop reports
// that the walk ends here; err is what Sample returns in that case.
func appendOutcome(path model.PathSample, out sampleOutcome) (model.PathSample, bool, error) {
	switch {
	case out.err == nil:
		return append(path, out.point), false, nil
	case errors.Is(out.err, ErrPropagation):
		return path, false, nil
	case errors.Is(out.err, ErrDecayed):
		return path, true, nil
	default:
		return path, true, out.err
	}
}

func sampleAt(prop Propagator, at time.Time) sampleOutcome {
	sv, err := prop.Propagate(at)
	if err != nil {
		return sampleOutcome{err: err}
	}
	fixed := InertialToFixed(sv.Position, SiderealTime(at))
	return sampleOutcome{point: model.PathPoint{Time: at, GeodeticPoint: FixedToGeodetic(fixed)}}
}
