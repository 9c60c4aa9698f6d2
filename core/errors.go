package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPropagation matches any *PropagationError.
	ErrPropagation = errors.New("propagation failed")
	// ErrDecayed matches any *DecayError.
	ErrDecayed = errors.New("satellite decayed")

	// ErrInvalidStep is returned by the sampler for a non-positive step.
	ErrInvalidStep = errors.New("sample step must be positive")
	// ErrInvalidDuration is returned by the sampler for a negative duration.
	ErrInvalidDuration = errors.New("sample duration must not be negative")
)

// PropagationError is a transient numerical failure at one instant. Callers
// skip the instant and carry on.
type PropagationError struct {
	At     time.Time
	Reason string
}

func (e *PropagationError) Error() string {
	if e.At.IsZero() {
		return "propagation failed: " + e.Reason
	}
	return fmt.Sprintf("propagation failed at %s: %s", e.At.Format(time.RFC3339Nano), e.Reason)
}

// Is lets errors.Is(err, ErrPropagation) match.
func (e *PropagationError) Is(target error) bool { return target == ErrPropagation }

// DecayError means the propagated orbit is below the Earth's surface at At.
// Every later instant is treated as failed too.
type DecayError struct {
	At       time.Time
	RadiusKm float64
}

func (e *DecayError) Error() string {
	return fmt.Sprintf("satellite decayed at %s: geocentric radius %.3f km", e.At.Format(time.RFC3339Nano), e.RadiusKm)
}

// Is lets errors.Is(err, ErrDecayed) match.
func (e *DecayError) Is(target error) bool { return target == ErrDecayed }
