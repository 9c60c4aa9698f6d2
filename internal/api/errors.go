package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/tle"
	"github.com/signalsfoundry/orbit-tracker/tracking"
)

var (
	// ErrInvalidRequest marks a request body that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotTracking is returned for operations that need an active session.
	ErrNotTracking = errors.New("no satellite is being tracked")
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// HTTPStatus maps tracker errors onto an HTTP status code and a stable
// error kind for clients.
func HTTPStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""

	case errors.Is(err, tle.ErrChecksum):
		return http.StatusBadRequest, "checksum"
	case errors.Is(err, tle.ErrFormat):
		return http.StatusBadRequest, "format"
	case errors.Is(err, tracking.ErrInvalidSpeed),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"

	case errors.Is(err, ErrNotTracking):
		return http.StatusConflict, "not_tracking"

	case errors.Is(err, core.ErrPropagation),
		errors.Is(err, core.ErrDecayed):
		return http.StatusUnprocessableEntity, "propagation"

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"

	default:
		return http.StatusInternalServerError, "internal"
	}
}
