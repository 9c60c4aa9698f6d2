// Package api exposes the tracking session over HTTP: start, stop and
// inspect tracking, change the simulation speed and report the camera
// position for marker sizing.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/orbit-tracker/internal/logging"
	"github.com/signalsfoundry/orbit-tracker/internal/observability"
	"github.com/signalsfoundry/orbit-tracker/internal/render"
	"github.com/signalsfoundry/orbit-tracker/model"
	"github.com/signalsfoundry/orbit-tracker/timectrl"
	"github.com/signalsfoundry/orbit-tracker/tracking"
)

// Tracker is the session surface the handlers drive. *tracking.Session
// implements it.
type Tracker interface {
	Start(ctx context.Context, line1, line2 string, now time.Time) error
	Stop(ctx context.Context)
	SetSpeed(m float64) error
	ObserveCamera(camera model.Vec3) (float64, bool)
	State() tracking.State
	Elements() (model.OrbitalElements, bool)
	PeriodMinutes() float64
	StartTime() time.Time
	Speed() float64
	SessionID() string
}

// ViewSource supplies the current render state. *render.Snapshot
// implements it.
type ViewSource interface {
	View() render.View
}

// StartRequest is the body of POST /api/v1/track. Start defaults to the
// server's wall clock.
type StartRequest struct {
	Line1 string     `json:"line1" binding:"required"`
	Line2 string     `json:"line2" binding:"required"`
	Start *time.Time `json:"start,omitempty"`
}

// SpeedRequest is the body of PUT /api/v1/track/speed.
type SpeedRequest struct {
	Multiplier *float64 `json:"multiplier"`
}

// CameraRequest is the body of POST /api/v1/track/camera: an Earth-fixed
// camera position in metres.
type CameraRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CameraResponse carries the marker size for the reported camera.
type CameraResponse struct {
	MarkerPx float64 `json:"marker_px"`
}

// SatelliteInfo summarises the tracked element set.
type SatelliteInfo struct {
	CatalogNumber int       `json:"catalog_number"`
	Designator    string    `json:"designator"`
	Epoch         time.Time `json:"epoch"`
	Inclination   float64   `json:"inclination_deg"`
	Eccentricity  float64   `json:"eccentricity"`
	MeanMotion    float64   `json:"mean_motion_rev_per_day"`
	Line1         string    `json:"line1"`
	Line2         string    `json:"line2"`
}

// StatusResponse is the body of GET /api/v1/track.
type StatusResponse struct {
	State         string         `json:"state"`
	SessionID     string         `json:"session_id,omitempty"`
	Satellite     *SatelliteInfo `json:"satellite,omitempty"`
	PeriodMinutes float64        `json:"period_minutes,omitempty"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	SimTime       *time.Time     `json:"sim_time,omitempty"`
	Speed         float64        `json:"speed"`
	View          *render.View   `json:"view,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records request metrics on c.
func WithMetrics(c *observability.RequestCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithSimClock reports the simulation time in status replies.
func WithSimClock(c timectrl.SimClock) Option {
	return func(s *Server) { s.sim = c }
}

// WithWallClock replaces time.Now as the default start instant.
func WithWallClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server holds the HTTP handlers.
type Server struct {
	tracker Tracker
	views   ViewSource
	sim     timectrl.SimClock
	now     func() time.Time
	log     logging.Logger
	metrics *observability.RequestCollector
}

// NewServer builds a server over tracker. views may be nil.
func NewServer(tracker Tracker, views ViewSource, opts ...Option) *Server {
	s := &Server{
		tracker: tracker,
		views:   views,
		now:     time.Now,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns a gin engine with the tracker routes and middleware.
// Callers may add further routes such as /metrics.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), tracing(), observe(s.metrics, s.log))

	r.GET("/healthz", s.health)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/track", s.status)
		v1.POST("/track", s.start)
		v1.DELETE("/track", s.stop)
		v1.PUT("/track/speed", s.setSpeed)
		v1.POST("/track/camera", s.camera)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.tracker.State().String()})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusResponse())
}

func (s *Server) start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	at := s.now()
	if req.Start != nil {
		at = *req.Start
	}
	if err := s.tracker.Start(c.Request.Context(), strings.TrimSpace(req.Line1), strings.TrimSpace(req.Line2), at.UTC()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.statusResponse())
}

func (s *Server) stop(c *gin.Context) {
	s.tracker.Stop(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) setSpeed(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if req.Multiplier == nil {
		s.fail(c, fmt.Errorf("%w: multiplier is required", ErrInvalidRequest))
		return
	}
	if err := s.tracker.SetSpeed(*req.Multiplier); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speed": s.tracker.Speed()})
}

func (s *Server) camera(c *gin.Context) {
	var req CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	px, ok := s.tracker.ObserveCamera(model.Vec3{X: req.X, Y: req.Y, Z: req.Z})
	if !ok {
		s.fail(c, ErrNotTracking)
		return
	}
	c.JSON(http.StatusOK, CameraResponse{MarkerPx: px})
}

func (s *Server) statusResponse() StatusResponse {
	resp := StatusResponse{
		State: s.tracker.State().String(),
		Speed: s.tracker.Speed(),
	}
	if s.sim != nil {
		now := s.sim.Now()
		resp.SimTime = &now
	}
	el, ok := s.tracker.Elements()
	if !ok {
		return resp
	}
	start := s.tracker.StartTime()
	resp.SessionID = s.tracker.SessionID()
	resp.PeriodMinutes = s.tracker.PeriodMinutes()
	resp.StartTime = &start
	resp.Satellite = &SatelliteInfo{
		CatalogNumber: el.CatalogNumber,
		Designator:    el.Designator,
		Epoch:         el.Epoch,
		Inclination:   el.Inclination,
		Eccentricity:  el.Eccentricity,
		MeanMotion:    el.MeanMotion,
		Line1:         el.Line1,
		Line2:         el.Line2,
	}
	if s.views != nil {
		view := s.views.View()
		resp.View = &view
	}
	return resp
}

func (s *Server) fail(c *gin.Context, err error) {
	code, kind := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(c.Request.Context(), "request failed", logging.String("kind", kind), logging.Err(err))
	} else {
		s.log.Info(c.Request.Context(), "request rejected", logging.String("kind", kind), logging.Err(err))
	}
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error(), Kind: kind})
}
