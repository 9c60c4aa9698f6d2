// Package render provides tracking.Sink implementations: an in-memory
// snapshot served over HTTP, a structured-log sink and a fan-out.
package render

import (
	"sync"
	"time"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/model"
)

// Position is an Earth-fixed point in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vertex is one path point in geodetic and Earth-fixed form.
type Vertex struct {
	Time      time.Time `json:"time"`
	Longitude float64   `json:"lon_deg"`
	Latitude  float64   `json:"lat_deg"`
	Height    float64   `json:"height_m"`
	Position
}

// View is the renderable state at one moment.
type View struct {
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	Visible   bool      `json:"visible"`
	Path      []Vertex  `json:"path"`
	Marker    *Position `json:"marker"`
	MarkerPx  float64   `json:"marker_px,omitempty"`
}

// Snapshot keeps the latest render state. It is safe for concurrent use.
type Snapshot struct {
	now func() time.Time

	mu   sync.RWMutex
	view View
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{now: time.Now}
}

// ReplacePath swaps in a new path polyline.
func (s *Snapshot) ReplacePath(path model.PathSample) {
	vertices := make([]Vertex, len(path))
	for i, p := range path {
		fixed := core.GeodeticToFixed(p.GeodeticPoint).Scale(1000)
		vertices[i] = Vertex{
			Time:      p.Time,
			Longitude: p.Longitude,
			Latitude:  p.Latitude,
			Height:    p.Height,
			Position:  Position{X: fixed.X, Y: fixed.Y, Z: fixed.Z},
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Path = vertices
	s.view.Visible = true
	s.touchLocked()
}

// UpdatePosition moves the marker. A nil position hides it for this frame.
func (s *Snapshot) UpdatePosition(pos *model.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos == nil {
		s.view.Marker = nil
	} else {
		s.view.Marker = &Position{X: pos.X, Y: pos.Y, Z: pos.Z}
	}
	s.touchLocked()
}

// UpdateMarkerSize records the marker pixel size.
func (s *Snapshot) UpdateMarkerSize(px float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.MarkerPx = px
	s.touchLocked()
}

// Remove clears the path and marker.
func (s *Snapshot) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Path = nil
	s.view.Marker = nil
	s.view.MarkerPx = 0
	s.view.Visible = false
	s.touchLocked()
}

// View returns a copy of the current state.
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.view
	if v.Path != nil {
		v.Path = append([]Vertex(nil), v.Path...)
	}
	if v.Marker != nil {
		m := *v.Marker
		v.Marker = &m
	}
	return v
}

func (s *Snapshot) touchLocked() {
	s.view.Revision++
	s.view.UpdatedAt = s.now()
}
