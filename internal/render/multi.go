package render

import (
	"github.com/signalsfoundry/orbit-tracker/model"
	"github.com/signalsfoundry/orbit-tracker/tracking"
)

// Multi forwards every event to each sink in order.
type Multi []tracking.Sink

func (m Multi) ReplacePath(path model.PathSample) {
	for _, s := range m {
		s.ReplacePath(path.Clone())
	}
}

func (m Multi) UpdatePosition(pos *model.Vec3) {
	for _, s := range m {
		if pos == nil {
			s.UpdatePosition(nil)
			continue
		}
		p := *pos
		s.UpdatePosition(&p)
	}
}

func (m Multi) UpdateMarkerSize(px float64) {
	for _, s := range m {
		s.UpdateMarkerSize(px)
	}
}

func (m Multi) Remove() {
	for _, s := range m {
		s.Remove()
	}
}
