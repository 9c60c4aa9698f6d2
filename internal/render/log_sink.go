package render

import (
	"context"

	"github.com/signalsfoundry/orbit-tracker/internal/logging"
	"github.com/signalsfoundry/orbit-tracker/model"
)

// LogSink writes one structured line per render event. Position updates
// are logged at debug level since they arrive every tick.
type LogSink struct {
	log logging.Logger
}

// NewLogSink returns a sink logging through l.
func NewLogSink(l logging.Logger) *LogSink {
	if l == nil {
		l = logging.Noop()
	}
	return &LogSink{log: l.With(logging.String("component", "render"))}
}

func (s *LogSink) ReplacePath(path model.PathSample) {
	fields := []logging.Field{logging.Int("points", len(path))}
	if len(path) > 0 {
		fields = append(fields,
			logging.Time("from", path[0].Time),
			logging.Time("to", path[len(path)-1].Time),
		)
	}
	s.log.Info(context.Background(), "path replaced", fields...)
}

func (s *LogSink) UpdatePosition(pos *model.Vec3) {
	if pos == nil {
		s.log.Debug(context.Background(), "marker hidden")
		return
	}
	s.log.Debug(context.Background(), "marker moved",
		logging.Float64("x_m", pos.X),
		logging.Float64("y_m", pos.Y),
		logging.Float64("z_m", pos.Z),
	)
}

func (s *LogSink) UpdateMarkerSize(px float64) {
	s.log.Debug(context.Background(), "marker resized", logging.Float64("px", px))
}

func (s *LogSink) Remove() {
	s.log.Info(context.Background(), "entities removed")
}
