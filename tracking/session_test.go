package tracking

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/model"
	"github.com/signalsfoundry/orbit-tracker/timectrl"
	"github.com/signalsfoundry/orbit-tracker/tle"
)

const (
	issLine1 = "1 25544U 98067A   24235.53307911  .00018417  00000+0  33452-3 0  9995"
	issLine2 = "2 25544  51.6443  40.1893 0005352  58.1370  58.2267 15.50206503447348"

	vanguardLine1 = "1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753"
	vanguardLine2 = "2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667"
)

var issStart = time.Date(2024, time.August, 22, 13, 0, 0, 0, time.UTC)

type event struct {
	kind string
	path model.PathSample
	pos  *model.Vec3
	px   float64
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingSink) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) ReplacePath(p model.PathSample) { r.add(event{kind: "path", path: p}) }
func (r *recordingSink) UpdatePosition(p *model.Vec3)   { r.add(event{kind: "position", pos: p}) }
func (r *recordingSink) UpdateMarkerSize(px float64)    { r.add(event{kind: "size", px: px}) }
func (r *recordingSink) Remove()                        { r.add(event{kind: "remove"}) }

func (r *recordingSink) kinds() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.kind
	}
	return strings.Join(kinds, ",")
}

func (r *recordingSink) last() event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	clock   *timectrl.TimeController
	sink    *recordingSink
	session *Session
}

func newFixture(opts ...Option) fixture {
	clock := timectrl.NewTimeController(time.Time{}, time.Second, timectrl.Accelerated)
	sink := &recordingSink{}
	return fixture{clock: clock, sink: sink, session: New(clock, sink, opts...)}
}

func TestStartISSEndToEnd(t *testing.T) {
	f := newFixture()
	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if f.session.State() != Tracking {
		t.Fatalf("State = %v, want tracking", f.session.State())
	}
	if period := f.session.PeriodMinutes(); math.Abs(period-92.8) > 1 {
		t.Fatalf("PeriodMinutes = %v, want 92.8 ± 1", period)
	}
	if !f.session.StartTime().Equal(issStart) || !f.clock.Now().Equal(issStart) {
		t.Fatalf("start time %v / clock %v, want %v", f.session.StartTime(), f.clock.Now(), issStart)
	}
	if f.session.SessionID() == "" {
		t.Fatal("SessionID should be set while tracking")
	}

	path := f.session.Path()
	if len(path) != 243 {
		t.Fatalf("path has %d points, want 243", len(path))
	}
	el, ok := f.session.Elements()
	if !ok || el.Inclination != 51.6443 {
		t.Fatalf("Elements = %+v, %v", el, ok)
	}
	for i, p := range path {
		// The inclination bounds the geocentric latitude; geodetic latitude
		// sits up to ~0.2° poleward of it.
		fixed := core.GeodeticToFixed(p.GeodeticPoint)
		geocentric := math.Asin(fixed.Z/fixed.Norm()) * 180 / math.Pi
		if math.Abs(geocentric) > el.Inclination+0.05 {
			t.Fatalf("point %d geocentric latitude %.4f beyond inclination", i, geocentric)
		}
		if math.Abs(p.Latitude) > el.Inclination+0.25 {
			t.Fatalf("point %d geodetic latitude %.4f beyond inclination", i, p.Latitude)
		}
	}

	if got := f.sink.kinds(); got != "path,position" {
		t.Fatalf("sink events = %s, want path,position", got)
	}
	first := f.sink.last()
	if first.pos == nil {
		t.Fatal("initial position missing")
	}
	if r := first.pos.Norm(); r < 6.7e6 || r > 6.9e6 {
		t.Fatalf("initial marker radius %.0f m outside ISS band", r)
	}
}

func TestStartMalformedStaysIdle(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr error
	}{
		{"checksum", issLine1[:68] + "1", issLine2, tle.ErrChecksum},
		{"short", issLine1[:50], issLine2, tle.ErrFormat},
		{"swapped", issLine2, issLine1, tle.ErrFormat},
	}
	for _, tt := range tests {
		err := f.session.Start(context.Background(), tt.line1, tt.line2, issStart)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: Start error = %v, want %v", tt.name, err, tt.wantErr)
		}
		if f.session.State() != Idle {
			t.Fatalf("%s: State = %v, want idle", tt.name, f.session.State())
		}
		if f.session.Path() != nil {
			t.Fatalf("%s: path should be empty", tt.name)
		}
		if _, ok := f.session.Elements(); ok {
			t.Fatalf("%s: elements should not be stored", tt.name)
		}
	}
	if n := f.sink.count(); n != 0 {
		t.Fatalf("failed starts emitted %d events", n)
	}

	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
		t.Fatalf("valid Start after failures: %v", err)
	}
	if f.session.State() != Tracking || len(f.session.Path()) == 0 {
		t.Fatal("valid Start after failures did not begin tracking")
	}
}

func TestFailedStartKeepsCurrentSatellite(t *testing.T) {
	f := newFixture()
	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := f.session.SessionID()
	f.sink.reset()

	if err := f.session.Start(context.Background(), vanguardLine1, vanguardLine2[:68]+"0", issStart); err == nil {
		t.Fatal("expected checksum failure")
	}
	el, ok := f.session.Elements()
	if !ok || el.CatalogNumber != 25544 || f.session.SessionID() != id {
		t.Fatalf("failed start replaced the tracked satellite: %+v", el)
	}
	if n := f.sink.count(); n != 0 {
		t.Fatalf("failed start emitted %d events", n)
	}
}

func TestRestartReplacesEntities(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.session.Start(ctx, issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start ISS: %v", err)
	}
	first := f.session.SessionID()
	f.sink.reset()

	vanguardStart := time.Date(2000, time.June, 28, 0, 0, 0, 0, time.UTC)
	if err := f.session.Start(ctx, vanguardLine1, vanguardLine2, vanguardStart); err != nil {
		t.Fatalf("Start 00005: %v", err)
	}
	if got := f.sink.kinds(); got != "remove,path,position" {
		t.Fatalf("sink events = %s, want remove,path,position", got)
	}
	if f.session.SessionID() == first {
		t.Fatal("restart should issue a new session id")
	}
	if el, _ := f.session.Elements(); el.CatalogNumber != 5 {
		t.Fatalf("tracking catalog %d, want 5", el.CatalogNumber)
	}
	if !f.clock.Now().Equal(vanguardStart) {
		t.Fatalf("clock = %v, want %v", f.clock.Now(), vanguardStart)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.session.Stop(ctx)
	f.session.Stop(ctx)
	if n := f.sink.count(); n != 0 {
		t.Fatalf("stopping an idle session emitted %d events", n)
	}

	if err := f.session.Start(ctx, issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sink.reset()
	f.session.Stop(ctx)
	f.session.Stop(ctx)

	if got := f.sink.kinds(); got != "remove" {
		t.Fatalf("sink events = %s, want a single remove", got)
	}
	if f.session.State() != Idle || f.session.Path() != nil || f.session.SessionID() != "" {
		t.Fatal("Stop did not clear the session")
	}
	if _, ok := f.session.Elements(); ok {
		t.Fatal("Stop did not discard the elements")
	}
}

func TestTickFollowsClock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if frame := f.session.Tick(ctx); frame.OK || f.sink.count() != 0 {
		t.Fatal("Tick while idle should do nothing")
	}

	if err := f.session.Start(ctx, issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := f.sink.last().pos

	f.clock.SetTime(issStart.Add(10 * time.Second))
	frame := f.session.Tick(ctx)
	if !frame.OK || frame.Err != nil {
		t.Fatalf("Tick = %+v, want a position", frame)
	}
	if !frame.Time.Equal(issStart.Add(10 * time.Second)) {
		t.Fatalf("frame time = %v", frame.Time)
	}
	// ~7.2 km/s ground-relative over ten seconds.
	moved := frame.Position.DistanceTo(*start)
	if moved < 60e3 || moved > 85e3 {
		t.Fatalf("marker moved %.0f m in 10 s", moved)
	}
	if v := frame.Velocity.Norm(); v < 6.9e3 || v > 7.8e3 {
		t.Fatalf("Earth-fixed speed %.0f m/s outside ISS band", v)
	}
	if got := *f.sink.last().pos; got != frame.Position {
		t.Fatalf("sink position %+v differs from frame %+v", got, frame.Position)
	}
}

// decayingPropagator returns positions until cutoff, then decays.
type decayingPropagator struct {
	cutoff time.Time
}

func (d decayingPropagator) Propagate(at time.Time) (model.StateVector, error) {
	if !at.Before(d.cutoff) {
		return model.StateVector{}, &core.DecayError{At: at, RadiusKm: 6300}
	}
	return model.StateVector{Time: at, Position: model.Vec3{X: 6778}, Velocity: model.Vec3{Y: 7.67}}, nil
}

func TestTickFailureYieldsNoPosition(t *testing.T) {
	cutoff := issStart.Add(30 * time.Minute)
	f := newFixture(WithPropagatorFactory(func(model.OrbitalElements) (core.Propagator, error) {
		return decayingPropagator{cutoff: cutoff}, nil
	}))
	ctx := context.Background()
	if err := f.session.Start(ctx, issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := len(f.session.Path()); n == 0 || n >= 243 {
		t.Fatalf("decay should truncate the path, got %d points", n)
	}

	f.clock.SetTime(cutoff.Add(time.Minute))
	frame := f.session.Tick(ctx)
	if frame.OK || !errors.Is(frame.Err, core.ErrDecayed) {
		t.Fatalf("Tick after decay = %+v", frame)
	}
	if ev := f.sink.last(); ev.kind != "position" || ev.pos != nil {
		t.Fatalf("expected a nil position event, got %+v", ev)
	}
	if f.session.State() != Tracking {
		t.Fatal("a failed frame must not end tracking")
	}
	if _, ok := f.session.ObserveCamera(model.Vec3{}); ok {
		t.Fatal("no marker should be sized after a failed frame")
	}
}

func withChecksum(line string) string {
	body := line[:tle.LineLength-1]
	return body + strconv.Itoa(tle.Checksum(body))
}

func TestStartDegenerateElementsKeepsTracking(t *testing.T) {
	tests := []struct {
		name  string
		line2 string
		want  error
	}{
		{"decayed at epoch", withChecksum(strings.Replace(issLine2, "0005352", "9999999", 1)), core.ErrDecayed},
		{"mean motion near zero", withChecksum(strings.Replace(issLine2, "15.50206503", " 0.00001000", 1)), core.ErrPropagation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			if err := f.session.Start(ctx, issLine1, tt.line2, issStart); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if f.session.State() != Tracking {
				t.Fatalf("state = %v, want tracking", f.session.State())
			}
			if n := len(f.session.Path()); n != 0 {
				t.Fatalf("path has %d points, want none", n)
			}
			if got := f.sink.kinds(); got != "path,position" {
				t.Fatalf("sink events = %q", got)
			}
			if ev := f.sink.last(); ev.pos != nil {
				t.Fatalf("initial position = %+v, want none", ev.pos)
			}

			f.clock.SetTime(issStart.Add(10 * time.Minute))
			frame := f.session.Tick(ctx)
			if frame.OK || !errors.Is(frame.Err, tt.want) {
				t.Fatalf("Tick = %+v, want %v", frame, tt.want)
			}
		})
	}
}

func TestStartFailsWhenPropagatorCannotInit(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(WithPropagatorFactory(func(model.OrbitalElements) (core.Propagator, error) {
		return nil, boom
	}))
	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want boom", err)
	}
	if f.session.State() != Idle {
		t.Fatal("session should stay idle")
	}
}

func TestObserveCamera(t *testing.T) {
	f := newFixture()
	if _, ok := f.session.ObserveCamera(model.Vec3{}); ok {
		t.Fatal("idle session has no marker")
	}
	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	marker := *f.sink.last().pos

	px, ok := f.session.ObserveCamera(marker)
	if !ok || px != 12 {
		t.Fatalf("camera at marker: %v, %v; want 12", px, ok)
	}
	if ev := f.sink.last(); ev.kind != "size" || ev.px != 12 {
		t.Fatalf("sink got %+v, want size 12", ev)
	}

	far := marker.Scale(10)
	if px, _ := f.session.ObserveCamera(far); px != 6 {
		t.Fatalf("distant camera size = %v, want 6", px)
	}
}

func TestSetSpeed(t *testing.T) {
	f := newFixture(WithSpeed(2))
	if f.session.Speed() != 2 {
		t.Fatalf("initial Speed = %v, want 2", f.session.Speed())
	}

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := f.session.SetSpeed(bad); !errors.Is(err, ErrInvalidSpeed) {
			t.Fatalf("SetSpeed(%v) error = %v, want ErrInvalidSpeed", bad, err)
		}
	}
	if f.session.Speed() != 2 {
		t.Fatal("rejected speed changed the stored value")
	}

	if err := f.session.SetSpeed(5); err != nil {
		t.Fatalf("SetSpeed while idle: %v", err)
	}
	if f.clock.Multiplier() != 5 {
		t.Fatalf("clock multiplier = %v, want 5", f.clock.Multiplier())
	}

	if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := f.session.Path()
	if err := f.session.SetSpeed(0.1); err != nil {
		t.Fatalf("SetSpeed while tracking: %v", err)
	}
	if f.clock.Multiplier() != 0.1 {
		t.Fatalf("clock multiplier = %v, want 0.1", f.clock.Multiplier())
	}
	if after := f.session.Path(); len(after) != len(before) || after[1] != before[1] {
		t.Fatal("speed change must not re-sample the path")
	}
}

func TestNoEventsAfterStop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.session.Start(ctx, issLine1, issLine2, issStart); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					f.session.Tick(ctx)
					f.session.ObserveCamera(model.Vec3{X: 7e6})
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	f.session.Stop(ctx)
	after := f.sink.count()
	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	if n := f.sink.count(); n != after {
		t.Fatalf("%d events reached the sink after Stop returned", n-after)
	}
	if ev := f.sink.last(); ev.kind != "remove" {
		t.Fatalf("last event = %s, want remove", ev.kind)
	}
}

func TestStartCancelled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.session.Start(ctx, issLine1, issLine2, issStart); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start error = %v, want context.Canceled", err)
	}
	if f.session.State() != Idle {
		t.Fatal("cancelled start should leave the session idle")
	}
}

func TestParallelSamplerGivesSamePath(t *testing.T) {
	seq := newFixture()
	par := newFixture(WithSampler(core.Sampler{Workers: 4}))
	for _, f := range []fixture{seq, par} {
		if err := f.session.Start(context.Background(), issLine1, issLine2, issStart); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	a, b := seq.session.Path(), par.session.Path()
	if len(a) != len(b) {
		t.Fatalf("path lengths %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("point %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Tracking.String() != "tracking" || State(9).String() != "State(9)" {
		t.Fatal("unexpected State strings")
	}
}
