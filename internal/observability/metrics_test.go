package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRequestCollector(reg)
	if err != nil {
		t.Fatalf("NewRequestCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("tracker_grpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "tracker_grpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("tracker_grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRequestCollector(reg)
	if err != nil {
		t.Fatalf("NewRequestCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("tracker_grpc_requests_total error label = %v, want 1", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRequestCollector(reg)
	if err != nil {
		t.Fatalf("NewRequestCollector: %v", err)
	}
	collector.ObserveHTTP("/api/v1/track", http.MethodPost, http.StatusBadRequest, 3*time.Millisecond)
	collector.ObserveHTTP("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/track", "POST", "400")); got != 1 {
		t.Fatalf("tracker_http_requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Fatalf("unmatched route count = %v, want 1", got)
	}

	var nilCollector *RequestCollector
	nilCollector.ObserveHTTP("/x", "GET", 200, time.Millisecond)
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRequestCollector(reg); err != nil {
		t.Fatalf("first NewRequestCollector: %v", err)
	}
	again, err := NewRequestCollector(reg)
	if err != nil {
		t.Fatalf("re-registering should reuse existing collectors: %v", err)
	}
	again.ObserveHTTP("/healthz", "GET", 200, time.Millisecond)
	if _, err := NewSessionCollector(reg); err != nil {
		t.Fatalf("NewSessionCollector on shared registry: %v", err)
	}
}

func TestSessionCollectorLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSessionCollector(reg)
	if err != nil {
		t.Fatalf("NewSessionCollector: %v", err)
	}

	c.ObserveStart("checksum_error")
	c.ObserveStart("ok")
	c.ObservePath(243, 92.89, 4*time.Millisecond)
	c.SetTracking(true)
	c.SetSpeed(60)
	c.ObserveFrame(true)
	c.ObserveFrame(true)
	c.ObserveFrame(false)

	if got := testutil.ToFloat64(c.Starts.WithLabelValues("ok")); got != 1 {
		t.Fatalf("starts{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PathPoints); got != 243 {
		t.Fatalf("path points = %v, want 243", got)
	}
	if got := testutil.ToFloat64(c.Frames.WithLabelValues("position")); got != 2 {
		t.Fatalf("frames{position} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Speed); got != 60 {
		t.Fatalf("speed = %v, want 60", got)
	}

	c.SetTracking(false)
	if got := testutil.ToFloat64(c.Tracking); got != 0 {
		t.Fatalf("tracking = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.Stops); got != 1 {
		t.Fatalf("stops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PathPoints); got != 0 {
		t.Fatalf("path points after stop = %v, want 0", got)
	}

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	for _, metric := range []string{
		"tracker_session_starts_total",
		"tracker_frames_total",
		"tracker_path_sample_duration_seconds",
		"tracker_speed_multiplier",
	} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSessionCollectorNilSafe(t *testing.T) {
	var c *SessionCollector
	c.ObserveStart("ok")
	c.ObservePath(1, 90, time.Millisecond)
	c.ObserveFrame(false)
	c.SetTracking(true)
	c.SetSpeed(2)
	if c.Gatherer() != nil {
		t.Fatal("nil collector should have no gatherer")
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in                  string
		wantSvc, wantMethod string
	}{
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
		{"Health/Watch", "Health", "Watch"},
		{"", "unknown", "unknown"},
		{"/bare", "unknown", "unknown"},
	}
	for _, tt := range tests {
		svc, method := SplitMethod(tt.in)
		if svc != tt.wantSvc || method != tt.wantMethod {
			t.Fatalf("SplitMethod(%q) = %q/%q, want %q/%q", tt.in, svc, method, tt.wantSvc, tt.wantMethod)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
