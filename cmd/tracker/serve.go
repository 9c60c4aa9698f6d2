package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/internal/api"
	"github.com/signalsfoundry/orbit-tracker/internal/logging"
	"github.com/signalsfoundry/orbit-tracker/internal/observability"
	"github.com/signalsfoundry/orbit-tracker/internal/render"
	"github.com/signalsfoundry/orbit-tracker/timectrl"
	"github.com/signalsfoundry/orbit-tracker/tracking"
)

// trackingService is the gRPC health service name that reports SERVING
// while a satellite is tracked.
const trackingService = "orbit.tracker.Tracking"

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live tracking session over HTTP with a gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lis, err := net.Listen("tcp", a.cfg.ListenAddress)
			if err != nil {
				return fmt.Errorf("listen for gRPC on %s: %w", a.cfg.ListenAddress, err)
			}
			return run(cmd.Context(), a.cfg, a.log, lis)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&a.cfg.HTTPAddress, "http-addr", a.cfg.HTTPAddress, "HTTP address for the tracking API and /metrics")
	fs.StringVar(&a.cfg.ListenAddress, "grpc-addr", a.cfg.ListenAddress, "TCP address the gRPC health server listens on")
	fs.StringVar(&a.cfg.MetricsAddress, "metrics-addr", a.cfg.MetricsAddress, "optional dedicated HTTP address for /metrics")
	return cmd
}

// run serves until ctx is cancelled or a server fails. lis is the gRPC
// listener; when cfg carries a TLE, tracking starts before serving.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}
	gin.SetMode(gin.ReleaseMode)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	requests, err := observability.NewRequestCollector(reg)
	if err != nil {
		return fmt.Errorf("init request metrics: %w", err)
	}
	sessions, err := observability.NewSessionCollector(reg)
	if err != nil {
		return fmt.Errorf("init session metrics: %w", err)
	}

	gravity, err := cfg.gravity()
	if err != nil {
		return err
	}
	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.TickInterval, mode)
	snapshot := render.NewSnapshot()
	session := tracking.New(clock, render.Multi{snapshot, render.NewLogSink(log)},
		tracking.WithLogger(log),
		tracking.WithMetrics(sessions),
		tracking.WithSampler(core.Sampler{Workers: cfg.Workers}),
		tracking.WithPropagatorFactory(tracking.SGP4Factory(core.WithGravity(gravity))),
		tracking.WithSpeed(cfg.Speed),
	)
	sessions.SetSpeed(session.Speed())

	if cfg.hasTLE() {
		set, err := cfg.loadTLE(nil)
		if err != nil {
			return err
		}
		start, err := cfg.startInstant(time.Now())
		if err != nil {
			return err
		}
		if err := session.Start(ctx, set.Elements.Line1, set.Elements.Line2, start); err != nil {
			return fmt.Errorf("start tracking: %w", err)
		}
	}

	healthSrv := health.NewServer()
	reportHealth := func() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if session.State() == tracking.Tracking {
			status = healthpb.HealthCheckResponse_SERVING
		}
		healthSrv.SetServingStatus(trackingService, status)
	}
	reportHealth()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	clock.AddListener(func(time.Time) {
		session.Tick(loopCtx)
		reportHealth()
	})

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			requests.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	engine := api.NewServer(session, snapshot,
		api.WithLogger(log),
		api.WithMetrics(requests),
		api.WithSimClock(clock),
	).Engine()
	engine.GET("/metrics", gin.WrapH(requests.Handler()))

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "starting gRPC health server", logging.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.HTTPAddress != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddress,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info(ctx, "serving tracking API", logging.String("addr", cfg.HTTPAddress))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	metricsSrv := serveMetrics(cfg.MetricsAddress, sessions.Handler(), log)

	loopDone := clock.Start(loopCtx, 0)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down tracker")
	stopLoop()
	<-loopDone
	session.Stop(context.Background())
	healthSrv.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{httpSrv, metricsSrv} {
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
	}
	return runErr
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
