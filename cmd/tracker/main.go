// Command tracker propagates a satellite from its TLE. It can print one
// revolution of ground path, run an accelerated tracking session printing
// frames, or serve a live session over HTTP with metrics and a gRPC health
// endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/internal/logging"
	"github.com/signalsfoundry/orbit-tracker/internal/render"
	"github.com/signalsfoundry/orbit-tracker/timectrl"
	"github.com/signalsfoundry/orbit-tracker/tracking"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg Config
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: ConfigFromEnv(), log: logging.Noop()}
	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Track a satellite from its two-line element set",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logging.New(logging.Config{
				Level:  a.cfg.LogLevel,
				Format: a.cfg.LogFormat,
				Output: cmd.ErrOrStderr(),
			})
		},
	}
	a.cfg.bindFlags(root)
	root.AddCommand(newPathCmd(a), newTrackCmd(a), newServeCmd(a))
	return root
}

type pathPoint struct {
	Time      time.Time `json:"time"`
	Longitude float64   `json:"lon_deg"`
	Latitude  float64   `json:"lat_deg"`
	Height    float64   `json:"height_m"`
}

type pathOutput struct {
	Name          string      `json:"name,omitempty"`
	CatalogNumber int         `json:"catalog_number"`
	Epoch         time.Time   `json:"epoch"`
	PeriodMinutes float64     `json:"period_minutes"`
	StepSeconds   float64     `json:"step_seconds"`
	Points        []pathPoint `json:"points"`
}

func newPathCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path [LINE1 LINE2]",
		Short: "Print one revolution of predicted ground path as JSON",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printPath(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().DurationVar(&a.cfg.Step, "step", a.cfg.Step, "sample spacing; zero derives it from the orbital period")
	return cmd
}

func (a *app) printPath(ctx context.Context, out io.Writer, args []string) error {
	set, err := a.cfg.loadTLE(args)
	if err != nil {
		return err
	}
	gravity, err := a.cfg.gravity()
	if err != nil {
		return err
	}
	start, err := a.cfg.startInstant(time.Now())
	if err != nil {
		return err
	}
	prop, err := core.NewSGP4Propagator(set.Elements, core.WithGravity(gravity))
	if err != nil {
		return err
	}

	period := core.OrbitalPeriodMinutes(set.Elements)
	policy := core.PolicyForPeriod(period)
	if a.cfg.Step > 0 {
		policy.Step = a.cfg.Step
	}
	path, err := core.Sampler{Workers: a.cfg.Workers}.Sample(ctx, prop, start, policy.Step, policy.Duration)
	if err != nil {
		return fmt.Errorf("sample path: %w", err)
	}
	a.log.Info(ctx, "path sampled",
		logging.Int("catalog_number", set.Elements.CatalogNumber),
		logging.Int("points", len(path)),
		logging.Duration("step", policy.Step),
	)

	result := pathOutput{
		Name:          set.Name,
		CatalogNumber: set.Elements.CatalogNumber,
		Epoch:         set.Elements.Epoch,
		PeriodMinutes: period,
		StepSeconds:   policy.Step.Seconds(),
		Points:        make([]pathPoint, len(path)),
	}
	for i, p := range path {
		result.Points[i] = pathPoint{Time: p.Time, Longitude: p.Longitude, Latitude: p.Latitude, Height: p.Height}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type frameOutput struct {
	Time      time.Time `json:"time"`
	OK        bool      `json:"ok"`
	Longitude float64   `json:"lon_deg,omitempty"`
	Latitude  float64   `json:"lat_deg,omitempty"`
	Height    float64   `json:"height_m,omitempty"`
	Speed     float64   `json:"ground_speed_mps,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newTrackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track [LINE1 LINE2]",
		Short: "Run a tracking session and print one JSON line per frame",
		Long: `Run a tracking session for --duration of simulated time. Each frame
advances the clock by tick×speed in accelerated mode, or by the elapsed wall
time×speed otherwise.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().DurationVar(&a.cfg.Duration, "duration", a.cfg.Duration, "simulated time to track for")
	return cmd
}

func (a *app) track(ctx context.Context, out io.Writer, args []string) error {
	set, err := a.cfg.loadTLE(args)
	if err != nil {
		return err
	}
	gravity, err := a.cfg.gravity()
	if err != nil {
		return err
	}
	start, err := a.cfg.startInstant(time.Now())
	if err != nil {
		return err
	}

	mode := timectrl.RealTime
	if a.cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(start, a.cfg.TickInterval, mode)
	session := tracking.New(clock, render.NewLogSink(a.log),
		tracking.WithLogger(a.log),
		tracking.WithSampler(core.Sampler{Workers: a.cfg.Workers}),
		tracking.WithPropagatorFactory(tracking.SGP4Factory(core.WithGravity(gravity))),
		tracking.WithSpeed(a.cfg.Speed),
	)
	if err := session.Start(ctx, set.Elements.Line1, set.Elements.Line2, start); err != nil {
		return err
	}
	defer session.Stop(context.Background())

	enc := json.NewEncoder(out)
	var writeErr error
	clock.AddListener(func(time.Time) {
		if writeErr != nil {
			return
		}
		writeErr = enc.Encode(frameRecord(session.Tick(ctx)))
	})
	<-clock.Start(ctx, a.cfg.Duration)
	return writeErr
}

func frameRecord(f tracking.Frame) frameOutput {
	rec := frameOutput{Time: f.Time, OK: f.OK}
	if f.Err != nil {
		rec.Error = f.Err.Error()
	}
	if f.OK {
		g := core.FixedToGeodetic(f.Position.Scale(1e-3))
		rec.Longitude, rec.Latitude, rec.Height = g.Longitude, g.Latitude, g.Height
		rec.Speed = f.Velocity.Norm()
	}
	return rec
}
