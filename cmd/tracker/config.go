package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/orbit-tracker/core"
	"github.com/signalsfoundry/orbit-tracker/tle"
)

// errNoTLE is returned when a command needs an element set and none was given.
var errNoTLE = errors.New("no TLE given: use --tle-file, --line1/--line2 or two positional lines")

// Config holds the tracker settings. Defaults come from TRACKER_*
// environment variables; command-line flags override them.
type Config struct {
	HTTPAddress    string
	ListenAddress  string // gRPC health endpoint
	MetricsAddress string // optional dedicated /metrics listener
	LogLevel       string
	LogFormat      string

	TickInterval time.Duration
	Accelerated  bool
	Speed        float64
	Workers      int
	Gravity      string

	TLEFile string
	Line1   string
	Line2   string
	Start   string // RFC 3339; empty means now

	Duration time.Duration // simulated time covered by the track command
	Step     time.Duration // path command override; zero uses the period policy
}

// ConfigFromEnv returns the defaults, overridden by TRACKER_* variables.
func ConfigFromEnv() Config {
	return Config{
		HTTPAddress:    envString("TRACKER_HTTP_ADDR", ":8080"),
		ListenAddress:  envString("TRACKER_GRPC_ADDR", ":50051"),
		MetricsAddress: envString("TRACKER_METRICS_ADDR", ""),
		LogLevel:       envString("TRACKER_LOG_LEVEL", envString("LOG_LEVEL", "info")),
		LogFormat:      envString("TRACKER_LOG_FORMAT", envString("LOG_FORMAT", "text")),
		TickInterval:   envDuration("TRACKER_TICK", 100*time.Millisecond),
		Accelerated:    envBool("TRACKER_ACCELERATED", false),
		Speed:          envFloat("TRACKER_SPEED", 1),
		Workers:        envInt("TRACKER_SAMPLER_WORKERS", 0),
		Gravity:        envString("TRACKER_GRAVITY", core.GravityWGS72.String()),
		TLEFile:        envString("TRACKER_TLE_FILE", ""),
		Line1:          envString("TRACKER_TLE_LINE1", ""),
		Line2:          envString("TRACKER_TLE_LINE2", ""),
		Start:          envString("TRACKER_START", ""),
		Duration:       envDuration("TRACKER_DURATION", 90*time.Minute),
	}
}

// bindFlags registers the settings shared by every command.
func (c *Config) bindFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.DurationVar(&c.TickInterval, "tick", c.TickInterval, "wall-clock interval between frames")
	fs.BoolVar(&c.Accelerated, "accelerated", c.Accelerated, "advance tick×speed per frame instead of following the wall clock")
	fs.Float64Var(&c.Speed, "speed", c.Speed, "simulation speed multiplier")
	fs.IntVar(&c.Workers, "workers", c.Workers, "path sampler workers (0 or 1 samples sequentially)")
	fs.StringVar(&c.Gravity, "gravity", c.Gravity, "SGP4 gravity model: wgs72 or wgs84")
	fs.StringVar(&c.TLEFile, "tle-file", c.TLEFile, "file holding a two- or three-line element set ('-' for stdin)")
	fs.StringVar(&c.Line1, "line1", c.Line1, "TLE line 1")
	fs.StringVar(&c.Line2, "line2", c.Line2, "TLE line 2")
	fs.StringVar(&c.Start, "start", c.Start, "simulation start instant (RFC 3339); defaults to now")
}

func (c Config) gravity() (core.Gravity, error) {
	return core.ParseGravity(c.Gravity)
}

func (c Config) startInstant(now time.Time) (time.Time, error) {
	if strings.TrimSpace(c.Start) == "" {
		return now.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(c.Start))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start instant: %w", err)
	}
	return t.UTC(), nil
}

func (c Config) hasTLE() bool {
	return c.TLEFile != "" || (c.Line1 != "" && c.Line2 != "")
}

// loadTLE resolves the element set from positional args, the TLE file or the
// line flags, in that order.
func (c Config) loadTLE(args []string) (tle.Set, error) {
	switch {
	case len(args) == 2:
		el, err := tle.Parse(args[0], args[1])
		if err != nil {
			return tle.Set{}, err
		}
		return tle.Set{Elements: el}, nil
	case len(args) != 0:
		return tle.Set{}, fmt.Errorf("expected 0 or 2 positional TLE lines, got %d", len(args))
	case c.TLEFile == "-":
		return tle.ParseSet(os.Stdin)
	case c.TLEFile != "":
		f, err := os.Open(c.TLEFile)
		if err != nil {
			return tle.Set{}, fmt.Errorf("open TLE file: %w", err)
		}
		defer f.Close()
		return tle.ParseSet(f)
	case c.Line1 != "" && c.Line2 != "":
		el, err := tle.Parse(c.Line1, c.Line2)
		if err != nil {
			return tle.Set{}, err
		}
		return tle.Set{Elements: el}, nil
	default:
		return tle.Set{}, errNoTLE
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
