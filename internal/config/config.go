// Package config holds the scheduler configuration, its defaults and the
// environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by FromEnv.
const (
	EnvMaxCount     = "PARALLEL_MAX_COUNT"
	EnvMaxPercent   = "PARALLEL_MAX_PERCENT"
	EnvMode         = "PARALLEL_MODE"
	EnvPollInterval = "PARALLEL_POLL_INTERVAL"
	EnvLogLevel     = "PARALLEL_LOG_LEVEL"
	EnvLogFormat    = "PARALLEL_LOG_FORMAT"
)

// Mode selects how the runner executes.
type Mode string

const (
	// ModeAuto picks ModeParallel when more than one OS thread may run Go
	// code at once, ModeInline otherwise.
	ModeAuto Mode = "auto"
	// ModeParallel runs the runner as its own goroutine with a poller.
	ModeParallel Mode = "parallel"
	// ModeInline dispatches commands synchronously on the caller's goroutine.
	ModeInline Mode = "inline"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeParallel:
		return ModeParallel, nil
	case ModeInline:
		return ModeInline, nil
	default:
		return "", fmt.Errorf("config: unknown mode %q", s)
	}
}

// Resolve turns ModeAuto into a concrete mode.
func (m Mode) Resolve() Mode {
	if m == ModeParallel || m == ModeInline {
		return m
	}
	if runtime.GOMAXPROCS(0) > 1 {
		return ModeParallel
	}
	return ModeInline
}

// Config holds configuration for a Scheduler.
type Config struct {
	Mode          Mode          // auto, parallel or inline
	MaxCPUCount   int           // absolute budget; wins over MaxCPUPercent when > 0
	MaxCPUPercent float64       // fraction of logical cores in [0,1]; 0 means unset
	PollInterval  time.Duration // poller tick (default 25ms)
	AwaitInterval time.Duration // sleep between await polls (default 25ms)
	StartTimeout  time.Duration // bound on the startup handshake (default 5s)
	LogLevel      string        // debug, info, warn, error
	LogFormat     string        // text, json
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Mode:          ModeAuto,
		PollInterval:  25 * time.Millisecond,
		AwaitInterval: 25 * time.Millisecond,
		StartTimeout:  5 * time.Second,
		LogLevel:      "warn",
		LogFormat:     "text",
	}
}

// FromEnv returns Default() overridden by the PARALLEL_* variables found
// through lookup. A nil lookup uses os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	if v, ok := lookup(EnvMaxCount); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvMaxCount, err)
		}
		cfg.MaxCPUCount = n
	}
	if v, ok := lookup(EnvMaxPercent); ok && v != "" {
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvMaxPercent, err)
		}
		cfg.MaxCPUPercent = p
	}
	if v, ok := lookup(EnvMode); ok {
		m, err := ParseMode(v)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = m
	}
	if v, ok := lookup(EnvPollInterval); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvPollInterval, err)
		}
		cfg.PollInterval = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}

	return cfg, cfg.Validate()
}

// Validate reports configuration values that cannot be used.
func (c Config) Validate() error {
	if c.MaxCPUCount < 0 {
		return fmt.Errorf("config: max cpu count must not be negative, got %d", c.MaxCPUCount)
	}
	if c.MaxCPUPercent < 0 || c.MaxCPUPercent > 1 {
		return fmt.Errorf("config: max cpu percent must be within [0,1], got %v", c.MaxCPUPercent)
	}
	if c.PollInterval < 0 || c.AwaitInterval < 0 || c.StartTimeout < 0 {
		return fmt.Errorf("config: intervals must not be negative")
	}
	return nil
}

// Normalized fills zero durations with their defaults.
func (c Config) Normalized() Config {
	d := Default()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.AwaitInterval <= 0 {
		c.AwaitInterval = d.AwaitInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Budget resolves the CPU budget: MaxCPUCount when set, otherwise
// MaxCPUPercent of the logical cores, otherwise every logical core.
func (c Config) Budget() int {
	if c.MaxCPUCount > 0 {
		return c.MaxCPUCount
	}
	if c.MaxCPUPercent > 0 {
		return PercentOfCPUs(c.MaxCPUPercent)
	}
	return runtime.NumCPU()
}

// PercentOfCPUs returns floor(NumCPU * p), never less than 1.
func PercentOfCPUs(p float64) int {
	return max(1, int(math.Floor(float64(runtime.NumCPU())*p)))
}
