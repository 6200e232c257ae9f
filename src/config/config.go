package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all telemetry server configuration.
type Config struct {
	// Session identifier, one per server process
	SessionUUID uuid.UUID

	// HTTP surface
	ListenAddr string

	// Engine log verbosity: errors-only when false, everything when true
	Verbose bool

	// Process to sample; defaults to the current process
	PID int

	// Accelerator query tool
	SMIBinary    string
	SMITimeoutMs int

	// Backlog monitor
	MonitorIntervalMs int
	MaxDescription    int

	// Request archive
	ArchiveEnabled bool
	ArchiveDir     string
	ArchiveFormat  string
	GenerateReport bool

	// Value of the "service" label on every instrument
	ServiceName string
}

// VerboseEnvKey switches engine logging to everything when set truthy.
const VerboseEnvKey = "LLAMA_VERBOSE"

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SessionUUID:       uuid.New(),
		ListenAddr:        ":9090",
		Verbose:           envTruthy(VerboseEnvKey),
		PID:               os.Getpid(),
		SMIBinary:         "nvidia-smi",
		SMITimeoutMs:      2000,
		MonitorIntervalMs: 250,
		MaxDescription:    120,
		ArchiveEnabled:    false,
		ArchiveDir:        "./telemetry-archive",
		ArchiveFormat:     "jsonl",
		GenerateReport:    false,
		ServiceName:       "llama-server",
	}
}

// ParseFlags parses command-line flags into a Config struct.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address for /metrics and /health")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Log all engine messages instead of errors only")
	flag.IntVar(&cfg.PID, "pid", cfg.PID, "Process to sample (defaults to this process)")
	flag.StringVar(&cfg.SMIBinary, "smi", cfg.SMIBinary, "Path to the GPU query tool")
	flag.IntVar(&cfg.SMITimeoutMs, "smi-timeout", cfg.SMITimeoutMs, "GPU query tool timeout in milliseconds")
	flag.IntVar(&cfg.MonitorIntervalMs, "monitor-interval", cfg.MonitorIntervalMs, "Backlog monitor cycle interval in milliseconds")
	flag.IntVar(&cfg.MaxDescription, "max-description", cfg.MaxDescription, "Maximum task description length in backlog snapshots")
	flag.BoolVar(&cfg.ArchiveEnabled, "archive", cfg.ArchiveEnabled, "Archive every measurement record to disk")
	flag.StringVar(&cfg.ArchiveDir, "archive-dir", cfg.ArchiveDir, "Directory for session archives")
	flag.StringVar(&cfg.ArchiveFormat, "archive-format", cfg.ArchiveFormat, "Archive format: jsonl, parquet")
	flag.BoolVar(&cfg.GenerateReport, "report", cfg.GenerateReport, "Generate an HTML latency report at shutdown")
	flag.StringVar(&cfg.ServiceName, "service", cfg.ServiceName, "Value of the service metric label")
	flag.Parse()

	return cfg, cfg.Validate()
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address cannot be empty"))
	}
	if c.PID <= 0 {
		errs = append(errs, fmt.Errorf("invalid pid %d", c.PID))
	}
	if c.SMITimeoutMs < 1 {
		errs = append(errs, errors.New("smi timeout must be >= 1ms"))
	}
	if c.MonitorIntervalMs < 1 {
		errs = append(errs, errors.New("monitor interval must be >= 1ms"))
	}
	if c.MaxDescription < 1 {
		errs = append(errs, errors.New("max description length must be >= 1"))
	}
	if c.ArchiveFormat != "jsonl" && c.ArchiveFormat != "parquet" {
		errs = append(errs, fmt.Errorf("invalid archive format %q: must be jsonl or parquet", c.ArchiveFormat))
	}
	if c.GenerateReport && !c.ArchiveEnabled {
		errs = append(errs, errors.New("-report requires -archive"))
	}
	if c.ArchiveEnabled && c.ArchiveDir == "" {
		errs = append(errs, errors.New("archive directory cannot be empty"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name cannot be empty"))
	}

	return errors.Join(errs...)
}

// SMITimeout returns the tool timeout as a duration.
func (c *Config) SMITimeout() time.Duration {
	return time.Duration(c.SMITimeoutMs) * time.Millisecond
}

// MonitorInterval returns the monitor cycle interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalMs) * time.Millisecond
}

// String returns a human-readable configuration summary.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Listen:       %s\n", c.ListenAddr))
	b.WriteString(fmt.Sprintf("Service:      %s\n", c.ServiceName))
	b.WriteString(fmt.Sprintf("PID:          %d\n", c.PID))
	b.WriteString(fmt.Sprintf("Verbose:      %v\n", c.Verbose))
	b.WriteString(fmt.Sprintf("Monitor:      %dms\n", c.MonitorIntervalMs))
	if c.ArchiveEnabled {
		b.WriteString(fmt.Sprintf("Archive:      %s (%s)\n", c.ArchiveDir, c.ArchiveFormat))
	}
	return b.String()
}

func envTruthy(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
