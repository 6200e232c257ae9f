// Package logbridge adapts the inference engine's native log callback to a
// leveled logger. The engine hands over an integer severity, a
// newline-terminated message and an opaque user-data token; the bridge maps
// severities, drops progress noise and forwards the rest to zap.
package logbridge

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Engine log levels as defined by ggml.
const (
	EngineLevelError = 2
	EngineLevelWarn  = 3
	EngineLevelInfo  = 4
	EngineLevelDebug = 5
)

func engineLevel(level int) zapcore.Level {
	switch level {
	case EngineLevelError:
		return zapcore.ErrorLevel
	case EngineLevelWarn:
		return zapcore.WarnLevel
	case EngineLevelInfo:
		return zapcore.InfoLevel
	case EngineLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Bridge forwards engine log messages to a zap logger behind an atomic
// threshold. Verbose off keeps errors only; verbose on lets everything
// through. No intermediate levels are exposed.
type Bridge struct {
	log   *zap.Logger
	level zap.AtomicLevel
}

// New builds a Bridge writing to stderr. Verbosity starts at errors-only.
func New() (*Bridge, error) {
	level := zap.NewAtomicLevelAt(zap.ErrorLevel)

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Bridge{log: logger.Named("engine"), level: level}, nil
}

// NewWithLogger wires the bridge to an existing logger core, used by tests
// and by callers that own logger construction.
func NewWithLogger(logger *zap.Logger) *Bridge {
	return &Bridge{log: logger, level: zap.NewAtomicLevelAt(zap.ErrorLevel)}
}

// SetVerbose switches the threshold between everything and errors-only.
func (b *Bridge) SetVerbose(verbose bool) {
	if verbose {
		b.level.SetLevel(zap.DebugLevel)
	} else {
		b.level.SetLevel(zap.ErrorLevel)
	}
}

// Enabled reports whether a message at the given engine level would be
// logged under the current threshold.
func (b *Bridge) Enabled(level int) bool {
	return b.level.Enabled(engineLevel(level))
}

// Handle is the engine-facing entry point. text arrives newline-terminated;
// userData is the engine's opaque token and is ignored. Messages consisting
// of a single "." are progress ticks, not log lines.
func (b *Bridge) Handle(level int, text string, _ uintptr) {
	if !b.Enabled(level) {
		return
	}

	msg := strings.TrimSuffix(text, "\n")
	if msg == "." {
		return
	}

	switch engineLevel(level) {
	case zapcore.ErrorLevel:
		b.log.Error(msg)
	case zapcore.WarnLevel:
		b.log.Warn(msg)
	case zapcore.DebugLevel:
		b.log.Debug(msg)
	default:
		b.log.Info(msg)
	}
}

// Sync flushes buffered log entries.
func (b *Bridge) Sync() error { return b.log.Sync() }
