// Package log provides structured logging for the genesis tools.
// It wraps the standard library's slog package with mining specific helpers.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

// RunIDKey is the context key the genesis command stores its run id under.
const RunIDKey ctxKey = "run_id"

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a logger writing to stderr. Stdout is reserved for the
// literal tool output.
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stderr, service, version, level, format)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: ParseLevel(level) == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:  slog.New(handler).With("service", service, "version", version),
		service: service,
		version: version,
	}
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that opt out of logging.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger carrying the run id stored in ctx, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if runID := ctx.Value(RunIDKey); runID != nil {
		return l.WithFields("run_id", runID)
	}
	return l
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithWorker returns a logger tagged with a search worker index
func (l *Logger) WithWorker(worker int) *Logger {
	return l.WithFields("worker", worker)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

// Mining-specific logging helpers

// LogAttempt logs the start of a search attempt over a freshly built header
func (l *Logger) LogAttempt(attempt uint64, blockTime uint32, startNonce uint32, bits uint32, merkleRoot string) {
	l.Info("search attempt started",
		"attempt", attempt,
		"time", blockTime,
		"start_nonce", startNonce,
		"bits", bits,
		"merkle_root", merkleRoot,
	)
}

// LogProgress logs a telemetry tick (debug level, the console already shows it)
func (l *Logger) LogProgress(worker int, nonce uint32, hashrate float64, hashrateHuman, estimate string) {
	l.Debug("search progress",
		"worker", worker,
		"nonce", nonce,
		"hashrate", hashrate,
		"hashrate_human", hashrateHuman,
		"estimate", estimate,
	)
}

// LogGenesisFound logs a solved genesis block
func (l *Logger) LogGenesisFound(hash string, nonce uint32, blockTime uint32, attempts uint64) {
	l.Info("genesis found",
		"genesis_hash", hash,
		"nonce", nonce,
		"time", blockTime,
		"attempts", attempts,
	)
}

// LogExhausted logs a nonce range exhaustion that triggers a retry
func (l *Logger) LogExhausted(blockTime, nextTime uint32, attempt uint64) {
	l.Warn("nonce space exhausted",
		"time", blockTime,
		"next_time", nextTime,
		"attempt", attempt,
	)
}
