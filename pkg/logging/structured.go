package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snow-ghost/skillforge/pkg/tracing"
)

// Config holds logging configuration
type Config struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"` // "json" or "console"
	Output    string `koanf:"output"` // "stdout" or "stderr"
	AddCaller bool   `koanf:"add_caller"`
	AddStack  bool   `koanf:"add_stack"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stderr"}
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*zap.Logger, error) {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Output == "" {
		config.Output = "stderr"
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapConfig.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// parseLevel parses zap level from string
func parseLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithTrace adds the trace and span ids of ctx, if any.
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	traceID := tracing.GetTraceID(ctx)
	if traceID == "" {
		return l
	}
	return l.With(zap.String("trace_id", traceID), zap.String("span_id", tracing.GetSpanID(ctx)))
}

// LogLLMCall logs a completed runtime call
func LogLLMCall(ctx context.Context, l *zap.Logger, runtime, model, status string, duration time.Duration, tokens int, err error) {
	fields := []zap.Field{
		zap.String("runtime", runtime),
		zap.String("model", model),
		zap.String("status", status),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
		zap.Int("tokens", tokens),
	}
	logger := WithTrace(ctx, l)
	if err != nil {
		logger.Warn("LLM call failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("LLM call completed", fields...)
}

// LogDecode logs the decode outcome of a completion. Clean decodes log at
// debug; repairs and fallbacks at info.
func LogDecode(ctx context.Context, l *zap.Logger, runtime, outcome string, missing []string) {
	fields := []zap.Field{
		zap.String("runtime", runtime),
		zap.String("outcome", outcome),
		zap.Strings("missing", missing),
	}
	logger := WithTrace(ctx, l)
	if outcome == "ok" {
		logger.Debug("completion decoded", fields...)
		return
	}
	logger.Info("completion did not match output format", fields...)
}

// LogCircuitBreaker logs a circuit breaker state change
func LogCircuitBreaker(l *zap.Logger, model, from, to string) {
	l.Warn("circuit breaker state changed",
		zap.String("model", model),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogRetry logs a retry operation
func LogRetry(ctx context.Context, l *zap.Logger, model string, attempt int, delay time.Duration, err error) {
	WithTrace(ctx, l).Warn("request retry",
		zap.String("model", model),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
}

// LogIteration logs the outcome of one learning iteration
func LogIteration(ctx context.Context, l *zap.Logger, runID string, iteration int, skill, outcome string, accuracy float64) {
	WithTrace(ctx, l).Info("learning iteration finished",
		zap.String("run_id", runID),
		zap.Int("iteration", iteration),
		zap.String("skill", skill),
		zap.String("outcome", outcome),
		zap.Float64("accuracy", accuracy),
	)
}
