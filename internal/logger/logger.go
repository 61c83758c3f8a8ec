package logger

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// L is the global logger instance
	L *zap.Logger = zap.NewNop()

	// level backs L so the verbosity can change after a config reload
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// silent is set when the configured level disables all output
	silent bool
)

// ParseLevel maps a configured verbosity name to a zap level.
// "silent" and "off" report ok=false: the caller should discard all output.
// "trace" has no zap equivalent and is treated as debug. Unknown names fall back to info.
func ParseLevel(name string) (lvl zapcore.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "silent", "off":
		return zapcore.FatalLevel, false
	case "fatal":
		return zapcore.FatalLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "debug", "trace":
		return zapcore.DebugLevel, true
	default:
		return zapcore.InfoLevel, true
	}
}

// Init initializes the global logger
func Init(levelName string) error {
	lvl, ok := ParseLevel(levelName)
	level.SetLevel(lvl)
	silent = !ok
	if silent {
		L = zap.NewNop()
		return nil
	}

	config := zap.NewProductionConfig()
	config.Level = level
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := config.Build()
	if err != nil {
		return err
	}
	L = l

	return nil
}

// SetLevel changes the verbosity of an initialized logger.
// Switching into or out of silent mode requires Init.
func SetLevel(levelName string) {
	lvl, ok := ParseLevel(levelName)
	if !ok || silent {
		return
	}
	level.SetLevel(lvl)
}

// Level returns the current minimum enabled level
func Level() zapcore.Level {
	return level.Level()
}

// Sync flushes any buffered log entries
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}

// WithTrace extracts trace context from context.Context and adds trace_id and span_id fields
func WithTrace(ctx context.Context, fields ...zap.Field) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return fields
}

// InfoWithTrace logs at Info level with trace context
func InfoWithTrace(ctx context.Context, msg string, fields ...zap.Field) {
	L.Info(msg, WithTrace(ctx, fields...)...)
}

// ErrorWithTrace logs at Error level with trace context
func ErrorWithTrace(ctx context.Context, msg string, fields ...zap.Field) {
	L.Error(msg, WithTrace(ctx, fields...)...)
}

// WarnWithTrace logs at Warn level with trace context
func WarnWithTrace(ctx context.Context, msg string, fields ...zap.Field) {
	L.Warn(msg, WithTrace(ctx, fields...)...)
}

// DebugWithTrace logs at Debug level with trace context
func DebugWithTrace(ctx context.Context, msg string, fields ...zap.Field) {
	L.Debug(msg, WithTrace(ctx, fields...)...)
}
