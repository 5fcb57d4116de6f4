package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidLogLevel = errors.New("invalid log level")

// Config mirrors the log section of the service configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text; empty picks by environment
}

// New builds the service logger.
// Kubernetes/prod/dev default to JSON, local development to coloured text.
// Every handler is wrapped so records carry trace_id/span_id when a span is active.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	if useJSON(cfg.Format) {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	} else {
		handler = newColorTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(newTraceContextHandler(handler)), nil
}

// NewWithServiceContext is New with the service/version/environment attributes attached.
func NewWithServiceContext(cfg Config, serviceName, version, env string) (*slog.Logger, error) {
	l, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	return l.With(
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("environment", env),
	), nil
}

func useJSON(format string) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "text", "console":
		return false
	}
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	env := os.Getenv("ENV")
	return inK8s || env == "prod" || env == "dev"
}

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLogLevel, level)
	}
}

// colorTextHandler paints ERROR messages red.
type colorTextHandler struct {
	handler slog.Handler
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{handler: slog.NewTextHandler(w, opts)}
}

func (h *colorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelError {
		return h.handler.Handle(ctx, r)
	}
	colored := slog.NewRecord(r.Time, r.Level, fmt.Sprintf("\x1b[31m%s\x1b[0m", r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		colored.AddAttrs(a)
		return true
	})
	return h.handler.Handle(ctx, colored)
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	return &colorTextHandler{handler: h.handler.WithGroup(name)}
}

type traceContextHandler struct {
	handler slog.Handler
}

func newTraceContextHandler(h slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: h}
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, r)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}
