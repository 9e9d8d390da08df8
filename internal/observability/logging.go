// Package observability builds the process logger and carries per-run
// logging context through context.Context.
package observability

import (
	"context"
	"io"
	"log/slog"

	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	RunID    string
	Page     string
	Renderer string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithRunID adds an activation run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	lc := extractLogContext(ctx)
	lc.RunID = runID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithPage adds the page being processed to the context.
func WithPage(ctx context.Context, page string) context.Context {
	lc := extractLogContext(ctx)
	lc.Page = page
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRenderer adds the renderer name to the context.
func WithRenderer(ctx context.Context, renderer string) context.Context {
	lc := extractLogContext(ctx)
	lc.Renderer = renderer
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func extractLogContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.RunID != "" {
		attrs = append(attrs, logfields.RunID(lc.RunID))
	}
	if lc.Page != "" {
		attrs = append(attrs, logfields.Page(lc.Page))
	}
	if lc.Renderer != "" {
		attrs = append(attrs, logfields.Renderer(lc.Renderer))
	}
	return attrs
}

// contextHandler decorates records logged through the *Context methods with
// the LogContext of their context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := getLogAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds the logger described by cfg. verbose forces debug level.
func NewLogger(cfg config.LoggingConfig, w io.Writer, verbose bool) *slog.Logger {
	level := cfg.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}
