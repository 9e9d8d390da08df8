package config

import (
	"log/slog"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/normalization"
)

// RendererKind selects the diagram rendering library.
type RendererKind string

const (
	// RendererScript delegates rendering to mermaid running in the browser.
	RendererScript RendererKind = "script"
	// RendererInk renders SVG ahead of time through a mermaid.ink compatible service.
	RendererInk RendererKind = "ink"
	// RendererNone leaves pages untouched.
	RendererNone RendererKind = "none"
)

var rendererKinds = normalization.NewNormalizer(map[string]RendererKind{
	"script":  RendererScript,
	"browser": RendererScript,
	"ink":     RendererInk,
	"none":    RendererNone,
	"off":     RendererNone,
}, RendererScript)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffModes = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, RetryBackoffExponential)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// SlogLevel maps the level onto slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormats = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// normalize rewrites the enum fields into their canonical spelling.
func normalize(cfg *Config) error {
	var err error
	if cfg.Renderer.Kind, err = rendererKinds.NormalizeWithError(string(cfg.Renderer.Kind)); err != nil {
		return enumError("renderer.kind", err)
	}
	if cfg.Renderer.Ink.Backoff, err = retryBackoffModes.NormalizeWithError(string(cfg.Renderer.Ink.Backoff)); err != nil {
		return enumError("renderer.ink.backoff", err)
	}
	if cfg.Logging.Level, err = logLevels.NormalizeWithError(string(cfg.Logging.Level)); err != nil {
		return enumError("logging.level", err)
	}
	if cfg.Logging.Format, err = logFormats.NormalizeWithError(string(cfg.Logging.Format)); err != nil {
		return enumError("logging.format", err)
	}
	return nil
}

func enumError(field string, err error) error {
	return errors.WrapError(err, errors.CategoryConfig, "invalid enum value").
		Fatal().
		WithContext("field", field).
		Build()
}
