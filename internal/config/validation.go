package config

import (
	"net/url"
	"strings"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Diagram.Language, " \t\n") {
		return invalid("diagram.language", "must not contain whitespace", c.Diagram.Language)
	}
	if strings.ContainsAny(c.Diagram.MarkerClass, " \t\n") {
		return invalid("diagram.marker_class", "must not contain whitespace", c.Diagram.MarkerClass)
	}
	if c.Renderer.WaitTimeout < 0 {
		return invalid("renderer.wait_timeout", "must not be negative", c.Renderer.WaitTimeout)
	}

	if c.Renderer.Kind == RendererInk {
		u, err := url.Parse(c.Renderer.Ink.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("renderer.ink.base_url", "must be an absolute http(s) URL", c.Renderer.Ink.BaseURL)
		}
		if c.Renderer.Ink.RetryCount() < 0 {
			return invalid("renderer.ink.retries", "must not be negative", c.Renderer.Ink.RetryCount())
		}
		if c.Renderer.Ink.Concurrency < 1 {
			return invalid("renderer.ink.concurrency", "must be at least 1", c.Renderer.Ink.Concurrency)
		}
		if c.Renderer.Ink.BackoffInitial > c.Renderer.Ink.BackoffMax {
			return invalid("renderer.ink.backoff_initial", "must not exceed backoff_max", c.Renderer.Ink.BackoffInitial)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return invalid("server.metrics_path", "must start with /", c.Server.MetricsPath)
	}
	if c.Notify.NATSURL != "" && strings.TrimSpace(c.Notify.Subject) == "" {
		return invalid("notify.subject", "required when notify.nats_url is set", c.Notify.Subject)
	}
	return nil
}

func invalid(field, reason string, value any) error {
	return errors.ValidationError("invalid configuration: "+field+" "+reason).
		WithContext("field", field).
		WithContext("value", value).
		Build()
}
