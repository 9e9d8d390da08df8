package config

import "time"

const (
	DefaultLanguage       = "mermaid"
	DefaultMarkerClass    = "mermaid"
	DefaultTheme          = "default"
	DefaultModuleURL      = "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.esm.min.mjs"
	DefaultInkBaseURL     = "https://mermaid.ink"
	DefaultPort           = 1316
	DefaultMaxBufferBytes = 2 * 1024 * 1024
	DefaultMetricsPath    = "/metrics"
	DefaultNotifySubject  = "docdiagram.activated"
	DefaultWaitTimeout    = 30 * time.Second
	DefaultInkRetries     = 2
)

func applyDefaults(cfg *Config) {
	if cfg.Diagram.Language == "" {
		cfg.Diagram.Language = DefaultLanguage
	}
	if cfg.Diagram.MarkerClass == "" {
		cfg.Diagram.MarkerClass = DefaultMarkerClass
	}

	r := &cfg.Renderer
	if r.Kind == "" {
		r.Kind = RendererScript
	}
	if r.Theme == "" {
		r.Theme = DefaultTheme
	}
	if r.WaitTimeout == 0 {
		r.WaitTimeout = DefaultWaitTimeout
	}
	if r.Script.ModuleURL == "" {
		r.Script.ModuleURL = DefaultModuleURL
	}
	if r.Ink.BaseURL == "" {
		r.Ink.BaseURL = DefaultInkBaseURL
	}
	if r.Ink.Timeout == 0 {
		r.Ink.Timeout = 10 * time.Second
	}
	if r.Ink.Retries == nil {
		retries := DefaultInkRetries
		r.Ink.Retries = &retries
	}
	if r.Ink.Backoff == "" {
		r.Ink.Backoff = RetryBackoffExponential
	}
	if r.Ink.BackoffInitial == 0 {
		r.Ink.BackoffInitial = 500 * time.Millisecond
	}
	if r.Ink.BackoffMax == 0 {
		r.Ink.BackoffMax = 5 * time.Second
	}
	if r.Ink.Concurrency == 0 {
		r.Ink.Concurrency = 4
	}

	if len(cfg.Site.Include) == 0 {
		cfg.Site.Include = []string{"**.html"}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxBufferBytes == 0 {
		cfg.Server.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = DefaultMetricsPath
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}
