package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docdiagram/internal/cache"
	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	"git.home.luguber.info/inful/docdiagram/internal/notify"
	"git.home.luguber.info/inful/docdiagram/internal/observability"
	"git.home.luguber.info/inful/docdiagram/internal/renderer"
	"git.home.luguber.info/inful/docdiagram/internal/site"
)

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docdiagram.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Activate ActivateCmd `cmd:"" help:"Activate diagrams in the HTML pages of a built site"`
	Render   RenderCmd   `cmd:"" help:"Render a markdown directory to HTML pages and activate their diagrams"`
	Serve    ServeCmd    `cmd:"" help:"Serve a site directory, activating diagrams on every page request"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// LoadConfig loads the configuration file. A missing file at the default
// location is not an error: the defaults apply.
func (c *CLI) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		if c.Config == config.DefaultPath && errors.HasCategory(err, errors.CategoryNotFound) {
			slog.Debug("No configuration file, using defaults", slog.String("path", c.Config))
			cfg = config.Default()
		} else {
			return nil, err
		}
	}
	c.configureLogging(cfg.Logging)
	return cfg, nil
}

// configureLogging applies the configured level and format unless -v forced debug output.
func (c *CLI) configureLogging(cfg config.LoggingConfig) {
	slog.SetDefault(observability.NewLogger(cfg, os.Stderr, c.Verbose))
}

// Runtime holds the collaborators shared by the activation commands.
type Runtime struct {
	Config    *config.Config
	Registry  *prometheus.Registry
	Recorder  metrics.Recorder
	Activator *diagram.Activator
	Publisher notify.Publisher
	cache     cache.Store
}

// NewRuntime wires the renderer, cache, metrics and notifier described by cfg.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	logger := slog.Default()
	rt := &Runtime{Config: cfg, Registry: prometheus.NewRegistry()}
	rt.Recorder = metrics.NewPrometheusRecorder(rt.Registry)

	if cfg.Cache.Path != "" {
		if dir := filepath.Dir(cfg.Cache.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create cache directory").
					WithContext("path", dir).
					Build()
			}
		}
		store, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		rt.cache = store
	}

	r, err := renderer.FromConfig(cfg.Renderer, renderer.Deps{
		Cache:    rt.cache,
		Logger:   logger,
		Recorder: rt.Recorder,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Activator, err = diagram.New(r, diagram.Options{
		Language:    cfg.Diagram.Language,
		MarkerClass: cfg.Diagram.MarkerClass,
		Logger:      logger,
		Recorder:    rt.Recorder,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Publisher, err = notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Processor returns a site processor for the configured pages.
func (rt *Runtime) Processor() (*site.Processor, error) {
	return site.New(rt.Activator, site.Options{
		Include:     rt.Config.Site.Include,
		Exclude:     rt.Config.Site.Exclude,
		WaitTimeout: rt.Config.Renderer.WaitTimeout,
		Publisher:   rt.Publisher,
		Logger:      slog.Default(),
		Recorder:    rt.Recorder,
	})
}

// Close releases the cache and the notifier connection.
func (rt *Runtime) Close() {
	if rt.Publisher != nil {
		_ = rt.Publisher.Close()
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			slog.Warn("Failed to close render cache", slog.String("error", err.Error()))
		}
	}
}

// setupRuntime loads configuration and builds the runtime in one step.
func setupRuntime(root *CLI) (*Runtime, error) {
	cfg, err := root.LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewRuntime(cfg)
}
