package renderer

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/docdiagram/internal/cache"
	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	"git.home.luguber.info/inful/docdiagram/internal/renderer/ink"
	"git.home.luguber.info/inful/docdiagram/internal/renderer/script"
	"git.home.luguber.info/inful/docdiagram/internal/retry"
)

// Deps carries the collaborators a renderer may need.
type Deps struct {
	Cache    cache.Store
	Client   *http.Client
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// FromConfig returns the renderer selected by cfg. It returns a nil
// diagram.Renderer for kind none, which turns every activation pass into a no-op.
func FromConfig(cfg config.RendererConfig, deps Deps) (diagram.Renderer, error) {
	switch cfg.Kind {
	case config.RendererNone:
		return nil, nil
	case config.RendererScript, "":
		return script.New(script.Options{
			ModuleURL: cfg.Script.ModuleURL,
			Theme:     cfg.Theme,
		}), nil
	case config.RendererInk:
		return ink.New(ink.Options{
			BaseURL:     cfg.Ink.BaseURL,
			Theme:       cfg.Theme,
			Timeout:     cfg.Ink.Timeout,
			Concurrency: cfg.Ink.Concurrency,
			Policy:      retry.FromInk(cfg.Ink),
			Client:      deps.Client,
			Cache:       deps.Cache,
			Logger:      deps.Logger,
			Recorder:    deps.Recorder,
		}), nil
	default:
		return nil, errors.ConfigError("unknown renderer kind").
			WithContext("kind", string(cfg.Kind)).
			Build()
	}
}
