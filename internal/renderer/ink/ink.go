// Package ink renders diagrams on the server through a mermaid.ink compatible
// HTTP service and inlines the returned SVG into the page.
package ink

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/docdiagram/internal/cache"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	"git.home.luguber.info/inful/docdiagram/internal/retry"
)

const (
	// Name identifies the renderer in logs and metrics.
	Name = "ink"

	DefaultBaseURL     = "https://mermaid.ink"
	DefaultTheme       = "default"
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4

	// ProcessedAttr marks a container whose content was replaced by SVG.
	ProcessedAttr = "data-processed"

	maxSVGBytes = 8 << 20
)

// Options configures the renderer.
type Options struct {
	BaseURL string
	Theme   string
	// Timeout bounds a single request attempt.
	Timeout     time.Duration
	Concurrency int
	Policy      retry.Policy
	Client      *http.Client
	// Cache is optional.
	Cache    cache.Store
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Renderer fetches SVG for each container matched by a run.
type Renderer struct {
	opts Options
}

// New creates an ink renderer.
func New(opts Options) *Renderer {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Theme == "" {
		opts.Theme = DefaultTheme
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) Name() string { return Name }

// Initialize is a no-op: the service never renders on its own.
func (r *Renderer) Initialize(diagram.InitOptions) error { return nil }

type job struct {
	container *html.Node
	text      string
	svg       string
	err       error
}

// Run captures the containers matching opts.QuerySelector and renders them in
// the background. The Pending resolves once every container was processed
// and carries the joined errors of the diagrams that failed; those keep their
// raw text.
func (r *Renderer) Run(ctx context.Context, doc *html.Node, opts diagram.RunOptions) *diagram.Pending {
	sel, err := cascadia.Compile(opts.QuerySelector)
	if err != nil {
		return diagram.Resolved(errors.WrapError(err, errors.CategoryValidation, "invalid query selector").
			WithContext("selector", opts.QuerySelector).
			Build())
	}
	if doc == nil {
		return diagram.Resolved(nil)
	}

	var jobs []*job
	for _, n := range sel.MatchAll(doc) {
		if hasAttr(n, ProcessedAttr) {
			continue
		}
		jobs = append(jobs, &job{container: n, text: diagram.TextContent(n)})
	}
	if len(jobs) == 0 {
		return diagram.Resolved(nil)
	}

	p := diagram.NewPending()
	go func() {
		p.Resolve(r.renderAll(ctx, jobs))
	}()
	return p
}

func (r *Renderer) renderAll(ctx context.Context, jobs []*job) error {
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j *job) {
			defer wg.Done()
			defer func() { <-sem }()
			j.svg, j.err = r.Render(ctx, j.text)
		}(j)
	}
	wg.Wait()

	// The tree is only touched from here, after all fetches finished.
	var errs []error
	for i, j := range jobs {
		if j.err == nil {
			j.err = replaceWithSVG(j.container, j.svg)
		}
		if j.err != nil {
			r.opts.Recorder.IncRendererRun(Name, metrics.ResultFailed)
			errs = append(errs, fmt.Errorf("diagram %d: %w", i, j.err))
			continue
		}
		r.opts.Recorder.IncRendererRun(Name, metrics.ResultSuccess)
	}
	return stderrors.Join(errs...)
}

// Render returns the SVG for one diagram, from the cache when possible.
func (r *Renderer) Render(ctx context.Context, text string) (string, error) {
	key := cache.Key(r.opts.Theme, text)
	if r.opts.Cache != nil {
		svg, found, err := r.opts.Cache.Get(ctx, key)
		switch {
		case err != nil:
			r.opts.Logger.WarnContext(ctx, "Render cache lookup failed", logfields.Error(err))
		case found && isSVG(svg):
			return svg, nil
		case found:
			r.opts.Logger.WarnContext(ctx, "Ignoring cached render that is not SVG")
		}
	}

	pako, err := Pako(text, r.opts.Theme)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryRender, "failed to encode diagram").Build()
	}
	url := r.opts.BaseURL + "/svg/" + pako

	var svg string
	err = r.opts.Policy.Do(ctx, func(attempt int) error {
		var ferr error
		svg, ferr = r.fetch(ctx, url)
		if ferr != nil {
			r.opts.Logger.DebugContext(ctx, "Diagram request failed",
				logfields.URL(r.opts.BaseURL),
				logfields.Attempt(attempt),
				logfields.Error(ferr))
		}
		return ferr
	})
	if err != nil {
		return "", err
	}

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Put(ctx, key, svg); err != nil {
			r.opts.Logger.WarnContext(ctx, "Render cache store failed", logfields.Error(err))
		}
	}
	return svg, nil
}

func (r *Renderer) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryRender, "failed to build request").Build()
	}
	req.Header.Set("Accept", "image/svg+xml")

	resp, err := r.opts.Client.Do(req)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryNetwork, "diagram service unreachable").
			Retryable().
			WithContext("url", r.opts.BaseURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.NetworkError("diagram service rate limited").
			RateLimit().
			WithContext("status", resp.StatusCode).
			Build()
	case resp.StatusCode >= 500:
		return "", errors.NetworkError("diagram service failed").
			WithContext("status", resp.StatusCode).
			Build()
	case resp.StatusCode != http.StatusOK:
		return "", errors.RenderError("diagram rejected by service").
			WithContext("status", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSVGBytes))
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryNetwork, "failed to read diagram").
			Retryable().
			Build()
	}
	if !isSVG(string(body)) {
		return "", errors.RenderError("service response is not SVG").
			WithContext("content_type", resp.Header.Get("Content-Type")).
			Build()
	}
	return string(body), nil
}

func isSVG(body string) bool {
	return strings.Contains(body, "<svg")
}

func replaceWithSVG(container *html.Node, svg string) error {
	if !isSVG(svg) {
		return errors.RenderError("service response is not SVG").Build()
	}
	ctxNode := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: atom.Div.String()}
	nodes, err := html.ParseFragment(strings.NewReader(svg), ctxNode)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRender, "failed to parse SVG").Build()
	}

	for c := container.FirstChild; c != nil; c = container.FirstChild {
		container.RemoveChild(c)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	container.Attr = append(container.Attr, html.Attribute{Key: ProcessedAttr, Val: "true"})
	return nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
