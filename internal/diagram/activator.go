package diagram

import (
	"context"
	"log/slog"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
)

const (
	DefaultLanguage    = "mermaid"
	DefaultMarkerClass = "mermaid"
)

// Options configures an Activator. Zero values fall back to the mermaid defaults.
type Options struct {
	// Language is the fenced code language marking a placeholder.
	Language string
	// MarkerClass is the class the rendering library recognizes on containers.
	MarkerClass string
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// Replacement describes one placeholder converted during a pass.
type Replacement struct {
	// Index is the placeholder's position in document order.
	Index     int
	Text      string
	Container *html.Node
	// Wrapper is the detached element the container replaced.
	Wrapper *html.Node
}

// Result describes what an activation pass did to a page.
type Result struct {
	// Skipped is set when no renderer is available; the page was not touched.
	Skipped      bool
	Replacements []Replacement
	// Selector is the query selector handed to the renderer run.
	Selector string
	// Pending tracks the renderer run. Nil when the run was never invoked.
	Pending *Pending
}

// Converted returns the number of containers created.
func (r *Result) Converted() int {
	if r == nil {
		return 0
	}
	return len(r.Replacements)
}

// Activator runs activation passes over page trees.
type Activator struct {
	renderer     Renderer
	placeholders cascadia.Selector
	markerClass  string
	runSelector  string
	logger       *slog.Logger
	recorder     metrics.Recorder
}

// New builds an Activator. renderer may be nil, in which case every pass is
// a no-op.
func New(renderer Renderer, opts Options) (*Activator, error) {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.MarkerClass == "" {
		opts.MarkerClass = DefaultMarkerClass
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	placeholderSelector := PlaceholderSelector(opts.Language)
	sel, err := cascadia.Compile(placeholderSelector)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid diagram language").
			Fatal().
			WithContext("language", opts.Language).
			Build()
	}
	runSelector := "." + opts.MarkerClass
	if _, err := cascadia.Compile(runSelector); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid marker class").
			Fatal().
			WithContext("marker_class", opts.MarkerClass).
			Build()
	}

	return &Activator{
		renderer:     renderer,
		placeholders: sel,
		markerClass:  opts.MarkerClass,
		runSelector:  runSelector,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
	}, nil
}

// PlaceholderSelector returns the CSS selector matching fenced blocks of language.
func PlaceholderSelector(language string) string {
	return "pre code.language-" + language
}

// RendererName returns the injected renderer's name, or "none".
func (a *Activator) RendererName() string {
	if a.renderer == nil {
		return "none"
	}
	return a.renderer.Name()
}

// Select returns a snapshot of the placeholders in doc, in document order.
func (a *Activator) Select(doc *html.Node) []*Placeholder {
	nodes := a.placeholders.MatchAll(doc)
	out := make([]*Placeholder, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Placeholder{Code: n, Text: TextContent(n)})
	}
	return out
}

// Activate runs one pass over doc: it configures the renderer, replaces every
// placeholder's wrapper with a container and invokes the renderer once.
//
// The renderer run is not awaited; Result.Pending reports its completion.
// A placeholder whose wrapper is detached aborts the pass: replacements made
// so far stay in place and are returned with the error, the run is not
// invoked.
func (a *Activator) Activate(ctx context.Context, doc *html.Node) (*Result, error) {
	if a.renderer == nil {
		a.recorder.IncActivationResult(metrics.ResultSkipped)
		a.logger.Debug("No diagram renderer available, skipping activation")
		return &Result{Skipped: true}, nil
	}
	if doc == nil {
		return nil, errors.ValidationError("nil page tree").Build()
	}

	start := time.Now()
	defer func() { a.recorder.ObserveActivationDuration(time.Since(start)) }()

	if err := a.renderer.Initialize(InitOptions{DisableAutoStart: true}); err != nil {
		a.recorder.IncActivationResult(metrics.ResultFailed)
		return &Result{}, errors.WrapError(err, errors.CategoryRender, "failed to initialize renderer").
			WithContext("renderer", a.renderer.Name()).
			Build()
	}

	placeholders := a.Select(doc)
	res := &Result{Replacements: make([]Replacement, 0, len(placeholders))}
	for i, p := range placeholders {
		r, err := a.replace(i, p)
		if err != nil {
			a.recorder.AddDiagramsConverted(len(res.Replacements))
			a.recorder.IncActivationResult(metrics.ResultFailed)
			return res, err
		}
		res.Replacements = append(res.Replacements, r)
	}
	a.recorder.AddDiagramsConverted(len(res.Replacements))

	res.Selector = a.runSelector
	res.Pending = a.renderer.Run(ctx, doc, RunOptions{QuerySelector: a.runSelector})
	if res.Pending == nil {
		res.Pending = Resolved(nil)
	}

	a.recorder.IncActivationResult(metrics.ResultSuccess)
	a.logger.Debug("Activated diagrams",
		logfields.Diagrams(len(res.Replacements)),
		logfields.Renderer(a.renderer.Name()),
		logfields.Selector(a.runSelector))
	return res, nil
}

func (a *Activator) replace(index int, p *Placeholder) (Replacement, error) {
	wrapper := p.Wrapper()
	parent := p.Parent()
	if wrapper == nil || parent == nil {
		return Replacement{}, errors.StructureError("diagram placeholder has no parent element").
			WithContext("index", index).
			Build()
	}

	container := newContainer(a.markerClass, p.Text)
	parent.InsertBefore(container, wrapper)
	parent.RemoveChild(wrapper)

	return Replacement{Index: index, Text: p.Text, Container: container, Wrapper: wrapper}, nil
}
