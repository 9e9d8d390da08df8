// Package site activates diagrams across the pages of a built site directory.
package site

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	"git.home.luguber.info/inful/docdiagram/internal/notify"
	"git.home.luguber.info/inful/docdiagram/internal/observability"
)

// DefaultWaitTimeout bounds how long a page waits for its renderer run.
const DefaultWaitTimeout = 30 * time.Second

// Options configures a Processor.
type Options struct {
	// Include globs select pages by slash-separated path relative to the site
	// root. Empty means every .html file.
	Include []string
	Exclude []string

	WaitTimeout time.Duration
	Publisher   notify.Publisher
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// Summary reports a Process run.
type Summary struct {
	RunID    string
	Pages    int
	Changed  int
	Diagrams int
	Skipped  int
	Failed   int
}

// PageResult reports one processed page.
type PageResult struct {
	Path     string
	Diagrams int
	Changed  bool
	Skipped  bool
	// RenderErr is the renderer run failure, if any. The page is still written.
	RenderErr error
}

// Processor runs one activation pass per page and writes changed pages back.
type Processor struct {
	activator *diagram.Activator
	include   []glob.Glob
	exclude   []glob.Glob
	opts      Options
}

// New creates a Processor around activator.
func New(activator *diagram.Activator, opts Options) (*Processor, error) {
	if activator == nil {
		return nil, errors.InternalError("site processor requires an activator").Build()
	}
	if len(opts.Include) == 0 {
		opts.Include = []string{"**.html"}
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &Processor{activator: activator, include: include, exclude: exclude, opts: opts}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "invalid page glob").
				WithContext("pattern", p).
				Build()
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether the slash-separated relative path rel is a page.
func (p *Processor) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range p.exclude {
		if g.Match(rel) {
			return false
		}
	}
	for _, g := range p.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Process activates every page under dir. Page failures are logged and
// counted; only a failure to walk dir is returned.
func (p *Processor) Process(ctx context.Context, dir string) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	ctx = p.runContext(ctx, sum.RunID)
	logger := p.opts.Logger
	start := time.Now()

	info, err := os.Stat(dir)
	if err != nil {
		return sum, errors.WrapError(err, errors.CategoryNotFound, "site directory not found").
			WithContext("path", dir).
			Build()
	}
	if !info.IsDir() {
		return sum, errors.ValidationError("site path is not a directory").
			WithContext("path", dir).
			Build()
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || !p.Matches(rel) {
			return nil
		}

		sum.Pages++
		res, err := p.processFile(ctx, path)
		if err != nil {
			sum.Failed++
			logger.WarnContext(ctx, "Failed to activate page", logfields.Page(rel), logfields.Error(err))
			return nil
		}
		sum.Diagrams += res.Diagrams
		if res.Skipped {
			sum.Skipped++
		}
		if res.Changed {
			sum.Changed++
		}
		return nil
	})
	if err != nil {
		return sum, errors.WrapError(err, errors.CategoryFileSystem, "failed to walk site directory").
			WithContext("path", dir).
			Build()
	}

	logger.InfoContext(ctx, "Site processed",
		slog.Int("pages", sum.Pages),
		slog.Int("changed", sum.Changed),
		logfields.Diagrams(sum.Diagrams),
		slog.Int("failed", sum.Failed),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return sum, nil
}

// ProcessFile activates a single page.
func (p *Processor) ProcessFile(ctx context.Context, path string) (PageResult, error) {
	return p.processFile(p.runContext(ctx, uuid.NewString()), path)
}

// runContext carries the run id and renderer name to every log call of a run.
func (p *Processor) runContext(ctx context.Context, runID string) context.Context {
	ctx = observability.WithRunID(ctx, runID)
	return observability.WithRenderer(ctx, p.activator.RendererName())
}

func (p *Processor) processFile(ctx context.Context, path string) (PageResult, error) {
	start := time.Now()
	res, err := p.activatePage(observability.WithPage(ctx, path), path)
	p.opts.Recorder.ObservePageDuration(time.Since(start))
	switch {
	case err != nil:
		p.opts.Recorder.IncPageResult(metrics.ResultFailed)
	case res.Skipped:
		p.opts.Recorder.IncPageResult(metrics.ResultSkipped)
	case res.Changed:
		p.opts.Recorder.IncPageResult(metrics.ResultSuccess)
	default:
		p.opts.Recorder.IncPageResult(metrics.ResultUnchanged)
	}
	return res, err
}

func (p *Processor) activatePage(ctx context.Context, path string) (PageResult, error) {
	res := PageResult{Path: path}
	logger := p.opts.Logger

	info, err := os.Stat(path)
	if err != nil {
		return res, errors.WrapError(err, errors.CategoryFileSystem, "failed to stat page").
			WithContext("path", path).
			Build()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return res, errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").
			WithContext("path", path).
			Build()
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return res, errors.WrapError(err, errors.CategoryValidation, "failed to parse page").
			WithContext("path", path).
			Build()
	}

	// Serializing the untouched tree gives the baseline that tells whether
	// activation changed anything; parser normalisation alone never triggers a write.
	var baseline bytes.Buffer
	if err := html.Render(&baseline, doc); err != nil {
		return res, errors.WrapError(err, errors.CategoryInternal, "failed to render page").Build()
	}

	act, err := p.activator.Activate(ctx, doc)
	if err != nil {
		return res, err
	}
	if act.Skipped {
		res.Skipped = true
		return res, nil
	}
	res.Diagrams = act.Converted()

	waitCtx, cancel := context.WithTimeout(ctx, p.opts.WaitTimeout)
	defer cancel()
	if err := act.Pending.Wait(waitCtx); err != nil {
		select {
		case <-act.Pending.Done():
			res.RenderErr = err
			logger.WarnContext(ctx, "Diagram rendering failed, raw text kept", logfields.Error(err))
		default:
			// The renderer still owns the tree; it cannot be serialized.
			return res, errors.WrapError(err, errors.CategoryRender, "timed out waiting for diagram rendering").
				WithContext("path", path).
				WithContext("timeout", p.opts.WaitTimeout.String()).
				Build()
		}
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return res, errors.WrapError(err, errors.CategoryInternal, "failed to render page").Build()
	}
	if bytes.Equal(out.Bytes(), baseline.Bytes()) {
		return res, nil
	}

	if err := os.WriteFile(path, out.Bytes(), info.Mode().Perm()); err != nil {
		return res, errors.WrapError(err, errors.CategoryFileSystem, "failed to write page").
			WithContext("path", path).
			Build()
	}
	res.Changed = true
	logger.DebugContext(ctx, "Page activated", logfields.Diagrams(res.Diagrams))

	lc := observability.GetContext(ctx)
	if err := p.opts.Publisher.Publish(ctx, notify.Event{
		RunID:    lc.RunID,
		Page:     path,
		Diagrams: res.Diagrams,
		Renderer: lc.Renderer,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish activation event", logfields.Error(err))
	}
	return res, nil
}
