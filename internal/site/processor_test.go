package site

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/notify"
	"git.home.luguber.info/inful/docdiagram/internal/observability"
	"git.home.luguber.info/inful/docdiagram/internal/renderer/script"
)

const diagramPage = `<!DOCTYPE html><html><head><title>t</title></head><body><pre><code class="language-mermaid">graph TD; A-->B;</code></pre></body></html>`

// plainPage is deliberately non-canonical markup; it must never be rewritten.
const plainPage = `<p>no diagrams<br>here`

type stubRenderer struct {
	pending func() *diagram.Pending
}

func (stubRenderer) Name() string                         { return "stub" }
func (stubRenderer) Initialize(diagram.InitOptions) error { return nil }
func (s stubRenderer) Run(context.Context, *html.Node, diagram.RunOptions) *diagram.Pending {
	return s.pending()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newProcessor(t *testing.T, r diagram.Renderer, opts Options) *Processor {
	t.Helper()
	a, err := diagram.New(r, diagram.Options{Logger: quietLogger()})
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	p, err := New(a, opts)
	require.NoError(t, err)
	return p
}

func TestProcess_ActivatesPagesOnce(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":       diagramPage,
		"guide/deep.html":  diagramPage,
		"guide/plain.html": plainPage,
		"assets/style.css": "pre code.language-mermaid {}",
	})
	pub := &recordingPublisher{}
	p := newProcessor(t, script.New(script.Options{}), Options{Publisher: pub})

	sum, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 2, sum.Changed)
	assert.Equal(t, 2, sum.Diagrams)
	assert.Zero(t, sum.Failed)

	out := readFile(t, filepath.Join(dir, "guide", "deep.html"))
	assert.Contains(t, out, `<div class="mermaid">graph TD; A--&gt;B;</div>`)
	assert.Contains(t, out, `id="docdiagram-loader"`)
	assert.Equal(t, plainPage, readFile(t, filepath.Join(dir, "guide", "plain.html")))

	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		assert.Equal(t, sum.RunID, e.RunID)
		assert.Equal(t, "script", e.Renderer)
		assert.Equal(t, 1, e.Diagrams)
	}

	again, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Pages)
	assert.Zero(t, again.Changed, "second pass must not rewrite pages")
	assert.Zero(t, again.Diagrams)
	assert.NotEqual(t, sum.RunID, again.RunID)
}

func TestProcess_NoRendererSkipsPages(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": diagramPage})
	p := newProcessor(t, nil, Options{})

	sum, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Changed)
	assert.Equal(t, diagramPage, readFile(t, filepath.Join(dir, "index.html")))
}

func TestProcess_IncludeExclude(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"docs/a.html":     diagramPage,
		"docs/b.htm":      diagramPage,
		"drafts/c.html":   diagramPage,
		"docs/old/d.html": diagramPage,
	})
	p := newProcessor(t, script.New(script.Options{}), Options{
		Include: []string{"**.html", "**.htm"},
		Exclude: []string{"drafts/**", "docs/old/*"},
	})

	sum, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, diagramPage, readFile(t, filepath.Join(dir, "drafts", "c.html")))

	assert.True(t, p.Matches("x/y/z.html"))
	assert.False(t, p.Matches("drafts/z.html"))
	assert.False(t, p.Matches("notes.txt"))
}

func TestProcessFile_RenderFailureKeepsPage(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": diagramPage})
	r := stubRenderer{pending: func() *diagram.Pending {
		return diagram.Resolved(stderrors.New("service down"))
	}}
	p := newProcessor(t, r, Options{})

	res, err := p.ProcessFile(context.Background(), filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	require.Error(t, res.RenderErr)
	assert.Contains(t, readFile(t, filepath.Join(dir, "index.html")), `<div class="mermaid">`)
}

func TestProcessFile_LogsCarryRunContext(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": diagramPage})
	r := stubRenderer{pending: func() *diagram.Pending {
		return diagram.Resolved(stderrors.New("service down"))
	}}
	var buf bytes.Buffer
	logger := observability.NewLogger(config.LoggingConfig{Level: config.LogLevelWarn, Format: config.LogFormatJSON}, &buf, false)
	p := newProcessor(t, r, Options{Logger: logger})

	page := filepath.Join(dir, "index.html")
	_, err := p.ProcessFile(context.Background(), page)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "Diagram rendering failed, raw text kept", rec["msg"])
	assert.NotEmpty(t, rec["run_id"])
	assert.Equal(t, page, rec["page"])
	assert.Equal(t, "stub", rec["renderer"])
}

func TestProcessFile_WaitTimeout(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": diagramPage})
	r := stubRenderer{pending: diagram.NewPending}
	p := newProcessor(t, r, Options{WaitTimeout: 10 * time.Millisecond})

	sum, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, diagramPage, readFile(t, filepath.Join(dir, "index.html")))

	_, err = p.ProcessFile(context.Background(), filepath.Join(dir, "index.html"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRender))
}

func TestProcess_Errors(t *testing.T) {
	p := newProcessor(t, nil, Options{})

	_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	file := filepath.Join(writeSite(t, map[string]string{"a.html": plainPage}), "a.html")
	_, err = p.Process(context.Background(), file)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestNew_InvalidGlob(t *testing.T) {
	a, err := diagram.New(nil, diagram.Options{})
	require.NoError(t, err)
	_, err = New(a, Options{Include: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}
