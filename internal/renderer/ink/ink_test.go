package ink

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docdiagram/internal/cache"
	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/retry"
)

func decodePako(t *testing.T, pako string) diagramState {
	t.Helper()
	require.True(t, strings.HasPrefix(pako, "pako:"))
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(pako, "pako:"))
	require.NoError(t, err)
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	var st diagramState
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

// inkServer answers /svg/pako:... with an SVG embedding the diagram code.
func inkServer(t *testing.T, hits *atomic.Int32, fail func(code string) int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		st := decodePako(t, strings.TrimPrefix(r.URL.Path, "/svg/"))
		if fail != nil {
			if status := fail(st.Code); status != 0 {
				w.WriteHeader(status)
				return
			}
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = io.WriteString(w, `<svg xmlns="http://www.w3.org/2000/svg"><text>`+html.EscapeString(st.Code)+`</text></svg>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
}

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, doc *html.Node) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, html.Render(&b, doc))
	return b.String()
}

func TestPako_RoundTrip(t *testing.T) {
	p, err := Pako("graph TD; A-->B;", "dark")
	require.NoError(t, err)
	st := decodePako(t, p)
	assert.Equal(t, "graph TD; A-->B;", st.Code)
	assert.Equal(t, "dark", st.Mermaid.Theme)
	assert.NotContains(t, p, "+")
	assert.NotContains(t, p, "/")
}

func TestActivate_InlinesSVG(t *testing.T) {
	var hits atomic.Int32
	srv := inkServer(t, &hits, nil)
	r := New(Options{BaseURL: srv.URL + "/", Policy: fastPolicy()})

	doc := parse(t, `<body><pre><code class="language-mermaid">graph TD; A-->B;</code></pre><pre><code class="language-mermaid">pie</code></pre></body>`)
	a, err := diagram.New(r, diagram.Options{})
	require.NoError(t, err)

	res, err := a.Activate(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, res.Pending.Wait(context.Background()))

	assert.Equal(t, int32(2), hits.Load())
	for _, rep := range res.Replacements {
		require.NotNil(t, rep.Container.FirstChild)
		assert.Equal(t, "svg", rep.Container.FirstChild.Data)
		assert.True(t, hasAttr(rep.Container, ProcessedAttr))
	}
	out := render(t, doc)
	assert.Contains(t, out, `<div class="mermaid" data-processed="true"><svg`)
	assert.Contains(t, out, "<text>pie</text>")

	// Processed containers are left alone by later runs.
	res, err = a.Activate(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, res.Pending.Wait(context.Background()))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := inkServer(t, &hits, func(string) int {
		if hits.Load() < 3 {
			return http.StatusServiceUnavailable
		}
		return 0
	})
	r := New(Options{BaseURL: srv.URL, Policy: fastPolicy()})

	svg, err := r.Render(context.Background(), "graph LR")
	require.NoError(t, err)
	assert.Contains(t, svg, "<svg")
	assert.Equal(t, int32(3), hits.Load())
}

func TestRun_FailedDiagramKeepsText(t *testing.T) {
	var hits atomic.Int32
	srv := inkServer(t, &hits, func(code string) int {
		if code == "broken" {
			return http.StatusBadRequest
		}
		return 0
	})
	r := New(Options{BaseURL: srv.URL, Policy: fastPolicy()})

	doc := parse(t, `<div class="mermaid">broken</div><div class="mermaid">graph TD</div>`)
	p := r.Run(context.Background(), doc, diagram.RunOptions{QuerySelector: ".mermaid"})
	err := p.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagram 0")
	assert.Equal(t, int32(2), hits.Load(), "client errors are not retried")

	out := render(t, doc)
	assert.Contains(t, out, `<div class="mermaid">broken</div>`)
	assert.Contains(t, out, `<div class="mermaid" data-processed="true"><svg`)
}

func TestRender_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := inkServer(t, &hits, nil)
	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := New(Options{BaseURL: srv.URL, Policy: fastPolicy(), Cache: store})
	first, err := r.Render(context.Background(), "graph TD")
	require.NoError(t, err)
	second, err := r.Render(context.Background(), "graph TD")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRun_NothingToRender(t *testing.T) {
	r := New(Options{})
	p := r.Run(context.Background(), parse(t, `<p>none</p>`), diagram.RunOptions{QuerySelector: ".mermaid"})
	select {
	case <-p.Done():
	default:
		t.Fatal("pending should already be resolved")
	}
	assert.NoError(t, p.Err())

	p = r.Run(context.Background(), parse(t, `<p>none</p>`), diagram.RunOptions{QuerySelector: "mermaid["})
	assert.Error(t, p.Err())
}

func TestRender_NonSVGResponseIsNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>maintenance</html>")
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = io.WriteString(w, `<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	}))
	t.Cleanup(srv.Close)

	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	r := New(Options{BaseURL: srv.URL, Policy: fastPolicy(), Cache: store})
	_, err = r.Render(ctx, "graph TD")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRender))
	assert.Equal(t, int32(1), hits.Load(), "a non-SVG body is not retried")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svg, err := r.Render(ctx, "graph TD")
	require.NoError(t, err)
	assert.Contains(t, svg, "<svg")
	assert.Equal(t, int32(2), hits.Load())

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRender_IgnoresCachedNonSVG(t *testing.T) {
	var hits atomic.Int32
	srv := inkServer(t, &hits, nil)
	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, cache.Key(DefaultTheme, "graph TD"), "<html>proxy error</html>"))

	r := New(Options{BaseURL: srv.URL, Policy: fastPolicy(), Cache: store})
	svg, err := r.Render(ctx, "graph TD")
	require.NoError(t, err)
	assert.Contains(t, svg, "<svg")
	assert.Equal(t, int32(1), hits.Load())

	cached, found, err := store.Get(ctx, cache.Key(DefaultTheme, "graph TD"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, svg, cached)
}
