package script

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

func render(t *testing.T, doc *html.Node) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, html.Render(&b, doc))
	return b.String()
}

func TestRun_InjectsLoaderOnce(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><body><pre><code class="language-mermaid">graph TD; A-->B;</code></pre><footer>f</footer></body></html>`))
	require.NoError(t, err)

	r := New(Options{Theme: "dark"})
	a, err := diagram.New(r, diagram.Options{})
	require.NoError(t, err)

	res, err := a.Activate(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, res.Pending.Wait(context.Background()))

	out := render(t, doc)
	assert.Contains(t, out, `<div class="mermaid">graph TD; A--&gt;B;</div>`)
	assert.Contains(t, out, `<script id="docdiagram-loader" type="module">`)
	assert.Contains(t, out, `import mermaid from "`+DefaultModuleURL+`";`)
	assert.Contains(t, out, `mermaid.initialize({"startOnLoad":false,"theme":"dark"});`)
	assert.Contains(t, out, `await mermaid.run({"querySelector":".mermaid"});`)
	assert.Less(t, strings.Index(out, "<footer>"), strings.Index(out, "<script"), "loader goes at the end of body")

	// A second pass must not add another loader.
	_, err = a.Activate(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(render(t, doc), "<script"))
}

func TestRun_StartOnLoadFollowsInitialize(t *testing.T) {
	r := New(Options{ModuleURL: "/assets/mermaid.mjs"})
	require.NoError(t, r.Initialize(diagram.InitOptions{}))
	src, err := r.Source(".diagram")
	require.NoError(t, err)
	assert.Contains(t, src, `import mermaid from "/assets/mermaid.mjs";`)
	assert.Contains(t, src, `mermaid.initialize({"startOnLoad":true});`)
	assert.Contains(t, src, `{"querySelector":".diagram"}`)
}

func TestSource_EscapesScriptTerminators(t *testing.T) {
	r := New(Options{ModuleURL: "x</script><b>"})
	src, err := r.Source(".mermaid")
	require.NoError(t, err)
	assert.NotContains(t, src, "</script>")
}

func TestRun_InvalidSelector(t *testing.T) {
	doc := &html.Node{Type: html.DocumentNode}
	p := New(Options{}).Run(context.Background(), doc, diagram.RunOptions{QuerySelector: "mermaid["})
	err := p.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Nil(t, doc.FirstChild)
}

func TestRun_NoBodyAppendsToRoot(t *testing.T) {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div",
		Attr: []html.Attribute{{Key: "class", Val: "mermaid"}}})
	p := New(Options{}).Run(context.Background(), root, diagram.RunOptions{QuerySelector: ".mermaid"})
	require.NoError(t, p.Wait(context.Background()))
	require.NotNil(t, root.LastChild)
	assert.Equal(t, "script", root.LastChild.Data)
}

func TestRun_NoContainersNoLoader(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p>plain page</p>`))
	require.NoError(t, err)
	p := New(Options{}).Run(context.Background(), doc, diagram.RunOptions{QuerySelector: ".mermaid"})
	require.NoError(t, p.Wait(context.Background()))
	assert.NotContains(t, render(t, doc), "<script")
}

func TestRun_ExistingLoaderInHead(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head><script id="docdiagram-loader" type="module"></script></head><body><div class="mermaid">pie</div></body></html>`))
	require.NoError(t, err)
	p := New(Options{}).Run(context.Background(), doc, diagram.RunOptions{QuerySelector: ".mermaid"})
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1, strings.Count(render(t, doc), "<script"))
}
