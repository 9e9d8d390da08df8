// Package markdown renders markdown documents to standalone HTML pages whose
// fenced diagram blocks become activation placeholders.
package markdown

import (
	"bytes"
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Page is a rendered markdown document.
type Page struct {
	// Title is the text of the first heading, or empty.
	Title string
	// Body is the rendered document content.
	Body []byte
}

// Renderer converts markdown to HTML pages.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GitHub flavored markdown enabled.
// Relative links to .md documents are rewritten to their .html output.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.DefinitionList,
			extension.Footnote,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(linkRewriter{}, 100)),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &Renderer{md: md}
}

// Convert renders source.
func (r *Renderer) Convert(source []byte) (*Page, error) {
	root := r.md.Parser().Parse(text.NewReader(source))

	var body bytes.Buffer
	if err := r.md.Renderer().Render(&body, source, root); err != nil {
		return nil, err
	}
	return &Page{Title: firstHeading(root, source), Body: body.Bytes()}, nil
}

// Document renders source as a complete HTML document.
func (r *Renderer) Document(source []byte, fallbackTitle string) ([]byte, error) {
	page, err := r.Convert(source)
	if err != nil {
		return nil, err
	}
	title := page.Title
	if title == "" {
		title = fallbackTitle
	}

	var out bytes.Buffer
	err = pageTemplate.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(page.Body)}) // #nosec G203 -- goldmark output
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

func firstHeading(root gmast.Node, source []byte) string {
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if h, ok := n.(*gmast.Heading); ok {
			title = plainText(h, source)
			return gmast.WalkStop, nil
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(title)
}

func plainText(n gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return b.String()
}

// linkRewriter points relative links at .md documents to the rendered pages.
type linkRewriter struct{}

func (linkRewriter) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if link, ok := n.(*gmast.Link); ok {
			link.Destination = []byte(RewriteLink(string(link.Destination)))
		}
		return gmast.WalkContinue, nil
	})
}

// RewriteLink maps a relative markdown document link to its HTML page.
// Absolute URLs, fragments and non-markdown targets are returned unchanged.
func RewriteLink(dest string) string {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return dest
	}
	ext := path.Ext(u.Path)
	if !strings.EqualFold(ext, ".md") && !strings.EqualFold(ext, ".markdown") {
		return dest
	}
	u.Path = strings.TrimSuffix(u.Path, ext) + ".html"
	return u.String()
}
