// Package script renders diagrams in the browser: it injects the mermaid ES
// module loader into the page and lets the client draw the containers.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

const (
	// Name identifies the renderer in logs and metrics.
	Name = "script"
	// ScriptID guards against injecting the loader twice into one page.
	ScriptID = "docdiagram-loader"

	DefaultModuleURL = "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.esm.min.mjs"
)

var (
	loaderSelector = cascadia.MustCompile("#" + ScriptID)
	bodySelector   = cascadia.MustCompile("body")
)

// Options configures the loader.
type Options struct {
	ModuleURL string
	// Theme is passed to mermaid.initialize when non-empty.
	Theme string
}

// Renderer injects a module script that initializes mermaid and runs it over
// the page's containers.
type Renderer struct {
	opts        Options
	startOnLoad atomic.Bool
}

// New creates a script renderer.
func New(opts Options) *Renderer {
	if opts.ModuleURL == "" {
		opts.ModuleURL = DefaultModuleURL
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) Name() string { return Name }

// Initialize records the startOnLoad setting emitted into the loader.
func (r *Renderer) Initialize(opts diagram.InitOptions) error {
	r.startOnLoad.Store(!opts.DisableAutoStart)
	return nil
}

// Run appends the loader to the page body when the page holds at least one
// container. The returned Pending is already resolved: rendering itself
// happens in the browser.
func (r *Renderer) Run(_ context.Context, doc *html.Node, opts diagram.RunOptions) *diagram.Pending {
	sel, err := cascadia.Compile(opts.QuerySelector)
	if err != nil {
		return diagram.Resolved(errors.WrapError(err, errors.CategoryValidation, "invalid query selector").
			WithContext("selector", opts.QuerySelector).
			Build())
	}
	// Pages without containers do not need the library at all.
	if doc == nil || cascadia.Query(doc, sel) == nil || cascadia.Query(doc, loaderSelector) != nil {
		return diagram.Resolved(nil)
	}

	src, err := r.Source(opts.QuerySelector)
	if err != nil {
		return diagram.Resolved(err)
	}
	el := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     atom.Script.String(),
		Attr: []html.Attribute{
			{Key: "id", Val: ScriptID},
			{Key: "type", Val: "module"},
		},
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: src})

	target := cascadia.Query(doc, bodySelector)
	if target == nil {
		target = doc
	}
	target.AppendChild(el)
	return diagram.Resolved(nil)
}

// Source returns the loader module for selector.
func (r *Renderer) Source(selector string) (string, error) {
	cfg := map[string]any{"startOnLoad": r.startOnLoad.Load()}
	if r.opts.Theme != "" {
		cfg["theme"] = r.opts.Theme
	}
	// json.Marshal escapes '<', '>' and '&', so the literals cannot close the script element.
	moduleURL, err := json.Marshal(r.opts.ModuleURL)
	if err != nil {
		return "", err
	}
	initCfg, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	runCfg, err := json.Marshal(map[string]string{"querySelector": selector})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nimport mermaid from %s;\n", moduleURL)
	fmt.Fprintf(&b, "mermaid.initialize(%s);\n", initCfg)
	fmt.Fprintf(&b, "await mermaid.run(%s);\n", runCfg)
	return b.String(), nil
}
