// Package diagram turns fenced diagram placeholders in a rendered page into
// containers a diagram rendering library can draw, and hands the page to
// that library.
//
// A placeholder is a code element inside a pre block carrying the language
// class (`pre code.language-mermaid`). Each pass replaces the placeholder's
// wrapper with `<div class="mermaid">raw text</div>` and then calls the
// injected Renderer once with a selector matching the marker class.
//
// The page is an explicit *html.Node tree and the renderer an explicit,
// optional dependency: a nil renderer makes every pass a no-op, which is how
// pages are left untouched when no rendering library is available.
package diagram
