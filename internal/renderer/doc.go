// Package renderer holds the diagram rendering library adapters.
//
// Subpackages implement diagram.Renderer:
//
//   - script delegates rendering to the browser by injecting the mermaid
//     module loader into the page.
//   - ink renders on the server through a mermaid.ink compatible service and
//     inlines the resulting SVG.
//
// FromConfig picks the adapter selected by configuration.
package renderer
