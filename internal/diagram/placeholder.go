package diagram

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Placeholder is a fenced diagram block found in a page.
type Placeholder struct {
	// Code is the element carrying the language class.
	Code *html.Node
	// Text is the raw diagram source, read once at selection time.
	Text string
}

// Wrapper returns the element immediately enclosing the code element.
func (p *Placeholder) Wrapper() *html.Node {
	return p.Code.Parent
}

// Parent returns the wrapper's parent, or nil for a detached wrapper.
func (p *Placeholder) Parent() *html.Node {
	if w := p.Wrapper(); w != nil {
		return w.Parent
	}
	return nil
}

// TextContent concatenates the data of every descendant text node, the way a
// browser's textContent does. Nothing is trimmed.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func newContainer(markerClass, text string) *html.Node {
	container := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     atom.Div.String(),
		Attr:     []html.Attribute{{Key: "class", Val: markerClass}},
	}
	container.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return container
}
