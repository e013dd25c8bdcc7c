package mdext

import (
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// escapeHTMLRenderer overrides the default raw-HTML rendering so that any
// markup embedded in a message is emitted escaped as visible text. This is
// the XSS boundary: rendered bodies are injected as trusted HTML into other
// users' views, so nothing from the input may pass through unescaped.
type escapeHTMLRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *escapeHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
}

func (r *escapeHTMLRenderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*ast.RawHTML)
	for i := 0; i < n.Segments.Len(); i++ {
		segment := n.Segments.At(i)
		_, _ = w.WriteString(html.EscapeString(string(segment.Value(source))))
	}
	return ast.WalkSkipChildren, nil
}

func (r *escapeHTMLRenderer) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.HTMLBlock)
	if entering {
		_, _ = w.WriteString("<p>")
		for i := 0; i < n.Lines().Len(); i++ {
			line := n.Lines().At(i)
			_, _ = w.WriteString(html.EscapeString(string(line.Value(source))))
		}
	} else {
		if n.HasClosure() {
			closure := n.ClosureLine
			_, _ = w.WriteString(html.EscapeString(string(closure.Value(source))))
		}
		_, _ = w.WriteString("</p>\n")
	}
	return ast.WalkContinue, nil
}

type escapeRawHTML struct{}

// EscapeRawHTML renders raw HTML blocks and inline HTML as escaped text.
var EscapeRawHTML = &escapeRawHTML{}

// Extend implements goldmark.Extender. The renderer registers with a higher
// priority (lower value) than the built-in HTML renderer so it takes over the
// raw-HTML node kinds.
func (e *escapeRawHTML) Extend(m goldmark.Markdown) {
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&escapeHTMLRenderer{}, 500),
	))
}
