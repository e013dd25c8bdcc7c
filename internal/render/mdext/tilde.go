// Package mdext holds the in-repo goldmark extensions used by the message
// renderer: tilde-delimited strikethrough and subscript, double-underscore
// underline, admonition blockquotes, escaped raw HTML, and empty-link
// dropping.
package mdext

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Strikethrough is a ~~deleted~~ span.
type Strikethrough struct {
	ast.BaseInline
}

// KindStrikethrough is the node kind for Strikethrough.
var KindStrikethrough = ast.NewNodeKind("Strikethrough")

// Kind implements ast.Node.
func (n *Strikethrough) Kind() ast.NodeKind { return KindStrikethrough }

// Dump implements ast.Node.
func (n *Strikethrough) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// Subscript is a ~subscript~ span.
type Subscript struct {
	ast.BaseInline
}

// KindSubscript is the node kind for Subscript.
var KindSubscript = ast.NewNodeKind("Subscript")

// Kind implements ast.Node.
func (n *Subscript) Kind() ast.NodeKind { return KindSubscript }

// Dump implements ast.Node.
func (n *Subscript) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// tildeDelimiterProcessor maps tilde runs to spans: two or more tildes make a
// strikethrough, a single tilde makes a subscript.
type tildeDelimiterProcessor struct{}

func (p *tildeDelimiterProcessor) IsDelimiter(r byte) bool {
	return r == '~'
}

func (p *tildeDelimiterProcessor) CanOpenCloser(opener, closer *parser.Delimiter) bool {
	return opener.CanOpen && closer.CanClose
}

func (p *tildeDelimiterProcessor) OnMatch(consumes int) ast.Node {
	if consumes >= 2 {
		return &Strikethrough{}
	}
	return &Subscript{}
}

var defaultTildeDelimiterProcessor = &tildeDelimiterProcessor{}

type tildeParser struct{}

var defaultTildeParser = &tildeParser{}

func (p *tildeParser) Trigger() []byte {
	return []byte{'~'}
}

func (p *tildeParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	before := block.PrecendingCharacter()
	line, segment := block.PeekLine()
	node := parser.ScanDelimiter(line, before, 1, defaultTildeDelimiterProcessor)
	if node == nil {
		return nil
	}
	node.Segment = segment.WithStop(segment.Start + node.OriginalLength)
	block.Advance(node.OriginalLength)
	pc.PushDelimiter(node)
	return node
}

// tildeHTMLRenderer renders Strikethrough as <del> and Subscript as <sub>.
type tildeHTMLRenderer struct {
	html.Config
}

func newTildeHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &tildeHTMLRenderer{Config: html.NewConfig()}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *tildeHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindStrikethrough, r.renderStrikethrough)
	reg.Register(KindSubscript, r.renderSubscript)
}

func (r *tildeHTMLRenderer) renderStrikethrough(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<del>")
	} else {
		_, _ = w.WriteString("</del>")
	}
	return ast.WalkContinue, nil
}

func (r *tildeHTMLRenderer) renderSubscript(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<sub>")
	} else {
		_, _ = w.WriteString("</sub>")
	}
	return ast.WalkContinue, nil
}

type tilde struct{}

// TildeDelimiters enables ~~strikethrough~~ and ~subscript~ spans.
var TildeDelimiters = &tilde{}

// Extend implements goldmark.Extender.
func (e *tilde) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(defaultTildeParser, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(newTildeHTMLRenderer(), 500),
	))
}
