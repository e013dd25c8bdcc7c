package mdext

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// UnderlineNode is an __underlined__ span. Double underscores are claimed for
// underline instead of strong emphasis; ** remains the strong delimiter and
// single _ remains plain emphasis.
type UnderlineNode struct {
	ast.BaseInline
}

// KindUnderline is the node kind for UnderlineNode.
var KindUnderline = ast.NewNodeKind("Underline")

// Kind implements ast.Node.
func (n *UnderlineNode) Kind() ast.NodeKind { return KindUnderline }

// Dump implements ast.Node.
func (n *UnderlineNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

type underlineDelimiterProcessor struct{}

func (p *underlineDelimiterProcessor) IsDelimiter(r byte) bool {
	return r == '_'
}

func (p *underlineDelimiterProcessor) CanOpenCloser(opener, closer *parser.Delimiter) bool {
	return opener.CanOpen && closer.CanClose
}

func (p *underlineDelimiterProcessor) OnMatch(consumes int) ast.Node {
	return &UnderlineNode{}
}

var defaultUnderlineDelimiterProcessor = &underlineDelimiterProcessor{}

type underlineParser struct{}

var defaultUnderlineParser = &underlineParser{}

func (p *underlineParser) Trigger() []byte {
	return []byte{'_'}
}

func (p *underlineParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	before := block.PrecendingCharacter()
	line, segment := block.PeekLine()
	// Runs shorter than two underscores fall through to the core emphasis
	// parser.
	node := parser.ScanDelimiter(line, before, 2, defaultUnderlineDelimiterProcessor)
	if node == nil {
		return nil
	}
	node.Segment = segment.WithStop(segment.Start + node.OriginalLength)
	block.Advance(node.OriginalLength)
	pc.PushDelimiter(node)
	return node
}

type underlineHTMLRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *underlineHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindUnderline, r.renderUnderline)
}

func (r *underlineHTMLRenderer) renderUnderline(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<u>")
	} else {
		_, _ = w.WriteString("</u>")
	}
	return ast.WalkContinue, nil
}

type underline struct{}

// Underline enables __underline__ spans.
var Underline = &underline{}

// Extend implements goldmark.Extender. The inline parser registers ahead of
// the core emphasis parser so it wins the '_' trigger for double-underscore
// runs.
func (e *underline) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(defaultUnderlineParser, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&underlineHTMLRenderer{}, 500),
	))
}
