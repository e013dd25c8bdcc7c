package mdext

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// emptyLinkTransformer unwraps links with an empty destination: the link text
// stays, the anchor is dropped, so empty-target links never render as broken
// anchors.
type emptyLinkTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *emptyLinkTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	var empty []*ast.Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok && len(link.Destination) == 0 {
			empty = append(empty, link)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, link := range empty {
		parent := link.Parent()
		if parent == nil {
			continue
		}
		for child := link.FirstChild(); child != nil; {
			next := child.NextSibling()
			parent.InsertBefore(parent, link, child)
			child = next
		}
		parent.RemoveChild(parent, link)
	}
}

type dropEmptyLinks struct{}

// DropEmptyLinks removes anchors whose target is empty, keeping their text.
var DropEmptyLinks = &dropEmptyLinks{}

// Extend implements goldmark.Extender.
func (e *dropEmptyLinks) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&emptyLinkTransformer{}, 600),
	))
}
