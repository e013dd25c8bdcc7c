package mdext

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// admonitionKinds are the recognized markers inside "[!KIND]".
var admonitionKinds = map[string]string{
	"NOTE":      "note",
	"TIP":       "tip",
	"IMPORTANT": "important",
	"WARNING":   "warning",
	"CAUTION":   "caution",
}

// admonitionTransformer rewrites blockquotes whose first line is an
// "[!NOTE]"-style marker into admonition blocks: the marker line is removed
// and the blockquote gets an admonition class attribute.
type admonitionTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *admonitionTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	source := reader.Source()

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		bq, ok := n.(*ast.Blockquote)
		if !ok {
			return ast.WalkContinue, nil
		}

		para, ok := bq.FirstChild().(*ast.Paragraph)
		if !ok || para.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		// The marker must be matched against the raw first line: the inline
		// parser splits "[!NOTE]" across several Text nodes ("[", "!NOTE",
		// "]"), so no single child carries the whole marker.
		line := para.Lines().At(0)
		kind, ok := parseAdmonitionMarker(line.Value(source))
		if !ok {
			return ast.WalkContinue, nil
		}

		bq.SetAttributeString("class", []byte("admonition admonition-"+kind))

		// Drop every inline node produced from the marker line. Marker lines
		// parse to plain Text nodes, so the walk stops at the first node
		// belonging to a later line.
		for child := para.FirstChild(); child != nil; {
			next := child.NextSibling()
			txt, ok := child.(*ast.Text)
			if !ok || txt.Segment.Start >= line.Stop {
				break
			}
			para.RemoveChild(para, child)
			child = next
		}
		// An empty marker-only paragraph has nothing left to render.
		if para.ChildCount() == 0 {
			bq.RemoveChild(bq, para)
		}
		return ast.WalkSkipChildren, nil
	})
}

// parseAdmonitionMarker matches a line that is exactly "[!KIND]" for a
// recognized kind and returns the lowercase class suffix.
func parseAdmonitionMarker(line []byte) (string, bool) {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, []byte("[!")) || !bytes.HasSuffix(trimmed, []byte("]")) {
		return "", false
	}
	name := strings.ToUpper(string(trimmed[2 : len(trimmed)-1]))
	kind, ok := admonitionKinds[name]
	return kind, ok
}

type admonition struct{}

// Admonitions enables "> [!NOTE]"-style admonition blockquotes.
var Admonitions = &admonition{}

// Extend implements goldmark.Extender.
func (e *admonition) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&admonitionTransformer{}, 500),
	))
}
