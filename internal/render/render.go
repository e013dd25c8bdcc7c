// Package render implements the message-rendering pipeline: it normalizes raw
// message text and renders constrained Markdown to sanitized HTML. Raw markup
// embedded in the input is always escaped, never passed through, since
// rendered bodies are injected as trusted HTML into other users' views.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/wikilink"

	"github.com/parlor/chat-app/internal/render/mdext"
)

// Renderer converts raw message bodies into sanitized HTML. It is safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New constructs a Renderer with the full transform set: tables, autolinking,
// smart punctuation, tilde strikethrough and subscript, underline, admonition
// blocks, wiki-style links, hard line breaks, escaped raw markup, and
// empty-target link dropping.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Linkify,
			extension.Typographer,
			mdext.TildeDelimiters,
			mdext.Underline,
			mdext.Admonitions,
			mdext.EscapeRawHTML,
			mdext.DropEmptyLinks,
			&wikilink.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
		),
	)
	return &Renderer{md: md}
}

// Normalize strips trailing whitespace from each line and rejoins lines with
// the Markdown hard line-break marker (two trailing spaces) so that single
// newlines render as visible breaks.
func Normalize(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "  \n")
}

// Render normalizes body and renders it to sanitized HTML. Rendering never
// fails for valid UTF-8 input; should the renderer error anyway, the body is
// returned fully escaped inside a paragraph so nothing unescaped reaches
// clients.
func (r *Renderer) Render(body string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(Normalize(body)), &buf); err != nil {
		return "<p>" + html.EscapeString(body) + "</p>\n"
	}
	return buf.String()
}
