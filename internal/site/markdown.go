package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/alnah/go-texrender/internal/assets"
)

// ErrHTMLConversion indicates HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// Highlighting defaults.
const (
	DefaultHighlightStyle = "github"
	HighlightURL          = "/assets/css/highlight.css"
)

// htmlTemplate wraps Goldmark's fragment output in a complete HTML5 document.
const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<link rel="stylesheet" href="%s">
<link rel="stylesheet" href="%s">
</head>
<body>
%s
</body>
</html>`

// MarkdownConverter converts Markdown pages to HTML using goldmark.
type MarkdownConverter struct {
	md goldmark.Markdown
}

// NewMarkdownConverter creates a MarkdownConverter with GFM extensions and
// syntax highlighting. Raw HTML passes through so that formula markup
// written into the Markdown body survives conversion.
func NewMarkdownConverter() *MarkdownConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // Tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true), // styled by HighlightCSS
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			html.WithUnsafe(), // formula <span>/<div>/<math> markup
		),
	)
	return &MarkdownConverter{md: md}
}

// ToHTML converts a document body to a standalone HTML5 page linking the
// formula and highlighting stylesheets.
// Supports context cancellation via goroutine + select pattern since
// Goldmark doesn't natively support context.
func (c *MarkdownConverter) ToHTML(ctx context.Context, doc *Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(doc.Body), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %s: %v", ErrHTMLConversion, doc.RelPath, err)}
			return
		}
		page := fmt.Sprintf(htmlTemplate,
			template.HTMLEscapeString(doc.Title()),
			assets.StylesheetURL,
			HighlightURL,
			buf.String(),
		)
		done <- result{html: page}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// HighlightCSS returns the stylesheet for highlighted code blocks in the
// named chroma style, as a static file served at HighlightURL. Unknown
// style names fall back to chroma's default.
func HighlightCSS(style string) (assets.StaticFile, error) {
	if style == "" {
		style = DefaultHighlightStyle
	}
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get(style)); err != nil {
		return assets.StaticFile{}, fmt.Errorf("%w: highlight stylesheet: %v", ErrHTMLConversion, err)
	}
	return assets.StaticFile{Name: "highlight.css", URL: HighlightURL, Content: buf.Bytes()}, nil
}
