// Package rewrite replaces extracted formulas with references to their
// rendered artifacts.
package rewrite

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/extract"
)

// Defaults applied to zero-valued Rewriter fields.
const (
	DefaultPublicPath = "/assets/math"
	DefaultExPx       = 8.0
	DefaultScale      = 1.0
)

// CSS classes on the generated wrappers.
const (
	ClassInline  = "math-inline"
	ClassDisplay = "math-display"
)

// Resolver returns the artifact for a formula, or false when the formula
// could not be rendered.
type Resolver func(extract.Formula) (artifact.Artifact, bool)

// Rewriter turns an extraction result into the final document text.
type Rewriter struct {
	PublicPath string  // URL prefix artifacts are served under
	ExPx       float64 // pixels per ex
	Scale      float64 // display multiplier applied to intrinsic sizes
}

// Rewrite reassembles res. Literal text is copied unchanged; each formula is
// replaced by its rendered markup, or kept as written when resolve has no
// artifact for it.
func (rw Rewriter) Rewrite(res extract.Result, resolve Resolver) string {
	var b strings.Builder
	for _, seg := range res.Segments {
		if seg.Formula == nil {
			b.WriteString(seg.Text)
			continue
		}
		a, ok := resolve(*seg.Formula)
		if !ok {
			b.WriteString(seg.Text)
			continue
		}
		markup, ok := rw.Markup(*seg.Formula, a)
		if !ok {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(markup)
	}
	return b.String()
}

// Markup renders the replacement for one formula. It reports false when the
// artifact cannot be embedded.
func (rw Rewriter) Markup(f extract.Formula, a artifact.Artifact) (string, bool) {
	wrapper := &html.Node{Type: html.ElementNode}
	if f.Mode == extract.ModeDisplay {
		wrapper.Data, wrapper.DataAtom = "div", atom.Div
		wrapper.Attr = []html.Attribute{{Key: "class", Val: ClassDisplay}}
	} else {
		wrapper.Data, wrapper.DataAtom = "span", atom.Span
		wrapper.Attr = []html.Attribute{{Key: "class", Val: ClassInline}}
	}

	label := Label(f.TeX)

	switch a.Format {
	case artifact.FormatMathML:
		if a.Markup == "" {
			return "", false
		}
		wrapper.Attr = append(wrapper.Attr,
			html.Attribute{Key: "role", Val: "math"},
			html.Attribute{Key: "aria-label", Val: label},
		)
		wrapper.AppendChild(&html.Node{Type: html.RawNode, Data: a.Markup})
	default:
		if a.Filename == "" {
			return "", false
		}
		wrapper.AppendChild(rw.img(a, label))
	}

	var b strings.Builder
	if err := html.Render(&b, wrapper); err != nil {
		return "", false
	}
	return b.String(), true
}

func (rw Rewriter) img(a artifact.Artifact, label string) *html.Node {
	attrs := []html.Attribute{
		{Key: "src", Val: strings.TrimSuffix(rw.publicPath(), "/") + "/" + a.Filename},
		{Key: "alt", Val: label},
	}
	if a.Dims.Valid() {
		attrs = append(attrs,
			html.Attribute{Key: "width", Val: strconv.Itoa(rw.pixels(a.Dims.Width, a.Dims.Unit, true))},
			html.Attribute{Key: "height", Val: strconv.Itoa(rw.pixels(a.Dims.Height, a.Dims.Unit, true))},
		)
	}
	if va := rw.verticalAlign(a.Dims.VerticalAlign); va != "" {
		attrs = append(attrs, html.Attribute{Key: "style", Val: "vertical-align: " + va})
	}
	return &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img, Attr: attrs}
}

// pixels converts a length to whole pixels after scaling. Sizes are rounded
// up and kept at least one pixel so nothing collapses.
func (rw Rewriter) pixels(v float64, unit string, size bool) int {
	px := v * rw.scale()
	switch unit {
	case "ex":
		px *= rw.exPx()
	case "em":
		px *= 2 * rw.exPx()
	case "pt":
		px *= 4.0 / 3.0
	}
	if !size {
		return int(math.Round(px))
	}
	return max(1, int(math.Ceil(px)))
}

// verticalAlign expresses a renderer-provided offset in the same pixel scale
// as width and height. Values in units it does not know are kept verbatim.
func (rw Rewriter) verticalAlign(va string) string {
	if va == "" {
		return ""
	}
	v, unit := artifact.ParseLength(va)
	switch unit {
	case "ex", "em", "pt", "px", "":
		px := rw.pixels(v, unit, false)
		if px == 0 {
			return ""
		}
		return strconv.Itoa(px) + "px"
	}
	return va
}

func (rw Rewriter) publicPath() string {
	if rw.PublicPath == "" {
		return DefaultPublicPath
	}
	return rw.PublicPath
}

func (rw Rewriter) exPx() float64 {
	if rw.ExPx <= 0 {
		return DefaultExPx
	}
	return rw.ExPx
}

func (rw Rewriter) scale() float64 {
	if rw.Scale <= 0 {
		return DefaultScale
	}
	return rw.Scale
}

// Label is the accessible text for a formula: the TeX source with runs of
// whitespace collapsed. HTML escaping happens when the attribute is written.
func Label(tex string) string {
	return strings.Join(strings.Fields(tex), " ")
}
