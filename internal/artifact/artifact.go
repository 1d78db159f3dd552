// Package artifact describes rendered formula files and recovers their
// metadata from disk.
package artifact

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Sentinel errors for artifact inspection.
var (
	ErrUnknownFormat = errors.New("unknown artifact format")
	ErrMalformed     = errors.New("malformed artifact")
)

// Format is the on-disk representation of a rendered formula.
type Format string

// Supported formats.
const (
	FormatSVG    Format = "svg"
	FormatMathML Format = "mathml"
)

// Ext returns the file extension used for the format, including the dot.
func (f Format) Ext() string {
	if f == FormatMathML {
		return ".mml"
	}
	return ".svg"
}

// ParseFormat converts a configuration value to a Format (case-insensitive).
// Empty input selects SVG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "svg":
		return FormatSVG, nil
	case "mathml", "mml":
		return FormatMathML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Dimensions is the intrinsic size reported by the renderer.
type Dimensions struct {
	Width         float64
	Height        float64
	Unit          string // "ex", "em", "px" or "" (unitless = px)
	VerticalAlign string // CSS length, e.g. "-0.338ex"
}

// Valid reports whether both sides are known and positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Artifact is one rendered formula on disk.
type Artifact struct {
	Key      string
	Filename string
	Path     string
	Format   Format
	Dims     Dimensions
	Markup   string // <math> element, MathML only
}

// Inspect reads the artifact at path and extracts the metadata the rewriter
// needs, so cached formulas never require a second render.
func Inspect(path string, format Format) (Artifact, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a content hash
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{Path: path, Format: format}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	switch format {
	case FormatSVG:
		root := doc.Root()
		if root == nil || root.Tag != "svg" {
			return Artifact{}, fmt.Errorf("%w: %s: missing <svg> root", ErrMalformed, path)
		}
		a.Dims = svgDimensions(root)
	case FormatMathML:
		el := doc.FindElement("//math")
		if el == nil {
			return Artifact{}, fmt.Errorf("%w: %s: missing <math> element", ErrMalformed, path)
		}
		out := etree.NewDocument()
		out.SetRoot(el.Copy())
		markup, err := out.WriteToString()
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		a.Markup = strings.TrimSpace(markup)
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return a, nil
}

// svgDimensions reads width, height and vertical-align from an SVG root.
// When width/height are absent the viewBox is used, in user units.
func svgDimensions(root *etree.Element) Dimensions {
	var d Dimensions

	w, wu := ParseLength(root.SelectAttrValue("width", ""))
	h, hu := ParseLength(root.SelectAttrValue("height", ""))
	if w > 0 && h > 0 && wu == hu {
		d.Width, d.Height, d.Unit = w, h, wu
	} else if vb := strings.Fields(strings.ReplaceAll(root.SelectAttrValue("viewBox", ""), ",", " ")); len(vb) == 4 {
		vw, errW := strconv.ParseFloat(vb[2], 64)
		vh, errH := strconv.ParseFloat(vb[3], 64)
		if errW == nil && errH == nil {
			d.Width, d.Height, d.Unit = vw, vh, ""
		}
	}

	d.VerticalAlign = styleProperty(root.SelectAttrValue("style", ""), "vertical-align")
	return d
}

// ParseLength splits a CSS/SVG length such as "2.009ex" into value and unit.
// It returns 0 for anything unparsable or non-finite.
func ParseLength(s string) (float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ""
	}
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '%' {
			i--
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ""
	}
	return v, strings.ToLower(s[i:])
}

// styleProperty returns the value of one declaration in an inline style.
func styleProperty(style, name string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
