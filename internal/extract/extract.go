// Package extract finds TeX formulas in document text.
//
// Two delimiter forms are recognized:
//   - display math: $$...$$, may span lines
//   - inline math: $...$, must stay within a paragraph
//
// Display delimiters are matched first so that "$$" is never read as two
// adjacent inline delimiters. A backslash escapes the next byte, so "\$" is
// a literal dollar sign. Anything that does not form a complete, non-empty
// formula is kept as literal text; extraction never fails.
package extract

import "strings"

// Mode tells whether a formula is rendered inline or as a display block.
type Mode int

// Formula display modes.
const (
	ModeInline Mode = iota
	ModeDisplay
)

// String returns "inline" or "display".
func (m Mode) String() string {
	if m == ModeDisplay {
		return "display"
	}
	return "inline"
}

// Inline reports whether m is ModeInline.
func (m Mode) Inline() bool {
	return m == ModeInline
}

// Formula is one math span found in a document.
type Formula struct {
	TeX   string // formula body, trimmed of surrounding whitespace
	Mode  Mode
	Start int // byte offset of the opening delimiter
	End   int // byte offset just past the closing delimiter
}

// Segment is a contiguous part of the source: literal text, or a formula
// together with its original delimited text.
type Segment struct {
	Text    string
	Formula *Formula // nil for literal text
}

// Result is the ordered, gap-free segmentation of a document.
type Result struct {
	Segments []Segment
}

// Formulas returns the formulas in document order.
func (r Result) Formulas() []Formula {
	var out []Formula
	for _, s := range r.Segments {
		if s.Formula != nil {
			out = append(out, *s.Formula)
		}
	}
	return out
}

// String reassembles the original source.
func (r Result) String() string {
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Extract segments src using delimiters only.
func Extract(src string) Result {
	return scan(src, nil)
}

// Extractor configures extraction.
type Extractor struct {
	// SkipCode treats Markdown fenced code blocks and code spans as opaque.
	SkipCode bool
}

// Extract segments src, honoring the extractor configuration.
func (e Extractor) Extract(src string) Result {
	if !e.SkipCode || !strings.Contains(src, "$") {
		return scan(src, nil)
	}
	return scan(src, codeMask(src))
}

// scan walks src once. masked[i] == true marks bytes that belong to code and
// can neither open, close, nor be contained in a formula.
func scan(src string, masked []bool) Result {
	isMasked := func(i int) bool { return masked != nil && masked[i] }

	var res Result
	lit := 0 // start of the pending literal segment
	flush := func(end int) {
		if end > lit {
			res.Segments = append(res.Segments, Segment{Text: src[lit:end]})
		}
	}

	n := len(src)
	for i := 0; i < n; {
		if isMasked(i) {
			i++
			continue
		}
		switch src[i] {
		case '\\':
			i += 2
			continue
		case '$':
		default:
			i++
			continue
		}

		if i+1 < n && src[i+1] == '$' && !isMasked(i+1) {
			end, body, ok := closeDisplay(src, i+2, isMasked)
			if !ok {
				i += 2
				continue
			}
			flush(i)
			res.Segments = append(res.Segments, Segment{
				Text:    src[i:end],
				Formula: &Formula{TeX: body, Mode: ModeDisplay, Start: i, End: end},
			})
			i, lit = end, end
			continue
		}

		end, body, ok := closeInline(src, i+1, isMasked)
		if !ok {
			i++
			continue
		}
		flush(i)
		res.Segments = append(res.Segments, Segment{
			Text:    src[i:end],
			Formula: &Formula{TeX: body, Mode: ModeInline, Start: i, End: end},
		})
		i, lit = end, end
	}
	flush(n)
	return res
}

// closeDisplay looks for the "$$" that closes a display formula whose body
// starts at from. It returns the offset past the closing delimiter.
func closeDisplay(src string, from int, isMasked func(int) bool) (end int, body string, ok bool) {
	for j := from; j < len(src); j++ {
		if isMasked(j) {
			return 0, "", false
		}
		switch src[j] {
		case '\\':
			j++
		case '$':
			if j+1 >= len(src) || src[j+1] != '$' || isMasked(j+1) {
				return 0, "", false
			}
			body = strings.TrimSpace(src[from:j])
			if body == "" {
				return 0, "", false
			}
			return j + 2, body, true
		}
	}
	return 0, "", false
}

// closeInline looks for the "$" that closes an inline formula whose body
// starts at from. The body may not cross a blank line.
func closeInline(src string, from int, isMasked func(int) bool) (end int, body string, ok bool) {
	for j := from; j < len(src); j++ {
		if isMasked(j) {
			return 0, "", false
		}
		switch src[j] {
		case '\\':
			j++
		case '\n':
			if blankLineFollows(src, j+1) {
				return 0, "", false
			}
		case '$':
			body = strings.TrimSpace(src[from:j])
			if body == "" {
				return 0, "", false
			}
			return j + 1, body, true
		}
	}
	return 0, "", false
}

// blankLineFollows reports whether the line starting at i is empty or
// whitespace-only.
func blankLineFollows(src string, i int) bool {
	for ; i < len(src); i++ {
		switch src[i] {
		case ' ', '\t', '\r':
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}
