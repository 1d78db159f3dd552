package rewrite_test

import (
	"testing"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/extract"
	"github.com/alnah/go-texrender/internal/rewrite"
)

func svgArtifact(name string, w, h float64, va string) artifact.Artifact {
	return artifact.Artifact{
		Filename: name,
		Format:   artifact.FormatSVG,
		Dims:     artifact.Dimensions{Width: w, Height: h, Unit: "ex", VerticalAlign: va},
	}
}

// resolveAll maps TeX to artifacts; anything absent is unresolved.
func resolveAll(m map[string]artifact.Artifact) rewrite.Resolver {
	return func(f extract.Formula) (artifact.Artifact, bool) {
		a, ok := m[f.TeX]
		return a, ok
	}
}

// ---------------------------------------------------------------------------
// TestRewrite - Document reassembly
// ---------------------------------------------------------------------------

func TestRewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rw        rewrite.Rewriter
		input     string
		artifacts map[string]artifact.Artifact
		want      string
	}{
		{
			name:  "no formulas is identity",
			input: "Plain *markdown* with <b>html</b> & entities.",
			want:  "Plain *markdown* with <b>html</b> & entities.",
		},
		{
			name:  "display and inline",
			input: "Energy: $$E=mc^2$$ and inline $x$.",
			artifacts: map[string]artifact.Artifact{
				"E=mc^2": svgArtifact("k1.svg", 8.976, 2.343, "-0.338ex"),
				"x":      svgArtifact("k2.svg", 1.33, 1.005, "-0.025ex"),
			},
			want: `Energy: <div class="math-display"><img src="/assets/math/k1.svg" alt="E=mc^2" width="72" height="19" style="vertical-align: -3px"/></div>` +
				` and inline <span class="math-inline"><img src="/assets/math/k2.svg" alt="x" width="11" height="9"/></span>.`,
		},
		{
			name:  "unresolved formula is kept verbatim",
			input: "ok $a$, broken $\\frac{$ end",
			artifacts: map[string]artifact.Artifact{
				"a": svgArtifact("a.svg", 1, 1, ""),
			},
			want: `ok <span class="math-inline"><img src="/assets/math/a.svg" alt="a" width="8" height="8"/></span>, broken $\frac{$ end`,
		},
		{
			name:  "total failure is byte identical",
			input: "$a$ and $$b$$\n\n$c$",
			want:  "$a$ and $$b$$\n\n$c$",
		},
		{
			name:  "alt is escaped and whitespace collapsed",
			input: "$a < b\n  \"c\" & 'd'$",
			artifacts: map[string]artifact.Artifact{
				"a < b\n  \"c\" & 'd'": svgArtifact("e.svg", 1, 1, ""),
			},
			want: `<span class="math-inline"><img src="/assets/math/e.svg" alt="a &lt; b &#34;c&#34; &amp; &#39;d&#39;" width="8" height="8"/></span>`,
		},
		{
			name:  "custom public path scale and ex size",
			rw:    rewrite.Rewriter{PublicPath: "https://cdn.example/math/", ExPx: 10, Scale: 1.5},
			input: "$y$",
			artifacts: map[string]artifact.Artifact{
				"y": svgArtifact("y.svg", 2, 1, "-0.5ex"),
			},
			want: `<span class="math-inline"><img src="https://cdn.example/math/y.svg" alt="y" width="30" height="15" style="vertical-align: -8px"/></span>`,
		},
		{
			name:  "unknown dimensions omit size attributes",
			input: "$z$",
			artifacts: map[string]artifact.Artifact{
				"z": {Filename: "z.svg", Format: artifact.FormatSVG},
			},
			want: `<span class="math-inline"><img src="/assets/math/z.svg" alt="z"/></span>`,
		},
		{
			name:  "mathml is inlined",
			input: "$$\\alpha$$",
			artifacts: map[string]artifact.Artifact{
				`\alpha`: {Filename: "m.mml", Format: artifact.FormatMathML, Markup: `<math display="block"><mi>α</mi></math>`},
			},
			want: `<div class="math-display" role="math" aria-label="\alpha"><math display="block"><mi>α</mi></math></div>`,
		},
		{
			name:  "mathml without markup falls back",
			input: "$q$",
			artifacts: map[string]artifact.Artifact{
				"q": {Filename: "q.mml", Format: artifact.FormatMathML},
			},
			want: "$q$",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := extract.Extract(tt.input)
			got := tt.rw.Rewrite(res, resolveAll(tt.artifacts))
			if got != tt.want {
				t.Errorf("Rewrite():\n got %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestRewrite_PreservesLiteralBytes(t *testing.T) {
	t.Parallel()

	input := "α\r\n\t$x$\x00tail  "
	res := extract.Extract(input)
	got := rewrite.Rewriter{}.Rewrite(res, resolveAll(map[string]artifact.Artifact{
		"x": svgArtifact("x.svg", 1, 1, ""),
	}))

	wantPrefix, wantSuffix := "α\r\n\t", "\x00tail  "
	if got[:len(wantPrefix)] != wantPrefix || got[len(got)-len(wantSuffix):] != wantSuffix {
		t.Errorf("literal bytes changed: %q", got)
	}
}

// ---------------------------------------------------------------------------
// TestLabel - Accessible text
// ---------------------------------------------------------------------------

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"x", "x"},
		{"  a +\n\tb  ", "a + b"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := rewrite.Label(tt.in); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
