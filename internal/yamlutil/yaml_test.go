package yamlutil_test

// Notes:
// - Marshal error branch: not tested because yaml.Marshal only fails with
//   unmarshalable types (channels, functions), which no caller passes.

import (
	"errors"
	"strings"
	"testing"

	"github.com/alnah/go-texrender/internal/yamlutil"
)

type mathSection struct {
	Format  string  `yaml:"format"`
	Timeout string  `yaml:"timeout"`
	Scale   float64 `yaml:"scale"`
}

// ---------------------------------------------------------------------------
// TestUnmarshal - Lenient decoding
// ---------------------------------------------------------------------------

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		dest    any
		wantErr error
		wantAny bool
	}{
		{name: "valid YAML", data: []byte("format: svg\nscale: 1.2"), dest: &mathSection{}},
		{name: "unknown fields ignored", data: []byte("format: svg\nextra: 1"), dest: &mathSection{}},
		{name: "nil data", data: nil, dest: &mathSection{}, wantErr: yamlutil.ErrNilData},
		{name: "empty data", data: []byte{}, dest: &mathSection{}, wantErr: yamlutil.ErrNilData},
		{name: "nil destination", data: []byte("format: svg"), dest: nil, wantErr: yamlutil.ErrNilDestination},
		{name: "invalid syntax", data: []byte("format: [unclosed"), dest: &mathSection{}, wantAny: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := yamlutil.Unmarshal(tt.data, tt.dest)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAny:
				if err == nil || !strings.HasPrefix(err.Error(), "yamlutil:") {
					t.Errorf("error = %v, want yamlutil-prefixed error", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got := tt.dest.(*mathSection); got.Format != "svg" {
					t.Errorf("Format = %q, want svg", got.Format)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestUnmarshalStrict - Unknown fields rejected
// ---------------------------------------------------------------------------

func TestUnmarshalStrict(t *testing.T) {
	t.Parallel()

	var ok mathSection
	if err := yamlutil.UnmarshalStrict([]byte("format: mathml\ntimeout: 30s"), &ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Format != "mathml" || ok.Timeout != "30s" {
		t.Errorf("decoded %+v", ok)
	}

	var bad mathSection
	if err := yamlutil.UnmarshalStrict([]byte("format: svg\nfromat: typo"), &bad); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestInputSizeLimit(t *testing.T) {
	t.Parallel()

	data := make([]byte, yamlutil.MaxInputSize+1)
	copy(data, "format: svg\n")
	for i := len("format: svg\n"); i < len(data); i++ {
		data[i] = '#'
	}

	if err := yamlutil.Unmarshal(data, &mathSection{}); !errors.Is(err, yamlutil.ErrInputTooLarge) {
		t.Errorf("Unmarshal error = %v, want ErrInputTooLarge", err)
	}
	if err := yamlutil.UnmarshalStrict(data, &mathSection{}); !errors.Is(err, yamlutil.ErrInputTooLarge) {
		t.Errorf("UnmarshalStrict error = %v, want ErrInputTooLarge", err)
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	out, err := yamlutil.Marshal(mathSection{Format: "svg", Scale: 1.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "format: svg") || !strings.Contains(string(out), "scale: 1.5") {
		t.Errorf("Marshal() = %s", out)
	}
}

// ---------------------------------------------------------------------------
// TestSplitFrontMatter - Document headers
// ---------------------------------------------------------------------------

func TestSplitFrontMatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantOK   bool
		wantHead string
		wantYAML string
		wantBody string
	}{
		{
			name:     "standard block",
			input:    "---\ntitle: Post\nmathjax: true\n---\nBody $x$\n",
			wantOK:   true,
			wantHead: "---\ntitle: Post\nmathjax: true\n---\n",
			wantYAML: "title: Post\nmathjax: true\n",
			wantBody: "Body $x$\n",
		},
		{
			name:     "crlf line endings",
			input:    "---\r\na: 1\r\n---\r\nbody",
			wantOK:   true,
			wantHead: "---\r\na: 1\r\n---\r\n",
			wantYAML: "a: 1\r\n",
			wantBody: "body",
		},
		{
			name:     "empty block",
			input:    "---\n---\nbody",
			wantOK:   true,
			wantHead: "---\n---\n",
			wantYAML: "",
			wantBody: "body",
		},
		{
			name:     "closing fence at end of file",
			input:    "---\na: 1\n---",
			wantOK:   true,
			wantHead: "---\na: 1\n---",
			wantYAML: "a: 1\n",
			wantBody: "",
		},
		{
			name:     "dots close the block",
			input:    "---\na: 1\n...\nbody",
			wantOK:   true,
			wantHead: "---\na: 1\n...\n",
			wantYAML: "a: 1\n",
			wantBody: "body",
		},
		{
			name:     "no front matter",
			input:    "# Title\n---\n",
			wantBody: "# Title\n---\n",
		},
		{
			name:     "unterminated block",
			input:    "---\na: 1\nbody",
			wantBody: "---\na: 1\nbody",
		},
		{
			name:     "fence alone",
			input:    "---",
			wantBody: "---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			head, y, body, ok := yamlutil.SplitFrontMatter([]byte(tt.input))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if string(head) != tt.wantHead || string(y) != tt.wantYAML || string(body) != tt.wantBody {
				t.Errorf("SplitFrontMatter() = (%q, %q, %q), want (%q, %q, %q)",
					head, y, body, tt.wantHead, tt.wantYAML, tt.wantBody)
			}
			if string(head)+string(body) != tt.input {
				t.Error("head + body does not reproduce the input")
			}
		})
	}
}
