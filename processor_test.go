package texrender

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-texrender/internal/cache"
	"github.com/alnah/go-texrender/internal/extract"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="3ex" height="2ex" style="vertical-align: -0.5ex"></svg>`

// stageRenderer is a BatchRenderer that writes testSVG (or a MathML
// document) for every request whose TeX is not listed in bad.
type stageRenderer struct {
	mu    sync.Mutex
	calls [][]Request

	bad    map[string]bool
	err    error
	mathml bool
	delay  time.Duration
}

func (r *stageRenderer) RenderBatch(ctx context.Context, stageDir string, reqs []Request) ([]Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, reqs)
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		res := Result{Formula: req.TeX, Inline: req.Mode.Inline(), Hash: req.Key}
		if r.bad[req.TeX] {
			res.Error = "Undefined control sequence"
			results = append(results, res)
			continue
		}
		name, body := req.Key+".svg", testSVG
		if r.mathml {
			name, body = req.Key+".mml", `<math xmlns="http://www.w3.org/1998/Math/MathML"><mi>`+req.TeX+`</mi></math>`
		}
		if err := os.WriteFile(filepath.Join(stageDir, name), []byte(body), 0o600); err != nil {
			return nil, err
		}
		res.Success, res.Filename = true, name
		results = append(results, res)
	}
	return results, nil
}

func (r *stageRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *stageRenderer) lastBatch() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func newTestProcessor(t *testing.T, dir string, r BatchRenderer, opts ...Option) *Processor {
	t.Helper()
	opts = append([]Option{WithCacheDir(dir), WithRenderer(r)}, opts...)
	p, err := NewProcessor(opts...)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func imgFor(tex string, mode extract.Mode) string {
	return `<img src="/assets/math/` + cache.Key(tex, mode) + `.svg" alt="` + tex +
		`" width="24" height="16" style="vertical-align: -4px"/>`
}

// ---------------------------------------------------------------------------
// TestProcess - Single document pipeline
// ---------------------------------------------------------------------------

func TestProcess_Energy(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)

	got, err := p.Process(context.Background(), "Energy: $$E=mc^2$$ and inline $x$.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `Energy: <div class="math-display">` + imgFor("E=mc^2", extract.ModeDisplay) + `</div>` +
		` and inline <span class="math-inline">` + imgFor("x", extract.ModeInline) + `</span>.`
	if got != want {
		t.Errorf("Process():\n got %s\nwant %s", got, want)
	}
	if r.callCount() != 1 {
		t.Fatalf("renderer called %d times, want 1", r.callCount())
	}
	if n := len(r.lastBatch()); n != 2 {
		t.Errorf("batch size = %d, want 2", n)
	}
	for _, f := range []extract.Formula{{TeX: "E=mc^2", Mode: extract.ModeDisplay}, {TeX: "x"}} {
		if _, err := os.Stat(filepath.Join(p.CacheDir(), cache.Key(f.TeX, f.Mode)+".svg")); err != nil {
			t.Errorf("artifact for %q missing: %v", f.TeX, err)
		}
	}
}

func TestProcess_PassThrough(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"No math here.\n\nJust *markdown* and <b>html</b>.",
		"A lone $ sign and an escaped \\$5.",
		"Unterminated $$display",
	}

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)

	for _, in := range inputs {
		got, err := p.Process(context.Background(), in)
		if err != nil {
			t.Fatalf("Process(%q) error = %v", in, err)
		}
		if got != in {
			t.Errorf("Process(%q) = %q, want unchanged", in, got)
		}
	}
	if r.callCount() != 0 {
		t.Errorf("renderer called %d times, want 0", r.callCount())
	}
}

func TestProcess_PreservesLiteralText(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, t.TempDir(), &stageRenderer{})

	in := "# Title\r\n\n  indented $a$\ttab\n\n```\ncode $b$\n```\nend"
	got, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prefix := "# Title\r\n\n  indented "
	suffix := "\ttab\n\n```\ncode $b$\n```\nend"
	if !strings.HasPrefix(got, prefix) || !strings.HasSuffix(got, suffix) {
		t.Errorf("literal text changed: %q", got)
	}
}

func TestProcess_TwiceInARow(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)
	in := "$a$ then $$b$$ then $a$ again"

	first, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	second, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if first != second {
		t.Errorf("outputs differ:\n%s\n%s", first, second)
	}
	if r.callCount() != 1 {
		t.Errorf("renderer called %d times, want 1", r.callCount())
	}
	if n := len(r.lastBatch()); n != 2 {
		t.Errorf("batch size = %d, want 2 (duplicates removed)", n)
	}

	st := p.Stats()
	if st.Misses != 2 || st.Hits != 2 || st.Rendered != 2 || st.Batches != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestProcess_AcrossProcesses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := "Inline $x^2$ and $$\\int_0^1 f$$."

	r1 := &stageRenderer{}
	first, err := newTestProcessor(t, dir, r1).Process(context.Background(), in)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}

	r2 := &stageRenderer{}
	p2 := newTestProcessor(t, dir, r2)
	second, err := p2.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if first != second {
		t.Errorf("outputs differ:\n%s\n%s", first, second)
	}
	if r2.callCount() != 0 {
		t.Errorf("second process called renderer %d times, want 0", r2.callCount())
	}
	if st := p2.Stats(); st.Hits != 2 || st.Misses != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestProcess_WhitespaceInsensitiveKey(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)

	got, err := p.Process(context.Background(), "$x$ and $ x $ and $\n x\n$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len(r.lastBatch()); n != 1 {
		t.Errorf("batch size = %d, want 1", n)
	}
	if c := strings.Count(got, cache.Key("x", extract.ModeInline)+".svg"); c != 3 {
		t.Errorf("artifact referenced %d times, want 3: %s", c, got)
	}
}

func TestProcess_MixedBatch(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{bad: map[string]bool{`\frac{`: true}}
	p := newTestProcessor(t, t.TempDir(), r)

	got, err := p.Process(context.Background(), `good $y$, bad $\frac{$, good $$z$$`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `good <span class="math-inline">` + imgFor("y", extract.ModeInline) + `</span>` +
		`, bad $\frac{$, good <div class="math-display">` + imgFor("z", extract.ModeDisplay) + `</div>`
	if got != want {
		t.Errorf("Process():\n got %s\nwant %s", got, want)
	}
	if r.callCount() != 1 {
		t.Errorf("renderer called %d times, want 1", r.callCount())
	}

	// The failure is remembered for the rest of the process.
	if _, err := p.Process(context.Background(), `$\frac{$`); err != nil {
		t.Fatal(err)
	}
	if r.callCount() != 1 {
		t.Errorf("failed formula re-rendered: %d calls", r.callCount())
	}
	if st := p.Stats(); st.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", st.Failed)
	}
}

func TestProcess_TotalFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    *stageRenderer
	}{
		{name: "renderer error", r: &stageRenderer{err: errors.New("exit status 1")}},
		{name: "every formula fails", r: &stageRenderer{bad: map[string]bool{"a": true, "b": true}}},
	}

	in := "Text $a$ and\n\n$$b$$\n"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProcessor(t, t.TempDir(), tt.r)
			got, err := p.Process(context.Background(), in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != in {
				t.Errorf("Process() = %q, want input unchanged", got)
			}
		})
	}
}

func TestProcess_Timeout(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{delay: time.Second}
	p := newTestProcessor(t, t.TempDir(), r, WithTimeout(20*time.Millisecond))

	in := "slow $q$"
	got, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != in {
		t.Errorf("Process() = %q, want input unchanged after timeout", got)
	}
}

func TestProcess_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)
	if _, err := p.Process(ctx, "$x$"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if r.callCount() != 0 {
		t.Errorf("renderer called %d times, want 0", r.callCount())
	}
}

func TestProcess_SkipCode(t *testing.T) {
	t.Parallel()

	in := "Cost `$5 and $6` then $k$"

	skipping := newTestProcessor(t, t.TempDir(), &stageRenderer{})
	got, err := skipping.Process(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Cost `$5 and $6` then <span") {
		t.Errorf("code span rewritten: %s", got)
	}

	r := &stageRenderer{}
	plain := newTestProcessor(t, t.TempDir(), r, WithSkipCode(false))
	if _, err := plain.Process(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if batch := r.lastBatch(); len(batch) == 0 || batch[0].TeX != "5 and" {
		t.Errorf("first request = %+v, want the code span body", batch)
	}
}

func TestProcess_IndentedHTML(t *testing.T) {
	t.Parallel()

	in := "<div>\n  <div>\n    <p>A $x$</p>\n\n    <p>B $y$</p>\n  </div>\n</div>\n"

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)
	got, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for _, tex := range []string{"x", "y"} {
		want := `<span class="math-inline">` + imgFor(tex, extract.ModeInline) + `</span>`
		if !strings.Contains(got, want) {
			t.Errorf("$%s$ not rendered:\n%s", tex, got)
		}
	}
	if batch := r.lastBatch(); len(batch) != 2 {
		t.Errorf("batch size = %d, want 2", len(batch))
	}
}

func TestProcessSources(t *testing.T) {
	t.Parallel()

	srcs := []Source{
		{Content: "Use `$HOME` and $a$.", Markdown: true},
		{Content: "Run `$b$` now", Markdown: false},
		{Content: "no math", Markdown: true},
	}

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)
	out, err := p.ProcessSources(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(srcs) {
		t.Fatalf("got %d documents, want %d", len(out), len(srcs))
	}
	if !strings.HasPrefix(out[0], "Use `$HOME` and <span") {
		t.Errorf("markdown source: %s", out[0])
	}
	if !strings.Contains(out[1], imgFor("b", extract.ModeInline)) {
		t.Errorf("non-markdown source skipped code-like text: %s", out[1])
	}
	if out[2] != "no math" {
		t.Errorf("pass-through changed: %q", out[2])
	}
	if r.callCount() != 1 {
		t.Errorf("renderer calls = %d, want 1", r.callCount())
	}
}

func TestProcess_MathML(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, t.TempDir(), &stageRenderer{mathml: true}, WithFormat(FormatMathML))

	got, err := p.Process(context.Background(), "$$n$$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, `<div class="math-display" role="math" aria-label="n"><math`) ||
		!strings.Contains(got, "<mi>n</mi>") {
		t.Errorf("Process() = %s", got)
	}
}

func TestProcess_Concurrent(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{delay: 50 * time.Millisecond}
	p := newTestProcessor(t, t.TempDir(), r)

	const n = 8
	outs := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Process(context.Background(), "shared $s$")
			if err != nil {
				t.Errorf("Process() error = %v", err)
			}
			outs[i] = out
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if outs[i] != outs[0] {
			t.Errorf("output %d differs: %s", i, outs[i])
		}
	}
	if !strings.Contains(outs[0], `class="math-inline"`) {
		t.Errorf("formula not rewritten: %s", outs[0])
	}
	if r.callCount() != 1 {
		t.Errorf("renderer called %d times, want 1", r.callCount())
	}
}

// ---------------------------------------------------------------------------
// TestProcessAll - Whole-build aggregation
// ---------------------------------------------------------------------------

func TestProcessAll(t *testing.T) {
	t.Parallel()

	r := &stageRenderer{}
	p := newTestProcessor(t, t.TempDir(), r)

	docs := []string{"one $a$", "plain", "two $a$ and $$b$$"}
	got, err := p.ProcessAll(context.Background(), docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != len(docs) {
		t.Fatalf("got %d documents, want %d", len(got), len(docs))
	}
	if got[1] != "plain" {
		t.Errorf("document without formulas changed: %q", got[1])
	}
	if !strings.HasPrefix(got[2], "two <span") || !strings.Contains(got[2], `<div class="math-display">`) {
		t.Errorf("third document = %s", got[2])
	}
	if r.callCount() != 1 || len(r.lastBatch()) != 2 {
		t.Errorf("renderer calls = %d, last batch = %d; want one batch of 2", r.callCount(), len(r.lastBatch()))
	}
}

// ---------------------------------------------------------------------------
// TestAssets - Registration of generated files
// ---------------------------------------------------------------------------

type fakeRegistry struct {
	files []StaticFile
}

func (f *fakeRegistry) AddStaticFile(sf StaticFile) { f.files = append(f.files, sf) }

func TestRegisterAssets(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, t.TempDir(), &stageRenderer{}, WithPublicPath("/static/tex"))
	if _, err := p.Process(context.Background(), "$a$ $b$"); err != nil {
		t.Fatal(err)
	}

	reg := &fakeRegistry{}
	n, err := p.RegisterAssets(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 || len(reg.files) != 3 {
		t.Fatalf("registered %d files (%d seen), want 2 artifacts + stylesheet", n, len(reg.files))
	}

	for _, f := range reg.files[:2] {
		if !strings.HasPrefix(f.URL, "/static/tex/") || f.SourcePath == "" {
			t.Errorf("artifact file = %+v", f)
		}
	}
	css := reg.files[2]
	if css.Name != "math.css" || !strings.Contains(string(css.Content), ".math-inline") {
		t.Errorf("stylesheet = %+v", css)
	}
}

func TestAssets_CustomStyles(t *testing.T) {
	t.Parallel()

	styles := t.TempDir()
	if err := os.WriteFile(filepath.Join(styles, "math.css"), []byte(".math-display{margin:0}"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := newTestProcessor(t, t.TempDir(), &stageRenderer{}, WithStylesDir(styles))
	files, err := p.Assets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || string(files[0].Content) != ".math-display{margin:0}" {
		t.Errorf("Assets() = %+v", files)
	}
}

// ---------------------------------------------------------------------------
// TestNewProcessor - Construction and options
// ---------------------------------------------------------------------------

func TestNewProcessor_InvalidDirs(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewProcessor(WithCacheDir(file), WithRenderer(&stageRenderer{})); !errors.Is(err, ErrInvalidCacheDir) {
		t.Errorf("cache dir error = %v, want ErrInvalidCacheDir", err)
	}
	_, err := NewProcessor(WithCacheDir(t.TempDir()), WithRenderer(&stageRenderer{}),
		WithStylesDir(filepath.Join(t.TempDir(), "missing")))
	if !errors.Is(err, ErrInvalidStyles) {
		t.Errorf("styles dir error = %v, want ErrInvalidStyles", err)
	}
}

func TestOptions_Panics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func()
	}{
		{"empty cache dir", func() { WithCacheDir("") }},
		{"unknown format", func() { WithFormat("png") }},
		{"nil renderer", func() { WithRenderer(nil) }},
		{"empty command", func() { WithCommand() }},
		{"zero timeout", func() { WithTimeout(0) }},
		{"empty public path", func() { WithPublicPath("") }},
		{"zero ex size", func() { WithExPx(0) }},
		{"negative scale", func() { WithScale(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestNewProcessor_RendererSelection(t *testing.T) {
	t.Parallel()

	exec, err := NewProcessor(WithCacheDir(t.TempDir()), WithCommand("mathjax-render"))
	if err != nil {
		t.Fatal(err)
	}
	if exec.closer != nil {
		t.Error("exec renderer should not need closing")
	}

	browser, err := NewProcessor(WithCacheDir(t.TempDir()), WithBrowser(BrowserOptions{NoSandbox: true}))
	if err != nil {
		t.Fatal(err)
	}
	if browser.closer == nil {
		t.Error("browser renderer should be closed by the processor")
	}
	if err := browser.Close(); err != nil {
		t.Errorf("Close() on unused browser = %v", err)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, t.TempDir(), &stageRenderer{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := p.Process(context.Background(), "$x$"); !errors.Is(err, ErrClosed) {
		t.Errorf("Process after Close error = %v, want ErrClosed", err)
	}
}
