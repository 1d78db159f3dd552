package texrender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/assets"
	"github.com/alnah/go-texrender/internal/cache"
	"github.com/alnah/go-texrender/internal/extract"
	"github.com/alnah/go-texrender/internal/render"
	"github.com/alnah/go-texrender/internal/rewrite"
)

// StaticFile and Registry describe generated assets and where they are
// published.
type (
	StaticFile = assets.StaticFile
	Registry   = assets.Registry
)

// Compile-time interface implementation checks.
var (
	_ render.BatchRenderer = (*render.ExecRenderer)(nil)
	_ render.BatchRenderer = (*render.BrowserRenderer)(nil)
	_ assets.StyleLoader   = (*assets.StyleResolver)(nil)
)

// Stats summarizes formula resolution since the Processor was created.
type Stats struct {
	Hits     int64 // formulas answered from the cache
	Misses   int64 // formulas that needed a render this process
	Rendered int64 // artifacts committed to the cache
	Failed   int64 // formulas that failed to render
	Batches  int64 // renderer calls
}

// Processor replaces TeX formulas in documents with references to cached,
// rendered artifacts. It is safe for concurrent use; a formula key is
// rendered at most once per process no matter how many goroutines ask.
// Create with NewProcessor and Close when done.
type Processor struct {
	cfg       processorConfig
	cache     *cache.Cache
	invoker   *render.Invoker
	extractor extract.Extractor // Markdown sources
	rewriter  rewrite.Rewriter
	registrar assets.Registrar
	styles    assets.StyleLoader
	closer    io.Closer // owned renderer, nil when supplied by the caller

	hits   atomic.Int64
	misses atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewProcessor creates a Processor. Without WithRenderer, WithCommand or
// WithBrowser, formulas are typeset with MathJax in headless Chrome.
// Returns error if the cache directory or styles directory is unusable.
func NewProcessor(opts ...Option) (*Processor, error) {
	p := &Processor{
		cfg: processorConfig{
			cacheDir: DefaultCacheDir,
			format:   FormatSVG,
			timeout:  DefaultTimeout,
			skipCode: true,
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	c, err := cache.New(p.cfg.cacheDir, p.cfg.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCacheDir, err)
	}
	p.cache = c

	styles, err := assets.NewStyleResolver(p.cfg.stylesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStyles, err)
	}
	p.styles = styles

	logger := p.cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p.invoker = &render.Invoker{
		Renderer: p.newRenderer(),
		Cache:    c,
		Timeout:  p.cfg.timeout,
		Logger:   logger,
	}
	p.extractor = extract.Extractor{SkipCode: p.cfg.skipCode}
	p.rewriter = rewrite.Rewriter{
		PublicPath: p.cfg.publicPath,
		ExPx:       p.cfg.exPx,
		Scale:      p.cfg.scale,
	}
	p.registrar = assets.Registrar{PublicPath: p.cfg.publicPath}

	return p, nil
}

// newRenderer picks the batch renderer from the options.
func (p *Processor) newRenderer() render.BatchRenderer {
	switch {
	case p.cfg.renderer != nil:
		return p.cfg.renderer
	case len(p.cfg.command) > 0:
		return render.NewExecRenderer(p.cfg.command...)
	}

	br := render.NewBrowserRenderer(p.cfg.format)
	if b := p.cfg.browser; b != nil {
		if b.MathJaxURL != "" {
			br.MathJaxURL = b.MathJaxURL
		}
		br.Bin = b.Bin
		br.NoSandbox = b.NoSandbox
	}
	p.closer = br
	return br
}

// Process renders the formulas of one document with at most one renderer
// call and returns the rewritten document. Formulas that fail to render are
// left as written. The only errors are context cancellation and recovered
// internal panics.
func (p *Processor) Process(ctx context.Context, content string) (string, error) {
	docs, err := p.ProcessAll(ctx, []string{content})
	if err != nil {
		return "", err
	}
	return docs[0], nil
}

// Source is one document handed to ProcessSources. Code regions are only
// skipped in Markdown sources; HTML and other text is scanned as is.
type Source struct {
	Content  string
	Markdown bool
}

// ProcessAll renders the formulas of every Markdown document together, so
// a whole build costs at most one renderer call, and returns the rewritten
// documents in input order.
func (p *Processor) ProcessAll(ctx context.Context, contents []string) ([]string, error) {
	srcs := make([]Source, len(contents))
	for i, c := range contents {
		srcs[i] = Source{Content: c, Markdown: true}
	}
	return p.ProcessSources(ctx, srcs)
}

// ProcessSources is ProcessAll for a mix of Markdown and other documents.
// Recovers from internal panics to prevent crashes from propagating to
// callers.
func (p *Processor) ProcessSources(ctx context.Context, srcs []Source) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]extract.Result, len(srcs))
	var formulas []extract.Formula
	for i, src := range srcs {
		if src.Markdown {
			results[i] = p.extractor.Extract(src.Content)
		} else {
			results[i] = extract.Extract(src.Content)
		}
		formulas = append(formulas, results[i].Formulas()...)
	}

	out = make([]string, len(srcs))
	if len(formulas) == 0 {
		for i, src := range srcs {
			out[i] = src.Content
		}
		return out, nil
	}

	outcomes := p.invoker.Render(ctx, formulas)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.count(outcomes)

	resolve := func(f extract.Formula) (artifact.Artifact, bool) {
		o, ok := outcomes[cache.Key(f.TeX, f.Mode)]
		if !ok || !o.OK {
			return artifact.Artifact{}, false
		}
		return o.Artifact, true
	}
	for i, res := range results {
		out[i] = p.rewriter.Rewrite(res, resolve)
	}
	return out, nil
}

func (p *Processor) count(outcomes map[string]render.Outcome) {
	for _, o := range outcomes {
		if o.Cached && o.OK {
			p.hits.Add(1)
		} else if !o.Cached {
			p.misses.Add(1)
		}
	}
}

// Assets returns every artifact known to this process as static files
// under the public path, followed by the formula stylesheet.
func (p *Processor) Assets() ([]StaticFile, error) {
	files := p.registrar.Files(p.cache.Files())
	css, err := assets.Stylesheet(p.styles)
	if err != nil {
		return files, err
	}
	return append(files, css), nil
}

// RegisterAssets hands every artifact and the stylesheet to reg and returns
// how many files were registered.
func (p *Processor) RegisterAssets(reg Registry) (int, error) {
	files, err := p.Assets()
	for _, f := range files {
		reg.AddStaticFile(f)
	}
	return len(files), err
}

// CacheDir returns the artifact cache directory.
func (p *Processor) CacheDir() string {
	return p.cache.Root()
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	rs := p.invoker.Stats()
	return Stats{
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Rendered: rs.Rendered,
		Failed:   rs.Failed,
		Batches:  rs.Batches,
	}
}

// Close releases the browser started by the default renderer. Renderers
// passed with WithRenderer are left to the caller.
func (p *Processor) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.closer != nil {
			err = p.closer.Close()
		}
	})
	return err
}
