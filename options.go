package texrender

import (
	"log/slog"
	"time"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/render"
)

// Format selects the artifact type produced for each formula.
type Format = artifact.Format

// Supported formats.
const (
	FormatSVG    = artifact.FormatSVG
	FormatMathML = artifact.FormatMathML
)

// BatchRenderer renders one batch of formulas into a stage directory.
// Implement it to plug in a custom typesetting backend.
type BatchRenderer = render.BatchRenderer

// Request and Result are the per-formula halves of a render batch.
type (
	Request = render.Request
	Result  = render.Result
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultCacheDir = ".texrender-cache/math"
	DefaultTimeout  = render.DefaultTimeout
)

// BrowserOptions configures the headless Chrome renderer.
type BrowserOptions struct {
	MathJaxURL string // empty uses render.DefaultMathJaxURL
	Bin        string // Chrome binary; empty lets rod find or download one
	NoSandbox  bool
}

// Option configures a Processor.
type Option func(*Processor)

// processorConfig holds internal configuration for Processor.
type processorConfig struct {
	cacheDir   string
	format     Format
	renderer   BatchRenderer
	command    []string
	browser    *BrowserOptions
	timeout    time.Duration
	logger     *slog.Logger
	publicPath string
	exPx       float64
	scale      float64
	skipCode   bool
	stylesDir  string
}

// WithCacheDir sets the directory artifacts are stored in.
// Panics if dir is empty (programmer error).
func WithCacheDir(dir string) Option {
	if dir == "" {
		panic("texrender: WithCacheDir directory must not be empty")
	}
	return func(p *Processor) {
		p.cfg.cacheDir = dir
	}
}

// WithFormat selects SVG or MathML artifacts.
// Panics on an unknown format.
func WithFormat(f Format) Option {
	if f != FormatSVG && f != FormatMathML {
		panic("texrender: WithFormat unknown format " + string(f))
	}
	return func(p *Processor) {
		p.cfg.format = f
	}
}

// WithRenderer sets a custom batch renderer. It takes precedence over
// WithCommand and WithBrowser.
// Panics if r is nil.
func WithRenderer(r BatchRenderer) Option {
	if r == nil {
		panic("texrender: WithRenderer renderer must not be nil")
	}
	return func(p *Processor) {
		p.cfg.renderer = r
	}
}

// WithCommand renders batches by running argv once per batch. The stage
// directory is appended as the last argument.
// Panics if argv is empty.
func WithCommand(argv ...string) Option {
	if len(argv) == 0 || argv[0] == "" {
		panic("texrender: WithCommand needs a program name")
	}
	return func(p *Processor) {
		p.cfg.command = append([]string(nil), argv...)
		p.cfg.browser = nil
	}
}

// WithBrowser renders batches with MathJax in headless Chrome.
func WithBrowser(opts BrowserOptions) Option {
	return func(p *Processor) {
		p.cfg.browser = &opts
		p.cfg.command = nil
	}
}

// WithTimeout bounds each renderer call.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("texrender: WithTimeout duration must be positive")
	}
	return func(p *Processor) {
		p.cfg.timeout = d
	}
}

// WithLogger sets the logger for render diagnostics. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.cfg.logger = l
	}
}

// WithPublicPath sets the URL prefix artifacts are referenced under.
// Panics if path is empty.
func WithPublicPath(path string) Option {
	if path == "" {
		panic("texrender: WithPublicPath path must not be empty")
	}
	return func(p *Processor) {
		p.cfg.publicPath = path
	}
}

// WithExPx sets how many pixels one ex unit spans.
// Panics if px <= 0.
func WithExPx(px float64) Option {
	if px <= 0 {
		panic("texrender: WithExPx must be positive")
	}
	return func(p *Processor) {
		p.cfg.exPx = px
	}
}

// WithScale multiplies rendered image sizes.
// Panics if s <= 0.
func WithScale(s float64) Option {
	if s <= 0 {
		panic("texrender: WithScale must be positive")
	}
	return func(p *Processor) {
		p.cfg.scale = s
	}
}

// WithSkipCode controls whether "$" inside Markdown code spans and blocks
// is ignored. Enabled by default.
func WithSkipCode(skip bool) Option {
	return func(p *Processor) {
		p.cfg.skipCode = skip
	}
}

// WithStylesDir overrides the built-in formula stylesheet with
// {dir}/math.css when that file exists.
func WithStylesDir(dir string) Option {
	return func(p *Processor) {
		p.cfg.stylesDir = dir
	}
}
