package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	texrender "github.com/alnah/go-texrender"
	"github.com/alnah/go-texrender/internal/assets"
	"github.com/alnah/go-texrender/internal/config"
	"github.com/alnah/go-texrender/internal/fileutil"
	"github.com/alnah/go-texrender/internal/hints"
	"github.com/alnah/go-texrender/internal/site"
)

// Sentinel errors for CLI operations.
var (
	ErrUsage          = errors.New("invalid usage")
	ErrNoCommand      = errors.New("exec renderer needs a command")
	ErrNoDocuments    = errors.New("no documents found")
	ErrReadDocument   = errors.New("failed to read document")
	ErrWriteOutput    = errors.New("failed to write output")
	ErrRenderFailures = errors.New("formulas failed to render")
)

// Defaults for paths relative to the source directory.
const (
	defaultDestName = "_site"
	defaultSource   = "."
)

// buildResult summarizes a finished build.
type buildResult struct {
	Documents int // documents written
	Processed int // documents opted in to formula rendering
	Assets    int // static files registered
	Stats     texrender.Stats
	Duration  time.Duration
}

// runBuild orchestrates a site build.
func runBuild(ctx context.Context, positional []string, flags *buildFlags, env *Environment) error {
	start := env.Now()

	cfg, err := loadBuildConfig(flags.common.config, env)
	if err != nil {
		return err
	}
	applyEnvConfig(loadEnvConfig(env.Getenv), cfg)
	mergeFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := resolveSource(positional, cfg)
	if err != nil {
		return err
	}
	dest := resolveDest(cfg, source)
	logger := newLogger(env.Stderr, flags.common)

	rels, err := site.Discover(source, cfg.Build.Extensions, excludePatterns(cfg, source, dest))
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		return fmt.Errorf("%w in %s", ErrNoDocuments, source)
	}

	docs, err := readDocuments(source, rels)
	if err != nil {
		return err
	}

	result := buildResult{Documents: len(docs)}
	out := site.New(source, dest)

	if cfg.MathEnabled() {
		proc, err := newProcessor(cfg, source, logger, env)
		if err != nil {
			return err
		}
		defer func() { _ = proc.Close() }()

		selected := optedIn(docs, cfg.Math.Flag)
		result.Processed = len(selected)
		if err := processDocuments(ctx, proc, selected, cfg.Build); err != nil {
			return err
		}

		n, err := proc.RegisterAssets(out)
		if err != nil {
			return err
		}
		result.Assets = n
		result.Stats = proc.Stats()
	}

	if err := writeDocuments(ctx, docs, dest, cfg.Build.HTML); err != nil {
		return err
	}
	if cfg.Build.HTML {
		css, err := site.HighlightCSS(site.DefaultHighlightStyle)
		if err != nil {
			return err
		}
		out.AddStaticFile(css)
		result.Assets++
	}

	if err := assets.CopyTo(dest, out.StaticFiles()); err != nil {
		return err
	}

	result.Duration = env.Now().Sub(start)
	printBuildResult(env, flags.common, cfg, dest, result)

	if flags.strict && result.Stats.Failed > 0 {
		return fmt.Errorf("%w: %d formula(s)", ErrRenderFailures, result.Stats.Failed)
	}
	return nil
}

// loadBuildConfig loads the named config, or the default name when one
// exists. A missing default config is not an error.
func loadBuildConfig(name string, env *Environment) (*config.Config, error) {
	if name == "" {
		name = env.Getenv("TEXRENDER_CONFIG")
	}
	if name != "" {
		cfg, err := config.LoadConfig(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfig(config.DefaultName)
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// mergeFlags merges CLI flags into config. CLI values override config values.
func mergeFlags(flags *buildFlags, cfg *config.Config) {
	if flags.output != "" {
		cfg.Destination = flags.output
	}
	if flags.flag != "" {
		cfg.Math.Flag = flags.flag
	}

	// Build flags
	if flags.workers > 0 {
		cfg.Build.Workers = flags.workers
	}
	if flags.perDocument {
		cfg.Build.PerDocument = true
	}
	if flags.html {
		cfg.Build.HTML = true
	}

	// Math flags
	m := flags.math
	if m.cacheDir != "" {
		cfg.Math.CacheDir = m.cacheDir
	}
	if m.publicPath != "" {
		cfg.Math.PublicPath = m.publicPath
	}
	if m.format != "" {
		cfg.Math.Format = m.format
	}
	if m.renderer != "" {
		cfg.Math.Renderer = m.renderer
	}
	if m.command != "" {
		cfg.Math.Command = strings.Fields(m.command)
	}
	if m.timeout != "" {
		cfg.Math.Timeout = m.timeout
	}
	if m.exPx > 0 {
		cfg.Math.ExPx = m.exPx
	}
	if m.scale > 0 {
		cfg.Math.Scale = m.scale
	}
	if m.noSkipCode {
		skip := false
		cfg.Math.SkipCode = &skip
	}
	if m.stylesDir != "" {
		cfg.Math.StylesDir = m.stylesDir
	}

	// Browser flags
	if m.mathjaxURL != "" {
		cfg.Browser.MathJaxURL = m.mathjaxURL
	}
	if m.noSandbox {
		cfg.Browser.NoSandbox = true
	}
}

// resolveSource determines the source directory from args or config.
func resolveSource(args []string, cfg *config.Config) (string, error) {
	switch {
	case len(args) > 1:
		return "", fmt.Errorf("%w: build takes at most one source directory, got %d", ErrUsage, len(args))
	case len(args) == 1:
		return args[0], nil
	case cfg.Source != "":
		return cfg.Source, nil
	}
	return defaultSource, nil
}

// resolveDest determines the output directory, <source>/_site by default.
func resolveDest(cfg *config.Config, source string) string {
	if cfg.Destination == "" {
		return filepath.Join(source, defaultDestName)
	}
	return cfg.Destination
}

// excludePatterns returns the configured excludes plus the output and cache
// directories when they live inside the source tree.
func excludePatterns(cfg *config.Config, source, dest string) []string {
	patterns := append([]string(nil), cfg.Build.Exclude...)
	for _, dir := range []string{dest, cacheDir(cfg, source)} {
		if rel, ok := within(source, dir); ok {
			patterns = append(patterns, rel)
		}
	}
	return patterns
}

// within returns dir relative to root as a slash path when dir is strictly
// inside root.
func within(root, dir string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// cacheDir resolves the artifact cache directory.
func cacheDir(cfg *config.Config, source string) string {
	if cfg.Math.CacheDir != "" {
		return cfg.Math.CacheDir
	}
	return filepath.Join(source, filepath.FromSlash(texrender.DefaultCacheDir))
}

// readDocuments reads and parses every discovered document.
func readDocuments(source string, rels []string) ([]*site.Document, error) {
	docs := make([]*site.Document, 0, len(rels))
	for _, rel := range rels {
		path := filepath.Join(source, filepath.FromSlash(rel))
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from walking the source tree
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadDocument, err)
		}
		doc, err := site.ParseDocument(path, rel, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// optedIn returns the documents whose front matter sets the opt-in key.
func optedIn(docs []*site.Document, key string) []*site.Document {
	if key == "" {
		key = site.DefaultFlag
	}
	var selected []*site.Document
	for _, d := range docs {
		if d.Flag(key) {
			selected = append(selected, d)
		}
	}
	return selected
}

// newProcessor builds the formula processor from config.
func newProcessor(cfg *config.Config, source string, logger *slog.Logger, env *Environment) (*texrender.Processor, error) {
	opts := []texrender.Option{
		texrender.WithCacheDir(cacheDir(cfg, source)),
		texrender.WithLogger(logger),
		texrender.WithSkipCode(cfg.SkipCode()),
		texrender.WithStylesDir(cfg.Math.StylesDir),
	}

	if format := strings.ToLower(cfg.Math.Format); format == "mathml" || format == "mml" {
		opts = append(opts, texrender.WithFormat(texrender.FormatMathML))
	}
	if d := cfg.TimeoutDuration(); d > 0 {
		opts = append(opts, texrender.WithTimeout(d))
	}
	if cfg.Math.PublicPath != "" {
		opts = append(opts, texrender.WithPublicPath(cfg.Math.PublicPath))
	}
	if cfg.Math.ExPx > 0 {
		opts = append(opts, texrender.WithExPx(cfg.Math.ExPx))
	}
	if cfg.Math.Scale > 0 {
		opts = append(opts, texrender.WithScale(cfg.Math.Scale))
	}

	switch {
	case env.Renderer != nil:
		opts = append(opts, texrender.WithRenderer(env.Renderer))
	case useExec(cfg):
		if len(cfg.Math.Command) == 0 {
			return nil, fmt.Errorf("%w: set --command or math.command", ErrNoCommand)
		}
		opts = append(opts, texrender.WithCommand(cfg.Math.Command...))
	default:
		opts = append(opts, texrender.WithBrowser(texrender.BrowserOptions{
			MathJaxURL: cfg.Browser.MathJaxURL,
			Bin:        cfg.Browser.Bin,
			NoSandbox:  cfg.Browser.NoSandbox,
		}))
	}

	return texrender.NewProcessor(opts...)
}

// useExec reports whether the exec renderer is selected, explicitly or by
// configuring a command without naming a renderer.
func useExec(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Math.Renderer) {
	case config.RendererExec:
		return true
	case config.RendererBrowser:
		return false
	}
	return len(cfg.Math.Command) > 0
}

// processDocuments rewrites the bodies of docs in place. By default all
// documents share one render batch; with PerDocument each document gets its
// own batch and documents run on a bounded worker pool.
func processDocuments(ctx context.Context, proc *texrender.Processor, docs []*site.Document, build config.BuildConfig) error {
	if len(docs) == 0 {
		return nil
	}

	if !build.PerDocument {
		srcs := make([]texrender.Source, len(docs))
		for i, d := range docs {
			srcs[i] = sourceOf(d)
		}
		out, err := proc.ProcessSources(ctx, srcs)
		if err != nil {
			return err
		}
		for i, d := range docs {
			d.Body = out[i]
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(texrender.ResolveWorkers(build.Workers))
	for _, d := range docs {
		g.Go(func() error {
			out, err := proc.ProcessSources(gctx, []texrender.Source{sourceOf(d)})
			if err != nil {
				return fmt.Errorf("%s: %w", d.RelPath, err)
			}
			d.Body = out[0]
			return nil
		})
	}
	return g.Wait()
}

// sourceOf marks Markdown documents so code is only skipped where code
// syntax exists.
func sourceOf(d *site.Document) texrender.Source {
	return texrender.Source{Content: d.Body, Markdown: site.IsMarkdown(d.RelPath)}
}

// writeDocuments writes every document under dest. With html set, Markdown
// documents are converted to HTML pages.
func writeDocuments(ctx context.Context, docs []*site.Document, dest string, html bool) error {
	var conv *site.MarkdownConverter
	if html {
		conv = site.NewMarkdownConverter()
	}

	for _, d := range docs {
		data := d.Bytes()
		if conv != nil && site.IsMarkdown(d.RelPath) {
			page, err := conv.ToHTML(ctx, d)
			if err != nil {
				return err
			}
			data = []byte(page)
		}

		path := site.OutputPath(dest, d.RelPath, html)
		if err := fileutil.WriteFileAtomic(path, data, fileutil.FilePermissions); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteOutput, path, err)
		}
	}
	return nil
}

// printBuildResult outputs the build summary.
func printBuildResult(env *Environment, common commonFlags, cfg *config.Config, dest string, r buildResult) {
	if r.Stats.Failed > 0 {
		fmt.Fprintf(env.Stderr, "warning: %d formula(s) failed to render and were left as written%s\n",
			r.Stats.Failed, failureHint(cfg))
	}
	if common.quiet {
		return
	}

	if common.verbose {
		fmt.Fprintf(env.Stdout, "formulas: %d cached, %d rendered, %d failed in %d batch(es)\n",
			r.Stats.Hits, r.Stats.Rendered, r.Stats.Failed, r.Stats.Batches)
	}
	fmt.Fprintf(env.Stdout, "Built %d document(s), %d with formulas, %d asset(s) -> %s (%v)\n",
		r.Documents, r.Processed, r.Assets, dest, r.Duration.Round(time.Millisecond))
}

// failureHint suggests a fix for render failures based on the renderer in use.
func failureHint(cfg *config.Config) string {
	if useExec(cfg) {
		name := ""
		if len(cfg.Math.Command) > 0 {
			name = cfg.Math.Command[0]
		}
		return hints.ForRendererNotFound(name) + hints.ForTimeout()
	}
	return hints.ForBrowserConnect() + hints.ForTimeout()
}
