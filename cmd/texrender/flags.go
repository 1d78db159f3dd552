package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// mathFlags holds formula rendering flags.
type mathFlags struct {
	cacheDir   string
	publicPath string
	format     string
	renderer   string
	command    string
	timeout    string
	exPx       float64
	scale      float64
	noSkipCode bool
	stylesDir  string
	mathjaxURL string
	noSandbox  bool
}

// buildFlags holds all flags for the build command.
type buildFlags struct {
	common      commonFlags
	math        mathFlags
	output      string
	workers     int
	perDocument bool
	html        bool
	strict      bool
	flag        string
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common   commonFlags
	addr     string
	cacheDir string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show render details")
}

// addMathFlags adds formula rendering flags to a FlagSet.
func addMathFlags(fs *flag.FlagSet, f *mathFlags) {
	fs.StringVar(&f.cacheDir, "cache-dir", "", "artifact cache directory")
	fs.StringVar(&f.publicPath, "public-path", "", "URL prefix for artifacts (default /assets/math)")
	fs.StringVar(&f.format, "format", "", "artifact format: svg, mathml")
	fs.StringVar(&f.renderer, "renderer", "", "renderer: exec, browser")
	fs.StringVar(&f.command, "command", "", "renderer command line for exec")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-batch render timeout (e.g., 60s, 2m)")
	fs.Float64Var(&f.exPx, "ex-px", 0, "pixels per ex unit (default 8)")
	fs.Float64Var(&f.scale, "scale", 0, "image size multiplier (default 1)")
	fs.BoolVar(&f.noSkipCode, "no-skip-code", false, "also scan Markdown code for formulas")
	fs.StringVar(&f.stylesDir, "styles-dir", "", "directory with a custom math.css")
	fs.StringVar(&f.mathjaxURL, "mathjax-url", "", "MathJax bundle for the browser renderer")
	fs.BoolVar(&f.noSandbox, "no-sandbox", false, "disable the Chrome sandbox")
}

// parseBuildFlags parses build command flags and returns positional args.
func parseBuildFlags(args []string, usage io.Writer) (*buildFlags, []string, error) {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(usage)
	f := &buildFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output directory (default <source>/_site)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel documents with --per-document (0 = auto)")
	fs.BoolVar(&f.perDocument, "per-document", false, "one render batch per document")
	fs.BoolVar(&f.html, "html", false, "convert Markdown pages to HTML")
	fs.StringVar(&f.flag, "flag", "", "front matter opt-in key (default mathjax)")
	fs.BoolVar(&f.strict, "strict", false, "exit with an error when a formula fails to render")

	addCommonFlags(fs, &f.common)
	addMathFlags(fs, &f.math)

	fs.Usage = func() { printBuildUsage(usage) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return f, fs.Args(), nil
}

// parseServeFlags parses serve command flags and returns positional args.
func parseServeFlags(args []string, usage io.Writer) (*serveFlags, []string, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(usage)
	f := &serveFlags{}

	fs.StringVarP(&f.addr, "addr", "a", "127.0.0.1:4000", "listen address")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "artifact cache directory served at the public path")

	addCommonFlags(fs, &f.common)

	fs.Usage = func() { printServeUsage(usage) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return f, fs.Args(), nil
}
