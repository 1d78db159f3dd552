package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: texrender <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  build      Render formulas and write the site")
	fmt.Fprintln(w, "  serve      Preview a built site")
	fmt.Fprintln(w, "  doctor     Check renderer and cache setup")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'texrender help <command>' for details on a specific command.")
}

// printBuildUsage prints usage for the build command.
func printBuildUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: texrender build [source] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render the TeX formulas of opted-in documents and write the site.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  source    Site source directory (default: config source or \".\")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default <source>/_site)")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --flag <key>          Front matter opt-in key (default mathjax)")
	fmt.Fprintln(w, "      --html                Convert Markdown pages to HTML")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Rendering:")
	fmt.Fprintln(w, "      --renderer <s>        exec or browser")
	fmt.Fprintln(w, "      --command <s>         Renderer command line for exec")
	fmt.Fprintln(w, "      --format <s>          svg or mathml")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-batch timeout (default 60s)")
	fmt.Fprintln(w, "      --per-document        One batch per document instead of per build")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel documents with --per-document (0 = auto)")
	fmt.Fprintln(w, "      --no-skip-code        Also scan Markdown code for formulas")
	fmt.Fprintln(w, "      --strict              Exit 4 when any formula fails to render")
	fmt.Fprintln(w, "      --mathjax-url <url>   MathJax bundle for the browser renderer")
	fmt.Fprintln(w, "      --no-sandbox          Disable the Chrome sandbox")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Assets:")
	fmt.Fprintln(w, "      --cache-dir <dir>     Artifact cache (default <source>/.texrender-cache/math)")
	fmt.Fprintln(w, "      --public-path <p>     URL prefix for artifacts (default /assets/math)")
	fmt.Fprintln(w, "      --ex-px <f>           Pixels per ex unit (default 8)")
	fmt.Fprintln(w, "      --scale <f>           Image size multiplier (default 1)")
	fmt.Fprintln(w, "      --styles-dir <dir>    Directory with a custom math.css")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show render details")
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: texrender serve [dir] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve a built site for preview. Artifacts are served straight from the")
	fmt.Fprintln(w, "cache directory, so a page can be checked before assets are copied.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  dir       Built site directory (default: config destination or \"_site\")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -a, --addr <host:port>    Listen address (default 127.0.0.1:4000)")
	fmt.Fprintln(w, "      --cache-dir <dir>     Artifact cache directory")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Log every request")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case "build":
		printBuildUsage(env.Stdout)
	case "serve":
		printServeUsage(env.Stdout)
	case "doctor":
		fmt.Fprintln(env.Stdout, "Usage: texrender doctor [--json] [--config <name>]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Check that the configured renderer is available and the cache is writable.")
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: texrender version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: texrender help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
