// Package texrender renders the TeX formulas of static site documents at
// build time and rewrites the documents to reference the generated assets.
//
// # Quick Start
//
// Create a processor, process documents, and close when done:
//
//	proc, err := texrender.NewProcessor(
//	    texrender.WithCacheDir(".texrender-cache/math"),
//	    texrender.WithCommand("node", "tools/mathjax-render.js"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Close()
//
//	out, err := proc.Process(ctx, "Energy: $$E=mc^2$$ and inline $x$.")
//
// Each formula becomes a <span class="math-inline"> or <div
// class="math-display"> wrapping an <img> that points at
// /assets/math/<key>.svg. Formulas that fail to render are left as written.
//
// # Pipeline
//
//  1. Extraction: "$$...$$" display and "$...$" inline formulas, with "$"
//     inside Markdown code ignored (WithSkipCode).
//  2. Lookup: each formula is keyed by the MD5 of its mode and trimmed TeX
//     and looked up in the on-disk cache.
//  3. Rendering: all misses go to the renderer in one batch, bounded by
//     WithTimeout. Failures are logged and not retried in the same process.
//  4. Rewriting: formulas are replaced by markup; the rest of the document is
//     copied byte for byte.
//  5. Registration: Assets and RegisterAssets publish the artifacts and the
//     math.css stylesheet.
//
// Use ProcessAll to render the formulas of a whole build with a single
// renderer call.
//
// # Renderers
//
// WithCommand runs an external program once per batch. It receives the
// stage directory as its last argument and a JSON array on stdin:
//
//	[{"formula": "E=mc^2", "inline": false, "hash": "<key>"}]
//
// and writes one file per formula into the stage directory, answering on
// stdout with:
//
//	[{"formula": "E=mc^2", "inline": false, "hash": "<key>",
//	  "filename": "<key>.svg", "success": true, "error": ""}]
//
// Results are matched by hash, so their order does not matter.
//
// Without WithCommand, formulas are typeset by MathJax in headless Chrome
// (WithBrowser). The go-rod library downloads a managed Chromium on first
// run (~/.cache/rod/browser/). For containers and CI environments, set
// ROD_NO_SANDBOX=1 to disable the Chrome sandbox. Use ROD_BROWSER_BIN to
// specify a custom Chrome binary.
//
// # Parallel Processing
//
// A Processor is safe for concurrent use. Goroutines asking for the same
// formula share one render; use ResolveWorkers to size a worker pool.
package texrender
