package render

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/fileutil"
	"github.com/alnah/go-texrender/internal/process"
)

// DefaultMathJaxURL is the MathJax bundle loaded by BrowserRenderer. It
// provides both tex2svg and tex2mml.
const DefaultMathJaxURL = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-svg.js"

// BrowserRenderer renders a batch by typesetting it with MathJax inside one
// headless Chrome page. The browser is started on first use and kept until
// Close, so a build pays the startup cost once.
type BrowserRenderer struct {
	MathJaxURL string
	Bin        string // Chrome binary; empty lets rod find or download one
	NoSandbox  bool
	Format     artifact.Format

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserRenderer creates a BrowserRenderer for format.
func NewBrowserRenderer(format artifact.Format) *BrowserRenderer {
	return &BrowserRenderer{MathJaxURL: DefaultMathJaxURL, Format: format}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *BrowserRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()
	if r.Bin != "" {
		l = l.Bin(r.Bin)
	}
	if r.NoSandbox {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.launcher, r.browser = l, b
	return b, nil
}

// Close releases browser resources.
func (r *BrowserRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		process.KillProcessGroup(r.launcher.PID())
		r.launcher.Kill()
		r.launcher = nil
	}
	return err
}

// RenderBatch implements BatchRenderer.
func (r *BrowserRenderer) RenderBatch(ctx context.Context, stageDir string, reqs []Request) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(pageHTML(r.mathJaxURL())); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	obj, err := page.Eval(typesetJS, newPayload(reqs), r.Format == artifact.FormatMathML)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	return collect(stageDir, r.Format, reqs, obj.Value.Str())
}

func (r *BrowserRenderer) mathJaxURL() string {
	if r.MathJaxURL == "" {
		return DefaultMathJaxURL
	}
	return r.MathJaxURL
}

// pageHTML is the blank page MathJax is loaded into. Startup typesetting is
// disabled; formulas are converted explicitly by typesetJS.
func pageHTML(src string) string {
	return `<!DOCTYPE html><html><head><meta charset="utf-8">` +
		`<script>window.MathJax={startup:{typeset:false},svg:{fontCache:"none"},` +
		`tex:{packages:{"[+]":["noerrors","noundefined"]}}};</script>` +
		`<script id="MathJax-script" src="` + html.EscapeString(src) + `" onerror="window.__mathjaxFailed=true"></script>` +
		`</head><body></body></html>`
}

// typesetJS converts every payload item and returns a JSON string of
// browserItem values. Formulas MathJax reports as errors fail individually.
const typesetJS = `async (items, mml) => {
  while (!(window.MathJax && MathJax.startup && MathJax.startup.promise)) {
    if (window.__mathjaxFailed) throw new Error("MathJax failed to load");
    await new Promise(r => setTimeout(r, 20));
  }
  await MathJax.startup.promise;
  const out = [];
  for (const it of items) {
    try {
      const opts = {display: !it.inline};
      if (mml) {
        const markup = MathJax.tex2mml(it.formula, opts);
        const m = /<merror[^>]*>[\s\S]*?<mtext[^>]*>([\s\S]*?)<\/mtext>/.exec(markup);
        if (m) throw new Error(m[1]);
        out.push({hash: it.hash, ok: true, markup: markup});
      } else {
        const node = MathJax.tex2svg(it.formula, opts);
        const bad = node.querySelector('[data-mml-node="merror"]');
        if (bad) throw new Error(bad.getAttribute("title") || bad.textContent);
        out.push({hash: it.hash, ok: true, markup: node.querySelector("svg").outerHTML});
      }
    } catch (e) {
      out.push({hash: it.hash, ok: false, error: String((e && e.message) || e)});
    }
  }
  return JSON.stringify(out);
}`

// browserItem is the per-formula value produced by typesetJS.
type browserItem struct {
	Hash   string `json:"hash"`
	OK     bool   `json:"ok"`
	Markup string `json:"markup"`
	Error  string `json:"error"`
}

// collect writes successful markup into stageDir and converts the page's
// output into Results.
func collect(stageDir string, format artifact.Format, reqs []Request, raw string) ([]Result, error) {
	var items []browserItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	byKey := make(map[string]Request, len(reqs))
	for _, req := range reqs {
		byKey[req.Key] = req
	}

	results := make([]Result, 0, len(items))
	for _, it := range items {
		req, ok := byKey[it.Hash]
		if !ok {
			continue
		}
		res := Result{Formula: req.TeX, Inline: req.Mode.Inline(), Hash: req.Key}
		if !it.OK {
			res.Error = it.Error
			results = append(results, res)
			continue
		}

		name := req.Key + format.Ext()
		if err := fileutil.WriteFileAtomic(filepath.Join(stageDir, name), []byte(it.Markup), fileutil.FilePermissions); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		res.Success = true
		res.Filename = name
		results = append(results, res)
	}
	return results, nil
}
