// Package render turns batches of TeX formulas into artifact files.
//
// A BatchRenderer is the boundary to the external typesetter. It receives
// every formula of a batch at once, writes one file per successful formula
// into a staging directory, and reports a per-formula result. The Invoker
// sits in front of it: it filters formulas that are already cached, makes
// exactly one renderer call for the rest, and commits staged files into the
// cache.
package render

import (
	"context"
	"errors"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/cache"
	"github.com/alnah/go-texrender/internal/extract"
)

// Sentinel errors for batch rendering.
var (
	ErrNoCommand       = errors.New("render command not configured")
	ErrRenderFailed    = errors.New("render process failed")
	ErrTimeout         = errors.New("render batch timed out")
	ErrMalformedOutput = errors.New("malformed render output")
	ErrBrowserConnect  = errors.New("failed to connect to browser")
	ErrPageLoad        = errors.New("failed to load MathJax page")
)

// Request is one formula to render.
type Request struct {
	Key  string
	TeX  string
	Mode extract.Mode
}

// NewRequest builds the request for f.
func NewRequest(f extract.Formula) Request {
	return Request{Key: cache.Key(f.TeX, f.Mode), TeX: f.TeX, Mode: f.Mode}
}

// payloadItem is the wire form of a Request.
type payloadItem struct {
	Formula string `json:"formula"`
	Inline  bool   `json:"inline"`
	Hash    string `json:"hash"`
}

func newPayload(reqs []Request) []payloadItem {
	items := make([]payloadItem, len(reqs))
	for i, r := range reqs {
		items[i] = payloadItem{Formula: r.TeX, Inline: r.Mode.Inline(), Hash: r.Key}
	}
	return items
}

// Result is the renderer's report for one formula. Filename names a file in
// the staging directory; dimensions are read from the file itself so cached
// artifacts never need the renderer again.
type Result struct {
	Formula  string `json:"formula"`
	Inline   bool   `json:"inline"`
	Hash     string `json:"hash,omitempty"`
	Filename string `json:"filename,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// key identifies the request a result answers. The echoed hash wins; without
// it the formula and mode are hashed the same way requests are.
func (r Result) key() string {
	if r.Hash != "" {
		return r.Hash
	}
	mode := extract.ModeDisplay
	if r.Inline {
		mode = extract.ModeInline
	}
	return cache.Key(r.Formula, mode)
}

// BatchRenderer renders a whole batch in one external call. A non-nil error
// means nothing in the batch can be trusted.
type BatchRenderer interface {
	RenderBatch(ctx context.Context, stageDir string, reqs []Request) ([]Result, error)
}

// Outcome is the resolved state of one formula key after a render pass.
type Outcome struct {
	Key      string
	OK       bool
	Artifact artifact.Artifact
	Err      string
	Cached   bool // served from the cache, no render this pass
}
