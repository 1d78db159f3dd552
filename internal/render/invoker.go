package render

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alnah/go-texrender/internal/cache"
	"github.com/alnah/go-texrender/internal/extract"
)

// DefaultTimeout bounds one renderer call.
const DefaultTimeout = 60 * time.Second

var tracer = otel.Tracer("github.com/alnah/go-texrender/internal/render")

// Invoker resolves formulas against the cache and renders the misses in a
// single batch.
type Invoker struct {
	Renderer BatchRenderer
	Cache    *cache.Cache
	Timeout  time.Duration // zero means DefaultTimeout
	Logger   *slog.Logger  // nil discards

	batches  atomic.Int64
	rendered atomic.Int64
	failed   atomic.Int64
}

// Stats counts renderer activity since the Invoker was created.
type Stats struct {
	Batches  int64 // renderer calls
	Rendered int64 // formulas committed to the cache
	Failed   int64 // formulas that failed in a batch
}

// Stats returns a snapshot of the counters.
func (inv *Invoker) Stats() Stats {
	return Stats{
		Batches:  inv.batches.Load(),
		Rendered: inv.rendered.Load(),
		Failed:   inv.failed.Load(),
	}
}

// Render returns one Outcome per distinct formula key. Cached artifacts and
// keys that already failed in this process are answered without a render.
// The rest are claimed, and the claimed ones are rendered with one
// BatchRenderer call; keys claimed by a concurrent caller are awaited.
// Failures are logged and reported in the outcome, never returned.
func (inv *Invoker) Render(ctx context.Context, formulas []extract.Formula) map[string]Outcome {
	out := make(map[string]Outcome, len(formulas))

	var misses []Request
	for _, f := range formulas {
		req := NewRequest(f)
		if _, seen := out[req.Key]; seen {
			continue
		}
		if o, ok := inv.cached(req.Key); ok {
			out[req.Key] = o
			continue
		}
		out[req.Key] = Outcome{Key: req.Key} // placeholder until resolved
		misses = append(misses, req)
	}
	if len(misses) == 0 {
		return out
	}

	keys := make([]string, len(misses))
	for i, req := range misses {
		keys[i] = req.Key
	}
	owned, pending := inv.Cache.Claim(keys)

	if len(owned) > 0 {
		ownedSet := make(map[string]bool, len(owned))
		for _, k := range owned {
			ownedSet[k] = true
		}
		batch := make([]Request, 0, len(owned))
		for _, req := range misses {
			if ownedSet[req.Key] {
				batch = append(batch, req)
			}
		}
		inv.dispatch(ctx, batch)
	}

	for key, f := range pending {
		if err := f.Wait(ctx); err != nil {
			out[key] = Outcome{Key: key, Err: err.Error()}
		}
	}

	for _, req := range misses {
		if o := out[req.Key]; o.Err != "" {
			continue
		}
		o, ok := inv.cached(req.Key)
		if !ok {
			o = Outcome{Key: req.Key, Err: "formula was not rendered"}
		}
		o.Cached = false
		out[req.Key] = o
	}
	return out
}

// cached answers key from the cache's success or failure records.
func (inv *Invoker) cached(key string) (Outcome, bool) {
	if a, ok := inv.Cache.Lookup(key); ok {
		return Outcome{Key: key, OK: true, Artifact: a, Cached: true}, true
	}
	if reason, ok := inv.Cache.Failed(key); ok {
		return Outcome{Key: key, Err: reason, Cached: true}, true
	}
	return Outcome{}, false
}

// dispatch renders reqs with one renderer call and records every outcome in
// the cache. All keys are settled on return.
func (inv *Invoker) dispatch(ctx context.Context, reqs []Request) {
	keys := make([]string, len(reqs))
	for i, req := range reqs {
		keys[i] = req.Key
	}
	defer inv.Cache.Settle(keys...)

	log := inv.logger()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, inv.timeout())
	defer cancel()
	ctx, span := tracer.Start(ctx, "render.batch", trace.WithAttributes(
		attribute.Int("render.batch.size", len(reqs)),
	))
	defer span.End()

	stageDir, err := inv.Cache.StageDir()
	if err != nil {
		inv.failBatch(span, reqs, err)
		return
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	inv.batches.Add(1)
	results, err := inv.Renderer.RenderBatch(ctx, stageDir, reqs)
	if err != nil {
		log.Error("render batch failed",
			"batch", len(reqs), "error", err, "duration", time.Since(start))
		inv.failBatch(span, reqs, err)
		return
	}

	byKey := make(map[string]Result, len(results))
	for _, res := range results {
		k := res.key()
		if _, dup := byKey[k]; !dup {
			byKey[k] = res
		}
	}

	var failures int
	for _, req := range reqs {
		res, ok := byKey[req.Key]
		if !ok {
			log.Warn("no result for formula", "key", req.Key, "formula", req.TeX, "mode", req.Mode)
			inv.fail(req, "renderer returned no result")
			failures++
			continue
		}
		if !res.Success {
			reason := res.Error
			if reason == "" {
				reason = "render failed"
			}
			log.Warn("formula failed to render",
				"key", req.Key, "formula", req.TeX, "mode", req.Mode, "error", reason)
			inv.fail(req, reason)
			failures++
			continue
		}

		staged, ok := stagedPath(stageDir, res.Filename)
		if !ok {
			log.Error("renderer reported an invalid filename",
				"key", req.Key, "formula", req.TeX, "filename", res.Filename)
			inv.fail(req, "invalid artifact filename")
			failures++
			continue
		}
		if _, err := inv.Cache.Commit(req.Key, staged); err != nil {
			msg := "committing artifact failed"
			if errors.Is(err, os.ErrNotExist) {
				msg = "renderer reported success but wrote no file"
			}
			log.Error(msg, "key", req.Key, "formula", req.TeX, "error", err)
			inv.fail(req, msg)
			failures++
			continue
		}
		inv.rendered.Add(1)
	}

	span.SetAttributes(attribute.Int("render.batch.failed", failures))
	log.Debug("render batch done",
		"batch", len(reqs), "failed", failures, "duration", time.Since(start))
}

func (inv *Invoker) fail(req Request, reason string) {
	inv.Cache.MarkFailed(req.Key, reason)
	inv.failed.Add(1)
}

func (inv *Invoker) failBatch(span trace.Span, reqs []Request, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	for _, req := range reqs {
		inv.fail(req, err.Error())
	}
}

func (inv *Invoker) timeout() time.Duration {
	if inv.Timeout > 0 {
		return inv.Timeout
	}
	return DefaultTimeout
}

func (inv *Invoker) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// stagedPath resolves a renderer-reported filename inside stageDir. Absolute
// paths are accepted when they point directly into stageDir; anything that
// would escape it is rejected.
func stagedPath(stageDir, name string) (string, bool) {
	if filepath.IsAbs(name) {
		if filepath.Dir(name) != filepath.Clean(stageDir) {
			return "", false
		}
		name = filepath.Base(name)
	}
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", false
	}
	return filepath.Join(stageDir, name), true
}
