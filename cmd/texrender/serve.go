package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alnah/go-texrender/internal/assets"
	"github.com/alnah/go-texrender/internal/config"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// serveParams holds the resolved directories for the preview server.
type serveParams struct {
	siteDir    string
	cacheDir   string
	publicPath string // URL path artifacts are served under
}

// runServe serves a built site until ctx is canceled.
func runServe(ctx context.Context, positional []string, flags *serveFlags, env *Environment) error {
	cfg, err := loadBuildConfig(flags.common.config, env)
	if err != nil {
		return err
	}
	applyEnvConfig(loadEnvConfig(env.Getenv), cfg)

	params, err := resolveServeParams(positional, flags, cfg)
	if err != nil {
		return err
	}
	logger := newLogger(env.Stderr, flags.common)

	ln, err := net.Listen("tcp", flags.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", flags.addr, err)
	}

	srv := &http.Server{
		Handler:           newServeRouter(params, logger),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if !flags.common.quiet {
		fmt.Fprintf(env.Stdout, "Serving %s on http://%s (artifacts from %s)\n",
			params.siteDir, ln.Addr(), params.cacheDir)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// resolveServeParams picks the site and cache directories from args, flags
// and config, using the same defaults as build.
func resolveServeParams(args []string, flags *serveFlags, cfg *config.Config) (serveParams, error) {
	if len(args) > 1 {
		return serveParams{}, fmt.Errorf("%w: serve takes at most one directory, got %d", ErrUsage, len(args))
	}

	source := cfg.Source
	if source == "" {
		source = defaultSource
	}

	p := serveParams{
		siteDir:    resolveDest(cfg, source),
		cacheDir:   cacheDir(cfg, source),
		publicPath: assets.DefaultPublicPath,
	}
	if len(args) == 1 {
		p.siteDir = args[0]
	}
	if flags.cacheDir != "" {
		p.cacheDir = flags.cacheDir
	}
	if cfg.Math.PublicPath != "" {
		u, err := url.Parse(cfg.Math.PublicPath)
		if err != nil {
			return serveParams{}, fmt.Errorf("%w: math.publicPath: %v", config.ErrInvalidValue, err)
		}
		if u.Path != "" {
			p.publicPath = path.Clean("/" + u.Path)
		}
	}
	return p, nil
}

// newServeRouter routes artifact URLs to the cache directory and everything
// else to the built site.
func newServeRouter(p serveParams, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	// A root public path means artifacts were copied into the site itself.
	if prefix := strings.TrimSuffix(p.publicPath, "/"); prefix != "" {
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(p.cacheDir))))
	}
	r.Handle("/*", http.FileServer(http.Dir(p.siteDir)))

	return r
}

// requestLogger logs one debug line per request with its status and
// duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
