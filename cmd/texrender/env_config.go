package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-texrender/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath string        // TEXRENDER_CONFIG: config file path
	Renderer   string        // TEXRENDER_RENDERER: exec or browser
	Command    []string      // TEXRENDER_COMMAND: renderer command line
	Timeout    time.Duration // TEXRENDER_TIMEOUT: per-batch timeout

	// Tier 2 - I/O
	Source   string // TEXRENDER_SOURCE: site source directory
	Dest     string // TEXRENDER_DEST: output directory
	CacheDir string // TEXRENDER_CACHE_DIR: artifact cache

	// Tier 3 - Extended
	Format     string // TEXRENDER_FORMAT: svg or mathml
	PublicPath string // TEXRENDER_PUBLIC_PATH: artifact URL prefix
	Workers    int    // TEXRENDER_WORKERS: parallel documents
}

// knownEnvVars lists valid TEXRENDER_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1 - Essential
	"TEXRENDER_CONFIG":   true,
	"TEXRENDER_RENDERER": true,
	"TEXRENDER_COMMAND":  true,
	"TEXRENDER_TIMEOUT":  true,
	// Tier 2 - I/O
	"TEXRENDER_SOURCE":    true,
	"TEXRENDER_DEST":      true,
	"TEXRENDER_CACHE_DIR": true,
	// Tier 3 - Extended
	"TEXRENDER_FORMAT":      true,
	"TEXRENDER_PUBLIC_PATH": true,
	"TEXRENDER_WORKERS":     true,
	// Read by doctor only
	"TEXRENDER_CONTAINER": true,
}

// loadEnvConfig reads configuration from environment variables.
// Returns a struct with all recognized TEXRENDER_* values.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		// Tier 1
		ConfigPath: getenv("TEXRENDER_CONFIG"),
		Renderer:   getenv("TEXRENDER_RENDERER"),
		Command:    strings.Fields(getenv("TEXRENDER_COMMAND")),
		// Tier 2
		Source:   getenv("TEXRENDER_SOURCE"),
		Dest:     getenv("TEXRENDER_DEST"),
		CacheDir: getenv("TEXRENDER_CACHE_DIR"),
		// Tier 3
		Format:     getenv("TEXRENDER_FORMAT"),
		PublicPath: getenv("TEXRENDER_PUBLIC_PATH"),
	}

	// Parse duration for timeout
	if timeout := getenv("TEXRENDER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	// Parse int for workers
	if workers := getenv("TEXRENDER_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized TEXRENDER_* variables.
// Helps catch typos like TEXRENDER_CACHEDIR instead of TEXRENDER_CACHE_DIR.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, env := range environ {
		if strings.HasPrefix(env, "TEXRENDER_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig applies environment variable values to config.
// Only sets values if the env var is set AND the config value is empty/zero.
// This ensures: CLI flags > env vars > config file > defaults
// (CLI flags are applied later via mergeFlags)
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	// Tier 1 - Renderer
	if env.Renderer != "" && cfg.Math.Renderer == "" {
		cfg.Math.Renderer = env.Renderer
	}
	if len(env.Command) > 0 && len(cfg.Math.Command) == 0 {
		cfg.Math.Command = env.Command
	}
	if env.Timeout > 0 && cfg.Math.Timeout == "" {
		cfg.Math.Timeout = env.Timeout.String()
	}

	// Tier 2 - I/O
	if env.Source != "" && cfg.Source == "" {
		cfg.Source = env.Source
	}
	if env.Dest != "" && cfg.Destination == "" {
		cfg.Destination = env.Dest
	}
	if env.CacheDir != "" && cfg.Math.CacheDir == "" {
		cfg.Math.CacheDir = env.CacheDir
	}

	// Tier 3 - Extended
	if env.Format != "" && cfg.Math.Format == "" {
		cfg.Math.Format = env.Format
	}
	if env.PublicPath != "" && cfg.Math.PublicPath == "" {
		cfg.Math.PublicPath = env.PublicPath
	}
	if env.Workers > 0 && cfg.Build.Workers == 0 {
		cfg.Build.Workers = env.Workers
	}
}
