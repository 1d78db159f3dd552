package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-texrender/internal/fileutil"
	"github.com/alnah/go-texrender/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// DefaultName is the config name looked up when none is given.
const DefaultName = "texrender"

// appDir is the directory under the user config dir searched for configs.
const appDir = "go-texrender"

// Field length limits.
const (
	MaxPathLength    = 4096 // PATH_MAX on Linux
	MaxURLLength     = 2048 // Browser limit
	MaxFlagLength    = 100  // Front matter key
	MaxCommandLength = 64   // argv elements
)

// Config holds all configuration for a site build.
type Config struct {
	Source      string        `yaml:"source"`      // Site source directory (default ".")
	Destination string        `yaml:"destination"` // Output directory (default "_site")
	Math        MathConfig    `yaml:"math"`
	Browser     BrowserConfig `yaml:"browser"`
	Build       BuildConfig   `yaml:"build"`
}

// MathConfig defines formula rendering options.
type MathConfig struct {
	Enabled    *bool    `yaml:"enabled"`    // nil = true
	Flag       string   `yaml:"flag"`       // Front matter opt-in key (default "mathjax")
	CacheDir   string   `yaml:"cacheDir"`   // Artifact cache (default "<source>/.texrender-cache/math")
	PublicPath string   `yaml:"publicPath"` // URL prefix (default "/assets/math")
	Format     string   `yaml:"format"`     // "svg" or "mathml" (default "svg")
	Renderer   string   `yaml:"renderer"`   // "exec" or "browser" (default exec when command is set)
	Command    []string `yaml:"command"`    // Exec renderer argv, stage dir appended
	Timeout    string   `yaml:"timeout"`    // Per-batch bound, Go duration (default "60s")
	ExPx       float64  `yaml:"exPx"`       // Pixels per ex (default 8)
	Scale      float64  `yaml:"scale"`      // Display multiplier (default 1)
	SkipCode   *bool    `yaml:"skipCode"`   // Ignore "$" inside Markdown code (nil = true)
	StylesDir  string   `yaml:"stylesDir"`  // Directory overriding math.css
}

// BrowserConfig defines the headless Chrome renderer.
type BrowserConfig struct {
	MathJaxURL string `yaml:"mathjaxURL"` // MathJax bundle (default jsDelivr tex-svg.js)
	Bin        string `yaml:"bin"`        // Chrome binary (empty = auto-detect)
	NoSandbox  bool   `yaml:"noSandbox"`  // Required in most containers
}

// BuildConfig defines how documents are discovered and processed.
type BuildConfig struct {
	Workers     int      `yaml:"workers"`     // Parallel documents with perDocument (0 = auto)
	PerDocument bool     `yaml:"perDocument"` // One batch per document instead of per build
	HTML        bool     `yaml:"html"`        // Also convert Markdown output to HTML
	Extensions  []string `yaml:"extensions"`  // Document extensions (default .md, .markdown, .html)
	Exclude     []string `yaml:"exclude"`     // Glob patterns relative to source
}

// Supported renderers.
const (
	RendererExec    = "exec"
	RendererBrowser = "browser"
)

// MathEnabled reports whether formula rendering is on.
func (c *Config) MathEnabled() bool {
	return c.Math.Enabled == nil || *c.Math.Enabled
}

// SkipCode reports whether Markdown code is excluded from extraction.
func (c *Config) SkipCode() bool {
	return c.Math.SkipCode == nil || *c.Math.SkipCode
}

// TimeoutDuration returns the parsed batch timeout, zero when unset.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Math.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks values that would otherwise fail late in a build.
// Called automatically by LoadConfig, but available for consumers
// who construct Config manually.
func (c *Config) Validate() error {
	if err := validateFieldLength("source", c.Source, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("destination", c.Destination, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("math.cacheDir", c.Math.CacheDir, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("math.stylesDir", c.Math.StylesDir, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("math.publicPath", c.Math.PublicPath, MaxURLLength); err != nil {
		return err
	}
	if err := validateFieldLength("math.flag", c.Math.Flag, MaxFlagLength); err != nil {
		return err
	}
	if err := validateFieldLength("browser.mathjaxURL", c.Browser.MathJaxURL, MaxURLLength); err != nil {
		return err
	}

	switch strings.ToLower(c.Math.Format) {
	case "", "svg", "mathml", "mml":
	default:
		return fmt.Errorf("%w: math.format %q (must be svg or mathml)", ErrInvalidValue, c.Math.Format)
	}

	switch strings.ToLower(c.Math.Renderer) {
	case "", RendererExec:
		if len(c.Math.Command) > MaxCommandLength {
			return fmt.Errorf("%w: math.command has %d elements (max %d)", ErrFieldTooLong, len(c.Math.Command), MaxCommandLength)
		}
	case RendererBrowser:
	default:
		return fmt.Errorf("%w: math.renderer %q (must be exec or browser)", ErrInvalidValue, c.Math.Renderer)
	}

	if c.Math.Timeout != "" {
		d, err := time.ParseDuration(c.Math.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: math.timeout %q (use a positive duration like 60s)", ErrInvalidValue, c.Math.Timeout)
		}
	}
	if c.Math.ExPx < 0 {
		return fmt.Errorf("%w: math.exPx must be positive, got %.2f", ErrInvalidValue, c.Math.ExPx)
	}
	if c.Math.Scale < 0 {
		return fmt.Errorf("%w: math.scale must be positive, got %.2f", ErrInvalidValue, c.Math.Scale)
	}
	if p := c.Math.PublicPath; p != "" && !strings.HasPrefix(p, "/") && !strings.Contains(p, "://") {
		return fmt.Errorf("%w: math.publicPath %q (must start with / or be a full URL)", ErrInvalidValue, p)
	}

	if c.Build.Workers < 0 {
		return fmt.Errorf("%w: build.workers must not be negative, got %d", ErrInvalidValue, c.Build.Workers)
	}
	for i, ext := range c.Build.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: build.extensions[%d] %q (must start with a dot)", ErrInvalidValue, i, ext)
		}
	}
	for i, pattern := range c.Build.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: build.exclude[%d] %q: %v", ErrInvalidValue, i, pattern, err)
		}
	}

	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns a configuration with every field at its zero value;
// consumers apply their own defaults to empty fields.
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SearchPaths lists where a config name is looked up, in order.
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, appDir, name+ext))
		}
	}
	return paths
}

// resolveConfigPath searches for a config file by name in standard locations:
// the current directory, then ~/.config/go-texrender/.
func resolveConfigPath(name string) (string, error) {
	tried := SearchPaths(name)
	for _, p := range tried {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(tried, ", "))
}
