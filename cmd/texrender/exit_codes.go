package main

import (
	"errors"
	"os"

	texrender "github.com/alnah/go-texrender"
	"github.com/alnah/go-texrender/internal/assets"
	"github.com/alnah/go-texrender/internal/config"
	"github.com/alnah/go-texrender/internal/site"
)

// Exit codes for the texrender CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful build
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
	ExitRender  = 4 // Formulas failed to render with --strict
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Render errors (exit 4)
	if errors.Is(err, ErrRenderFailures) {
		return ExitRender
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoDocuments) ||
		errors.Is(err, ErrReadDocument) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, site.ErrDiscover) ||
		errors.Is(err, assets.ErrCopy) ||
		errors.Is(err, texrender.ErrInvalidCacheDir) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, site.ErrFrontMatter) ||
		errors.Is(err, texrender.ErrInvalidStyles) ||
		errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrNoCommand) {
		return ExitUsage
	}

	return ExitGeneral
}
