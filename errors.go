package texrender

import "errors"

// Sentinel errors for library operations.
var (
	ErrInvalidCacheDir = errors.New("invalid cache directory")
	ErrInvalidStyles   = errors.New("invalid styles directory")
	ErrClosed          = errors.New("processor is closed")
)
