package assets

import "errors"

// StyleResolver prefers a site-provided stylesheet and falls back to the
// built-in one when the site does not define it.
type StyleResolver struct {
	custom   StyleLoader // nil if no styles directory is configured
	embedded StyleLoader
}

// NewStyleResolver creates a StyleResolver. An empty customDir uses only the
// built-in styles; otherwise customDir must be a readable directory.
func NewStyleResolver(customDir string) (*StyleResolver, error) {
	r := &StyleResolver{embedded: NewEmbeddedLoader()}

	if customDir != "" {
		fsLoader, err := NewFilesystemLoader(customDir)
		if err != nil {
			return nil, err
		}
		r.custom = fsLoader
	}

	return r, nil
}

// LoadStyle implements StyleLoader.
func (r *StyleResolver) LoadStyle(name string) (string, error) {
	if r.custom == nil {
		return r.embedded.LoadStyle(name)
	}

	content, err := r.custom.LoadStyle(name)
	if err == nil {
		return content, nil
	}

	// Only fall back for "not found", not validation or I/O errors.
	if !errors.Is(err, ErrStyleNotFound) {
		return "", err
	}

	return r.embedded.LoadStyle(name)
}

// HasCustomLoader returns true if a styles directory is configured.
func (r *StyleResolver) HasCustomLoader() bool {
	return r.custom != nil
}

// Compile-time interface check.
var _ StyleLoader = (*StyleResolver)(nil)
