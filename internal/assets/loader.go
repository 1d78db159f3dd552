package assets

// DefaultStyleName is the built-in formula stylesheet.
const DefaultStyleName = "math"

// StyleLoader loads CSS stylesheets by name (without the .css extension).
// Implementations return ErrStyleNotFound for unknown names and
// ErrInvalidAssetName for names that are not plain identifiers.
type StyleLoader interface {
	LoadStyle(name string) (string, error)
}

// defaultLoader serves the package-level LoadStyle.
var defaultLoader = NewEmbeddedLoader()

// LoadStyle loads a built-in stylesheet by name.
func LoadStyle(name string) (string, error) {
	return defaultLoader.LoadStyle(name)
}
