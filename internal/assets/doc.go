// Package assets publishes rendered formula files and the math stylesheet
// into the site build.
//
// # Registration
//
// The Registrar maps every artifact file known to the cache to a public URL
// under a fixed prefix and hands it to a Registry, the site framework's
// static-file collector:
//
//	cache.Files()  ──►  Registrar.Register  ──►  Registry.AddStaticFile
//	                                             (/assets/math/<hash>.svg)
//
// File names are content hashes, so registering the same name twice always
// refers to identical content and the last registration wins.
//
// # Stylesheet Loading
//
// The wrapper classes emitted by the rewriter are styled by math.css:
//
//	StyleLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - built-in styles (go:embed)
//	    ├── FilesystemLoader  - site-provided styles directory
//	    └── StyleResolver     - site styles first, built-in fallback
//
// # Security
//
// Style names and registered file names are validated so they cannot
// escape their directories. FilesystemLoader resolves symlinks and verifies
// paths stay within its base directory.
package assets
