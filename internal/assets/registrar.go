package assets

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alnah/go-texrender/internal/fileutil"
)

// Public locations of generated assets.
const (
	DefaultPublicPath = "/assets/math"
	StylesheetURL     = "/assets/css/" + DefaultStyleName + ".css"
)

// StaticFile is one file the site must publish unchanged.
type StaticFile struct {
	Name       string // base file name
	SourcePath string // file on disk; empty when Content is set
	URL        string // public URL, site-absolute or full
	Content    []byte // in-memory content, e.g. an embedded stylesheet
}

// Registry collects static files for the site output. It is implemented by
// the surrounding site build.
type Registry interface {
	AddStaticFile(f StaticFile)
}

// Registrar exposes cached artifacts under a public URL prefix.
type Registrar struct {
	PublicPath string
}

// Files converts a name → on-disk path map into static files, sorted by
// name. Names that are not plain file names are skipped.
func (r Registrar) Files(files map[string]string) []StaticFile {
	names := make([]string, 0, len(files))
	for name := range files {
		if ValidateFileName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	prefix := strings.TrimSuffix(r.publicPath(), "/")
	out := make([]StaticFile, len(names))
	for i, name := range names {
		out[i] = StaticFile{Name: name, SourcePath: files[name], URL: prefix + "/" + name}
	}
	return out
}

// Register hands every artifact to reg and returns how many were registered.
// Registering the same name again replaces the earlier entry in the registry.
func (r Registrar) Register(reg Registry, files map[string]string) int {
	sf := r.Files(files)
	for _, f := range sf {
		reg.AddStaticFile(f)
	}
	return len(sf)
}

func (r Registrar) publicPath() string {
	if r.PublicPath == "" {
		return DefaultPublicPath
	}
	return r.PublicPath
}

// Stylesheet loads the formula stylesheet through loader as a static file.
func Stylesheet(loader StyleLoader) (StaticFile, error) {
	css, err := loader.LoadStyle(DefaultStyleName)
	if err != nil {
		return StaticFile{}, err
	}
	return StaticFile{
		Name:    DefaultStyleName + ".css",
		URL:     StylesheetURL,
		Content: []byte(css),
	}, nil
}

// CopyTo writes files into the output tree rooted at destRoot, at the path
// component of each URL. Artifact files already present with identical
// bytes are left alone; a stale file under the same name is replaced.
func CopyTo(destRoot string, files []StaticFile) error {
	root, err := filepath.Abs(destRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}

	for _, f := range files {
		dst, err := outputPath(root, f.URL)
		if err != nil {
			return err
		}

		if f.Content != nil {
			if err := fileutil.WriteFileAtomic(dst, f.Content, fileutil.FilePermissions); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCopy, f.Name, err)
			}
			continue
		}

		if sameContent(f.SourcePath, dst) {
			continue
		}
		if err := fileutil.CopyFileAtomic(f.SourcePath, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCopy, f.Name, err)
		}
	}
	return nil
}

// outputPath maps a public URL to a file under root.
func outputPath(root, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrCopy, rawURL, err)
	}
	rel := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q has no path", ErrCopy, rawURL)
	}

	dst := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(dst, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rawURL)
	}
	return dst, nil
}

// sameContent reports whether dst exists with the same bytes as src.
// Names hash the formula, not the rendering, so size alone is not enough.
func sameContent(src, dst string) bool {
	b, err := os.ReadFile(dst) // #nosec G304 -- path under the output root
	if err != nil {
		return false
	}
	a, err := os.ReadFile(src) // #nosec G304 -- artifact path from the cache
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
