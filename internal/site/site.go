// Package site is the static site collaborator of the formula pipeline: it
// finds and parses source documents, collects static files, and converts
// Markdown pages to HTML.
package site

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alnah/go-texrender/internal/assets"
)

// DefaultExtensions are the document extensions Discover picks up when none
// are configured.
var DefaultExtensions = []string{".md", ".markdown", ".html"}

// ErrDiscover indicates the source tree could not be walked.
var ErrDiscover = errors.New("document discovery failed")

// Site is the output of one build. It implements assets.Registry.
type Site struct {
	Source string
	Dest   string

	mu     sync.Mutex
	static map[string]assets.StaticFile // keyed by URL
}

// New creates a Site for the given source and destination roots.
func New(source, dest string) *Site {
	return &Site{Source: source, Dest: dest, static: map[string]assets.StaticFile{}}
}

// AddStaticFile implements assets.Registry. A file registered again under
// the same URL replaces the earlier one.
func (s *Site) AddStaticFile(f assets.StaticFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.static == nil {
		s.static = map[string]assets.StaticFile{}
	}
	s.static[f.URL] = f
}

// StaticFiles returns registered files sorted by URL.
func (s *Site) StaticFiles() []assets.StaticFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]assets.StaticFile, 0, len(s.static))
	for _, f := range s.static {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Discover walks root and returns the slash-separated relative paths of all
// documents with one of exts, sorted. Entries whose name starts with "." or
// "_" (caches, the default "_site" output) and paths matching an exclude
// glob are skipped.
func Discover(root string, exts, exclude []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	want := make(map[string]bool, len(exts))
	for _, ext := range exts {
		want[strings.ToLower(ext)] = true
	}

	var docs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || excluded(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if want[strings.ToLower(filepath.Ext(rel))] {
			docs = append(docs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscover, err)
	}

	sort.Strings(docs)
	return docs, nil
}

// excluded matches rel and each of its parent directories against patterns.
func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// OutputPath maps a document to its path under dest. With html set,
// Markdown documents get an .html extension.
func OutputPath(dest, rel string, html bool) string {
	if html && IsMarkdown(rel) {
		rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".html"
	}
	return filepath.Join(dest, filepath.FromSlash(rel))
}

// IsMarkdown reports whether rel has a Markdown extension.
func IsMarkdown(rel string) bool {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
