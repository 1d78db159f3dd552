package site

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alnah/go-texrender/internal/yamlutil"
)

// DefaultFlag is the front matter key that opts a document into formula
// rendering.
const DefaultFlag = "mathjax"

// ErrFrontMatter indicates a document's front matter is not valid YAML.
var ErrFrontMatter = errors.New("invalid front matter")

// Document is one source file split into front matter and body.
type Document struct {
	Path        string         // absolute or source-relative path on disk
	RelPath     string         // slash-separated path below the source root
	FrontMatter map[string]any // nil when the file has none
	Body        string

	head string // front matter block including fences, re-emitted verbatim
}

// ParseDocument splits data into front matter and body. Files without a
// leading "---" fence are all body.
func ParseDocument(path, rel string, data []byte) (*Document, error) {
	doc := &Document{Path: path, RelPath: rel}

	head, yamlText, body, ok := yamlutil.SplitFrontMatter(data)
	if !ok {
		doc.Body = string(data)
		return doc, nil
	}

	fm := map[string]any{}
	if len(strings.TrimSpace(string(yamlText))) > 0 {
		if err := yamlutil.Unmarshal(yamlText, &fm); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFrontMatter, rel, err)
		}
	}

	doc.FrontMatter = fm
	doc.head = string(head)
	doc.Body = string(body)
	return doc, nil
}

// Flag reports whether the front matter sets key to true. YAML booleans and
// the strings "true", "yes" and "on" count.
func (d *Document) Flag(key string) bool {
	if d.FrontMatter == nil {
		return false
	}
	switch v := d.FrontMatter[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on":
			return true
		}
	}
	return false
}

// Title returns the front matter title, or the file name without extension.
func (d *Document) Title() string {
	if t, ok := d.FrontMatter["title"].(string); ok && strings.TrimSpace(t) != "" {
		return t
	}
	name := d.RelPath
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// Bytes reassembles the document: the original front matter block followed
// by the current body.
func (d *Document) Bytes() []byte {
	return []byte(d.head + d.Body)
}
