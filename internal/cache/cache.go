// Package cache stores rendered formula artifacts addressed by content.
//
// The on-disk layout is flat: <root>/<key><ext>. A file under its final name
// is always complete because artifacts are staged elsewhere and renamed into
// place. The in-memory index is a per-process accelerator; the disk is the
// durable record, so a second build process finds artifacts written by the
// first without rendering again.
package cache

import (
	"crypto/md5" // #nosec G501 -- content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alnah/go-texrender/internal/artifact"
	"github.com/alnah/go-texrender/internal/extract"
	"github.com/alnah/go-texrender/internal/fileutil"
)

// Sentinel errors for cache operations.
var (
	ErrEmptyRoot  = errors.New("cache root cannot be empty")
	ErrInvalidKey = errors.New("invalid cache key")
)

// stageDirName is the directory under the cache root where renderers write
// before files are committed. Keeping it on the same filesystem makes the
// commit a rename.
const stageDirName = ".stage"

// Key derives the content address of a formula. Surrounding whitespace is
// ignored; the mode is part of the key because inline and display renderings
// of the same TeX differ.
func Key(tex string, mode extract.Mode) string {
	sum := md5.Sum([]byte(mode.String() + "\x00" + strings.TrimSpace(tex))) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Cache is a content-addressed artifact store. It is safe for concurrent use.
type Cache struct {
	root   string
	format artifact.Format

	mu      sync.RWMutex
	entries map[string]artifact.Artifact
	failed  map[string]string
	flights map[string]*Flight
}

// New opens (creating if needed) the cache rooted at root for one format.
func New(root string, format artifact.Format) (*Cache, error) {
	if root == "" {
		return nil, ErrEmptyRoot
	}
	if format != artifact.FormatSVG && format != artifact.FormatMathML {
		return nil, fmt.Errorf("%w: %q", artifact.ErrUnknownFormat, format)
	}
	if err := os.MkdirAll(root, fileutil.DirPermissions); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		root:    root,
		format:  format,
		entries: make(map[string]artifact.Artifact),
		failed:  make(map[string]string),
		flights: make(map[string]*Flight),
	}, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Format returns the artifact format stored by this cache.
func (c *Cache) Format() artifact.Format { return c.format }

// Filename returns the artifact file name for key.
func (c *Cache) Filename(key string) string {
	return key + c.format.Ext()
}

// Path returns the final on-disk location for key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.root, c.Filename(key))
}

// Lookup returns the artifact for key. Memory is consulted first; on a miss
// the disk is checked and a readable artifact is indexed for later calls.
func (c *Cache) Lookup(key string) (artifact.Artifact, bool) {
	c.mu.RLock()
	a, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return a, true
	}

	if !validKey(key) {
		return artifact.Artifact{}, false
	}
	path := c.Path(key)
	if !fileutil.FileExists(path) {
		return artifact.Artifact{}, false
	}
	a, err := c.inspect(key, path)
	if err != nil {
		return artifact.Artifact{}, false
	}
	c.Record(key, a)
	return a, true
}

// Record indexes a successful artifact. Success entries are never removed.
func (c *Cache) Record(key string, a artifact.Artifact) {
	c.mu.Lock()
	c.entries[key] = a
	delete(c.failed, key)
	c.mu.Unlock()
}

// Commit moves a staged artifact into its final location and records it.
// The staged file must be on the same filesystem as the cache root.
func (c *Cache) Commit(key, stagedPath string) (artifact.Artifact, error) {
	if !validKey(key) {
		return artifact.Artifact{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	// Inspect before the rename so a malformed file never reaches the cache.
	if _, err := artifact.Inspect(stagedPath, c.format); err != nil {
		return artifact.Artifact{}, err
	}

	path := c.Path(key)
	if err := fileutil.MoveFile(stagedPath, path); err != nil {
		return artifact.Artifact{}, err
	}
	a, err := c.inspect(key, path)
	if err != nil {
		return artifact.Artifact{}, err
	}
	c.Record(key, a)
	return a, nil
}

// MarkFailed records that key could not be rendered in this process. Failed
// keys are not retried until the next build.
func (c *Cache) MarkFailed(key, reason string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.failed[key] = reason
	}
	c.mu.Unlock()
}

// Failed returns the recorded failure reason for key.
func (c *Cache) Failed(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reason, ok := c.failed[key]
	return reason, ok
}

// Files maps artifact file names to their on-disk paths for every artifact
// known to this process.
func (c *Cache) Files() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.entries))
	for _, a := range c.entries {
		out[a.Filename] = a.Path
	}
	return out
}

// Keys returns the sorted keys of every indexed artifact.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of indexed artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StageDir creates a fresh staging directory for one render batch. The
// caller removes it when the batch is settled.
func (c *Cache) StageDir() (string, error) {
	parent := filepath.Join(c.root, stageDirName)
	if err := os.MkdirAll(parent, fileutil.DirPermissions); err != nil {
		return "", fmt.Errorf("creating stage directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "batch-*")
	if err != nil {
		return "", fmt.Errorf("creating stage directory: %w", err)
	}
	return dir, nil
}

func (c *Cache) inspect(key, path string) (artifact.Artifact, error) {
	a, err := artifact.Inspect(path, c.format)
	if err != nil {
		return artifact.Artifact{}, err
	}
	a.Key = key
	a.Filename = c.Filename(key)
	return a, nil
}

// validKey accepts lowercase hex digests only, which keeps keys safe to use
// as file names.
func validKey(key string) bool {
	if len(key) != hex.EncodedLen(md5.Size) {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
