package assets

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Dir is the handle for one archive's directory tree. It tracks which
// source URL owns each stored filename so that distinct URLs mapping to
// the same derived name get disambiguated instead of silently clobbered.
type Dir struct {
	root string

	mu     sync.Mutex
	owners map[string]string // relative path -> source URL
}

// NewDir creates the archive root directory if absent and returns a handle.
func NewDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Dir{
		root:   root,
		owners: make(map[string]string),
	}, nil
}

// Root returns the absolute archive root path.
func (d *Dir) Root() string {
	return d.root
}

// Reserve claims a relative path under subdir for sourceURL. Re-reserving
// the same name for the same URL returns the same path (last writer wins
// for idempotent re-downloads); a different URL colliding on the name gets
// urlHash spliced in before the extension.
func (d *Dir) Reserve(subdir, name, sourceURL, urlHash string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	rel := path.Join(subdir, name)
	owner, taken := d.owners[rel]
	if !taken || owner == sourceURL {
		d.owners[rel] = sourceURL
		return rel
	}

	ext := path.Ext(name)
	rel = path.Join(subdir, strings.TrimSuffix(name, ext)+"-"+urlHash+ext)
	d.owners[rel] = sourceURL
	return rel
}

// Write persists data byte-for-byte at rel (a path previously returned by
// Reserve), creating the category subdirectory if absent.
func (d *Dir) Write(rel string, data []byte) error {
	fullPath := filepath.Join(d.root, filepath.FromSlash(rel))

	cleanRoot := filepath.Clean(d.root)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanRoot+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes archive root", rel)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create subdirectory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
