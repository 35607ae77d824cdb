package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Local stores files under a root directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "storage: create root %s", dir)
	}
	return &Local{root: dir}, nil
}

// Save writes data under root/path, creating parent directories, and returns
// the full location.
func (l *Local) Save(_ context.Context, path string, data []byte) (string, error) {
	full := filepath.Join(l.root, filepath.Clean(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", eris.Wrapf(err, "storage: create parent for %s", path)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "storage: write %s", path)
	}
	return full, nil
}

// Read returns the bytes at location.
func (l *Local) Read(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", location)
	}
	return data, nil
}

// Delete removes the file at location and prunes empty parent directories up
// to the storage root.
func (l *Local) Delete(_ context.Context, location string) error {
	if err := os.Remove(location); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "storage: delete %s", location)
	}

	dir := filepath.Dir(location)
	rootAbs, err := filepath.Abs(l.root)
	if err != nil {
		return nil
	}
	for {
		dirAbs, err := filepath.Abs(dir)
		if err != nil || dirAbs == rootAbs || !withinRoot(rootAbs, dirAbs) {
			return nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return nil
		}
		dir = filepath.Dir(dir)
	}
}

func withinRoot(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && rel != "." && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}
