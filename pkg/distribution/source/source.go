// Package source resolves checkpoint files to local paths. It stands in for
// the file-fetch service that materializes a remote repository: the extractor
// only ever asks a Fetcher for a file name and receives a local path back.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a requested file does not exist in the source.
var ErrNotFound = errors.New("file not found in source")

// Fetcher resolves a repository-relative file name to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, filename string) (string, error)
}

// Dir is a Fetcher over a local checkout of a model repository.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root, which must be an existing directory.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute source directory.
func (d *Dir) Root() string {
	return d.root
}

// Fetch returns the local path of filename. Names escaping the root are rejected.
func (d *Dir) Fetch(ctx context.Context, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(filename) {
		return "", fmt.Errorf("invalid file name %q: must be relative to the source", filename)
	}
	path := filepath.Join(d.root, filename)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filename, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", filename)
	}
	return path, nil
}
