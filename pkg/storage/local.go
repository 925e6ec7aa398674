package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Local implements FileStore on top of the local filesystem. All paths are
// resolved relative to the root directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("storage: empty path")
	}
	return filepath.Join(l.root, clean), nil
}

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", path, os.ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

// Write opens the named file for writing, creating parent directories.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

// Delete removes the named file.
func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// LocalRouter maps buckets to subdirectories of a root directory.
type LocalRouter struct {
	def *Local

	mu      sync.Mutex
	buckets map[string]*Local
}

// NewLocalRouter creates a router whose default store is root itself.
func NewLocalRouter(root string) (*LocalRouter, error) {
	def, err := NewLocal(root)
	if err != nil {
		return nil, err
	}
	return &LocalRouter{def: def, buckets: make(map[string]*Local)}, nil
}

// Bucket returns the store for bucket, rooted at root/bucket.
func (r *LocalRouter) Bucket(bucket string) (FileStore, error) {
	if bucket == "" {
		return r.def, nil
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return nil, fmt.Errorf("storage: invalid bucket name %q", bucket)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.buckets[bucket]; ok {
		return l, nil
	}
	l, err := NewLocal(filepath.Join(r.def.root, bucket))
	if err != nil {
		return nil, err
	}
	r.buckets[bucket] = l
	return l, nil
}

var (
	_ FileStore = (*Local)(nil)
	_ Router    = (*LocalRouter)(nil)
)
