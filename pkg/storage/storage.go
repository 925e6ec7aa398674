// Package storage defines the object store the pipeline reads audio from.
// Paths are forward-slash separated and relative to the store root.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for object storage. Implementations
// must be safe for concurrent use.
type FileStore interface {
	// Read opens the named object. Missing objects return an error
	// wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates the named object. The caller must close
	// the writer to complete the upload.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Fetch reads a whole object into memory, refusing objects larger than
// maxBytes when maxBytes is positive.
func Fetch(ctx context.Context, store FileStore, path string, maxBytes int64) ([]byte, error) {
	rc, err := store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := io.Reader(rc)
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("storage: %s exceeds %d bytes", path, maxBytes)
	}
	return data, nil
}

// Put writes data to the named object.
func Put(ctx context.Context, store FileStore, path string, data []byte) error {
	w, err := store.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return w.Close()
}

// Router resolves the store that holds a bucket. An empty bucket selects
// the default store.
type Router interface {
	Bucket(bucket string) (FileStore, error)
}
