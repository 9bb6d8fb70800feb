package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by LocalTransferer.Open for missing objects.
var ErrObjectNotFound = errors.New("object not found")

// LocalTransferer stores objects as files under bucket/key in a root
// directory. Writes are atomic: content goes to a temp file that is
// renamed into place.
type LocalTransferer struct {
	root *os.Root
}

// NewLocal opens dir, creating it when needed.
func NewLocal(dir string) (*LocalTransferer, error) {
	if dir == "" {
		return nil, errors.New("local root directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}
	return &LocalTransferer{root: root}, nil
}

// Close releases the root directory.
func (t *LocalTransferer) Close() error {
	return t.root.Close()
}

// Upload copies req.LocalPath to bucket/key under the root.
func (t *LocalTransferer) Upload(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(req.LocalPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dest := objectPath(req.Bucket, req.Key)

	tmpFile := tmpFileName()
	tmp, err := t.root.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("could not open temp file: %w", err)
	}

	success := false
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := t.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	var r io.Reader = &ctxReader{ctx: ctx, r: src}
	if req.Progress != nil {
		r = newProgressReader(src, req.Progress)
		r = &ctxReader{ctx: ctx, r: r}
	}

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("could not copy file contents: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("could not sync written file: %w", err)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := t.root.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("could not create intermediate directories: %w", err)
		}
	}

	if err := t.root.Rename(tmpFile, dest); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	success = true
	return nil
}

// Open returns the content stored for bucket and key.
func (t *LocalTransferer) Open(bucket, key string) (io.ReadCloser, error) {
	f, err := t.root.Open(objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func objectPath(bucket, key string) string {
	return filepath.FromSlash(path.Join(bucket, path.Clean("/" + key)[1:]))
}

func tmpFileName() string {
	return fmt.Sprintf(".t%s", uuid.New().String())
}
