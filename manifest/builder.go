package manifest

import (
	"context"
	"crypto/md5" //nolint:gosec // the service identifies content by MD5
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ValidationError is a path rejected while building a manifest.
type ValidationError struct {
	Path   string
	Reason string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Reason
}

// IgnoredFile is a path skipped silently while building a manifest.
type IgnoredFile struct {
	Path   string
	Reason string
}

// Result is the outcome of FromPaths.
type Result struct {
	Manifest *Manifest
	Errors   []ValidationError
	Ignored  []IgnoredFile
}

// Options configures FromPaths.
type Options struct {
	Title string
	// Validator defaults to one without user ignore patterns.
	Validator *Validator
}

// FromPaths walks paths, classifies every file found and returns a
// manifest of the valid ones in traversal order. Directories are walked
// recursively in lexical order. The walk completes before any file is
// read. Rejected and ignored paths are reported in the result; an error is
// returned only for local I/O failures while reading valid files.
func FromPaths(ctx context.Context, paths []string, opts Options) (*Result, error) {
	v := opts.Validator
	if v == nil {
		v = NewValidator(nil)
	}

	candidates, err := collect(ctx, paths)
	if err != nil {
		return nil, err
	}

	res := &Result{Manifest: New(opts.Title)}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reason, ignored := v.Classify(p)
		switch {
		case ignored:
			res.Ignored = append(res.Ignored, IgnoredFile{Path: p, Reason: reason})
			continue
		case reason != "":
			res.Errors = append(res.Errors, ValidationError{Path: p, Reason: reason})
			continue
		}

		f, err := describe(ctx, p)
		if errors.Is(err, fs.ErrNotExist) {
			res.Errors = append(res.Errors, ValidationError{Path: p, Reason: ReasonNotExist})
			continue
		}
		if err != nil {
			return nil, err
		}

		if _, err := res.Manifest.Add(f); err != nil {
			return nil, err
		}
	}

	slog.Debug("manifest built",
		"files", res.Manifest.Len(),
		"size", res.Manifest.Size(),
		"errors", len(res.Errors),
		"ignored", len(res.Ignored),
	)

	return res, nil
}

// collect expands paths into absolute file paths. Directories are walked;
// anything else, including missing paths, is kept for classification.
func collect(ctx context.Context, paths []string) ([]string, error) {
	var out []string

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}

		info, err := os.Lstat(abs)
		if err != nil || !info.IsDir() {
			out = append(out, abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				slog.Warn("skipping unreadable path", "path", path, "error", walkErr)
				if d != nil && d.IsDir() && path != abs {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", abs, err)
		}
	}

	return out, nil
}

// describe stats and hashes a file.
func describe(ctx context.Context, path string) (File, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the walk
	if err != nil {
		return File{}, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close file", "path", path, "err", closeErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return File{}, fmt.Errorf("stat file: %w", err)
	}

	h := md5.New() //nolint:gosec // content digest, not a security boundary
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return File{}, fmt.Errorf("hash file: %w", err)
	}

	return File{
		OriginalPath: path,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
		MD5:          hex.EncodeToString(h.Sum(nil)),
	}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
