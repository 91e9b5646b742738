// Package fileutil opens message export files for the file-backed readers.
package fileutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/encoding"
)

// File is a UTF-8 view over an export file.
type File struct {
	io.Reader
	f *os.File
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}

// Open opens path and decodes it to UTF-8.
// A missing file maps to api.ErrSourceUnavailable and a permission error to api.ErrPermissionDenied.
func Open(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("no export file configured: %w", api.ErrSourceUnavailable)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, classify(path, err)
	}

	r, err := encoding.NewUTF8Reader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("detecting encoding of %s: %w", path, err)
	}

	return &File{Reader: r, f: f}, nil
}

// Permission is a PermissionChecker backed by filesystem access to a single file.
type Permission struct {
	Path string
}

// HasPermission reports whether the file can be opened for reading.
// A missing file is not a permission problem; the read itself reports it.
func (p Permission) HasPermission(_ context.Context) (bool, error) {
	f, err := os.Open(p.Path)
	switch {
	case err == nil:
		_ = f.Close()
		return true, nil
	case errors.Is(err, fs.ErrPermission):
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("checking %s: %w", p.Path, err)
	}
}

// RequestPermission re-checks access; file permissions cannot be granted interactively.
func (p Permission) RequestPermission(ctx context.Context) (bool, error) {
	return p.HasPermission(ctx)
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("opening %s: %w", path, errors.Join(api.ErrSourceUnavailable, err))
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("opening %s: %w", path, errors.Join(api.ErrPermissionDenied, err))
	default:
		return fmt.Errorf("opening %s: %w", path, err)
	}
}
