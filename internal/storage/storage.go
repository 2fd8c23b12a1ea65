// Package storage keeps uploaded listing logos on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
)

// ErrUnsupportedType is returned for uploads that are not a known image
// type.
var ErrUnsupportedType = errors.New("storage: unsupported file type")

// allowedExt maps accepted upload extensions to the extension stored on disk.
var allowedExt = map[string]string{
	".png":  ".png",
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".gif":  ".gif",
	".webp": ".webp",
}

// AllowedExtension reports whether filename has an extension Store accepts.
func AllowedExtension(filename string) bool {
	_, ok := allowedExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// LocalStore writes files into a single directory and names them by xid, so
// the client-supplied filename never reaches the filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir is the directory served under /storage/.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Store copies r into a new file and returns its basename. A partially
// written file is removed on failure.
func (s *LocalStore) Store(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext, ok := allowedExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := xid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}

	return name, nil
}

// Remove deletes a stored file by basename. Removing a missing file is not
// an error.
func (s *LocalStore) Remove(_ context.Context, name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("storage: invalid name %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", name, err)
	}
	return nil
}
