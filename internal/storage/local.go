package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes objects into a directory served under /static.
type LocalStorage struct {
	dir        string
	publicBase string
}

// NewLocalStorage does not touch the filesystem; dir is created on first upload.
func NewLocalStorage(dir, publicBase string) *LocalStorage {
	return &LocalStorage{
		dir:        dir,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// Upload writes to a temp file in dir and renames it over key, so readers see
// either the old or the new content. Concurrent writers of the same key race
// and the last rename wins.
func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create static dir %q: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %q: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %q: %w", key, err)
	}
	return nil
}

// PublicURL returns "{base}/static/{key}".
func (s *LocalStorage) PublicURL(key string) string {
	return s.publicBase + "/static/" + key
}

// Path returns the on-disk location of key.
func (s *LocalStorage) Path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}
