package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps uploaded blobs in a single directory under generated
// unique names. The original filename only survives in the database;
// on disk a blob is "<uuid><ext>" so two uploads can never collide.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Save streams the blob to disk and returns its stored path.
func (s *FileStore) Save(r io.Reader, originalName string) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return path, nil
}

// Open returns the blob for streaming to a response.
func (s *FileStore) Open(path string) (*os.File, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Remove deletes a blob. Removing a missing blob is not an error; the
// row is already gone and a retry must not fail.
func (s *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := s.check(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// check rejects any path outside the upload directory. Stored paths
// come from our own database, but they pass through enough hands that
// the guard is kept.
func (s *FileStore) check(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve blob path: %w", err)
	}
	if !strings.HasPrefix(abs, s.dir+string(filepath.Separator)) {
		return fmt.Errorf("blob path outside upload dir: %s", path)
	}
	return nil
}
