package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

type FilesystemStorage struct {
	root string
}

func NewFilesystemStorage(directory string) (*FilesystemStorage, error) {
	if directory == "" {
		return nil, fmt.Errorf("storage directory must not be empty")
	}
	root, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory %s: %w", directory, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", root, err)
	}
	slog.Info("storage: using filesystem", "directory", root)
	return &FilesystemStorage{root: root}, nil
}

func (s *FilesystemStorage) path(ref string) (string, error) {
	cleaned, err := CleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FilesystemStorage) Read(ctx context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// Write stores data in a temporary file next to the target and renames it
// into place, so readers never observe a partially written object.
func (s *FilesystemStorage) Write(ctx context.Context, ref string, data []byte) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", ref, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", ref, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", ref, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", ref, err)
	}
	return nil
}

func (s *FilesystemStorage) Exists(ctx context.Context, ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	return !info.IsDir(), nil
}

func (s *FilesystemStorage) Delete(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *FilesystemStorage) Close() error {
	return nil
}
