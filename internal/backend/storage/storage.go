package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Storage persists image bytes under slash separated references such as
// "uploads/3f2a.png". Writes replace existing objects atomically from a
// reader's point of view.
type Storage interface {
	Read(ctx context.Context, ref string) ([]byte, error)
	Write(ctx context.Context, ref string, data []byte) error
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
	Close() error
}

// CleanRef normalises a reference and rejects anything that could escape the
// storage root.
func CleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" {
		return "", fmt.Errorf("empty storage reference")
	}
	if strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("storage reference %q must be relative", ref)
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", fmt.Errorf("storage reference %q must not contain '..'", ref)
		}
	}
	cleaned := path.Clean(ref)
	if cleaned == "." {
		return "", fmt.Errorf("invalid storage reference %q", ref)
	}
	return cleaned, nil
}
