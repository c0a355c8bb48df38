package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestCleanRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "uploads/a.png", want: "uploads/a.png"},
		{ref: "results//painted_1_2_3.jpg", want: "results/painted_1_2_3.jpg"},
		{ref: "uploads\\b.png", want: "uploads/b.png"},
		{ref: "", wantErr: true},
		{ref: "/etc/passwd", wantErr: true},
		{ref: "../secret", wantErr: true},
		{ref: "uploads/../../x", wantErr: true},
		{ref: ".", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := CleanRef(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CleanRef(%q) expected error, got %q", tt.ref, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanRef(%q) failed: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("CleanRef(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

// exerciseStorage runs the behaviour every backend must share.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	const ref = "results/painted_1_2_3.jpg"

	exists, err := s.Exists(ctx, "results/missing.jpg")
	if err != nil || exists {
		t.Fatalf("Exists(missing) = %v, %v; want false, nil", exists, err)
	}
	if _, err := s.Read(ctx, "results/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Write(ctx, ref, []byte("first")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, ref, []byte("second")); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	data, err := s.Read(ctx, ref)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, []byte("second")) {
		t.Errorf("Read = %q, want %q", data, "second")
	}

	exists, err = s.Exists(ctx, ref)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Errorf("Deleting a missing object should succeed, got %v", err)
	}
	exists, err = s.Exists(ctx, ref)
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false, nil", exists, err)
	}

	if err := s.Write(ctx, "../escape.jpg", []byte("x")); err == nil {
		t.Error("Expected error for a ref outside the store")
	}
}

func TestFilesystemStorage(t *testing.T) {
	s, err := NewFilesystemStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStorage failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	exerciseStorage(t, s)
}

func TestFilesystemStorage_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFilesystemStorage(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStorage failed: %v", err)
	}

	if err := s.Write(context.Background(), "uploads/source.png", []byte("png")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "source.png" {
		t.Errorf("Expected only source.png, got %v", entries)
	}
}

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStorage(RedisConfig{Address: mr.Addr(), Prefix: "wallpaint:"})
	if err != nil {
		t.Fatalf("NewRedisStorage failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	exerciseStorage(t, s)

	if err := s.Write(context.Background(), "uploads/a.png", []byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := mr.Get("wallpaint:uploads/a.png")
	if err != nil {
		t.Fatalf("miniredis Get failed: %v", err)
	}
	if got != "abc" {
		t.Errorf("Expected prefixed key to hold %q, got %q", "abc", got)
	}
}

func TestNewRedisStorage_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisStorage(RedisConfig{Address: addr}); err == nil {
		t.Error("Expected error for unreachable redis")
	}
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(Config{Type: TypeFilesystem, Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStorage(filesystem) failed: %v", err)
	}
	if _, ok := s.(*FilesystemStorage); !ok {
		t.Errorf("Expected *FilesystemStorage, got %T", s)
	}

	mr := miniredis.RunT(t)
	s, err = NewStorage(Config{Type: TypeRedis, Redis: RedisConfig{Address: mr.Addr()}})
	if err != nil {
		t.Fatalf("NewStorage(redis) failed: %v", err)
	}
	if _, ok := s.(*RedisStorage); !ok {
		t.Errorf("Expected *RedisStorage, got %T", s)
	}
	_ = s.Close()

	if _, err := NewStorage(Config{Type: "s3"}); err == nil {
		t.Error("Expected error for unsupported type")
	}

	s, err = NewStorage(Config{Type: TypeFilesystem})
	if err == nil || s != nil {
		t.Errorf("Expected error and nil storage without a directory, got %v, %v", s, err)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"results/painted_1_2_3.jpg": "image/jpeg",
		"uploads/a.png":             "image/png",
		"uploads/a.gif":             "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
