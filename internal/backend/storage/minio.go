package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jo-hoe/wallpaint/internal/imageio"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStorage stores objects in a single S3 compatible bucket. PutObject
// only makes an object visible once the upload completed.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must not be empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &MinioStorage{client: client, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	slog.Info("storage: using minio", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return s, nil
}

func (s *MinioStorage) ensureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket %s exists: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	slog.Info("storage: created bucket", "bucket", s.bucket)
	return nil
}

func (s *MinioStorage) Read(ctx context.Context, ref string) ([]byte, error) {
	name, err := CleanRef(ref)
	if err != nil {
		return nil, err
	}
	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	defer func() {
		_ = object.Close()
	}()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

func (s *MinioStorage) Write(ctx context.Context, ref string, data []byte) error {
	name, err := CleanRef(ref)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", ref, err)
	}
	return nil
}

func (s *MinioStorage) Exists(ctx context.Context, ref string) (bool, error) {
	name, err := CleanRef(ref)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	return true, nil
}

func (s *MinioStorage) Delete(ctx context.Context, ref string) error {
	name, err := CleanRef(ref)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *MinioStorage) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func contentTypeFor(name string) string {
	format, err := imageio.FormatFromName(name)
	if err != nil {
		return "application/octet-stream"
	}
	return imageio.ContentType(format)
}
