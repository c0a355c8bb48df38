package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStorage keeps each object in a single string key. A SET replaces the
// whole value at once.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Address, err)
	}

	slog.Info("storage: using redis", "address", cfg.Address, "db", cfg.DB, "prefix", cfg.Prefix)
	return &RedisStorage{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStorage) key(ref string) (string, error) {
	cleaned, err := CleanRef(ref)
	if err != nil {
		return "", err
	}
	return s.prefix + cleaned, nil
}

func (s *RedisStorage) Read(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from redis: %w", ref, err)
	}
	return data, nil
}

func (s *RedisStorage) Write(ctx context.Context, ref string, data []byte) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", ref, err)
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := s.key(ref)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s in redis: %w", ref, err)
	}
	return n > 0, nil
}

func (s *RedisStorage) Delete(ctx context.Context, ref string) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", ref, err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
