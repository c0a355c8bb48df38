package storage

import "fmt"

const (
	TypeFilesystem = "filesystem"
	TypeRedis      = "redis"
	TypeMinio      = "minio"
)

type Config struct {
	Type      string
	Directory string
	Redis     RedisConfig
	Minio     MinioConfig
}

func NewStorage(cfg Config) (storage Storage, err error) {
	switch cfg.Type {
	case TypeFilesystem, "":
		storage, err = NewFilesystemStorage(cfg.Directory)
	case TypeRedis:
		storage, err = NewRedisStorage(cfg.Redis)
	case TypeMinio:
		storage, err = NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return storage, nil
}
