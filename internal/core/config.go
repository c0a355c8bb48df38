package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/wallpaint/internal/backend/commandstructure"
	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/backend/storage"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/segmentation"
)

const (
	DefaultPort           = 8080
	DefaultMaxUploadBytes = 10 << 20
	DefaultThumbnailWidth = 320
	DefaultSourceCacheTTL = 5 * time.Minute
	// 40 megapixels decode to 160 MB of RGBA.
	DefaultMaxPixels = 40_000_000
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

type Storage struct {
	Type      string      `yaml:"type"`
	Directory string      `yaml:"directory"`
	Redis     RedisConfig `yaml:"redis"`
	Minio     MinioConfig `yaml:"minio"`
}

type Segmentation struct {
	Type         string        `yaml:"type"`
	Endpoint     string        `yaml:"endpoint"`
	Checkpoint   string        `yaml:"checkpoint"`
	ChannelOrder string        `yaml:"channelOrder"`
	Timeout      time.Duration `yaml:"timeout"`
	Tolerances   []float64     `yaml:"tolerances"`
}

type Blend struct {
	Enabled bool `yaml:"enabled"`
	// Alpha is the weight of the paint colour; unset means paint.DefaultBlendAlpha.
	Alpha *float64 `yaml:"alpha"`
}

type Pipeline struct {
	DefaultColor   string          `yaml:"defaultColor"`
	OutputFormat   string          `yaml:"outputFormat"`
	JPEGQuality    int             `yaml:"jpegQuality"`
	Workers        int             `yaml:"workers"`
	QueueSize      int             `yaml:"queueSize"`
	MaxUploadBytes int64           `yaml:"maxUploadBytes"`
	MaxPixels      int64           `yaml:"maxPixels"`
	SourceCacheTTL time.Duration   `yaml:"sourceCacheTTL"`
	Blend          Blend           `yaml:"blend"`
	PostProcess    []CommandConfig `yaml:"postProcess"`
}

type ServiceConfig struct {
	Port           int          `yaml:"port"`
	Database       Database     `yaml:"database"`
	Storage        Storage      `yaml:"storage"`
	Segmentation   Segmentation `yaml:"segmentation"`
	Pipeline       Pipeline     `yaml:"pipeline"`
	RateLimit      float64      `yaml:"rateLimit"`
	ThumbnailWidth int          `yaml:"thumbnailWidth"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Complete(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Complete fills unset fields with defaults and validates the result. It is
// safe to call more than once.
func (c *ServiceConfig) Complete() error {
	c.applyDefaults()
	return c.Validate()
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Database.Type == "" {
		c.Database.Type = database.TypeSQLite
	}
	if c.Database.Type == database.TypeSQLite && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "wallpaint.db"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = storage.TypeFilesystem
	}
	if c.Storage.Type == storage.TypeFilesystem && c.Storage.Directory == "" {
		c.Storage.Directory = "media"
	}
	if c.Segmentation.Type == "" {
		c.Segmentation.Type = segmentation.TypeFloodFill
	}
	if c.Segmentation.ChannelOrder == "" {
		c.Segmentation.ChannelOrder = string(paint.RGB)
	}
	if c.Segmentation.Timeout == 0 {
		c.Segmentation.Timeout = 60 * time.Second
	}

	p := &c.Pipeline
	if p.DefaultColor == "" {
		p.DefaultColor = paint.FallbackColor
	}
	if p.OutputFormat == "" {
		p.OutputFormat = imageio.FormatJPEG
	}
	if p.JPEGQuality == 0 {
		p.JPEGQuality = imageio.DefaultJPEGQuality
	}
	if p.Workers == 0 {
		p.Workers = 2
	}
	if p.QueueSize == 0 {
		p.QueueSize = 16
	}
	if p.MaxUploadBytes == 0 {
		p.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if p.SourceCacheTTL == 0 {
		p.SourceCacheTTL = DefaultSourceCacheTTL
	}
	if p.MaxPixels == 0 {
		p.MaxPixels = DefaultMaxPixels
	}
	if c.ThumbnailWidth == 0 {
		c.ThumbnailWidth = DefaultThumbnailWidth
	}
}

// Validate checks the configuration after defaults were applied.
func (c *ServiceConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	switch c.Database.Type {
	case database.TypeSQLite, database.TypePostgres:
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database.connectionString is required for %s", c.Database.Type)
	}

	switch c.Storage.Type {
	case storage.TypeFilesystem:
	case storage.TypeRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address is required")
		}
	case storage.TypeMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Segmentation.Type {
	case segmentation.TypeFloodFill:
	case segmentation.TypeHTTP:
		if c.Segmentation.Endpoint == "" {
			return fmt.Errorf("segmentation.endpoint is required for %s", segmentation.TypeHTTP)
		}
		if c.Segmentation.Checkpoint == "" {
			return fmt.Errorf("segmentation.checkpoint is required for %s", segmentation.TypeHTTP)
		}
	default:
		return fmt.Errorf("unsupported segmentation type: %s", c.Segmentation.Type)
	}
	if _, err := paint.ParseChannelOrder(c.Segmentation.ChannelOrder); err != nil {
		return fmt.Errorf("segmentation.channelOrder: %w", err)
	}
	if c.Segmentation.Timeout < 0 {
		return fmt.Errorf("segmentation.timeout must not be negative")
	}

	p := c.Pipeline
	if _, err := paint.ParseHexColor(p.DefaultColor); err != nil {
		return fmt.Errorf("pipeline.defaultColor: %w", err)
	}
	if !imageio.IsAccepted(p.OutputFormat) {
		return fmt.Errorf("pipeline.outputFormat must be one of %v, got %s", imageio.AcceptedFormats(), p.OutputFormat)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpegQuality must be between 1 and 100, got %d", p.JPEGQuality)
	}
	if p.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", p.Workers)
	}
	if p.QueueSize < 0 {
		return fmt.Errorf("pipeline.queueSize must not be negative, got %d", p.QueueSize)
	}
	if p.MaxUploadBytes < 0 {
		return fmt.Errorf("pipeline.maxUploadBytes must not be negative")
	}
	if p.MaxPixels < 0 {
		return fmt.Errorf("pipeline.maxPixels must not be negative")
	}
	if err := p.BlendPolicy().Validate(); err != nil {
		return fmt.Errorf("pipeline.blend: %w", err)
	}
	if err := validateCommands(p.PostProcess); err != nil {
		return fmt.Errorf("invalid pipeline.postProcess configuration: %w", err)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative")
	}
	if c.ThumbnailWidth < 0 {
		return fmt.Errorf("thumbnailWidth must not be negative")
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("command at index %d: unknown command %s (registered: %s)",
				i, cmd.Name, strings.Join(commandstructure.DefaultRegistry.GetRegisteredNames(), ", "))
		}
	}
	return nil
}

func (p Pipeline) BlendPolicy() paint.BlendPolicy {
	alpha := paint.DefaultBlendAlpha
	if p.Blend.Alpha != nil {
		alpha = *p.Blend.Alpha
	}
	return paint.BlendPolicy{Enabled: p.Blend.Enabled, Alpha: alpha}
}

func (p Pipeline) CommandConfigs() []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(p.PostProcess))
	for _, cmd := range p.PostProcess {
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}

func (s Storage) StorageConfig() storage.Config {
	return storage.Config{
		Type:      s.Type,
		Directory: s.Directory,
		Redis:     storage.RedisConfig(s.Redis),
		Minio:     storage.MinioConfig(s.Minio),
	}
}

func (s Segmentation) SegmenterConfig() segmentation.Config {
	return segmentation.Config{
		Type:         s.Type,
		Endpoint:     s.Endpoint,
		Checkpoint:   s.Checkpoint,
		ChannelOrder: s.ChannelOrder,
		Tolerances:   s.Tolerances,
	}
}
