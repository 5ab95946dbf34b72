package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr     string        `yaml:"server_addr"`
	PublicURL      string        `yaml:"public_url"`
	LogLevel       string        `yaml:"log_level"`
	StoragePath    string        `yaml:"storage_path"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`

	Database   DatabaseConfig   `yaml:"database"`
	OCR        OCRConfig        `yaml:"ocr"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Search     SearchConfig     `yaml:"search"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Preview    PreviewConfig    `yaml:"preview"`
	Debug      DebugConfig      `yaml:"debug"`
	Upload     UploadConfig     `yaml:"upload"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	URL    string `yaml:"url"`
}

type OCRConfig struct {
	Languages []string      `yaml:"languages"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PreprocessConfig struct {
	Threshold   int    `yaml:"threshold"`
	Format      string `yaml:"format"` // jpeg, png
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxLimit       int `yaml:"max_limit"`
	QueryCacheSize int `yaml:"query_cache_size"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type PreviewConfig struct {
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	WatermarkText string `yaml:"watermark_text"`
}

type DebugConfig struct {
	Enabled   bool `yaml:"enabled"`
	DumpLimit int  `yaml:"dump_limit"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// DefaultConfig returns the configuration used for keys absent from the file.
func DefaultConfig() Config {
	return Config{
		ServerAddr:     ":8080",
		PublicURL:      "http://localhost:8080",
		LogLevel:       "info",
		StoragePath:    "./data",
		PersistTimeout: 15 * time.Second,
		Database:       DatabaseConfig{Driver: "postgres"},
		OCR: OCRConfig{
			Languages: []string{"chi_sim", "eng"},
			Timeout:   60 * time.Second,
		},
		Preprocess: PreprocessConfig{Threshold: 160, Format: "jpeg", JPEGQuality: 90},
		Search:     SearchConfig{DefaultLimit: 12, MaxLimit: 100, QueryCacheSize: 512},
		Kafka:      KafkaConfig{Topic: "images.indexed", GroupID: "image-preview-group"},
		Preview:    PreviewConfig{Width: 320, Height: 320},
		Debug:      DebugConfig{Enabled: true, DumpLimit: 50},
		Upload:     UploadConfig{MaxBytes: 10 << 20},
	}
}

func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidArgument, c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("%w: database.url is required", ErrInvalidArgument)
	}
	if c.Preprocess.Threshold < 0 || c.Preprocess.Threshold > 255 {
		return fmt.Errorf("%w: preprocess.threshold must be within 0..255", ErrInvalidArgument)
	}
	switch c.Preprocess.Format {
	case "jpeg", "png":
	default:
		return fmt.Errorf("%w: unknown preprocess.format %q", ErrInvalidArgument, c.Preprocess.Format)
	}
	if c.Preprocess.JPEGQuality < 1 || c.Preprocess.JPEGQuality > 100 {
		return fmt.Errorf("%w: preprocess.jpeg_quality must be within 1..100", ErrInvalidArgument)
	}
	if c.OCR.Timeout <= 0 || c.PersistTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidArgument)
	}
	if len(c.OCR.Languages) == 0 {
		return fmt.Errorf("%w: ocr.languages must not be empty", ErrInvalidArgument)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("%w: search limits must satisfy 1 <= default_limit <= max_limit", ErrInvalidArgument)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topic are required when kafka is enabled", ErrInvalidArgument)
	}
	if c.Preview.Width < 1 || c.Preview.Height < 1 {
		return fmt.Errorf("%w: preview dimensions must be positive", ErrInvalidArgument)
	}
	if c.Upload.MaxBytes < 1 {
		return fmt.Errorf("%w: upload.max_bytes must be positive", ErrInvalidArgument)
	}
	return nil
}
