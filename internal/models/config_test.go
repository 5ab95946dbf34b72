package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  url: /tmp/images.db
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Preprocess.Threshold != 160 {
		t.Errorf("Threshold = %d, want 160", cfg.Preprocess.Threshold)
	}
	if cfg.Search.DefaultLimit != 12 {
		t.Errorf("DefaultLimit = %d, want 12", cfg.Search.DefaultLimit)
	}
	if len(cfg.OCR.Languages) != 2 || cfg.OCR.Languages[0] != "chi_sim" || cfg.OCR.Languages[1] != "eng" {
		t.Errorf("Languages = %v", cfg.OCR.Languages)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
server_addr: ":9000"
persist_timeout: 3s
database:
  driver: postgres
  url: postgres://u:p@localhost/db
ocr:
  timeout: 90s
  languages: [eng]
kafka:
  enabled: true
  brokers: ["localhost:9092"]
preview:
  watermark_text: "memes"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ServerAddr != ":9000" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.PersistTimeout != 3*time.Second {
		t.Errorf("PersistTimeout = %v", cfg.PersistTimeout)
	}
	if cfg.OCR.Timeout != 90*time.Second {
		t.Errorf("OCR.Timeout = %v", cfg.OCR.Timeout)
	}
	if cfg.Kafka.Topic != "images.indexed" {
		t.Errorf("Kafka.Topic = %q, want default", cfg.Kafka.Topic)
	}
	if cfg.Preview.WatermarkText != "memes" {
		t.Errorf("WatermarkText = %q", cfg.Preview.WatermarkText)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", "database:\n  driver: sqlite\n"},
		{"unknown driver", "database:\n  driver: mysql\n  url: x\n"},
		{"threshold", "database:\n  driver: sqlite\n  url: x\npreprocess:\n  threshold: 300\n"},
		{"format", "database:\n  driver: sqlite\n  url: x\npreprocess:\n  format: gif\n"},
		{"kafka brokers", "database:\n  driver: sqlite\n  url: x\nkafka:\n  enabled: true\n"},
		{"limits", "database:\n  driver: sqlite\n  url: x\nsearch:\n  default_limit: 50\n  max_limit: 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("LoadConfig() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
