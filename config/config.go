package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the service needs. Values come from the
// environment; an optional config.json sitting next to the binary fills in
// whatever the environment left empty.
type Config struct {
	APIKey         string `env:"API_KEY" json:"api_key"`
	BaseURL        string `env:"BASE_URL" envDefault:"https://api.openai.com/v1" json:"base_url"`
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small" json:"embedding_model"`
	CaptionModel   string `env:"CAPTION_MODEL" envDefault:"gpt-4o-mini" json:"caption_model"`
	WhisperModel   string `env:"WHISPER_MODEL" envDefault:"whisper-1" json:"whisper_model"`

	Store       string `env:"STORE" envDefault:"memory" json:"store"`
	PostgresURL string `env:"DATABASE_URL" json:"postgres_url"`

	MilvusAddr       string `env:"MILVUS_ADDR" envDefault:"localhost:19530" json:"milvus_addr"`
	MilvusUsername   string `env:"MILVUS_USERNAME" json:"milvus_username"`
	MilvusPassword   string `env:"MILVUS_PASSWORD" json:"milvus_password"`
	MilvusAPIKey     string `env:"MILVUS_API_KEY" json:"milvus_api_key"`
	MilvusCollection string `env:"MILVUS_COLLECTION" envDefault:"lesson_keyframes" json:"milvus_collection"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000" json:"minio_endpoint"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin" json:"minio_access_key"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin" json:"minio_secret_key"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false" json:"minio_use_ssl"`
	MinIOBucket    string `env:"MINIO_BUCKET" envDefault:"lesson-frames" json:"minio_bucket"`

	CatalogBaseURL string `env:"CATALOG_BASE_URL" envDefault:"https://stepik.org/api" json:"catalog_base_url"`

	ASR               string `env:"ASR" envDefault:"whisper" json:"asr"`
	Captioner         string `env:"CAPTIONER" envDefault:"vision" json:"captioner"`
	KeyframesDisabled bool   `env:"KEYFRAMES_DISABLED" envDefault:"false" json:"keyframes_disabled"`

	DataRoot string `env:"DATA_ROOT" envDefault:"./data" json:"data_root"`
	TempDir  string `env:"TEMP_DIR" json:"temp_dir"`
	Port     string `env:"PORT" envDefault:"8080" json:"port"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" json:"log_level"`
}

const configFile = "config.json"

// Load parses the environment and overlays config.json for fields the
// environment did not set. Environment always wins.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if data, err := os.ReadFile(configFile); err == nil {
		var file Config
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configFile, err)
		}
		overlay(cfg, &file)
	}

	return cfg, nil
}

func overlay(cfg, file *Config) {
	if os.Getenv("API_KEY") == "" && file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if os.Getenv("BASE_URL") == "" && file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if os.Getenv("EMBEDDING_MODEL") == "" && file.EmbeddingModel != "" {
		cfg.EmbeddingModel = file.EmbeddingModel
	}
	if os.Getenv("CAPTION_MODEL") == "" && file.CaptionModel != "" {
		cfg.CaptionModel = file.CaptionModel
	}
	if os.Getenv("DATABASE_URL") == "" && file.PostgresURL != "" {
		cfg.PostgresURL = file.PostgresURL
	}
	if os.Getenv("CATALOG_BASE_URL") == "" && file.CatalogBaseURL != "" {
		cfg.CatalogBaseURL = file.CatalogBaseURL
	}
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "API key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		problems = append(problems, "base URL is required")
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		problems = append(problems, "embedding model is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HasValidAPI reports whether the OpenAI-compatible API is usable at all.
// Without it the service still produces text-only lesson entries.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseURL) != ""
}

// Fingerprint identifies the API client configuration. Clients are pooled
// per fingerprint so a config change produces a fresh client instead of
// mutating a shared one.
func (c *Config) Fingerprint() string {
	h := sha256.Sum256([]byte(c.BaseURL + "\x00" + c.APIKey))
	return hex.EncodeToString(h[:8])
}
