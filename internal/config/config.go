// Package config loads service configuration from defaults, an
// optional YAML file, and environment variable overrides, in that
// order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Completion collaborator
	LLMBaseURL     string        `yaml:"llm_base_url"`
	LLMAPIKey      string        `yaml:"llm_api_key"`
	LLMModel       string        `yaml:"llm_model"`
	LLMTemperature float64       `yaml:"llm_temperature"`
	LLMMaxTokens   int           `yaml:"llm_max_tokens"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`

	// Chunk size bounds in estimated tokens
	MinChunkTokens    int `yaml:"min_chunk_tokens"`
	TargetChunkTokens int `yaml:"target_chunk_tokens"`
	MaxChunkTokens    int `yaml:"max_chunk_tokens"`

	// Page estimation heuristic
	CharsPerPage int `yaml:"chars_per_page"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Artifact storage
	StorageDir string `yaml:"storage_dir"`

	LogLevel string `yaml:"log_level"`
}

// Load builds the configuration. A non-empty path names a YAML file
// whose values override the defaults; environment variables override
// both.
func Load(path string) (Config, error) {
	cfg := Config{
		Port: "8090",

		LLMBaseURL:     "http://localhost:11434/v1",
		LLMModel:       "llama3.1:8b",
		LLMTemperature: 0.1,
		LLMMaxTokens:   4000,
		LLMTimeout:     60 * time.Second,

		MinChunkTokens:    200,
		TargetChunkTokens: 1000,
		MaxChunkTokens:    1500,

		CharsPerPage: 3000,

		MaxUploadBytes: 52428800, // 50MB

		StorageDir: "./data",
		LogLevel:   "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("RFPCHUNK_API_KEY", cfg.APIKey)

	cfg.LLMBaseURL = envOr("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMAPIKey = envOr("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMModel = envOr("LLM_MODEL", cfg.LLMModel)
	cfg.LLMTemperature = envFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMMaxTokens = envInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	cfg.LLMTimeout = envDuration("LLM_TIMEOUT", cfg.LLMTimeout)

	cfg.MinChunkTokens = envInt("MIN_CHUNK_TOKENS", cfg.MinChunkTokens)
	cfg.TargetChunkTokens = envInt("TARGET_CHUNK_TOKENS", cfg.TargetChunkTokens)
	cfg.MaxChunkTokens = envInt("MAX_CHUNK_TOKENS", cfg.MaxChunkTokens)
	cfg.CharsPerPage = envInt("CHARS_PER_PAGE", cfg.CharsPerPage)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.StorageDir = envOr("STORAGE_DIR", cfg.StorageDir)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("RFPCHUNK_API_KEY is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE %.2f out of range", c.LLMTemperature)
	}
	if c.MinChunkTokens <= 0 || c.TargetChunkTokens <= 0 || c.MaxChunkTokens <= 0 {
		return fmt.Errorf("chunk token bounds must be positive")
	}
	if c.MinChunkTokens >= c.TargetChunkTokens || c.TargetChunkTokens > c.MaxChunkTokens {
		return fmt.Errorf("chunk token bounds must satisfy min < target <= max")
	}
	if c.CharsPerPage <= 0 {
		return fmt.Errorf("CHARS_PER_PAGE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
