// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host   string
	Port   int
	DBPath string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration
}

// Load reads configuration from the environment. A missing API key is a
// fatal misconfiguration; the caller should exit rather than start a server
// that will fail every request.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is normal in deployment.
	_ = godotenv.Load()

	cfg := &Config{
		Host:       envOr("NUTRILOG_HOST", "0.0.0.0"),
		Port:       envIntOr("NUTRILOG_PORT", 8011),
		DBPath:     envOr("NUTRILOG_DB_PATH", "nutrilog.db"),
		LLMBaseURL: envOr("NUTRILOG_LLM_BASE_URL", "https://openrouter.ai/api"),
		LLMAPIKey:  os.Getenv("NUTRILOG_LLM_API_KEY"),
		LLMModel:   envOr("NUTRILOG_LLM_MODEL", "anthropic/claude-3.5-sonnet"),
		LLMTimeout: envDurationOr("NUTRILOG_LLM_TIMEOUT", 60*time.Second),
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("NUTRILOG_LLM_API_KEY is not set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
