package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the full service configuration, loaded from environment
// variables with sane local defaults.
type Config struct {
	Port     string `envconfig:"APEX_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Inference runtime settings.
	InferenceBackend string        `envconfig:"INFERENCE_BACKEND" default:"ollama"` // ollama or openai
	OllamaHost       string        `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	InferenceAPIKey  string        `envconfig:"INFERENCE_API_KEY"`
	DefaultModel     string        `envconfig:"DEFAULT_MODEL" default:"mistral:7b"`
	GenerateTimeout  time.Duration `envconfig:"GENERATE_TIMEOUT" default:"120s"`
	ProbeTimeout     time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s"`
	MaxRetries       int           `envconfig:"INFERENCE_MAX_RETRIES" default:"3"`
	BackoffBase      time.Duration `envconfig:"INFERENCE_BACKOFF_BASE" default:"1s"`
	BackoffCap       time.Duration `envconfig:"INFERENCE_BACKOFF_CAP" default:"30s"`
	MaxTokensCeiling int           `envconfig:"MAX_TOKENS_CEILING" default:"4096"`

	// Curator service settings.
	CuratorURL     string        `envconfig:"CURATOR_SERVICE_URL" default:"http://localhost:5001"`
	CurateTimeout  time.Duration `envconfig:"CURATE_TIMEOUT" default:"30s"`
	CacheTTL       time.Duration `envconfig:"CURATION_CACHE_TTL" default:"30m"`
	CacheCapacity  uint64        `envconfig:"CURATION_CACHE_CAPACITY" default:"256"`

	// Vault settings. Empty path disables persistence.
	VaultPath string `envconfig:"OBSIDIAN_VAULT_PATH"`

	// Status aggregator settings.
	StatusInterval time.Duration `envconfig:"STATUS_POLL_INTERVAL" default:"30s"`

	// Gateway settings.
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"4"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.InferenceBackend != "ollama" && cfg.InferenceBackend != "openai" {
		return nil, fmt.Errorf("unknown inference backend %q", cfg.InferenceBackend)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("INFERENCE_MAX_RETRIES must not be negative")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.InferenceBackend).
		Str("ollama_host", cfg.OllamaHost).
		Str("default_model", cfg.DefaultModel).
		Str("curator_url", cfg.CuratorURL).
		Str("vault_path", orUnset(cfg.VaultPath)).
		Msg("configuration loaded")

	return &cfg, nil
}

func orUnset(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}
