package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	defaultOllamaHost      = "http://localhost:11434"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2025-04-01-preview"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendNone   = "none"
)

// Config is the resolved embedding provider configuration.
type Config struct {
	// Backend is one of ollama, openai, azure, none.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Endpoint is the backend base URL.
	Endpoint string
	// APIKey authenticates against openai and azure.
	APIKey string
	// APIVersion is the Azure api-version.
	APIVersion string
	// Dimensions is the requested vector size; 0 uses the model default.
	Dimensions int
	// RateLimit caps backend requests per second; 0 disables the limit.
	RateLimit float64
	// BatchSize caps the number of texts per request.
	BatchSize int
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// DefaultDimensions returns the default embedding vector size for the given
// backend. Callers that pre-configure a vector store (e.g. Qdrant collection
// creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves the embedding configuration from environment
// variables:
//
//  1. EMBEDDING_PROVIDER: ollama (default), openai, azure or none
//  2. EMBEDDING_MODEL: overrides the backend's default model
//  3. EMBEDDING_ENDPOINT: overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT / the OpenAI base URL
//  4. EMBEDDING_API_KEY: overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  5. EMBEDDING_DIMENSIONS, EMBEDDING_RATE_LIMIT, EMBEDDING_BATCH_SIZE, EMBEDDING_TIMEOUT
//
// Missing credentials are reported by Validate, not here.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Backend:    strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", BackendOllama)),
		Model:      getEnv("EMBEDDING_MODEL"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
	}

	if v := getEnv("EMBEDDING_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("embedder: EMBEDDING_RATE_LIMIT %q is not a non-negative number", v)
		}
		cfg.RateLimit = rps
	}
	if v := getEnv("EMBEDDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("embedder: EMBEDDING_TIMEOUT %q: %w", v, err)
		}
		cfg.Timeout = d
	}

	switch cfg.Backend {
	case BackendOllama:
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("OLLAMA_HOST"), defaultOllamaHost)
		cfg.Model = firstNonEmpty(cfg.Model, defaultOllamaModel)

	case BackendOpenAI:
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, defaultOpenAIBaseURL)
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("OPENAI_API_KEY"))
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)

	case BackendAzure:
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion)
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)

	case BackendNone, "disabled", "off":
		cfg.Backend = BackendNone
		cfg.Model = ""

	default:
		return Config{}, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, none)", cfg.Backend)
	}
	return cfg, nil
}

// New constructs a Provider for cfg. Call Validate first for a readable
// report of missing settings.
func New(cfg Config) (*Provider, error) {
	if err := checkRequired(cfg); err != nil {
		return nil, err
	}

	opts := []ProviderOption{WithRateLimit(cfg.RateLimit), WithBatchSize(cfg.BatchSize)}

	switch cfg.Backend {
	case BackendOllama:
		client := NewOllamaClient(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model, Timeout: cfg.Timeout})
		return NewProvider(cfg.Backend, cfg.Model, client, opts...), nil

	case BackendOpenAI:
		client := NewOpenAIClient(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		return NewProvider(cfg.Backend, cfg.Model, client, opts...), nil

	case BackendAzure:
		client := NewOpenAIClient(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		})
		return NewProvider(cfg.Backend, cfg.Model, client, opts...), nil

	case BackendNone:
		return NewProvider(BackendNone, "", noneClient{}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, none)", cfg.Backend)
	}
}

// NewFromEnv is ConfigFromEnv followed by New.
func NewFromEnv() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// checkRequired reports settings a backend cannot run without.
func checkRequired(cfg Config) error {
	switch cfg.Backend {
	case BackendOpenAI:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	}
	return nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
