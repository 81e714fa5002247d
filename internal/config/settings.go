package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Defaults for the Qdrant mirror.
const (
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "docqa"
)

// Settings holds the effective runtime values after env resolution.
// Embedding provider settings are resolved separately by embedder.ConfigFromEnv.
type Settings struct {
	// Chunking is the fragment length and overlap used for new processing.
	Chunking chunker.Config

	// Mode is the retrieval mode used for processing and queries.
	Mode rag.Mode

	// TopK is the default number of fragments returned per query.
	TopK int

	// Policy controls pool visibility while a document is reprocessed.
	Policy document.Policy

	// Concurrency bounds how many documents are processed at once.
	Concurrency int

	// DBPath is the SQLite library path. Empty means the default location.
	DBPath string

	// MetricsFile is the textfile to write metrics to. Empty disables it.
	MetricsFile string

	// Qdrant holds the mirror connection. Host is empty when disabled.
	Qdrant QdrantConfig
}

// MirrorEnabled reports whether a Qdrant host is configured.
func (s Settings) MirrorEnabled() bool {
	return s.Qdrant.Host != ""
}

// Resolve reads Settings from the environment, applying defaults for unset
// values. It returns an error wrapping rag.ErrConfiguration when a value
// cannot be parsed or the combination is invalid.
func Resolve() (Settings, error) {
	var s Settings
	var err error

	if s.Chunking.Length, err = envInt("CHUNK_SIZE", chunker.DefaultLength); err != nil {
		return Settings{}, err
	}
	if s.Chunking.Overlap, err = envInt("CHUNK_OVERLAP", chunker.DefaultOverlap); err != nil {
		return Settings{}, err
	}
	if s.Mode, err = rag.ParseMode(envOr("RETRIEVAL_MODE", string(rag.ModeLexical))); err != nil {
		return Settings{}, fmt.Errorf("config: RETRIEVAL_MODE: %w", err)
	}
	if s.TopK, err = envInt("RETRIEVAL_TOP_K", rag.DefaultTopK); err != nil {
		return Settings{}, err
	}
	if s.Policy, err = document.ParsePolicy(os.Getenv("REPROCESS_POLICY")); err != nil {
		return Settings{}, fmt.Errorf("config: REPROCESS_POLICY: %w", err)
	}
	if s.Concurrency, err = envInt("DOCQA_CONCURRENCY", 0); err != nil {
		return Settings{}, err
	}
	s.DBPath = os.Getenv("DOCQA_DB")
	s.MetricsFile = os.Getenv("DOCQA_METRICS_FILE")

	s.Qdrant = QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Collection: envOr("QDRANT_COLLECTION", DefaultQdrantCollection),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		TLS:        strings.EqualFold(os.Getenv("QDRANT_TLS"), "true"),
	}
	if s.Qdrant.Port, err = envInt("QDRANT_PORT", DefaultQdrantPort); err != nil {
		return Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports configuration that no operation could run with.
func (s Settings) Validate() error {
	if err := s.Chunking.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("config: RETRIEVAL_TOP_K must be positive, got %d: %w", s.TopK, rag.ErrConfiguration)
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("config: DOCQA_CONCURRENCY must not be negative, got %d: %w", s.Concurrency, rag.ErrConfiguration)
	}
	return nil
}

// envOr returns the value of key, or fallback when unset or blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envInt parses key as an integer, returning fallback when unset.
func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, rag.ErrConfiguration)
	}
	return n, nil
}
