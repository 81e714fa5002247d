package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/rag"
)

// settingsEnv lists every variable Resolve reads.
var settingsEnv = []string{
	"CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_MODE", "RETRIEVAL_TOP_K",
	"REPROCESS_POLICY", "DOCQA_CONCURRENCY", "DOCQA_DB", "DOCQA_METRICS_FILE",
	"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_API_KEY", "QDRANT_TLS",
}

// clearEnv unsets keys for the duration of the test.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
chunking:
  size: 500
  overlap: 50
retrieval:
  mode: vector
  top_k: 6
  reprocess_policy: hide
embedding:
  provider: ollama
  model: nomic-embed-text
  rate_limit: 2.5
qdrant:
  host: qdrant.internal
  port: 6334
  collection: my-docs
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t,
		"CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_MODE", "RETRIEVAL_TOP_K", "REPROCESS_POLICY",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_RATE_LIMIT",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"LOG_LEVEL", "LOG_FORMAT",
	)

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"CHUNK_SIZE":           "500",
		"CHUNK_OVERLAP":        "50",
		"RETRIEVAL_MODE":       "vector",
		"RETRIEVAL_TOP_K":      "6",
		"REPROCESS_POLICY":     "hide",
		"EMBEDDING_PROVIDER":   "ollama",
		"EMBEDDING_MODEL":      "nomic-embed-text",
		"EMBEDDING_RATE_LIMIT": "2.5",
		"QDRANT_HOST":          "qdrant.internal",
		"QDRANT_PORT":          "6334",
		"QDRANT_COLLECTION":    "my-docs",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docqa.toml")

	content := []byte(`
[chunking]
size = 300
overlap = 30

[retrieval]
mode = "lexical"

[library]
db_path = "/var/lib/docqa/library.db"
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t, "CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_MODE", "DOCQA_DB")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	checks := map[string]string{
		"CHUNK_SIZE":     "300",
		"CHUNK_OVERLAP":  "30",
		"RETRIEVAL_MODE": "lexical",
		"DOCQA_DB":       "/var/lib/docqa/library.db",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
retrieval:
  mode: vector
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("RETRIEVAL_MODE", "lexical")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("RETRIEVAL_MODE"); got != "lexical" {
		t.Errorf("RETRIEVAL_MODE: expected env override %q, got %q", "lexical", got)
	}
}

func TestLoad_InvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", "{{invalid yaml"},
		{"toml", "config.toml", "[chunking\nsize = "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfgPath := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(cfgPath, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(cfgPath, slog.Default()); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CHUNK_SIZE=640\nRETRIEVAL_MODE=vector\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t, "CHUNK_SIZE")
	t.Setenv("RETRIEVAL_MODE", "lexical")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CHUNK_SIZE"); got != "640" {
		t.Errorf("CHUNK_SIZE = %q, want 640", got)
	}
	if got := os.Getenv("RETRIEVAL_MODE"); got != "lexical" {
		t.Errorf("RETRIEVAL_MODE = %q, .env must not override a set variable", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestResolve_Defaults(t *testing.T) {
	clearEnv(t, settingsEnv...)

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Chunking.Length != 800 || s.Chunking.Overlap != 100 {
		t.Errorf("chunking = %+v, want 800/100", s.Chunking)
	}
	if s.Mode != rag.ModeLexical {
		t.Errorf("mode = %q, want lexical", s.Mode)
	}
	if s.TopK != 4 {
		t.Errorf("top k = %d, want 4", s.TopK)
	}
	if s.Policy != document.PolicyKeepVisible {
		t.Errorf("policy = %q, want keep", s.Policy)
	}
	if s.MirrorEnabled() {
		t.Error("mirror enabled without QDRANT_HOST")
	}
	if s.Qdrant.Port != DefaultQdrantPort || s.Qdrant.Collection != DefaultQdrantCollection {
		t.Errorf("qdrant = %+v", s.Qdrant)
	}
}

func TestResolve_FromEnv(t *testing.T) {
	clearEnv(t, settingsEnv...)
	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("CHUNK_OVERLAP", "0")
	t.Setenv("RETRIEVAL_MODE", "Semantic")
	t.Setenv("RETRIEVAL_TOP_K", "10")
	t.Setenv("REPROCESS_POLICY", "hide-while-processing")
	t.Setenv("QDRANT_HOST", "localhost")
	t.Setenv("QDRANT_TLS", "true")

	s, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Chunking.Length != 200 || s.Chunking.Overlap != 0 {
		t.Errorf("chunking = %+v, want 200/0", s.Chunking)
	}
	if s.Mode != rag.ModeVector || s.TopK != 10 || s.Policy != document.PolicyHideWhileProcessing {
		t.Errorf("settings = %+v", s)
	}
	if !s.MirrorEnabled() || !s.Qdrant.TLS {
		t.Errorf("qdrant = %+v", s.Qdrant)
	}
}

func TestResolve_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"overlap equals size", map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}},
		{"overlap exceeds size", map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "150"}},
		{"zero size", map[string]string{"CHUNK_SIZE": "0", "CHUNK_OVERLAP": "0"}},
		{"non-numeric size", map[string]string{"CHUNK_SIZE": "big"}},
		{"unknown mode", map[string]string{"RETRIEVAL_MODE": "hybrid"}},
		{"zero top k", map[string]string{"RETRIEVAL_TOP_K": "0"}},
		{"unknown policy", map[string]string{"REPROCESS_POLICY": "drop"}},
		{"negative concurrency", map[string]string{"DOCQA_CONCURRENCY": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t, settingsEnv...)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Resolve()
			if !errors.Is(err, rag.ErrConfiguration) {
				t.Fatalf("Resolve error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0, ""},
		{0.5, "0.5"},
		{2, "2"},
		{12.25, "12.25"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
