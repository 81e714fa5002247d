//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// TestOllama_Integration performs a real HTTP call to a locally running
// Ollama instance and checks the vectors are usable for cosine retrieval.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve   (or it must already be running)
//
// Run with:
//
//	go test -tags=integration -run TestOllama_Integration ./internal/embedder/
//
// In CI, set OLLAMA_HOST if Ollama is not on localhost:11434.
func TestOllama_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	p, err := New(Config{Backend: BackendOllama, Endpoint: host, Model: model})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Cats are small domesticated felines that purr.",
		"Quarterly revenue grew eight percent year over year.",
	}
	vecs, err := p.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}

	query, err := p.Embed(ctx, "kittens and cats")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	related := rag.Cosine(query, vecs[0])
	unrelated := rag.Cosine(query, vecs[1])
	t.Logf("model=%s dim=%d related=%.3f unrelated=%.3f", model, len(query), related, unrelated)
	if related <= unrelated {
		t.Errorf("cosine(query, cats)=%.3f not above cosine(query, revenue)=%.3f", related, unrelated)
	}
}
