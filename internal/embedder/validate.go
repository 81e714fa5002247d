package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// embeddingMarkers are name fragments that identify a dedicated embedding
// model even when a chat-model family name also appears (e.g.
// "mistral-embed").
var embeddingMarkers = []string{"embed", "bge", "e5-", "minilm"}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, m := range embeddingMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks cfg before a Provider is built. It returns an error when
// the configuration cannot work in vector mode, and logs a warning when the
// model name looks like a chat model.
//
// Vector mode needs embeddings at ingestion and at query time, so calling
// this at startup surfaces a clear message instead of a failure on the
// first embed call.
func Validate(cfg Config, mode rag.Mode, log *slog.Logger) error {
	if mode == rag.ModeVector && cfg.Backend == BackendNone {
		log.Warn("embedder: vector retrieval selected but EMBEDDING_PROVIDER is none; vector queries will fail",
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure)"),
		)
	}

	if err := checkRequired(cfg); err != nil {
		return err
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
