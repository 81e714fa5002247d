package rag

import "errors"

var (
	// ErrConfiguration reports an invalid chunking or retrieval setting,
	// such as a chunk overlap that is not smaller than the chunk length.
	// It is raised before any work starts and is never corrected silently.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable reports that the embedding provider failed or
	// returned no vector. It is distinct from an empty fragment pool, which
	// is a valid input.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)
