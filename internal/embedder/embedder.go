// Package embedder provides the embedding providers behind rag.Embedder.
// Each backend (Ollama, OpenAI, Azure OpenAI) is a thin HTTP Client; a
// Provider wraps one Client with request batching, a token-bucket rate
// limit and the failure contract the retrieval core relies on: every
// backend failure surfaces as rag.ErrEmbeddingUnavailable and no partial
// or zero-filled result is ever returned.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultBatchSize is the number of texts sent per backend request.
const DefaultBatchSize = 32

// Client is a raw embedding backend. The returned slice is parallel to
// texts.
type Client interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// errDisabled is returned by the "none" backend.
var errDisabled = errors.New("no embedding provider configured (set EMBEDDING_PROVIDER)")

// noneClient is the backend used when embeddings are switched off.
type noneClient struct{}

// EmbedTexts always fails.
func (noneClient) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, errDisabled
}

// Provider implements rag.Embedder on top of a Client. It is safe for
// concurrent use.
type Provider struct {
	// backend is the configured backend name (ollama, openai, azure, none).
	backend string
	// model is the embedding model name, empty for "none".
	model string
	// client performs the HTTP calls.
	client Client
	// limiter throttles backend requests across all callers.
	limiter *rate.Limiter
	// batchSize caps the number of texts per request.
	batchSize int
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithRateLimit throttles backend requests to rps per second. Zero or a
// negative value disables throttling.
func WithRateLimit(rps float64) ProviderOption {
	return func(p *Provider) {
		if rps <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := max(1, int(math.Ceil(rps)))
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBatchSize caps the number of texts sent per backend request.
func WithBatchSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewProvider wraps client. backend and model are used in errors, logs and
// health reports.
func NewProvider(backend, model string, client Client, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend:   backend,
		model:     model,
		client:    client,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Backend returns the backend name.
func (p *Provider) Backend() string { return p.backend }

// Model returns the embedding model name.
func (p *Provider) Model() string { return p.model }

// Enabled reports whether the provider can produce embeddings at all.
func (p *Provider) Enabled() bool {
	_, none := p.client.(noneClient)
	return !none
}

// Embed implements rag.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements rag.Embedder. Texts are sent in batches of at most
// the configured batch size; a failure in any batch fails the whole call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		batch := texts[start:min(start+p.batchSize, len(texts))]

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, p.fail(fmt.Errorf("rate limit: %w", err))
		}

		vecs, err := p.client.EmbedTexts(ctx, batch)
		if err != nil {
			return nil, p.fail(err)
		}
		if len(vecs) != len(batch) {
			return nil, p.fail(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vecs)))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, p.fail(fmt.Errorf("empty embedding for input %d", start+i))
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *Provider) fail(err error) error {
	return fmt.Errorf("embedder: %s: %w: %w", p.backend, rag.ErrEmbeddingUnavailable, err)
}

// Name returns the component name used in health reports.
func (p *Provider) Name() string { return "embedder:" + p.backend }

// Ping embeds a short probe text.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.Embed(ctx, "ping")
	return err
}

// Close releases idle connections held by the backend.
func (p *Provider) Close() error {
	if c, ok := p.client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}
